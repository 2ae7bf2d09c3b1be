// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "US"

// matchSuffixLen is the number of trailing digits used as the match key.
// Country-code prefixes and punctuation are inconsistent between the telephony
// and booking providers, so matching always goes through the suffix rather
// than the full number.
const matchSuffixLen = 10

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// Digits strips everything except digits from the input.
func Digits(input string) string {
	var b strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MatchSuffix returns the last ten digits of the number, which is the key
// used for lead and appointment matching. Numbers with fewer than ten digits
// are unmatchable and return ok=false; they must never match arbitrary rows.
// The function is idempotent: applying it to its own output yields the same
// suffix.
func MatchSuffix(input string) (string, bool) {
	digits := Digits(input)
	if len(digits) < matchSuffixLen {
		return "", false
	}
	return digits[len(digits)-matchSuffixLen:], true
}
