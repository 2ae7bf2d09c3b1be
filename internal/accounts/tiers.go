package accounts

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TierCatalog holds per-tier monthly pricing, loaded once at startup from a
// YAML file. The daily base cost in the revenue aggregate is derived from
// these prices.
type TierCatalog struct {
	tiers map[string]int64
}

type tierCatalogFile struct {
	Tiers []struct {
		Name              string `yaml:"name"`
		MonthlyPriceCents int64  `yaml:"monthlyPriceCents"`
	} `yaml:"tiers"`
}

// LoadTierCatalog reads the tier price catalog from the given path.
func LoadTierCatalog(path string) (*TierCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tier catalog: %w", err)
	}

	var file tierCatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse tier catalog: %w", err)
	}

	catalog := &TierCatalog{tiers: make(map[string]int64, len(file.Tiers))}
	for _, tier := range file.Tiers {
		name := strings.ToLower(strings.TrimSpace(tier.Name))
		if name == "" || tier.MonthlyPriceCents < 0 {
			return nil, fmt.Errorf("invalid tier entry %q", tier.Name)
		}
		catalog.tiers[name] = tier.MonthlyPriceCents
	}

	if len(catalog.tiers) == 0 {
		return nil, fmt.Errorf("tier catalog %s contains no tiers", path)
	}

	return catalog, nil
}

// MonthlyPriceCents returns the monthly price for a tier, or ok=false when
// the tier is unknown.
func (c *TierCatalog) MonthlyPriceCents(tier string) (int64, bool) {
	price, ok := c.tiers[strings.ToLower(strings.TrimSpace(tier))]
	return price, ok
}
