// Package webhook provides the inbound event surface. External providers
// deliver call outcomes and booking confirmations here, authenticated by
// API key. Every delivery is logged before processing so nothing is lost
// to a resolution failure.
package webhook

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"dialerdesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Delivery sources.
const (
	SourceCalls    = "calls"
	SourceBookings = "bookings"
	SourceRefill   = "refill"
)

// Delivery statuses.
const (
	StatusReceived     = "received"
	StatusAccepted     = "accepted"
	StatusRejected     = "rejected"
	StatusUnresolvable = "unresolvable"
)

// APIKey authenticates one webhook caller. Keys with an account are scoped
// to that account's deliveries; keys without one are platform keys for the
// booking provider, which does not know which account owns a contact.
type APIKey struct {
	ID        uuid.UUID
	AccountID *uuid.UUID
	Name      string
	KeyHash   string
	KeyPrefix string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Delivery is one logged webhook delivery, raw payload included.
type Delivery struct {
	ID        uuid.UUID
	APIKeyID  *uuid.UUID
	AccountID *uuid.UUID
	Source    string
	Payload   []byte
	Status    string
	Error     *string
	CreatedAt time.Time
}

// Repository provides data access for webhook API keys and the delivery log.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new webhook repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GenerateAPIKey creates a new random API key and returns the plaintext key
// and its hash. The plaintext is returned only once; only the hash is stored.
func GenerateAPIKey() (plaintext string, hash string, prefix string, err error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", "", err
	}
	plaintext = "whk_" + hex.EncodeToString(bytes)
	h := sha256.Sum256([]byte(plaintext))
	hash = hex.EncodeToString(h[:])
	prefix = plaintext[:12]
	return plaintext, hash, prefix, nil
}

// HashKey hashes a plaintext API key for lookup.
func HashKey(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}

const apiKeyColumns = `id, account_id, name, key_hash, key_prefix, is_active, created_at, updated_at`

// CreateKey stores a new API key record. A nil accountID creates a platform key.
func (r *Repository) CreateKey(ctx context.Context, accountID *uuid.UUID, name, keyHash, keyPrefix string) (*APIKey, error) {
	query := `
		INSERT INTO webhook_api_keys (account_id, name, key_hash, key_prefix)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + apiKeyColumns

	key, err := scanAPIKey(r.pool.QueryRow(ctx, query, accountID, name, keyHash, keyPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to create api key: %w", err)
	}
	return key, nil
}

// GetKeyByHash retrieves an active API key by its hash.
func (r *Repository) GetKeyByHash(ctx context.Context, keyHash string) (*APIKey, error) {
	query := `SELECT ` + apiKeyColumns + `
		FROM webhook_api_keys
		WHERE key_hash = $1 AND is_active = true`

	key, err := scanAPIKey(r.pool.QueryRow(ctx, query, keyHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Unauthorized("invalid API key")
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return key, nil
}

// ListKeys returns the account's API keys, newest first.
func (r *Repository) ListKeys(ctx context.Context, accountID uuid.UUID) ([]APIKey, error) {
	query := `SELECT ` + apiKeyColumns + `
		FROM webhook_api_keys
		WHERE account_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		keys = append(keys, *key)
	}
	return keys, rows.Err()
}

// RevokeKey deactivates an API key belonging to the account.
func (r *Repository) RevokeKey(ctx context.Context, accountID, keyID uuid.UUID) error {
	query := `
		UPDATE webhook_api_keys
		SET is_active = false, updated_at = NOW()
		WHERE id = $1 AND account_id = $2`

	tag, err := r.pool.Exec(ctx, query, keyID, accountID)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("api key not found")
	}
	return nil
}

// RecordDelivery logs one inbound delivery with its raw payload. The row is
// written before processing so rejected and unresolvable events remain on
// record for replay.
func (r *Repository) RecordDelivery(ctx context.Context, apiKeyID, accountID *uuid.UUID, source string, payload []byte) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO webhook_deliveries (api_key_id, account_id, source, payload, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, apiKeyID, accountID, source, payload, StatusReceived).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to record delivery: %w", err)
	}
	return id, nil
}

// FinishDelivery sets the delivery's final status and error detail.
func (r *Repository) FinishDelivery(ctx context.Context, id uuid.UUID, status string, deliveryErr *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_deliveries SET status = $2, error = $3 WHERE id = $1
	`, id, status, deliveryErr)
	if err != nil {
		return fmt.Errorf("failed to finish delivery: %w", err)
	}
	return nil
}

// ListDeliveries returns the account's delivery log page, newest first.
func (r *Repository) ListDeliveries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, api_key_id, account_id, source, payload, status, error, created_at
		FROM webhook_deliveries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.APIKeyID, &d.AccountID, &d.Source, &d.Payload,
			&d.Status, &d.Error, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

func scanAPIKey(row pgx.Row) (*APIKey, error) {
	var key APIKey
	err := row.Scan(&key.ID, &key.AccountID, &key.Name, &key.KeyHash, &key.KeyPrefix,
		&key.IsActive, &key.CreatedAt, &key.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &key, nil
}
