package webhook

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Gin context keys set by the API key middleware.
const (
	ContextKeyID        = "webhookKeyID"
	ContextKeyAccountID = "webhookAccountID"
)

// KeyLookup resolves an API key hash to the stored key. Satisfied by Repository.
type KeyLookup interface {
	GetKeyByHash(ctx context.Context, keyHash string) (*APIKey, error)
}

// APIKeyAuthMiddleware validates the X-Webhook-API-Key header and sets the
// key and account context for downstream handlers.
func APIKeyAuthMiddleware(keys KeyLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-Webhook-API-Key")
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}

		key, err := keys.GetKeyByHash(c.Request.Context(), HashKey(apiKey))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}

		c.Set(ContextKeyID, key.ID)
		if key.AccountID != nil {
			c.Set(ContextKeyAccountID, *key.AccountID)
		}
		c.Next()
	}
}

// keyID returns the authenticated key's ID from the gin context.
func keyID(c *gin.Context) *uuid.UUID {
	value, ok := c.Get(ContextKeyID)
	if !ok {
		return nil
	}
	id, ok := value.(uuid.UUID)
	if !ok {
		return nil
	}
	return &id
}

// keyAccountID returns the authenticated key's account scope, if any.
func keyAccountID(c *gin.Context) *uuid.UUID {
	value, ok := c.Get(ContextKeyAccountID)
	if !ok {
		return nil
	}
	id, ok := value.(uuid.UUID)
	if !ok {
		return nil
	}
	return &id
}
