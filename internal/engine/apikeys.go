package engine

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tideline/internal/domain"
	"tideline/internal/repo"
)

// NewAPIKey mints a raw key and its storable record. The raw key is shown to
// the caller once; only the hash is persisted.
func NewAPIKey(actorID, name string) (string, domain.APIKey, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", domain.APIKey{}, fmt.Errorf("generate api key: %w", err)
	}
	raw := "tl_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	return raw, key, nil
}
