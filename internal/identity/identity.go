// Package identity resolves opaque session tokens to stable user ids.
// The real resolver is an external collaborator; everything downstream
// trusts the id it returns.
package identity

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/core"
)

// Resolver turns a session token into the owning user's id, or
// core.ErrUnauthorized when the token resolves to nobody.
type Resolver interface {
	Resolve(ctx context.Context, token string) (userID string, err error)
}

// StaticResolver is a map-backed resolver for tests and local runs.
type StaticResolver struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewStaticResolver() *StaticResolver {
	return &StaticResolver{tokens: make(map[string]string)}
}

// Register binds a token to a user id.
func (r *StaticResolver) Register(token, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token] = userID
}

func (r *StaticResolver) Resolve(_ context.Context, token string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.tokens[token]
	if !ok {
		return "", fmt.Errorf("session token: %w", core.ErrUnauthorized)
	}
	return userID, nil
}

var _ Resolver = (*StaticResolver)(nil)
