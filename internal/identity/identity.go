package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Creator registers a new anonymous user with the backend.
type Creator interface {
	CreateUser(ctx context.Context) (string, error)
}

// Current returns the stored user id, or "" when none has been issued yet.
func Current(ctx context.Context, store Store) (string, error) {
	userID, err := store.Get(ctx, UserIDKey)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(userID), nil
}

// Ensure returns the stored user id, asking creator for a new one and
// persisting it when the store is empty. Callers serialise concurrent calls.
func Ensure(ctx context.Context, store Store, creator Creator) (userID string, created bool, err error) {
	userID, err = Current(ctx, store)
	if err != nil {
		return "", false, err
	}
	if userID != "" {
		return userID, false, nil
	}

	userID, err = creator.CreateUser(ctx)
	if err != nil {
		return "", false, fmt.Errorf("create user: %w", err)
	}
	if strings.TrimSpace(userID) == "" {
		return "", false, errors.New("create user: backend returned an empty id")
	}
	if err := store.Set(ctx, UserIDKey, userID); err != nil {
		return "", false, err
	}
	return userID, true, nil
}

// Reset forgets the stored user id.
func Reset(ctx context.Context, store Store) error {
	return store.Delete(ctx, UserIDKey)
}

// Provider serialises identity access for a long-running process.
type Provider struct {
	mu      sync.Mutex
	store   Store
	creator Creator
}

// NewProvider binds store and creator.
func NewProvider(store Store, creator Creator) *Provider {
	return &Provider{store: store, creator: creator}
}

// Current returns the stored user id or "".
func (p *Provider) Current(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Current(ctx, p.store)
}

// Ensure returns the stored user id, creating one on first use.
func (p *Provider) Ensure(ctx context.Context) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Ensure(ctx, p.store, p.creator)
}

// Reset forgets the stored user id.
func (p *Provider) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Reset(ctx, p.store)
}
