package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/tutu-network/coord/internal/domain"
)

// Registry is an in-memory stand-in for the on-chain registry.
type Registry struct {
	mu            sync.RWMutex
	users         map[string]domain.OnChainUser // userID → user
	byAddress     map[string]string             // public key → userID
	minReputation uint64
	calls         map[string]int
}

// NewRegistry creates a registry with the given admission threshold.
func NewRegistry(minReputation uint64) *Registry {
	return &Registry{
		users:         make(map[string]domain.OnChainUser),
		byAddress:     make(map[string]string),
		minReputation: minReputation,
		calls:         make(map[string]int),
	}
}

// PutUser inserts or replaces a user.
func (r *Registry) PutUser(u domain.OnChainUser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.users[u.UserID]; ok {
		delete(r.byAddress, old.PublicKey)
	}
	r.users[u.UserID] = u
	r.byAddress[u.PublicKey] = u.UserID
}

// SetTransfers updates a user's upload/download ledger.
func (r *Registry) SetTransfers(userID string, uploaded, downloaded uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUserNotFound, userID)
	}
	u.Uploaded = uploaded
	u.Downloaded = downloaded
	r.users[userID] = u
	return nil
}

// SetMinReputation changes the admission threshold.
func (r *Registry) SetMinReputation(v uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.minReputation = v
}

// GetUser implements domain.Registry.
func (r *Registry) GetUser(_ context.Context, userID string) (*domain.OnChainUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["GetUser"]++

	u, ok := r.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUserNotFound, userID)
	}
	return &u, nil
}

// GetUserByAddress implements domain.Registry.
func (r *Registry) GetUserByAddress(_ context.Context, address string) (*domain.OnChainUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["GetUserByAddress"]++

	id, ok := r.byAddress[address]
	if !ok {
		return nil, fmt.Errorf("%w: address %s", domain.ErrUserNotFound, address)
	}
	u := r.users[id]
	return &u, nil
}

// GetMinReputation implements domain.Registry.
func (r *Registry) GetMinReputation(_ context.Context) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["GetMinReputation"]++
	return r.minReputation, nil
}

// CallCount returns how many times method was called.
func (r *Registry) CallCount(method string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.calls[method]
}
