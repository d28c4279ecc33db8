package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"enrollsync/pkg/domain"
	"enrollsync/pkg/platform/sentinel"
)

// MemoryProvider is the in-memory identity backend for tests and local
// development. Passwords are bcrypt-hashed like the real backend so the
// CheckPassword helper exercises the same code path tests assert on.
type MemoryProvider struct {
	mu         sync.RWMutex
	byEmail    map[string]*Identity
	hashes     map[domain.GuardianID][]byte
	resetLinks *ResetLinkBuilder
}

func NewMemoryProvider(resetLinks *ResetLinkBuilder) *MemoryProvider {
	return &MemoryProvider{
		byEmail:    make(map[string]*Identity),
		hashes:     make(map[domain.GuardianID][]byte),
		resetLinks: resetLinks,
	}
}

func (p *MemoryProvider) Create(_ context.Context, email, password string) (*Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byEmail[email]; exists {
		return nil, sentinel.ErrConflict
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	ident := &Identity{
		ID:        domain.NewGuardianID(),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	p.byEmail[email] = ident
	p.hashes[ident.ID] = hash
	return cloneIdentity(ident), nil
}

func (p *MemoryProvider) UpdatePassword(_ context.Context, id domain.GuardianID, password string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.hashes[id]; !ok {
		return sentinel.ErrNotFound
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	p.hashes[id] = hash
	return nil
}

func (p *MemoryProvider) ListByEmail(_ context.Context, email string) ([]*Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	p.mu.RLock()
	defer p.mu.RUnlock()

	ident, ok := p.byEmail[email]
	if !ok {
		return nil, nil
	}
	return []*Identity{cloneIdentity(ident)}, nil
}

func (p *MemoryProvider) PasswordResetLink(_ context.Context, email string) (string, error) {
	return p.resetLinks.Build(strings.ToLower(strings.TrimSpace(email)), time.Now().UTC())
}

// Seed registers an identity directly; test helper for orphaned-identity
// scenarios.
func (p *MemoryProvider) Seed(ident Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := ident
	cp.Email = strings.ToLower(strings.TrimSpace(cp.Email))
	p.byEmail[cp.Email] = &cp
	p.hashes[cp.ID] = nil
}

// CheckPassword reports whether the stored hash matches; test helper.
func (p *MemoryProvider) CheckPassword(id domain.GuardianID, password string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	hash, ok := p.hashes[id]
	if !ok || hash == nil {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

func cloneIdentity(ident *Identity) *Identity {
	cp := *ident
	return &cp
}
