package upstream

import (
	"context"
	"sync"
	"time"
)

// CredentialProvider supplies the bearer credential for outbound upstream
// calls. It is injected into every component that talks to the provider so
// refresh timing and invalidation are an explicit contract rather than
// module-level state.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// StaticProvider returns a fixed API token and never refreshes
type StaticProvider struct {
	token string
}

// NewStaticProvider creates a provider around a fixed token
func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{token: token}
}

func (p *StaticProvider) Token(context.Context) (string, error) { return p.token, nil }

func (p *StaticProvider) Invalidate() {}

// RefreshFunc mints a fresh credential
type RefreshFunc func(ctx context.Context) (string, error)

// TokenProvider caches a minted credential and re-mints once it is older
// than maxAge. Invalidate discards the cached credential immediately (e.g.
// on sign-out), forcing a re-mint on the next call.
type TokenProvider struct {
	mu       sync.Mutex
	refresh  RefreshFunc
	maxAge   time.Duration
	token    string
	mintedAt time.Time
	now      func() time.Time
}

// NewTokenProvider creates an age-based refreshing credential provider
func NewTokenProvider(refresh RefreshFunc, maxAge time.Duration) *TokenProvider {
	return &TokenProvider{
		refresh: refresh,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// Token returns the cached credential, minting a new one when absent or
// older than maxAge.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.now().Sub(p.mintedAt) < p.maxAge {
		return p.token, nil
	}

	token, err := p.refresh(ctx)
	if err != nil {
		return "", err
	}

	p.token = token
	p.mintedAt = p.now()
	return token, nil
}

// Invalidate discards the cached credential
func (p *TokenProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	p.mintedAt = time.Time{}
}
