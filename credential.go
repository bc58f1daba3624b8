package eventsub

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Credential is an OAuth access/refresh token pair.
// Credentials are values: a refresh produces a new Credential, it never edits one.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int       `json:"expires_in"`
	ObtainedAt   time.Time `json:"obtained_at"`
}

func NewCredential(accessToken, refreshToken string, expiresIn int) Credential {
	return Credential{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
		ObtainedAt:   time.Now().UTC(),
	}
}

// ExpiresAt returns the zero time when the credential carries no expiry.
func (c Credential) ExpiresAt() time.Time {
	if c.ExpiresIn <= 0 || c.ObtainedAt.IsZero() {
		return time.Time{}
	}
	return c.ObtainedAt.Add(time.Duration(c.ExpiresIn) * time.Second)
}

func (c Credential) Expired(now time.Time) bool {
	expiresAt := c.ExpiresAt()
	if expiresAt.IsZero() {
		return false
	}
	return !now.Before(expiresAt)
}

func (c Credential) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// RefreshFunc exchanges a credential for a new one.
type RefreshFunc func(ctx context.Context, current Credential) (Credential, error)

// Refresher replaces a credential whose access token was rejected.
type Refresher interface {
	Refresh(ctx context.Context, rejectedToken string) (Credential, error)
}

// TokenGuard is the single writer of a Credential shared by concurrent requests.
// Refreshes are serialized; a caller holding an access token that was already
// replaced gets the current credential without another exchange.
type TokenGuard struct {
	mu       sync.RWMutex
	current  Credential
	exchange RefreshFunc

	// Called after every successful refresh, while the guard is still held.
	OnRefresh func(Credential)
}

func NewTokenGuard(cred Credential, exchange RefreshFunc) *TokenGuard {
	return &TokenGuard{
		current:  cred,
		exchange: exchange,

		OnRefresh: func(Credential) {},
	}
}

func (g *TokenGuard) Credential() Credential {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.current
}

func (g *TokenGuard) AccessToken() string {
	return g.Credential().AccessToken
}

// Replace installs cred without an exchange, e.g. after an authorization-code grant.
func (g *TokenGuard) Replace(cred Credential) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = cred
}

func (g *TokenGuard) Refresh(ctx context.Context, rejectedToken string) (Credential, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current.AccessToken != rejectedToken {
		return g.current, nil
	}
	if g.exchange == nil {
		return Credential{}, newError(ErrInvalidOAuthToken, nil, goerrors.CategoryAuth, TextCodeInvalidOAuthToken,
			"no refresh exchange configured")
	}

	next, err := g.exchange(ctx, g.current)
	if err != nil {
		return Credential{}, err
	}
	if next.RefreshToken == "" {
		next.RefreshToken = g.current.RefreshToken
	}
	g.current = next

	if g.OnRefresh != nil {
		g.OnRefresh(next)
	}
	return next, nil
}
