package auth

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
)

// DefaultRefreshBuffer is how long before expiry a cached token is replaced.
const DefaultRefreshBuffer = 5 * time.Minute

// Authenticator obtains a brand new token.
type Authenticator func(ctx context.Context) (*oauth2.Token, error)

// Refresher exchanges a refresh token for a new token.
type Refresher func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

// NewCachingTokenSource returns a token source backed by the store row key.
// The cached token is served until buffer before its expiry. After that a
// refresh is attempted (when refresh is non-nil and a refresh token is
// known), falling back to authenticate. Every new token is written back.
func NewCachingTokenSource(ctx context.Context, store *TokenStore, key string, buffer time.Duration, authenticate Authenticator, refresh Refresher) (oauth2.TokenSource, error) {
	cached, err := store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		if cached.Expiry.IsZero() || time.Until(cached.Expiry) > buffer {
			slog.Info("using cached access token", "key", key, "expires_at", cached.Expiry)
		} else {
			slog.Info("cached access token expired", "key", key, "expires_at", cached.Expiry)
		}
	}

	src := &persistingSource{
		ctx:          ctx,
		store:        store,
		key:          key,
		authenticate: authenticate,
		refresh:      refresh,
		last:         cached,
	}
	return oauth2.ReuseTokenSourceWithExpiry(cached, src, buffer), nil
}

type persistingSource struct {
	ctx          context.Context
	store        *TokenStore
	key          string
	authenticate Authenticator
	refresh      Refresher
	last         *oauth2.Token
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	var tok *oauth2.Token
	if s.refresh != nil && s.last != nil && s.last.RefreshToken != "" {
		refreshed, err := s.refresh(s.ctx, s.last.RefreshToken)
		if err != nil {
			slog.Warn("token refresh failed, authenticating again", "key", s.key, "error", err)
		} else {
			tok = refreshed
		}
	}
	if tok == nil {
		fresh, err := s.authenticate(s.ctx)
		if err != nil {
			return nil, err
		}
		tok = fresh
	}
	if tok.RefreshToken == "" && s.last != nil {
		tok.RefreshToken = s.last.RefreshToken
	}

	if err := s.store.Save(s.ctx, s.key, tok); err != nil {
		slog.Warn("could not cache token", "key", s.key, "error", err)
	} else {
		slog.Info("saved token", "key", s.key, "expires_at", tok.Expiry)
	}
	s.last = tok
	return tok, nil
}

// PasswordGrant authenticates with the resource owner password credentials
// grant and refreshes with the refresh token grant.
func PasswordGrant(cfg *oauth2.Config, username, password string) (Authenticator, Refresher) {
	authenticate := func(ctx context.Context) (*oauth2.Token, error) {
		return cfg.PasswordCredentialsToken(ctx, username, password)
	}
	refresh := func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	}
	return authenticate, refresh
}
