package oauthtoken

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleCredentials is one account's refresh-token credential set,
// obtained out-of-band (spec §1: consent-flow mechanics are out of
// scope) and handed to DailyOS as already-issued refresh tokens.
type GoogleCredentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// GoogleProvider silently exchanges each account's refresh token for a
// short-lived access token via golang.org/x/oauth2, caching the result
// until it's near expiry. A refresh failure that looks like a revoked
// or expired grant surfaces as ErrExpired rather than a generic error,
// so calendar/gmail sync can tell "re-consent needed" apart from "the
// network is down".
type GoogleProvider struct {
	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// NewGoogleProvider builds a Provider from one GoogleCredentials set per
// account name ("calendar", "gmail", …).
func NewGoogleProvider(ctx context.Context, accounts map[string]GoogleCredentials) *GoogleProvider {
	sources := make(map[string]oauth2.TokenSource, len(accounts))
	for name, cred := range accounts {
		cfg := &oauth2.Config{
			ClientID:     cred.ClientID,
			ClientSecret: cred.ClientSecret,
			Endpoint:     google.Endpoint,
		}
		token := &oauth2.Token{RefreshToken: cred.RefreshToken}
		sources[name] = cfg.TokenSource(ctx, token)
	}
	return &GoogleProvider{sources: sources}
}

// AccessToken implements Provider, returning ErrExpired when the
// refresh token has been revoked or expired.
func (p *GoogleProvider) AccessToken(ctx context.Context, account string) (string, error) {
	p.mu.Lock()
	src, ok := p.sources[account]
	p.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("oauthtoken: no credentials configured for account %q", account)
	}

	tok, err := src.Token()
	if err != nil {
		if isInvalidGrant(err) {
			return "", ErrExpired
		}
		return "", fmt.Errorf("oauthtoken: refresh %s token: %w", account, err)
	}
	return tok.AccessToken, nil
}

// isInvalidGrant matches the OAuth2 error codes Google returns when a
// refresh token has been revoked or expired and re-consent is required.
func isInvalidGrant(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "invalid_grant") || strings.Contains(msg, "invalid_token")
}
