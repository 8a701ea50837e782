// Package oauthtoken defines the access-token provider contract DailyOS
// consumes for Google Calendar/Gmail API calls. OAuth browser-redirect
// consent mechanics are explicitly out of scope (spec §1) — the core
// only ever asks for a current access token and reacts to expiry.
package oauthtoken

import (
	"context"
	"errors"
)

// ErrExpired is returned by Provider.AccessToken when the stored
// refresh token is no longer valid and user re-consent is required.
// Calendar sync reacts to this by emitting google-auth-changed:TokenExpired
// (spec §4.4) rather than retrying.
var ErrExpired = errors.New("oauthtoken: token expired, re-consent required")

// Provider supplies a current access token for a named account
// ("calendar", "gmail", …). Implementations own refresh-token storage
// and silent refresh; DailyOS never sees a refresh token or client
// secret directly.
type Provider interface {
	AccessToken(ctx context.Context, account string) (string, error)
}

// StaticProvider is a fixed-token Provider, useful for tests and for
// service-account-style deployments where no refresh is needed.
type StaticProvider map[string]string

// AccessToken implements Provider.
func (p StaticProvider) AccessToken(_ context.Context, account string) (string, error) {
	tok, ok := p[account]
	if !ok || tok == "" {
		return "", ErrExpired
	}
	return tok, nil
}
