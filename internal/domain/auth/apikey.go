// Package auth authenticates admin API keys.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

// Admin scopes.
const (
	ScopeOrdersRead    = "orders:read"
	ScopeOrdersWrite   = "orders:write"
	ScopeDeliveryWrite = "delivery:write"
	ScopeSettingsWrite = "settings:write"
	ScopeCouponsWrite  = "coupons:write"
)

// AllScopes lists every admin scope.
var AllScopes = []string{
	ScopeOrdersRead,
	ScopeOrdersWrite,
	ScopeDeliveryWrite,
	ScopeSettingsWrite,
	ScopeCouponsWrite,
}

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	// ErrNotFound is returned by Repository.FindByHash for unknown or
	// inactive keys.
	ErrNotFound = errors.New("api key not found")
)

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key grants scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope)
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashKey returns the hex HMAC-SHA256 of key under pepper.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticator verifies raw API keys.
type Authenticator struct {
	keys   Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator with the given API key
// repository and HMAC pepper.
func NewAuthenticator(keys Repository, pepper []byte) *Authenticator {
	return &Authenticator{keys: keys, pepper: pepper}
}

// Authenticate hashes key, looks it up and compares the stored hash in
// constant time.
func (a *Authenticator) Authenticate(ctx context.Context, key string) (*APIKeyInfo, error) {
	if key == "" {
		return nil, ErrUnauthorized
	}
	hash := HashKey(a.pepper, key)

	info, err := a.keys.FindByHash(ctx, hash)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, ErrUnauthorized
	case err != nil:
		return nil, errors.Wrap(err, "find api key")
	}

	if subtle.ConstantTimeCompare([]byte(hash), []byte(info.KeyHash)) != 1 {
		return nil, ErrUnauthorized
	}
	return info, nil
}

// Authorize authenticates key and checks that it grants scope.
func (a *Authenticator) Authorize(ctx context.Context, key, scope string) (*APIKeyInfo, error) {
	info, err := a.Authenticate(ctx, key)
	if err != nil {
		return nil, err
	}
	if !info.HasScope(scope) {
		return nil, ErrForbidden
	}
	return info, nil
}
