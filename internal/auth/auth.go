// Package auth implements username/password authentication and per-user
// publish/subscribe authorization.
package auth

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Authenticator verifies a username/password pair.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) bool
}

// PlainAuthenticator holds bcrypt-hashed passwords in memory. Usernames
// that are empty or begin with "@" are reserved (for future group naming)
// and always fail authentication.
type PlainAuthenticator struct {
	hashes map[string][]byte
}

// NewPlainAuthenticator hashes each plaintext password in creds (username
// to password) and returns an Authenticator backed by the result.
func NewPlainAuthenticator(creds map[string]string) (*PlainAuthenticator, error) {
	a := &PlainAuthenticator{hashes: make(map[string][]byte, len(creds))}
	for user, pw := range creds {
		hash, err := HashPassword(pw)
		if err != nil {
			return nil, err
		}
		a.hashes[user] = hash
	}
	return a, nil
}

// NewPlainAuthenticatorFromHashes builds an Authenticator directly from
// precomputed bcrypt hashes, e.g. loaded from a config file that already
// stores "bcrypt:<hash>" values.
func NewPlainAuthenticatorFromHashes(hashes map[string][]byte) *PlainAuthenticator {
	return &PlainAuthenticator{hashes: hashes}
}

// bcryptPrefix marks a config-file credential value as an already-hashed
// password rather than plaintext to be hashed on load.
const bcryptPrefix = "bcrypt:"

// NewMixedAuthenticator builds an Authenticator from a credential map whose
// values are either plaintext passwords or "bcrypt:<hash>" pre-hashed
// entries, as accepted by the `users` config key.
func NewMixedAuthenticator(creds map[string]string) (*PlainAuthenticator, error) {
	a := &PlainAuthenticator{hashes: make(map[string][]byte, len(creds))}
	for user, pw := range creds {
		if strings.HasPrefix(pw, bcryptPrefix) {
			a.hashes[user] = []byte(strings.TrimPrefix(pw, bcryptPrefix))
			continue
		}
		hash, err := HashPassword(pw)
		if err != nil {
			return nil, err
		}
		a.hashes[user] = hash
	}
	return a, nil
}

// HashPassword bcrypt-hashes a plaintext password for storage.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// Authenticate reports whether password matches the stored hash for
// username.
func (a *PlainAuthenticator) Authenticate(_ context.Context, username, password string) bool {
	if username == "" || strings.HasPrefix(username, "@") {
		return false
	}
	hash, ok := a.hashes[username]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// KnownUsers reports the set of usernames this authenticator recognizes.
func (a *PlainAuthenticator) KnownUsers() []string {
	out := make([]string, 0, len(a.hashes))
	for u := range a.hashes {
		out = append(out, u)
	}
	return out
}
