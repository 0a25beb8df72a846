// Package auth provides the current user's identity and backend credentials.
// Each concern is a small interface with interchangeable providers.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Environment variables read by the env providers.
const (
	EnvUserID = "PULSE_USER_ID"
	EnvToken  = "PULSE_TOKEN"
)

// ErrNoIdentity indicates no authenticated user is available.
var ErrNoIdentity = errors.New("no authenticated user")

// IdentityProvider reports the id of the signed-in user, if any.
type IdentityProvider interface {
	CurrentUserID() (string, bool)
}

// Static is an IdentityProvider with a fixed user id. The empty string means signed out.
type Static string

// CurrentUserID returns the fixed id.
func (s Static) CurrentUserID() (string, bool) {
	id := strings.TrimSpace(string(s))
	return id, id != ""
}

// EnvIdentity reads the user id from the PULSE_USER_ID environment variable.
type EnvIdentity struct{}

// CurrentUserID returns the value of PULSE_USER_ID, if set.
func (EnvIdentity) CurrentUserID() (string, bool) {
	id := strings.TrimSpace(os.Getenv(EnvUserID))
	return id, id != ""
}

// Chain asks each provider in order and returns the first present identity.
type Chain []IdentityProvider

// CurrentUserID returns the first identity any provider reports.
func (c Chain) CurrentUserID() (string, bool) {
	for _, p := range c {
		if p == nil {
			continue
		}
		if id, ok := p.CurrentUserID(); ok {
			return id, true
		}
	}
	return "", false
}

// RequireUser returns the current user id or ErrNoIdentity.
func RequireUser(p IdentityProvider) (string, error) {
	id, ok := p.CurrentUserID()
	if !ok {
		return "", fmt.Errorf("%w: set %s or pass --user", ErrNoIdentity, EnvUserID)
	}
	return id, nil
}

// TokenProvider defines the interface for obtaining a backend access token.
type TokenProvider interface {
	GetToken() (string, error)
}

// EnvProvider obtains tokens from the PULSE_TOKEN environment variable.
type EnvProvider struct{}

// GetToken reads the PULSE_TOKEN environment variable.
// Returns an error if the variable is not set or is empty.
func (e *EnvProvider) GetToken() (string, error) {
	token := strings.TrimSpace(os.Getenv(EnvToken))
	if token == "" {
		return "", fmt.Errorf("%s environment variable not set or empty", EnvToken)
	}
	return token, nil
}

// FileProvider reads a token from a file, such as a mounted secret.
type FileProvider struct {
	Path string
}

// GetToken returns the trimmed content of the file.
func (f *FileProvider) GetToken() (string, error) {
	if f.Path == "" {
		return "", errors.New("token file path not configured")
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", f.Path)
	}
	return token, nil
}

// GetToken attempts to obtain a backend token using the following strategy:
// 1. Try the token file, if a path is configured
// 2. Fall back to the PULSE_TOKEN environment variable
// 3. Return a clear, actionable error if both fail
func GetToken(tokenFile string) (string, error) {
	var fileErr error
	if tokenFile != "" {
		token, err := (&FileProvider{Path: tokenFile}).GetToken()
		if err == nil {
			return token, nil
		}
		fileErr = err
	}

	token, err := (&EnvProvider{}).GetToken()
	if err == nil {
		return token, nil
	}

	if fileErr != nil {
		return "", fmt.Errorf(
			"failed to obtain backend token: token file error (%v) and %s not set", fileErr, EnvToken)
	}
	return "", fmt.Errorf(
		"failed to obtain backend token: %s not set.\n"+
			"Please either:\n"+
			"  1. Set %s with an access token, or\n"+
			"  2. Point PULSE_TOKEN_FILE at a file containing one",
		EnvToken, EnvToken,
	)
}
