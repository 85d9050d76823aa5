// Package oauth implements the grant orchestrators and their supporting
// machinery: PKCE generation, the token endpoint client, the browser
// authorization driver, the refresh engine, and the session manager.
package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// PKCEParams holds a PKCE code verifier and its S256 challenge (RFC 7636).
type PKCEParams struct {
	CodeVerifier  string
	CodeChallenge string
}

// GeneratePKCEParams generates a code verifier (22 random bytes, rendered as
// 44 lowercase hex characters) and its S256 challenge: the base64url,
// unpadded SHA-256 digest of the verifier's UTF-8 bytes.
func GeneratePKCEParams() (*PKCEParams, error) {
	verifierBytes := make([]byte, 22)
	if _, err := rand.Read(verifierBytes); err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}
	codeVerifier := hex.EncodeToString(verifierBytes)

	return &PKCEParams{
		CodeVerifier:  codeVerifier,
		CodeChallenge: Challenge(codeVerifier),
	}, nil
}

// Challenge computes the RFC 7636 S256 code challenge for verifier.
func Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// GenerateState generates a random state parameter for CSRF protection.
func GenerateState() (string, error) {
	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(stateBytes), nil
}
