// Package appstore implements the Apple App Store billing provider against
// the App Store Server API.
package appstore

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"selah/internal/shared/errors"
)

const (
	apiTokenLifetime = 1 * time.Hour
	// apiTokenBuffer forces regeneration before Apple would reject the token
	// as expired mid-request.
	apiTokenBuffer = 5 * time.Minute
	apiAudience    = "appstoreconnect-v1"
)

// tokenGenerator mints and caches the ES256-signed API token the App Store
// Server API requires. Single-flight: the mutex ensures one regeneration at
// a time while readers share the cached token.
type tokenGenerator struct {
	issuerID string
	keyID    string
	bundleID string
	key      *ecdsa.PrivateKey

	mu        sync.Mutex
	cached    string
	expiresAt time.Time
}

func newTokenGenerator(issuerID, keyID, bundleID, privateKeyPEM string) (*tokenGenerator, error) {
	if issuerID == "" || keyID == "" || bundleID == "" || privateKeyPEM == "" {
		return nil, errors.NewConfigurationError("app store issuer ID, key ID, bundle ID and private key are required")
	}

	key, err := parseECPrivateKey([]byte(privateKeyPEM))
	if err != nil {
		return nil, errors.NewConfigurationError("invalid app store private key: " + err.Error())
	}

	return &tokenGenerator{
		issuerID: issuerID,
		keyID:    keyID,
		bundleID: bundleID,
		key:      key,
	}, nil
}

// parseECPrivateKey accepts the .p8 key from App Store Connect in either
// PKCS#8 or SEC1 encoding.
func parseECPrivateKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		ecKey, ok := parsed.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key is %T, expected ECDSA", parsed)
		}
		return ecKey, nil
	}

	return x509.ParseECPrivateKey(block.Bytes)
}

// Token returns a valid API token, regenerating when the cached one is
// inside the expiry buffer.
func (g *tokenGenerator) Token() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if g.cached != "" && now.Before(g.expiresAt.Add(-apiTokenBuffer)) {
		return g.cached, nil
	}

	expiresAt := now.Add(apiTokenLifetime)
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": g.issuerID,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
		"aud": apiAudience,
		"bid": g.bundleID,
	})
	token.Header["kid"] = g.keyID

	signed, err := token.SignedString(g.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign app store API token: %w", err)
	}

	g.cached = signed
	g.expiresAt = expiresAt
	return signed, nil
}
