// Package googleplay implements the Google Play store billing provider
// against the Android Publisher subscriptionsv2 API.
package googleplay

import (
	"context"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"selah/internal/shared/errors"
)

const (
	androidPublisherScope = "https://www.googleapis.com/auth/androidpublisher"

	// tokenExpiryBuffer forces a refresh this long before the access token
	// actually expires, so in-flight calls never race the deadline.
	tokenExpiryBuffer = 5 * time.Minute
)

// newTokenSource builds a cached service-account token source from a JSON
// key. The signed-JWT exchange issues 1-hour tokens; ReuseTokenSource
// guarantees a single in-flight refresh with concurrent readers sharing the
// cached token.
func newTokenSource(ctx context.Context, credentialsJSON []byte) (oauth2.TokenSource, error) {
	if len(credentialsJSON) == 0 {
		return nil, errors.NewConfigurationError("google play service account credentials are required")
	}

	cfg, err := google.JWTConfigFromJSON(credentialsJSON, androidPublisherScope)
	if err != nil {
		return nil, errors.NewConfigurationError("invalid google play service account key: " + err.Error())
	}

	return oauth2.ReuseTokenSourceWithExpiry(nil, cfg.TokenSource(ctx), tokenExpiryBuffer), nil
}
