// Package razorpay implements the hosted-checkout billing provider against
// the Razorpay Subscriptions API.
package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"selah/internal/shared/errors"
)

const (
	defaultBaseURL = "https://api.razorpay.com/v1"
	clientTimeout  = 15 * time.Second
)

// Client is a minimal Razorpay REST client. Auth is HTTP basic with the key
// pair from config.
type Client struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

// NewClient creates a client for the Razorpay v1 API.
func NewClient(keyID, keySecret string) (*Client, error) {
	if keyID == "" || keySecret == "" {
		return nil, errors.NewConfigurationError("razorpay key ID and secret are required")
	}
	return &Client{
		baseURL:    defaultBaseURL,
		keyID:      keyID,
		keySecret:  keySecret,
		httpClient: &http.Client{Timeout: clientTimeout},
	}, nil
}

type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// do issues a request and decodes the JSON response into out. Non-2xx
// responses are wrapped in a provider fetch error carrying the HTTP status
// and Razorpay's error code.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewProviderFetchError("razorpay request failed", 0, "", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.NewProviderFetchError("failed to read razorpay response", resp.StatusCode, "", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		_ = json.Unmarshal(respBody, &apiErr)
		return errors.NewProviderFetchError(
			fmt.Sprintf("razorpay %s %s failed: %s", method, path, apiErr.Error.Description),
			resp.StatusCode, apiErr.Error.Code, nil,
		)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.NewProviderFetchError("failed to decode razorpay response", resp.StatusCode, "", err)
		}
	}
	return nil
}
