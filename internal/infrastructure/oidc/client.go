// Package oidc talks to the external identity providers: it exchanges
// authorization codes and verifies the id_tokens they return.
package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// Client exchanges authorization codes at provider token endpoints.
// Calls are bounded by the http.Client timeout and never retried.
type Client struct {
	http *http.Client
}

// NewClient returns a Client whose calls time out after timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// ExchangeCode posts the authorization code to client.TokenURL as a form.
func (c *Client) ExchangeCode(ctx context.Context, client *domain.AuthClient, code, redirectURI string) (*ports.ProviderTokenResponse, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"client_id":     {client.ClientID},
		"client_secret": {client.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, client.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request to %s: %w", client.URI, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	var tr tokenResponse
	decodeErr := json.Unmarshal(body, &tr)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && tr.Error != "" {
			return nil, fmt.Errorf("token endpoint returned %d: %s %s", resp.StatusCode, tr.Error, tr.Description)
		}
		return nil, fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode token response: %w", decodeErr)
	}

	return &ports.ProviderTokenResponse{
		AccessToken: tr.AccessToken,
		IDToken:     tr.IDToken,
		TokenType:   tr.TokenType,
		ExpiresIn:   tr.ExpiresIn,
	}, nil
}
