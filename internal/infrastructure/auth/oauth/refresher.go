// Package oauth talks to the accounting-data provider's OAuth token endpoint.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/credential"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// Config configures the token endpoint client.
type Config struct {
	TokenURL       string        `mapstructure:"token_url"`
	ClientID       string        `mapstructure:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

// tokenResponse is the RFC 6749 token response.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Error        string `json:"error"`
	Description  string `json:"error_description"`
}

// Refresher performs the refresh_token grant.
type Refresher struct {
	cfg        Config
	httpClient *http.Client
	logger     logging.Logger
}

// NewRefresher constructs a Refresher.
func NewRefresher(cfg Config, logger logging.Logger) (*Refresher, error) {
	if cfg.TokenURL == "" {
		return nil, errors.New(errors.ErrCodeValidation, "oauth token url is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	return &Refresher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		logger:     logger,
	}, nil
}

// Refresh exchanges refreshToken for a new token pair.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (*credential.Token, error) {
	if refreshToken == "" {
		return nil, errors.New(errors.ErrCodeCredentialRefresh, "no refresh token stored")
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", r.cfg.ClientID)
	form.Set("client_secret", r.cfg.ClientSecret)

	resp, err := r.doWithRetry(ctx, form.Encode())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "token endpoint unavailable")
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "decode token response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.ErrCodeCredentialRefresh, "refresh rejected with status %d: %s", resp.StatusCode, tr.Error).
			WithDetail(tr.Description)
	}
	if tr.AccessToken == "" {
		return nil, errors.New(errors.ErrCodeCredentialRefresh, "token response without access_token")
	}
	return &credential.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    time.Duration(tr.ExpiresIn) * time.Second,
	}, nil
}

// doWithRetry retries transport errors and 5xx responses.  The request is
// rebuilt per attempt so the form body is always complete.
func (r *Refresher) doWithRetry(ctx context.Context, body string) (*http.Response, error) {
	var lastErr error
	for i := 0; i <= r.cfg.RetryAttempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.cfg.RetryDelay * time.Duration(1<<(i-1))):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.TokenURL, strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")

		resp, err := r.httpClient.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if err == nil {
			resp.Body.Close()
			err = fmt.Errorf("token endpoint returned %s", resp.Status)
		}
		lastErr = err
		r.logger.Warn("token endpoint call failed", logging.Int("attempt", i+1), logging.Err(err))
	}
	return nil, lastErr
}
