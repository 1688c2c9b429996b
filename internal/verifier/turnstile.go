// Package verifier checks anti-abuse challenge tokens against Cloudflare Turnstile.
package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"intake/internal/config"
)

// ErrTokenMissing is returned without any outbound call when the client sent no token.
var ErrTokenMissing = errors.New("challenge token missing")

// Outcome is the decoded siteverify answer.
type Outcome struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verifier validates a client challenge token. An error means the token could not be
// checked at all; callers must treat it as a rejection.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (Outcome, error)
}

// Turnstile calls the siteverify endpoint with form-encoded secret, response and remoteip.
type Turnstile struct {
	client    *http.Client
	secret    string
	verifyURL string
}

// NewTurnstile builds a verifier with a traced HTTP client bounded by cfg.Timeout.
func NewTurnstile(cfg config.TurnstileConfig) *Turnstile {
	return &Turnstile{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		secret:    cfg.Secret,
		verifyURL: cfg.VerifyURL,
	}
}

var _ Verifier = (*Turnstile)(nil)

// Verify posts the token to siteverify. There is no caching and no bypass.
func (t *Turnstile) Verify(ctx context.Context, token, remoteIP string) (Outcome, error) {
	if token == "" {
		return Outcome{}, ErrTokenMissing
	}

	form := url.Values{}
	form.Set("secret", t.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Outcome{}, fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("siteverify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Outcome{}, fmt.Errorf("siteverify status %d", resp.StatusCode)
	}

	var out Outcome
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return Outcome{}, fmt.Errorf("decode siteverify response: %w", err)
	}
	return out, nil
}
