package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors for token validation failures.
var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrForbidden           = errors.New("token not permitted for this service")
	ErrUpstreamUnavailable = errors.New("auth service unavailable")
)

// Validator checks a bearer token against the authorization service.
// Every call performs a remote check; results are not cached because
// issued tokens are short-lived.
type Validator interface {
	Validate(ctx context.Context, token string) error
}

// HTTPValidator implements Validator against the auth service's HTTP API.
type HTTPValidator struct {
	validateURL     string
	requiredService string
	client          *http.Client
}

// NewHTTPValidator creates a validator that posts tokens to validateURL and
// requires the token to be scoped to requiredService.
func NewHTTPValidator(validateURL, requiredService string, timeout time.Duration) *HTTPValidator {
	return &HTTPValidator{
		validateURL:     validateURL,
		requiredService: requiredService,
		client:          &http.Client{Timeout: timeout},
	}
}

type validateRequest struct {
	AccessToken string `json:"access_token"`
}

type validateResponse struct {
	Valid   bool    `json:"valid"`
	Service *string `json:"service"`
}

// Validate posts the token to the validation endpoint. A transport failure or
// a 5xx from the upstream maps to ErrUpstreamUnavailable; a 4xx or a
// valid=false body maps to ErrUnauthenticated; a valid token issued to a
// different service maps to ErrForbidden.
func (v *HTTPValidator) Validate(ctx context.Context, token string) error {
	body, err := json.Marshal(validateRequest{AccessToken: token})
	if err != nil {
		return fmt.Errorf("encoding validate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.validateURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building validate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: validate returned status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: validate returned status %d", ErrUnauthenticated, resp.StatusCode)
	}

	var out validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("%w: decoding validate response: %v", ErrUpstreamUnavailable, err)
	}

	if !out.Valid {
		return fmt.Errorf("%w: token rejected", ErrUnauthenticated)
	}
	if out.Service == nil || *out.Service != v.requiredService {
		return ErrForbidden
	}

	return nil
}

// Compile-time check that HTTPValidator implements Validator.
var _ Validator = (*HTTPValidator)(nil)
