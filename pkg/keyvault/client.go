/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package keyvault implements the wrap/unwrap HTTPS client against an
// Azure Key Vault key endpoint: authority discovery via an
// unauthenticated challenge probe, a single-flight cache of per-URI
// token providers, rate-limited and circuit-broken transport, and
// bounded retry of transient failures.
package keyvault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/vaultdoc/fle/internal/retry"
	"github.com/vaultdoc/fle/pkg/aadtoken"
	"github.com/vaultdoc/fle/pkg/fleerr"
)

const (
	correlationHeader = "x-ms-client-request-id"
	defaultAPIVersion = "7.4"
	algRSAOAEP        = "RSA-OAEP"
)

// CredentialConfig is the certificate client credential shared by every
// token provider this client discovers and caches.
type CredentialConfig struct {
	TenantID    string // Used only when the discovered authority omits a tenant segment.
	ClientID    string
	Certificate []byte
	Password    []byte

	AADRetryInterval time.Duration
	AADRetryCount    int
}

// Client performs wrap/unwrap against Azure Key Vault key endpoints.
type Client struct {
	httpClient  *http.Client
	apiVersion  string
	cred        CredentialConfig
	retryPolicy retry.Policy
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[[]byte]
	metrics     RequestObserver

	sf singleflight.Group

	mu        sync.Mutex
	providers map[string]*aadtoken.Provider // keyed by canonical key URI
}

// RequestObserver receives wrap/unwrap request outcomes and latency.
// *flemetrics.Metrics satisfies this interface; it is nil-safe to omit.
type RequestObserver interface {
	ObserveKeyVaultRequest(operation, outcome string, seconds float64)
}

// Option configures a Client.
type Option func(*Client)

// WithAPIVersion overrides the default Key Vault API version.
func WithAPIVersion(v string) Option {
	return func(c *Client) { c.apiVersion = v }
}

// WithHTTPClient overrides the default *http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithRateLimit bounds outbound requests per second, with burst.
func WithRateLimit(ratePerSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst) }
}

// WithRetryPolicy overrides the default retry policy for transient
// network failures.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.retryPolicy = p }
}

// WithRequestObserver wires a RequestObserver (typically
// *flemetrics.Metrics) to report wrap/unwrap request outcomes.
func WithRequestObserver(obs RequestObserver) Option {
	return func(c *Client) { c.metrics = obs }
}

// New constructs a Client for the given certificate credential.
func New(cred CredentialConfig, opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		apiVersion:  defaultAPIVersion,
		cred:        cred,
		retryPolicy: retry.Policy{MaxAttempts: 4, Interval: 250 * time.Millisecond},
		limiter:     rate.NewLimiter(rate.Limit(50), 50),
		providers:   make(map[string]*aadtoken.Provider),
	}
	for _, opt := range opts {
		opt(c)
	}

	breakerSettings := gobreaker.Settings{
		Name:        "keyvault",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](breakerSettings)

	return c
}

// Wrap encrypts plaintext under the master key named by keyURI, returning
// the wrapped bytes and the canonical (version-pinned) key URI the vault
// reported.
func (c *Client) Wrap(ctx context.Context, keyURI string, plaintext []byte) (wrapped []byte, canonicalKeyURI string, err error) {
	return c.wrapUnwrap(ctx, keyURI, "wrapkey", plaintext)
}

// Unwrap decrypts ciphertext that was wrapped under the master key named
// by keyURI.
func (c *Client) Unwrap(ctx context.Context, keyURI string, ciphertext []byte) (plaintext []byte, canonicalKeyURI string, err error) {
	return c.wrapUnwrap(ctx, keyURI, "unwrapkey", ciphertext)
}

func (c *Client) wrapUnwrap(ctx context.Context, keyURI, operation string, payload []byte) ([]byte, string, error) {
	start := time.Now()
	result, canonicalOut, err := c.doWrapUnwrap(ctx, keyURI, operation, payload)
	c.observeRequest(operation, err, time.Since(start))
	return result, canonicalOut, err
}

func (c *Client) observeRequest(operation string, err error, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.metrics.ObserveKeyVaultRequest(operation, outcome, elapsed.Seconds())
}

func (c *Client) doWrapUnwrap(ctx context.Context, keyURI, operation string, payload []byte) ([]byte, string, error) {
	canonical, err := validateKeyURI(keyURI)
	if err != nil {
		return nil, "", err
	}

	provider, err := c.tokenProviderFor(ctx, canonical)
	if err != nil {
		return nil, "", err
	}

	token, err := provider.GetAccessToken(ctx)
	if err != nil {
		return nil, "", err
	}

	reqBody, err := json.Marshal(struct {
		Alg   string `json:"alg"`
		Value string `json:"value"`
	}{Alg: algRSAOAEP, Value: base64StdToURL(payload)})
	if err != nil {
		return nil, "", fmt.Errorf("keyvault: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s?api-version=%s", canonical, operation, c.apiVersion)

	respBody, err := c.doAuthenticated(ctx, http.MethodPost, url, reqBody, token)
	if err != nil {
		return nil, "", err
	}

	var resp struct {
		Kid   string `json:"kid"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, "", fmt.Errorf("keyvault: invalid response JSON: %w: %w", fleerr.ErrWrapUnwrapFailure, err)
	}

	resultBytes, err := base64URLToStd(resp.Value)
	if err != nil {
		return nil, "", fmt.Errorf("keyvault: invalid base64url value: %w: %w", fleerr.ErrWrapUnwrapFailure, err)
	}

	result := resp.Kid
	if result == "" {
		result = canonical
	}
	return resultBytes, result, nil
}

// tokenProviderFor returns the cached token provider for keyURI,
// discovering the authority via a single-flighted challenge probe on
// first use.
func (c *Client) tokenProviderFor(ctx context.Context, keyURI string) (*aadtoken.Provider, error) {
	c.mu.Lock()
	if p, ok := c.providers[keyURI]; ok {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	v, err, _ := c.sf.Do(keyURI, func() (interface{}, error) {
		c.mu.Lock()
		if p, ok := c.providers[keyURI]; ok {
			c.mu.Unlock()
			return p, nil
		}
		c.mu.Unlock()

		authorizationURL, resource, err := c.discoverAuthority(ctx, keyURI)
		if err != nil {
			return nil, err
		}

		var providerOpts []aadtoken.Option
		if obs, ok := c.metrics.(aadtoken.CacheObserver); ok {
			providerOpts = append(providerOpts, aadtoken.WithCacheObserver(obs))
		}

		provider, err := aadtoken.New(aadtoken.Config{
			TenantID:      tenantFromAuthorizationURL(authorizationURL, c.cred.TenantID),
			ClientID:      c.cred.ClientID,
			Certificate:   c.cred.Certificate,
			Password:      c.cred.Password,
			Resource:      resource,
			RetryInterval: c.cred.AADRetryInterval,
			RetryCount:    c.cred.AADRetryCount,
		}, providerOpts...)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.providers[keyURI] = provider
		c.mu.Unlock()
		return provider, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*aadtoken.Provider), nil
}

// discoverAuthority performs the unauthenticated challenge probe and
// parses the WWW-Authenticate header for the authorization and resource
// URLs.
func (c *Client) discoverAuthority(ctx context.Context, keyURI string) (authorizationURL, resource string, err error) {
	probeURL := fmt.Sprintf("%s?api-version=%s", keyURI, c.apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("keyvault: build probe request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("keyvault: authority probe: %w: %w", fleerr.ErrKeyVaultServiceUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusUnauthorized {
		return "", "", fmt.Errorf("keyvault: authority probe returned %d, want 401: %w", resp.StatusCode, fleerr.ErrAadUnavailable)
	}

	challenge := resp.Header.Get("WWW-Authenticate")
	authorizationURL, resource, err = parseBearerChallenge(challenge)
	if err != nil {
		return "", "", fmt.Errorf("keyvault: parse WWW-Authenticate: %w: %w", fleerr.ErrAadUnavailable, err)
	}
	return authorizationURL, resource, nil
}

// doAuthenticated performs a bearer-authenticated request with retry,
// rate limiting, and circuit breaking, mapping the resulting HTTP status
// to the sentinel error table.
func (c *Client) doAuthenticated(ctx context.Context, method, url string, body []byte, bearerToken string) ([]byte, error) {
	var result []byte
	err := retry.Do(ctx, c.retryPolicy, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(fmt.Errorf("keyvault: rate limiter: %w: %w", fleerr.ErrCancelled, err))
		}

		out, err := c.breaker.Execute(func() ([]byte, error) {
			return c.doRequestOnce(ctx, method, url, body, bearerToken)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return retry.Permanent(fmt.Errorf("keyvault: circuit breaker: %w: %w", fleerr.ErrKeyVaultServiceUnavailable, err))
			}
			if isPermanentKeyVaultError(err) {
				return retry.Permanent(err)
			}
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) doRequestOnce(ctx context.Context, method, url string, body []byte, bearerToken string) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("keyvault: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearerToken)
	req.Header.Set(correlationHeader, uuid.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keyvault: request: %w: %w", fleerr.ErrKeyVaultServiceUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("keyvault: read response: %w: %w", fleerr.ErrKeyVaultServiceUnavailable, err)
	}

	if err := statusToError(resp.StatusCode); err != nil {
		return nil, err
	}
	return respBody, nil
}

// statusToError maps a Key Vault HTTP status code to the sentinel error
// table from the wrap/unwrap wire contract.
func statusToError(status int) error {
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusBadRequest:
		return fmt.Errorf("keyvault: bad request: %w", fleerr.ErrWrapUnwrapFailure)
	case http.StatusForbidden:
		return fmt.Errorf("keyvault: forbidden: %w", fleerr.ErrAuthenticationFailure)
	case http.StatusNotFound:
		return fmt.Errorf("keyvault: key not found: %w", fleerr.ErrKeyNotFound)
	default:
		return fmt.Errorf("keyvault: unexpected status %d: %w", status, fleerr.ErrWrapUnwrapFailure)
	}
}

// isPermanentKeyVaultError reports whether err represents a definitive
// rejection that retrying cannot fix (anything but a transport/service
// failure).
func isPermanentKeyVaultError(err error) bool {
	switch {
	case errors.Is(err, fleerr.ErrWrapUnwrapFailure),
		errors.Is(err, fleerr.ErrAuthenticationFailure),
		errors.Is(err, fleerr.ErrKeyNotFound):
		return true
	default:
		return false
	}
}
