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

// Package aadtoken provides a certificate client-credentials OAuth2
// token provider for Azure AD, caching bearer tokens across calls made
// within the token's lifetime. It wraps azidentity's credential type
// rather than relying on azidentity's own internal cache, because the
// key-vault client needs to own single-flight-by-URI semantics across
// many providers itself.
package aadtoken

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/vaultdoc/fle/internal/retry"
	"github.com/vaultdoc/fle/pkg/fleerr"
)

// expirySkew is subtracted from a token's reported expiry so a cached
// token is never handed out moments before the authority would have
// rejected it.
const expirySkew = 2 * time.Minute

// Provider acquires and caches OAuth2 bearer tokens for a single
// (tenant, client, certificate, resource) tuple via the client-
// assertion-certificate grant.
type Provider struct {
	resource string
	cred     azcoreTokenCredential
	retry    retry.Policy
	metrics  CacheObserver

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// CacheObserver receives token-cache hit/miss counts. *flemetrics.Metrics
// satisfies this interface; it is nil-safe to omit.
type CacheObserver interface {
	ObserveTokenCacheHit()
	ObserveTokenCacheMiss()
}

// azcoreTokenCredential is the subset of azcore.TokenCredential this
// package depends on, narrowed so tests can substitute a fake.
type azcoreTokenCredential interface {
	GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcoreAccessToken, error)
}

// azcoreAccessToken mirrors azcore.AccessToken's shape without importing
// azcore directly into this file's exported surface.
type azcoreAccessToken struct {
	Token     string
	ExpiresOn time.Time
}

// Config constructs a Provider.
type Config struct {
	TenantID      string
	ClientID      string
	Certificate   []byte // PEM or PKCS12 bytes, per azidentity.ParseCertificates.
	Password      []byte // optional, for password-protected certificate bundles.
	Resource      string
	AuthorityHost string // empty selects azidentity.AzurePublicCloud.

	RetryInterval time.Duration
	RetryCount    int
}

// Option configures a Provider.
type Option func(*Provider)

// WithCacheObserver wires a CacheObserver (typically *flemetrics.Metrics)
// to report token-cache hits and misses.
func WithCacheObserver(obs CacheObserver) Option {
	return func(p *Provider) { p.metrics = obs }
}

// New constructs a Provider from a certificate client credential.
func New(cfg Config, opts ...Option) (*Provider, error) {
	certs, key, err := azidentity.ParseCertificates(cfg.Certificate, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("aadtoken: parse certificate: %w: %w", fleerr.ErrAuthenticationFailure, err)
	}

	credOpts := &azidentity.ClientCertificateCredentialOptions{}
	if cfg.AuthorityHost != "" {
		credOpts.ClientOptions.Cloud.ActiveDirectoryAuthorityHost = cfg.AuthorityHost
	}

	cred, err := azidentity.NewClientCertificateCredential(cfg.TenantID, cfg.ClientID, certs, key, credOpts)
	if err != nil {
		return nil, fmt.Errorf("aadtoken: new client certificate credential: %w: %w", fleerr.ErrAuthenticationFailure, err)
	}

	retryCount := cfg.RetryCount
	if retryCount < 1 {
		retryCount = 3
	}
	retryInterval := cfg.RetryInterval
	if retryInterval <= 0 {
		retryInterval = time.Second
	}

	p := &Provider{
		resource: cfg.Resource,
		cred:     azureCredentialAdapter{cred},
		retry:    retry.Policy{MaxAttempts: retryCount, Interval: retryInterval},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// GetAccessToken returns a bearer token string, from cache if the
// current token has more than expirySkew left on it, otherwise by
// performing the certificate client-credentials grant against Azure
// AD. ctx is honored before every network attempt.
func (p *Provider) GetAccessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.token != "" && time.Now().Add(expirySkew).Before(p.expiresAt) {
		tok := p.token
		p.mu.Unlock()
		p.observeCacheHit()
		return tok, nil
	}
	p.mu.Unlock()
	p.observeCacheMiss()

	var tok azcoreAccessToken
	err := retry.Do(ctx, p.retry, func(ctx context.Context) error {
		t, err := p.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{p.resource}})
		if err != nil {
			return fmt.Errorf("aadtoken: get token: %w", err)
		}
		tok = t
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("aadtoken: %w: %w", fleerr.ErrAadUnavailable, err)
	}

	p.mu.Lock()
	p.token = tok.Token
	p.expiresAt = tok.ExpiresOn
	p.mu.Unlock()

	return tok.Token, nil
}

func (p *Provider) observeCacheHit() {
	if p.metrics != nil {
		p.metrics.ObserveTokenCacheHit()
	}
}

func (p *Provider) observeCacheMiss() {
	if p.metrics != nil {
		p.metrics.ObserveTokenCacheMiss()
	}
}

// azureCredentialAdapter adapts *azidentity.ClientCertificateCredential
// to azcoreTokenCredential without leaking azcore's AccessToken type
// into this package's exported surface.
type azureCredentialAdapter struct {
	cred *azidentity.ClientCertificateCredential
}

func (a azureCredentialAdapter) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcoreAccessToken, error) {
	t, err := a.cred.GetToken(ctx, opts)
	if err != nil {
		return azcoreAccessToken{}, err
	}
	return azcoreAccessToken{Token: t.Token, ExpiresOn: t.ExpiresOn}, nil
}
