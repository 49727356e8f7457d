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

// Package vaulttransit implements the metadata.MasterKeyStore backend
// for customer master keys held in a HashiCorp Vault transit secrets
// engine.
package vaulttransit

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/vault/api"

	"github.com/vaultdoc/fle/pkg/fleerr"
	"github.com/vaultdoc/fle/pkg/policy"
)

const defaultMountPath = "transit"

// logical abstracts the subset of *api.Logical this package calls, so
// tests can inject a fake Vault backend.
type logical interface {
	WriteWithContext(ctx context.Context, path string, data map[string]interface{}) (*api.Secret, error)
}

// Store wraps and unwraps data-encryption keys through Vault's transit
// encrypt/decrypt endpoints. policy.KeyEncryptionKeyMetadata.URI names
// the transit key.
type Store struct {
	logical   logical
	mountPath string
}

// Option configures a Store.
type Option func(*Store)

// WithMountPath overrides the default "transit" mount path.
func WithMountPath(path string) Option {
	return func(s *Store) { s.mountPath = path }
}

// New constructs a Store around a configured Vault API client.
func New(client *api.Client, opts ...Option) *Store {
	s := &Store{logical: client.Logical(), mountPath: defaultMountPath}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newWithLogical(l logical, opts ...Option) *Store {
	s := &Store{logical: l, mountPath: defaultMountPath}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wrap encrypts plaintext under the transit key named by kek.URI.
func (s *Store) Wrap(ctx context.Context, kek policy.KeyEncryptionKeyMetadata, plaintext []byte) ([]byte, error) {
	path := fmt.Sprintf("%s/encrypt/%s", s.mountPath, kek.URI)
	secret, err := s.logical.WriteWithContext(ctx, path, map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
	})
	if err != nil || secret == nil {
		return nil, fmt.Errorf("vaulttransit: encrypt under %q: %w", kek.URI, fleerr.ErrWrapUnwrapFailure)
	}

	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok || ciphertext == "" {
		return nil, fmt.Errorf("vaulttransit: encrypt under %q: missing ciphertext in response: %w", kek.URI, fleerr.ErrWrapUnwrapFailure)
	}
	return []byte(ciphertext), nil
}

// Unwrap decrypts wrapped, which must have been produced by Wrap against
// the same transit key.
func (s *Store) Unwrap(ctx context.Context, kek policy.KeyEncryptionKeyMetadata, wrapped []byte) ([]byte, error) {
	path := fmt.Sprintf("%s/decrypt/%s", s.mountPath, kek.URI)
	secret, err := s.logical.WriteWithContext(ctx, path, map[string]interface{}{
		"ciphertext": string(wrapped),
	})
	if err != nil || secret == nil {
		return nil, fmt.Errorf("vaulttransit: decrypt under %q: %w", kek.URI, fleerr.ErrKeyUnwrapFailed)
	}

	encoded, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("vaulttransit: decrypt under %q: missing plaintext in response: %w", kek.URI, fleerr.ErrKeyUnwrapFailed)
	}

	plaintext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("vaulttransit: decrypt under %q: invalid base64 plaintext: %w", kek.URI, fleerr.ErrKeyUnwrapFailed)
	}
	return plaintext, nil
}
