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

// Package gcpkms implements the metadata.MasterKeyStore backend for
// customer master keys held in Google Cloud KMS.
package gcpkms

import (
	"context"
	"fmt"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"google.golang.org/api/option"

	"github.com/vaultdoc/fle/pkg/fleerr"
	"github.com/vaultdoc/fle/pkg/policy"
)

// client abstracts the Cloud KMS operations this package uses.
type client interface {
	Encrypt(ctx context.Context, req *kmspb.EncryptRequest, opts ...interface{}) (*kmspb.EncryptResponse, error)
	Decrypt(ctx context.Context, req *kmspb.DecryptRequest, opts ...interface{}) (*kmspb.DecryptResponse, error)
	Close() error
}

// realClient adapts *kms.KeyManagementClient to client, dropping the
// variadic gax.CallOption parameter this package never sets.
type realClient struct {
	inner *kms.KeyManagementClient
}

func (r *realClient) Encrypt(ctx context.Context, req *kmspb.EncryptRequest, _ ...interface{}) (*kmspb.EncryptResponse, error) {
	return r.inner.Encrypt(ctx, req)
}

func (r *realClient) Decrypt(ctx context.Context, req *kmspb.DecryptRequest, _ ...interface{}) (*kmspb.DecryptResponse, error) {
	return r.inner.Decrypt(ctx, req)
}

func (r *realClient) Close() error { return r.inner.Close() }

// Store wraps and unwraps data-encryption keys under a Cloud KMS
// CryptoKey named by policy.KeyEncryptionKeyMetadata.URI (a full
// "projects/.../cryptoKeys/..." resource name).
type Store struct {
	client client
}

// Config optionally carries a service-account JSON credential blob; when
// empty, New falls back to Application Default Credentials.
type Config struct {
	CredentialsJSON []byte
}

// New constructs a Store backed by a real Cloud KMS client.
func New(ctx context.Context, cfg Config) (*Store, error) {
	var opts []option.ClientOption
	if len(cfg.CredentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(cfg.CredentialsJSON))
	}

	inner, err := kms.NewKeyManagementClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcpkms: create client: %w", err)
	}

	return &Store{client: &realClient{inner: inner}}, nil
}

func newWithClient(c client) *Store {
	return &Store{client: c}
}

// Close releases the underlying Cloud KMS client connection.
func (s *Store) Close() error { return s.client.Close() }

// Wrap encrypts plaintext under the CryptoKey named by kek.URI.
func (s *Store) Wrap(ctx context.Context, kek policy.KeyEncryptionKeyMetadata, plaintext []byte) ([]byte, error) {
	resp, err := s.client.Encrypt(ctx, &kmspb.EncryptRequest{
		Name:      kek.URI,
		Plaintext: plaintext,
	})
	if err != nil {
		return nil, fmt.Errorf("gcpkms: encrypt under %q: %w", kek.URI, fleerr.ErrWrapUnwrapFailure)
	}
	return resp.Ciphertext, nil
}

// Unwrap decrypts wrapped, which must have been produced by Wrap against
// the same CryptoKey.
func (s *Store) Unwrap(ctx context.Context, kek policy.KeyEncryptionKeyMetadata, wrapped []byte) ([]byte, error) {
	resp, err := s.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:       kek.URI,
		Ciphertext: wrapped,
	})
	if err != nil {
		return nil, fmt.Errorf("gcpkms: decrypt under %q: %w", kek.URI, fleerr.ErrKeyUnwrapFailed)
	}
	return resp.Plaintext, nil
}
