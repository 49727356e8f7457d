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

// Package awskms implements the metadata.MasterKeyStore backend for
// customer master keys held in AWS Key Management Service. Unlike an
// envelope-encryption provider, it wraps and unwraps the caller's
// data-encryption-key bytes directly against one CMK.
package awskms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/vaultdoc/fle/pkg/fleerr"
	"github.com/vaultdoc/fle/pkg/policy"
)

// client abstracts the AWS KMS operations this package uses, so tests
// can inject a fake without touching the network.
type client interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Store wraps and unwraps data-encryption keys under AWS KMS customer
// master keys named by policy.KeyEncryptionKeyMetadata.URI (a key ID or
// ARN).
type Store struct {
	client client
}

// Config selects the AWS region and, optionally, static credentials.
// When AccessKeyID/SecretAccessKey are empty, New falls back to the
// default AWS credential chain.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// New loads an AWS SDK config and constructs a Store backed by a real
// KMS client.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("awskms: region is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("awskms: load aws config: %w", err)
	}

	return &Store{client: kms.NewFromConfig(awsCfg)}, nil
}

// newWithClient constructs a Store around an injected client, for tests.
func newWithClient(c client) *Store {
	return &Store{client: c}
}

// Wrap encrypts plaintext under the CMK named by kek.URI.
func (s *Store) Wrap(ctx context.Context, kek policy.KeyEncryptionKeyMetadata, plaintext []byte) ([]byte, error) {
	out, err := s.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(kek.URI),
		Plaintext: plaintext,
	})
	if err != nil {
		return nil, fmt.Errorf("awskms: encrypt under %q: %w", kek.URI, fleerr.ErrWrapUnwrapFailure)
	}
	return out.CiphertextBlob, nil
}

// Unwrap decrypts wrapped, which must have been produced by Wrap against
// the same CMK.
func (s *Store) Unwrap(ctx context.Context, kek policy.KeyEncryptionKeyMetadata, wrapped []byte) ([]byte, error) {
	out, err := s.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: wrapped,
		KeyId:          aws.String(kek.URI),
	})
	if err != nil {
		return nil, fmt.Errorf("awskms: decrypt under %q: %w", kek.URI, fleerr.ErrKeyUnwrapFailed)
	}
	return out.Plaintext, nil
}
