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

package awskms

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultdoc/fle/pkg/fleerr"
	"github.com/vaultdoc/fle/pkg/policy"
)

type fakeClient struct {
	wrapped map[string][]byte // ciphertext (keyed by stringified plaintext) -> original plaintext
	failAll bool
}

func (f *fakeClient) Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error) {
	if f.failAll {
		return nil, fmt.Errorf("kms unavailable")
	}
	ct := append([]byte("ct:"), params.Plaintext...)
	return &kms.EncryptOutput{CiphertextBlob: ct, KeyId: params.KeyId}, nil
}

func (f *fakeClient) Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	if f.failAll {
		return nil, fmt.Errorf("kms unavailable")
	}
	if len(params.CiphertextBlob) < 3 {
		return nil, fmt.Errorf("malformed ciphertext")
	}
	return &kms.DecryptOutput{Plaintext: params.CiphertextBlob[3:], KeyId: params.KeyId}, nil
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	s := newWithClient(&fakeClient{})
	kek := policy.KeyEncryptionKeyMetadata{URI: "arn:aws:kms:us-east-1:123:key/abc"}

	wrapped, err := s.Wrap(context.Background(), kek, []byte("dek-bytes"))
	require.NoError(t, err)

	plaintext, err := s.Unwrap(context.Background(), kek, wrapped)
	require.NoError(t, err)
	assert.Equal(t, []byte("dek-bytes"), plaintext)
}

func TestWrapSurfacesWrapUnwrapFailure(t *testing.T) {
	s := newWithClient(&fakeClient{failAll: true})
	kek := policy.KeyEncryptionKeyMetadata{URI: "arn:aws:kms:us-east-1:123:key/abc"}

	_, err := s.Wrap(context.Background(), kek, []byte("dek-bytes"))
	assert.ErrorIs(t, err, fleerr.ErrWrapUnwrapFailure)
}

func TestUnwrapSurfacesKeyUnwrapFailed(t *testing.T) {
	s := newWithClient(&fakeClient{failAll: true})
	kek := policy.KeyEncryptionKeyMetadata{URI: "arn:aws:kms:us-east-1:123:key/abc"}

	_, err := s.Unwrap(context.Background(), kek, []byte("ct:x"))
	assert.ErrorIs(t, err, fleerr.ErrKeyUnwrapFailed)
}

func TestNewRequiresRegion(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}
