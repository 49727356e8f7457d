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

// Package metadata defines the two collaborator interfaces the
// encryption core reaches outside itself through: a document-database
// metadata source and a master-key store. Neither interface is
// implemented here — pkg/keyvault and pkg/masterkey provide concrete
// backends, and callers may supply their own.
package metadata

import (
	"context"

	"github.com/vaultdoc/fle/pkg/policy"
)

// DatabaseMetadataSource supplies per-container encryption policies and
// per-key properties from the document database. forceRefresh bypasses
// any cache the implementation keeps, used after a stale-policy or
// stale-key-properties failure.
type DatabaseMetadataSource interface {
	GetClientEncryptionPolicy(ctx context.Context, container string, forceRefresh bool) (*policy.ClientEncryptionPolicy, error)
	GetClientEncryptionKeyProperties(ctx context.Context, container, keyID string, forceRefresh bool) (*policy.ClientEncryptionKeyProperties, error)
}

// MasterKeyStore unwraps and wraps raw data-encryption-key bytes under a
// configured customer master key. Implementations typically call out to
// a cloud key vault or HSM.
type MasterKeyStore interface {
	Unwrap(ctx context.Context, kek policy.KeyEncryptionKeyMetadata, wrapped []byte) ([]byte, error)
	Wrap(ctx context.Context, kek policy.KeyEncryptionKeyMetadata, plaintext []byte) ([]byte, error)
}
