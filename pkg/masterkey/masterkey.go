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

// Package masterkey selects the metadata.MasterKeyStore backend that
// understands a given key-encryption-key's provider tag, and adapts the
// Azure Key Vault wrap/unwrap client (which carries a canonical key URI
// that callers here don't need) to that interface.
package masterkey

import (
	"context"
	"fmt"

	"github.com/vaultdoc/fle/pkg/keyvault"
	"github.com/vaultdoc/fle/pkg/masterkey/awskms"
	"github.com/vaultdoc/fle/pkg/masterkey/gcpkms"
	"github.com/vaultdoc/fle/pkg/masterkey/vaulttransit"
	"github.com/vaultdoc/fle/pkg/metadata"
	"github.com/vaultdoc/fle/pkg/policy"
)

// Backends names the master-key-store implementations available to New.
// A nil field means that provider is not configured; New fails if the
// policy asks for one that isn't.
type Backends struct {
	AzureKeyVault *keyvault.Client
	AWSKMS        *awskms.Store
	GCPKMS        *gcpkms.Store
	VaultTransit  *vaulttransit.Store
}

// New returns the metadata.MasterKeyStore for provider, drawn from b.
func New(provider string, b Backends) (metadata.MasterKeyStore, error) {
	switch provider {
	case policy.ProviderAzureKeyVault:
		if b.AzureKeyVault == nil {
			return nil, fmt.Errorf("masterkey: provider %q requested but no Azure Key Vault client configured", provider)
		}
		return &azureKeyVaultAdapter{client: b.AzureKeyVault}, nil
	case policy.ProviderAWSKMS:
		if b.AWSKMS == nil {
			return nil, fmt.Errorf("masterkey: provider %q requested but no AWS KMS store configured", provider)
		}
		return b.AWSKMS, nil
	case policy.ProviderGCPKMS:
		if b.GCPKMS == nil {
			return nil, fmt.Errorf("masterkey: provider %q requested but no GCP KMS store configured", provider)
		}
		return b.GCPKMS, nil
	case policy.ProviderVaultTransit:
		if b.VaultTransit == nil {
			return nil, fmt.Errorf("masterkey: provider %q requested but no Vault transit store configured", provider)
		}
		return b.VaultTransit, nil
	default:
		return nil, fmt.Errorf("masterkey: unknown provider %q", provider)
	}
}

// azureKeyVaultAdapter narrows *keyvault.Client's (result, canonicalURI,
// error) wrap/unwrap signature to the two-return metadata.MasterKeyStore
// shape, dispatching on kek.URI.
type azureKeyVaultAdapter struct {
	client *keyvault.Client
}

func (a *azureKeyVaultAdapter) Wrap(ctx context.Context, kek policy.KeyEncryptionKeyMetadata, plaintext []byte) ([]byte, error) {
	wrapped, _, err := a.client.Wrap(ctx, kek.URI, plaintext)
	return wrapped, err
}

func (a *azureKeyVaultAdapter) Unwrap(ctx context.Context, kek policy.KeyEncryptionKeyMetadata, wrapped []byte) ([]byte, error) {
	plaintext, _, err := a.client.Unwrap(ctx, kek.URI, wrapped)
	return plaintext, err
}
