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

// Package policy defines the per-container client encryption policy and
// the key metadata it references. Types here are plain data; the
// validation logic enforces the path invariants spec'd for included
// paths.
package policy

import (
	"fmt"
	"strings"

	"github.com/vaultdoc/fle/pkg/fleerr"
)

// EncryptionType selects the AEAD IV strategy applied to a property.
type EncryptionType string

const (
	// Deterministic properties remain equality-queryable: identical
	// plaintexts encrypt to identical ciphertexts under the same key.
	Deterministic EncryptionType = "deterministic"
	// Randomized properties draw a fresh IV on every encryption.
	Randomized EncryptionType = "randomized"
)

// IncludedPath names one top-level property a ClientEncryptionPolicy
// covers, the key that protects it, and the mode used.
type IncludedPath struct {
	Path           string
	KeyID          string
	EncryptionType EncryptionType
	// Algorithm is informational only; the AEAD construction itself is
	// fixed (AES-256-CBC + HMAC-SHA-256).
	Algorithm string
}

// ClientEncryptionPolicy is the per-container list of included paths.
type ClientEncryptionPolicy struct {
	IncludedPaths []IncludedPath
}

// idPropertyPath is the document id property; it may never be an
// included path.
const idPropertyPath = "/id"

// Validate enforces the included-path invariants: each path must be
// non-empty, begin with a single leading slash, contain exactly one
// slash, and must not name the document id property.
func (p *ClientEncryptionPolicy) Validate() error {
	for _, ip := range p.IncludedPaths {
		if err := ip.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (ip IncludedPath) validate() error {
	if ip.Path == "" {
		return fmt.Errorf("policy: included path is empty: %w", fleerr.ErrPolicyInvalid)
	}
	if !strings.HasPrefix(ip.Path, "/") {
		return fmt.Errorf("policy: included path %q must start with %q: %w", ip.Path, "/", fleerr.ErrPolicyInvalid)
	}
	if strings.Count(ip.Path, "/") != 1 {
		return fmt.Errorf("policy: included path %q must contain exactly one %q: %w", ip.Path, "/", fleerr.ErrPolicyInvalid)
	}
	if ip.Path == idPropertyPath {
		return fmt.Errorf("policy: included path must not name the id property: %w", fleerr.ErrPolicyInvalid)
	}
	if ip.KeyID == "" {
		return fmt.Errorf("policy: included path %q has no key id: %w", ip.Path, fleerr.ErrPolicyInvalid)
	}
	switch ip.EncryptionType {
	case Deterministic, Randomized:
	default:
		return fmt.Errorf("policy: included path %q has unknown encryption type %q: %w", ip.Path, ip.EncryptionType, fleerr.ErrPolicyInvalid)
	}
	return nil
}

// PropertyName returns the bare property name of a validated included
// path, i.e. "/foo" -> "foo".
func (ip IncludedPath) PropertyName() string {
	return strings.TrimPrefix(ip.Path, "/")
}

// KeyEncryptionKeyMetadata locates the master key that wraps a data
// encryption key: a display name, the provider's URI, and a provider
// tag selecting which MasterKeyStore backend understands the URI.
type KeyEncryptionKeyMetadata struct {
	Name     string
	URI      string
	Provider string
}

// Provider tag values recognized by pkg/masterkey.New.
const (
	ProviderAzureKeyVault = "azure-keyvault"
	ProviderAWSKMS        = "aws-kms"
	ProviderGCPKMS        = "gcp-kms"
	ProviderVaultTransit  = "vault-transit"
)

// ClientEncryptionKeyProperties is the database-held metadata for a
// single client-encryption-key: its wrapped bytes, the wrapping
// algorithm name, and where to find the master key that unwraps it.
type ClientEncryptionKeyProperties struct {
	KeyID                     string
	WrappedDataEncryptionKey  []byte
	EncryptionKeyWrapMetadata KeyEncryptionKeyMetadata
	EncryptionAlgorithm       string
}
