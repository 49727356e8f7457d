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

// Package memstore implements a file-backed metadata.DatabaseMetadataSource
// for standalone use of the encryption pipeline (the demo binary, local
// integration tests) where no live document-database control plane is
// available. Container encryption policies and key properties are read
// from one YAML document projected onto disk, the way the rest of this
// codebase reads ConfigMap-mounted configuration.
package memstore

import (
	"context"
	"fmt"
	"os"
	"sync"

	"sigs.k8s.io/yaml"

	"github.com/vaultdoc/fle/pkg/policy"
)

// keyPropertiesYAML mirrors policy.ClientEncryptionKeyProperties with
// base64-friendly YAML field names.
type keyPropertiesYAML struct {
	KeyID                     string `json:"keyId"`
	WrappedDataEncryptionKey  []byte `json:"wrappedDataEncryptionKey"` // sigs.k8s.io/yaml base64-decodes []byte fields
	EncryptionAlgorithm       string `json:"encryptionAlgorithm"`
	EncryptionKeyWrapMetadata struct {
		Name     string `json:"name"`
		URI      string `json:"uri"`
		Provider string `json:"provider"`
	} `json:"encryptionKeyWrapMetadata"`
}

type includedPathYAML struct {
	Path           string `json:"path"`
	KeyID          string `json:"keyId"`
	EncryptionType string `json:"encryptionType"`
	Algorithm      string `json:"algorithm,omitempty"`
}

type containerYAML struct {
	IncludedPaths []includedPathYAML           `json:"includedPaths"`
	Keys          map[string]keyPropertiesYAML `json:"keys"`
}

type documentYAML struct {
	Containers map[string]containerYAML `json:"containers"`
}

// Store is a read-only, in-memory metadata.DatabaseMetadataSource loaded
// once from a YAML file.
type Store struct {
	mu         sync.RWMutex
	containers map[string]containerYAML
}

// Load reads and parses the metadata document at path.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("memstore: read %q: %w", path, err)
	}

	var doc documentYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("memstore: parse %q: %w", path, err)
	}

	return &Store{containers: doc.Containers}, nil
}

// GetClientEncryptionPolicy implements metadata.DatabaseMetadataSource.
// forceRefresh is accepted for interface compatibility; this store never
// caches stale data since it is loaded once and held immutable.
func (s *Store) GetClientEncryptionPolicy(ctx context.Context, container string, forceRefresh bool) (*policy.ClientEncryptionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.containers[container]
	if !ok {
		return &policy.ClientEncryptionPolicy{}, nil
	}

	out := &policy.ClientEncryptionPolicy{IncludedPaths: make([]policy.IncludedPath, 0, len(c.IncludedPaths))}
	for _, ip := range c.IncludedPaths {
		out.IncludedPaths = append(out.IncludedPaths, policy.IncludedPath{
			Path:           ip.Path,
			KeyID:          ip.KeyID,
			EncryptionType: policy.EncryptionType(ip.EncryptionType),
			Algorithm:      ip.Algorithm,
		})
	}
	return out, nil
}

// GetClientEncryptionKeyProperties implements metadata.DatabaseMetadataSource.
func (s *Store) GetClientEncryptionKeyProperties(ctx context.Context, container, keyID string, forceRefresh bool) (*policy.ClientEncryptionKeyProperties, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.containers[container]
	if !ok {
		return nil, fmt.Errorf("memstore: unknown container %q", container)
	}
	k, ok := c.Keys[keyID]
	if !ok {
		return nil, fmt.Errorf("memstore: unknown key %q in container %q", keyID, container)
	}

	return &policy.ClientEncryptionKeyProperties{
		KeyID:                    k.KeyID,
		WrappedDataEncryptionKey: k.WrappedDataEncryptionKey,
		EncryptionAlgorithm:      k.EncryptionAlgorithm,
		EncryptionKeyWrapMetadata: policy.KeyEncryptionKeyMetadata{
			Name:     k.EncryptionKeyWrapMetadata.Name,
			URI:      k.EncryptionKeyWrapMetadata.URI,
			Provider: k.EncryptionKeyWrapMetadata.Provider,
		},
	}, nil
}
