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

package memstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultdoc/fle/pkg/policy"
)

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o600)
}

const testDocument = `
containers:
  orders:
    includedPaths:
      - path: /ssn
        keyId: key1
        encryptionType: deterministic
    keys:
      key1:
        keyId: key1
        wrappedDataEncryptionKey: ZmFrZS13cmFwcGVkLWRlaw==
        encryptionAlgorithm: RSA-OAEP
        encryptionKeyWrapMetadata:
          name: cmk1
          uri: https://example.vault.azure.net/keys/cmk1
          provider: azure-keyvault
`

func writeTestDoc(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.yaml")
	require.NoError(t, writeFile(path, testDocument))
	return path
}

func TestLoadAndGetClientEncryptionPolicy(t *testing.T) {
	path := writeTestDoc(t)
	s, err := Load(path)
	require.NoError(t, err)

	pol, err := s.GetClientEncryptionPolicy(context.Background(), "orders", false)
	require.NoError(t, err)
	require.Len(t, pol.IncludedPaths, 1)
	assert.Equal(t, "/ssn", pol.IncludedPaths[0].Path)
	assert.Equal(t, policy.Deterministic, pol.IncludedPaths[0].EncryptionType)
}

func TestGetClientEncryptionPolicyUnknownContainerIsEmpty(t *testing.T) {
	path := writeTestDoc(t)
	s, err := Load(path)
	require.NoError(t, err)

	pol, err := s.GetClientEncryptionPolicy(context.Background(), "missing", false)
	require.NoError(t, err)
	assert.Empty(t, pol.IncludedPaths)
}

func TestGetClientEncryptionKeyProperties(t *testing.T) {
	path := writeTestDoc(t)
	s, err := Load(path)
	require.NoError(t, err)

	props, err := s.GetClientEncryptionKeyProperties(context.Background(), "orders", "key1", false)
	require.NoError(t, err)
	assert.Equal(t, "fake-wrapped-dek", string(props.WrappedDataEncryptionKey))
	assert.Equal(t, policy.ProviderAzureKeyVault, props.EncryptionKeyWrapMetadata.Provider)
}

func TestGetClientEncryptionKeyPropertiesUnknownKeyFails(t *testing.T) {
	path := writeTestDoc(t)
	s, err := Load(path)
	require.NoError(t, err)

	_, err = s.GetClientEncryptionKeyProperties(context.Background(), "orders", "missing", false)
	assert.Error(t, err)
}
