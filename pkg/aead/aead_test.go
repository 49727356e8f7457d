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

package aead

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultdoc/fle/pkg/fleerr"
)

func randomKeyBytes(t *testing.T) []byte {
	t.Helper()
	raw := make([]byte, 32)
	_, err := rand.Read(raw)
	require.NoError(t, err)
	return raw
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	k, err := DeriveKey(randomKeyBytes(t))
	require.NoError(t, err)

	for _, strategy := range []IVStrategy{IVDeterministic, IVRandom} {
		plaintext := []byte("the quick brown fox jumps over the lazy dog")
		ct, err := k.Encrypt(strategy, plaintext)
		require.NoError(t, err)

		pt, err := k.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, plaintext, pt)
	}
}

func TestDeterministicIVIsStable(t *testing.T) {
	k, err := DeriveKey(randomKeyBytes(t))
	require.NoError(t, err)

	plaintext := []byte("repeatable-value")
	ct1, err := k.Encrypt(IVDeterministic, plaintext)
	require.NoError(t, err)
	ct2, err := k.Encrypt(IVDeterministic, plaintext)
	require.NoError(t, err)

	assert.Equal(t, ct1, ct2, "deterministic mode must yield identical ciphertext for identical plaintext")
}

func TestRandomIVVaries(t *testing.T) {
	k, err := DeriveKey(randomKeyBytes(t))
	require.NoError(t, err)

	plaintext := []byte("repeatable-value")
	ct1, err := k.Encrypt(IVRandom, plaintext)
	require.NoError(t, err)
	ct2, err := k.Encrypt(IVRandom, plaintext)
	require.NoError(t, err)

	assert.NotEqual(t, ct1, ct2, "randomized mode must not repeat ciphertext for identical plaintext")
}

func TestDecryptDetectsTampering(t *testing.T) {
	k, err := DeriveKey(randomKeyBytes(t))
	require.NoError(t, err)

	ct, err := k.Encrypt(IVRandom, []byte("sensitive"))
	require.NoError(t, err)

	tampered := bytes.Clone(ct)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = k.Decrypt(tampered)
	assert.ErrorIs(t, err, fleerr.ErrCryptoIntegrity)
}

func TestDecryptRejectsUnknownVersion(t *testing.T) {
	k, err := DeriveKey(randomKeyBytes(t))
	require.NoError(t, err)

	ct, err := k.Encrypt(IVRandom, []byte("sensitive"))
	require.NoError(t, err)

	tampered := bytes.Clone(ct)
	tampered[0] = 0xFF

	_, err = k.Decrypt(tampered)
	assert.ErrorIs(t, err, fleerr.ErrCryptoIntegrity)
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	k, err := DeriveKey(randomKeyBytes(t))
	require.NoError(t, err)

	_, err = k.Decrypt([]byte{1, 2, 3})
	assert.ErrorIs(t, err, fleerr.ErrCryptoIntegrity)
}

func TestDifferentKeysProduceDifferentSchedules(t *testing.T) {
	k1, err := DeriveKey(randomKeyBytes(t))
	require.NoError(t, err)
	k2, err := DeriveKey(randomKeyBytes(t))
	require.NoError(t, err)

	plaintext := []byte("cross-key-check")
	ct, err := k1.Encrypt(IVDeterministic, plaintext)
	require.NoError(t, err)

	_, err = k2.Decrypt(ct)
	assert.ErrorIs(t, err, fleerr.ErrCryptoIntegrity)
}

func TestEmptyKeyMaterialRejected(t *testing.T) {
	_, err := DeriveKey(nil)
	assert.Error(t, err)
}
