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

// Package aead implements the AES-256-CBC + HMAC-SHA-256 encrypt-then-MAC
// primitive used to seal individual property values. It has no awareness
// of JSON or type markers — callers hand it opaque plaintext bytes.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/vaultdoc/fle/pkg/fleerr"
)

// IVStrategy selects how the initialization vector for a ciphertext is
// derived.
type IVStrategy int

const (
	// IVDeterministic derives the IV from an HMAC over the plaintext, so
	// identical plaintexts under the same key yield identical ciphertexts.
	// Used for properties that must remain equality-queryable.
	IVDeterministic IVStrategy = iota
	// IVRandom draws the IV from a cryptographically strong source on
	// every call.
	IVRandom
)

const (
	algorithmVersion byte = 1

	keySize = 32 // AES-256 key size and HMAC-SHA-256 output size.
	ivSize  = aes.BlockSize
	tagSize = sha256.Size

	// Header is version || iv; trailer is the HMAC tag.
	headerSize = 1 + ivSize
)

// Key holds the three independent sub-keys derived from a single raw
// data-encryption key via HKDF-SHA256: one for AES-CBC encryption, one
// for the HMAC tag, and one used as the deterministic-IV derivation key.
type Key struct {
	encKey []byte
	macKey []byte
	ivKey  []byte
}

// DeriveKey runs HKDF-SHA256 over raw (the unwrapped data-encryption key)
// with three distinct info labels, producing the protected key schedule
// used by Encrypt/Decrypt.
func DeriveKey(raw []byte) (*Key, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("aead: empty key material")
	}

	encKey, err := hkdfExpand(raw, "fle-enc")
	if err != nil {
		return nil, err
	}
	macKey, err := hkdfExpand(raw, "fle-mac")
	if err != nil {
		return nil, err
	}
	ivKey, err := hkdfExpand(raw, "fle-iv")
	if err != nil {
		return nil, err
	}

	return &Key{encKey: encKey, macKey: macKey, ivKey: ivKey}, nil
}

func hkdfExpand(raw []byte, info string) ([]byte, error) {
	reader := hkdf.New(sha256.New, raw, nil, []byte(info))
	out := make([]byte, keySize)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, fmt.Errorf("aead: hkdf expand %q: %w", info, err)
	}
	return out, nil
}

// Encrypt seals plaintext under k, producing
// version(1) || iv(16) || enc(plaintext) || tag(32).
func (k *Key) Encrypt(strategy IVStrategy, plaintext []byte) ([]byte, error) {
	iv, err := k.deriveIV(strategy, plaintext)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(k.encKey)
	if err != nil {
		return nil, fmt.Errorf("aead: new cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	enc := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(enc, padded)

	out := make([]byte, 0, headerSize+len(enc)+tagSize)
	out = append(out, algorithmVersion)
	out = append(out, iv...)
	out = append(out, enc...)

	mac := k.computeTag(out)
	out = append(out, mac...)

	return out, nil
}

// Decrypt opens ciphertext produced by Encrypt, validating the version
// byte and the MAC tag in constant time before decrypting.
func (k *Key) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < headerSize+tagSize {
		return nil, fmt.Errorf("aead: ciphertext too short: %w", fleerr.ErrCryptoIntegrity)
	}

	body := ciphertext[:len(ciphertext)-tagSize]
	wantTag := ciphertext[len(ciphertext)-tagSize:]

	if body[0] != algorithmVersion {
		return nil, fmt.Errorf("aead: unsupported algorithm version %d: %w", body[0], fleerr.ErrCryptoIntegrity)
	}

	gotTag := k.computeTag(body)
	if subtle.ConstantTimeCompare(gotTag, wantTag) != 1 {
		return nil, fmt.Errorf("aead: mac mismatch: %w", fleerr.ErrCryptoIntegrity)
	}

	iv := body[1:headerSize]
	enc := body[headerSize:]
	if len(enc) == 0 || len(enc)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("aead: invalid ciphertext length: %w", fleerr.ErrCryptoIntegrity)
	}

	block, err := aes.NewCipher(k.encKey)
	if err != nil {
		return nil, fmt.Errorf("aead: new cipher: %w", err)
	}

	padded := make([]byte, len(enc))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, enc)

	plaintext, err := pkcs7Unpad(padded)
	if err != nil {
		return nil, fmt.Errorf("aead: unpad: %w: %w", err, fleerr.ErrCryptoIntegrity)
	}
	return plaintext, nil
}

// Zero overwrites all three sub-keys with zero bytes. Callers must not
// use k after calling Zero.
func (k *Key) Zero() {
	zero(k.encKey)
	zero(k.macKey)
	zero(k.ivKey)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func (k *Key) computeTag(data []byte) []byte {
	mac := hmac.New(sha256.New, k.macKey)
	mac.Write(data)
	return mac.Sum(nil)
}

func (k *Key) deriveIV(strategy IVStrategy, plaintext []byte) ([]byte, error) {
	switch strategy {
	case IVDeterministic:
		mac := hmac.New(sha256.New, k.ivKey)
		mac.Write(plaintext)
		return mac.Sum(nil)[:ivSize], nil
	case IVRandom:
		iv := make([]byte, ivSize)
		if _, err := rand.Read(iv); err != nil {
			return nil, fmt.Errorf("aead: read random iv: %w", err)
		}
		return iv, nil
	default:
		return nil, fmt.Errorf("aead: unknown iv strategy %d", strategy)
	}
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty padded data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > aes.BlockSize {
		return nil, fmt.Errorf("invalid padding length %d", padLen)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("invalid padding byte")
		}
	}
	return data[:len(data)-padLen], nil
}
