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

// Package fleerr defines the sentinel error kinds returned across the
// encryption pipeline. Callers should compare with errors.Is against
// these sentinels rather than inspecting message text.
package fleerr

import "errors"

var (
	// ErrPolicyInvalid indicates a ClientEncryptionPolicy failed validation.
	ErrPolicyInvalid = errors.New("fleerr: client encryption policy invalid")

	// ErrUnsupportedValue indicates a value's JSON kind cannot be encrypted
	// under the canonical scalar codec (e.g. a raw array or object leaf
	// where the policy expects a scalar).
	ErrUnsupportedValue = errors.New("fleerr: unsupported value for encryption")

	// ErrKeyNotFound indicates the referenced client encryption key
	// properties could not be located via the metadata source.
	ErrKeyNotFound = errors.New("fleerr: client encryption key not found")

	// ErrAuthenticationFailure indicates the key vault rejected the
	// caller (HTTP 403), or the certificate client credential could not
	// be constructed. A failure to obtain a bearer token is
	// ErrAadUnavailable instead.
	ErrAuthenticationFailure = errors.New("fleerr: authentication failure")

	// ErrKeyUnwrapFailed indicates the master-key store rejected an unwrap
	// request for a wrapped data-encryption key.
	ErrKeyUnwrapFailed = errors.New("fleerr: key unwrap failed")

	// ErrAadUnavailable indicates Azure AD could not be reached to mint or
	// refresh a bearer token.
	ErrAadUnavailable = errors.New("fleerr: azure ad unavailable")

	// ErrKeyVaultServiceUnavailable indicates the key vault endpoint
	// could not be reached (a transport-level failure) or its circuit
	// breaker is open.
	ErrKeyVaultServiceUnavailable = errors.New("fleerr: key vault service unavailable")

	// ErrWrapUnwrapFailure is a catch-all for a master-key store rejecting
	// a wrap or unwrap call for a reason other than key-not-found or
	// authentication.
	ErrWrapUnwrapFailure = errors.New("fleerr: wrap/unwrap failure")

	// ErrCryptoIntegrity indicates a MAC/tag check failed during decrypt —
	// the ciphertext was tampered with, truncated, or encrypted under a
	// different key.
	ErrCryptoIntegrity = errors.New("fleerr: ciphertext integrity check failed")

	// ErrCancelled indicates the caller's context was cancelled or its
	// deadline exceeded mid-operation.
	ErrCancelled = errors.New("fleerr: operation cancelled")
)
