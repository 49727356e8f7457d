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

// Package fleconfig holds the external configuration surface for the
// encryption pipeline: HTTP and AAD retry tuning, the settings-cache
// TTL, and the key-vault API version.
package fleconfig

import (
	"fmt"
	"time"
)

// Options holds every tunable the encryption pipeline exposes to its
// host application.
type Options struct {
	// AADRetryInterval is the base backoff interval between AAD token
	// acquisition attempts.
	AADRetryInterval time.Duration
	// AADRetryCount is the maximum number of AAD token acquisition
	// attempts before surfacing AadUnavailable.
	AADRetryCount int

	// HTTPTimeout bounds every outbound key-vault HTTP request.
	HTTPTimeout time.Duration

	// SettingsTTL is the absolute expiry window applied to a freshly
	// initialized data-encryption-key cache entry.
	SettingsTTL time.Duration

	// APIVersion is the key-vault REST API version string sent with
	// every wrap/unwrap request.
	APIVersion string
}

// DefaultOptions returns Options with the pipeline's default tuning:
// up to three AAD token attempts with a one-second base backoff, a
// 60-second HTTP timeout, a 60-minute settings TTL, and key-vault API
// version "7.4".
func DefaultOptions() Options {
	return Options{
		AADRetryInterval: time.Second,
		AADRetryCount:    3,
		HTTPTimeout:      60 * time.Second,
		SettingsTTL:      60 * time.Minute,
		APIVersion:       "7.4",
	}
}

// Validate rejects non-positive durations and counts that would leave a
// collaborator permanently unable to make progress.
func (o Options) Validate() error {
	if o.AADRetryInterval <= 0 {
		return fmt.Errorf("fleconfig: aad retry interval must be positive")
	}
	if o.AADRetryCount <= 0 {
		return fmt.Errorf("fleconfig: aad retry count must be positive")
	}
	if o.HTTPTimeout <= 0 {
		return fmt.Errorf("fleconfig: http timeout must be positive")
	}
	if o.SettingsTTL <= 0 {
		return fmt.Errorf("fleconfig: settings ttl must be positive")
	}
	if o.APIVersion == "" {
		return fmt.Errorf("fleconfig: api version must not be empty")
	}
	return nil
}
