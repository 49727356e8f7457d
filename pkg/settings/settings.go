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

// Package settings implements the per-container encryption-settings
// cache: a TTL-bounded, single-flight-initialized table of unwrapped
// data-encryption keys, keyed by key ID, with property-name settings
// layered on top.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vaultdoc/fle/pkg/aead"
	"github.com/vaultdoc/fle/pkg/fleerr"
	"github.com/vaultdoc/fle/pkg/metadata"
	"github.com/vaultdoc/fle/pkg/policy"
)

// DefaultTTL is the absolute expiry window applied to a freshly
// initialized data-encryption-key entry.
const DefaultTTL = 60 * time.Minute

// Setting is the runtime binding of a property name to a data-
// encryption-key entry and the encryption mode to use with it.
type Setting struct {
	PropertyName   string
	EncryptionType policy.EncryptionType
	entry          *dekEntry
}

// Key returns the initialized AEAD key schedule for this setting. The
// entry is guaranteed initialized by the time a Setting is handed to a
// caller.
func (s Setting) Key() *aead.Key { return s.entry.key }

// dekEntry is keyed by data-encryption-key identifier. It is created on
// first use and refreshed on expiry, on Forbidden from the master-key
// store, or on explicit invalidation.
type dekEntry struct {
	key       *aead.Key
	expiresAt time.Time
}

// CacheObserver receives cache hit/miss and single-flight-join counts.
// *flemetrics.Metrics satisfies this interface; it is nil-safe to omit.
type CacheObserver interface {
	ObserveSettingsCacheHit()
	ObserveSettingsCacheMiss()
	ObserveSettingsSingleflightJoin()
}

// Cache is a per-container (per-processor-instance) cache of data-
// encryption-key entries and the property settings derived from them.
type Cache struct {
	metadataSource metadata.DatabaseMetadataSource
	masterKeyStore metadata.MasterKeyStore
	container      string
	ttl            time.Duration
	metrics        CacheObserver

	sf singleflight.Group

	mu      sync.Mutex
	entries map[string]*dekEntry // keyed by data-encryption-key id
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithObserver wires a CacheObserver (typically *flemetrics.Metrics) to
// report hits, misses, and single-flight joins.
func WithObserver(obs CacheObserver) Option {
	return func(c *Cache) { c.metrics = obs }
}

// New constructs a Cache for one container.
func New(container string, metadataSource metadata.DatabaseMetadataSource, masterKeyStore metadata.MasterKeyStore, opts ...Option) *Cache {
	c := &Cache{
		metadataSource: metadataSource,
		masterKeyStore: masterKeyStore,
		container:      container,
		ttl:            DefaultTTL,
		entries:        make(map[string]*dekEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InitEncryptionSettings bootstraps every distinct key ID referenced by
// p before returning, so no per-property Setting is ever published
// against an uninitialized entry.
func (c *Cache) InitEncryptionSettings(ctx context.Context, p *policy.ClientEncryptionPolicy) (map[string]Setting, error) {
	out := make(map[string]Setting, len(p.IncludedPaths))
	for _, ip := range p.IncludedPaths {
		entry, err := c.entryFor(ctx, ip.KeyID, false)
		if err != nil {
			return nil, err
		}
		out[ip.PropertyName()] = Setting{
			PropertyName:   ip.PropertyName(),
			EncryptionType: ip.EncryptionType,
			entry:          entry,
		}
	}
	return out, nil
}

// Invalidate removes the entry for keyID; the next use reinitializes it.
func (c *Cache) Invalidate(keyID string) {
	c.mu.Lock()
	delete(c.entries, keyID)
	c.mu.Unlock()
}

// entryFor returns a ready-to-use entry for keyID, via single-flighted
// (re-)initialization if necessary.
func (c *Cache) entryFor(ctx context.Context, keyID string, forceRefresh bool) (*dekEntry, error) {
	if !forceRefresh {
		c.mu.Lock()
		entry, ok := c.entries[keyID]
		c.mu.Unlock()
		if ok && time.Now().Before(entry.expiresAt) {
			c.observeHit()
			return entry, nil
		}
	}
	c.observeMiss()

	v, err, shared := c.sf.Do(keyID, func() (interface{}, error) {
		if !forceRefresh {
			c.mu.Lock()
			entry, ok := c.entries[keyID]
			c.mu.Unlock()
			if ok && time.Now().Before(entry.expiresAt) {
				return entry, nil
			}
		}
		return c.initEntry(ctx, keyID, forceRefresh)
	})
	if shared {
		c.observeSingleflightJoin()
	}
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("settings: %w: %w", fleerr.ErrCancelled, ctx.Err())
	}
	return v.(*dekEntry), nil
}

// initEntry fetches key properties, unwraps the DEK, and derives the
// local AEAD key schedule. On Forbidden from the master-key store it
// re-fetches key properties with force_refresh=true and retries unwrap
// once; a second failure is KeyUnwrapFailed.
func (c *Cache) initEntry(ctx context.Context, keyID string, forceRefreshProps bool) (*dekEntry, error) {
	props, err := c.metadataSource.GetClientEncryptionKeyProperties(ctx, c.container, keyID, forceRefreshProps)
	if err != nil {
		return nil, fmt.Errorf("settings: fetch key properties for %q: %w", keyID, err)
	}

	raw, unwrapErr := c.masterKeyStore.Unwrap(ctx, props.EncryptionKeyWrapMetadata, props.WrappedDataEncryptionKey)
	if unwrapErr != nil {
		if !forceRefreshProps && isForbidden(unwrapErr) {
			return c.retryAfterForbidden(ctx, keyID)
		}
		return nil, fmt.Errorf("settings: unwrap dek for %q: %w", keyID, fleerr.ErrKeyUnwrapFailed)
	}

	key, err := aead.DeriveKey(raw)
	for i := range raw {
		raw[i] = 0
	}
	if err != nil {
		return nil, fmt.Errorf("settings: derive key schedule for %q: %w", keyID, err)
	}

	if ctx.Err() != nil {
		key.Zero()
		return nil, fmt.Errorf("settings: %w: %w", fleerr.ErrCancelled, ctx.Err())
	}

	entry := &dekEntry{key: key, expiresAt: time.Now().Add(c.ttl)}

	c.mu.Lock()
	if old, ok := c.entries[keyID]; ok && old.key != nil {
		old.key.Zero()
	}
	c.entries[keyID] = entry
	c.mu.Unlock()

	return entry, nil
}

func (c *Cache) retryAfterForbidden(ctx context.Context, keyID string) (*dekEntry, error) {
	entry, err := c.initEntry(ctx, keyID, true)
	if err != nil {
		return nil, fmt.Errorf("settings: retry after forbidden for %q: %w", keyID, fleerr.ErrKeyUnwrapFailed)
	}
	return entry, nil
}

func isForbidden(err error) bool {
	return errors.Is(err, fleerr.ErrAuthenticationFailure)
}

func (c *Cache) observeHit() {
	if c.metrics != nil {
		c.metrics.ObserveSettingsCacheHit()
	}
}

func (c *Cache) observeMiss() {
	if c.metrics != nil {
		c.metrics.ObserveSettingsCacheMiss()
	}
}

func (c *Cache) observeSingleflightJoin() {
	if c.metrics != nil {
		c.metrics.ObserveSettingsSingleflightJoin()
	}
}
