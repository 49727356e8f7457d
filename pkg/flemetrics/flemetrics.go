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

// Package flemetrics holds the Prometheus metrics the encryption core
// registers: cache hit/miss and single-flight-join counters for the
// settings cache, a latency histogram and an outcome counter for
// key-vault requests, and hit/miss counters for the AAD token cache.
package flemetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every metric the encryption pipeline registers.
type Metrics struct {
	// SettingsCacheHitsTotal counts settings-cache lookups served from an
	// already-initialized entry.
	SettingsCacheHitsTotal prometheus.Counter
	// SettingsCacheMissesTotal counts lookups that required
	// initialization (first use, expiry, or invalidation).
	SettingsCacheMissesTotal prometheus.Counter
	// SettingsSingleflightJoinsTotal counts callers that joined an
	// in-flight initialization rather than starting their own.
	SettingsSingleflightJoinsTotal prometheus.Counter

	// KeyVaultRequestDuration tracks wrap/unwrap request latency by
	// operation.
	KeyVaultRequestDuration *prometheus.HistogramVec
	// KeyVaultRequestsTotal counts wrap/unwrap requests by operation and
	// outcome.
	KeyVaultRequestsTotal *prometheus.CounterVec

	// AADTokenCacheHitsTotal counts AAD token lookups served from cache.
	AADTokenCacheHitsTotal prometheus.Counter
	// AADTokenCacheMissesTotal counts AAD token lookups that required a
	// fresh client-credentials grant.
	AADTokenCacheMissesTotal prometheus.Counter
}

// New creates and registers every metric in Metrics against the default
// Prometheus registry.
func New() *Metrics {
	return &Metrics{
		SettingsCacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fle_settings_cache_hits_total",
			Help: "Number of encryption-settings cache lookups served from an initialized entry.",
		}),
		SettingsCacheMissesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fle_settings_cache_misses_total",
			Help: "Number of encryption-settings cache lookups that required (re-)initialization.",
		}),
		SettingsSingleflightJoinsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fle_settings_singleflight_joins_total",
			Help: "Number of callers that joined an in-flight settings entry initialization.",
		}),
		KeyVaultRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fle_keyvault_request_duration_seconds",
			Help:    "Key vault wrap/unwrap request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		KeyVaultRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fle_keyvault_requests_total",
			Help: "Key vault wrap/unwrap requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		AADTokenCacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fle_aad_token_cache_hits_total",
			Help: "Number of AAD token requests served from cache.",
		}),
		AADTokenCacheMissesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fle_aad_token_cache_misses_total",
			Help: "Number of AAD token requests that performed a fresh client-credentials grant.",
		}),
	}
}

// ObserveTokenCacheHit implements aadtoken.CacheObserver.
func (m *Metrics) ObserveTokenCacheHit() { m.AADTokenCacheHitsTotal.Inc() }

// ObserveTokenCacheMiss implements aadtoken.CacheObserver.
func (m *Metrics) ObserveTokenCacheMiss() { m.AADTokenCacheMissesTotal.Inc() }

// ObserveKeyVaultRequest implements keyvault.RequestObserver.
func (m *Metrics) ObserveKeyVaultRequest(operation, outcome string, seconds float64) {
	m.KeyVaultRequestsTotal.WithLabelValues(operation, outcome).Inc()
	m.KeyVaultRequestDuration.WithLabelValues(operation).Observe(seconds)
}

// ObserveSettingsCacheHit implements settings.CacheObserver.
func (m *Metrics) ObserveSettingsCacheHit() { m.SettingsCacheHitsTotal.Inc() }

// ObserveSettingsCacheMiss implements settings.CacheObserver.
func (m *Metrics) ObserveSettingsCacheMiss() { m.SettingsCacheMissesTotal.Inc() }

// ObserveSettingsSingleflightJoin implements settings.CacheObserver.
func (m *Metrics) ObserveSettingsSingleflightJoin() { m.SettingsSingleflightJoinsTotal.Inc() }
