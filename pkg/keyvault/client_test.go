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

package keyvault

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultdoc/fle/internal/retry"
	"github.com/vaultdoc/fle/pkg/fleerr"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c := New(CredentialConfig{TenantID: "fallback-tenant", ClientID: "client-id"},
		WithRetryPolicy(retry.Policy{MaxAttempts: 2, Interval: time.Millisecond}),
	)
	return c
}

func TestDiscoverAuthorityParsesChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Bearer authorization="https://login.microsoftonline.com/tenant-guid", resource="https://vault.azure.net"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t)
	auth, resource, err := c.discoverAuthority(context.Background(), srv.URL+"/keys/mykey")
	require.NoError(t, err)
	assert.Equal(t, "https://login.microsoftonline.com/tenant-guid", auth)
	assert.Equal(t, "https://vault.azure.net", resource)
}

func TestDiscoverAuthorityRejectsNon401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t)
	_, _, err := c.discoverAuthority(context.Background(), srv.URL+"/keys/mykey")
	assert.ErrorIs(t, err, fleerr.ErrAadUnavailable)
}

func TestDoAuthenticatedMapsStatusCodes(t *testing.T) {
	cases := []struct {
		status  int
		wantErr error
	}{
		{http.StatusOK, nil},
		{http.StatusBadRequest, fleerr.ErrWrapUnwrapFailure},
		{http.StatusForbidden, fleerr.ErrAuthenticationFailure},
		{http.StatusNotFound, fleerr.ErrKeyNotFound},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			w.Write([]byte(`{}`))
		}))

		c := newTestClient(t)
		_, err := c.doAuthenticated(context.Background(), http.MethodPost, srv.URL, []byte(`{}`), "tok")
		if tc.wantErr == nil {
			assert.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, tc.wantErr, "status %d", tc.status)
		}
		srv.Close()
	}
}

func TestDoAuthenticatedRetriesTransportFailureThenGivesUp(t *testing.T) {
	c := New(CredentialConfig{TenantID: "fallback", ClientID: "client"},
		WithRetryPolicy(retry.Policy{MaxAttempts: 2, Interval: time.Millisecond}),
	)
	// Port 1 on localhost with no listener: connection refused every time.
	_, err := c.doAuthenticated(context.Background(), http.MethodPost, "http://127.0.0.1:1/", []byte(`{}`), "tok")
	assert.ErrorIs(t, err, fleerr.ErrKeyVaultServiceUnavailable)
}

func TestDoAuthenticatedSendsCorrelationHeaderAndBearer(t *testing.T) {
	var gotAuth, gotCorrelation string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCorrelation = r.Header.Get(correlationHeader)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t)
	_, err := c.doAuthenticated(context.Background(), http.MethodPost, srv.URL, []byte(`{}`), "my-token")
	require.NoError(t, err)
	assert.Equal(t, "Bearer my-token", gotAuth)
	assert.NotEmpty(t, gotCorrelation)
}
