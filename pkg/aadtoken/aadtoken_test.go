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

package aadtoken

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultdoc/fle/internal/retry"
	"github.com/vaultdoc/fle/pkg/fleerr"
)

type fakeCredential struct {
	calls  int
	tokens []azcoreAccessToken
	errs   []error
}

func (f *fakeCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcoreAccessToken, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return azcoreAccessToken{}, f.errs[i]
	}
	return f.tokens[i], nil
}

func newTestProvider(cred azcoreTokenCredential) *Provider {
	return &Provider{
		resource: "https://vault.azure.net",
		cred:     cred,
		retry:    retry.Policy{MaxAttempts: 3, Interval: time.Millisecond},
	}
}

func TestGetAccessTokenFetchesOnFirstCall(t *testing.T) {
	fc := &fakeCredential{tokens: []azcoreAccessToken{{Token: "tok1", ExpiresOn: time.Now().Add(time.Hour)}}}
	p := newTestProvider(fc)

	tok, err := p.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok1", tok)
	assert.Equal(t, 1, fc.calls)
}

func TestGetAccessTokenCachesWithinLifetime(t *testing.T) {
	fc := &fakeCredential{tokens: []azcoreAccessToken{{Token: "tok1", ExpiresOn: time.Now().Add(time.Hour)}}}
	p := newTestProvider(fc)

	_, err := p.GetAccessToken(context.Background())
	require.NoError(t, err)
	_, err = p.GetAccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, fc.calls, "second call within token lifetime must not hit the authority")
}

func TestGetAccessTokenRefreshesNearExpiry(t *testing.T) {
	fc := &fakeCredential{tokens: []azcoreAccessToken{
		{Token: "tok1", ExpiresOn: time.Now().Add(time.Second)},
		{Token: "tok2", ExpiresOn: time.Now().Add(time.Hour)},
	}}
	p := newTestProvider(fc)

	tok, err := p.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok1", tok)

	tok, err = p.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok2", tok, "token within expirySkew of expiry must be refreshed")
}

func TestGetAccessTokenRetriesTransientFailure(t *testing.T) {
	fc := &fakeCredential{
		errs:   []error{errors.New("transient"), nil},
		tokens: []azcoreAccessToken{{}, {Token: "tok1", ExpiresOn: time.Now().Add(time.Hour)}},
	}
	p := newTestProvider(fc)

	tok, err := p.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok1", tok)
	assert.Equal(t, 2, fc.calls)
}

func TestGetAccessTokenSurfacesAadUnavailable(t *testing.T) {
	fc := &fakeCredential{errs: []error{errors.New("down"), errors.New("down"), errors.New("down")}}
	p := newTestProvider(fc)

	_, err := p.GetAccessToken(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, fleerr.ErrAadUnavailable)
}
