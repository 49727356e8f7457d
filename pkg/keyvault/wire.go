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
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/vaultdoc/fle/pkg/fleerr"
)

// validateKeyURI checks the key URI shape
// https://<vault>.vault.azure.net/keys/<name>[/<version>] (3 or 4 path
// segments, second segment "keys" case-insensitively), returning the
// URI with a trailing slash trimmed.
func validateKeyURI(keyURI string) (string, error) {
	trimmed := strings.TrimRight(keyURI, "/")

	if !strings.HasPrefix(trimmed, "https://") {
		return "", fmt.Errorf("keyvault: key uri %q must use https: %w", keyURI, fleerr.ErrPolicyInvalid)
	}

	rest := strings.TrimPrefix(trimmed, "https://")
	segments := strings.Split(rest, "/")
	// segments[0] is the host; path segments follow.
	pathSegments := segments[1:]

	if len(pathSegments) != 2 && len(pathSegments) != 3 {
		return "", fmt.Errorf("keyvault: key uri %q must have 3 or 4 path segments: %w", keyURI, fleerr.ErrPolicyInvalid)
	}
	if !strings.EqualFold(pathSegments[0], "keys") {
		return "", fmt.Errorf("keyvault: key uri %q second segment must be %q: %w", keyURI, "keys", fleerr.ErrPolicyInvalid)
	}
	if pathSegments[1] == "" {
		return "", fmt.Errorf("keyvault: key uri %q has empty key name: %w", keyURI, fleerr.ErrPolicyInvalid)
	}

	return trimmed, nil
}

// base64StdToURL decodes nothing — it takes raw bytes and produces an
// unpadded base64url string, the wire representation the {alg,value}
// request body requires.
func base64StdToURL(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

// base64URLToStd decodes a base64url string (padded or not) to raw
// bytes, accepting both encodings the way a tolerant client should.
func base64URLToStd(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(padBase64(s))
}

func padBase64(s string) string {
	if m := len(s) % 4; m != 0 {
		s += strings.Repeat("=", 4-m)
	}
	return s
}

var bearerChallengeRe = regexp.MustCompile(`(\w+)="([^"]*)"`)

// parseBearerChallenge extracts the authorization and resource values
// from a WWW-Authenticate: Bearer authorization="...", resource="..."
// header.
func parseBearerChallenge(header string) (authorizationURL, resource string, err error) {
	if !strings.HasPrefix(strings.TrimSpace(header), "Bearer") {
		return "", "", fmt.Errorf("keyvault: WWW-Authenticate header missing Bearer scheme: %q", header)
	}

	matches := bearerChallengeRe.FindAllStringSubmatch(header, -1)
	params := make(map[string]string, len(matches))
	for _, m := range matches {
		params[strings.ToLower(m[1])] = m[2]
	}

	authorizationURL = params["authorization"]
	resource = params["resource"]
	if authorizationURL == "" || resource == "" {
		return "", "", fmt.Errorf("keyvault: WWW-Authenticate header missing authorization/resource: %q", header)
	}
	return authorizationURL, resource, nil
}

// tenantFromAuthorizationURL extracts the tenant GUID segment from an
// authority URL like "https://login.microsoftonline.com/<tenant>", or
// falls back to fallback when the authority omits one (e.g. "common").
func tenantFromAuthorizationURL(authorizationURL, fallback string) string {
	trimmed := strings.TrimRight(authorizationURL, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return fallback
	}
	tenant := trimmed[idx+1:]
	if tenant == "" || tenant == "common" {
		return fallback
	}
	return tenant
}
