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

// Package processor implements the policy-driven JSON-tree rewriter
// that ties the canonical value codec, the AEAD primitive, and the
// encryption-settings cache together into encrypt/decrypt operations
// over whole documents.
package processor

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"github.com/vaultdoc/fle/pkg/aead"
	"github.com/vaultdoc/fle/pkg/codec"
	"github.com/vaultdoc/fle/pkg/fleerr"
	"github.com/vaultdoc/fle/pkg/jsonvalue"
	"github.com/vaultdoc/fle/pkg/metadata"
	"github.com/vaultdoc/fle/pkg/policy"
	"github.com/vaultdoc/fle/pkg/settings"
)

// Processor is bound to one container. It lazily fetches and validates
// the container's encryption policy on first use, then rewrites
// documents in place according to it.
type Processor struct {
	container      string
	metadataSource metadata.DatabaseMetadataSource
	settingsCache  *settings.Cache

	mu             sync.Mutex
	initDone       bool
	pol            *policy.ClientEncryptionPolicy // nil when the container has no policy
	settingsByProp map[string]settings.Setting
}

// New constructs a Processor for one container.
func New(container string, metadataSource metadata.DatabaseMetadataSource, masterKeyStore metadata.MasterKeyStore, opts ...settings.Option) *Processor {
	return &Processor{
		container:      container,
		metadataSource: metadataSource,
		settingsCache:  settings.New(container, metadataSource, masterKeyStore, opts...),
	}
}

// Encrypt walks the JSON document read from r and replaces every value
// named by the container's policy with its encrypted form. If the
// container has no policy, the output is byte-identical to the input.
func (p *Processor) Encrypt(ctx context.Context, r io.Reader) (io.Reader, error) {
	return p.process(ctx, r, true)
}

// Decrypt reverses Encrypt.
func (p *Processor) Decrypt(ctx context.Context, r io.Reader) (io.Reader, error) {
	return p.process(ctx, r, false)
}

func (p *Processor) process(ctx context.Context, r io.Reader, encrypting bool) (out io.Reader, err error) {
	data, readErr := io.ReadAll(r)
	if readErr != nil {
		return nil, fmt.Errorf("processor: read input: %w", readErr)
	}
	defer func() {
		// Stream discipline: dispose the input only on success; a
		// failure leaves it at EOF but undisposed for the caller to
		// inspect.
		if err == nil {
			if closer, ok := r.(io.Closer); ok {
				_ = closer.Close()
			}
		}
	}()

	if err := p.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	pol := p.pol
	settingsByProp := p.settingsByProp
	p.mu.Unlock()

	if pol == nil {
		return bytes.NewReader(data), nil
	}

	root, decodeErr := jsonvalue.Decode(bytes.NewReader(data))
	if decodeErr != nil {
		return nil, fmt.Errorf("processor: decode json: %w", decodeErr)
	}
	if root.Kind != jsonvalue.KindObject {
		return nil, fmt.Errorf("processor: document root must be a JSON object: %w", fleerr.ErrUnsupportedValue)
	}

	for _, ip := range pol.IncludedPaths {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("processor: %w: %w", fleerr.ErrCancelled, ctx.Err())
		}

		name := ip.PropertyName()
		val, ok := root.Object.Get(name)
		if !ok || val.Kind == jsonvalue.KindNull {
			continue
		}

		setting := settingsByProp[name]

		var rewritten *jsonvalue.Value
		var walkErr error
		if encrypting {
			rewritten, walkErr = encryptValue(val, setting)
		} else {
			rewritten, walkErr = decryptValue(val, setting)
		}
		if walkErr != nil {
			return nil, fmt.Errorf("processor: property %q: %w", ip.Path, walkErr)
		}
		root.Object.Set(name, rewritten)
	}

	encoded, encodeErr := jsonvalue.Encode(root)
	if encodeErr != nil {
		return nil, fmt.Errorf("processor: encode json: %w", encodeErr)
	}
	return bytes.NewReader(encoded), nil
}

// ensureInitialized fetches and validates the policy on first use. It is
// safe to call repeatedly; a transient fetch failure does not latch, so
// the next call retries.
func (p *Processor) ensureInitialized(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initDone {
		return nil
	}

	pol, err := p.metadataSource.GetClientEncryptionPolicy(ctx, p.container, false)
	if err != nil {
		return fmt.Errorf("processor: fetch policy: %w", err)
	}

	if pol == nil || len(pol.IncludedPaths) == 0 {
		p.pol = nil
		p.initDone = true
		return nil
	}

	if err := pol.Validate(); err != nil {
		return err
	}

	settingsByProp, err := p.settingsCache.InitEncryptionSettings(ctx, pol)
	if err != nil {
		return err
	}

	p.pol = pol
	p.settingsByProp = settingsByProp
	p.initDone = true
	return nil
}

// encryptValue dispatches on v's own JSON kind: scalars are sealed in
// place, objects and arrays are recursed into leaf by leaf. Empty
// arrays and null leaves are left untouched.
func encryptValue(v *jsonvalue.Value, setting settings.Setting) (*jsonvalue.Value, error) {
	switch v.Kind {
	case jsonvalue.KindBool, jsonvalue.KindNumber, jsonvalue.KindString:
		return encryptScalar(v, setting)

	case jsonvalue.KindObject:
		for _, key := range v.Object.Keys() {
			child, _ := v.Object.Get(key)
			if child.Kind == jsonvalue.KindNull {
				continue
			}
			rewritten, err := encryptValue(child, setting)
			if err != nil {
				return nil, err
			}
			v.Object.Set(key, rewritten)
		}
		return v, nil

	case jsonvalue.KindArray:
		for i, elem := range v.Array {
			if elem.Kind == jsonvalue.KindNull {
				continue
			}
			rewritten, err := encryptValue(elem, setting)
			if err != nil {
				return nil, err
			}
			v.Array[i] = rewritten
		}
		return v, nil

	case jsonvalue.KindNull:
		return v, nil

	default:
		return nil, fmt.Errorf("processor: unknown json kind %d", v.Kind)
	}
}

// decryptValue mirrors encryptValue: every non-null leaf below an
// included path must be a base64 ciphertext string.
func decryptValue(v *jsonvalue.Value, setting settings.Setting) (*jsonvalue.Value, error) {
	switch v.Kind {
	case jsonvalue.KindString:
		return decryptScalar(v, setting)

	case jsonvalue.KindObject:
		for _, key := range v.Object.Keys() {
			child, _ := v.Object.Get(key)
			if child.Kind == jsonvalue.KindNull {
				continue
			}
			rewritten, err := decryptValue(child, setting)
			if err != nil {
				return nil, err
			}
			v.Object.Set(key, rewritten)
		}
		return v, nil

	case jsonvalue.KindArray:
		for i, elem := range v.Array {
			if elem.Kind == jsonvalue.KindNull {
				continue
			}
			rewritten, err := decryptValue(elem, setting)
			if err != nil {
				return nil, err
			}
			v.Array[i] = rewritten
		}
		return v, nil

	case jsonvalue.KindNull:
		return v, nil

	default:
		return nil, fmt.Errorf("processor: ciphertext leaf must be a string, got kind %d: %w", v.Kind, fleerr.ErrCryptoIntegrity)
	}
}

// encryptScalar performs codec.serialize -> aead.encrypt -> marker
// prefix, emitting the ciphertext as a base64 JSON string.
func encryptScalar(v *jsonvalue.Value, setting settings.Setting) (*jsonvalue.Value, error) {
	marker, data, err := codec.Serialize(v)
	if err != nil {
		return nil, err
	}

	strategy := aead.IVRandom
	if setting.EncryptionType == policy.Deterministic {
		strategy = aead.IVDeterministic
	}

	ciphertext, err := setting.Key().Encrypt(strategy, data)
	if err != nil {
		return nil, fmt.Errorf("processor: encrypt value: %w", err)
	}

	payload := make([]byte, 0, 1+len(ciphertext))
	payload = append(payload, marker)
	payload = append(payload, ciphertext...)

	return jsonvalue.NewString(base64.StdEncoding.EncodeToString(payload)), nil
}

// decryptScalar reads a base64 ciphertext string, sanity-checks the type
// marker, decrypts, and reconstructs the JSON scalar.
func decryptScalar(v *jsonvalue.Value, setting settings.Setting) (*jsonvalue.Value, error) {
	payload, err := base64.StdEncoding.DecodeString(v.Str)
	if err != nil {
		return nil, fmt.Errorf("processor: invalid ciphertext base64: %w: %w", fleerr.ErrCryptoIntegrity, err)
	}
	if len(payload) < 1 {
		return nil, fmt.Errorf("processor: empty ciphertext payload: %w", fleerr.ErrCryptoIntegrity)
	}

	marker := payload[0]
	switch marker {
	case codec.MarkerBool, codec.MarkerDouble, codec.MarkerLong, codec.MarkerString:
	default:
		return nil, fmt.Errorf("processor: unknown type marker %d: %w", marker, fleerr.ErrCryptoIntegrity)
	}

	plaintext, err := setting.Key().Decrypt(payload[1:])
	if err != nil {
		return nil, err
	}
	return codec.Deserialize(marker, plaintext)
}
