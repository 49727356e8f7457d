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

// Package codec implements the canonical, bidirectional mapping between
// JSON scalar values and the fixed-width typed byte strings the AEAD
// primitive encrypts. It never sees arrays, objects, or null — the
// processor descends into those without involving the codec.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/vaultdoc/fle/pkg/fleerr"
	"github.com/vaultdoc/fle/pkg/jsonvalue"
)

// Type markers, one byte prefixed on every ciphertext value. Marker 1 is
// reserved for null and is never emitted by Serialize.
const (
	MarkerBool   byte = 2
	MarkerDouble byte = 3
	MarkerLong   byte = 4
	MarkerString byte = 5
)

// Serialize converts a scalar jsonvalue.Value into its canonical byte
// encoding, tagged with the marker for its JSON type. v must be a bool,
// number, or string; arrays, objects, and null are rejected with
// fleerr.ErrUnsupportedValue.
func Serialize(v *jsonvalue.Value) (marker byte, data []byte, err error) {
	switch v.Kind {
	case jsonvalue.KindBool:
		if v.Bool {
			return MarkerBool, []byte{0x01}, nil
		}
		return MarkerBool, []byte{0x00}, nil

	case jsonvalue.KindString:
		return MarkerString, []byte(v.Str), nil

	case jsonvalue.KindNumber:
		if i, err := v.Number.Int64(); err == nil {
			buf := make([]byte, 8)
			binary.LittleEndian.PutUint64(buf, uint64(i))
			return MarkerLong, buf, nil
		}
		if isIntegerLiteral(v.Number.String()) {
			return 0, nil, fmt.Errorf("codec: integer %q out of int64 range: %w", v.Number.String(), fleerr.ErrUnsupportedValue)
		}
		f, err := v.Number.Float64()
		if err != nil {
			return 0, nil, fmt.Errorf("codec: number %q out of range: %w", v.Number.String(), fleerr.ErrUnsupportedValue)
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
		return MarkerDouble, buf, nil

	default:
		return 0, nil, fmt.Errorf("codec: kind %d is not a scalar: %w", v.Kind, fleerr.ErrUnsupportedValue)
	}
}

// Deserialize reconstructs a jsonvalue.Value from a marker/bytes pair
// produced by Serialize. Deserialize(Serialize(v)) == v for every
// supported scalar.
func Deserialize(marker byte, data []byte) (*jsonvalue.Value, error) {
	switch marker {
	case MarkerBool:
		if len(data) != 1 {
			return nil, fmt.Errorf("codec: bool payload must be 1 byte, got %d: %w", len(data), fleerr.ErrUnsupportedValue)
		}
		return jsonvalue.NewBool(data[0] != 0), nil

	case MarkerLong:
		if len(data) != 8 {
			return nil, fmt.Errorf("codec: long payload must be 8 bytes, got %d: %w", len(data), fleerr.ErrUnsupportedValue)
		}
		i := int64(binary.LittleEndian.Uint64(data))
		return jsonvalue.NewNumber(jsonNumberFromInt64(i)), nil

	case MarkerDouble:
		if len(data) != 8 {
			return nil, fmt.Errorf("codec: double payload must be 8 bytes, got %d: %w", len(data), fleerr.ErrUnsupportedValue)
		}
		f := math.Float64frombits(binary.LittleEndian.Uint64(data))
		return jsonvalue.NewNumber(jsonNumberFromFloat64(f)), nil

	case MarkerString:
		return jsonvalue.NewString(string(data)), nil

	default:
		return nil, fmt.Errorf("codec: unknown marker %d: %w", marker, fleerr.ErrUnsupportedValue)
	}
}
