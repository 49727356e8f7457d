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

package jsonvalue

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	cases := []string{
		`{}`,
		`[]`,
		`null`,
		`true`,
		`42`,
		`3.14`,
		`"hello"`,
		`{"b":1,"a":2,"c":3}`,
		`{"nested":{"z":1,"y":2},"arr":[1,2,3]}`,
		`[{"id":1},"scalar",{"id":2},[1,2,{"x":true}]]`,
	}
	for _, in := range cases {
		v, err := Decode(strings.NewReader(in))
		require.NoError(t, err, in)
		out, err := Encode(v)
		require.NoError(t, err, in)
		assert.JSONEq(t, in, string(out), in)
	}
}

func TestDecodePreservesKeyOrder(t *testing.T) {
	v, err := Decode(strings.NewReader(`{"z":1,"a":2,"m":3}`))
	require.NoError(t, err)
	require.Equal(t, KindObject, v.Kind)
	assert.Equal(t, []string{"z", "a", "m"}, v.Object.Keys())

	out, err := Encode(v)
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":2,"m":3}`, string(out))
}

func TestDecodeNumberFidelity(t *testing.T) {
	v, err := Decode(strings.NewReader(`{"n":9223372036854775807}`))
	require.NoError(t, err)
	n, ok := v.Object.Get("n")
	require.True(t, ok)
	require.Equal(t, KindNumber, n.Kind)
	assert.Equal(t, "9223372036854775807", n.Number.String())

	i, err := n.Number.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(9223372036854775807), i)
}

func TestOrderedMapSetGetDelete(t *testing.T) {
	m := NewOrderedMap()
	m.Set("a", NewString("1"))
	m.Set("b", NewString("2"))
	m.Set("c", NewString("3"))
	m.Set("a", NewString("updated"))

	assert.Equal(t, []string{"a", "b", "c"}, m.Keys())
	assert.Equal(t, 3, m.Len())

	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, "updated", v.Str)

	m.Delete("b")
	assert.Equal(t, []string{"a", "c"}, m.Keys())
	assert.Equal(t, 2, m.Len())

	_, ok = m.Get("b")
	assert.False(t, ok)
}

func TestIsScalar(t *testing.T) {
	assert.True(t, NewBool(true).IsScalar())
	assert.True(t, NewString("x").IsScalar())
	assert.True(t, NewNumber("1").IsScalar())
	assert.False(t, Null().IsScalar())
	assert.False(t, (&Value{Kind: KindArray}).IsScalar())
	assert.False(t, (&Value{Kind: KindObject}).IsScalar())
}
