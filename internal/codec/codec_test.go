package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procbridge/coworker/internal/protocol"
)

func TestResolve_AllFourNames(t *testing.T) {
	for _, name := range []string{NameJSONStdlib, NameJSONFast, NameStructuredJSON, NameMsgpack} {
		c, err := Resolve(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}
}

func TestResolve_AutoPrefersStructuredJSON(t *testing.T) {
	c, err := Resolve(NameAuto)
	require.NoError(t, err)
	assert.Equal(t, NameStructuredJSON, c.Name())

	c, err = Resolve("")
	require.NoError(t, err)
	assert.Equal(t, NameStructuredJSON, c.Name())
}

func TestResolve_UnknownName(t *testing.T) {
	_, err := Resolve("xml-rpc")
	require.Error(t, err)
	var unk *ErrUnknownCodec
	require.ErrorAs(t, err, &unk)
	assert.Equal(t, "xml-rpc", unk.Name)
}

// TestRoundTrip_GenericValues covers property 1 for the generic value set:
// null, booleans, signed/unsigned integers, floats, strings, sequences,
// and string-keyed maps, for every codec, including structured-json (which
// only specializes the wire types and takes its encoding/json fallback
// path for these generic values).
func TestRoundTrip_GenericValues(t *testing.T) {
	values := map[string]any{
		"null":    nil,
		"bool":    true,
		"int":     int64(-12345),
		"uint":    uint64(98765),
		"float":   3.14159,
		"string":  "hello, world",
		"seq":     []any{1.0, "two", false, nil},
		"map":     map[string]any{"a": 1.0, "b": "two", "c": []any{1.0, 2.0}},
	}

	for _, name := range []string{NameJSONStdlib, NameJSONFast, NameStructuredJSON, NameMsgpack} {
		c, err := Resolve(name)
		require.NoError(t, err)
		t.Run(name, func(t *testing.T) {
			for label, v := range values {
				t.Run(label, func(t *testing.T) {
					encoded, err := c.Encode(v)
					require.NoError(t, err)

					var out any
					require.NoError(t, c.Decode(encoded, &out))
					assertEqualJSONValue(t, name, v, out)
				})
			}
		})
	}
}

// assertEqualJSONValue compares decoded-as-any values, tolerant of the
// numeric widening every one of these codecs performs when decoding into
// an untyped any (ints/uints round-trip as float64, except msgpack which
// preserves integer kinds).
func assertEqualJSONValue(t *testing.T, codecName string, want, got any) {
	t.Helper()
	switch w := want.(type) {
	case int64:
		if codecName == NameMsgpack {
			assert.EqualValues(t, w, got)
		} else {
			assert.EqualValues(t, float64(w), got)
		}
	case uint64:
		if codecName == NameMsgpack {
			assert.EqualValues(t, w, got)
		} else {
			assert.EqualValues(t, float64(w), got)
		}
	default:
		assert.EqualValues(t, want, got)
	}
}

func TestRoundTrip_WireTypes(t *testing.T) {
	req := protocol.Request{
		ID:      42,
		Method:  "health",
		Body:    map[string]any{"k": "v"},
		Headers: map[string]string{"traceparent": "00-x-y-01"},
	}

	for _, name := range []string{NameJSONStdlib, NameJSONFast, NameStructuredJSON, NameMsgpack} {
		c, err := Resolve(name)
		require.NoError(t, err)
		t.Run(name, func(t *testing.T) {
			encoded, err := c.Encode(req)
			require.NoError(t, err)

			var out protocol.Request
			require.NoError(t, c.Decode(encoded, &out))
			assert.Equal(t, req.ID, out.ID)
			assert.Equal(t, req.Method, out.Method)
			assert.Equal(t, req.Headers, out.Headers)
		})
	}
}
