package codec

import (
	"encoding/json"

	"github.com/mailru/easyjson"
)

// structuredJSONCodec uses generated-style typed marshal/unmarshal
// (internal/protocol's MarshalEasyJSON/UnmarshalEasyJSON methods) for the
// four wire types, skipping the reflection encoding/json and json-iterator
// both still do internally for struct fields. Values that don't implement
// easyjson.Marshaler/Unmarshaler (anything outside internal/protocol) fall
// back to encoding/json, matching what easyjson-generated code does at a
// package boundary it wasn't generated for.
type structuredJSONCodec struct{}

func (structuredJSONCodec) Name() string { return NameStructuredJSON }

func (structuredJSONCodec) Encode(v any) ([]byte, error) {
	if m, ok := v.(easyjson.Marshaler); ok {
		return easyjson.Marshal(m)
	}
	return json.Marshal(v)
}

func (structuredJSONCodec) Decode(data []byte, v any) error {
	if u, ok := v.(easyjson.Unmarshaler); ok {
		return easyjson.Unmarshal(data, u)
	}
	return json.Unmarshal(data, v)
}
