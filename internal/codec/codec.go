// Package codec selects and applies an encode/decode pair by name, with an
// "auto" policy that prefers the fastest backend available in this binary.
package codec

import "fmt"

// Codec encodes and decodes the structured values exchanged on the wire:
// nil, bool, signed/unsigned integers, float64, string, ordered sequences,
// and string-keyed maps of the same.
type Codec interface {
	Name() string
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// ErrUnknownCodec is returned when a codec name does not match any
// registered codec. Its kind, per the error taxonomy, is "invalid-codec".
type ErrUnknownCodec struct {
	Name string
}

func (e *ErrUnknownCodec) Error() string {
	return fmt.Sprintf("invalid-codec: unknown codec %q", e.Name)
}

const (
	NameJSONStdlib      = "json"
	NameJSONFast        = "json-fast"
	NameStructuredJSON  = "structured-json"
	NameMsgpack         = "msgpack"
	NameAuto            = "auto"
)

// autoOrder is the "auto" preference chain: structured-json > json-fast >
// json-stdlib. msgpack is deliberately excluded — it is a distinct binary
// wire format and must be requested explicitly.
var autoOrder = []string{NameStructuredJSON, NameJSONFast, NameJSONStdlib}

// Resolve returns the Codec for name, resolving "auto" to the first
// available entry in autoOrder. All four concrete codecs are always
// compiled in, so "auto" always resolves to NameStructuredJSON today; the
// chain exists so a future build that omits a codec at compile time still
// degrades gracefully.
func Resolve(name string) (Codec, error) {
	if name == "" || name == NameAuto {
		for _, candidate := range autoOrder {
			if c, ok := lookup(candidate); ok {
				return c, nil
			}
		}
	}
	if c, ok := lookup(name); ok {
		return c, nil
	}
	return nil, &ErrUnknownCodec{Name: name}
}

func lookup(name string) (Codec, bool) {
	switch name {
	case NameJSONStdlib:
		return stdlibJSONCodec{}, true
	case NameJSONFast:
		return fastJSONCodec{}, true
	case NameStructuredJSON:
		return structuredJSONCodec{}, true
	case NameMsgpack:
		return msgpackCodec{}, true
	default:
		return nil, false
	}
}
