package codec

import "encoding/json"

// stdlibJSONCodec is the portable reference codec: UTF-8 JSON via
// encoding/json. It is the universal fallback every other codec here
// degrades to if its accelerated library were ever unavailable, so it is
// kept on the standard library rather than a third-party drop-in — the
// whole point of having it is that it has no dependency surface.
type stdlibJSONCodec struct{}

func (stdlibJSONCodec) Name() string { return NameJSONStdlib }

func (stdlibJSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (stdlibJSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
