package protocol

// Hand-written in easyjson's generated style: typed field-by-field
// marshal/unmarshal for the four wire structs, avoiding reflection on the
// struct's own fields. The polymorphic Body field still goes through
// encoding/json under the hood (via the lexer's generic Interface() and the
// writer's Raw()), exactly as easyjson-generated code does for interface{}
// fields it cannot specialize.

import (
	"encoding/json"

	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

// MarshalEasyJSON implements easyjson.Marshaler for Request.
func (r Request) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('{')
	w.RawString(`"id":`)
	w.Uint64(r.ID)
	w.RawString(`,"method":`)
	w.String(r.Method)
	w.RawString(`,"body":`)
	w.Raw(json.Marshal(r.Body))
	if len(r.Headers) > 0 {
		w.RawString(`,"headers":`)
		writeStringMap(w, r.Headers)
	}
	w.RawByte('}')
}

// UnmarshalEasyJSON implements easyjson.Unmarshaler for Request.
func (r *Request) UnmarshalEasyJSON(l *jlexer.Lexer) {
	l.Delim('{')
	for !l.IsDelim('}') {
		key := l.UnsafeFieldName(false)
		l.WantColon()
		switch key {
		case "id":
			r.ID = l.Uint64()
		case "method":
			r.Method = l.String()
		case "body":
			r.Body = l.Interface()
		case "headers":
			r.Headers = readStringMap(l)
		default:
			l.SkipRecursive()
		}
		l.WantComma()
	}
	l.Delim('}')
}

// MarshalEasyJSON implements easyjson.Marshaler for Response.
func (r Response) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('{')
	w.RawString(`"id":`)
	w.Uint64(r.ID)
	w.RawString(`,"ok":`)
	w.Bool(r.OK)
	if r.OK {
		w.RawString(`,"body":`)
		w.Raw(json.Marshal(r.Body))
	} else if r.Error != "" {
		w.RawString(`,"error":`)
		w.String(r.Error)
	}
	if len(r.Headers) > 0 {
		w.RawString(`,"headers":`)
		writeStringMap(w, r.Headers)
	}
	w.RawByte('}')
}

// UnmarshalEasyJSON implements easyjson.Unmarshaler for Response.
func (r *Response) UnmarshalEasyJSON(l *jlexer.Lexer) {
	l.Delim('{')
	for !l.IsDelim('}') {
		key := l.UnsafeFieldName(false)
		l.WantColon()
		switch key {
		case "id":
			r.ID = l.Uint64()
		case "ok":
			r.OK = l.Bool()
		case "body":
			r.Body = l.Interface()
		case "error":
			r.Error = l.String()
		case "headers":
			r.Headers = readStringMap(l)
		default:
			l.SkipRecursive()
		}
		l.WantComma()
	}
	l.Delim('}')
}

// MarshalEasyJSON implements easyjson.Marshaler for Cancellation.
func (c Cancellation) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('{')
	w.RawString(`"id":`)
	w.Uint64(c.ID)
	w.RawString(`,"reason":`)
	w.String(c.Reason)
	w.RawByte('}')
}

// UnmarshalEasyJSON implements easyjson.Unmarshaler for Cancellation.
func (c *Cancellation) UnmarshalEasyJSON(l *jlexer.Lexer) {
	l.Delim('{')
	for !l.IsDelim('}') {
		key := l.UnsafeFieldName(false)
		l.WantColon()
		switch key {
		case "id":
			c.ID = l.Uint64()
		case "reason":
			c.Reason = l.String()
		default:
			l.SkipRecursive()
		}
		l.WantComma()
	}
	l.Delim('}')
}

// MarshalEasyJSON implements easyjson.Marshaler for Envelope.
func (e Envelope) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('{')
	w.RawString(`"type":`)
	w.String(string(e.Type))
	w.RawString(`,"payload":`)
	if len(e.Payload) == 0 {
		w.RawString("null")
	} else {
		w.Raw(e.Payload, nil)
	}
	w.RawByte('}')
}

// UnmarshalEasyJSON implements easyjson.Unmarshaler for Envelope.
func (e *Envelope) UnmarshalEasyJSON(l *jlexer.Lexer) {
	l.Delim('{')
	for !l.IsDelim('}') {
		key := l.UnsafeFieldName(false)
		l.WantColon()
		switch key {
		case "type":
			e.Type = EnvelopeType(l.String())
		case "payload":
			e.Payload = json.RawMessage(l.Raw())
		default:
			l.SkipRecursive()
		}
		l.WantComma()
	}
	l.Delim('}')
}

func writeStringMap(w *jwriter.Writer, m map[string]string) {
	w.RawByte('{')
	first := true
	for k, v := range m {
		if !first {
			w.RawByte(',')
		}
		first = false
		w.String(k)
		w.RawByte(':')
		w.String(v)
	}
	w.RawByte('}')
}

func readStringMap(l *jlexer.Lexer) map[string]string {
	if l.IsNull() {
		l.Skip()
		return nil
	}
	m := make(map[string]string)
	l.Delim('{')
	for !l.IsDelim('}') {
		key := l.UnsafeFieldName(false)
		l.WantColon()
		m[key] = l.String()
		l.WantComma()
	}
	l.Delim('}')
	return m
}
