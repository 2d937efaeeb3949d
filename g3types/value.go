package g3types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind enumerates the JSON kinds a Value can hold.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Value is a dynamic JSON value as returned by the device API. Downcasts
// are explicit and fail with an error naming the expected and actual kinds
// instead of panicking at the callsite.
type Value struct {
	raw json.RawMessage
}

// NewValue wraps a raw JSON message. A nil message is the null value.
func NewValue(raw json.RawMessage) Value {
	return Value{raw: raw}
}

// Raw returns the underlying JSON bytes. The null value returns the
// literal "null".
func (v Value) Raw() json.RawMessage {
	if v.raw == nil {
		return json.RawMessage("null")
	}
	return v.raw
}

// Kind inspects the value's JSON kind without fully decoding it.
func (v Value) Kind() Kind {
	raw := bytes.TrimSpace(v.raw)
	if len(raw) == 0 {
		return KindNull
	}
	switch raw[0] {
	case 'n':
		return KindNull
	case 't', 'f':
		return KindBool
	case '"':
		return KindString
	case '[':
		return KindList
	case '{':
		return KindMap
	default:
		if bytes.ContainsAny(raw, ".eE") {
			return KindFloat
		}
		return KindInt
	}
}

// IsNull reports whether the value is JSON null (or absent).
func (v Value) IsNull() bool {
	return v.Kind() == KindNull
}

// Str downcasts to a string.
func (v Value) Str() (string, error) {
	var s string
	if err := json.Unmarshal(v.Raw(), &s); err != nil {
		return "", v.kindError(KindString)
	}
	return s, nil
}

// Int downcasts to an integer. A float with a fractional part is an error.
func (v Value) Int() (int64, error) {
	var n int64
	if err := json.Unmarshal(v.Raw(), &n); err != nil {
		return 0, v.kindError(KindInt)
	}
	return n, nil
}

// Float64 downcasts to a float. Integers widen without error.
func (v Value) Float64() (float64, error) {
	var f float64
	if err := json.Unmarshal(v.Raw(), &f); err != nil {
		return 0, v.kindError(KindFloat)
	}
	return f, nil
}

// Bool downcasts to a bool.
func (v Value) Bool() (bool, error) {
	var b bool
	if err := json.Unmarshal(v.Raw(), &b); err != nil {
		return false, v.kindError(KindBool)
	}
	return b, nil
}

// List downcasts to a list of values.
func (v Value) List() ([]Value, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(v.Raw(), &elems); err != nil {
		return nil, v.kindError(KindList)
	}
	out := make([]Value, len(elems))
	for i, e := range elems {
		out[i] = NewValue(e)
	}
	return out, nil
}

// Map downcasts to a map of values.
func (v Value) Map() (map[string]Value, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(v.Raw(), &entries); err != nil {
		return nil, v.kindError(KindMap)
	}
	out := make(map[string]Value, len(entries))
	for k, e := range entries {
		out[k] = NewValue(e)
	}
	return out, nil
}

// Strings downcasts to a list of strings.
func (v Value) Strings() ([]string, error) {
	var elems []string
	if err := json.Unmarshal(v.Raw(), &elems); err != nil {
		return nil, fmt.Errorf("expected list of strings, got %s: %s", v.Kind(), quoteIfNeeded(v.Raw()))
	}
	return elems, nil
}

// Decode unmarshals the value into an arbitrary destination.
func (v Value) Decode(into interface{}) error {
	return json.Unmarshal(v.Raw(), into)
}

func (v Value) kindError(want Kind) error {
	return fmt.Errorf("expected %s, got %s: %s", want, v.Kind(), quoteIfNeeded(v.Raw()))
}
