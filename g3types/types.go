/*
Shared protocol types for the Glasses 3 web API.

The device addresses every capability by a path-like URI whose last
delimiter identifies the endpoint kind: ".name" is a property, "!name" is
an action and ":name" is a signal.
*/

package g3types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// URI is a path on the device API, for example "/recorder" or
// "/recorder!start".
type URI string

// EndpointKind distinguishes the three addressable endpoint kinds.
type EndpointKind int

const (
	KindProperty EndpointKind = iota
	KindAction
	KindSignal
)

// Delimiter returns the URI delimiter preceding an endpoint name of this
// kind.
func (k EndpointKind) Delimiter() string {
	switch k {
	case KindProperty:
		return "."
	case KindAction:
		return "!"
	case KindSignal:
		return ":"
	}
	return ""
}

func (k EndpointKind) String() string {
	switch k {
	case KindProperty:
		return "property"
	case KindAction:
		return "action"
	case KindSignal:
		return "signal"
	}
	return fmt.Sprintf("EndpointKind(%d)", int(k))
}

// APIComponent is the embeddable base of every object that speaks over a
// fixed root path of the device API.
type APIComponent struct {
	apiURI URI
}

// NewAPIComponent returns a component rooted at the given path.
func NewAPIComponent(apiURI URI) APIComponent {
	return APIComponent{apiURI: apiURI}
}

// Root returns the component's root path.
func (c APIComponent) Root() URI {
	return c.apiURI
}

// EndpointURI composes the URI of a named endpoint of the given kind under
// the component root.
func (c APIComponent) EndpointURI(kind EndpointKind, name string) URI {
	return URI(string(c.apiURI) + kind.Delimiter() + name)
}

// SignalID identifies a server-side signal subscription. The device has
// been observed returning both JSON numbers and strings for it, so it is
// normalized to its textual form on receipt.
type SignalID string

// SignalIDFromJSON normalizes a raw subscribe-response body into a
// SignalID.
func SignalIDFromJSON(raw json.RawMessage) (SignalID, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return SignalID(asString), nil
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return SignalID(asNumber.String()), nil
	}
	return "", fmt.Errorf("signal id is neither string nor number: %s", string(raw))
}

// IsFalse reports whether the id's text is "false". A JSON literal false
// body is already rejected by SignalIDFromJSON and never becomes an id.
func (id SignalID) IsFalse() bool {
	return id == "false"
}

// SignalBody is the raw JSON list carried by a signal notification.
type SignalBody = json.RawMessage

// FirstString extracts the first element of a signal body as a string.
// Several device signals (child-added, child-removed, started) carry a
// single-element list.
func FirstString(body SignalBody) (string, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(body, &elems); err != nil {
		return "", fmt.Errorf("signal body is not a list: %w", err)
	}
	if len(elems) == 0 {
		return "", fmt.Errorf("signal body is empty")
	}
	var s string
	if err := json.Unmarshal(elems[0], &s); err != nil {
		return "", fmt.Errorf("signal body element is not a string: %w", err)
	}
	return s, nil
}

// ParseSeconds converts a float seconds value using the device convention
// that -1 means "not available". ok is false for -1.
func ParseSeconds(v float64) (seconds float64, ok bool) {
	if v == -1 {
		return 0, false
	}
	return v, true
}

// ParseCount converts an integer count using the device convention that -1
// means "not available". ok is false for -1.
func ParseCount(v int64) (count int64, ok bool) {
	if v == -1 {
		return 0, false
	}
	return v, true
}

// ParseTime parses the device's ISO 8601 timestamps, which arrive with or
// without a trailing Z and with fractional seconds of varying precision.
func ParseTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	trimmed := strings.TrimSuffix(value, "Z")
	t, err := time.Parse("2006-01-02T15:04:05.999999", trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparsable device timestamp %q: %w", value, err)
	}
	return t, nil
}

// FormatTime renders a timestamp the way the device expects it in action
// bodies.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.999999") + "Z"
}

// quoteIfNeeded is used by error messages to render raw JSON compactly.
func quoteIfNeeded(raw json.RawMessage) string {
	const max = 120
	s := string(raw)
	if len(s) > max {
		s = s[:max] + "..."
	}
	return strconv.Quote(s)
}
