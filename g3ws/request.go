package g3ws

import (
	"encoding/json"
	"fmt"

	"github.com/tobiipro/g3go/g3types"
)

var (
	rawNull      = json.RawMessage("null")
	rawEmptyList = json.RawMessage("[]")
)

// Request is a control request before id assignment. Properties are read
// with GET or written with a scalar POST body; actions are POSTs with a
// list body; signal subscription is a POST with a null body and
// unsubscription a POST carrying the signal id.
type Request struct {
	Path   g3types.URI
	Method string
	Params interface{}

	body *json.RawMessage
}

// NewGetRequest builds a GET request. params may be nil and is then
// omitted from the wire form.
func NewGetRequest(uri g3types.URI, params interface{}) Request {
	return Request{Path: uri, Method: "GET", Params: params}
}

// NewPostRequest builds a POST request. A nil body is sent as the empty
// list, which the device treats differently from null.
func NewPostRequest(uri g3types.URI, body interface{}) (Request, error) {
	raw := rawEmptyList
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return Request{}, fmt.Errorf("failed to encode body for %s: %w", uri, err)
		}
		raw = json.RawMessage(encoded)
	}
	return Request{Path: uri, Method: "POST", body: &raw}, nil
}

// newPostNullRequest builds a POST with a JSON null body, the subscribe
// wire form.
func newPostNullRequest(uri g3types.URI) Request {
	raw := rawNull
	return Request{Path: uri, Method: "POST", body: &raw}
}

// newPostRawRequest builds a POST carrying a pre-encoded body. Used to
// echo the signal id back verbatim on unsubscribe.
func newPostRawRequest(uri g3types.URI, raw json.RawMessage) Request {
	body := make(json.RawMessage, len(raw))
	copy(body, raw)
	return Request{Path: uri, Method: "POST", body: &body}
}
