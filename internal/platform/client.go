// Package platform talks to the remote social platform. It exposes one small
// Client contract used by both protocol generations: token-based graph
// endpoints ("/{id}/feed") and the legacy permission-based REST methods
// ("method/stream.publish").
package platform

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"
)

// Legacy REST method endpoints.
const (
	MethodHasAppPermission = "method/users.hasAppPermission"
	MethodStreamPublish    = "method/stream.publish"
	MethodSetStatus        = "method/users.setStatus"
)

// Params are call arguments. Strings, booleans and numbers are sent as-is;
// any other value is JSON encoded.
type Params map[string]any

// Client performs one remote call. Implementations return *PlatformError
// for errors reported by the platform and *TransportError otherwise.
type Client interface {
	Call(ctx context.Context, endpoint, method string, params Params) (Response, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, endpoint, method string, params Params) (Response, error)

// Call implements Client.
func (f ClientFunc) Call(ctx context.Context, endpoint, method string, params Params) (Response, error) {
	return f(ctx, endpoint, method, params)
}

// Response is the raw JSON body of a successful call.
type Response struct {
	Status int
	Body   []byte
}

// NewResponse wraps a JSON body.
func NewResponse(body string) Response {
	return Response{Status: 200, Body: []byte(body)}
}

// Get returns the value at a gjson path.
func (r Response) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}

// ID returns the identifier of a created object. Graph calls answer
// {"id": "..."}; legacy calls answer with a bare JSON string or number.
func (r Response) ID() string {
	root := gjson.ParseBytes(r.Body)
	if root.IsObject() {
		return root.Get("id").String()
	}
	switch root.Type {
	case gjson.String, gjson.Number:
		return root.String()
	}
	return ""
}

// Bool interprets a legacy boolean answer: true, 1, "1" or "true".
func (r Response) Bool() bool {
	root := gjson.ParseBytes(r.Body)
	switch root.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return root.Int() != 0
	case gjson.String:
		s := strings.TrimSpace(strings.ToLower(root.Str))
		return s == "1" || s == "true"
	}
	return false
}

// IsLegacy reports whether endpoint names a legacy REST method.
func IsLegacy(endpoint string) bool {
	return strings.HasPrefix(endpoint, "method/")
}
