package apiclient

import (
	"net/http"

	"github.com/bytedance/sonic"
)

// Response is a received response with status < 400, returned unchanged.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the body into v.
func (r *Response) DecodeJSON(v any) error {
	return sonic.Unmarshal(r.Body, v)
}
