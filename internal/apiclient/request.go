package apiclient

import (
	"net/http"
	"net/url"

	"github.com/bytedance/sonic"
)

// Request describes one outbound call. The client never mutates a Request;
// each attempt works on a clone. Body is kept as bytes so the request can be
// re-sent after a refresh. Path is relative to the base URL; an absolute
// URL is used as is.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// NewRequest builds a request without a body.
func NewRequest(method, path string) *Request {
	return &Request{Method: method, Path: path, Header: http.Header{}}
}

// NewJSONRequest builds a request whose body is payload encoded as JSON.
func NewJSONRequest(method, path string, payload any) (*Request, error) {
	req := NewRequest(method, path)
	if payload == nil {
		return req, nil
	}
	body, err := sonic.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req.Body = body
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Clone returns a deep copy.
func (r *Request) Clone() *Request {
	out := &Request{
		Method: r.Method,
		Path:   r.Path,
		Header: r.Header.Clone(),
	}
	if out.Header == nil {
		out.Header = http.Header{}
	}
	if r.Query != nil {
		out.Query = make(url.Values, len(r.Query))
		for k, v := range r.Query {
			out.Query[k] = append([]string(nil), v...)
		}
	}
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return out
}
