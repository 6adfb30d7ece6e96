// Package response turns raw transfer output into a queryable result:
// parsed headers, status predicates, a lazily decoded JSON body and a
// debug dump.
package response

import (
	"encoding/json"
	"strconv"
	"sync"

	"github.com/adamwoolhether/httpkit/client/transport"
)

// Response is the read-only result of one completed transfer. It is safe
// for concurrent reads.
type Response struct {
	headers   Headers
	body      []byte
	info      transport.Info
	hasStatus bool

	decode   sync.Once
	jsonBody any
}

// New builds a Response from the captured header blob, the body and the
// transport diagnostics.
func New(rawHeaders string, body []byte, info transport.Info) *Response {
	return &Response{
		headers:   ParseHeaders(rawHeaders),
		body:      body,
		info:      info,
		hasStatus: true,
	}
}

// Headers returns every parsed header in order.
func (r *Response) Headers() Headers { return r.headers }

// Header returns the first value of the named header. Matching ignores
// case and spaces.
func (r *Response) Header(name string) (string, bool) {
	h, ok := r.headers.Lookup(name)
	if !ok {
		return "", false
	}
	return h.Value(), true
}

// HeaderValues returns every value received for the named header.
func (r *Response) HeaderValues(name string) []string {
	h, _ := r.headers.Lookup(name)
	return h.Values
}

// Status returns the reported status code. A transfer that failed before
// any response reports 0.
func (r *Response) Status() (int, bool) {
	return r.info.StatusCode, r.hasStatus
}

// Success reports whether the status is 2xx. When key is given the decoded
// body must also hold that key with a truthy value or a nested array or
// object.
func (r *Response) Success(key ...string) bool {
	status, ok := r.Status()
	if !ok || status < 200 || status > 299 {
		return false
	}

	if len(key) == 0 {
		return true
	}

	obj, ok := r.JSON().(map[string]any)
	if !ok {
		return false
	}
	v, ok := obj[key[0]]
	if !ok {
		return false
	}
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return truthy(v)
}

// Body returns the raw response body.
func (r *Response) Body() []byte { return r.body }

// String returns the raw response body as a string.
func (r *Response) String() string { return string(r.body) }

// JSON returns the decoded body, or nil when the body is not valid JSON.
// Numbers decode as float64.
func (r *Response) JSON() any {
	r.decode.Do(func() {
		var v any
		if err := json.Unmarshal(r.body, &v); err == nil {
			r.jsonBody = v
		}
	})
	return r.jsonBody
}

// Get walks the decoded body: string keys index objects and int keys
// index arrays. It returns nil when any step is missing.
func (r *Response) Get(path ...any) any {
	cur := r.JSON()

	for _, key := range path {
		switch node := cur.(type) {
		case map[string]any:
			k, ok := key.(string)
			if !ok {
				k = stringKey(key)
			}
			cur = node[k]
		case []any:
			i, ok := intKey(key)
			if !ok || i < 0 || i >= len(node) {
				return nil
			}
			cur = node[i]
		default:
			return nil
		}
	}

	return cur
}

// Has reports whether key is set in the decoded body and not null.
func (r *Response) Has(key any) bool {
	return r.Get(key) != nil
}

// Info returns the transport diagnostics.
func (r *Response) Info() transport.Info { return r.info }

// Err returns the transport error text, empty when the transfer completed.
func (r *Response) Err() string { return r.info.Error }

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != "" && t != "0"
	}
	return true
}

func stringKey(key any) string {
	if i, ok := key.(int); ok {
		return strconv.Itoa(i)
	}
	return ""
}

func intKey(key any) (int, bool) {
	switch k := key.(type) {
	case int:
		return k, true
	case string:
		i, err := strconv.Atoi(k)
		return i, err == nil
	}
	return 0, false
}
