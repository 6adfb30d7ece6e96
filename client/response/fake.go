package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/adamwoolhether/httpkit/client/transport"
)

// Fake builds a Response without a transfer, for stubbing clients in
// tests.
//
// headers is nil, a []string of raw lines ("Name: value" pairs or
// positional entries such as "HTTP/1.1 200 OK"), a map[string]string of
// names to values, or a map[any]string mixing both: int keys hold
// positional entries, string keys hold names. Positional entries come
// first in key order, then named headers sorted by name. body may be a
// string, a []byte, nil or any value that is JSON encoded. info may be an int status code, a [transport.Info],
// or a map using the Info JSON keys; a map without "http_code" yields a
// response with no status.
func Fake(headers any, body any, info any) (*Response, error) {
	lines, err := fakeHeaders(headers)
	if err != nil {
		return nil, err
	}
	raw, err := fakeBody(body)
	if err != nil {
		return nil, err
	}

	r := &Response{
		headers:   ParseHeaders(strings.Join(lines, "\n")),
		body:      raw,
		hasStatus: true,
	}

	switch v := info.(type) {
	case int:
		r.info.StatusCode = v
	case transport.Info:
		r.info = v
	case map[string]any:
		r.info, r.hasStatus, err = infoFromMap(v)
		if err != nil {
			return nil, err
		}
	case nil:
		r.hasStatus = false
	default:
		return nil, fmt.Errorf("fake response: unsupported info %T", info)
	}

	return r, nil
}

// MustFake is like [Fake] but panics on error.
func MustFake(headers any, body any, info any) *Response {
	r, err := Fake(headers, body, info)
	if err != nil {
		panic(err)
	}
	return r
}

func fakeHeaders(headers any) ([]string, error) {
	switch h := headers.(type) {
	case nil:
		return nil, nil
	case []string:
		return h, nil
	case map[string]string:
		lines := make([]string, 0, len(h))
		for _, name := range slices.Sorted(maps.Keys(h)) {
			lines = append(lines, name+": "+h[name])
		}
		return lines, nil
	case map[any]string:
		var (
			positions []int
			names     []string
		)
		for k := range h {
			switch key := k.(type) {
			case int:
				positions = append(positions, key)
			case string:
				names = append(names, key)
			default:
				return nil, fmt.Errorf("fake response: unsupported header key %T", k)
			}
		}
		slices.Sort(positions)
		slices.Sort(names)

		lines := make([]string, 0, len(h))
		for _, p := range positions {
			lines = append(lines, h[p])
		}
		for _, name := range names {
			lines = append(lines, name+": "+h[name])
		}
		return lines, nil
	}

	return nil, fmt.Errorf("fake response: unsupported headers %T", headers)
}

func fakeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(b), nil
	case []byte:
		return b, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return nil, fmt.Errorf("fake response: encoding body: %w", err)
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func infoFromMap(m map[string]any) (transport.Info, bool, error) {
	var info transport.Info

	b, err := json.Marshal(m)
	if err != nil {
		return info, false, fmt.Errorf("fake response: encoding info: %w", err)
	}
	if err := json.Unmarshal(b, &info); err != nil {
		return info, false, fmt.Errorf("fake response: decoding info: %w", err)
	}

	known := infoKeys()
	for k, v := range m {
		if _, ok := known[k]; ok {
			continue
		}
		if info.Extensions == nil {
			info.Extensions = make(map[string]any)
		}
		info.Extensions[k] = v
	}

	_, hasStatus := m["http_code"]
	return info, hasStatus, nil
}

var infoKeys = sync.OnceValue(func() map[string]struct{} {
	keys := make(map[string]struct{})
	t := reflect.TypeFor[transport.Info]()
	for i := range t.NumField() {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			keys[name] = struct{}{}
		}
	}
	return keys
})
