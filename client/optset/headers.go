package optset

import (
	"mime"
	"slices"
	"strings"
)

// Headers is an ordered collection of raw "Name: value" lines keyed by the
// lower-cased, trimmed header name. Setting an existing name moves it to
// the end, so the most recently set header always enumerates last.
type Headers struct {
	keys  []string
	lines map[string]string
}

// HeaderKey returns the collection key for a raw header line.
func HeaderKey(line string) string {
	name, _, _ := strings.Cut(line, ":")
	return strings.TrimSpace(strings.ToLower(name))
}

// Set stores line under its key, removing any previous entry first.
func (h *Headers) Set(line string) {
	key := HeaderKey(line)

	if h.lines == nil {
		h.lines = make(map[string]string)
	}
	if _, ok := h.lines[key]; ok {
		h.keys = slices.DeleteFunc(h.keys, func(k string) bool { return k == key })
	}

	h.keys = append(h.keys, key)
	h.lines[key] = line
}

// Get returns the raw line stored for name.
func (h Headers) Get(name string) (string, bool) {
	line, ok := h.lines[HeaderKey(name)]
	return line, ok
}

// Value returns the trimmed value part of the header stored for name.
func (h Headers) Value(name string) (string, bool) {
	line, ok := h.Get(name)
	if !ok {
		return "", false
	}
	_, value, _ := strings.Cut(line, ":")
	return strings.TrimSpace(value), true
}

// Lines returns the raw header lines in enumeration order.
func (h Headers) Lines() []string {
	out := make([]string, 0, len(h.keys))
	for _, k := range h.keys {
		out = append(out, h.lines[k])
	}
	return out
}

// Len reports the number of headers.
func (h Headers) Len() int { return len(h.keys) }

// IsJSON reports whether a Content-Type header with the application/json
// media type is present.
func (h Headers) IsJSON() bool {
	v, ok := h.Value("Content-Type")
	if !ok {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(v)
	if err != nil {
		return false
	}
	return mediaType == "application/json"
}

// Clone returns an independent copy of h.
func (h Headers) Clone() Headers {
	if h.lines == nil {
		return Headers{}
	}
	lines := make(map[string]string, len(h.lines))
	for k, v := range h.lines {
		lines[k] = v
	}
	return Headers{keys: slices.Clone(h.keys), lines: lines}
}

// merge replaces h's entries key by key with over's. Keys already present
// keep their position; new keys are appended in over's order.
func (h Headers) merge(over Headers) Headers {
	out := h.Clone()
	for _, k := range over.keys {
		if out.lines == nil {
			out.lines = make(map[string]string)
		}
		if _, ok := out.lines[k]; !ok {
			out.keys = append(out.keys, k)
		}
		out.lines[k] = over.lines[k]
	}
	return out
}
