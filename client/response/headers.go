package response

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Header is one parsed response header. Lines without a colon, such as
// status lines, are positional and carry an empty Name and the raw line as
// their only value. A name seen more than once keeps every value in order.
type Header struct {
	Name   string
	Values []string
}

// Value returns the first value.
func (h Header) Value() string {
	if len(h.Values) == 0 {
		return ""
	}
	return h.Values[0]
}

// Headers is the ordered result of [ParseHeaders].
type Headers []Header

// ParseHeaders splits a raw header blob into entries. Blank lines are
// skipped and values of repeated names are folded into one entry.
func ParseHeaders(raw string) Headers {
	var hs Headers
	index := make(map[string]int)

	for line := range strings.SplitSeq(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			hs = append(hs, Header{Values: []string{line}})
			continue
		}

		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if i, seen := index[name]; seen {
			hs[i].Values = append(hs[i].Values, value)
			continue
		}

		index[name] = len(hs)
		hs = append(hs, Header{Name: name, Values: []string{value}})
	}

	return hs
}

// Lookup finds a named header ignoring case and spaces.
func (hs Headers) Lookup(name string) (Header, bool) {
	want := foldName(name)
	for _, h := range hs {
		if h.Name != "" && foldName(h.Name) == want {
			return h, true
		}
	}
	return Header{}, false
}

// Positional returns the entries without a name, usually status lines.
func (hs Headers) Positional() []string {
	var lines []string
	for _, h := range hs {
		if h.Name == "" {
			lines = append(lines, h.Values...)
		}
	}
	return lines
}

// MarshalJSON renders the headers as an object in parse order. Positional
// entries are keyed by their running index; repeated names become arrays.
func (hs Headers) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	var pos int
	for i, h := range hs {
		if i > 0 {
			buf.WriteByte(',')
		}

		key := h.Name
		if key == "" {
			key = strconv.Itoa(pos)
			pos++
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')

		var v []byte
		if len(h.Values) == 1 {
			v, err = json.Marshal(h.Values[0])
		} else {
			v, err = json.Marshal(h.Values)
		}
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func foldName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "")
}
