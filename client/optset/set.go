package optset

import (
	"maps"
	"slices"
)

// Set is one layer of request configuration. The zero value is empty and
// ready to use. A Set is owned by a single builder; Merge and Clone return
// copies that share no maps with their inputs.
type Set struct {
	natives    map[Option]any
	unset      map[Option]struct{}
	headers    Headers
	baseURL    *string
	noBaseURL  bool
	sizeLimit  *int
	extendInfo map[string]Option
}

// SetNative stores v under o. A nil v removes o from the set and marks it
// unset, so Merge also removes it from the layer below.
func (s *Set) SetNative(o Option, v any) error {
	if v == nil {
		if !o.valid() {
			return ErrUnknownOption
		}
		delete(s.natives, o)
		if s.unset == nil {
			s.unset = make(map[Option]struct{})
		}
		s.unset[o] = struct{}{}
		return nil
	}

	nv, err := Normalize(o, v)
	if err != nil {
		return err
	}

	if s.natives == nil {
		s.natives = make(map[Option]any)
	}
	s.natives[o] = nv
	delete(s.unset, o)

	return nil
}

// Native returns the value stored under o.
func (s Set) Native(o Option) (any, bool) {
	v, ok := s.natives[o]
	return v, ok
}

// String returns the string value stored under o, if any.
func (s Set) String(o Option) (string, bool) {
	v, ok := s.natives[o].(string)
	return v, ok
}

// Bool returns the bool value stored under o; absent reads as false.
func (s Set) Bool(o Option) bool {
	v, _ := s.natives[o].(bool)
	return v
}

// Int returns the integer value stored under o, if any.
func (s Set) Int(o Option) (int64, bool) {
	v, ok := s.natives[o].(int64)
	return v, ok
}

// Natives returns the stored native options ordered by Option.
func (s Set) Natives() []Option {
	return slices.Sorted(maps.Keys(s.natives))
}

// SetHeader stores a raw header line, moving an existing entry of the
// same name to the end.
func (s *Set) SetHeader(line string) {
	s.headers.Set(line)
}

// Headers returns the header collection.
func (s Set) Headers() Headers { return s.headers }

// SetBaseURL sets the URL prefix. Nil removes it and marks it unset, so
// Merge also removes it from the layer below.
func (s *Set) SetBaseURL(prefix *string) {
	s.baseURL = prefix
	s.noBaseURL = prefix == nil
}

// BaseURL returns the URL prefix.
func (s Set) BaseURL() (string, bool) {
	if s.baseURL == nil {
		return "", false
	}
	return *s.baseURL, true
}

// SetSizeLimit sets the response size ceiling in kilobytes; nil removes it.
func (s *Set) SetSizeLimit(kb *int) {
	s.sizeLimit = kb
}

// SizeLimit returns the response size ceiling in kilobytes.
func (s Set) SizeLimit() (int, bool) {
	if s.sizeLimit == nil || *s.sizeLimit <= 0 {
		return 0, false
	}
	return *s.sizeLimit, true
}

// SetExtendInfo maps diagnostic field names to the options whose values
// should be copied into the transfer's diagnostic info.
func (s *Set) SetExtendInfo(fields map[string]Option) {
	s.extendInfo = maps.Clone(fields)
}

// ExtendInfo returns the diagnostic extension mapping.
func (s Set) ExtendInfo() map[string]Option { return s.extendInfo }

// IsEmpty reports whether nothing has been set.
func (s Set) IsEmpty() bool {
	return len(s.natives) == 0 && len(s.unset) == 0 && s.headers.Len() == 0 && s.baseURL == nil && !s.noBaseURL &&
		s.sizeLimit == nil && len(s.extendInfo) == 0
}

// Clone returns a copy of s that shares no maps with it.
func (s Set) Clone() Set {
	out := Set{
		natives:    maps.Clone(s.natives),
		unset:      maps.Clone(s.unset),
		headers:    s.headers.Clone(),
		noBaseURL:  s.noBaseURL,
		extendInfo: maps.Clone(s.extendInfo),
	}
	if s.baseURL != nil {
		v := *s.baseURL
		out.baseURL = &v
	}
	if s.sizeLimit != nil {
		v := *s.sizeLimit
		out.sizeLimit = &v
	}
	return out
}

// Merge layers over on top of base. Keys present in over win and keys over
// marks unset are removed; the header collection and the extension mapping
// are merged key by key.
func Merge(base, over Set) Set {
	out := base.Clone()
	out.unset = nil
	out.noBaseURL = false

	for o := range over.unset {
		delete(out.natives, o)
	}

	for o, v := range over.natives {
		if out.natives == nil {
			out.natives = make(map[Option]any)
		}
		out.natives[o] = v
	}

	out.headers = out.headers.merge(over.headers)

	switch {
	case over.baseURL != nil:
		v := *over.baseURL
		out.baseURL = &v
	case over.noBaseURL:
		out.baseURL = nil
	}
	if over.sizeLimit != nil {
		v := *over.sizeLimit
		out.sizeLimit = &v
	}

	for k, o := range over.extendInfo {
		if out.extendInfo == nil {
			out.extendInfo = make(map[string]Option)
		}
		out.extendInfo[k] = o
	}

	return out
}
