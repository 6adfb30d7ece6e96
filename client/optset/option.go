// Package optset holds the option model shared by the request builder and
// the transport: a closed enumeration of native transport options, an
// ordered header collection, and the Set type that merges long-lived
// (remembered) options with one-shot ones.
package optset

import (
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	// ErrKindMismatch is returned when a native option receives a value of the wrong type.
	ErrKindMismatch = errors.New("option value kind mismatch")
	// ErrUnknownOption is returned for an Option outside the enumeration.
	ErrUnknownOption = errors.New("unknown option")
)

// Option enumerates the native transport options a request can carry.
type Option int

const (
	CustomRequest  Option = iota + 1 // string: explicit HTTP method.
	NoBody                           // bool: HEAD semantics, no response body.
	PostFields                       // any: request body payload.
	Encoding                         // string: accepted content encodings, "" for all supported.
	FollowLocation                   // bool: follow redirects.
	MaxRedirs                        // int: redirect ceiling, negative for unlimited.
	AutoReferer                      // bool: set Referer when following redirects.
	PostRedir                        // int: PostRedir* bitmask.
	Put                              // bool: upload mode, body read from InFile.
	InFile                           // reader: upload source.
	InFileSize                       // int: upload size in bytes.
	File                             // writer: response body sink.
	UserAgent                        // string
	Referer                          // string
	Proxy                            // string: host:port or URL.
	ProxyUserPwd                     // string: login:password for the proxy.
	Cookie                           // string: raw Cookie header value.
	CookieFile                       // string: Netscape cookie file to read.
	CookieJar                        // string: Netscape cookie file to write.
	ConnectTimeout                   // duration
	Timeout                          // duration: whole transfer.
	HTTPAuth                         // int: AuthBasic or AuthDigest.
	UserPwd                          // string: login:password.
	SSLVerifyPeer                    // bool
	SSLVerifyHost                    // bool
	ReturnTransfer                   // bool: buffer the body instead of echoing it to stdout.
	BufferSize                       // int: read chunk size in bytes.

	lastOption
)

// PostRedir bits select which redirect codes keep the POST method.
const (
	PostRedir301 = 1 << iota
	PostRedir302
	PostRedir303
	PostRedirAll = PostRedir301 | PostRedir302 | PostRedir303
)

// HTTPAuth values.
const (
	AuthBasic = 1 << iota
	AuthDigest
)

// Kind describes the value type an Option accepts.
type Kind int

const (
	KindString Kind = iota + 1
	KindBool
	KindInt
	KindDuration
	KindReader
	KindWriter
	KindAny
)

var names = [...]string{
	CustomRequest:  "CustomRequest",
	NoBody:         "NoBody",
	PostFields:     "PostFields",
	Encoding:       "Encoding",
	FollowLocation: "FollowLocation",
	MaxRedirs:      "MaxRedirs",
	AutoReferer:    "AutoReferer",
	PostRedir:      "PostRedir",
	Put:            "Put",
	InFile:         "InFile",
	InFileSize:     "InFileSize",
	File:           "File",
	UserAgent:      "UserAgent",
	Referer:        "Referer",
	Proxy:          "Proxy",
	ProxyUserPwd:   "ProxyUserPwd",
	Cookie:         "Cookie",
	CookieFile:     "CookieFile",
	CookieJar:      "CookieJar",
	ConnectTimeout: "ConnectTimeout",
	Timeout:        "Timeout",
	HTTPAuth:       "HTTPAuth",
	UserPwd:        "UserPwd",
	SSLVerifyPeer:  "SSLVerifyPeer",
	SSLVerifyHost:  "SSLVerifyHost",
	ReturnTransfer: "ReturnTransfer",
	BufferSize:     "BufferSize",
}

func (o Option) String() string {
	if !o.valid() {
		return fmt.Sprintf("Option(%d)", int(o))
	}
	return names[o]
}

func (o Option) valid() bool {
	return o > 0 && o < lastOption
}

// Kind reports the value kind accepted by o.
func (o Option) Kind() Kind {
	switch o {
	case CustomRequest, Encoding, UserAgent, Referer, Proxy, ProxyUserPwd,
		Cookie, CookieFile, CookieJar, UserPwd:
		return KindString
	case NoBody, FollowLocation, AutoReferer, Put, SSLVerifyPeer, SSLVerifyHost, ReturnTransfer:
		return KindBool
	case MaxRedirs, PostRedir, InFileSize, HTTPAuth, BufferSize:
		return KindInt
	case ConnectTimeout, Timeout:
		return KindDuration
	case InFile:
		return KindReader
	case File:
		return KindWriter
	case PostFields:
		return KindAny
	}
	return 0
}

// Normalize checks v against the kind of o and returns the canonical value
// stored in a Set. Integers are widened to int64.
func Normalize(o Option, v any) (any, error) {
	if !o.valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOption, o)
	}

	switch o.Kind() {
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		}
	case KindDuration:
		if d, ok := v.(time.Duration); ok {
			return d, nil
		}
	case KindReader:
		if r, ok := v.(io.Reader); ok {
			return r, nil
		}
	case KindWriter:
		if w, ok := v.(io.Writer); ok {
			return w, nil
		}
	case KindAny:
		return v, nil
	}

	return nil, fmt.Errorf("%w: %s does not accept %T", ErrKindMismatch, o, v)
}
