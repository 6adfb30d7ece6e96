// Package transport defines the boundary between the request builder and
// the engine that moves bytes: a Transport opens Handles, a Handle carries
// one configured transfer, and a Multi drives many Handles concurrently.
//
// [HTTP] is the production implementation on top of [net/http].
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/adamwoolhether/httpkit/client/optset"
)

var (
	// ErrCallbackAborted is reported when a progress callback stops a transfer.
	ErrCallbackAborted = errors.New("callback aborted")
	// ErrTooManyRedirects is reported when the MaxRedirs ceiling is hit.
	ErrTooManyRedirects = errors.New("maximum redirects followed")
	// ErrUnsupportedBody is reported when a PostFields value cannot be encoded.
	ErrUnsupportedBody = errors.New("unsupported request body")
	// ErrHandleClosed is returned when a closed Handle is used.
	ErrHandleClosed = errors.New("handle closed")
)

// HeaderFunc receives every response header line as it arrives, including
// status lines and the blank line ending each header block.
type HeaderFunc func(line string)

// ProgressFunc is called periodically during a transfer. Returning true
// aborts the transfer with ErrCallbackAborted.
type ProgressFunc func(dlTotal, dlNow, ulTotal, ulNow int64) bool

// Transport opens transfer handles.
type Transport interface {
	Open() Handle
}

// Handle is a single configurable transfer.
type Handle interface {
	// SetOption stores a native option; a nil value removes it.
	SetOption(opt optset.Option, v any) error
	SetURL(url string)
	SetHeaders(lines []string)
	SetHeaderFunc(fn HeaderFunc)
	SetProgressFunc(fn ProgressFunc)

	// Perform runs the transfer synchronously. The returned error is also
	// available from Err afterwards.
	Perform(ctx context.Context) error

	Body() []byte
	Info() Info
	Err() error

	// Clone returns an unstarted copy carrying the same configuration.
	Clone() Handle
	Close() error
}

// Info is the transport-reported diagnostic data for one transfer.
type Info struct {
	URL               string         `json:"url"`
	EffectiveMethod   string         `json:"effective_method,omitempty"`
	StatusCode        int            `json:"http_code"`
	ContentType       string         `json:"content_type,omitempty"`
	HeaderSize        int            `json:"header_size"`
	RequestHeader     string         `json:"request_header,omitempty"`
	RedirectCount     int            `json:"redirect_count"`
	RedirectURL       string         `json:"redirect_url,omitempty"`
	PrimaryIP         string         `json:"primary_ip,omitempty"`
	SizeUpload        int64          `json:"size_upload"`
	SizeDownload      int64          `json:"size_download"`
	ContentLength     int64          `json:"download_content_length"`
	NameLookupTime    time.Duration  `json:"namelookup_time"`
	ConnectTime       time.Duration  `json:"connect_time"`
	StartTransferTime time.Duration  `json:"starttransfer_time"`
	TotalTime         time.Duration  `json:"total_time"`
	Error             string         `json:"error,omitempty"`
	Extensions        map[string]any `json:"extensions,omitempty"`
}

// ApplyOptions copies every native option of s onto h.
func ApplyOptions(h Handle, s optset.Set) error {
	var errs []error
	for _, o := range s.Natives() {
		v, _ := s.Native(o)
		if err := h.SetOption(o, v); err != nil {
			errs = append(errs, err)
		}
	}
	h.SetHeaders(s.Headers().Lines())

	return errors.Join(errs...)
}
