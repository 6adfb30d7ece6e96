// Package transporttest provides a scripted [transport.Transport] for
// exercising request builders without a network.
package transporttest

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/adamwoolhether/httpkit/client/optset"
	"github.com/adamwoolhether/httpkit/client/transport"
)

// Reply scripts the outcome of one transfer.
type Reply struct {
	Status  int
	Headers []string // "Name: value" lines; the status line is generated.
	Body    []byte
	Err     error         // reported as the transport error
	Delay   time.Duration // held before the transfer completes
}

// Request is what a handle was configured with when it performed.
type Request struct {
	URL     string
	Method  string
	Options map[optset.Option]any
	Headers []string
}

// HandlerFunc maps a configured request to its scripted reply.
type HandlerFunc func(Request) Reply

// Transport is a [transport.Transport] whose handles answer from a
// HandlerFunc. It is safe for concurrent use.
type Transport struct {
	handler HandlerFunc

	mu       sync.Mutex
	requests []Request
}

// New returns a Transport answering every transfer with fn.
func New(fn HandlerFunc) *Transport {
	return &Transport{handler: fn}
}

// Static returns a Transport answering every transfer with r.
func Static(r Reply) *Transport {
	return New(func(Request) Reply { return r })
}

// Open implements [transport.Transport].
func (t *Transport) Open() transport.Handle {
	return &handle{tr: t, opts: make(map[optset.Option]any)}
}

// Requests returns the requests performed so far, in completion order.
func (t *Transport) Requests() []Request {
	t.mu.Lock()
	defer t.mu.Unlock()

	return slices.Clone(t.requests)
}

func (t *Transport) record(r Request) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.requests = append(t.requests, r)
}

type handle struct {
	tr         *Transport
	url        string
	opts       map[optset.Option]any
	headers    []string
	onHeader   transport.HeaderFunc
	onProgress transport.ProgressFunc

	body   []byte
	info   transport.Info
	err    error
	closed bool
}

func (h *handle) SetOption(o optset.Option, v any) error {
	if v == nil {
		delete(h.opts, o)
		return nil
	}
	nv, err := optset.Normalize(o, v)
	if err != nil {
		return err
	}
	h.opts[o] = nv
	return nil
}

func (h *handle) SetURL(u string)                           { h.url = u }
func (h *handle) SetHeaders(lines []string)                 { h.headers = slices.Clone(lines) }
func (h *handle) SetHeaderFunc(fn transport.HeaderFunc)     { h.onHeader = fn }
func (h *handle) SetProgressFunc(fn transport.ProgressFunc) { h.onProgress = fn }

func (h *handle) Body() []byte         { return h.body }
func (h *handle) Info() transport.Info { return h.info }
func (h *handle) Err() error           { return h.err }

func (h *handle) Clone() transport.Handle {
	return &handle{
		tr:         h.tr,
		url:        h.url,
		opts:       maps.Clone(h.opts),
		headers:    slices.Clone(h.headers),
		onHeader:   h.onHeader,
		onProgress: h.onProgress,
	}
}

func (h *handle) Close() error {
	h.closed = true
	return nil
}

func (h *handle) Perform(ctx context.Context) error {
	if h.closed {
		return transport.ErrHandleClosed
	}

	req := Request{
		URL:     h.url,
		Method:  h.method(),
		Options: maps.Clone(h.opts),
		Headers: slices.Clone(h.headers),
	}
	reply := h.tr.handler(req)
	h.tr.record(req)

	h.body = nil
	h.info = transport.Info{URL: h.url, EffectiveMethod: req.Method}
	h.err = h.perform(ctx, reply, req.Method)
	if h.err != nil {
		h.info.Error = h.err.Error()
	}

	return h.err
}

func (h *handle) perform(ctx context.Context, reply Reply, method string) error {
	if reply.Delay > 0 {
		timer := time.NewTimer(reply.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if reply.Err != nil {
		return reply.Err
	}

	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	h.info.StatusCode = status
	h.info.ContentLength = int64(len(reply.Body))

	lines := make([]string, 0, len(reply.Headers)+2)
	lines = append(lines, fmt.Sprintf("HTTP/1.1 %d %s", status, http.StatusText(status)))
	lines = append(lines, reply.Headers...)
	lines = append(lines, "")
	for _, l := range lines {
		l += "\r\n"
		h.info.HeaderSize += len(l)
		if h.onHeader != nil {
			h.onHeader(l)
		}
	}
	for _, l := range reply.Headers {
		if optset.HeaderKey(l) == "content-type" {
			_, v, _ := strings.Cut(l, ":")
			h.info.ContentType = strings.TrimSpace(v)
		}
	}

	if method == http.MethodHead {
		return nil
	}

	return h.deliver(reply.Body)
}

// deliver feeds body to the configured sink in BufferSize chunks,
// consulting the progress callback after each one.
func (h *handle) deliver(body []byte) error {
	chunk := len(body)
	if n, ok := h.opts[optset.BufferSize].(int64); ok && n > 0 {
		chunk = int(n)
	}
	if chunk == 0 {
		chunk = 1
	}

	var sink io.Writer
	if w, ok := h.opts[optset.File].(io.Writer); ok {
		sink = w
	}

	total := int64(len(body))
	if h.progress(total, 0) {
		return transport.ErrCallbackAborted
	}

	for off := 0; off < len(body); off += chunk {
		part := body[off:min(off+chunk, len(body))]
		if sink != nil {
			if _, err := sink.Write(part); err != nil {
				return fmt.Errorf("writing body: %w", err)
			}
		} else {
			h.body = append(h.body, part...)
		}
		h.info.SizeDownload += int64(len(part))

		if h.progress(total, h.info.SizeDownload) {
			return transport.ErrCallbackAborted
		}
	}

	return nil
}

func (h *handle) progress(total, now int64) bool {
	if h.onProgress == nil {
		return false
	}
	return h.onProgress(total, now, 0, 0)
}

func (h *handle) method() string {
	if m, ok := h.opts[optset.CustomRequest].(string); ok && m != "" {
		return m
	}
	if nb, _ := h.opts[optset.NoBody].(bool); nb {
		return http.MethodHead
	}
	if p, _ := h.opts[optset.Put].(bool); p {
		return http.MethodPut
	}
	if _, ok := h.opts[optset.PostFields]; ok {
		return http.MethodPost
	}
	return http.MethodGet
}
