package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"net/http"
	"os"
	"reflect"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/httpkit/client/filestream"
	"github.com/adamwoolhether/httpkit/client/optset"
	"github.com/adamwoolhether/httpkit/client/response"
	"github.com/adamwoolhether/httpkit/client/transport"
)

// sizeLimitBufferSize keeps progress checks frequent while a size
// limit is active.
const sizeLimitBufferSize = 256

// Exec performs one transfer to url with the merged options and clears
// the one-shot options. Transport failures do not return an error: they
// are reported by the Response. An error means the transfer was never
// attempted.
func (c *Client) Exec(ctx context.Context, url string) (*response.Response, error) {
	set, err := c.prepare()
	if err != nil {
		return nil, err
	}

	u := canonicalURL(url, set)
	t := c.begin(ctx, u, requestMethod(set))

	h := c.transport.Open()
	if err := transport.ApplyOptions(h, set); err != nil {
		_ = h.Close()
		t.span.End()
		c.release(set)
		return nil, &OptionError{Op: "Exec", Err: err}
	}

	target, _ := fileOption(set).(*filestream.Target)

	h.SetURL(u)
	h.SetHeaders(t.headerLines(set))
	h.SetHeaderFunc(t.captureHeader)
	h.SetProgressFunc(watchdog(set, target))

	// Transport errors are read back from the handle's info.
	_ = h.Perform(t.ctx)

	return c.finish(t, h, set), nil
}

// prepare merges the remembered and one-shot options into the descriptor
// for the next transfer and clears the one-shot options.
func (c *Client) prepare() (optset.Set, error) {
	set := optset.Merge(c.remembered, c.ephemeral)
	optErr := c.err

	c.ephemeral = optset.Set{}
	c.err = nil

	if c.guard() {
		c.release(set)
		return optset.Set{}, ErrLiveRequestInTest
	}
	if optErr != nil {
		c.release(set)
		return optset.Set{}, optErr
	}

	if body, ok := set.Native(optset.PostFields); ok && structured(body) && set.Headers().IsJSON() {
		b, err := encodeJSON(body)
		if err != nil {
			c.release(set)
			return optset.Set{}, &OptionError{Op: "Body", Err: err}
		}
		_ = set.SetNative(optset.PostFields, b)
	}

	if m, _ := set.String(optset.CustomRequest); m == http.MethodPost {
		_ = set.SetNative(optset.PostRedir, optset.PostRedirAll)
	}

	if _, ok := set.SizeLimit(); ok {
		_ = set.SetNative(optset.BufferSize, sizeLimitBufferSize)
	}

	return set, nil
}

// transfer tracks one in-flight request. Each transfer owns its header
// buffer, so batched handles never share capture state.
type transfer struct {
	ctx     context.Context
	span    trace.Span
	id      string
	url     string
	method  string
	started time.Time
	headers strings.Builder
}

func (c *Client) begin(ctx context.Context, url, method string) *transfer {
	id := c.newID()

	ctx, span := c.tracer.Start(ctx, "httpkit.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", url),
			attribute.String("request.id", id),
		),
	)

	return &transfer{
		ctx:     ctx,
		span:    span,
		id:      id,
		url:     url,
		method:  method,
		started: c.now(),
	}
}

func (t *transfer) captureHeader(line string) {
	t.headers.WriteString(line)
}

// headerLines returns the descriptor's header lines followed by the trace
// context of the transfer's span.
func (t *transfer) headerLines(set optset.Set) []string {
	lines := set.Headers().Lines()

	carrier := propagation.HeaderCarrier(http.Header{})
	otel.GetTextMapPropagator().Inject(t.ctx, carrier)
	for _, k := range slices.Sorted(maps.Keys(carrier)) {
		lines = append(lines, k+": "+carrier.Get(k))
	}

	return lines
}

// finish turns a performed handle into a Response, closes the handle,
// releases file resources and reports completion.
func (c *Client) finish(t *transfer, h transport.Handle, set optset.Set) *response.Response {
	info := buildInfo(h, set)
	if info.EffectiveMethod == "" {
		info.EffectiveMethod = t.method
	}

	if err := h.Close(); err != nil {
		c.logger.Error("closing transfer handle", "request_id", t.id, "error", err)
	}

	resp := response.New(t.headers.String(), h.Body(), info)
	c.cleanup(t, resp, set)
	c.complete(t, resp)

	return resp
}

// buildInfo collects the diagnostics for a handle, copying extension
// fields from the descriptor and reclassifying size-limit aborts.
func buildInfo(h transport.Handle, set optset.Set) transport.Info {
	info := h.Info()

	for _, name := range slices.Sorted(maps.Keys(set.ExtendInfo())) {
		v, ok := set.Native(set.ExtendInfo()[name])
		if !ok {
			continue
		}
		if r, isReader := v.(io.Reader); isReader {
			content, ok := rewindAndRead(r)
			if !ok {
				continue
			}
			v = content
		}
		if info.Extensions == nil {
			info.Extensions = make(map[string]any)
		}
		info.Extensions[name] = v
	}

	if limit, ok := set.SizeLimit(); ok &&
		strings.Contains(strings.ToLower(info.Error), transport.ErrCallbackAborted.Error()) {
		info.StatusCode = 0
		info.Error += fmt.Sprintf(" (due to size limit: %d kB)", limit)
	}

	return info
}

// watchdog aborts a transfer once the announced or received size passes
// the descriptor's size limit. It also feeds the expected size to a
// download target for progress logging.
func watchdog(set optset.Set, target *filestream.Target) transport.ProgressFunc {
	limit, hasLimit := set.SizeLimit()
	if !hasLimit && target == nil {
		return nil
	}
	maxBytes := int64(limit) * 1024

	return func(dlTotal, dlNow, _, _ int64) bool {
		if target != nil {
			target.SetTotal(dlTotal)
		}
		return hasLimit && (dlTotal > maxBytes || dlNow > maxBytes)
	}
}

// cleanup settles file resources once the transfer is over. A download
// target, or a named output file, is kept only when the response
// succeeded. Failures are logged.
func (c *Client) cleanup(t *transfer, resp *response.Response, set optset.Set) {
	switch f := fileOption(set).(type) {
	case *filestream.Target:
		if resp.Success() {
			if err := f.Commit(); err != nil && !errors.Is(err, filestream.ErrTargetClosed) {
				c.logger.Error("committing download", "request_id", t.id, "path", f.Path(), "error", err)
			}
			break
		}
		if err := f.Discard(); err != nil {
			c.logger.Error("discarding download", "request_id", t.id, "path", f.Path(), "error", err)
		}
	case io.Closer:
		if err := f.Close(); err != nil && !errors.Is(err, fs.ErrClosed) {
			c.logger.Error("closing output file", "request_id", t.id, "error", err)
		}
		named, ok := f.(interface{ Name() string })
		if !ok || resp.Success() {
			break
		}
		if err := os.Remove(named.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.Error("removing output file", "request_id", t.id, "path", named.Name(), "error", err)
		}
	}

	if in, ok := set.Native(optset.InFile); ok {
		if closer, ok := in.(io.Closer); ok {
			if err := closer.Close(); err != nil && !errors.Is(err, fs.ErrClosed) {
				c.logger.Error("closing upload file", "request_id", t.id, "error", err)
			}
		}
	}
}

// release drops file resources of a descriptor that will not be
// transferred.
func (c *Client) release(set optset.Set) {
	if target, ok := fileOption(set).(*filestream.Target); ok {
		if err := target.Discard(); err != nil {
			c.logger.Error("discarding download", "path", target.Path(), "error", err)
		}
	}
	if in, ok := set.Native(optset.InFile); ok {
		if closer, ok := in.(io.Closer); ok {
			_ = closer.Close()
		}
	}
}

func (c *Client) complete(t *transfer, resp *response.Response) {
	info := resp.Info()
	finished := c.now()

	t.span.SetAttributes(attribute.Int("http.response.status_code", info.StatusCode))
	if info.Error != "" {
		t.span.SetStatus(codes.Error, info.Error)
	}
	t.span.End()

	c.logger.Debug("request completed",
		"request_id", t.id,
		"method", t.method,
		"url", t.url,
		"status", info.StatusCode,
		"since", finished.Sub(t.started),
	)

	if c.onComplete != nil {
		c.onComplete(Event{
			RequestID:  t.id,
			URI:        t.url,
			Method:     t.method,
			StartedAt:  t.started,
			FinishedAt: finished,
		})
	}
}

// canonicalURL prefixes the base URL and escapes literal spaces.
func canonicalURL(url string, set optset.Set) string {
	if prefix, ok := set.BaseURL(); ok {
		url = prefix + url
	}
	return strings.ReplaceAll(url, " ", "%20")
}

// requestMethod resolves the method a descriptor will be sent with.
func requestMethod(set optset.Set) string {
	if m, ok := set.String(optset.CustomRequest); ok && m != "" {
		return m
	}

	switch {
	case set.Bool(optset.NoBody):
		return http.MethodHead
	case set.Bool(optset.Put):
		return http.MethodPut
	}
	if _, ok := set.Native(optset.PostFields); ok {
		return http.MethodPost
	}

	return http.MethodGet
}

func fileOption(set optset.Set) any {
	v, _ := set.Native(optset.File)
	return v
}

// structured reports whether v is data to be encoded rather than a raw
// payload.
func structured(v any) bool {
	switch v.(type) {
	case nil, string, []byte, io.Reader:
		return false
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return true
	}
	return false
}

func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encoding json body: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func rewindAndRead(r io.Reader) (string, bool) {
	s, ok := r.(io.Seeker)
	if !ok {
		return "", false
	}
	if _, err := s.Seek(0, io.SeekStart); err != nil {
		return "", false
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", false
	}
	return string(b), true
}
