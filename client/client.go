package client

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/httpkit/client/optset"
	"github.com/adamwoolhether/httpkit/client/transport"
)

// Client accumulates request options and executes transfers.
//
// Options set through the fluent methods apply to the next Exec or
// MultiExec only. Options set inside [Client.Remember] apply to every
// later transfer until [Client.Reset]. A Client is not safe for concurrent
// use; concurrency happens at the transfer level inside MultiExec.
type Client struct {
	transport  transport.Transport
	logger     *slog.Logger
	tracer     trace.Tracer
	onComplete func(Event)
	guard      Guard
	newID      IDGenerator
	now        func() time.Time

	remembered optset.Set
	ephemeral  optset.Set
	err        error
}

// Build creates a Client. Unless [WithoutDefaults] is given, the default
// option stack is remembered: all supported content encodings, redirect
// following with referer, buffered bodies and a suppressed Expect header.
func Build(optFns ...Option) (*Client, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	c := &Client{
		transport:  opts.transport,
		logger:     opts.logger,
		tracer:     opts.tracer,
		onComplete: opts.onComplete,
		guard:      opts.guard,
		newID:      opts.newID,
		now:        opts.now,
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.transport == nil {
		tr, err := transport.NewHTTP(transport.WithLogger(c.logger))
		if err != nil {
			return nil, fmt.Errorf("creating transport: %w", err)
		}
		c.transport = tr
	}
	if c.tracer == nil {
		c.tracer = noop.NewTracerProvider().Tracer("")
	}
	if c.guard == nil {
		c.guard = EnvGuard("APP_ENV", "testing")
	}
	if c.newID == nil {
		c.newID = UUID
	}
	if c.now == nil {
		c.now = time.Now
	}

	if !opts.noDefaults {
		c.applyDefaults()
	}

	return c, nil
}

// Remember runs fn against an empty one-shot option set and merges what
// it sets into the remembered options. One-shot options set before the
// call are kept for the next transfer.
func (c *Client) Remember(fn func(*Client)) *Client {
	saved := c.ephemeral
	c.ephemeral = optset.Set{}

	fn(c)
	c.remembered = optset.Merge(c.remembered, c.ephemeral)

	c.ephemeral = saved
	return c
}

// Reset clears both option sets and any recorded option error, then
// optionally re-applies the default stack.
func (c *Client) Reset(applyDefaults bool) *Client {
	c.remembered = optset.Set{}
	c.ephemeral = optset.Set{}
	c.err = nil

	if applyDefaults {
		c.applyDefaults()
	}
	return c
}

func (c *Client) applyDefaults() {
	c.Remember(func(c *Client) {
		c.Native(optset.Encoding, "").
			Native(optset.FollowLocation, true).
			Native(optset.AutoReferer, true).
			Native(optset.ReturnTransfer, true).
			HeaderLines("Expect: ")
	})
}

// Err returns the first option error recorded since the last transfer.
func (c *Client) Err() error { return c.err }

func (c *Client) fail(op string, err error) *Client {
	if c.err == nil {
		c.err = &OptionError{Op: op, Err: err}
	}
	return c
}

// Header sets one request header. A header already set under the same
// name, in any case, is replaced and moves to the end.
func (c *Client) Header(name, value string) *Client {
	c.ephemeral.SetHeader(name + ": " + value)
	return c
}

// HeaderLines sets raw "Name: value" header lines in order.
func (c *Client) HeaderLines(lines ...string) *Client {
	for _, line := range lines {
		c.ephemeral.SetHeader(line)
	}
	return c
}

// Headers sets every header in h, in name order.
func (c *Client) Headers(h map[string]string) *Client {
	for _, name := range slices.Sorted(maps.Keys(h)) {
		c.Header(name, h[name])
	}
	return c
}

// Method sets the request method. HEAD switches to a bodiless request;
// any other verb is sent as given.
func (c *Client) Method(name string) *Client {
	name = strings.ToUpper(name)

	if name == "HEAD" {
		return c.Native(optset.NoBody, true).Native(optset.CustomRequest, nil)
	}
	return c.Native(optset.CustomRequest, name)
}

// Body sets the request payload. Structured values (maps, slices and
// structs) are JSON encoded when the merged headers carry a JSON content
// type at execution time; otherwise maps are sent as multipart forms.
func (c *Client) Body(v any) *Client {
	return c.Native(optset.PostFields, v)
}

// Native sets a transport option directly. A nil value removes it, also
// hiding a remembered value for the next transfer.
func (c *Client) Native(o optset.Option, v any) *Client {
	if err := c.ephemeral.SetNative(o, v); err != nil {
		return c.fail(o.String(), err)
	}
	return c
}

// BaseURL sets a prefix prepended to every URL. An empty prefix removes
// it.
func (c *Client) BaseURL(prefix string) *Client {
	if prefix == "" {
		c.ephemeral.SetBaseURL(nil)
		return c
	}
	c.ephemeral.SetBaseURL(&prefix)
	return c
}

// ExtendInfo copies the request body into the response diagnostics as
// "request_body", and the upload source as "request_body_put".
func (c *Client) ExtendInfo() *Client {
	c.ephemeral.SetExtendInfo(map[string]optset.Option{
		"request_body":     optset.PostFields,
		"request_body_put": optset.InFile,
	})
	return c
}
