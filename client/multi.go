package client

import (
	"context"
	"io"
	"sync"

	"github.com/adamwoolhether/httpkit/client/optset"
	"github.com/adamwoolhether/httpkit/client/response"
	"github.com/adamwoolhether/httpkit/client/transport"
)

// MultiExec performs one transfer per URL concurrently, all sharing the
// merged options, and returns the responses under the same keys. A
// failing transfer is reported by its own Response and does not affect
// the others. Streamed bodies (an upload file or an io.Reader body) are
// rejected with [ErrSharedStream] when there is more than one URL.
func (c *Client) MultiExec(ctx context.Context, urls map[string]string) (map[string]*response.Response, error) {
	return MultiExecKeyed(ctx, c, urls)
}

// MultiExecList is MultiExec for a positional list of URLs.
func (c *Client) MultiExecList(ctx context.Context, urls []string) ([]*response.Response, error) {
	keyed := make(map[int]string, len(urls))
	for i, u := range urls {
		keyed[i] = u
	}

	got, err := MultiExecKeyed(ctx, c, keyed)
	if err != nil {
		return nil, err
	}

	out := make([]*response.Response, len(urls))
	for i, r := range got {
		out[i] = r
	}
	return out, nil
}

// MultiExecKeyed is MultiExec for any comparable key type.
func MultiExecKeyed[K comparable](ctx context.Context, c *Client, urls map[K]string) (map[K]*response.Response, error) {
	set, err := c.prepare()
	if err != nil {
		return nil, err
	}

	out := make(map[K]*response.Response, len(urls))
	if len(urls) == 0 {
		c.release(set)
		return out, nil
	}
	if len(urls) > 1 && streamed(set) {
		c.release(set)
		return nil, &OptionError{Op: "MultiExec", Err: ErrSharedStream}
	}

	tmpl := c.transport.Open()
	defer tmpl.Close()

	if err := transport.ApplyOptions(tmpl, set); err != nil {
		c.release(set)
		return nil, &OptionError{Op: "MultiExec", Err: err}
	}
	tmpl.SetProgressFunc(watchdog(set, nil))

	// Handles run on their own goroutines, so a shared sink needs a lock.
	if w, ok := fileOption(set).(io.Writer); ok && len(urls) > 1 {
		if err := tmpl.SetOption(optset.File, &lockedWriter{w: w}); err != nil {
			c.release(set)
			return nil, &OptionError{Op: "MultiExec", Err: err}
		}
	}

	method := requestMethod(set)
	transfers := make(map[K]*transfer, len(urls))
	handles := make(map[K]transport.Handle, len(urls))
	m := transport.NewMulti()

	for k, raw := range urls {
		u := canonicalURL(raw, set)
		t := c.begin(ctx, u, method)

		h := tmpl.Clone()
		h.SetURL(u)
		h.SetHeaders(t.headerLines(set))
		h.SetHeaderFunc(t.captureHeader)

		transfers[k] = t
		handles[k] = h

		// m is not closed until every handle is added.
		_ = m.Add(h)
	}

	for m.Perform(ctx) > 0 {
		m.Wait()
	}

	for k, t := range transfers {
		m.Remove(handles[k])
		out[k] = c.finish(t, handles[k], set)
	}

	if err := m.Close(); err != nil {
		c.logger.Error("closing batch", "error", err)
	}

	return out, nil
}

// streamed reports whether the descriptor's body is read from a stream,
// which concurrent transfers cannot share.
func streamed(set optset.Set) bool {
	if set.Bool(optset.Put) {
		if _, ok := set.Native(optset.InFile); ok {
			return true
		}
	}
	body, _ := set.Native(optset.PostFields)
	_, ok := body.(io.Reader)
	return ok
}

// lockedWriter serializes writes from concurrent transfers into one sink.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
