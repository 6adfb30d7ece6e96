package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"net/http"
	"net/http/httptrace"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adamwoolhether/httpkit/client/optset"
)

const (
	defaultMaxRedirs  = 30
	defaultBufferSize = 32 << 10 // 32KB
)

// httpHandle is the [Handle] returned by [HTTP.Open].
type httpHandle struct {
	tr         *HTTP
	url        string
	opts       map[optset.Option]any
	headers    []string
	onHeader   HeaderFunc
	onProgress ProgressFunc

	body     bytes.Buffer
	info     Info
	err      error
	uploaded atomic.Int64
	closed   bool
}

func (h *httpHandle) SetOption(o optset.Option, v any) error {
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

func (h *httpHandle) SetURL(u string)                 { h.url = u }
func (h *httpHandle) SetHeaders(lines []string)       { h.headers = slices.Clone(lines) }
func (h *httpHandle) SetHeaderFunc(fn HeaderFunc)     { h.onHeader = fn }
func (h *httpHandle) SetProgressFunc(fn ProgressFunc) { h.onProgress = fn }

func (h *httpHandle) Body() []byte { return h.body.Bytes() }
func (h *httpHandle) Info() Info   { return h.info }
func (h *httpHandle) Err() error   { return h.err }

func (h *httpHandle) Clone() Handle {
	return &httpHandle{
		tr:         h.tr,
		url:        h.url,
		opts:       maps.Clone(h.opts),
		headers:    slices.Clone(h.headers),
		onHeader:   h.onHeader,
		onProgress: h.onProgress,
	}
}

func (h *httpHandle) Close() error {
	h.closed = true
	return nil
}

// Perform runs the transfer. Transport failures are recorded on the handle
// and returned; they never panic or leave the handle half-populated.
func (h *httpHandle) Perform(ctx context.Context) error {
	if h.closed {
		return ErrHandleClosed
	}

	h.body.Reset()
	h.info = Info{URL: h.url}
	h.err = nil

	tm := &timing{start: time.Now()}
	err := h.perform(ctx, tm)
	tm.apply(&h.info)
	h.info.SizeUpload = h.uploaded.Load()

	if err != nil {
		h.err = err
		h.info.Error = err.Error()
	}

	return err
}

func (h *httpHandle) perform(ctx context.Context, tm *timing) error {
	if d, ok := h.opts[optset.Timeout].(time.Duration); ok && d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	rt, err := h.tr.roundTripper(h.poolKey())
	if err != nil {
		return err
	}

	cookies, err := h.cookieStore()
	if err != nil {
		return err
	}

	client := &http.Client{
		Transport: rt,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	if cookies != nil {
		client.Jar = cookies.jar
	}

	pl, err := h.payload()
	if err != nil {
		return err
	}

	method := h.method(pl != nil)
	if method == http.MethodHead {
		pl = nil
	}

	maxRedirs := int64(defaultMaxRedirs)
	if n, ok := h.opts[optset.MaxRedirs].(int64); ok {
		maxRedirs = n
	}

	target := h.url
	referer, _ := h.opts[optset.Referer].(string)
	var authorization string
	var triedDigest bool

	for {
		req, err := h.newRequest(ctx, method, target, pl, referer, authorization, tm)
		if err != nil {
			return err
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("exec http do: %w", err)
		}

		h.info.URL = target
		h.info.EffectiveMethod = method
		h.info.StatusCode = resp.StatusCode
		h.info.ContentType = resp.Header.Get("Content-Type")
		h.emitHeaders(resp)
		cookies.record(resp)

		if !triedDigest && h.wantsDigest(resp) {
			triedDigest = true
			authorization, err = h.digestAuthorization(resp, method, req.URL.RequestURI(), pl)
			if err != nil {
				drainAndClose(resp.Body)
				return err
			}
			drainAndClose(resp.Body)
			if err := pl.rewind(); err != nil {
				return err
			}
			continue
		}

		next, ok := redirectTarget(resp)
		if ok && h.flag(optset.FollowLocation) {
			drainAndClose(resp.Body)

			if maxRedirs >= 0 && int64(h.info.RedirectCount) >= maxRedirs {
				return fmt.Errorf("%w: %d", ErrTooManyRedirects, h.info.RedirectCount)
			}
			h.info.RedirectCount++

			method, pl = h.redirectMethod(resp.StatusCode, method, pl)
			if err := pl.rewind(); err != nil {
				return err
			}
			if h.flag(optset.AutoReferer) {
				referer = target
			}
			target = next
			authorization = ""
			triedDigest = false
			continue
		}
		if ok {
			h.info.RedirectURL = next
		}

		err = h.readBody(resp, method, pl)
		if serr := cookies.save(); serr != nil {
			err = errors.Join(err, serr)
		}
		return err
	}
}

func (h *httpHandle) poolKey() poolKey {
	key := poolKey{}
	key.proxy, _ = h.opts[optset.Proxy].(string)
	key.proxyAuth, _ = h.opts[optset.ProxyUserPwd].(string)
	key.connectTimeout, _ = h.opts[optset.ConnectTimeout].(time.Duration)

	if v, ok := h.opts[optset.SSLVerifyPeer].(bool); ok && !v {
		key.insecure = true
	}
	if v, ok := h.opts[optset.SSLVerifyHost].(bool); ok && !v {
		key.insecure = true
	}

	return key
}

func (h *httpHandle) flag(o optset.Option) bool {
	v, _ := h.opts[o].(bool)
	return v
}

// method resolves the request method: an explicit method wins, then HEAD,
// upload mode and the presence of a body.
func (h *httpHandle) method(hasBody bool) string {
	if m, ok := h.opts[optset.CustomRequest].(string); ok && m != "" {
		return m
	}

	switch {
	case h.flag(optset.NoBody):
		return http.MethodHead
	case h.flag(optset.Put):
		return http.MethodPut
	case hasBody:
		return http.MethodPost
	}

	return http.MethodGet
}

// redirectMethod decides the method and body for the next hop. 307 and 308
// always replay; 303 switches to GET; 301 and 302 switch a POST to GET
// unless the PostRedir mask keeps it.
func (h *httpHandle) redirectMethod(code int, method string, pl *payload) (string, *payload) {
	mask, _ := h.opts[optset.PostRedir].(int64)

	switch code {
	case http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return method, pl
	case http.StatusSeeOther:
		if method == http.MethodPost && mask&optset.PostRedir303 != 0 {
			return method, pl
		}
		if method == http.MethodHead {
			return method, nil
		}
		return http.MethodGet, nil
	case http.StatusMovedPermanently:
		if method == http.MethodPost && mask&optset.PostRedir301 == 0 {
			return http.MethodGet, nil
		}
	case http.StatusFound:
		if method == http.MethodPost && mask&optset.PostRedir302 == 0 {
			return http.MethodGet, nil
		}
	}

	return method, pl
}

func (h *httpHandle) newRequest(ctx context.Context, method, target string, pl *payload, referer, authorization string, tm *timing) (*http.Request, error) {
	var body io.Reader
	if pl != nil {
		h.uploaded.Store(0)
		body = &countingReader{r: pl.reader(), n: &h.uploaded}
	}

	ctx = httptrace.WithClientTrace(ctx, tm.trace())

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("instantiating request: %w", err)
	}

	if pl != nil {
		req.ContentLength = pl.size
		if pl.size == 0 {
			req.Body = http.NoBody
		}
		if pl.contentType != "" {
			req.Header.Set("Content-Type", pl.contentType)
		}
	}

	if ua, ok := h.opts[optset.UserAgent].(string); ok {
		req.Header.Set("User-Agent", ua)
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	if c, ok := h.opts[optset.Cookie].(string); ok && c != "" {
		req.Header.Set("Cookie", c)
	}
	if enc, ok := h.opts[optset.Encoding].(string); ok {
		req.Header.Set("Accept-Encoding", acceptEncoding(enc))
	}

	for _, line := range h.headers {
		name, value, _ := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name == "" {
			continue
		}

		// An empty value suppresses the header entirely.
		if value == "" {
			req.Header.Del(name)
			continue
		}
		if strings.EqualFold(name, "Host") {
			req.Host = value
			continue
		}
		req.Header.Set(name, value)
	}

	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	} else if up, ok := h.opts[optset.UserPwd].(string); ok {
		scheme, _ := h.opts[optset.HTTPAuth].(int64)
		if scheme == 0 || scheme&optset.AuthBasic != 0 {
			login, password, _ := strings.Cut(up, ":")
			req.SetBasicAuth(login, password)
		}
	}

	return req, nil
}

// emitHeaders feeds the response header block to the capture callback in
// wire order: status line, fields, blank line.
func (h *httpHandle) emitHeaders(resp *http.Response) {
	lines := make([]string, 0, len(resp.Header)+2)
	lines = append(lines, resp.Proto+" "+resp.Status)
	for _, k := range slices.Sorted(maps.Keys(resp.Header)) {
		for _, v := range resp.Header[k] {
			lines = append(lines, k+": "+v)
		}
	}
	lines = append(lines, "")

	for _, line := range lines {
		line += "\r\n"
		h.info.HeaderSize += len(line)
		if h.onHeader != nil {
			h.onHeader(line)
		}
	}
}

func (h *httpHandle) readBody(resp *http.Response, method string, pl *payload) error {
	defer drainAndClose(resp.Body)

	h.info.ContentLength = resp.ContentLength
	if method == http.MethodHead || h.flag(optset.NoBody) {
		return nil
	}

	var ulTotal int64
	if pl != nil {
		ulTotal = pl.size
	}

	counter := &progressReader{
		r:       resp.Body,
		total:   resp.ContentLength,
		ulTotal: ulTotal,
		ulNow:   h.uploaded.Load(),
		fn:      h.onProgress,
	}
	if err := counter.report(); err != nil {
		return err
	}

	_, decode := h.opts[optset.Encoding]
	r, err := decodeContent(counter, resp.Header.Get("Content-Encoding"), decode)
	if err != nil {
		return err
	}

	var sink io.Writer
	switch w, ok := h.opts[optset.File].(io.Writer); {
	case ok:
		sink = w
	case h.flag(optset.ReturnTransfer):
		sink = &h.body
	default:
		sink = os.Stdout
	}

	size := defaultBufferSize
	if n, ok := h.opts[optset.BufferSize].(int64); ok && n > 0 {
		size = int(n)
	}

	err = copyChunked(sink, r, make([]byte, size))
	h.info.SizeDownload = counter.n
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}

	return nil
}

// copyChunked copies src to dst through buf, so progress is reported at
// buffer granularity.
func copyChunked(dst io.Writer, src io.Reader, buf []byte) error {
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func redirectTarget(resp *http.Response) (string, bool) {
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
	default:
		return "", false
	}

	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", false
	}

	u, err := resp.Request.URL.Parse(loc)
	if err != nil {
		return "", false
	}

	return u.String(), true
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<20))
	_ = body.Close()
}

// progressReader counts downloaded bytes and consults the progress
// callback after every read.
type progressReader struct {
	r       io.Reader
	n       int64
	total   int64
	ulTotal int64
	ulNow   int64
	fn      ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.n += int64(n)
	if aerr := p.report(); aerr != nil {
		return n, aerr
	}
	return n, err
}

func (p *progressReader) report() error {
	if p.fn == nil {
		return nil
	}
	total := p.total
	if total < 0 {
		total = 0
	}
	if p.fn(total, p.n, p.ulTotal, p.ulNow) {
		return ErrCallbackAborted
	}
	return nil
}

// countingReader tracks uploaded bytes; the request body is written on a
// transport goroutine.
type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n.Add(int64(n))
	return n, err
}

// timing collects httptrace hooks, which may fire on dialer goroutines.
type timing struct {
	start time.Time

	mu            sync.Mutex
	nameLookup    time.Duration
	connect       time.Duration
	startTransfer time.Duration
	primaryIP     string
	requestHeader strings.Builder
}

func (tm *timing) trace() *httptrace.ClientTrace {
	since := func(d *time.Duration) {
		tm.mu.Lock()
		*d = time.Since(tm.start)
		tm.mu.Unlock()
	}

	return &httptrace.ClientTrace{
		DNSDone: func(httptrace.DNSDoneInfo) { since(&tm.nameLookup) },
		ConnectDone: func(_, _ string, err error) {
			if err == nil {
				since(&tm.connect)
			}
		},
		GotConn: func(ci httptrace.GotConnInfo) {
			if ci.Conn == nil {
				return
			}
			host, _, err := net.SplitHostPort(ci.Conn.RemoteAddr().String())
			if err != nil {
				return
			}
			tm.mu.Lock()
			tm.primaryIP = host
			tm.requestHeader.Reset()
			tm.mu.Unlock()
		},
		WroteHeaderField: func(key string, values []string) {
			tm.mu.Lock()
			for _, v := range values {
				tm.requestHeader.WriteString(key + ": " + v + "\r\n")
			}
			tm.mu.Unlock()
		},
		GotFirstResponseByte: func() { since(&tm.startTransfer) },
	}
}

func (tm *timing) apply(info *Info) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	info.NameLookupTime = tm.nameLookup
	info.ConnectTime = tm.connect
	info.StartTransferTime = tm.startTransfer
	info.PrimaryIP = tm.primaryIP
	info.RequestHeader = tm.requestHeader.String()
	info.TotalTime = time.Since(tm.start)
}
