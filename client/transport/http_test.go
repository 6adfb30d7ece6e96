package transport_test

import (
	"compress/gzip"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/adamwoolhether/httpkit/client/optset"
	"github.com/adamwoolhether/httpkit/client/transport"
)

func newHandle(t *testing.T, url string, opts map[optset.Option]any) transport.Handle {
	t.Helper()

	tr, err := transport.NewHTTP()
	if err != nil {
		t.Fatalf("creating transport: %v", err)
	}
	t.Cleanup(tr.CloseIdleConnections)

	h := tr.Open()
	h.SetURL(url)
	if err := h.SetOption(optset.ReturnTransfer, true); err != nil {
		t.Fatalf("setting option: %v", err)
	}
	for o, v := range opts {
		if err := h.SetOption(o, v); err != nil {
			t.Fatalf("setting option %s: %v", o, err)
		}
	}

	return h
}

func TestHTTP_Perform(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("X-Request-Method", r.Method)
		_, _ = io.WriteString(w, "hello")
	}))
	defer ts.Close()

	h := newHandle(t, ts.URL, nil)

	var lines []string
	h.SetHeaderFunc(func(line string) { lines = append(lines, line) })

	if err := h.Perform(t.Context()); err != nil {
		t.Fatalf("perform: %v", err)
	}

	if got := string(h.Body()); got != "hello" {
		t.Errorf("expected body %q, got %q", "hello", got)
	}

	info := h.Info()
	if info.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", info.StatusCode)
	}
	if info.EffectiveMethod != http.MethodGet {
		t.Errorf("expected GET, got %s", info.EffectiveMethod)
	}
	if info.SizeDownload != 5 {
		t.Errorf("expected 5 bytes downloaded, got %d", info.SizeDownload)
	}
	if info.ContentType != "text/plain" {
		t.Errorf("expected content type text/plain, got %q", info.ContentType)
	}

	if len(lines) < 2 {
		t.Fatalf("expected header lines, got %q", lines)
	}
	if lines[0] != "HTTP/1.1 200 OK\r\n" {
		t.Errorf("expected status line first, got %q", lines[0])
	}
	if lines[len(lines)-1] != "\r\n" {
		t.Errorf("expected blank line last, got %q", lines[len(lines)-1])
	}

	var size int
	for _, l := range lines {
		size += len(l)
	}
	if info.HeaderSize != size {
		t.Errorf("expected header size %d, got %d", size, info.HeaderSize)
	}
}

func TestHTTP_Perform_Methods(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fmt.Fprintf(w, "%s %s", r.Method, body)
	}))
	defer ts.Close()

	tests := map[string]struct {
		opts     map[optset.Option]any
		expected string
	}{
		"default get": {
			expected: "GET ",
		},
		"post fields imply post": {
			opts:     map[optset.Option]any{optset.PostFields: "a=1"},
			expected: "POST a=1",
		},
		"custom request wins": {
			opts:     map[optset.Option]any{optset.CustomRequest: "PATCH", optset.PostFields: "x"},
			expected: "PATCH x",
		},
		"put upload": {
			opts: map[optset.Option]any{
				optset.Put:        true,
				optset.InFile:     strings.NewReader("file"),
				optset.InFileSize: 4,
			},
			expected: "PUT file",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHandle(t, ts.URL, tc.opts)
			if err := h.Perform(t.Context()); err != nil {
				t.Fatalf("perform: %v", err)
			}
			if got := string(h.Body()); got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestHTTP_Perform_Head(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Method", r.Method)
		_, _ = io.WriteString(w, "ignored")
	}))
	defer ts.Close()

	h := newHandle(t, ts.URL, map[optset.Option]any{optset.NoBody: true})

	var lines []string
	h.SetHeaderFunc(func(line string) { lines = append(lines, line) })

	if err := h.Perform(t.Context()); err != nil {
		t.Fatalf("perform: %v", err)
	}

	if len(h.Body()) != 0 {
		t.Errorf("expected empty body, got %q", h.Body())
	}
	if !contains(lines, "X-Method: HEAD\r\n") {
		t.Errorf("expected HEAD request, got headers %q", lines)
	}
}

func TestHTTP_Perform_Redirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/temp", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusTemporaryRedirect)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fmt.Fprintf(w, "%s|%s|%s", r.Method, body, r.Referer())
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	tests := map[string]struct {
		path     string
		opts     map[optset.Option]any
		expected string
	}{
		"post downgraded on 302": {
			path: "/start",
			opts: map[optset.Option]any{
				optset.FollowLocation: true,
				optset.PostFields:     "a=1",
			},
			expected: "GET||",
		},
		"post kept with redirect mask": {
			path: "/start",
			opts: map[optset.Option]any{
				optset.FollowLocation: true,
				optset.PostFields:     "a=1",
				optset.PostRedir:      optset.PostRedirAll,
			},
			expected: "POST|a=1|",
		},
		"307 replays body": {
			path: "/temp",
			opts: map[optset.Option]any{
				optset.FollowLocation: true,
				optset.PostFields:     "b=2",
			},
			expected: "POST|b=2|",
		},
		"auto referer": {
			path: "/start",
			opts: map[optset.Option]any{
				optset.FollowLocation: true,
				optset.AutoReferer:    true,
			},
			expected: "GET||" + ts.URL + "/start",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHandle(t, ts.URL+tc.path, tc.opts)
			if err := h.Perform(t.Context()); err != nil {
				t.Fatalf("perform: %v", err)
			}
			if got := string(h.Body()); got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
			if h.Info().RedirectCount != 1 {
				t.Errorf("expected one redirect, got %d", h.Info().RedirectCount)
			}
			if h.Info().URL != ts.URL+"/final" {
				t.Errorf("expected effective url %s/final, got %s", ts.URL, h.Info().URL)
			}
		})
	}
}

func TestHTTP_Perform_RedirectNotFollowed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusMovedPermanently)
	}))
	defer ts.Close()

	h := newHandle(t, ts.URL, nil)
	if err := h.Perform(t.Context()); err != nil {
		t.Fatalf("perform: %v", err)
	}

	info := h.Info()
	if info.StatusCode != http.StatusMovedPermanently {
		t.Errorf("expected 301, got %d", info.StatusCode)
	}
	if info.RedirectURL != ts.URL+"/elsewhere" {
		t.Errorf("expected redirect url %s/elsewhere, got %q", ts.URL, info.RedirectURL)
	}
}

func TestHTTP_Perform_TooManyRedirects(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusFound)
	}))
	defer ts.Close()

	h := newHandle(t, ts.URL, map[optset.Option]any{
		optset.FollowLocation: true,
		optset.MaxRedirs:      2,
	})

	err := h.Perform(t.Context())
	if !errors.Is(err, transport.ErrTooManyRedirects) {
		t.Fatalf("expected ErrTooManyRedirects, got %v", err)
	}
	if !errors.Is(h.Err(), transport.ErrTooManyRedirects) {
		t.Errorf("expected error recorded on handle, got %v", h.Err())
	}
	if h.Info().Error == "" {
		t.Error("expected info error to be populated")
	}
	if h.Info().RedirectCount != 2 {
		t.Errorf("expected 2 redirects, got %d", h.Info().RedirectCount)
	}
}

func TestHTTP_Perform_ProgressAbort(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		_, _ = w.Write(make([]byte, 4096))
	}))
	defer ts.Close()

	h := newHandle(t, ts.URL, map[optset.Option]any{optset.BufferSize: 256})

	var calls int
	h.SetProgressFunc(func(dlTotal, dlNow, _, _ int64) bool {
		calls++
		if dlTotal != 4096 {
			t.Errorf("expected total 4096, got %d", dlTotal)
		}
		return dlNow > 512
	})

	err := h.Perform(t.Context())
	if !errors.Is(err, transport.ErrCallbackAborted) {
		t.Fatalf("expected ErrCallbackAborted, got %v", err)
	}
	if h.Info().Error != "reading body: callback aborted" {
		t.Errorf("unexpected info error %q", h.Info().Error)
	}
	if h.Info().StatusCode != http.StatusOK {
		t.Errorf("expected status to survive the abort, got %d", h.Info().StatusCode)
	}
	if calls < 2 {
		t.Errorf("expected repeated progress calls, got %d", calls)
	}
}

func TestHTTP_Perform_Encoding(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			_, _ = io.WriteString(w, "plain")
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		_, _ = io.WriteString(zw, "compressed")
		_ = zw.Close()
	}))
	defer ts.Close()

	tests := map[string]struct {
		opts     map[optset.Option]any
		expected string
	}{
		"all encodings": {
			opts:     map[optset.Option]any{optset.Encoding: ""},
			expected: "compressed",
		},
		"explicit gzip": {
			opts:     map[optset.Option]any{optset.Encoding: "gzip"},
			expected: "compressed",
		},
		"no encoding": {
			expected: "plain",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHandle(t, ts.URL, tc.opts)
			if err := h.Perform(t.Context()); err != nil {
				t.Fatalf("perform: %v", err)
			}
			if got := string(h.Body()); got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestHTTP_Perform_HeaderLines(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s|%s|%t", r.Header.Get("X-Keep"), r.Host, r.Header.Get("Expect") == "")
	}))
	defer ts.Close()

	h := newHandle(t, ts.URL, nil)
	h.SetHeaders([]string{"X-Keep: yes", "Expect:", "Host: api.example"})

	if err := h.Perform(t.Context()); err != nil {
		t.Fatalf("perform: %v", err)
	}
	if got, want := string(h.Body()), "yes|api.example|true"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if !strings.Contains(h.Info().RequestHeader, "X-Keep: yes") {
		t.Errorf("expected request header capture, got %q", h.Info().RequestHeader)
	}
}

func TestHTTP_Perform_Multipart(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("doc")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		content, _ := io.ReadAll(f)

		fmt.Fprintf(w, "%s|%s|%s|%s", r.FormValue("name"), hdr.Filename, hdr.Header.Get("Content-Type"), content)
	}))
	defer ts.Close()

	h := newHandle(t, ts.URL, map[optset.Option]any{
		optset.PostFields: map[string]any{
			"name": "report",
			"doc":  transport.StringFile{Content: "data", MimeType: "text/csv", PostName: "r.csv"},
		},
	})

	if err := h.Perform(t.Context()); err != nil {
		t.Fatalf("perform: %v", err)
	}
	if got, want := string(h.Body()), "report|r.csv|text/csv|data"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if h.Info().SizeUpload == 0 {
		t.Error("expected upload size to be recorded")
	}
}

func TestHTTP_Perform_UnsupportedBody(t *testing.T) {
	h := newHandle(t, "http://127.0.0.1:1", map[optset.Option]any{
		optset.PostFields: []int{1, 2},
	})

	err := h.Perform(t.Context())
	if !errors.Is(err, transport.ErrUnsupportedBody) {
		t.Fatalf("expected ErrUnsupportedBody, got %v", err)
	}
}

func TestHTTP_Perform_DigestAuth(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Digest ") {
			w.Header().Set("WWW-Authenticate", `Digest realm="test", nonce="abc", qop="auth", opaque="xyz"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		for _, want := range []string{`username="user"`, `realm="test"`, `nonce="abc"`, `opaque="xyz"`, `response="`} {
			if !strings.Contains(auth, want) {
				http.Error(w, "missing "+want, http.StatusBadRequest)
				return
			}
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer ts.Close()

	h := newHandle(t, ts.URL, map[optset.Option]any{
		optset.HTTPAuth: optset.AuthDigest,
		optset.UserPwd:  "user:secret",
	})

	if err := h.Perform(t.Context()); err != nil {
		t.Fatalf("perform: %v", err)
	}
	if got := string(h.Body()); got != "ok" {
		t.Errorf("expected ok, got %q", got)
	}
	if n := attempts.Load(); n != 2 {
		t.Errorf("expected challenge and answer, got %d attempts", n)
	}
}

func TestHTTP_Perform_DigestAuth_Response(t *testing.T) {
	const realm, nonce = "test", "n0nce"

	md5hex := func(s string) string {
		sum := md5.Sum([]byte(s))
		return hex.EncodeToString(sum[:])
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Digest ")
		if !ok {
			w.Header().Set("WWW-Authenticate", `Digest realm="`+realm+`", nonce="`+nonce+`", qop="auth", algorithm=MD5`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		params := make(map[string]string)
		for _, part := range strings.Split(auth, ",") {
			k, v, _ := strings.Cut(strings.TrimSpace(part), "=")
			params[k] = strings.Trim(v, `"`)
		}

		ha1 := md5hex("user:" + realm + ":secret")
		ha2 := md5hex(r.Method + ":" + params["uri"])
		want := md5hex(strings.Join([]string{ha1, nonce, params["nc"], params["cnonce"], "auth", ha2}, ":"))
		if params["response"] != want {
			http.Error(w, "bad response", http.StatusUnauthorized)
			return
		}

		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	}))
	defer ts.Close()

	h := newHandle(t, ts.URL+"/secure?x=1", map[optset.Option]any{
		optset.HTTPAuth:      optset.AuthDigest,
		optset.UserPwd:       "user:secret",
		optset.CustomRequest: http.MethodPost,
		optset.PostFields:    "payload",
	})

	if err := h.Perform(t.Context()); err != nil {
		t.Fatalf("perform: %v", err)
	}
	if status := h.Info().StatusCode; status != http.StatusOK {
		t.Fatalf("expected digest answer accepted, got status %d", status)
	}
	if got := string(h.Body()); got != "payload" {
		t.Errorf("expected body replayed after challenge, got %q", got)
	}
}

func TestHTTP_Perform_BasicAuth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		fmt.Fprintf(w, "%s:%s", user, pass)
	}))
	defer ts.Close()

	h := newHandle(t, ts.URL, map[optset.Option]any{
		optset.HTTPAuth: optset.AuthBasic,
		optset.UserPwd:  "user:secret",
	})

	if err := h.Perform(t.Context()); err != nil {
		t.Fatalf("perform: %v", err)
	}
	if got := string(h.Body()); got != "user:secret" {
		t.Errorf("expected credentials echoed, got %q", got)
	}
}

func TestHTTP_Perform_CookieFile(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "fresh", Value: "minted"})
		c, err := r.Cookie("stored")
		if err != nil {
			_, _ = io.WriteString(w, "none")
			return
		}
		_, _ = io.WriteString(w, c.Value)
	}))
	defer ts.Close()

	dir := t.TempDir()
	in := filepath.Join(dir, "cookies.txt")
	out := filepath.Join(dir, "jar.txt")

	line := strings.Join([]string{"127.0.0.1", "FALSE", "/", "FALSE", "0", "stored", "remembered"}, "\t")
	if err := os.WriteFile(in, []byte("# Netscape HTTP Cookie File\n"+line+"\n"), 0o600); err != nil {
		t.Fatalf("writing cookie file: %v", err)
	}

	h := newHandle(t, ts.URL, map[optset.Option]any{
		optset.CookieFile: in,
		optset.CookieJar:  out,
	})

	if err := h.Perform(t.Context()); err != nil {
		t.Fatalf("perform: %v", err)
	}
	if got := string(h.Body()); got != "remembered" {
		t.Errorf("expected stored cookie sent, got %q", got)
	}

	saved, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading cookie jar: %v", err)
	}
	for _, want := range []string{"\tstored\tremembered", "\tfresh\tminted"} {
		if !strings.Contains(string(saved), want) {
			t.Errorf("expected jar to contain %q, got:\n%s", want, saved)
		}
	}
}

func TestHTTP_Perform_Timeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	h := newHandle(t, ts.URL, map[optset.Option]any{optset.Timeout: 50 * time.Millisecond})

	if err := h.Perform(t.Context()); err == nil {
		t.Fatal("expected timeout error")
	}
	if h.Info().StatusCode != 0 {
		t.Errorf("expected no status, got %d", h.Info().StatusCode)
	}
}

func TestHTTP_Perform_FileSink(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "to disk")
	}))
	defer ts.Close()

	var sink strings.Builder
	h := newHandle(t, ts.URL, map[optset.Option]any{optset.File: &sink})

	if err := h.Perform(t.Context()); err != nil {
		t.Fatalf("perform: %v", err)
	}
	if sink.String() != "to disk" {
		t.Errorf("expected body in sink, got %q", sink.String())
	}
	if len(h.Body()) != 0 {
		t.Errorf("expected no buffered body, got %q", h.Body())
	}
}

func TestHTTP_Clone(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.Header.Get("X-Copy"))
	}))
	defer ts.Close()

	h := newHandle(t, ts.URL, nil)
	h.SetHeaders([]string{"X-Copy: cloned"})

	c := h.Clone()
	if err := c.Perform(t.Context()); err != nil {
		t.Fatalf("perform clone: %v", err)
	}
	if got := string(c.Body()); got != "cloned" {
		t.Errorf("expected cloned header, got %q", got)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := h.Perform(t.Context()); !errors.Is(err, transport.ErrHandleClosed) {
		t.Errorf("expected ErrHandleClosed, got %v", err)
	}
}

func TestMulti(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]int)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.URL.Path]++
		mu.Unlock()

		if r.URL.Path == "/slow" {
			time.Sleep(50 * time.Millisecond)
		}
		_, _ = io.WriteString(w, r.URL.Path)
	}))
	defer ts.Close()

	paths := []string{"/a", "/slow", "/c"}
	handles := make([]transport.Handle, len(paths))

	m := transport.NewMulti()
	for i, p := range paths {
		handles[i] = newHandle(t, ts.URL+p, nil)
		if err := m.Add(handles[i]); err != nil {
			t.Fatalf("adding handle: %v", err)
		}
	}

	for m.Perform(t.Context()) > 0 {
		m.Wait()
	}

	got := make([]string, len(handles))
	for i, h := range handles {
		got[i] = string(h.Body())
	}
	if diff := cmp.Diff(paths, got); diff != "" {
		t.Errorf("bodies mismatch (-want +got):\n%s", diff)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := m.Add(handles[0]); !errors.Is(err, transport.ErrMultiClosed) {
		t.Errorf("expected ErrMultiClosed, got %v", err)
	}
}

func TestMulti_Remove(t *testing.T) {
	tr, err := transport.NewHTTP()
	if err != nil {
		t.Fatalf("creating transport: %v", err)
	}

	h := tr.Open()
	m := transport.NewMulti()
	if err := m.Add(h); err != nil {
		t.Fatalf("adding handle: %v", err)
	}
	m.Remove(h)

	if n := m.Perform(t.Context()); n != 0 {
		t.Errorf("expected nothing running, got %d", n)
	}
	m.Wait()
}

func contains(lines []string, want string) bool {
	for _, l := range lines {
		if l == want {
			return true
		}
	}
	return false
}
