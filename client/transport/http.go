package transport

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/http2"

	"github.com/adamwoolhether/httpkit/client/optset"
	"github.com/adamwoolhether/httpkit/client/transport/throttle"
)

const defaultDialTimeout = 30 * time.Second

// Option is a functional option for configuring [HTTP] via [NewHTTP].
type Option func(*options) error

type options struct {
	base        *http.Transport
	throttle    *throttle.Config
	logger      *slog.Logger
	dialTimeout time.Duration
}

// WithBaseTransport sets the template every per-configuration transport
// is cloned from.
func WithBaseTransport(t *http.Transport) Option {
	return func(o *options) error {
		if t == nil {
			return errors.New("transport must not be nil")
		}
		o.base = t
		return nil
	}
}

// WithThrottle enables token-bucket rate limiting with the given requests
// per second and burst capacity, tracked per target host.
func WithThrottle(rps, burst int) Option {
	return func(o *options) error {
		cfg := throttle.Config{RPS: rps, Burst: burst, PerHost: true}
		if err := cfg.Validate(); err != nil {
			return err
		}
		o.throttle = &cfg
		return nil
	}
}

// WithLogger injects a custom [slog.Logger].
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// WithDialTimeout sets the connect timeout used when a transfer does not
// carry its own ConnectTimeout.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return errors.New("dial timeout must not be negative")
		}
		o.dialTimeout = d
		return nil
	}
}

// HTTP is a [Transport] backed by [net/http]. Transfers that share the
// same proxy, TLS verification and connect timeout share one pooled
// *http.Transport, so keep-alive connections are reused across requests.
type HTTP struct {
	base        *http.Transport
	throttle    *throttle.Config
	logger      *slog.Logger
	dialTimeout time.Duration

	mu    sync.Mutex
	pools map[poolKey]http.RoundTripper
}

type poolKey struct {
	proxy          string
	proxyAuth      string
	insecure       bool
	connectTimeout time.Duration
}

// NewHTTP builds an [HTTP] transport.
func NewHTTP(optFns ...Option) (*HTTP, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying transport option: %w", err)
		}
	}

	t := &HTTP{
		base:        opts.base,
		throttle:    opts.throttle,
		logger:      opts.logger,
		dialTimeout: opts.dialTimeout,
		pools:       make(map[poolKey]http.RoundTripper),
	}
	if t.base == nil {
		t.base = http.DefaultTransport.(*http.Transport)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.dialTimeout == 0 {
		t.dialTimeout = defaultDialTimeout
	}

	return t, nil
}

// Open returns a fresh, unconfigured handle.
func (t *HTTP) Open() Handle {
	return &httpHandle{
		tr:   t,
		opts: make(map[optset.Option]any),
	}
}

// CloseIdleConnections closes idle connections on every pooled transport.
func (t *HTTP) CloseIdleConnections() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, rt := range t.pools {
		if c, ok := rt.(interface{ CloseIdleConnections() }); ok {
			c.CloseIdleConnections()
		}
	}
}

func (t *HTTP) roundTripper(key poolKey) (http.RoundTripper, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rt, ok := t.pools[key]; ok {
		return rt, nil
	}

	tr := t.base.Clone()
	// Content decoding follows the Encoding option instead.
	tr.DisableCompression = true

	timeout := key.connectTimeout
	if timeout == 0 {
		timeout = t.dialTimeout
	}
	tr.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext

	if key.insecure {
		if tr.TLSClientConfig == nil {
			tr.TLSClientConfig = &tls.Config{}
		}
		tr.TLSClientConfig.InsecureSkipVerify = true
	}

	if key.proxy != "" {
		proxyURL, err := parseProxy(key.proxy, key.proxyAuth)
		if err != nil {
			return nil, err
		}
		tr.Proxy = http.ProxyURL(proxyURL)
	}

	// Fails when the template already negotiates h2.
	if err := http2.ConfigureTransport(tr); err != nil {
		t.logger.Debug("http2 not configured", "error", err)
	}

	var rt http.RoundTripper = tr
	if t.throttle != nil {
		throttled, err := throttle.New(*t.throttle, func() *slog.Logger { return t.logger }, rt)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		rt = throttled
	}

	t.pools[key] = rt

	return rt, nil
}

// parseProxy accepts "host:port" or a full URL, optionally adding
// "login:password" credentials.
func parseProxy(proxy, auth string) (*url.URL, error) {
	if !strings.Contains(proxy, "://") {
		proxy = "http://" + proxy
	}

	u, err := url.Parse(proxy)
	if err != nil {
		return nil, fmt.Errorf("parsing proxy: %w", err)
	}

	if auth != "" {
		login, password, ok := strings.Cut(auth, ":")
		if ok {
			u.User = url.UserPassword(login, password)
		} else {
			u.User = url.User(login)
		}
	}

	return u, nil
}
