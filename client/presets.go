package client

import (
	"path/filepath"
	"time"

	"github.com/adamwoolhether/httpkit/client/filestream"
	"github.com/adamwoolhether/httpkit/client/optset"
)

// DefaultUserAgent is sent by AsBrowser when no agent is given.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36"

// AsBrowser identifies as a desktop browser.
func (c *Client) AsBrowser(userAgent ...string) *Client {
	ua := DefaultUserAgent
	if len(userAgent) > 0 && userAgent[0] != "" {
		ua = userAgent[0]
	}

	return c.Native(optset.UserAgent, ua).
		Header("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		Header("Accept-Language", "en-US,en;q=0.9")
}

// AsJSONClient sends and accepts JSON. Structured bodies are encoded at
// execution time.
func (c *Client) AsJSONClient() *Client {
	return c.Header("Content-Type", ContentTypeJSON).
		Header("Accept", ContentTypeJSON)
}

// PutUpload streams the file at path as a PUT body.
func (c *Client) PutUpload(path string) *Client {
	if err := check(struct {
		Path string `json:"path" validate:"required,file"`
	}{path}); err != nil {
		return c.fail("PutUpload", err)
	}

	src, err := filestream.Open(path)
	if err != nil {
		return c.fail("PutUpload", err)
	}

	return c.Native(optset.Put, true).
		Native(optset.InFile, src).
		Native(optset.InFileSize, src.Size)
}

// Proxy routes transfers through host, given as host:port or a URL. An
// optional "login:password" authenticates with the proxy.
func (c *Client) Proxy(host string, loginPassword ...string) *Client {
	args := struct {
		Host string `json:"host" validate:"required,hostname_port|url"`
		Auth string `json:"login_password" validate:"omitempty,contains=:"`
	}{Host: host}
	if len(loginPassword) > 0 {
		args.Auth = loginPassword[0]
	}
	if err := check(args); err != nil {
		return c.fail("Proxy", err)
	}

	c.Native(optset.Proxy, args.Host)
	if args.Auth != "" {
		c.Native(optset.ProxyUserPwd, args.Auth)
	}
	return c
}

// Cookies sends a raw Cookie header value.
func (c *Client) Cookies(cookies string) *Client {
	return c.Native(optset.Cookie, cookies)
}

// CookiesFile reads cookies from the Netscape cookie file at path and
// writes the updated jar back to it after the transfer.
func (c *Client) CookiesFile(path string) *Client {
	if err := check(struct {
		Path string `json:"path" validate:"required"`
		Dir  string `json:"dir" validate:"dir"`
	}{path, filepath.Dir(path)}); err != nil {
		return c.fail("CookiesFile", err)
	}

	return c.Native(optset.CookieFile, path).
		Native(optset.CookieJar, path)
}

// Timeouts bounds connection setup and the whole transfer. Zero leaves a
// bound unset.
func (c *Client) Timeouts(connect, total time.Duration) *Client {
	if err := check(struct {
		Connect time.Duration `json:"connect" validate:"gte=0"`
		Total   time.Duration `json:"total" validate:"gte=0"`
	}{connect, total}); err != nil {
		return c.fail("Timeouts", err)
	}

	if connect > 0 {
		c.Native(optset.ConnectTimeout, connect)
	}
	if total > 0 {
		c.Native(optset.Timeout, total)
	}
	return c
}

// AuthBasic authenticates with HTTP basic credentials.
func (c *Client) AuthBasic(login, password string) *Client {
	return c.auth("AuthBasic", optset.AuthBasic, login, password)
}

// AuthDigest authenticates with HTTP digest credentials.
func (c *Client) AuthDigest(login, password string) *Client {
	return c.auth("AuthDigest", optset.AuthDigest, login, password)
}

func (c *Client) auth(op string, scheme int, login, password string) *Client {
	if err := check(struct {
		Login string `json:"login" validate:"required,excludes=:"`
	}{login}); err != nil {
		return c.fail(op, err)
	}

	return c.Native(optset.HTTPAuth, scheme).
		Native(optset.UserPwd, login+":"+password)
}

// AuthToken sends an Authorization header. The scheme defaults to Bearer.
func (c *Client) AuthToken(token string, scheme ...string) *Client {
	s := "Bearer"
	if len(scheme) > 0 && scheme[0] != "" {
		s = scheme[0]
	}

	if err := check(struct {
		Token  string `json:"token" validate:"required,printascii,excludes= "`
		Scheme string `json:"scheme" validate:"alphanum"`
	}{token, s}); err != nil {
		return c.fail("AuthToken", err)
	}

	return c.Header("Authorization", s+" "+token)
}

// IgnoreSSL skips TLS certificate and host verification.
func (c *Client) IgnoreSSL() *Client {
	return c.Native(optset.SSLVerifyPeer, false).
		Native(optset.SSLVerifyHost, false)
}

// Referer sets the Referer header. The URL gets the same base prefix and
// escaping as request URLs.
func (c *Client) Referer(url string) *Client {
	return c.Native(optset.Referer, canonicalURL(url, optset.Merge(c.remembered, c.ephemeral)))
}

// Download writes the response body to path. The file only appears at
// path once the transfer succeeds; a failed transfer leaves nothing
// behind.
func (c *Client) Download(path string, optFns ...filestream.Option) *Client {
	if err := check(struct {
		Path string `json:"path" validate:"required"`
		Dir  string `json:"dir" validate:"dir"`
	}{path, filepath.Dir(path)}); err != nil {
		return c.fail("Download", err)
	}

	target, err := filestream.Create(path, c.logger, optFns...)
	if err != nil {
		return c.fail("Download", err)
	}

	return c.Native(optset.File, target)
}

// SizeLimit aborts transfers whose announced or received body exceeds kb
// kilobytes. A non-positive limit disables it, overriding a remembered one.
func (c *Client) SizeLimit(kb int) *Client {
	c.ephemeral.SetSizeLimit(&kb)
	return c
}
