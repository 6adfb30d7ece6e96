package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/adamwoolhether/httpkit/client/optset"
)

const httpOnlyPrefix = "#HttpOnly_"

// cookieStore backs the CookieFile and CookieJar options: cookies are read
// from a Netscape-format file into a jar before the transfer and every
// cookie known afterwards is written back out.
type cookieStore struct {
	jar       *cookiejar.Jar
	entries   []*http.Cookie
	writePath string
}

func (h *httpHandle) cookieStore() (*cookieStore, error) {
	readPath, _ := h.opts[optset.CookieFile].(string)
	writePath, _ := h.opts[optset.CookieJar].(string)
	if readPath == "" && writePath == "" {
		return nil, nil
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	cs := &cookieStore{jar: jar, writePath: writePath}
	if readPath != "" {
		if err := cs.load(readPath); err != nil {
			return nil, err
		}
	}

	return cs, nil
}

func (cs *cookieStore) load(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening cookie file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		c, ok := parseCookieLine(sc.Text())
		if !ok {
			continue
		}
		cs.remember(c)

		u := &url.URL{Scheme: "http", Host: strings.TrimPrefix(c.Domain, "."), Path: c.Path}
		if c.Secure {
			u.Scheme = "https"
		}
		cs.jar.SetCookies(u, []*http.Cookie{c})
	}

	return sc.Err()
}

// record keeps the cookies set by resp so they can be persisted.
func (cs *cookieStore) record(resp *http.Response) {
	if cs == nil {
		return
	}

	for _, c := range resp.Cookies() {
		if c.Domain == "" {
			c.Domain = resp.Request.URL.Hostname()
		}
		if c.Path == "" {
			c.Path = "/"
		}
		cs.remember(c)
	}
}

func (cs *cookieStore) remember(c *http.Cookie) {
	for i, e := range cs.entries {
		if e.Name == c.Name && e.Domain == c.Domain && e.Path == c.Path {
			cs.entries = append(cs.entries[:i], cs.entries[i+1:]...)
			break
		}
	}
	if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(time.Now())) {
		return
	}
	cs.entries = append(cs.entries, c)
}

func (cs *cookieStore) save() error {
	if cs == nil || cs.writePath == "" {
		return nil
	}

	var b strings.Builder
	b.WriteString("# Netscape HTTP Cookie File\n")
	for _, c := range cs.entries {
		b.WriteString(formatCookieLine(c))
		b.WriteByte('\n')
	}

	if err := os.WriteFile(cs.writePath, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("writing cookie jar: %w", err)
	}

	return nil
}

// parseCookieLine reads one tab separated line:
// domain, include subdomains, path, secure, expiry, name, value.
func parseCookieLine(line string) (*http.Cookie, bool) {
	httpOnly := strings.HasPrefix(line, httpOnlyPrefix)
	line = strings.TrimPrefix(line, httpOnlyPrefix)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, false
	}

	fields := strings.Split(line, "\t")
	if len(fields) != 7 {
		return nil, false
	}

	c := &http.Cookie{
		Domain:   fields[0],
		Path:     fields[2],
		Secure:   strings.EqualFold(fields[3], "TRUE"),
		Name:     fields[5],
		Value:    fields[6],
		HttpOnly: httpOnly,
	}
	if exp, err := strconv.ParseInt(fields[4], 10, 64); err == nil && exp > 0 {
		c.Expires = time.Unix(exp, 0)
	}

	return c, true
}

func formatCookieLine(c *http.Cookie) string {
	domain := c.Domain
	if c.HttpOnly {
		domain = httpOnlyPrefix + domain
	}

	var expires int64
	if !c.Expires.IsZero() {
		expires = c.Expires.Unix()
	}

	return strings.Join([]string{
		domain,
		boolField(strings.HasPrefix(c.Domain, ".")),
		c.Path,
		boolField(c.Secure),
		strconv.FormatInt(expires, 10),
		c.Name,
		c.Value,
	}, "\t")
}

func boolField(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
