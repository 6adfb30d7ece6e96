package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/icholy/digest"

	"github.com/adamwoolhether/httpkit/client/optset"
)

var errDigestChallenge = errors.New("unsupported digest challenge")

// wantsDigest reports whether resp is a Digest challenge the handle is
// configured to answer.
func (h *httpHandle) wantsDigest(resp *http.Response) bool {
	if resp.StatusCode != http.StatusUnauthorized {
		return false
	}
	scheme, _ := h.opts[optset.HTTPAuth].(int64)
	if scheme&optset.AuthDigest == 0 {
		return false
	}
	if _, ok := h.opts[optset.UserPwd].(string); !ok {
		return false
	}

	return strings.HasPrefix(strings.ToLower(resp.Header.Get("WWW-Authenticate")), "digest ")
}

// digestAuthorization answers the challenge in resp for one request.
// Streamed bodies cannot be hashed, so auth-int is only answered for
// in-memory payloads.
func (h *httpHandle) digestAuthorization(resp *http.Response, method, uri string, pl *payload) (string, error) {
	up, _ := h.opts[optset.UserPwd].(string)
	login, password, _ := strings.Cut(up, ":")

	chal, err := digest.FindChallenge(resp.Header)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errDigestChallenge, err)
	}

	opts := digest.Options{
		Method:   method,
		URI:      uri,
		Count:    1,
		Username: login,
		Password: password,
	}
	if pl != nil && pl.src == nil {
		opts.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(pl.data)), nil
		}
	}

	cred, err := digest.Digest(chal, opts)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errDigestChallenge, err)
	}

	return cred.String(), nil
}
