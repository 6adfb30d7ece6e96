package transport

import (
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

const supportedEncodings = "gzip, deflate, br"

// acceptEncoding maps the Encoding option to an Accept-Encoding value; an
// empty option advertises every supported coding.
func acceptEncoding(enc string) string {
	if enc == "" {
		return supportedEncodings
	}
	return enc
}

// decodeContent unwraps r according to the response Content-Encoding when
// decoding was requested through the Encoding option.
func decodeContent(r io.Reader, contentEncoding string, enabled bool) (io.Reader, error) {
	if !enabled {
		return r, nil
	}

	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return r, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("decoding gzip body: %w", err)
		}
		return zr, nil
	case "deflate":
		// Servers disagree on zlib framing versus raw deflate.
		br := newPeekReader(r)
		if br.isZlib() {
			zr, err := zlib.NewReader(br)
			if err != nil {
				return nil, fmt.Errorf("decoding deflate body: %w", err)
			}
			return zr, nil
		}
		return flate.NewReader(br), nil
	case "br":
		return brotli.NewReader(r), nil
	}

	return r, nil
}

type peekReader struct {
	head []byte
	r    io.Reader
}

func newPeekReader(r io.Reader) *peekReader {
	head := make([]byte, 2)
	n, _ := io.ReadFull(r, head)
	return &peekReader{head: head[:n], r: r}
}

// isZlib checks the two-byte zlib header: CM=8 and a valid FCHECK.
func (p *peekReader) isZlib() bool {
	if len(p.head) < 2 {
		return false
	}
	return p.head[0]&0x0f == 8 && (uint16(p.head[0])<<8|uint16(p.head[1]))%31 == 0
}

func (p *peekReader) Read(b []byte) (int, error) {
	if len(p.head) > 0 {
		n := copy(b, p.head)
		p.head = p.head[n:]
		return n, nil
	}
	return p.r.Read(b)
}
