package response

import (
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Dump keys.
const (
	DumpInfo    = "info"
	DumpHeaders = "response_headers"
	DumpBody    = "response_body"
)

// Dump returns a debug view of the response. Diagnostics and headers are
// included when the response failed or all is set. The body is the decoded
// JSON when it is truthy, else the raw body, converted to UTF-8 when the
// content type names the windows-1251 code page.
func (r *Response) Dump(all bool) map[string]any {
	out := make(map[string]any, 3)

	if all || !r.Success() {
		out[DumpInfo] = r.info
		out[DumpHeaders] = r.headers
	}

	if v := r.JSON(); truthyBody(v) {
		out[DumpBody] = v
		return out
	}

	out[DumpBody] = r.textBody()
	return out
}

func (r *Response) textBody() string {
	ct := strings.ToLower(r.info.ContentType)
	if !strings.Contains(ct, "cp1251") && !strings.Contains(ct, "windows-1251") {
		return string(r.body)
	}

	b, err := charmap.Windows1251.NewDecoder().Bytes(r.body)
	if err != nil {
		return string(r.body)
	}
	return string(b)
}

// truthyBody mirrors truthy but treats empty containers as false.
func truthyBody(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	}
	return truthy(v)
}
