package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/adamwoolhether/httpkit/client/optset"
)

// FormFile is a multipart file part read from disk when the body is sent.
type FormFile struct {
	Path     string
	MimeType string
	PostName string
}

// StringFile is a multipart file part built from an in-memory buffer.
type StringFile struct {
	Content  string
	MimeType string
	PostName string
}

// payload is an encoded request body that can be re-sent on redirects
// and digest challenges.
type payload struct {
	data        []byte
	src         io.Reader
	size        int64
	contentType string
}

func (p *payload) reader() io.Reader {
	if p.src != nil {
		return p.src
	}
	return bytes.NewReader(p.data)
}

// rewind prepares a streamed body for another send.
func (p *payload) rewind() error {
	if p == nil || p.src == nil {
		return nil
	}

	s, ok := p.src.(io.Seeker)
	if !ok {
		return fmt.Errorf("%w: upload source cannot be replayed", ErrUnsupportedBody)
	}
	if _, err := s.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding upload source: %w", err)
	}

	return nil
}

// payload builds the request body from the InFile upload source or the
// PostFields value.
func (h *httpHandle) payload() (*payload, error) {
	if h.flag(optset.Put) {
		if r, ok := h.opts[optset.InFile].(io.Reader); ok {
			size, ok := h.opts[optset.InFileSize].(int64)
			if !ok {
				size = -1
			}
			return &payload{src: r, size: size}, nil
		}
	}

	v, ok := h.opts[optset.PostFields]
	if !ok {
		return nil, nil
	}

	return encodeBody(v)
}

func encodeBody(v any) (*payload, error) {
	const formURLEncoded = "application/x-www-form-urlencoded"

	switch b := v.(type) {
	case string:
		return &payload{data: []byte(b), size: int64(len(b)), contentType: formURLEncoded}, nil
	case []byte:
		return &payload{data: b, size: int64(len(b)), contentType: formURLEncoded}, nil
	case io.Reader:
		return &payload{src: b, size: -1}, nil
	case url.Values:
		fields := make(map[string]any, len(b))
		for k, vs := range b {
			if len(vs) > 0 {
				fields[k] = vs[0]
			}
		}
		return encodeMultipart(fields)
	case map[string]string:
		fields := make(map[string]any, len(b))
		for k, s := range b {
			fields[k] = s
		}
		return encodeMultipart(fields)
	case map[string]any:
		return encodeMultipart(b)
	}

	return nil, fmt.Errorf("%w: %T", ErrUnsupportedBody, v)
}

// encodeMultipart writes fields as multipart/form-data in key order.
func encodeMultipart(fields map[string]any) (*payload, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, name := range slices.Sorted(maps.Keys(fields)) {
		var err error
		switch f := fields[name].(type) {
		case FormFile:
			err = writeFormFile(w, name, f)
		case *FormFile:
			err = writeFormFile(w, name, *f)
		case StringFile:
			err = writeFilePart(w, name, f.PostName, f.MimeType, strings.NewReader(f.Content))
		case *StringFile:
			err = writeFilePart(w, name, f.PostName, f.MimeType, strings.NewReader(f.Content))
		case nil:
			err = w.WriteField(name, "")
		default:
			err = w.WriteField(name, fmt.Sprint(f))
		}
		if err != nil {
			return nil, fmt.Errorf("encoding form field %q: %w", name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	return &payload{
		data:        buf.Bytes(),
		size:        int64(buf.Len()),
		contentType: w.FormDataContentType(),
	}, nil
}

func writeFormFile(w *multipart.Writer, name string, f FormFile) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("opening form file: %w", err)
	}

	postName := f.PostName
	if postName == "" {
		postName = filepath.Base(f.Path)
	}

	return errors.Join(writeFilePart(w, name, postName, f.MimeType, file), file.Close())
}

func writeFilePart(w *multipart.Writer, name, fileName, mimeType string, r io.Reader) error {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, name, fileName))
	hdr.Set("Content-Type", mimeType)

	part, err := w.CreatePart(hdr)
	if err != nil {
		return err
	}

	_, err = io.Copy(part, r)
	return err
}
