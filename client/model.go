package client

import (
	"crypto/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Event describes one completed transfer.
type Event struct {
	RequestID  string
	URI        string
	Method     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Guard reports whether live transfers are forbidden, typically because an
// automated test run is in progress.
type Guard func() bool

// EnvGuard forbids transfers while the environment variable key equals
// value.
func EnvGuard(key, value string) Guard {
	return func() bool {
		v, ok := os.LookupEnv(key)
		return ok && v == value
	}
}

// IDGenerator produces request IDs.
type IDGenerator func() string

// UUID generates random version 4 UUIDs.
func UUID() string {
	return uuid.New().String()
}

// ULID generates lexically sortable IDs.
func ULID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// Content types for use with [Client.Header].
const (
	ContentTypeJSON  = "application/json"
	ContentTypeHTML  = "text/html"
	ContentTypePlain = "text/plain"
	ContentTypeExcel = "application/vnd.ms-excel"
	ContentTypePDF   = "application/pdf"
	ContentTypeXML   = "text/xml"
	ContentTypeZip   = "application/zip"
	ContentTypeGZip  = "application/gzip"
	ContentTypeGIF   = "image/gif"
	ContentTypeJPG   = "image/jpeg"
	ContentTypePNG   = "image/png"
)
