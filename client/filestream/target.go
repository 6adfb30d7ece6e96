package filestream

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Target is a download destination. Writes go to a temporary file in the
// destination directory until Commit or Discard settles it.
type Target struct {
	dest     string
	file     *os.File
	w        io.Writer
	progress *progressWriter
	checksum *checksumVerifier
	logger   *slog.Logger
	closed   bool
}

// Create opens a temporary file beside dest.
func Create(dest string, logger *slog.Logger, optFns ...Option) (*Target, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}

	if logger == nil {
		logger = slog.Default()
	}

	file, err := os.CreateTemp(filepath.Dir(dest), ".httpkit-dl-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}

	t := &Target{
		dest:     dest,
		file:     file,
		w:        file,
		checksum: opts.checksum,
		logger:   logger,
	}

	if opts.checksum != nil {
		t.w = io.MultiWriter(t.w, opts.checksum)
	}

	if opts.progress {
		t.progress = &progressWriter{
			w:         t.w,
			logger:    logger,
			total:     -1,
			startTime: time.Now(),
		}
		t.w = t.progress
	}

	return t, nil
}

// Path returns the final destination.
func (t *Target) Path() string { return t.dest }

// Write implements io.Writer.
func (t *Target) Write(p []byte) (int, error) {
	if t.closed {
		return 0, ErrTargetClosed
	}
	return t.w.Write(p)
}

// SetTotal records the expected size for progress reporting.
func (t *Target) SetTotal(n int64) {
	if t.progress != nil && n > 0 {
		t.progress.total = n
	}
}

// Commit verifies the checksum, flushes the temporary file and renames it
// to the destination. A failed commit removes the temporary file.
func (t *Target) Commit() error {
	if t.closed {
		return ErrTargetClosed
	}

	var successful bool
	defer func() {
		if !successful {
			_ = t.Discard()
		}
	}()

	if err := t.checksum.Verify(); err != nil {
		return err
	}

	if err := t.file.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := t.file.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(t.file.Name(), t.dest); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	if t.progress != nil {
		t.progress.log("download complete")
	}

	t.closed = true
	successful = true

	return nil
}

// Discard closes and removes the temporary file. A file that is already
// gone is not an error.
func (t *Target) Discard() error {
	if t.closed {
		return nil
	}
	t.closed = true

	var errs []error
	if err := t.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		errs = append(errs, fmt.Errorf("closing temp file: %w", err))
	}
	if err := os.Remove(t.file.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, fmt.Errorf("removing temp file: %w", err))
	}

	return errors.Join(errs...)
}
