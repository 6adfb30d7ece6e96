package filestream

import (
	"fmt"
	"os"
)

// Source is an upload body read from disk.
type Source struct {
	*os.File
	Size int64
}

// Open opens path for upload and records its size.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening upload file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat upload file: %w", err)
	}
	if fi.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("opening upload file: %s is a directory", path)
	}

	return &Source{File: f, Size: fi.Size()}, nil
}
