package filestream

import (
	"errors"
	"hash"
)

// Option configures a [Target].
//
// WithChecksum verifies the written bytes on commit. h is a hash.Hash
// instance (e.g. sha256.New()) and expected the hex-encoded digest.
//
// WithProgress logs write progress at most once per second via the
// logger supplied to Create.
type Option func(*options) error

type options struct {
	checksum *checksumVerifier
	progress bool
}

func WithChecksum(h hash.Hash, expected string) Option {
	return func(opts *options) error {
		if h == nil {
			return errors.New("hash must not be nil")
		}

		if expected == "" {
			return errors.New("expected checksum must not be empty")
		}

		opts.checksum = &checksumVerifier{hash: h, expected: expected}
		return nil
	}
}

func WithProgress() Option {
	return func(opts *options) error {
		opts.progress = true
		return nil
	}
}
