package client

import (
	"errors"
	"fmt"
)

var (
	// ErrLiveRequestInTest is returned when a transfer is attempted while
	// the test guard reports an automated test run.
	ErrLiveRequestInTest = errors.New("live http request during testing")
	// ErrInvalidOption is the sentinel wrapped by [OptionError].
	ErrInvalidOption = errors.New("invalid option")
	// ErrSharedStream is wrapped by [OptionError] when a batch of more than
	// one URL would send the same streamed body from every transfer.
	ErrSharedStream = errors.New("streamed body cannot be shared by a batch")
)

// OptionError is recorded by a builder method that received bad input.
// It is returned by the next Exec or MultiExec call.
type OptionError struct {
	Op  string
	Err error
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrInvalidOption, e.Op, e.Err)
}

func (e *OptionError) Unwrap() []error {
	return []error{ErrInvalidOption, e.Err}
}
