// Package httpkit exposes the request builder.
package httpkit

import (
	"github.com/adamwoolhether/httpkit/client"
)

// New instantiates a new *client.Client with the provided options.
// If not specified, the default transport over net/http is used.
func New(opts ...client.Option) (*client.Client, error) {
	return client.Build(opts...)
}
