// Package throttle provides an [http.RoundTripper] that rate-limits
// outbound transfers using a token-bucket algorithm from
// [golang.org/x/time/rate].
//
// # Usage
//
// The transport adapter wires it in through transport.WithThrottle; it can
// also wrap any round tripper directly:
//
//	rt, err := throttle.New(
//		throttle.Config{RPS: 10, Burst: 5, PerHost: true},
//		func() *slog.Logger { return slog.Default() },
//		http.DefaultTransport,
//	)
//
// When the rate limit is exceeded, transfers block until a token becomes
// available or the request context ends. With PerHost set, each target
// host draws from its own bucket so a batch spread across hosts is not
// serialized behind the slowest one.
package throttle
