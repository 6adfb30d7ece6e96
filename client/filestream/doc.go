// Package filestream provides the file-backed ends of a transfer.
//
// A [Target] receives a response body. Bytes land in a temporary file
// next to the destination, which is renamed into place by [Target.Commit]
// and removed by [Target.Discard], so a failed transfer never leaves a
// partial file behind:
//
//	t, err := filestream.Create("/tmp/report.csv", logger,
//		filestream.WithChecksum(sha256.New(), expectedHex),
//		filestream.WithProgress(),
//	)
//
// A [Source] is an upload body opened from disk with its size known up
// front.
package filestream
