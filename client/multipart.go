package client

import (
	"github.com/adamwoolhether/httpkit/client/transport"
)

// File returns a multipart file part read from path when the body is sent.
// Use it as a value in a map body.
func File(path, mimeType, postName string) transport.FormFile {
	return transport.FormFile{Path: path, MimeType: mimeType, PostName: postName}
}

// StringFile returns a multipart file part holding content.
func StringFile(content, mimeType, postName string) transport.StringFile {
	return transport.StringFile{Content: content, MimeType: mimeType, PostName: postName}
}
