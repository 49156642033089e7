package port

import (
	"context"
	"io"
)

// SourceResponse is an open response body positioned at Offset
type SourceResponse struct {
	Body io.ReadCloser

	// Offset is the byte position of the first body byte. It is 0 when the
	// server ignored a range request and sent the whole resource.
	Offset int64

	// ContentLength is the body length, -1 when unknown
	ContentLength int64
}

// Source streams remote file content
type Source interface {
	// Open requests url starting at byte offset (0 for the whole resource)
	Open(ctx context.Context, url string, offset int64) (*SourceResponse, error)
}
