package domain

// FileResult is the final status of a single file transfer
type FileResult struct {
	Filename string

	// Path is the local path of the delivered file
	Path string

	// BytesWritten is the number of bytes appended during this transfer
	BytesWritten int64

	// ResumedFrom is the byte offset the transfer continued from
	ResumedFrom int64

	// Verified is true when a declared SHA-1 matched
	Verified bool

	Err error
}

// OK reports whether the file was delivered without error
func (r FileResult) OK() bool {
	return r.Err == nil
}
