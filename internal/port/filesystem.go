package port

import (
	"io"
)

// FileSystem defines the local filesystem operations of the download engine
type FileSystem interface {
	// EnsureDir creates dir and its parents; existing directories are fine
	EnsureDir(dir string) error

	// PartialSize returns the length of a partial file, 0 if it does not exist
	PartialSize(partPath string) (int64, error)

	// OpenPartial opens a partial file for appending.
	// offset 0 truncates (or creates) the file; any other offset must equal
	// the current file length.
	OpenPartial(partPath string, offset int64) (io.WriteCloser, error)

	// Promote atomically renames the partial file to its final path,
	// replacing any existing file
	Promote(partPath, destPath string) error

	// HashSHA1 returns the lowercase hex SHA-1 digest of a file
	HashSHA1(path string) (string, error)

	// FileExists checks if a regular file exists
	FileExists(path string) bool

	// DeleteFile removes a file; a missing file is not an error
	DeleteFile(path string) error

	// ListPartials returns names of leftover partial files in dir
	ListPartials(dir string) ([]string, error)
}
