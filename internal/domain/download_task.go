package domain

import "path/filepath"

// PartSuffix marks a file that is still being transferred.
const PartSuffix = ".part"

// DownloadTask wraps one descriptor with its local paths and resume offset.
// It lives only for the duration of a single transfer.
type DownloadTask struct {
	Descriptor FileDescriptor
	DestPath   string
	PartPath   string

	// Offset is the number of bytes already present in PartPath.
	Offset int64
}

// NewDownloadTask creates a task placing the file under destDir
func NewDownloadTask(fd FileDescriptor, destDir string) *DownloadTask {
	dest := filepath.Join(destDir, fd.Filename)
	return &DownloadTask{
		Descriptor: fd,
		DestPath:   dest,
		PartPath:   dest + PartSuffix,
	}
}

// Resuming reports whether the transfer continues an earlier partial file
func (t *DownloadTask) Resuming() bool {
	return t.Offset > 0
}
