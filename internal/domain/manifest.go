package domain

import (
	"regexp"
	"sort"
	"strings"
)

// FileDescriptor describes one remote file of a manifest.
// Size is nil when unknown. SHA1 is empty when no digest was published,
// in which case the file is accepted unverified.
type FileDescriptor struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     *int64 `json:"size,omitempty"`
	SHA1     string `json:"sha1,omitempty"`
}

// HasChecksum reports whether the descriptor carries a digest to verify against
func (fd FileDescriptor) HasChecksum() bool {
	return fd.SHA1 != ""
}

// DeclaredSize returns the declared size, or 0 when unknown
func (fd FileDescriptor) DeclaredSize() int64 {
	if fd.Size == nil {
		return 0
	}
	return *fd.Size
}

// MatchesChecksum compares a hex digest against the declared one, ignoring case
func (fd FileDescriptor) MatchesChecksum(actual string) bool {
	return strings.EqualFold(strings.TrimSpace(fd.SHA1), actual)
}

// ManifestMeta identifies the update a manifest belongs to
type ManifestMeta struct {
	UpdateName string `json:"updateName"`
	Build      string `json:"build"`
	Arch       string `json:"arch"`
}

// Manifest maps filename to descriptor for one update/language/edition
type Manifest struct {
	Meta  ManifestMeta              `json:"meta"`
	Files map[string]FileDescriptor `json:"files"`
}

// NewManifest creates a manifest from descriptors keyed by their filename
func NewManifest(meta ManifestMeta, files ...FileDescriptor) *Manifest {
	m := &Manifest{Meta: meta, Files: make(map[string]FileDescriptor, len(files))}
	for _, fd := range files {
		m.Files[fd.Filename] = fd
	}
	return m
}

// Names returns the filenames in lexical order
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Files))
	for name := range m.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TotalDeclaredSize sums the known sizes of all entries
func (m *Manifest) TotalDeclaredSize() int64 {
	var total int64
	for _, fd := range m.Files {
		total += fd.DeclaredSize()
	}
	return total
}

// Tasks builds one download task per entry that has a URL.
// Entries without a URL are returned as skippable errors and never attempted.
func (m *Manifest) Tasks(destDir string) ([]*DownloadTask, []error) {
	var tasks []*DownloadTask
	var skipped []error
	for _, name := range m.Names() {
		fd := m.Files[name]
		if fd.Filename == "" {
			fd.Filename = name
		}
		if fd.URL == "" {
			skipped = append(skipped, NewSkippableError(ErrMissingURL, name))
			continue
		}
		tasks = append(tasks, NewDownloadTask(fd, destDir))
	}
	return tasks, skipped
}

// Filter returns a manifest holding only the entries whose name matches re
func (m *Manifest) Filter(re *regexp.Regexp) *Manifest {
	out := &Manifest{Meta: m.Meta, Files: make(map[string]FileDescriptor)}
	for name, fd := range m.Files {
		if re.MatchString(name) {
			out.Files[name] = fd
		}
	}
	return out
}

// Limit keeps the n smallest entries by declared size; unknown sizes count as 0
func (m *Manifest) Limit(n int) *Manifest {
	if n < 0 {
		n = 0
	}
	names := m.Names()
	sort.SliceStable(names, func(i, j int) bool {
		return m.Files[names[i]].DeclaredSize() < m.Files[names[j]].DeclaredSize()
	})
	if n < len(names) {
		names = names[:n]
	}

	out := &Manifest{Meta: m.Meta, Files: make(map[string]FileDescriptor, len(names))}
	for _, name := range names {
		out.Files[name] = m.Files[name]
	}
	return out
}
