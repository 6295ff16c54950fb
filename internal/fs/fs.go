// Package fs provides filesystem abstractions for reading workspaces from local disk or git refs.
package fs

import (
	"errors"
	"time"
)

// ErrNotDirectory is returned when a directory operation targets a file.
var ErrNotDirectory = errors.New("not a directory")

// FileInfo holds file metadata. Digest identifies file content when the filesystem
// knows it without reading the file, and is empty otherwise.
type FileInfo struct {
	Name    string
	IsDir   bool
	Size    int64
	ModTime time.Time
	Digest  string
}

// DirEntry represents a single directory entry along with its metadata.
type DirEntry = FileInfo

// FileSystem abstracts file operations so callers can work with either
// the local filesystem or a git object database. Paths are '/'-separated and
// relative to the filesystem root; "" names the root.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	Stat(path string) (FileInfo, error)
	ReadDir(path string) ([]DirEntry, error)
}

// Reloader is implemented by filesystems that serve a view fixed at some point, such as
// a resolved git ref. Walk calls Reload before it starts.
type Reloader interface {
	Reload() error
}
