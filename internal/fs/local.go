package fs

import (
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// LocalFS implements FileSystem on top of a billy filesystem, by default the local disk.
type LocalFS struct {
	fs billy.Filesystem
}

// NewLocalFS creates a LocalFS rooted at the given directory.
func NewLocalFS(root string) *LocalFS {
	return NewBillyFS(osfs.New(root))
}

// NewBillyFS wraps an existing billy filesystem, such as an in-memory one.
func NewBillyFS(fs billy.Filesystem) *LocalFS {
	return &LocalFS{fs: fs}
}

// Root returns the directory the filesystem is rooted at.
func (l *LocalFS) Root() string {
	return l.fs.Root()
}

func (l *LocalFS) name(path string) string {
	if path == "" {
		return "."
	}
	return path
}

// ReadFile reads the contents of the file at the given path relative to the root.
func (l *LocalFS) ReadFile(path string) ([]byte, error) {
	return util.ReadFile(l.fs, l.name(path))
}

// Stat returns metadata for the file or directory at the given path relative to the root.
func (l *LocalFS) Stat(path string) (FileInfo, error) {
	info, err := l.fs.Stat(l.name(path))
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Name:    info.Name(),
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// ReadDir lists the immediate children of the directory at the given path relative to the root.
func (l *LocalFS) ReadDir(path string) ([]DirEntry, error) {
	infos, err := l.fs.ReadDir(l.name(path))
	if err != nil {
		return nil, err
	}
	result := make([]DirEntry, 0, len(infos))
	for _, info := range infos {
		result = append(result, DirEntry{
			Name:    info.Name(),
			IsDir:   info.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return result, nil
}
