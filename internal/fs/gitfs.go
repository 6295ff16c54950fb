package fs

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitFS implements FileSystem by reading from a git ref (branch, tag, or commit).
//
// The ref is resolved on first use and again on every Reload, so a moving branch is
// followed from one walk to the next. Entries carry the commit time of the ref as their
// modification time; git keeps no per-file timestamps. Object reads are serialized since
// the repository storage is not safe for concurrent use.
type GitFS struct {
	repoPath string
	ref      string

	mu   sync.Mutex
	repo *git.Repository
	root *object.Tree
	when time.Time
}

var _ Reloader = (*GitFS)(nil)

// NewGitFS creates a GitFS that reads files from the given ref in the repository at repoPath.
// The repository is opened lazily on first use.
func NewGitFS(repoPath, ref string) *GitFS {
	return &GitFS{repoPath: repoPath, ref: ref}
}

// Reload resolves the ref again and reads from the commit it now points at.
func (g *GitFS) Reload() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resolve()
}

func (g *GitFS) resolve() error {
	if g.repo == nil {
		repo, err := git.PlainOpen(g.repoPath)
		if err != nil {
			return fmt.Errorf("opening repository %q: %w", g.repoPath, err)
		}
		g.repo = repo
	}
	hash, err := g.repo.ResolveRevision(plumbing.Revision(g.ref))
	if err != nil {
		return fmt.Errorf("resolving %q: %w", g.ref, err)
	}
	commit, err := g.repo.CommitObject(*hash)
	if err != nil {
		return fmt.Errorf("reading commit %s: %w", hash, err)
	}
	root, err := commit.Tree()
	if err != nil {
		return fmt.Errorf("reading tree of %s: %w", hash, err)
	}
	g.root, g.when = root, commit.Committer.When
	return nil
}

// open resolves the ref unless a previous call already did.
func (g *GitFS) open() error {
	if g.root != nil {
		return nil
	}
	return g.resolve()
}

// dir returns the tree object at path.
func (g *GitFS) dir(path string) (*object.Tree, error) {
	if err := g.open(); err != nil {
		return nil, err
	}
	if path == "" || path == "." {
		return g.root, nil
	}
	t, err := g.root.Tree(path)
	if err != nil {
		if errors.Is(err, object.ErrDirectoryNotFound) {
			return nil, os.ErrNotExist
		}
		return nil, err
	}
	return t, nil
}

// ReadFile reads the contents of the file at the given path from the git ref.
func (g *GitFS) ReadFile(path string) ([]byte, error) {
	if path == "" || path == "." {
		return nil, fmt.Errorf("cannot read directory as file")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.open(); err != nil {
		return nil, err
	}
	f, err := g.root.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, os.ErrNotExist
		}
		return nil, err
	}
	contents, err := f.Contents()
	if err != nil {
		return nil, err
	}
	return []byte(contents), nil
}

// Stat returns metadata for the file or directory at the given path in the git ref.
func (g *GitFS) Stat(path string) (FileInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.open(); err != nil {
		return FileInfo{}, err
	}
	if path == "" || path == "." {
		return FileInfo{Name: g.ref, IsDir: true, ModTime: g.when}, nil
	}

	entry, err := g.root.FindEntry(path)
	if err != nil {
		return FileInfo{}, os.ErrNotExist
	}
	return g.info(*entry)
}

// ReadDir lists the immediate children of the directory at the given path in the git ref.
func (g *GitFS) ReadDir(path string) ([]DirEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, err := g.dir(path)
	if err != nil {
		return nil, err
	}
	entries := make([]DirEntry, 0, len(t.Entries))
	for _, e := range t.Entries {
		if e.Mode == filemode.Submodule {
			continue
		}
		info, err := g.info(e)
		if err != nil {
			return nil, err
		}
		entries = append(entries, info)
	}
	return entries, nil
}

func (g *GitFS) info(e object.TreeEntry) (FileInfo, error) {
	if e.Mode == filemode.Dir {
		return FileInfo{Name: e.Name, IsDir: true, ModTime: g.when}, nil
	}
	blob, err := g.repo.BlobObject(e.Hash)
	if err != nil {
		return FileInfo{}, fmt.Errorf("reading blob %s: %w", e.Name, err)
	}
	return FileInfo{Name: e.Name, Size: blob.Size, ModTime: g.when, Digest: e.Hash.String()}, nil
}
