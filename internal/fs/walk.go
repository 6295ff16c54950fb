package fs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
)

// SkipDir can be returned by a WalkFunc to skip a directory, or a single file.
var SkipDir = errors.New("skip directory")

// WalkFunc is called for every entry below the walk root. rel is the entry's path
// relative to the walk root, '/'-separated.
type WalkFunc func(rel string, info FileInfo) error

// Walk visits everything below root depth-first, siblings in byte order of their names.
// Every directory is reported before its contents, so the sequence of rel paths is sorted
// component by component. The root itself is not reported. A Reloader is reloaded first.
func Walk(ctx context.Context, fsys FileSystem, root string, fn WalkFunc) error {
	if r, ok := fsys.(Reloader); ok {
		if err := r.Reload(); err != nil {
			return err
		}
	}
	info, err := fsys.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir {
		return fmt.Errorf("walk %q: %w", root, ErrNotDirectory)
	}
	return walkDir(ctx, fsys, root, "", fn)
}

func walkDir(ctx context.Context, fsys FileSystem, dir, rel string, fn WalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory %q: %w", dir, err)
	}
	slices.SortFunc(entries, func(a, b DirEntry) int {
		return strings.Compare(a.Name, b.Name)
	})

	for _, entry := range entries {
		childRel := joinRel(rel, entry.Name)
		err := fn(childRel, entry)
		if errors.Is(err, SkipDir) {
			continue
		}
		if err != nil {
			return err
		}
		if entry.IsDir {
			if err := walkDir(ctx, fsys, joinRel(dir, entry.Name), childRel, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func joinRel(parent, name string) string {
	if parent == "" || parent == "." {
		return name
	}
	return path.Join(parent, name)
}
