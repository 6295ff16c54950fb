// Package resolve answers "directory at path, at most D levels deep" queries against a
// fully loaded in-memory tree.
package resolve

import (
	"errors"
	"fmt"

	"github.com/CageChen/fxv/internal/relpath"
	"github.com/CageChen/fxv/internal/tree"
)

// ErrUnloadedSource reports an unloaded placeholder inside a tree that is supposed to be
// complete. It indicates a bug in tree construction or a pruned tree passed as a source,
// and is never a normal "not found".
var ErrUnloadedSource = errors.New("source tree contains an unloaded directory")

// Options controls a fetch.
type Options struct {
	// DepthLimit is the number of directory levels to load below the fetched directory.
	// Nil means unlimited; 0 loads the directory's entries with every sub-directory unloaded.
	DepthLimit *int
	// Filter is accepted for API compatibility; entries are not filtered.
	Filter string
}

// WithDepth returns Options limited to depth levels.
func WithDepth(depth int) Options {
	return Options{DepthLimit: &depth}
}

// Fetch returns the directory at path below root, limited to the requested depth.
// A missing path, or one that runs through a file, yields (nil, nil).
//
// The result shares unpruned subtrees with root and must be treated as read-only.
func Fetch(root *tree.Directory, path relpath.RelativePath, opts Options) (*tree.Directory, error) {
	current := root
	for name := range path.Components() {
		entry, ok := current.Lookup(name)
		if !ok || entry.IsFile() {
			return nil, nil
		}
		dir, loaded := entry.Directory()
		if !loaded {
			return nil, fmt.Errorf("%w: %q in %q", ErrUnloadedSource, name, current.Path())
		}
		current = dir
	}

	if opts.DepthLimit != nil {
		return current.Pruned(*opts.DepthLimit), nil
	}
	return current, nil
}
