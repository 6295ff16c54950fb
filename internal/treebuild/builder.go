// Package treebuild folds a flat, sorted sequence of workspace entries into a tree.Directory
// in a single pass.
package treebuild

import (
	"errors"
	"fmt"
	"iter"

	"github.com/CageChen/fxv/internal/relpath"
	"github.com/CageChen/fxv/internal/tree"
)

// Input validation errors.
var (
	ErrRootEntry     = errors.New("the root itself must not be listed")
	ErrUnsorted      = errors.New("entries are not in path order")
	ErrDuplicatePath = errors.New("duplicate path")
	ErrFileAncestor  = errors.New("entry nested under a file")
)

// Entry is one item of a workspace walk.
type Entry struct {
	Path           relpath.RelativePath
	IsDir          bool
	Size           uint64
	ModifiedUnixMS uint64
	// Digest is only used to detect changes and is not stored in the tree.
	Digest         string
	Change         tree.ChangeState
	Conflict       tree.ConflictState
}

// Builder turns entries sorted by relpath.Compare into a tree.
//
// It keeps a stack of open directories whose bottom frame is the root. Because the input is
// sorted, a directory that is not an ancestor of the current entry can never receive more
// children, so it is closed and attached to its parent as soon as it is left.
type Builder struct {
	stack []*tree.Directory

	last       relpath.RelativePath
	lastIsFile bool
	started    bool
}

// New creates a Builder holding only the root frame.
func New() *Builder {
	return &Builder{stack: []*tree.Directory{tree.NewDirectory(relpath.Root())}}
}

func (b *Builder) top() *tree.Directory {
	return b.stack[len(b.stack)-1]
}

// popTail closes the top frame and attaches it to the frame below.
func (b *Builder) popTail() {
	closed := b.top()
	b.stack = b.stack[:len(b.stack)-1]
	name, _ := closed.Path().FileName()
	b.top().PushEntry(tree.NewDirectoryEntry(name, closed))
}

// Add folds one entry into the tree.
func (b *Builder) Add(e Entry) error {
	if err := b.check(e); err != nil {
		return err
	}

	stackPath := b.top().Path()
	ancestor := stackPath.CommonAncestor(e.Path)
	for !b.top().Path().Equal(ancestor) {
		b.popTail()
	}

	// Open a frame for every directory between the ancestor and the entry. A file's own
	// name is skipped; a directory gets a frame so that it exists even if it stays empty.
	missing := e.Path.ComponentsFromCommonAncestor(stackPath)
	for {
		if _, ok := missing.Next(); !ok {
			break
		}
		if missing.AtLast() && !e.IsDir {
			break
		}
		b.stack = append(b.stack, tree.NewDirectory(missing.AccumulatedPath()))
	}

	if !e.IsDir {
		name, _ := e.Path.FileName()
		b.top().PushEntry(tree.NewFileEntry(name, tree.FileInfo{
			Metadata: tree.FileMetadata{SizeBytes: e.Size, ModifiedUnixMS: e.ModifiedUnixMS},
			Change:   e.Change,
			Conflict: e.Conflict,
		}))
	}

	b.last, b.lastIsFile, b.started = e.Path, !e.IsDir, true
	return nil
}

func (b *Builder) check(e Entry) error {
	if e.Path.IsRoot() {
		return ErrRootEntry
	}
	if !b.started {
		return nil
	}
	switch c := relpath.Compare(b.last, e.Path); {
	case c == 0:
		return fmt.Errorf("%w: %s", ErrDuplicatePath, e.Path)
	case c > 0:
		return fmt.Errorf("%w: %s after %s", ErrUnsorted, e.Path, b.last)
	}
	if b.lastIsFile && b.last.CommonAncestor(e.Path).Equal(b.last) {
		return fmt.Errorf("%w: %s under %s", ErrFileAncestor, e.Path, b.last)
	}
	return nil
}

// Finish closes every open frame and returns the root. The Builder must not be used afterwards.
func (b *Builder) Finish() *tree.Directory {
	for len(b.stack) > 1 {
		b.popTail()
	}
	root := b.stack[0]
	b.stack = nil
	return root
}

// Build folds a whole sequence into a tree.
func Build(entries iter.Seq[Entry]) (*tree.Directory, error) {
	b := New()
	for e := range entries {
		if err := b.Add(e); err != nil {
			return nil, err
		}
	}
	return b.Finish(), nil
}

// BuildSlice is Build over a slice.
func BuildSlice(entries []Entry) (*tree.Directory, error) {
	return Build(func(yield func(Entry) bool) {
		for _, e := range entries {
			if !yield(e) {
				return
			}
		}
	})
}
