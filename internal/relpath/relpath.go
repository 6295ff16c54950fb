// Package relpath provides a normalized, platform-independent path relative to a workspace root.
package relpath

import (
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const separator = '/'

// ErrInvalidPath is returned when a string cannot be used as a relative path.
var ErrInvalidPath = errors.New("invalid relative path")

// ErrOSPathConversion is returned when an OS path cannot be represented as UTF-8.
var ErrOSPathConversion = errors.New("cannot convert OS path")

// RelativePath is a path relative to some workspace root.
//
// It always uses '/' as the separator and never starts or ends with one. The zero
// value is the empty path, which denotes the root. Construction does not yet reject
// "." and ".." components or repeated separators.
type RelativePath struct {
	s string
}

// Root returns the empty path.
func Root() RelativePath {
	return RelativePath{}
}

// New creates a RelativePath from s, normalizing '\' separators to '/'.
func New(s string) (RelativePath, error) {
	s = strings.ReplaceAll(s, `\`, "/")
	if strings.HasPrefix(s, "/") || strings.HasSuffix(s, "/") {
		return RelativePath{}, fmt.Errorf("%w: %q", ErrInvalidPath, s)
	}
	return RelativePath{s: s}, nil
}

// MustNew is like New but panics on error.
func MustNew(s string) RelativePath {
	p, err := New(s)
	if err != nil {
		panic(err)
	}
	return p
}

// FromOSPath converts a relative OS path (as produced by filepath.Rel) into a RelativePath.
func FromOSPath(p string) (RelativePath, error) {
	if !utf8.ValidString(p) {
		return RelativePath{}, fmt.Errorf("%w: %q", ErrOSPathConversion, p)
	}
	if p == "." {
		return Root(), nil
	}
	return New(filepath.ToSlash(p))
}

// String returns the normalized path string.
func (p RelativePath) String() string {
	return p.s
}

// IsRoot reports whether p is the empty path.
func (p RelativePath) IsRoot() bool {
	return p.s == ""
}

// Equal reports whether p and other name the same path.
func (p RelativePath) Equal(other RelativePath) bool {
	return p.s == other.s
}

// FileName returns the last component of p. It reports false for the root.
func (p RelativePath) FileName() (string, bool) {
	if p.s == "" {
		return "", false
	}
	return p.s[strings.LastIndexByte(p.s, separator)+1:], true
}

// Parent returns the path without its last component. It reports false for the root.
func (p RelativePath) Parent() (RelativePath, bool) {
	if p.s == "" {
		return RelativePath{}, false
	}
	i := strings.LastIndexByte(p.s, separator)
	if i < 0 {
		return RelativePath{}, true
	}
	return RelativePath{s: p.s[:i]}, true
}

// Join appends a single name to p. The name must not contain a separator.
func (p RelativePath) Join(name string) (RelativePath, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return RelativePath{}, fmt.Errorf("%w: cannot join %q to %q", ErrInvalidPath, name, p.s)
	}
	if p.s == "" {
		return RelativePath{s: name}, nil
	}
	return RelativePath{s: p.s + "/" + name}, nil
}

// Components returns a sequence over the components of p. Each call starts over.
func (p RelativePath) Components() iter.Seq[string] {
	return func(yield func(string) bool) {
		c := p.Iter()
		for {
			name, ok := c.Next()
			if !ok || !yield(name) {
				return
			}
		}
	}
}

// Iter returns a cursor positioned before the first component of p.
func (p RelativePath) Iter() *Components {
	return newComponents(p.s, 0)
}

// CommonAncestor returns the longest prefix of whole components shared by p and other.
// For "a/b/c/d" and "a/b/e/f" it is "a/b"; for "a/b/c" and "d/e/f" it is the root.
func (p RelativePath) CommonAncestor(other RelativePath) RelativePath {
	return RelativePath{s: p.s[:p.commonAncestorOffset(other)]}
}

// ComponentsFromCommonAncestor returns a cursor over p that has already been advanced past
// the components it shares with other. For "a/b/c/d" against "a/b/e/f" the next component
// is "c" and the accumulated string is "a/b".
func (p RelativePath) ComponentsFromCommonAncestor(other RelativePath) *Components {
	return newComponents(p.s, p.commonAncestorOffset(other))
}

// commonAncestorOffset returns the byte offset in p just past the last component that
// matches other, or 0 when the first components already differ.
func (p RelativePath) commonAncestorOffset(other RelativePath) int {
	mine, theirs := p.Iter(), other.Iter()
	offset := 0
	for {
		a, ok := mine.Next()
		if !ok {
			return offset
		}
		b, ok := theirs.Next()
		if !ok || a != b {
			return offset
		}
		offset = mine.end
	}
}

// Compare orders paths by their component sequences, so that siblings sort by name before
// any of their descendants. This differs from byte order: "a/b!/c" sorts after "a/b/c".
func Compare(a, b RelativePath) int {
	ai, bi := a.Iter(), b.Iter()
	for {
		x, xok := ai.Next()
		y, yok := bi.Next()
		switch {
		case !xok && !yok:
			return 0
		case !xok:
			return -1
		case !yok:
			return 1
		}
		if c := strings.Compare(x, y); c != 0 {
			return c
		}
	}
}

// Compare is shorthand for Compare(p, other).
func (p RelativePath) Compare(other RelativePath) int {
	return Compare(p, other)
}

// Less reports whether p sorts before other.
func (p RelativePath) Less(other RelativePath) bool {
	return Compare(p, other) < 0
}

// MarshalText implements encoding.TextMarshaler.
func (p RelativePath) MarshalText() ([]byte, error) {
	return []byte(p.s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler and validates the input.
func (p *RelativePath) UnmarshalText(text []byte) error {
	parsed, err := New(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
