package relpath

import "strings"

// Components is a cursor over the components of a RelativePath.
//
// Besides yielding components it tracks how much of the path has been consumed, which
// lets callers materialize every intermediate prefix without building new strings.
type Components struct {
	full string
	// next is the offset of the next component, or -1 once exhausted.
	next int
	// end is the offset just past the last component returned.
	end int
}

// newComponents returns a cursor over full whose consumed prefix ends at offset, which must
// be 0 or the end of a component.
func newComponents(full string, offset int) *Components {
	c := &Components{full: full, end: offset, next: offset}
	if offset > 0 {
		c.next = offset + 1
	}
	if full == "" || c.next > len(full) {
		c.next = -1
	}
	return c
}

// Next returns the next component. It keeps returning false once the path is exhausted.
func (c *Components) Next() (string, bool) {
	if c.next < 0 {
		return "", false
	}
	start := c.next
	if i := strings.IndexByte(c.full[start:], separator); i >= 0 {
		c.end = start + i
		c.next = c.end + 1
	} else {
		c.end = len(c.full)
		c.next = -1
	}
	return c.full[start:c.end], true
}

// Full returns the whole path this cursor iterates, independent of its position.
func (c *Components) Full() string {
	return c.full
}

// Accumulated returns the path up to and including the last component returned by Next.
func (c *Components) Accumulated() string {
	return c.full[:c.end]
}

// AccumulatedPath is Accumulated as a RelativePath. A prefix ending on a component
// boundary of a valid path is itself valid.
func (c *Components) AccumulatedPath() RelativePath {
	return RelativePath{s: c.Accumulated()}
}

// AtLast reports whether no components remain.
func (c *Components) AtLast() bool {
	return c.next < 0
}
