// Package tree models a workspace directory hierarchy whose directories carry the
// aggregated change and conflict states of everything loaded beneath them.
package tree

import (
	"iter"

	"github.com/CageChen/fxv/internal/relpath"
)

// FileMetadata holds file metadata.
type FileMetadata struct {
	SizeBytes      uint64 `json:"size_bytes"`
	ModifiedUnixMS uint64 `json:"modified_time_unix_ms_utc"`
}

// FileInfo is the payload of a file entry.
type FileInfo struct {
	Metadata FileMetadata
	Change   ChangeState
	Conflict ConflictState
}

// Entry is a single named item of a Directory: either a file or a sub-directory.
// A sub-directory whose contents are not loaded is a placeholder with a nil Directory.
type Entry struct {
	name   string
	isFile bool
	file   FileInfo
	dir    *Directory
}

// NewFileEntry creates a file entry.
func NewFileEntry(name string, info FileInfo) Entry {
	return Entry{name: name, isFile: true, file: info}
}

// NewDirectoryEntry creates a directory entry. A nil dir creates an unloaded placeholder.
func NewDirectoryEntry(name string, dir *Directory) Entry {
	return Entry{name: name, dir: dir}
}

// NewUnloadedEntry creates a placeholder for a directory whose contents are unknown.
func NewUnloadedEntry(name string) Entry {
	return Entry{name: name}
}

// Name returns the entry name.
func (e Entry) Name() string { return e.name }

// IsFile reports whether the entry is a file.
func (e Entry) IsFile() bool { return e.isFile }

// IsDir reports whether the entry is a directory, loaded or not.
func (e Entry) IsDir() bool { return !e.isFile }

// IsUnloaded reports whether the entry is a directory placeholder without contents.
func (e Entry) IsUnloaded() bool { return !e.isFile && e.dir == nil }

// File returns the file payload. It reports false for directories.
func (e Entry) File() (FileInfo, bool) {
	return e.file, e.isFile
}

// Directory returns the loaded sub-directory. It reports false for files and placeholders.
func (e Entry) Directory() (*Directory, bool) {
	return e.dir, e.dir != nil
}

// aggregateInto folds the entry's own contribution into the given sets.
func (e Entry) aggregateInto(conflicts *ConflictStateSet, changes *ChangeStateSet) {
	switch {
	case e.isFile:
		*conflicts = conflicts.With(e.file.Conflict)
		*changes = changes.With(e.file.Change)
	case e.dir != nil:
		*conflicts = conflicts.Union(e.dir.conflicts)
		*changes = changes.Union(e.dir.changes)
	}
	// Unloaded directories contribute nothing.
}

// Directory is a directory of the workspace together with its entries.
//
// A Directory reachable from a published tree must not be mutated; use Clone first.
type Directory struct {
	path    relpath.RelativePath
	entries []Entry

	// union of the leaf states of every loaded descendant
	conflicts ConflictStateSet
	changes   ChangeStateSet

	// levels of loaded sub-directories below this one
	height int
}

// NewDirectory creates a Directory and aggregates the states of its entries.
func NewDirectory(path relpath.RelativePath, entries ...Entry) *Directory {
	d := &Directory{path: path, entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		d.PushEntry(e)
	}
	return d
}

// Path returns the directory's path relative to the workspace root.
func (d *Directory) Path() relpath.RelativePath { return d.path }

// Entries returns the directory's entries in insertion order. The slice must not be modified.
func (d *Directory) Entries() []Entry { return d.entries }

// Len returns the number of immediate entries.
func (d *Directory) Len() int { return len(d.entries) }

// ChangeStates returns the aggregated change states of the loaded subtree.
func (d *Directory) ChangeStates() ChangeStateSet { return d.changes }

// ConflictStates returns the aggregated conflict states of the loaded subtree.
func (d *Directory) ConflictStates() ConflictStateSet { return d.conflicts }

// Height returns the number of loaded directory levels below d; 0 when no
// sub-directory is loaded.
func (d *Directory) Height() int { return d.height }

// PushEntry appends e and folds its states into the aggregates.
// Entries are not checked for order or uniqueness.
func (d *Directory) PushEntry(e Entry) {
	e.aggregateInto(&d.conflicts, &d.changes)
	if e.dir != nil && e.dir.height+1 > d.height {
		d.height = e.dir.height + 1
	}
	d.entries = append(d.entries, e)
}

// Lookup returns the entry with the given name.
func (d *Directory) Lookup(name string) (Entry, bool) {
	for _, e := range d.entries {
		if e.name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// PruneToDepth unloads every sub-directory nested deeper than limit levels. With a limit
// of 0 the immediate entries stay visible but all sub-directories become placeholders.
// Files are never removed and the aggregated states are left as they were.
func (d *Directory) PruneToDepth(limit int) {
	d.height = 0
	for i := range d.entries {
		e := &d.entries[i]
		if e.dir == nil {
			continue
		}
		if limit > 0 {
			e.dir.PruneToDepth(limit - 1)
			d.height = max(d.height, e.dir.height+1)
		} else {
			e.dir = nil
		}
	}
}

// Pruned returns d limited to the given depth without modifying d. Sub-trees that already
// fit within the limit are shared with d rather than copied, and d itself is returned when
// nothing needs pruning. The aggregated states are carried over unchanged.
func (d *Directory) Pruned(limit int) *Directory {
	if d.height <= limit {
		return d
	}
	out := &Directory{
		path:      d.path,
		entries:   make([]Entry, len(d.entries)),
		conflicts: d.conflicts,
		changes:   d.changes,
	}
	copy(out.entries, d.entries)
	for i := range out.entries {
		e := &out.entries[i]
		if e.dir == nil {
			continue
		}
		if limit > 0 {
			e.dir = e.dir.Pruned(limit - 1)
			out.height = max(out.height, e.dir.height+1)
		} else {
			e.dir = nil
		}
	}
	return out
}

// Clone returns a deep copy of d.
func (d *Directory) Clone() *Directory {
	out := *d
	out.entries = make([]Entry, len(d.entries))
	copy(out.entries, d.entries)
	for i := range out.entries {
		if out.entries[i].dir != nil {
			out.entries[i].dir = out.entries[i].dir.Clone()
		}
	}
	return &out
}

// IsFullyLoaded reports whether no placeholder exists anywhere below d.
func (d *Directory) IsFullyLoaded() bool {
	for _, e := range d.entries {
		if e.IsUnloaded() {
			return false
		}
		if e.dir != nil && !e.dir.IsFullyLoaded() {
			return false
		}
	}
	return true
}

// Walk visits every entry below d depth-first, in entry order, with the entry's full path.
// Returning false from fn stops the walk.
func (d *Directory) Walk(fn func(path relpath.RelativePath, e Entry) bool) {
	d.walk(fn)
}

func (d *Directory) walk(fn func(relpath.RelativePath, Entry) bool) bool {
	for _, e := range d.entries {
		p, err := d.path.Join(e.name)
		if err != nil {
			// Names produced by the builder or decoder are always joinable.
			continue
		}
		if !fn(p, e) {
			return false
		}
		if e.dir != nil && !e.dir.walk(fn) {
			return false
		}
	}
	return true
}

// Files returns the loaded files below d in depth-first order.
func (d *Directory) Files() iter.Seq2[relpath.RelativePath, FileInfo] {
	return func(yield func(relpath.RelativePath, FileInfo) bool) {
		d.Walk(func(p relpath.RelativePath, e Entry) bool {
			if !e.isFile {
				return true
			}
			return yield(p, e.file)
		})
	}
}

// Count returns the number of loaded entries below d.
func (d *Directory) Count() int {
	n := 0
	d.Walk(func(relpath.RelativePath, Entry) bool {
		n++
		return true
	})
	return n
}
