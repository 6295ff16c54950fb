package ingest

import (
	"github.com/CageChen/fxv/internal/relpath"
	"github.com/CageChen/fxv/internal/tree"
	"github.com/CageChen/fxv/internal/treebuild"
)

// Conflicts maps file paths to the conflict state recorded for them.
type Conflicts map[string]tree.ConflictState

// Annotate compares the current scan against a baseline scan and returns the current
// entries with change states set: files missing from the baseline are Added, files whose
// content changed are Modified, and baseline files that vanished are re-inserted as
// Deleted. Content is compared by digest when both sides carry one, otherwise by size
// and modification time. Conflict states are applied to files by path.
//
// Both inputs must be sorted by relpath.Compare; so is the result. A nil baseline marks
// nothing as changed.
func Annotate(baseline, current []treebuild.Entry, conflicts Conflicts) []treebuild.Entry {
	out := make([]treebuild.Entry, 0, len(current))
	var lastFile relpath.RelativePath
	hasLastFile := false

	emit := func(e treebuild.Entry) {
		if !e.IsDir {
			e.Conflict = conflicts[e.Path.String()]
			lastFile, hasLastFile = e.Path, true
		}
		out = append(out, e)
	}
	// A vanished file cannot come back below a path that is now a file.
	underFile := func(p relpath.RelativePath) bool {
		return hasLastFile && lastFile.CommonAncestor(p).Equal(lastFile)
	}

	i, j := 0, 0
	for i < len(baseline) || j < len(current) {
		var c int
		switch {
		case i == len(baseline):
			c = 1
		case j == len(current):
			c = -1
		default:
			c = relpath.Compare(baseline[i].Path, current[j].Path)
		}

		switch {
		case c < 0:
			old := baseline[i]
			i++
			if old.IsDir || underFile(old.Path) {
				continue
			}
			old.Change = tree.Deleted
			emit(old)
		case c > 0:
			e := current[j]
			j++
			if !e.IsDir && baseline != nil {
				e.Change = tree.Added
			}
			emit(e)
		default:
			old, e := baseline[i], current[j]
			i++
			j++
			if !e.IsDir {
				switch {
				case old.IsDir:
					e.Change = tree.Added
				case contentChanged(old, e):
					e.Change = tree.Modified
				}
			}
			emit(e)
		}
	}
	return out
}

func contentChanged(old, cur treebuild.Entry) bool {
	if old.Digest != "" && cur.Digest != "" {
		return old.Digest != cur.Digest
	}
	return old.Size != cur.Size || old.ModifiedUnixMS != cur.ModifiedUnixMS
}
