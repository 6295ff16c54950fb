// Package ingest turns a workspace filesystem into the sorted entry stream the tree builder
// consumes, and annotates that stream with change and conflict states.
package ingest

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/CageChen/fxv/internal/fs"
	"github.com/CageChen/fxv/internal/logging"
	"github.com/CageChen/fxv/internal/relpath"
	"github.com/CageChen/fxv/internal/tree"
	"github.com/CageChen/fxv/internal/treebuild"
)

// Scan walks fsys below root and returns one entry per file and directory, sorted by
// relpath.Compare. Paths matching one of the exclude patterns are left out together with
// everything below them.
//
// Where the backslash is not the path separator, a name containing one cannot become a
// relative path. Such entries are logged and skipped like excluded ones.
func Scan(ctx context.Context, logger *zap.Logger, fsys fs.FileSystem, root string, exclude []string) ([]treebuild.Entry, error) {
	logger = logging.OrNop(logger)
	var entries []treebuild.Entry
	err := fs.Walk(ctx, fsys, root, func(rel string, info fs.FileInfo) error {
		if Excluded(rel, exclude) {
			return fs.SkipDir
		}
		if filepath.Separator != '\\' && strings.ContainsRune(info.Name, '\\') {
			logger.Warn("skipping entry with a backslash in its name",
				zap.String("path", rel), zap.Bool("dir", info.IsDir))
			return fs.SkipDir
		}
		p, err := relpath.FromOSPath(rel)
		if err != nil {
			return fmt.Errorf("converting %q: %w", rel, err)
		}
		e := treebuild.Entry{Path: p, IsDir: info.IsDir}
		if !info.IsDir {
			e.Size = uint64(max(info.Size, 0))
			e.ModifiedUnixMS = uint64(max(info.ModTime.UnixMilli(), 0))
			e.Digest = info.Digest
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Build scans fsys and folds the result into a tree without any annotation.
func Build(ctx context.Context, logger *zap.Logger, fsys fs.FileSystem, root string, exclude []string) (*tree.Directory, error) {
	entries, err := Scan(ctx, logger, fsys, root, exclude)
	if err != nil {
		return nil, err
	}
	return treebuild.BuildSlice(entries)
}

// Excluded reports whether a '/'-separated relative path matches any of the patterns.
// A pattern matches the whole path, the base name, or names a directory prefix.
func Excluded(rel string, patterns []string) bool {
	base := path.Base(rel)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if matched, _ := path.Match(pattern, rel); matched {
			return true
		}
		if matched, _ := path.Match(pattern, base); matched {
			return true
		}
		clean := path.Clean(pattern)
		if rel == clean || strings.HasPrefix(rel, clean+"/") {
			return true
		}
	}
	return false
}
