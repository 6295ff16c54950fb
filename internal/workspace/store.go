// Package workspace serves directory trees of configured workspaces. Each workspace is a
// Store holding an immutable published tree; refreshes build a new tree and swap it in.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/CageChen/fxv/internal/config"
	"github.com/CageChen/fxv/internal/fs"
	"github.com/CageChen/fxv/internal/ingest"
	"github.com/CageChen/fxv/internal/logging"
	"github.com/CageChen/fxv/internal/metrics"
	"github.com/CageChen/fxv/internal/relpath"
	"github.com/CageChen/fxv/internal/resolve"
	"github.com/CageChen/fxv/internal/tree"
	"github.com/CageChen/fxv/internal/treebuild"
)

var (
	// ErrPartialTree is returned when a snapshot contains unloaded directories.
	ErrPartialTree = errors.New("tree contains unloaded directories")
	// ErrNoFiles is returned for file access on a workspace that has only a snapshot.
	ErrNoFiles = errors.New("workspace has no file contents")
	// ErrNotFile is returned when a conflict is recorded for a path that is not a file.
	ErrNotFile = errors.New("not a file of the workspace")
	// ErrReadOnly is returned when conflicts are recorded on a snapshot workspace.
	ErrReadOnly = errors.New("snapshot workspaces are read-only")
)

// API is the directory fetch service. A nil directory with a nil error means the path
// does not exist or does not name a directory.
type API interface {
	FetchDirectory(ctx context.Context, path relpath.RelativePath, opts resolve.Options) (*tree.Directory, error)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = logging.OrNop(l) }
}

// WithLatency delays every fetch by a random duration in [min, max).
func WithLatency(min, max time.Duration) Option {
	return func(s *Store) { s.minDelay, s.maxDelay = min, max }
}

// WithExclude sets exclude patterns applied on every scan.
func WithExclude(patterns []string) Option {
	return func(s *Store) { s.exclude = patterns }
}

// WithFileSystem replaces the filesystem derived from the workspace source.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(s *Store) { s.fsys = fsys }
}

// Store serves one workspace.
type Store struct {
	src      config.Workspace
	fsys     fs.FileSystem
	exclude  []string
	logger   *zap.Logger
	minDelay time.Duration
	maxDelay time.Duration

	current   atomic.Pointer[tree.Directory]
	onPublish func(name string)

	// mu serializes refreshes and guards everything below it.
	mu        sync.Mutex
	baseline  []treebuild.Entry
	entries   []treebuild.Entry
	conflicts ingest.Conflicts
	refreshed time.Time
}

var _ API = (*Store)(nil)

// NewStore creates a Store for src holding an empty tree until the first Refresh.
func NewStore(src config.Workspace, opts ...Option) *Store {
	s := &Store{
		src:       src,
		logger:    zap.NewNop(),
		conflicts: make(ingest.Conflicts),
	}
	switch {
	case src.Path == "":
	case src.Kind() == "git":
		s.fsys = fs.NewGitFS(src.Path, src.GitRef)
	case src.Kind() == "local":
		s.fsys = fs.NewLocalFS(src.Path)
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("workspace", src.Name))
	s.current.Store(tree.NewDirectory(relpath.Root()))
	return s
}

// NewStatic creates a Store serving a fixed tree.
func NewStatic(name string, root *tree.Directory, opts ...Option) *Store {
	s := NewStore(config.Workspace{Name: name}, opts...)
	s.current.Store(root)
	return s
}

// Name returns the workspace name.
func (s *Store) Name() string { return s.src.Name }

// Source returns the workspace configuration.
func (s *Store) Source() config.Workspace { return s.src }

// Tree returns the published tree. It must not be mutated.
func (s *Store) Tree() *tree.Directory { return s.current.Load() }

// LastRefresh returns when the tree was last published.
func (s *Store) LastRefresh() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshed
}

// FetchDirectory returns the directory at p, pruned to opts.DepthLimit.
func (s *Store) FetchDirectory(ctx context.Context, p relpath.RelativePath, opts resolve.Options) (*tree.Directory, error) {
	start := time.Now()
	if err := s.delay(ctx); err != nil {
		return nil, err
	}

	d, err := resolve.Fetch(s.current.Load(), p, opts)
	switch {
	case err != nil:
		metrics.RecordFetch(s.src.Name, metrics.ResultError, time.Since(start))
		if errors.Is(err, resolve.ErrUnloadedSource) {
			s.logger.Error("published tree is not fully loaded", zap.String("path", p.String()), zap.Error(err))
		}
		return nil, err
	case d == nil:
		metrics.RecordFetch(s.src.Name, metrics.ResultNotFound, time.Since(start))
	default:
		metrics.RecordFetch(s.src.Name, metrics.ResultFound, time.Since(start))
	}
	return d, nil
}

func (s *Store) delay(ctx context.Context) error {
	d := s.minDelay
	if s.maxDelay > s.minDelay {
		d += rand.N(s.maxDelay - s.minDelay)
	}
	if d <= 0 {
		return ctx.Err()
	}
	s.logger.Debug("delaying request", zap.Duration("delay", d))

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Refresh rebuilds the tree from the workspace source and publishes it. The first scan of
// a workspace becomes the baseline later scans are compared against.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	root, err := s.rebuild(ctx)
	metrics.RecordIngest(s.src.Name, time.Since(start), err == nil)
	if err != nil {
		s.logger.Warn("refresh failed", zap.Error(err))
		return err
	}
	s.publish(root)
	s.logger.Info("tree refreshed",
		zap.Int("entries", root.Count()),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (s *Store) rebuild(ctx context.Context) (*tree.Directory, error) {
	if s.src.Snapshot != "" {
		return readSnapshotFile(s.src.Snapshot)
	}
	if s.fsys == nil {
		return s.current.Load(), nil
	}

	scanned, err := ingest.Scan(ctx, s.logger, s.fsys, s.src.SubPath, s.exclude)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", s.src.Name, err)
	}
	if s.baseline == nil {
		s.baseline = scanned
		if s.baseline == nil {
			s.baseline = []treebuild.Entry{}
		}
	}
	s.entries = ingest.Annotate(s.baseline, scanned, s.conflicts)
	return treebuild.BuildSlice(s.entries)
}

// ResetBaseline makes the next Refresh the new baseline, clearing all change states.
func (s *Store) ResetBaseline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseline = nil
}

func (s *Store) publish(root *tree.Directory) {
	s.current.Store(root)
	s.refreshed = time.Now()
	metrics.SetTreeEntries(s.src.Name, root.Count())
	if s.onPublish != nil {
		s.onPublish(s.src.Name)
	}
}

// SetConflict records the conflict state of a file and republishes the tree with it.
// ConflictNone clears the record.
func (s *Store) SetConflict(p relpath.RelativePath, state tree.ConflictState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.src.Snapshot != "" || s.fsys == nil {
		return ErrReadOnly
	}
	i, found := slices.BinarySearchFunc(s.entries, p, func(e treebuild.Entry, target relpath.RelativePath) int {
		return relpath.Compare(e.Path, target)
	})
	if !found || s.entries[i].IsDir {
		return fmt.Errorf("%w: %s", ErrNotFile, p)
	}

	if state == tree.ConflictNone {
		delete(s.conflicts, p.String())
	} else {
		s.conflicts[p.String()] = state
	}
	s.entries[i].Conflict = state

	root, err := treebuild.BuildSlice(s.entries)
	if err != nil {
		return err
	}
	s.publish(root)
	s.logger.Info("conflict state recorded", zap.String("path", p.String()), zap.Stringer("state", state))
	return nil
}

// Conflicts returns a copy of the recorded conflict states.
func (s *Store) Conflicts() ingest.Conflicts {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(ingest.Conflicts, len(s.conflicts))
	for k, v := range s.conflicts {
		out[k] = v
	}
	return out
}

// ReadFile returns the contents of the file at p.
func (s *Store) ReadFile(p relpath.RelativePath) ([]byte, error) {
	if s.fsys == nil {
		return nil, ErrNoFiles
	}
	name := p.String()
	if s.src.SubPath != "" {
		name = path.Join(s.src.SubPath, name)
	}
	return s.fsys.ReadFile(name)
}

// LocalDir returns the directory on disk the tree is scanned from, for local workspaces.
func (s *Store) LocalDir() (string, bool) {
	if s.src.Kind() != "local" || s.src.Path == "" {
		return "", false
	}
	if s.src.SubPath != "" {
		return filepath.Join(s.src.Path, filepath.FromSlash(s.src.SubPath)), true
	}
	return s.src.Path, true
}

// LoadSnapshot replaces the published tree with one decoded from r.
func (s *Store) LoadSnapshot(r io.Reader) error {
	root, err := decodeSnapshot(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(root)
	return nil
}

// LoadSnapshotFile is LoadSnapshot reading from a file.
func (s *Store) LoadSnapshotFile(name string) error {
	root, err := readSnapshotFile(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(root)
	return nil
}

func readSnapshotFile(name string) (*tree.Directory, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	root, err := decodeSnapshot(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return root, nil
}

func decodeSnapshot(r io.Reader) (*tree.Directory, error) {
	var root tree.Directory
	if err := json.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if !root.IsFullyLoaded() {
		return nil, ErrPartialTree
	}
	if !root.Path().IsRoot() {
		return nil, fmt.Errorf("snapshot root has path %q", root.Path())
	}
	return &root, nil
}
