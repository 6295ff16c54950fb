package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/CageChen/fxv/internal/config"
	"github.com/CageChen/fxv/internal/logging"
	"github.com/CageChen/fxv/internal/metrics"
)

var (
	// ErrUnknownWorkspace is returned for a workspace name that is not registered.
	ErrUnknownWorkspace = errors.New("unknown workspace")
	// ErrDuplicateWorkspace is returned when a name is registered twice.
	ErrDuplicateWorkspace = errors.New("workspace already registered")
)

// maxParallelRefresh bounds how many workspaces LoadAll scans at once.
const maxParallelRefresh = 4

// Registry holds the stores of all served workspaces.
type Registry struct {
	logger       *zap.Logger
	refreshDelay time.Duration
	storeOpts    []Option

	mu        sync.RWMutex
	stores    map[string]*Store
	order     []string
	timers    map[string]*time.Timer
	listeners []func(name string)
}

// NewRegistry creates an empty registry. storeOpts are applied to every store it creates.
func NewRegistry(logger *zap.Logger, refreshDelay time.Duration, storeOpts ...Option) *Registry {
	return &Registry{
		logger:       logging.OrNop(logger),
		refreshDelay: refreshDelay,
		storeOpts:    storeOpts,
		stores:       make(map[string]*Store),
		timers:       make(map[string]*time.Timer),
	}
}

// OnChange registers fn to be called with the workspace name whenever a tree is published.
func (r *Registry) OnChange(fn func(name string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) notify(name string) {
	r.mu.RLock()
	listeners := r.listeners
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(name)
	}
}

// Add creates and registers a store for ws. The store is empty until refreshed.
func (r *Registry) Add(ws config.Workspace, opts ...Option) (*Store, error) {
	all := append([]Option{WithLogger(r.logger)}, r.storeOpts...)
	all = append(all, opts...)
	s := NewStore(ws, all...)
	if err := r.Register(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Register adds an existing store, such as one made by NewStatic.
func (r *Registry) Register(s *Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := s.Name()
	if _, ok := r.stores[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateWorkspace, name)
	}
	s.onPublish = r.notify
	r.stores[name] = s
	r.order = append(r.order, name)
	return nil
}

// Remove unregisters the named workspace.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stores[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownWorkspace, name)
	}
	delete(r.stores, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if t, ok := r.timers[name]; ok {
		t.Stop()
		delete(r.timers, name)
	}
	metrics.ForgetWorkspace(name)
	return nil
}

// Get returns the named store.
func (r *Registry) Get(name string) (*Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkspace, name)
	}
	return s, nil
}

// List returns the stores in registration order.
func (r *Registry) List() []*Store {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Store, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.stores[name])
	}
	return out
}

// LoadAll refreshes every store concurrently and returns the first error.
func (r *Registry) LoadAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelRefresh)
	for _, s := range r.List() {
		g.Go(func() error {
			return s.Refresh(ctx)
		})
	}
	return g.Wait()
}

// ScheduleRefresh refreshes the named workspace after the refresh delay. Calls arriving
// before the delay has passed push the refresh back.
func (r *Registry) ScheduleRefresh(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stores[name]; !ok {
		return
	}
	if t, ok := r.timers[name]; ok {
		t.Reset(r.refreshDelay)
		return
	}
	r.timers[name] = time.AfterFunc(r.refreshDelay, func() {
		r.mu.Lock()
		delete(r.timers, name)
		r.mu.Unlock()

		s, err := r.Get(name)
		if err != nil {
			return
		}
		if err := s.Refresh(context.Background()); err != nil {
			r.logger.Warn("scheduled refresh failed", zap.String("workspace", name), zap.Error(err))
		}
	})
}

// Close stops all pending refreshes.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, t := range r.timers {
		t.Stop()
		delete(r.timers, name)
	}
}
