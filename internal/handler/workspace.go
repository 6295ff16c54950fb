package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"github.com/CageChen/fxv/internal/config"
	"github.com/CageChen/fxv/internal/logging"
	"github.com/CageChen/fxv/internal/relpath"
	"github.com/CageChen/fxv/internal/resolve"
	"github.com/CageChen/fxv/internal/tree"
	"github.com/CageChen/fxv/internal/watcher"
	"github.com/CageChen/fxv/internal/workspace"
)

// Watch is the part of the file watcher the handlers drive when workspaces come and go.
type Watch interface {
	Add(t watcher.Target) error
	Remove(workspace string)
}

// WorkspaceHandler handles workspace and directory API requests
type WorkspaceHandler struct {
	cfg      *config.Config
	cfgMu    sync.Mutex
	registry *workspace.Registry
	watch    Watch
	logger   *zap.Logger
}

// NewWorkspaceHandler creates a new workspace handler. watch may be nil.
func NewWorkspaceHandler(cfg *config.Config, registry *workspace.Registry, watch Watch, logger *zap.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{cfg: cfg, registry: registry, watch: watch, logger: logging.OrNop(logger)}
}

// store resolves the :name parameter, answering 404 itself when it is unknown.
func (h *WorkspaceHandler) store(c *gin.Context) (*workspace.Store, bool) {
	return lookupStore(c, h.registry)
}

func lookupStore(c *gin.Context, registry *workspace.Registry) (*workspace.Store, bool) {
	s, err := registry.Get(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "workspace not found",
		})
		return nil, false
	}
	return s, true
}

// workspaceResponse describes a served workspace.
type workspaceResponse struct {
	config.Workspace
	Kind           string                `json:"kind"`
	Entries        int                   `json:"entries"`
	ChangeStates   tree.ChangeStateSet   `json:"change_states"`
	ConflictStates tree.ConflictStateSet `json:"conflict_states"`
	RefreshedAt    *time.Time            `json:"refreshed_at,omitempty"`
}

func describe(s *workspace.Store) workspaceResponse {
	root := s.Tree()
	resp := workspaceResponse{
		Workspace:      s.Source(),
		Kind:           s.Source().Kind(),
		Entries:        root.Count(),
		ChangeStates:   root.ChangeStates(),
		ConflictStates: root.ConflictStates(),
	}
	if t := s.LastRefresh(); !t.IsZero() {
		resp.RefreshedAt = &t
	}
	return resp
}

// ListWorkspaces returns every served workspace with its root aggregates
func (h *WorkspaceHandler) ListWorkspaces(c *gin.Context) {
	stores := h.registry.List()
	resp := make([]workspaceResponse, len(stores))
	for i, s := range stores {
		resp[i] = describe(s)
	}
	c.JSON(http.StatusOK, gin.H{
		"workspaces":    resp,
		"globalExclude": h.cfg.Exclude,
	})
}

// AddWorkspaceRequest represents a request to add a workspace
type AddWorkspaceRequest struct {
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	GitRef   string   `json:"git_ref"`
	SubPath  string   `json:"sub_path"`
	Exclude  []string `json:"exclude"`
	Snapshot string   `json:"snapshot"`
}

// AddWorkspace adds a workspace, ingests it and saves the configuration
func (h *WorkspaceHandler) AddWorkspace(c *gin.Context) {
	var req AddWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid request",
		})
		return
	}

	// A path must be a directory on disk even for git_ref workspaces
	if req.Path != "" {
		info, err := os.Stat(req.Path)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "path does not exist: " + req.Path,
			})
			return
		}
		if !info.IsDir() {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "path is not a directory",
			})
			return
		}
	}

	h.cfgMu.Lock()
	defer h.cfgMu.Unlock()

	ws, err := h.cfg.AddWorkspace(config.Workspace{
		Name:     req.Name,
		Path:     req.Path,
		GitRef:   req.GitRef,
		SubPath:  req.SubPath,
		Exclude:  req.Exclude,
		Snapshot: req.Snapshot,
	})
	switch {
	case errors.Is(err, config.ErrDuplicateWorkspace):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.registry.Add(ws, workspace.WithExclude(h.cfg.ExcludeFor(ws)))
	if err == nil {
		err = s.Refresh(c.Request.Context())
		if err != nil {
			_ = h.registry.Remove(ws.Name)
		}
	}
	if err != nil {
		h.cfg.RemoveWorkspace(ws.Name)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "cannot load workspace: " + err.Error(),
		})
		return
	}

	if dir, ok := s.LocalDir(); ok && h.watch != nil {
		if err := h.watch.Add(watcher.Target{Workspace: ws.Name, Dir: dir, Exclude: h.cfg.ExcludeFor(ws)}); err != nil {
			h.logger.Warn("cannot watch workspace", zap.String("workspace", ws.Name), zap.Error(err))
		}
	}

	// Save configuration
	if err := h.cfg.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to save config: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, describe(s))
}

// RemoveWorkspace stops serving a workspace and saves the configuration
func (h *WorkspaceHandler) RemoveWorkspace(c *gin.Context) {
	name := c.Param("name")
	if err := h.registry.Remove(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "workspace not found",
		})
		return
	}
	if h.watch != nil {
		h.watch.Remove(name)
	}

	h.cfgMu.Lock()
	defer h.cfgMu.Unlock()
	h.cfg.RemoveWorkspace(name)

	if err := h.cfg.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to save config: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "workspace removed",
	})
}

// GetDirectory returns the directory at ?path, limited to ?depth levels
func (h *WorkspaceHandler) GetDirectory(c *gin.Context) {
	s, ok := h.store(c)
	if !ok {
		return
	}

	p, err := relpath.New(c.Query("path"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	opts := resolve.Options{Filter: c.Query("filter")}
	if raw := c.Query("depth"); raw != "" {
		depth, err := strconv.Atoi(raw)
		if err != nil || depth < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "depth must be a non-negative integer"})
			return
		}
		opts.DepthLimit = &depth
	}

	d, err := s.FetchDirectory(c.Request.Context(), p, opts)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case errors.Is(err, resolve.ErrUnloadedSource):
		h.logger.Error("directory fetch hit an unloaded directory",
			zap.String("workspace", s.Name()), zap.String("path", p.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	case d == nil:
		c.JSON(http.StatusNotFound, gin.H{"error": "directory not found"})
		return
	}

	body, err := json.Marshal(d)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	etag := fmt.Sprintf(`"%016x"`, xxh3.Hash(body))
	c.Header("ETag", etag)
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// Refresh re-ingests a workspace. With reset_baseline=true the result becomes the new
// baseline and all change states are cleared.
func (h *WorkspaceHandler) Refresh(c *gin.Context) {
	s, ok := h.store(c)
	if !ok {
		return
	}
	reset := false
	if raw := c.Query("reset_baseline"); raw != "" {
		var err error
		if reset, err = strconv.ParseBool(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reset_baseline must be a boolean"})
			return
		}
	}
	if reset {
		s.ResetBaseline()
	}
	if err := s.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "refresh failed: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, describe(s))
}

// SetConflictRequest records the conflict state of one file
type SetConflictRequest struct {
	Path  string `json:"path" binding:"required"`
	State string `json:"state" binding:"required"`
}

// SetConflict records the conflict state of a file
func (h *WorkspaceHandler) SetConflict(c *gin.Context) {
	s, ok := h.store(c)
	if !ok {
		return
	}

	var req SetConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "path and state are required",
		})
		return
	}
	p, err := relpath.New(req.Path)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	state, err := tree.ParseConflictState(req.State)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = s.SetConflict(p, state)
	switch {
	case errors.Is(err, workspace.ErrNotFile):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, workspace.ErrReadOnly):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "conflict state recorded",
		"conflicts": s.Conflicts(),
	})
}
