// Package handler provides HTTP handlers for the fxv REST API.
package handler

import (
	"bytes"
	"errors"
	"mime"
	"net/http"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/CageChen/fxv/internal/preview"
	"github.com/CageChen/fxv/internal/relpath"
	"github.com/CageChen/fxv/internal/workspace"
)

// FileResponse represents the response for a file preview request
type FileResponse struct {
	Workspace string `json:"workspace"`
	Path      string `json:"path"`
	*preview.Result
}

// FileHandler handles file content API requests
type FileHandler struct {
	registry *workspace.Registry
	renderer *preview.Renderer
}

// NewFileHandler creates a new file handler
func NewFileHandler(registry *workspace.Registry) *FileHandler {
	return &FileHandler{
		registry: registry,
		renderer: preview.NewRenderer(),
	}
}

// read resolves :name and *path and reads the file, answering errors itself.
func (h *FileHandler) read(c *gin.Context) (relpath.RelativePath, []byte, bool) {
	s, ok := lookupStore(c, h.registry)
	if !ok {
		return relpath.RelativePath{}, nil, false
	}

	p, err := relpath.New(strings.TrimPrefix(c.Param("path"), "/"))
	if err != nil || p.IsRoot() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid path",
		})
		return relpath.RelativePath{}, nil, false
	}
	// Security: prevent path traversal
	if slices.Contains(slices.Collect(p.Components()), "..") {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "invalid path",
		})
		return relpath.RelativePath{}, nil, false
	}

	content, err := s.ReadFile(p)
	switch {
	case errors.Is(err, workspace.ErrNoFiles), errors.Is(err, os.ErrNotExist):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "file not found",
		})
		return relpath.RelativePath{}, nil, false
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to read file: " + err.Error(),
		})
		return relpath.RelativePath{}, nil, false
	}
	return p, content, true
}

// GetRaw returns the file content as stored
func (h *FileHandler) GetRaw(c *gin.Context) {
	p, content, ok := h.read(c)
	if !ok {
		return
	}
	contentType := mime.TypeByExtension(path.Ext(p.String()))
	if contentType == "" {
		contentType = mimetype.Detect(content).String()
	}
	c.Data(http.StatusOK, contentType, content)
}

// GetPreview returns the file rendered as HTML
func (h *FileHandler) GetPreview(c *gin.Context) {
	p, content, ok := h.read(c)
	if !ok {
		return
	}
	result, err := h.renderer.Render(p.String(), content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to render file: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, FileResponse{
		Workspace: c.Param("name"),
		Path:      p.String(),
		Result:    result,
	})
}

// GetStylesheet returns the CSS for highlighted previews
func (h *FileHandler) GetStylesheet(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.renderer.WriteCSS(&buf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/css; charset=utf-8", buf.Bytes())
}
