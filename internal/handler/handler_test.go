package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/CageChen/fxv/internal/config"
	"github.com/CageChen/fxv/internal/relpath"
	"github.com/CageChen/fxv/internal/tree"
	"github.com/CageChen/fxv/internal/watcher"
	"github.com/CageChen/fxv/internal/workspace"
)

type fakeWatch struct {
	added   []watcher.Target
	removed []string
}

func (f *fakeWatch) Add(t watcher.Target) error {
	f.added = append(f.added, t)
	return nil
}

func (f *fakeWatch) Remove(name string) { f.removed = append(f.removed, name) }

type testServer struct {
	router   *gin.Engine
	registry *workspace.Registry
	cfg      *config.Config
	watch    *fakeWatch
	ws       *WSHandler
	dir      string
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	writeFile(t, dir, "docs/guide.md", "# Guide\n\nHello.")
	writeFile(t, dir, "docs/api/index.md", "# API")
	writeFile(t, dir, "main.go", "package main\n")

	cfg := config.DefaultConfig()
	cfg.SetConfigFilePath(filepath.Join(t.TempDir(), "config.yaml"))
	ws, err := cfg.AddWorkspace(config.Workspace{Name: "proj", Path: dir})
	require.NoError(t, err)

	registry := workspace.NewRegistry(zaptest.NewLogger(t), time.Millisecond)
	_, err = registry.Add(ws)
	require.NoError(t, err)
	require.NoError(t, registry.LoadAll(context.Background()))

	watch := &fakeWatch{}
	wsHandler := NewWSHandler()
	registry.OnChange(wsHandler.OnTreeChanged)
	router := NewRouter(Deps{Config: cfg, Registry: registry, Watch: watch, WS: wsHandler, Logger: zaptest.NewLogger(t)})
	return &testServer{router: router, registry: registry, cfg: cfg, watch: watch, ws: wsHandler, dir: dir}
}

func (s *testServer) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeDirectory(t *testing.T, w *httptest.ResponseRecorder) *tree.Directory {
	t.Helper()
	var d tree.Directory
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	return &d
}

func TestGetDirectory(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/workspaces/proj/directory", "")
	require.Equal(t, http.StatusOK, w.Code)
	root := decodeDirectory(t, w)
	assert.Equal(t, 2, root.Len())
	assert.True(t, root.IsFullyLoaded())

	w = s.do(http.MethodGet, "/api/v1/workspaces/proj/directory?path=docs&depth=0", "")
	require.Equal(t, http.StatusOK, w.Code)
	docs := decodeDirectory(t, w)
	assert.Equal(t, "docs", docs.Path().String())
	api, ok := docs.Lookup("api")
	require.True(t, ok)
	assert.True(t, api.IsUnloaded())
	assert.Contains(t, w.Body.String(), `"directory":null`)
}

func TestGetDirectory_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		target string
		code   int
	}{
		{"/api/v1/workspaces/proj/directory?path=missing", http.StatusNotFound},
		{"/api/v1/workspaces/proj/directory?path=main.go", http.StatusNotFound},
		{"/api/v1/workspaces/proj/directory?path=/docs", http.StatusBadRequest},
		{"/api/v1/workspaces/proj/directory?depth=-1", http.StatusBadRequest},
		{"/api/v1/workspaces/proj/directory?depth=two", http.StatusBadRequest},
		{"/api/v1/workspaces/nope/directory", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := s.do(http.MethodGet, tt.target, "")
		assert.Equal(t, tt.code, w.Code, tt.target)
	}
}

func TestGetDirectory_UnloadedSourceIsServerError(t *testing.T) {
	s := newTestServer(t)
	broken := tree.NewDirectory(relpath.Root(), tree.NewUnloadedEntry("hole"))
	require.NoError(t, s.registry.Register(workspace.NewStatic("broken", broken)))

	w := s.do(http.MethodGet, "/api/v1/workspaces/broken/directory?path=hole/deeper", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	// The placeholder itself is a directory and can be listed from its parent.
	w = s.do(http.MethodGet, "/api/v1/workspaces/broken/directory", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetDirectory_ETag(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/workspaces/proj/directory?path=docs", "")
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w = s.do(http.MethodGet, "/api/v1/workspaces/proj/directory?path=docs", "", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.Bytes())

	writeFile(t, s.dir, "docs/new.md", "new")
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/workspaces/proj/refresh", "").Code)

	w = s.do(http.MethodGet, "/api/v1/workspaces/proj/directory?path=docs", "", "If-None-Match", etag)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, etag, w.Header().Get("ETag"))
}

func TestRefreshMarksChanges(t *testing.T) {
	s := newTestServer(t)
	writeFile(t, s.dir, "docs/new.md", "new")

	w := s.do(http.MethodPost, "/api/v1/workspaces/proj/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		ChangeStates []string `json:"change_states"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.ChangeStates, "added")

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/v1/workspaces/nope/refresh", "").Code)
}

func TestRefreshResetsBaseline(t *testing.T) {
	s := newTestServer(t)
	writeFile(t, s.dir, "docs/new.md", "new")
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/workspaces/proj/refresh", "").Code)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/workspaces/proj/refresh?reset_baseline=maybe", "").Code)

	w := s.do(http.MethodPost, "/api/v1/workspaces/proj/refresh?reset_baseline=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		ChangeStates []string `json:"change_states"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"unchanged"}, resp.ChangeStates)
}

func TestSetConflict(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPut, "/api/v1/workspaces/proj/conflicts", `{"path":"docs/guide.md","state":"unresolved"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"docs/guide.md":"unresolved"`)

	w = s.do(http.MethodGet, "/api/v1/workspaces/proj/directory", "")
	root := decodeDirectory(t, w)
	assert.True(t, root.ConflictStates().Contains(tree.ConflictUnresolved))

	assert.Equal(t, http.StatusBadRequest,
		s.do(http.MethodPut, "/api/v1/workspaces/proj/conflicts", `{"path":"docs/guide.md","state":"bogus"}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		s.do(http.MethodPut, "/api/v1/workspaces/proj/conflicts", `{"state":"resolved"}`).Code)
	assert.Equal(t, http.StatusNotFound,
		s.do(http.MethodPut, "/api/v1/workspaces/proj/conflicts", `{"path":"docs","state":"resolved"}`).Code)
}

func TestWorkspaceManagement(t *testing.T) {
	s := newTestServer(t)

	other := t.TempDir()
	writeFile(t, other, "notes.md", "n")

	body, _ := json.Marshal(AddWorkspaceRequest{Name: "notes", Path: other})
	w := s.do(http.MethodPost, "/api/v1/workspaces", string(body))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"entries":1`)
	require.Len(t, s.watch.added, 1)
	assert.Equal(t, "notes", s.watch.added[0].Workspace)

	saved, err := config.Load(s.cfg.GetConfigFilePath())
	require.NoError(t, err)
	_, ok := saved.Workspace("notes")
	assert.True(t, ok)

	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/api/v1/workspaces", string(body)).Code)
	missing, _ := json.Marshal(AddWorkspaceRequest{Name: "x", Path: filepath.Join(other, "missing")})
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/workspaces", string(missing)).Code)

	w = s.do(http.MethodGet, "/api/v1/workspaces", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Workspaces []struct {
			Name string `json:"name"`
			Kind string `json:"kind"`
		} `json:"workspaces"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Workspaces, 2)
	assert.Equal(t, "proj", list.Workspaces[0].Name)
	assert.Equal(t, "local", list.Workspaces[1].Kind)

	assert.Equal(t, http.StatusOK, s.do(http.MethodDelete, "/api/v1/workspaces/notes", "").Code)
	assert.Equal(t, []string{"notes"}, s.watch.removed)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/api/v1/workspaces/notes", "").Code)
	_, ok = s.cfg.Workspace("notes")
	assert.False(t, ok)
}

func TestRawAndPreview(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/workspaces/proj/raw/docs/guide.md", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# Guide\n\nHello.", w.Body.String())

	w = s.do(http.MethodGet, "/api/v1/workspaces/proj/raw/main.go", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/"))

	w = s.do(http.MethodGet, "/api/v1/workspaces/proj/preview/docs/guide.md", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Workspace string `json:"workspace"`
		Path      string `json:"path"`
		Kind      string `json:"kind"`
		Title     string `json:"title"`
		HTML      string `json:"html"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "proj", resp.Workspace)
	assert.Equal(t, "docs/guide.md", resp.Path)
	assert.Equal(t, "markdown", resp.Kind)
	assert.Equal(t, "Guide", resp.Title)
	assert.Contains(t, resp.HTML, "<h1")

	w = s.do(http.MethodGet, "/api/v1/workspaces/proj/preview/main.go", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"code"`)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/workspaces/proj/raw/missing.md", "").Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/v1/workspaces/proj/raw/docs/../../etc/passwd", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/workspaces/nope/raw/a.md", "").Code)

	w = s.do(http.MethodGet, "/api/v1/preview.css", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/css")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodGet, "/api/v1/workspaces/proj/directory", "")

	w := s.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "fxv_directory_fetches_total")
}

func TestWebSocketTreeChanged(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.ws.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	store, err := s.registry.Get("proj")
	require.NoError(t, err)
	require.NoError(t, store.Refresh(context.Background()))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type    string            `json:"type"`
		Payload map[string]string `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "treeChanged", msg.Type)
	assert.Equal(t, "proj", msg.Payload["workspace"])

	s.ws.OnFileChange(watcher.Event{Type: watcher.EventWrite, Workspace: "proj", Path: "docs/guide.md"})
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "fileChange", msg.Type)
	assert.Equal(t, "update", msg.Payload["event"])
	assert.Equal(t, "docs/guide.md", msg.Payload["path"])
}
