package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if !cfg.Watch {
		t.Error("expected watch to be true")
	}
	if cfg.RefreshDelay != 300*time.Millisecond {
		t.Errorf("expected 300ms refresh delay, got %v", cfg.RefreshDelay)
	}
	if filepath.Base(cfg.GetConfigFilePath()) != "config.yaml" || filepath.Base(GetConfigDir()) != "fxv" {
		t.Errorf("unexpected config path %s", cfg.GetConfigFilePath())
	}
}

func TestNormalize(t *testing.T) {
	cfg := &Config{
		Workspaces: []Workspace{
			{Path: "./test_docs"},
			{Path: "./repo", GitRef: "main"},
			{Snapshot: "./tree.json"},
		},
	}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	absExpected, _ := filepath.Abs("./test_docs")
	if cfg.Workspaces[0].Path != absExpected {
		t.Errorf("expected path %s, got %s", absExpected, cfg.Workspaces[0].Path)
	}
	names := []string{"test_docs", "repo@main", "tree.json"}
	for i, want := range names {
		if cfg.Workspaces[i].Name != want {
			t.Errorf("workspace %d: expected name %s, got %s", i, want, cfg.Workspaces[i].Name)
		}
	}
	kinds := []string{"local", "git", "snapshot"}
	for i, want := range kinds {
		if got := cfg.Workspaces[i].Kind(); got != want {
			t.Errorf("workspace %d: expected kind %s, got %s", i, want, got)
		}
	}
}

func TestNormalize_Errors(t *testing.T) {
	cfg := &Config{Workspaces: []Workspace{{Name: "a", Path: "/x"}, {Name: "a", Path: "/y"}}}
	if err := cfg.Normalize(); !errors.Is(err, ErrDuplicateWorkspace) {
		t.Errorf("expected ErrDuplicateWorkspace, got %v", err)
	}

	cfg = &Config{Workspaces: []Workspace{{Name: "empty"}}}
	if err := cfg.Normalize(); !errors.Is(err, ErrInvalidWorkspace) {
		t.Errorf("expected ErrInvalidWorkspace, got %v", err)
	}

	cfg = &Config{LatencyMS: Latency{Min: 10, Max: 5}}
	if err := cfg.Normalize(); err == nil {
		t.Error("expected error for inverted latency range")
	}
}

func TestAddAndRemoveWorkspace(t *testing.T) {
	cfg := DefaultConfig()

	ws, err := cfg.AddWorkspace(Workspace{Name: "MyDocs", Path: "./docs"})
	if err != nil {
		t.Fatalf("AddWorkspace failed: %v", err)
	}
	if !filepath.IsAbs(ws.Path) {
		t.Errorf("expected absolute path, got %s", ws.Path)
	}
	if len(cfg.Workspaces) != 1 {
		t.Fatalf("expected 1 workspace, got %d", len(cfg.Workspaces))
	}

	if _, err := cfg.AddWorkspace(Workspace{Name: "MyDocs", Path: "./other"}); !errors.Is(err, ErrDuplicateWorkspace) {
		t.Errorf("expected ErrDuplicateWorkspace, got %v", err)
	}

	if !cfg.RemoveWorkspace("MyDocs") {
		t.Error("expected MyDocs to be removed")
	}
	if cfg.RemoveWorkspace("MyDocs") {
		t.Error("expected second removal to report false")
	}
}

func TestExcludeFor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetGlobalExclude([]string{".git"})
	got := cfg.ExcludeFor(Workspace{Exclude: []string{"build"}})
	if len(got) != 2 || got[0] != ".git" || got[1] != "build" {
		t.Errorf("unexpected patterns %v", got)
	}
	if len(cfg.Exclude) != 1 {
		t.Errorf("global patterns were modified: %v", cfg.Exclude)
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := DefaultConfig()
	cfg.SetConfigFilePath(tmpFile)
	cfg.Port = 9999
	cfg.RefreshDelay = 2 * time.Second
	cfg.LatencyMS = Latency{Min: 5, Max: 20}
	cfg.Workspaces = []Workspace{{Name: "Temp", Path: "/tmp", Exclude: []string{"*.log"}}}

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Port != 9999 {
		t.Errorf("expected port 9999, got %d", loaded.Port)
	}
	if loaded.RefreshDelay != 2*time.Second {
		t.Errorf("expected 2s refresh delay, got %v", loaded.RefreshDelay)
	}
	if loaded.LatencyMS != (Latency{Min: 5, Max: 20}) {
		t.Errorf("unexpected latency %+v", loaded.LatencyMS)
	}
	if len(loaded.Workspaces) != 1 || loaded.Workspaces[0].Name != "Temp" || loaded.Workspaces[0].Exclude[0] != "*.log" {
		t.Errorf("unexpected workspaces %+v", loaded.Workspaces)
	}
	if loaded.GetConfigFilePath() != tmpFile {
		t.Errorf("expected config path %s, got %s", tmpFile, loaded.GetConfigFilePath())
	}
}

func TestLoad_YAMLDurations(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "fxv.yaml")
	data := "port: 7000\nrefresh_delay: 750ms\nlog:\n  level: debug\n  format: json\n"
	if err := os.WriteFile(tmpFile, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RefreshDelay != 750*time.Millisecond {
		t.Errorf("expected 750ms, got %v", cfg.RefreshDelay)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log config %+v", cfg.Log)
	}
	if len(cfg.Exclude) == 0 {
		t.Error("expected default excludes to survive a file without exclude")
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}
