package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DEVSERVER_ADDR", "")
	t.Setenv("PROJECTS_FILE", "")
	t.Setenv("WATCH_PROJECTS_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8765" {
		t.Errorf("Addr = %q, want %q", cfg.Addr, ":8765")
	}
	if cfg.ProjectsFile != "flags.yaml" {
		t.Errorf("ProjectsFile = %q, want %q", cfg.ProjectsFile, "flags.yaml")
	}
	if !cfg.WatchFile {
		t.Error("WatchFile = false, want true")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DEVSERVER_ADDR", ":9999")
	t.Setenv("PROJECTS_FILE", "/tmp/projects.yaml")
	t.Setenv("WATCH_PROJECTS_FILE", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Errorf("Addr = %q, want %q", cfg.Addr, ":9999")
	}
	if cfg.ProjectsFile != "/tmp/projects.yaml" {
		t.Errorf("ProjectsFile = %q, want %q", cfg.ProjectsFile, "/tmp/projects.yaml")
	}
	if cfg.WatchFile {
		t.Error("WatchFile = true, want false")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestLoadRejectsBadBool(t *testing.T) {
	t.Setenv("WATCH_PROJECTS_FILE", "sometimes")

	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil, want error")
	}
}
