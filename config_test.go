package yui

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ModelName != "gpt-4o-mini" {
		t.Errorf("ModelName = %q, want gpt-4o-mini", cfg.ModelName)
	}
	if cfg.SandboxDir == "" || cfg.DataDir == "" {
		t.Error("directory defaults not applied")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "yui.yaml")
	data := "model_name: gpt-4o\nuse_async_queue: true\nsandbox_dir: /tmp/sb\nenergy_max: 200\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ModelName != "gpt-4o" {
		t.Errorf("ModelName = %q", cfg.ModelName)
	}
	if !cfg.UseAsyncQueue {
		t.Error("UseAsyncQueue not set")
	}
	if cfg.SandboxDir != "/tmp/sb" {
		t.Errorf("SandboxDir = %q", cfg.SandboxDir)
	}
	if cfg.EnergyMax != 200 {
		t.Errorf("EnergyMax = %d", cfg.EnergyMax)
	}
}

func TestHomeEnvOverride(t *testing.T) {
	t.Setenv("YUI_HOME", "/tmp/yui-test-home")
	if got := Home(); got != "/tmp/yui-test-home" {
		t.Errorf("Home() = %q", got)
	}
	if got := SandboxPath(); got != "/tmp/yui-test-home/sandbox" {
		t.Errorf("SandboxPath() = %q", got)
	}
}
