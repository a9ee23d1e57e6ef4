package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFallsBackToDefaultsWithoutConfigFile(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(cwd)

	cfg, path, err := Load("broker", nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if path != "" {
		t.Fatalf("expected no resolved path, got %q", path)
	}
	if cfg.Broker.ListenAddress != DefaultAddress {
		t.Fatalf("ListenAddress = %q, want %q", cfg.Broker.ListenAddress, DefaultAddress)
	}
}

func TestLoadReadsExplicitConfigFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	content := "broker:\n  listen_address: 10.0.0.5:9999\n  debug: true\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := Load("broker", &path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if cfg.Broker.ListenAddress != "10.0.0.5:9999" {
		t.Fatalf("ListenAddress = %q, want 10.0.0.5:9999", cfg.Broker.ListenAddress)
	}
	if !cfg.Broker.Debug {
		t.Fatal("expected Debug to be true")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(path, []byte("broker: [this is not a map"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := Load("broker", &path); err == nil {
		t.Fatal("expected Load to reject malformed YAML")
	}
}
