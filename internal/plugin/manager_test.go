package plugin

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// installPlugin writes a plugin.json and a dummy executable under dir/name.
func installPlugin(t *testing.T, dir, name, manifest string) {
	t.Helper()

	pluginDir := filepath.Join(dir, name)
	if err := os.MkdirAll(pluginDir, 0755); err != nil {
		t.Fatalf("failed to create plugin dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(pluginDir, "plugin.json"), []byte(manifest), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(pluginDir, "run.sh"), []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatalf("failed to write executable: %v", err)
	}
}

func TestManager_Discover(t *testing.T) {
	t.Run("loads valid plugins", func(t *testing.T) {
		dir := t.TempDir()
		installPlugin(t, dir, "webhook",
			`{"name":"webhook","version":"1.0.0","executable":"run.sh","actions":["send"]}`)
		installPlugin(t, dir, "transform",
			`{"name":"transform","version":"1.0.0","executable":"run.sh","actions":["echo"]}`)

		m := NewManager(dir)
		if err := m.Discover(); err != nil {
			t.Fatalf("Discover() error = %v", err)
		}

		if len(m.List()) != 2 {
			t.Errorf("discovered %d plugins, want 2", len(m.List()))
		}

		p, err := m.Get("webhook")
		if err != nil {
			t.Fatalf("Get(webhook) error = %v", err)
		}
		if p.Executable != filepath.Join(dir, "webhook", "run.sh") {
			t.Errorf("executable = %s", p.Executable)
		}
	})

	t.Run("skips invalid manifests", func(t *testing.T) {
		dir := t.TempDir()
		installPlugin(t, dir, "good",
			`{"name":"good","executable":"run.sh","actions":["send"]}`)
		installPlugin(t, dir, "bad-json", `{not json`)
		installPlugin(t, dir, "no-name", `{"executable":"run.sh"}`)
		installPlugin(t, dir, "no-exec", `{"name":"no-exec"}`)

		m := NewManager(dir)
		if err := m.Discover(); err != nil {
			t.Fatalf("Discover() error = %v", err)
		}

		if len(m.List()) != 1 {
			t.Errorf("discovered %d plugins, want 1", len(m.List()))
		}
	})

	t.Run("skips plugins with missing executables", func(t *testing.T) {
		dir := t.TempDir()
		pluginDir := filepath.Join(dir, "ghost")
		if err := os.MkdirAll(pluginDir, 0755); err != nil {
			t.Fatal(err)
		}
		manifest := `{"name":"ghost","executable":"missing.sh","actions":["send"]}`
		if err := os.WriteFile(filepath.Join(pluginDir, "plugin.json"), []byte(manifest), 0644); err != nil {
			t.Fatal(err)
		}

		m := NewManager(dir)
		if err := m.Discover(); err != nil {
			t.Fatalf("Discover() error = %v", err)
		}
		if len(m.List()) != 0 {
			t.Errorf("discovered %d plugins, want 0", len(m.List()))
		}
	})

	t.Run("missing plugin directory yields empty set", func(t *testing.T) {
		m := NewManager(filepath.Join(t.TempDir(), "nonexistent"))
		if err := m.Discover(); err != nil {
			t.Fatalf("Discover() error = %v", err)
		}
		if len(m.List()) != 0 {
			t.Errorf("discovered %d plugins, want 0", len(m.List()))
		}
	})

	t.Run("rediscovery drops removed plugins", func(t *testing.T) {
		dir := t.TempDir()
		installPlugin(t, dir, "webhook",
			`{"name":"webhook","executable":"run.sh","actions":["send"]}`)

		m := NewManager(dir)
		if err := m.Discover(); err != nil {
			t.Fatalf("Discover() error = %v", err)
		}
		if _, err := m.Get("webhook"); err != nil {
			t.Fatalf("Get(webhook) error = %v", err)
		}

		if err := os.RemoveAll(filepath.Join(dir, "webhook")); err != nil {
			t.Fatal(err)
		}
		if err := m.Discover(); err != nil {
			t.Fatalf("Discover() error = %v", err)
		}

		if _, err := m.Get("webhook"); !errors.Is(err, ErrPluginNotFound) {
			t.Errorf("Get(webhook) error = %v, want ErrPluginNotFound", err)
		}
	})
}

func TestManager_Get_NotFound(t *testing.T) {
	m := NewManager(t.TempDir())
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	_, err := m.Get("missing")
	if !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("Get() error = %v, want ErrPluginNotFound", err)
	}
}

func TestPlugin_Supports(t *testing.T) {
	p := &Plugin{Manifest: Manifest{Actions: []string{"send", "echo"}}}

	if !p.Supports("send") {
		t.Error("Supports(send) = false, want true")
	}
	if p.Supports("explode") {
		t.Error("Supports(explode) = true, want false")
	}
}
