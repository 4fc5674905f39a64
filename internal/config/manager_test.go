package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestManagerNotifiesChangedSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tandem.toml")
	m := NewManager(path)

	var changes []Change
	m.SubscribePath("tether", func(c Change) { changes = append(changes, c) })

	writeConfig(t, path, "[tether]\ndisconnect_window = \"300ms\"\n")
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(changes) != 1 || changes[0].New.(time.Duration) != 300*time.Millisecond {
		t.Fatalf("changes = %+v", changes)
	}

	// Reloading the same content notifies nothing.
	if err := m.Load(); err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 {
		t.Errorf("unchanged reload notified: %+v", changes)
	}
}

func TestManagerKeepsConfigOnBadReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tandem.toml")
	writeConfig(t, path, "[history]\nmax_entries = 10\n")
	m := NewManager(path)
	if err := m.Load(); err != nil {
		t.Fatal(err)
	}

	writeConfig(t, path, "[history]\nmax_entries = -1\n")
	m.Reload()
	if m.Current().History.MaxEntries != 10 {
		t.Errorf("MaxEntries = %d after invalid reload", m.Current().History.MaxEntries)
	}
	if err := m.Load(); err == nil {
		t.Error("Load of invalid file should fail")
	}
}

func TestManagerSet(t *testing.T) {
	m := NewManager("unused.toml")
	cfg := m.Current()
	cfg.Selection.FollowHostCursor = true

	var got []string
	m.Subscribe(func(c Change) { got = append(got, c.Path) })
	if err := m.Set(cfg); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if len(got) != 1 || got[0] != "selection.follow_host_cursor" {
		t.Errorf("changes = %v", got)
	}

	cfg.History.MaxEntries = 0
	if err := m.Set(cfg); err == nil {
		t.Error("Set accepted an invalid config")
	}
}

func TestManagerWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tandem.toml")
	writeConfig(t, path, "")
	m := NewManager(path, WithDebounce(10*time.Millisecond))
	if err := m.Load(); err != nil {
		t.Fatal(err)
	}

	levels := make(chan any, 4)
	m.SubscribePath("log.level", func(c Change) { levels <- c.New })
	if err := m.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer m.Close()

	writeConfig(t, path, "[log]\nlevel = \"error\"\n")
	select {
	case got := <-levels:
		if got != "error" {
			t.Errorf("level = %v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("configuration not reloaded")
	}
}
