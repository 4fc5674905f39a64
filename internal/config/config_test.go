package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/tandem/internal/logging"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if cfg.Tether.DisconnectWindow.Std() != 100*time.Millisecond {
		t.Errorf("disconnect window = %v", cfg.Tether.DisconnectWindow.Std())
	}
	if cfg.LogLevel() != logging.LevelInfo {
		t.Errorf("LogLevel() = %v", cfg.LogLevel())
	}
	if _, err := cfg.Palette(); err != nil {
		t.Errorf("Palette() = %v", err)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	data := []byte(`
[log]
level = "debug"

[tether]
disconnect_window = "250ms"

[selection]
follow_host_cursor = true
palette = ["#ff0000", "#00ff00"]

[history]
max_entries = 50
`)
	cfg, err := Parse("test.toml", data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Log.Level != "debug" || cfg.LogLevel() != logging.LevelDebug {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
	if cfg.Tether.DisconnectWindow.Std() != 250*time.Millisecond {
		t.Errorf("disconnect window = %v", cfg.Tether.DisconnectWindow.Std())
	}
	if !cfg.Selection.FollowHostCursor {
		t.Error("follow_host_cursor not set")
	}
	if len(cfg.Selection.Palette) != 2 {
		t.Errorf("palette = %v, want the two configured colors", cfg.Selection.Palette)
	}
	if cfg.History.MaxEntries != 50 {
		t.Errorf("max entries = %d", cfg.History.MaxEntries)
	}
	// Untouched settings keep their defaults.
	if cfg.History.GroupingInterval != Default().History.GroupingInterval {
		t.Errorf("grouping interval = %v", cfg.History.GroupingInterval.Std())
	}
	if cfg.Selection.Background != Default().Selection.Background {
		t.Errorf("background = %q", cfg.Selection.Background)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"syntax", "[log\nlevel = 1", ""},
		{"unknown key", "[tether]\nwindow = \"1s\"\n", "window"},
		{"bad duration", "[tether]\ndisconnect_window = \"soon\"\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.toml", []byte(tt.data))
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want *ParseError", err)
			}
			if pe.Path != "bad.toml" {
				t.Errorf("Path = %q", pe.Path)
			}
			if tt.want != "" && !strings.Contains(pe.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", pe.Error(), tt.want)
			}
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	cfg.Tether.DisconnectWindow = 0
	cfg.Selection.Palette = []string{"not-a-color"}
	cfg.History.MaxEntries = 0

	err := cfg.Validate()
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("Validate() = %v", err)
	}
	for _, path := range []string{"log.level", "tether.disconnect_window", "selection.palette", "history.max_entries"} {
		if !strings.Contains(err.Error(), path) {
			t.Errorf("error does not mention %s: %v", path, err)
		}
	}

	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Path != "log.level" {
		t.Errorf("first validation error = %+v", ve)
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	_, err := Parse("x.toml", []byte("[tether]\ndisconnect_window = \"1m\"\n"))
	if !errors.Is(err, ErrValidationFailed) {
		t.Errorf("err = %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, "missing.toml"))
	if err != nil {
		t.Fatalf("Load missing: %v", err)
	}
	if cfg.History.MaxEntries != Default().History.MaxEntries {
		t.Error("missing file should give defaults")
	}

	path := filepath.Join(dir, "tandem.toml")
	if err := os.WriteFile(path, []byte("[editor]\nwidth = 120\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Editor.Width != 120 || cfg.Editor.Height != 24 {
		t.Errorf("editor = %+v", cfg.Editor)
	}
}

func TestMarshalParses(t *testing.T) {
	cfg := Default()
	cfg.Tether.DisconnectWindow = Duration(40 * time.Millisecond)
	cfg.Selection.Palette = []string{"#123456"}

	data, err := Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Parse("marshalled", data)
	if err != nil {
		t.Fatalf("Parse(%s): %v", data, err)
	}
	if got.Tether.DisconnectWindow != cfg.Tether.DisconnectWindow || len(got.Selection.Palette) != 1 {
		t.Errorf("got %+v", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	cfg := Default()
	c := cfg.Clone()
	c.Selection.Palette[0] = "#000000"
	if cfg.Selection.Palette[0] == "#000000" {
		t.Error("Clone shares the palette")
	}
}
