package config

import (
	"slices"
	"time"

	"github.com/dshills/tandem/internal/logging"
	"github.com/dshills/tandem/internal/renderer/style"
)

// Duration is a time.Duration written as a Go duration string in TOML.
type Duration time.Duration

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalText parses strings such as "150ms".
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config is the complete configuration.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Tether    TetherConfig    `toml:"tether"`
	Selection SelectionConfig `toml:"selection"`
	History   HistoryConfig   `toml:"history"`
	Editor    EditorConfig    `toml:"editor"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `toml:"level"`
}

// TetherConfig configures following other sites.
type TetherConfig struct {
	// DisconnectWindow is how long the follower must be idle before the
	// leader leaving its view pulls it along.
	DisconnectWindow Duration `toml:"disconnect_window"`
}

// SelectionConfig configures remote selections.
type SelectionConfig struct {
	FollowHostCursor bool     `toml:"follow_host_cursor"`
	Palette          []string `toml:"palette"`
	Background       string   `toml:"background"`
}

// HistoryConfig configures shared undo history.
type HistoryConfig struct {
	GroupingInterval Duration `toml:"grouping_interval"`
	MaxEntries       int      `toml:"max_entries"`
}

// EditorConfig configures editor views.
type EditorConfig struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Tether: TetherConfig{
			DisconnectWindow: Duration(100 * time.Millisecond),
		},
		Selection: SelectionConfig{
			FollowHostCursor: false,
			Palette:          slices.Clone(style.DefaultColors),
			Background:       style.DefaultBackground,
		},
		History: HistoryConfig{
			GroupingInterval: Duration(300 * time.Millisecond),
			MaxEntries:       1000,
		},
		Editor: EditorConfig{Width: 80, Height: 24},
	}
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	c.Selection.Palette = slices.Clone(c.Selection.Palette)
	return c
}

// LogLevel returns the configured log level.
func (c Config) LogLevel() logging.Level {
	return logging.ParseLevel(c.Log.Level)
}

// Palette builds the site palette.
func (c Config) Palette() (*style.Palette, error) {
	return style.NewPalette(c.Selection.Palette, c.Selection.Background)
}

const maxDisconnectWindow = 10 * time.Second

var logLevels = []string{"debug", "info", "warn", "warning", "error"}

// Validate checks every setting and reports all problems at once.
func (c Config) Validate() error {
	var errs []error
	fail := func(path, msg string, v any) {
		errs = append(errs, &ValidationError{Path: path, Message: msg, Value: v})
	}

	if !slices.Contains(logLevels, c.Log.Level) {
		fail("log.level", "must be one of debug, info, warn, error", c.Log.Level)
	}
	if w := c.Tether.DisconnectWindow.Std(); w <= 0 || w > maxDisconnectWindow {
		fail("tether.disconnect_window", "must be positive and at most "+maxDisconnectWindow.String(), w)
	}
	if len(c.Selection.Palette) == 0 {
		fail("selection.palette", "must list at least one color", c.Selection.Palette)
	} else if _, err := c.Palette(); err != nil {
		fail("selection.palette", err.Error(), c.Selection.Palette)
	}
	if c.History.GroupingInterval < 0 {
		fail("history.grouping_interval", "must not be negative", c.History.GroupingInterval.Std())
	}
	if c.History.MaxEntries <= 0 {
		fail("history.max_entries", "must be positive", c.History.MaxEntries)
	}
	if c.Editor.Width < 1 || c.Editor.Height < 1 {
		fail("editor", "width and height must be at least 1", [2]int{c.Editor.Width, c.Editor.Height})
	}
	return joinErrors(errs)
}

// settings flattens the configuration into dotted paths for change
// detection.
func (c Config) settings() map[string]any {
	return map[string]any{
		"log.level":                    c.Log.Level,
		"tether.disconnect_window":     c.Tether.DisconnectWindow.Std(),
		"selection.follow_host_cursor": c.Selection.FollowHostCursor,
		"selection.palette":            slices.Clone(c.Selection.Palette),
		"selection.background":         c.Selection.Background,
		"history.grouping_interval":    c.History.GroupingInterval.Std(),
		"history.max_entries":          c.History.MaxEntries,
		"editor.width":                 c.Editor.Width,
		"editor.height":                c.Editor.Height,
	}
}
