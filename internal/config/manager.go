package config

import (
	"sync"
	"time"

	"github.com/dshills/tandem/internal/clock"
	"github.com/dshills/tandem/internal/logging"
)

// Manager owns the current configuration of one file and reloads it when
// the file changes.
type Manager struct {
	mu sync.RWMutex

	path     string
	current  Config
	notifier *Notifier
	logger   *logging.Logger
	clock    clock.Clock
	debounce time.Duration
	watcher  *Watcher
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock sets the clock used to debounce file events.
func WithClock(c clock.Clock) ManagerOption {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithDebounce sets the file event debounce.
func WithDebounce(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d >= 0 {
			m.debounce = d
		}
	}
}

// NewManager creates a manager for path holding the defaults until Load.
func NewManager(path string, opts ...ManagerOption) *Manager {
	m := &Manager{
		path:     path,
		current:  Default(),
		notifier: NewNotifier(),
		logger:   logging.Nop(),
		clock:    clock.System,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("config")
	return m
}

// Path returns the configuration file path.
func (m *Manager) Path() string {
	return m.path
}

// Current returns a copy of the current configuration.
func (m *Manager) Current() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone()
}

// Load reads the file and notifies subscribers of any setting that changed.
// On error the current configuration is kept.
func (m *Manager) Load() error {
	cfg, err := Load(m.path)
	if err != nil {
		return err
	}
	m.apply(cfg)
	return nil
}

// Reload is Load for file change events: errors are logged.
func (m *Manager) Reload() {
	if err := m.Load(); err != nil {
		m.logger.Warn("keeping previous configuration: %v", err)
		return
	}
	m.logger.Info("configuration reloaded from %s", m.path)
}

// Set replaces the configuration after validating it.
func (m *Manager) Set(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.apply(cfg.Clone())
	return nil
}

func (m *Manager) apply(cfg Config) {
	m.mu.Lock()
	old := m.current
	m.current = cfg
	m.mu.Unlock()

	for _, c := range diff(old, cfg) {
		m.logger.Debug("%s changed from %v to %v", c.Path, c.Old, c.New)
		m.notifier.Notify(c)
	}
}

// Subscribe registers an observer for every change.
func (m *Manager) Subscribe(fn Observer) *Subscription {
	return m.notifier.Subscribe(fn)
}

// SubscribePath registers an observer for a setting or section.
func (m *Manager) SubscribePath(path string, fn Observer) *Subscription {
	return m.notifier.SubscribePath(path, fn)
}

// Watch reloads the configuration whenever the file changes.
func (m *Manager) Watch() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watcher != nil {
		return nil
	}
	w, err := NewWatcher(m.path, m.debounce, m.clock, m.Reload, func(err error) {
		m.logger.Warn("watching %s: %v", m.path, err)
	})
	if err != nil {
		return err
	}
	m.watcher = w
	return nil
}

// Close stops watching. Safe to call without Watch.
func (m *Manager) Close() error {
	m.mu.Lock()
	w := m.watcher
	m.watcher = nil
	m.mu.Unlock()

	if w == nil {
		return nil
	}
	return w.Close()
}
