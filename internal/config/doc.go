// Package config loads tandem's TOML configuration and keeps it current.
//
// A configuration file has four sections:
//
//	[log]
//	level = "info"
//
//	[tether]
//	disconnect_window = "100ms"
//
//	[selection]
//	follow_host_cursor = true
//	palette = ["#e06c75", "#61afef"]
//	background = "#1e1e1e"
//
//	[history]
//	grouping_interval = "300ms"
//	max_entries = 1000
//
// Missing keys keep their defaults and unknown keys are rejected. A Manager
// watches the file and notifies subscribers of each setting whose value
// changed on reload:
//
//	m := config.NewManager(path)
//	if err := m.Load(); err != nil {
//	    return err
//	}
//	m.SubscribePath("tether.disconnect_window", func(c config.Change) {
//	    ctl.SetDisconnectWindow(c.New.(time.Duration))
//	})
//	if err := m.Watch(); err != nil {
//	    return err
//	}
//	defer m.Close()
package config
