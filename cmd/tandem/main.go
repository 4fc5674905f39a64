// Package main runs a host and a guest site in one process and walks them
// through a short collaborative editing session.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sanity-io/litter"

	"github.com/dshills/tandem/internal/clock"
	"github.com/dshills/tandem/internal/collab/memdoc"
	"github.com/dshills/tandem/internal/collab/session"
	"github.com/dshills/tandem/internal/config"
	"github.com/dshills/tandem/internal/editor"
	"github.com/dshills/tandem/internal/engine/buffer"
	"github.com/dshills/tandem/internal/logging"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type options struct {
	configPath string
	file       string
	logLevel   string
	dump       bool
	render     bool
	tui        bool
	watch      bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfgManager := config.NewManager(opts.configPath)
	if opts.configPath != "" {
		if err := cfgManager.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	cfg := cfgManager.Current()

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel()
	if opts.logLevel != "" {
		logCfg.Level = logging.ParseLevel(opts.logLevel)
	}
	logger := logging.New(logCfg)
	cfgManager.SubscribePath("log.level", func(c config.Change) {
		if s, ok := c.New.(string); ok {
			logger.SetLevel(logging.ParseLevel(s))
		}
	})

	room := memdoc.NewRoom(clock.System, logger)
	host, err := join(room, "host", cfgManager, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer host.Shutdown()
	guest, err := join(room, "guest", cfgManager, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer guest.Shutdown()

	hostEd, err := openHostEditor(opts.file, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	host.Workspace().Add(hostEd)
	host.Workspace().Activate(hostEd)
	if _, err := host.Share(hostEd); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if err := demo(host, guest, hostEd, opts.dump); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if opts.render {
		if err := printView(guest); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	if opts.tui {
		if err := runTUI(host, guest, hostEd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	if !opts.watch {
		return 0
	}
	if opts.configPath == "" {
		fmt.Fprintf(os.Stderr, "Error: -watch needs -config\n")
		return 1
	}
	cfgManager.Subscribe(func(c config.Change) {
		fmt.Printf("config: %s = %v\n", c.Path, c.New)
	})
	if err := cfgManager.Watch(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: watch config: %v\n", err)
		return 1
	}
	defer cfgManager.Close()

	fmt.Printf("watching %s, press Ctrl-C to exit\n", cfgManager.Path())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
	return 0
}

func join(room *memdoc.Room, name string, m *config.Manager, logger *logging.Logger) (*session.Session, error) {
	peer := room.Join(name)
	s, err := session.New(peer, editor.NewWorkspace(nil), session.Options{
		Config: m,
		Logger: logger.WithField("name", name),
	})
	if err != nil {
		return nil, fmt.Errorf("start %s session: %w", name, err)
	}
	return s, nil
}

func openHostEditor(path string, cfg config.Config) (*editor.Editor, error) {
	edCfg := editor.Config{Width: cfg.Editor.Width, Height: cfg.Editor.Height}
	if path == "" {
		text := strings.Repeat("// scratch line\n", 120)
		return editor.New("scratch.go", buffer.NewBufferFromString(text), edCfg), nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	buf := buffer.NewBufferFromString(string(data), buffer.WithFile(buffer.NewLocalFile(abs, string(data))))
	return editor.New(filepath.Base(abs), buf, edCfg), nil
}

func demo(host, guest *session.Session, hostEd *editor.Editor, dump bool) error {
	last := hostEd.Buffer().EndPoint()
	hostEd.SetCursorPosition(buffer.Point{Line: last.Line / 2})

	guest.Follow(host.SiteID())
	guestEd, doc := guest.ActiveEditor()
	if guestEd == nil {
		return fmt.Errorf("guest could not follow the host")
	}
	fmt.Printf("guest follows host in %s (%s), top line %d\n",
		doc, guest.Tether().State(), guestEd.Viewport().TopLine())

	if err := hostEd.InsertText("/* host */ "); err != nil {
		return err
	}
	guestEd.SetCursorPosition(buffer.Point{})
	if err := guestEd.InsertText("// edited together\n"); err != nil {
		return err
	}
	fmt.Printf("guest moved away: tether %s\n", guest.Tether().State())

	hostEd.SetCursorPosition(last)
	fmt.Printf("host jumped to line %d: tether %s\n", last.Line, guest.Tether().State())

	if hostEd.Buffer().Text() != guestEd.Buffer().Text() {
		return fmt.Errorf("buffers diverged")
	}
	fmt.Printf("buffers converged at %d lines\n", hostEd.Buffer().LineCount())

	guestEd.Undo()
	fmt.Printf("guest undo kept the host edit: %t\n",
		strings.Contains(hostEd.Buffer().Text(), "/* host */") &&
			!strings.HasPrefix(hostEd.Buffer().Text(), "// edited together"))

	if dump {
		fmt.Println("host sees:", litter.Sdump(host.Positions().Summary()))
		fmt.Println("guest sees:", litter.Sdump(guest.Positions().Summary()))
		b, ok := guest.BindingFor(guestEd)
		if !ok {
			return fmt.Errorf("guest editor not bound")
		}
		data, err := b.Buffer.Serialize()
		if err != nil {
			return err
		}
		fmt.Printf("guest state: %s\n", data)
	}
	return nil
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.file, "file", "", "File the host shares (default: scratch text)")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config")
	flag.BoolVar(&opts.dump, "dump", false, "Dump position summaries and the guest's serialized state")
	flag.BoolVar(&opts.render, "render", false, "Print the guest's screen after the demo")
	flag.BoolVar(&opts.tui, "tui", false, "Show the guest's screen in the terminal after the demo")
	flag.BoolVar(&opts.watch, "watch", false, "Keep running and report configuration changes")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Tandem - collaborative editing core demo\n\n")
		fmt.Fprintf(os.Stderr, "Usage: tandem [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  tandem                      Share scratch text between two sites\n")
		fmt.Fprintf(os.Stderr, "  tandem -file main.go -dump  Share a file and dump the session state\n")
		fmt.Fprintf(os.Stderr, "  tandem -tui                 Watch the guest follow the host\n")
		fmt.Fprintf(os.Stderr, "  tandem -c tandem.toml -watch\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("Tandem %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	switch opts.logLevel {
	case "", "debug", "info", "warn", "error":
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.logLevel)
		os.Exit(1)
	}

	return opts
}
