package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/gwillem/stsjog/pkg/config"
	"github.com/gwillem/stsjog/pkg/servo"
	"github.com/gwillem/stsjog/pkg/session"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// simPort is the port name used with --sim when none is configured.
const simPort = "sim"

// MotorArg is the positional motor ID shared by most commands.
type MotorArg struct {
	ID int `positional-arg-name:"id" description:"Motor ID (0-253)"`
}

// loadConfig reads the configuration file and applies the global flags.
// A missing file yields the defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", opts.Config, err)
	}
	applyFlags(cfg, &opts)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config, o *Options) {
	if o.Port != "" {
		cfg.Port = o.Port
	}
	if o.Baud != 0 {
		cfg.BaudRate = o.Baud
	}
	if o.Timeout != 0 {
		cfg.TimeoutMs = o.Timeout
	}
	if o.Sim != "" && cfg.Port == "" {
		cfg.Port = simPort
	}
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newOpener returns the driver opener for cfg, backed by a simulated bus
// when --sim is set.
func newOpener(cfg *config.Config, sim string) (servo.Opener, error) {
	busCfg := cfg.BusConfig()
	if sim != "" {
		ids, err := servo.ParseIDs(sim)
		if err != nil {
			return nil, fmt.Errorf("--sim: %w", err)
		}
		busCfg.Transport = servo.NewSimBus(ids...).Transport
	}
	return servo.Open(busCfg), nil
}

// connect opens a controller on the configured port.
func connect(cfg *config.Config, extra ...session.Option) (*session.Controller, error) {
	if cfg.Port == "" {
		return nil, errors.New("no port configured, run 'stsjog init' or pass --port")
	}

	open, err := newOpener(cfg, opts.Sim)
	if err != nil {
		return nil, err
	}

	sessionOpts := append([]session.Option{session.WithLogger(newLogger(os.Stderr, opts.Verbose))}, extra...)
	ctrl := session.New(open, sessionOpts...)
	if err := ctrl.Connect(cfg.Port); err != nil {
		return nil, err
	}
	return ctrl, nil
}

// loadAndConnect is loadConfig followed by connect.
func loadAndConnect() (*config.Config, *session.Controller, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	ctrl, err := connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, ctrl, nil
}

// interruptible returns a context canceled by Ctrl+C.
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// commandContext bounds a single command by a generous multiple of the bus
// timeout.
func commandContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	timeout := 20 * cfg.Timeout()
	if timeout < 2*time.Second {
		timeout = 2 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("expected on or off, got %q", s)
	}
	return b, nil
}

func formatIDs(ids []int) string {
	if len(ids) == 0 {
		return "none"
	}
	s := ""
	for i, id := range ids {
		if i > 0 {
			s += ", "
		}
		s += strconv.Itoa(id)
	}
	return s
}
