package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"grimm.is/portgate/internal/config"
	"grimm.is/portgate/internal/haproxy"
	"grimm.is/portgate/internal/history"
	"grimm.is/portgate/internal/i18n"
	"grimm.is/portgate/internal/logging"
	"grimm.is/portgate/internal/metrics"
	"grimm.is/portgate/internal/state"
	"grimm.is/portgate/internal/tunnels"
)

// Printer is the global message printer for the CLI
var Printer = i18n.NewCLIPrinter()

// Stderr receives diagnostics.
var Stderr io.Writer = os.Stderr

// Stdout receives command output.
var Stdout io.Writer = os.Stdout

// Runner executes haproxy and systemctl.
var Runner haproxy.CommandRunner = haproxy.DefaultCommandRunner

// Env is everything a subcommand needs, built from the config file.
type Env struct {
	Config    *config.Config
	Store     state.Store
	Activator *haproxy.Activator
	Journal   *history.Journal
	Manager   *tunnels.Manager
	Logger    *logging.Logger
}

// OpenEnv loads configFile, configures logging and opens the state store.
func OpenEnv(configFile string) (*Env, error) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Output: Stderr,
		JSON:   cfg.Log.JSON,
	})
	logging.SetDefault(logger)

	store, err := state.Open(cfg.State.Backend, cfg.State.Path)
	if err != nil {
		return nil, err
	}

	renderOpts, err := cfg.HAProxy.RenderOptions()
	if err != nil {
		store.Close()
		return nil, err
	}

	actOpts := cfg.HAProxy.ActivatorOptions()
	actOpts.Runner = Runner
	actOpts.Logger = logger.WithComponent("haproxy")
	act, err := haproxy.NewActivator(actOpts)
	if err != nil {
		store.Close()
		return nil, err
	}

	env := &Env{
		Config:    cfg,
		Store:     store,
		Activator: act,
		Logger:    logger,
	}

	mgrOpts := tunnels.Options{
		Store:     store,
		Activator: act,
		Render:    renderOpts,
		Metrics:   metrics.Get(),
		Logger:    logger.WithComponent("tunnels"),
	}
	if !cfg.History.Disabled {
		journal, err := history.Open(cfg.History.Path, cfg.History.RetentionDays)
		if err != nil {
			// the journal is an aid, not a precondition for changing tunnels
			logger.Warn("history journal unavailable", "path", cfg.History.Path, "error", err)
		} else {
			env.Journal = journal
			mgrOpts.Journal = journal
		}
	}
	env.Manager = tunnels.NewManager(mgrOpts)

	return env, nil
}

// Close releases the store and journal.
func (e *Env) Close() error {
	if e.Journal != nil {
		e.Journal.Close()
	}
	return e.Store.Close()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// withEnv opens the environment, runs fn under a signal-aware context and
// closes the environment.
func withEnv(configFile string, fn func(ctx context.Context, env *Env) error) error {
	env, err := OpenEnv(configFile)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()
	return fn(ctx, env)
}
