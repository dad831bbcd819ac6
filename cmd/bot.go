package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"grimm.is/portgate/internal/bot"
	"grimm.is/portgate/internal/health"
	"grimm.is/portgate/internal/metrics"
)

// RunBotSetup stores bot credentials without touching the proxy.
func RunBotSetup(configFile, token, adminID string) error {
	return withEnv(configFile, func(ctx context.Context, env *Env) error {
		if err := env.Manager.SetBot(ctx, token, adminID); err != nil {
			return err
		}
		if token == "" && adminID == "" {
			Printer.Fprintln(Stdout, "Bot credentials cleared")
			return nil
		}
		Printer.Fprintln(Stdout, "Bot credentials saved")
		return nil
	})
}

// RunBot runs the Telegram bot until interrupted.
func RunBot(configFile string) error {
	return withEnv(configFile, func(ctx context.Context, env *Env) error {
		set, err := env.Manager.List(ctx)
		if err != nil {
			return err
		}
		if !set.Bot.Configured() {
			return errors.New("bot is not configured; run 'bot -token TOKEN -admin ID' first")
		}

		timeout, err := env.Config.Bot.Timeout()
		if err != nil {
			return err
		}

		if listen := env.Config.Metrics.Listen; listen != "" {
			srv := startMetricsServer(listen, metrics.Get(), NewHealthChecker(env))
			defer srv.Shutdown(context.Background())
			env.Logger.Info("metrics listening", "addr", listen)
		}

		if env.Journal != nil {
			if n, err := env.Journal.Prune(ctx); err != nil {
				env.Logger.Warn("history prune failed", "error", err)
			} else if n > 0 {
				env.Logger.Info("history pruned", "entries", n)
			}
		}

		client := bot.NewClient(env.Config.Bot.APIURL, set.Bot.Token, timeout)
		b, err := bot.New(client, env.Manager, bot.Config{
			AdminID:     set.Bot.AdminID,
			PollTimeout: timeout,
			Metrics:     metrics.Get(),
			Logger:      env.Logger.WithComponent("bot"),
		})
		if err != nil {
			return err
		}
		return b.Run(ctx)
	})
}

func startMetricsServer(addr string, reg *metrics.Registry, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	mux.Handle("/healthz", checker.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(Stderr, "metrics server: %v\n", err)
		}
	}()
	return srv
}
