package cmd

import (
	"context"
	"errors"
	"sort"
	"text/tabwriter"
	"time"

	"grimm.is/portgate/internal/health"
	"grimm.is/portgate/internal/tui"
)

// ProcRoot is where the port conflict check reads procfs.
var ProcRoot = "/proc"

// NewHealthChecker registers the host checks for env.
func NewHealthChecker(env *Env) *health.Checker {
	c := health.NewChecker(5 * time.Second)
	c.Register("binary", health.BinaryCheck(env.Config.HAProxy.Binary))
	c.Register("service", health.ServiceCheck(func(ctx context.Context) (bool, string) {
		st := env.Activator.Status(ctx)
		return st.Active, st.State
	}))
	c.Register("state", health.ErrorCheck("state loads", func(ctx context.Context) error {
		_, err := env.Manager.List(ctx)
		return err
	}))
	c.Register("sync", health.SyncCheck(func(ctx context.Context) (bool, error) {
		st, err := env.Manager.Status(ctx)
		if err != nil {
			return false, err
		}
		return st.InSync, nil
	}))
	c.Register("ports", health.PortConflictCheck(env.Config.HAProxy.Binary, func(ctx context.Context) ([]int, error) {
		return tunnelPorts(ctx, env)
	}, health.ProcScanner(ProcRoot)))
	return c
}

// tunnelPorts lists every port the rendered configuration binds.
func tunnelPorts(ctx context.Context, env *Env) ([]int, error) {
	set, err := env.Manager.List(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[int]bool)
	for _, t := range set.Tunnels {
		for _, p := range t.Ports {
			seen[p] = true
		}
	}
	ports := make([]int, 0, len(seen))
	for p := range seen {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports, nil
}

// RunDoctor runs the host checks and fails when any is unhealthy.
func RunDoctor(configFile, format string) error {
	return withEnv(configFile, func(ctx context.Context, env *Env) error {
		report := NewHealthChecker(env).Run(ctx)

		var err error
		switch format {
		case "json":
			err = writeJSON(report)
		case "yaml":
			err = writeYAML(report)
		default:
			w := tabwriter.NewWriter(Stdout, 0, 0, 2, ' ', 0)
			for _, c := range report.Checks {
				Printer.Fprintf(w, "%s\t%s\t%s\n", c.Name, statusLabel(c.Status), c.Message)
			}
			err = w.Flush()
		}
		if err != nil {
			return err
		}
		if report.Status == health.StatusUnhealthy {
			return errors.New("one or more checks are unhealthy")
		}
		return nil
	})
}

func statusLabel(s health.Status) string {
	switch s {
	case health.StatusHealthy:
		return tui.StyleStatusGood.Render(string(s))
	case health.StatusDegraded:
		return tui.StyleStatusWarn.Render(string(s))
	default:
		return tui.StyleStatusBad.Render(string(s))
	}
}
