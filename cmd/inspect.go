package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"grimm.is/portgate/internal/tui"
)

// RunPreview prints the configuration the stored state renders to. With
// check set it also runs the haproxy syntax check.
func RunPreview(configFile string, check bool) error {
	return withEnv(configFile, func(ctx context.Context, env *Env) error {
		doc, err := env.Manager.Preview(ctx)
		if err != nil {
			return err
		}
		fmt.Fprint(Stdout, doc.Text)
		if !check {
			return nil
		}
		out, err := env.Manager.Check(ctx)
		if err != nil {
			return err
		}
		Printer.Fprintf(Stdout, "# check passed: %s\n", out)
		return nil
	})
}

// RunDiff shows what apply would change in the live configuration.
func RunDiff(configFile string) error {
	return withEnv(configFile, func(ctx context.Context, env *Env) error {
		diff, err := env.Manager.Diff(ctx)
		if err != nil {
			return err
		}
		if diff == "" {
			Printer.Fprintln(Stdout, "No differences")
			return nil
		}
		fmt.Fprint(Stdout, diff)
		return nil
	})
}

// RunStatus prints the service state and state/live consistency.
func RunStatus(configFile, format string) error {
	return withEnv(configFile, func(ctx context.Context, env *Env) error {
		st, err := env.Manager.Status(ctx)
		if err != nil {
			return err
		}
		switch format {
		case "json":
			return writeJSON(st)
		case "yaml":
			return writeYAML(st)
		}

		svc := tui.StyleStatusGood.Render(st.Service.State)
		if !st.Service.Active {
			svc = tui.StyleStatusBad.Render(st.Service.State)
		}
		sync := tui.StyleStatusGood.Render("in sync")
		if !st.InSync {
			sync = tui.StyleStatusWarn.Render("differs from stored state (run apply)")
		}

		w := tabwriter.NewWriter(Stdout, 0, 0, 2, ' ', 0)
		Printer.Fprintf(w, "Service:\t%s\n", svc)
		Printer.Fprintf(w, "Live config:\t%s\t%s\n", st.Service.LivePath, sync)
		Printer.Fprintf(w, "Tunnels:\t%d\n", st.Tunnels)
		Printer.Fprintf(w, "Listeners:\t%d\n", st.Listeners)
		Printer.Fprintf(w, "Health check:\t%s\n", st.HealthCheck)
		Printer.Fprintf(w, "Bot:\t%v\n", st.BotConfigured)
		return w.Flush()
	})
}

// RunBackups lists stored live-config backups.
func RunBackups(configFile string) error {
	return withEnv(configFile, func(ctx context.Context, env *Env) error {
		backups, err := env.Manager.Backups()
		if err != nil {
			return err
		}
		if len(backups) == 0 {
			Printer.Fprintln(Stdout, "No backups")
			return nil
		}
		w := tabwriter.NewWriter(Stdout, 0, 0, 2, ' ', 0)
		Printer.Fprintf(w, "VERSION\tTIME\tSIZE\tHASH\tDESCRIPTION\n")
		for _, b := range backups {
			Printer.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n",
				b.Version, b.Timestamp.Format("2006-01-02 15:04:05"), b.Size, b.Hash, b.Description)
		}
		return w.Flush()
	})
}

// RunRestore activates a stored backup.
func RunRestore(configFile string, version int) error {
	return withEnv(configFile, func(ctx context.Context, env *Env) error {
		res, err := env.Manager.Restore(ctx, version)
		if err != nil {
			return err
		}
		Printer.Fprintf(Stdout, "Backup %d restored (%s)\n", version, res.Hash)
		return nil
	})
}
