package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"grimm.is/portgate/internal/history"
)

// HistoryOptions filters the history command.
type HistoryOptions struct {
	Limit  int
	Action string
	Actor  string
	Since  time.Duration
	Format string
	Prune  bool
}

// RunHistory prints journaled operations, newest first.
func RunHistory(configFile string, opts HistoryOptions) error {
	return withEnv(configFile, func(ctx context.Context, env *Env) error {
		if env.Journal == nil {
			return errors.New("history journal is disabled or unavailable")
		}
		if opts.Prune {
			n, err := env.Journal.Prune(ctx)
			if err != nil {
				return err
			}
			Printer.Fprintf(Stdout, "Pruned %d entries\n", n)
			return nil
		}

		q := history.Query{Action: opts.Action, Actor: opts.Actor, Limit: opts.Limit}
		if opts.Since > 0 {
			q.Since = time.Now().Add(-opts.Since)
		}
		entries, err := env.Manager.History(ctx, q)
		if err != nil {
			return err
		}

		switch opts.Format {
		case "json":
			return writeJSON(entries)
		case "yaml":
			return writeYAML(entries)
		}
		if len(entries) == 0 {
			Printer.Fprintln(Stdout, "No history")
			return nil
		}

		w := tabwriter.NewWriter(Stdout, 0, 0, 2, ' ', 0)
		Printer.Fprintf(w, "TIME\tACTOR\tACTION\tRESULT\tDETAILS\n")
		for _, e := range entries {
			detail := formatDetails(e.Details)
			if e.Result == history.ResultFailed {
				detail = fmt.Sprintf("%s: %s", e.Stage, e.Error)
			}
			Printer.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.Format("2006-01-02 15:04:05"), e.Actor, e.Action, e.Result, detail)
		}
		return w.Flush()
	})
}

func formatDetails(details map[string]any) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, details[k]))
	}
	return strings.Join(parts, " ")
}
