package cmd

import (
	"context"

	"grimm.is/portgate/internal/history"
	"grimm.is/portgate/internal/tui"
)

// RunMenu starts the interactive menu.
func RunMenu(configFile string) error {
	return withEnv(configFile, func(ctx context.Context, env *Env) error {
		ctx = history.WithActor(ctx, "menu")
		return tui.NewMenu(env.Manager, Stdout).Run(ctx)
	})
}
