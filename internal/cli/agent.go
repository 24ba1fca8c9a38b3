package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/arc-keeper/internal/observer"
)

// newAgentCmd runs the long-lived reconciliation agent: startup
// reconciliation, mount-event watching and auto-close timers, then a clean
// shutdown pass when the command's context is cancelled.
func newAgentCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Run the background reconciliation agent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if err := app.Manager.Start(ctx); err != nil {
				return fmt.Errorf("startup reconciliation: %w", err)
			}

			obs, err := observer.New(app.Cfg.MountDir(), app.Manager, app.Log)
			if err != nil {
				return fmt.Errorf("mount observer: %w", err)
			}
			defer func() {
				if err := obs.Close(); err != nil {
					app.Log.Warn("close mount observer", zap.Error(err))
				}
			}()

			app.Manager.OnAnyOpenChange(func(open bool) {
				app.Log.Info("open volumes changed", zap.Bool("any_open", open))
			})

			app.Log.Info("agent running", zap.String("data_dir", app.Cfg.DataDir))
			_ = obs.Run(ctx) // returns on ctx cancellation

			// Detach-on-exit and the final truth-restoring scan run on a
			// fresh context; the signal context is already done.
			if err := app.Manager.End(context.Background()); err != nil {
				app.Log.Error("shutdown reconciliation", zap.Error(err))
			}
			return nil
		},
	}
}
