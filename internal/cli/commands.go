package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/and161185/arc-keeper/internal/progress"
)

func newListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List archives",
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := app.Manager.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(app.out(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATE\tSIZE\tCAP\tFAV\tCLOSES\tID")
			for _, a := range list {
				state := "closed"
				if a.Attached {
					state = "open"
				}
				fav := ""
				if a.Favorite {
					fav = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%dGb\t%s\t%s\t%s\n",
					a.Name, state, formatSize(a.Size), a.MaxSizeGB, fav, a.ScheduledClose, a.ID)
			}
			return w.Flush()
		},
	}
}

func formatSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(b)/float64(div), "KMGTPE"[exp])
}

func newCreateCmd(app *App) *cobra.Command {
	var (
		sizeGB     int
		noPassword bool
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new encrypted archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := ""
			if !noPassword {
				p1, err := app.readPassword("Password: ")
				if err != nil {
					return err
				}
				p2, err := app.readPassword("Repeat password: ")
				if err != nil {
					return err
				}
				if p1 != p2 {
					return fmt.Errorf("passwords do not match")
				}
				if !validatePassword(p1) {
					fmt.Fprintln(app.out(), "warning: weak password; mix upper-case, lower-case and digits")
				}
				password = p1
			}
			a, err := app.Manager.Create(cmd.Context(), args[0], password, sizeGB, "", "")
			if err != nil {
				return err
			}
			fmt.Fprintf(app.out(), "created %s (%s)\n", a.Name, a.ID)
			fmt.Fprintln(app.out(), "export the recovery key now with: arckeeper key", a.Name)
			return nil
		},
	}
	cmd.Flags().IntVar(&sizeGB, "size", 1, "capacity in gigabytes")
	cmd.Flags().BoolVar(&noPassword, "no-password", false, "create without a password")
	return cmd
}

func newOpenCmd(app *App) *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:     "open <name>",
		Aliases: []string{"attach"},
		Short:   "Mount an archive",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.NoPassword {
				if err := app.Manager.Attach(cmd.Context(), a.ID, ""); err != nil {
					return err
				}
			} else {
				op := app.Manager.BeginAttach(a.ID)
				if err := app.submitWithPrompt(cmd.Context(), op, "Password: "); err != nil {
					return err
				}
			}
			fmt.Fprintf(app.out(), "opened at %s\n", a.MountPath)
			if reveal && app.Runner != nil {
				if _, err := app.Runner.Run(cmd.Context(), "/usr/bin/open", []string{a.MountPath}, ""); err != nil {
					fmt.Fprintf(app.out(), "could not reveal mount point: %v\n", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "open the mounted volume in the file browser")
	return cmd
}

func newCloseCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "close <name>",
		Aliases: []string{"detach"},
		Short:   "Unmount an archive",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := app.Manager.Detach(cmd.Context(), a.ID); err != nil {
				return err
			}
			fmt.Fprintf(app.out(), "closed %s\n", a.Name)
			return nil
		},
	}
}

func newCompactCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "compact <name>",
		Short: "Reclaim unused space in a closed archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.NoPassword {
				if err := app.Manager.Compact(cmd.Context(), a.ID, ""); err != nil {
					return err
				}
			} else {
				op := app.Manager.BeginCompact(a.ID)
				if err := app.submitWithPrompt(cmd.Context(), op, "Password: "); err != nil {
					return err
				}
			}
			fmt.Fprintf(app.out(), "compacted %s\n", a.Name)
			return nil
		},
	}
}

func newRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Move an archive to the trash and delete its record",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := app.Manager.Remove(cmd.Context(), a.ID); err != nil {
				return err
			}
			fmt.Fprintf(app.out(), "removed %s (bundle kept in trash)\n", a.Name)
			return nil
		},
	}
}

func newBackupCmd(app *App) *cobra.Command {
	var cloud bool
	cmd := &cobra.Command{
		Use:   "backup <name> [dest-dir]",
		Short: "Copy an archive, locally or to cloud storage",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cloud {
				// Zip and upload callbacks arrive from worker goroutines;
				// the throttler keeps terminal repaints sane.
				th := progress.NewThrottler(func(f float64) {
					fmt.Fprintf(app.out(), "\r%3.0f%%", f*100)
				})
				err := app.Manager.CloudBackup(cmd.Context(), a.ID, func(f float64) {
					th.Report(f)
				})
				fmt.Fprintln(app.out())
				if err != nil {
					return err
				}
				fmt.Fprintf(app.out(), "uploaded %s\n", a.Name)
				return nil
			}
			if len(args) < 2 {
				return fmt.Errorf("dest-dir required for a local backup")
			}
			dst, err := app.Manager.Backup(cmd.Context(), a.ID, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(app.out(), "backed up to %s\n", dst)
			return nil
		},
	}
	cmd.Flags().BoolVar(&cloud, "cloud", false, "zip and upload to the configured bucket")
	return cmd
}

func newRecoverCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "recover <name> <recovery-file>",
		Short: "Open an archive with an exported recovery key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := app.Manager.Recover(cmd.Context(), a.ID, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(app.out(), "recovered and opened at %s\n", a.MountPath)
			return nil
		},
	}
}

func newKeyCmd(app *App) *cobra.Command {
	var (
		clipboard bool
		outDir    string
	)
	cmd := &cobra.Command{
		Use:   "key <name>",
		Short: "Export the recovery key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if clipboard {
				if err := app.Manager.ExportKeyClipboard(ctx, a.ID); err == nil {
					fmt.Fprintln(app.out(), "recovery key copied to clipboard")
					return nil
				}
				op := app.Manager.BeginExportKeyClipboard(a.ID)
				if err := app.submitWithPrompt(ctx, op, "Password: "); err != nil {
					return err
				}
				fmt.Fprintln(app.out(), "recovery key copied to clipboard")
				return nil
			}

			if outDir == "" {
				outDir = "."
			}
			if path, err := app.Manager.ExportKeyFile(ctx, a.ID, outDir); err == nil {
				fmt.Fprintf(app.out(), "recovery key written to %s\n", path)
				return nil
			}
			var path string
			op := app.Manager.BeginExportKeyFile(a.ID, outDir, func(p string) { path = p })
			if err := app.submitWithPrompt(ctx, op, "Password: "); err != nil {
				return err
			}
			fmt.Fprintf(app.out(), "recovery key written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&clipboard, "clipboard", false, "copy to the clipboard instead of a file")
	cmd.Flags().StringVar(&outDir, "out", "", "directory for the recovery file")
	return cmd
}

func newFavCmd(app *App) *cobra.Command {
	var off bool
	cmd := &cobra.Command{
		Use:   "fav <name>",
		Short: "Mark or unmark an archive as a favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return app.Manager.SetFavorite(cmd.Context(), a.ID, !off)
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, "remove the favorite mark")
	return cmd
}

func newWatchCmd(app *App) *cobra.Command {
	var minutes int
	cmd := &cobra.Command{
		Use:   "watch <name>",
		Short: "Arm the auto-close timer for an open archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := app.Manager.Postpone(cmd.Context(), a.ID, time.Duration(minutes)*time.Minute); err != nil {
				return err
			}
			if minutes > 0 {
				fmt.Fprintf(app.out(), "%s closes in %dm\n", a.Name, minutes)
			} else {
				fmt.Fprintf(app.out(), "%s closes in %dm\n", a.Name, app.Cfg.AutoEjectTimeoutMin)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&minutes, "minutes", 0, "override the default timeout")
	return cmd
}

func newUnwatchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "unwatch <name>",
		Short: "Disarm the auto-close timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return app.Manager.Unwatch(cmd.Context(), a.ID)
		},
	}
}
