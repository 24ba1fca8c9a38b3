package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/and161185/arc-keeper/internal/config"
	"github.com/and161185/arc-keeper/internal/keystore"
	"github.com/and161185/arc-keeper/internal/progress"
)

func newS3Cmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "s3",
		Short: "Cloud backup storage",
	}
	cmd.AddCommand(newS3LoginCmd(app))
	cmd.AddCommand(newS3BackupCmd(app))
	return cmd
}

// newS3BackupCmd zips a closed archive and uploads it to the configured
// bucket, the same path as `backup --cloud`.
func newS3BackupCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <name>",
		Short: "Zip an archive and upload it to the configured bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			th := progress.NewThrottler(func(f float64) {
				fmt.Fprintf(app.out(), "\r%3.0f%%", f*100)
			})
			err = app.Manager.CloudBackup(cmd.Context(), a.ID, func(f float64) {
				th.Report(f)
			})
			fmt.Fprintln(app.out())
			if err != nil {
				return err
			}
			fmt.Fprintf(app.out(), "uploaded %s\n", a.Name)
			return nil
		},
	}
}

// newS3LoginCmd stores the bucket coordinates in the config file and the
// secret access key in the secret store, keyed by the access key id.
func newS3LoginCmd(app *App) *cobra.Command {
	var (
		region      string
		bucket      string
		endpoint    string
		accessKeyID string
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Configure the backup bucket and credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := app.readPassword("Secret access key: ")
			if err != nil {
				return err
			}
			if secret == "" {
				return fmt.Errorf("secret access key must not be empty")
			}

			if err := app.Keys.SaveCredential(accessKeyID, secret); err != nil {
				if !errors.Is(err, keystore.ErrSecretExists) {
					return err
				}
				if err := app.Keys.UpdateCredential(accessKeyID, secret); err != nil {
					return err
				}
			}

			cfg := app.Cfg
			cfg.S3 = config.S3{
				Region:      region,
				Bucket:      bucket,
				Endpoint:    endpoint,
				AccessKeyID: accessKeyID,
			}
			if err := config.Save(app.CfgPath, cfg); err != nil {
				return err
			}
			app.Cfg = cfg
			fmt.Fprintf(app.out(), "configured bucket %s in %s\n", bucket, region)
			return nil
		},
	}
	cmd.Flags().StringVar(&region, "region", "", "bucket region")
	cmd.Flags().StringVar(&bucket, "bucket", "", "bucket name")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "custom endpoint for S3-compatible storage")
	cmd.Flags().StringVar(&accessKeyID, "access-key-id", "", "access key id")
	_ = cmd.MarkFlagRequired("region")
	_ = cmd.MarkFlagRequired("bucket")
	_ = cmd.MarkFlagRequired("access-key-id")
	return cmd
}
