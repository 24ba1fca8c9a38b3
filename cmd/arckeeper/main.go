// Command arckeeper manages encrypted sparse-bundle archives: create, open,
// close, compact, back up and recover them, with idle volumes auto-closed by
// the agent.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/and161185/arc-keeper/internal/archive"
	"github.com/and161185/arc-keeper/internal/backup"
	"github.com/and161185/arc-keeper/internal/cli"
	"github.com/and161185/arc-keeper/internal/config"
	"github.com/and161185/arc-keeper/internal/execx"
	"github.com/and161185/arc-keeper/internal/keystore"
	"github.com/and161185/arc-keeper/internal/notify"
	"github.com/and161185/arc-keeper/internal/repository/filestore"
	"github.com/and161185/arc-keeper/internal/sched"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cfgPath := flag.String("config", config.DefaultPath(), "config file path")
	dev := flag.Bool("dev", false, "verbose development logging")
	flag.Parse()

	logger := newLogger(*dev)
	defer func() { _ = logger.Sync() }()
	logger.Debug("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *cfgPath, flag.Args(), logger); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(dev bool) *zap.Logger {
	if dev {
		l, _ := zap.NewDevelopment()
		return l
	}
	// CLI output goes to stdout; logs stay out of the way on stderr at
	// warn and above.
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	l, _ := cfg.Build()
	return l
}

func run(ctx context.Context, cfgPath string, args []string, logger *zap.Logger) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	secrets, err := newSecrets(cfg)
	if err != nil {
		return err
	}
	keys := keystore.New(secrets, logger)

	if err := os.MkdirAll(cfg.RecordsDir(), 0o755); err != nil {
		return fmt.Errorf("create records dir: %w", err)
	}
	repo, err := filestore.New(cfg.RecordsDir(), logger)
	if err != nil {
		return err
	}

	runner := execx.NewExecRunner(logger)
	scheduler := sched.NewTimerScheduler()
	defer scheduler.Close()
	notifier := notify.NewScript(runner, scheduler, logger)

	uploader, err := newUploader(ctx, cfg, keys)
	if err != nil {
		logger.Warn("cloud backup unavailable", zap.Error(err))
	}

	manager := archive.NewManager(repo, keys, runner, scheduler, notifier, uploader, cfg, logger)

	app := &cli.App{
		Cfg:     cfg,
		CfgPath: cfgPath,
		Manager: manager,
		Keys:    keys,
		Runner:  runner,
		Log:     logger,
	}
	root := cli.New(app)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newSecrets(cfg config.Config) (keystore.Secrets, error) {
	switch cfg.SecretBackend {
	case "keychain":
		return keystore.OpenKeyring("arckeeper")
	case "file":
		return keystore.OpenFileStore(cfg.SecretsDir())
	default:
		return nil, fmt.Errorf("unknown secret backend %q", cfg.SecretBackend)
	}
}

// newUploader builds the S3 uploader when a bucket is configured; a nil
// uploader just disables the cloud backup command.
func newUploader(ctx context.Context, cfg config.Config, keys *keystore.KeyStore) (backup.Uploader, error) {
	if cfg.S3.Bucket == "" {
		return nil, nil
	}
	secretKey, err := keys.ReadCredential(cfg.S3.AccessKeyID)
	if err != nil {
		return nil, fmt.Errorf("cloud credentials: %w (run arckeeper s3 login)", err)
	}
	up, err := backup.NewS3Uploader(ctx, backup.S3Options{
		Region:          cfg.S3.Region,
		Bucket:          cfg.S3.Bucket,
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: secretKey,
	})
	if err != nil {
		return nil, err
	}
	return up, nil
}
