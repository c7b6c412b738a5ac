package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/azadk/ocrhub/internal/blob"
	"github.com/azadk/ocrhub/internal/config"
	"github.com/azadk/ocrhub/internal/dispatch"
	"github.com/azadk/ocrhub/internal/paygate"
	"github.com/azadk/ocrhub/internal/pipeline"
	"github.com/azadk/ocrhub/internal/server"
	"github.com/azadk/ocrhub/internal/store"
	"github.com/azadk/ocrhub/internal/tools"
	"github.com/azadk/ocrhub/internal/webhook"
)

var serveLogLevel string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ocrhub worker server",
	Long: `Start the ocrhub worker server.

The server connects to Postgres and the blob store, then runs the job
dispatcher: queued jobs are picked up by the recovery poll and
processed by the worker pool until shutdown (Ctrl+C or SIGTERM).

Examples:
  ocrhub serve                       # Use ./config.yaml or defaults
  ocrhub serve --config /etc/ocrhub/config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		level := slog.LevelInfo
		if serveLogLevel == "debug" {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		}))

		mgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		mgr.OnChange(func(cfg *config.Config) {
			logger.Info("config file changed; restart to apply worker and storage settings")
		})
		mgr.WatchConfig()
		cfg := mgr.Get()

		st, err := store.NewPostgresStore(ctx, store.PostgresConfig{
			URL:    cfg.DatabaseURL(),
			Logger: logger,
		})
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.EnsureSchema(ctx); err != nil {
			return err
		}

		blobs, closeBlobs, err := newBlobStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeBlobs()

		orch := newOrchestrator(cfg, st, blobs, logger)

		d := dispatch.New(dispatch.Config{
			Runner:       orch,
			Store:        st,
			Logger:       logger,
			WorkerCount:  cfg.Worker.WorkerCount,
			QueueSize:    cfg.Worker.QueueSize,
			PollInterval: time.Duration(cfg.Worker.PollIntervalSeconds) * time.Second,
		})

		if cfg.Paygate.BaseURL != "" {
			go runPaygate(ctx, cfg, st, logger)
		}

		srv, err := server.New(server.Config{
			Host:       cfg.Server.Host,
			Port:       cfg.Server.Port,
			DB:         st,
			Dispatcher: d,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("status server failed", "error", err)
			}
		}()

		// Blocks until ctx is cancelled.
		d.Start(ctx)
		return nil
	},
}

func newBlobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (blob.Store, func(), error) {
	if cfg.Storage.Backend == "fs" {
		return blob.NewFSStore(cfg.Storage.Root), func() {}, nil
	}
	gcs, err := blob.NewGCSStore(ctx, blob.GCSConfig{
		Bucket: cfg.Storage.Bucket,
		Logger: logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return gcs, func() { gcs.Close() }, nil
}

func newOrchestrator(cfg *config.Config, st store.Store, blobs blob.Store, logger *slog.Logger) *pipeline.Orchestrator {
	runner := tools.ExecRunner{}
	cleaner := tools.NewCleaner(tools.CleanerConfig{
		Runner:  runner,
		Python:  cfg.OCR.Python,
		WorkDir: cfg.OCR.ScriptsDir,
	})
	recognizer := tools.NewTesseract(tools.TesseractConfig{
		Runner:    runner,
		Binary:    cfg.OCR.TesseractBinary,
		ModelsDir: cfg.OCR.ModelsDir,
		WorkDir:   cfg.OCR.ScriptsDir,
	})
	processor := pipeline.NewPageProcessor(pipeline.PageProcessorConfig{
		Cleaner:    cleaner,
		Recognizer: recognizer,
		Blobs:      blobs,
		Logger:     logger,
	})
	notifier := webhook.New(webhook.Config{
		AssetBaseURL: cfg.Webhook.AssetBaseURL,
		Timeout:      time.Duration(cfg.Webhook.TimeoutSeconds) * time.Second,
		Logger:       logger,
	})
	return pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		Store:            st,
		Blobs:            blobs,
		Processor:        processor,
		Notifier:         notifier,
		Logger:           logger,
		ParallelPages:    cfg.Worker.ParallelPagesCount,
		EnforceBalance:   cfg.Billing.EnforceBalance,
		TableOverlayPath: cfg.OCR.TableOverlayPath,
	})
}

// runPaygate reconciles provider transfers on an interval until ctx
// is cancelled.
func runPaygate(ctx context.Context, cfg *config.Config, st *store.PostgresStore, logger *slog.Logger) {
	client := paygate.NewClient(paygate.ClientConfig{
		BaseURL:  cfg.Paygate.BaseURL,
		MobileNo: cfg.Paygate.MobileNo,
		Password: cfg.PaygatePassword(),
		DeviceID: cfg.Paygate.DeviceID,
		AppID:    cfg.Paygate.AppID,
		Logger:   logger,
	})
	rec := paygate.NewReconciler(paygate.ReconcilerConfig{
		Store:    st,
		Resolver: st,
		Logger:   logger,
	})

	interval := time.Duration(cfg.Paygate.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		transfers, err := client.IncomingTransfers(ctx)
		if err != nil {
			logger.Warn("listing provider transfers failed", "error", err)
		} else if applied, err := rec.Apply(ctx, transfers); err != nil {
			logger.Warn("reconciling transfers failed", "error", err)
		} else if applied > 0 {
			logger.Info("recharges reconciled", "applied", applied)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "Log level: info or debug")
}
