package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/azadk/ocrhub/internal/blob"
	"github.com/azadk/ocrhub/internal/config"
	"github.com/azadk/ocrhub/internal/model"
	"github.com/azadk/ocrhub/internal/store"
)

var (
	runLang string
	runRoot string
)

var runCmd = &cobra.Command{
	Use:   "run <image-dir>",
	Short: "Process a directory of page images as a one-off local job",
	Long: `Process a directory of page images as a one-off local job.

This runs the full pipeline (clean, recognize, compose, charge) against
an in-memory database and a filesystem blob store, without Postgres or
a webhook target. Image files must be named by page index (0.jpg,
1.png, ...). Artifacts land under <root>/done/1/<job-id>/.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

		mgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := mgr.Get()

		st := store.NewMemoryStore()
		st.AddUser(&model.User{ID: 1, Name: "local"})
		jobID := uuid.NewString()
		st.AddJob(&model.Job{
			ID:       jobID,
			Name:     filepath.Base(args[0]),
			UserID:   1,
			Status:   model.StatusQueued,
			Lang:     runLang,
			QueuedAt: time.Now().UTC(),
		})

		blobs := blob.NewFSStore(runRoot)
		if err := stageImages(ctx, blobs, args[0], jobID); err != nil {
			return err
		}

		// Local runs never gate on balance.
		cfg.Billing.EnforceBalance = false
		orch := newOrchestrator(cfg, st, blobs, logger)
		if err := orch.RunJob(ctx, jobID); err != nil {
			return err
		}

		job := st.Job(jobID)
		fmt.Printf("Job %s: %s\n", jobID, job.Status)
		if job.Status == model.StatusFailed {
			fmt.Printf("  Reason: %s\n", job.FailingReason)
			return nil
		}
		fmt.Printf("  Pages:     %d (%d billable)\n", job.PageCount, job.PaidPageCount)
		fmt.Printf("  Artifacts: %s\n", filepath.Join(runRoot, blob.DoneKey(1, jobID, "")))
		return nil
	},
}

// stageImages copies the source images into the blob store under the
// job's original prefix, the same layout the API uploader produces.
func stageImages(ctx context.Context, blobs blob.Store, dir, jobID string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	staged := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		key := blob.OriginalPrefix(1, jobID) + "/" + e.Name()
		err = blobs.UploadBlob(ctx, key, f, blob.ContentTypeJPEG)
		f.Close()
		if err != nil {
			return err
		}
		staged++
	}
	if staged == 0 {
		return fmt.Errorf("no files found in %s", dir)
	}
	return nil
}

func init() {
	runCmd.Flags().StringVar(&runLang, "lang", "ckb", "Comma-separated language codes (e.g. ckb,eng)")
	runCmd.Flags().StringVar(&runRoot, "root", "data", "Filesystem blob store root")
}
