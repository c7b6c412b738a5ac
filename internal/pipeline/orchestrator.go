// Package pipeline runs OCR jobs end to end: staging, page
// processing, artifact generation, billing and the final state
// transition, all inside one storage transaction.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/azadk/ocrhub/internal/blob"
	"github.com/azadk/ocrhub/internal/compose"
	"github.com/azadk/ocrhub/internal/hocr"
	"github.com/azadk/ocrhub/internal/model"
	"github.com/azadk/ocrhub/internal/store"
)

// Notifier delivers job results after commit. Implemented by the
// webhook package; delivery must never affect the job outcome.
type Notifier interface {
	Notify(ctx context.Context, job *model.Job, pages []*model.Page)
}

// Composer builds the merged PDF and Word document artifacts.
type Composer interface {
	MergePages(pdfs [][]byte) ([]byte, error)
	WordDocument(pages []*hocr.Page, tables []hocr.Table) ([]byte, error)
}

// docComposer is the production Composer.
type docComposer struct{}

func (docComposer) MergePages(pdfs [][]byte) ([]byte, error) {
	return compose.MergePages(pdfs)
}

func (docComposer) WordDocument(pages []*hocr.Page, tables []hocr.Table) ([]byte, error) {
	return compose.WordDocument(pages, tables)
}

// Orchestrator drives one job through the
// queued -> processing -> completed|failed state machine.
type Orchestrator struct {
	store     store.Store
	blobs     blob.Store
	processor *PageProcessor
	composer  Composer
	notifier  Notifier
	logger    *slog.Logger

	parallelPages    int
	enforceBalance   bool
	tableOverlayPath string
	tempDir          string
}

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	Store     store.Store
	Blobs     blob.Store
	Processor *PageProcessor
	Notifier  Notifier
	Logger    *slog.Logger

	// Composer overrides the document composer. Tests only.
	Composer Composer

	// ParallelPages is the chunk size: how many pages of one job are
	// processed concurrently. Defaults to 2.
	ParallelPages int

	// EnforceBalance enables the balance gates. When off, jobs run
	// regardless of the user's ledger balance.
	EnforceBalance bool

	// TableOverlayPath optionally points at a table annotation file
	// applied to every composed document.
	TableOverlayPath string

	// TempDir is the staging root for downloaded and cleaned images.
	// Defaults to a subdirectory of the system temp dir.
	TempDir string
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	parallel := cfg.ParallelPages
	if parallel <= 0 {
		parallel = 2
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "ocrhub")
	}
	composer := cfg.Composer
	if composer == nil {
		composer = docComposer{}
	}
	return &Orchestrator{
		store:            cfg.Store,
		blobs:            cfg.Blobs,
		processor:        cfg.Processor,
		composer:         composer,
		notifier:         cfg.Notifier,
		logger:           logger.With("component", "pipeline"),
		parallelPages:    parallel,
		enforceBalance:   cfg.EnforceBalance,
		tableOverlayPath: cfg.TableOverlayPath,
		tempDir:          tempDir,
	}
}

// RunJob processes one job. Any error rolls the transaction back,
// force-fails the job in a fresh transaction and is returned to the
// caller.
func (o *Orchestrator) RunJob(ctx context.Context, jobID string) (err error) {
	logger := o.logger.With("job_id", jobID)
	logger.Info("processing job")

	tx, err := o.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin job transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
		if err != nil {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
				logger.Error("rollback failed", "error", rbErr)
			}
			o.forceFail(ctx, jobID, err)
		}
	}()

	job, err := tx.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.HasFinished() {
		logger.Info("job already finished, skipping", "status", job.Status)
		return tx.Commit(ctx)
	}

	user, err := tx.GetUser(ctx, job.UserID)
	if err != nil {
		return err
	}

	// First gate: the job may have been queued while the balance was
	// already short. PaidPageCount here is the estimate from submission.
	if o.enforceBalance && user.Balance < job.PaidPageCount {
		logger.Info("insufficient balance before processing",
			"balance", user.Balance, "needed", job.PaidPageCount)
		o.failForBalance(job)
		if err := tx.UpdateJob(ctx, job); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		o.notify(ctx, job, nil)
		return nil
	}

	now := time.Now().UTC()
	job.Status = model.StatusProcessing
	job.ProcessedAt = &now
	if err := tx.UpdateJob(ctx, job); err != nil {
		return err
	}
	if err := tx.DeletePreviousPages(ctx, job.ID); err != nil {
		return err
	}

	stagingRoot := o.stagingRoot()
	inputDir := filepath.Join(stagingRoot, "original", strconv.Itoa(job.UserID), job.ID)
	cleanedDir := filepath.Join(stagingRoot, "done", strconv.Itoa(job.UserID), job.ID)
	defer o.cleanupStaging(logger, inputDir, cleanedDir)

	if err := o.blobs.DownloadBlobs(ctx, blob.OriginalPrefix(job.UserID, job.ID), stagingRoot); err != nil {
		return fmt.Errorf("download source images: %w", err)
	}

	pages, err := o.loadPages(job, inputDir)
	if err != nil {
		return err
	}

	allSucceeded, err := o.processPages(ctx, logger, job, pages, cleanedDir)
	if err != nil {
		return err
	}

	if !allSucceeded {
		job.Status = model.StatusFailed
		job.FailingReason = "failed to process one or more pages"
	} else {
		if err := o.publishArtifacts(ctx, logger, job, pages); err != nil {
			return err
		}

		paid := 0
		for _, p := range pages {
			if !p.IsFree {
				paid++
			}
		}

		// Final gate, now with the actual paid-page count. It runs
		// before the job is marked completed: a job that reaches
		// completed is never retroactively flipped.
		if o.enforceBalance && user.Balance < paid {
			logger.Info("insufficient balance for processed pages",
				"balance", user.Balance, "needed", paid)
			o.failForBalance(job)
		} else {
			job.Status = model.StatusCompleted
			job.PaidPageCount = paid

			for _, p := range pages {
				if err := tx.InsertPage(ctx, p); err != nil {
					return err
				}
			}

			logger.Info("charging for job", "paid_pages", paid)
			// A zero-page charge is still recorded so every completed
			// job has a ledger entry.
			charge := &model.UserTransaction{
				UserID:          job.UserID,
				PageCount:       -paid,
				PaymentMediumID: model.PaymentMediumBalance,
				TypeID:          model.TransactionTypeOCRJob,
				Confirmed:       true,
				CreatedAt:       time.Now().UTC(),
				CreatedBy:       job.UserID,
			}
			if err := tx.InsertUserTransaction(ctx, charge); err != nil {
				return err
			}
		}
	}

	finished := time.Now().UTC()
	job.FinishedAt = &finished
	if err := tx.UpdateJob(ctx, job); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit job transaction: %w", err)
	}

	o.notify(ctx, job, pages)
	logger.Info("job finished", "status", job.Status, "paid_pages", job.PaidPageCount)
	return nil
}

func (o *Orchestrator) stagingRoot() string {
	return o.tempDir
}

// failForBalance marks the job failed with the user-facing reason
// shown in the Kurdish UI.
func (o *Orchestrator) failForBalance(job *model.Job) {
	now := time.Now().UTC()
	job.Status = model.StatusFailed
	job.FailingReason = "not enough balance"
	job.UserFailingReason = "باڵانسی پێویستت نییە."
	job.FinishedAt = &now
}

// loadPages enumerates the downloaded source images in index order.
// Filenames must be integers (optionally with an image extension); an
// unparsable name is a configuration error, not a retryable one.
func (o *Orchestrator) loadPages(job *model.Job, inputDir string) ([]*model.Page, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, fmt.Errorf("list source images: %w", err)
	}

	type indexed struct {
		index int
		name  string
	}
	var files []indexed
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		base := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		index, err := strconv.Atoi(base)
		if err != nil {
			return nil, fmt.Errorf("invalid page filename %q: expected an integer index", e.Name())
		}
		if !isImage(e.Name()) {
			continue
		}
		files = append(files, indexed{index: index, name: e.Name()})
	}
	sort.Slice(files, func(i, k int) bool { return files[i].index < files[k].index })

	now := time.Now().UTC()
	pages := make([]*model.Page, len(files))
	for i, f := range files {
		pages[i] = &model.Page{
			ID:        uuid.NewString(),
			Name:      f.name,
			JobID:     job.ID,
			UserID:    job.UserID,
			FullPath:  filepath.Join(inputDir, f.name),
			StartedAt: now,
			CreatedAt: now,
			CreatedBy: job.UserID,
		}
	}
	return pages, nil
}

// processPages runs the pages chunk by chunk. Within a chunk pages run
// concurrently; a later chunk does not start until the previous one
// fully completed. Returns false as soon as any page fails.
func (o *Orchestrator) processPages(ctx context.Context, logger *slog.Logger, job *model.Job, pages []*model.Page, cleanedDir string) (bool, error) {
	done := 0
	for start := 0; start < len(pages); start += o.parallelPages {
		end := start + o.parallelPages
		if end > len(pages) {
			end = len(pages)
		}
		chunk := pages[start:end]

		g, gctx := errgroup.WithContext(ctx)
		for _, page := range chunk {
			g.Go(func() error {
				return o.processor.Process(gctx, job, page, filepath.Join(cleanedDir, page.Name))
			})
		}
		if err := g.Wait(); err != nil {
			return false, err
		}

		for _, page := range chunk {
			if !page.Succeeded {
				logger.Warn("page failed", "page", page.Name, "diagnostics", page.Text)
				return false, nil
			}
		}
		for _, page := range chunk {
			page.IsFree = model.CountWords(page.Text) < model.FreePageWordThreshold
			page.Processed = true
		}

		done += len(chunk)
		logger.Info("progress", "done", done, "total", len(pages))

		if err := ctx.Err(); err != nil {
			return false, err
		}
	}
	return true, nil
}

// publishArtifacts uploads the four job outputs: merged PDF, combined
// plain text, combined hOCR listing and the composed Word document.
func (o *Orchestrator) publishArtifacts(ctx context.Context, logger *slog.Logger, job *model.Job, pages []*model.Page) error {
	logger.Info("generating pdf")
	pdfs := make([][]byte, len(pages))
	for i, p := range pages {
		pdfs[i] = p.PDF
	}
	merged, err := o.composer.MergePages(pdfs)
	if err != nil {
		return fmt.Errorf("merge page pdfs: %w", err)
	}
	if err := o.upload(ctx, job, "result.pdf", merged, blob.ContentTypePDF); err != nil {
		return err
	}

	logger.Info("generating text")
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	if err := o.upload(ctx, job, "result.txt", []byte(strings.Join(texts, "\n\n\n")), blob.ContentTypeText); err != nil {
		return err
	}

	logger.Info("generating hocr listing")
	hocrs := make([]string, len(pages))
	for i, p := range pages {
		hocrs[i] = p.Hocr
	}
	if err := o.upload(ctx, job, "result.hocrlist", []byte(strings.Join(hocrs, "\n\n\n")), blob.ContentTypeText); err != nil {
		return err
	}

	logger.Info("generating docx")
	tables, err := o.loadTables()
	if err != nil {
		return err
	}
	hocrPages := make([]*hocr.Page, len(pages))
	for i, p := range pages {
		hocrPages[i] = hocr.Parse(p.Hocr, p.PredictSizes)
	}
	docx, err := o.composer.WordDocument(hocrPages, tables)
	if err != nil {
		return fmt.Errorf("compose word document: %w", err)
	}
	return o.upload(ctx, job, "result.docx", docx, blob.ContentTypeDocx)
}

func (o *Orchestrator) upload(ctx context.Context, job *model.Job, name string, data []byte, contentType string) error {
	key := blob.DoneKey(job.UserID, job.ID, name)
	if err := o.blobs.UploadBlob(ctx, key, bytes.NewReader(data), contentType); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

func (o *Orchestrator) loadTables() ([]hocr.Table, error) {
	if o.tableOverlayPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(o.tableOverlayPath)
	if err != nil {
		return nil, fmt.Errorf("read table overlay: %w", err)
	}
	tables, err := hocr.ParseTables(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse table overlay: %w", err)
	}
	return tables, nil
}

// cleanupStaging removes the job-scoped staging directories.
// Best-effort: failures are logged and never fail the job.
func (o *Orchestrator) cleanupStaging(logger *slog.Logger, dirs ...string) {
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("staging cleanup failed", "dir", dir, "error", err)
		}
	}
}

func (o *Orchestrator) notify(ctx context.Context, job *model.Job, pages []*model.Page) {
	if o.notifier == nil {
		return
	}
	o.notifier.Notify(context.WithoutCancel(ctx), job, pages)
}

// forceFail records a failure outside the rolled-back transaction so
// the job never stays stuck in processing.
func (o *Orchestrator) forceFail(ctx context.Context, jobID string, cause error) {
	ctx = context.WithoutCancel(ctx)
	logger := o.logger.With("job_id", jobID)

	tx, err := o.store.Begin(ctx)
	if err != nil {
		logger.Error("force-fail begin failed", "error", err)
		return
	}
	defer tx.Rollback(ctx)

	job, err := tx.GetJob(ctx, jobID)
	if err != nil {
		logger.Error("force-fail load failed", "error", err)
		return
	}

	now := time.Now().UTC()
	job.Status = model.StatusFailed
	job.FailingReason = cause.Error()
	job.FinishedAt = &now
	if err := tx.UpdateJob(ctx, job); err != nil {
		logger.Error("force-fail update failed", "error", err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		logger.Error("force-fail commit failed", "error", err)
	}
}
