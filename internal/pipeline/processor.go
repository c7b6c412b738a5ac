package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/azadk/ocrhub/internal/blob"
	"github.com/azadk/ocrhub/internal/model"
	"github.com/azadk/ocrhub/internal/tools"
)

// Cleaner preprocesses a page image before recognition.
type Cleaner interface {
	Clean(ctx context.Context, input, output string) (tools.CleanResult, error)
}

// Recognizer runs OCR on a cleaned page image.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string, langs []string) (tools.RecognizeResult, error)
}

// PageProcessor runs the per-page clean, recognize and upload steps.
// Tool failures are recorded on the page, never returned as errors;
// only infrastructure failures propagate.
type PageProcessor struct {
	cleaner    Cleaner
	recognizer Recognizer
	blobs      blob.Store
	logger     *slog.Logger
}

// PageProcessorConfig configures a PageProcessor.
type PageProcessorConfig struct {
	Cleaner    Cleaner
	Recognizer Recognizer
	Blobs      blob.Store
	Logger     *slog.Logger
}

// NewPageProcessor creates a PageProcessor.
func NewPageProcessor(cfg PageProcessorConfig) *PageProcessor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PageProcessor{
		cleaner:    cfg.Cleaner,
		recognizer: cfg.Recognizer,
		blobs:      cfg.Blobs,
		logger:     logger.With("component", "pages"),
	}
}

// Process cleans and recognizes one page, uploading the cleaned image
// on success. The page is mutated in place; Succeeded reflects the
// outcome of the last stage reached.
func (p *PageProcessor) Process(ctx context.Context, job *model.Job, page *model.Page, cleanedPath string) error {
	logger := p.logger.With("job_id", job.ID, "page", page.Name)

	cleanRes, cleanErr := p.cleaner.Clean(ctx, page.FullPath, cleanedPath)
	page.PredictSizes = false
	if cleanErr != nil {
		logger.Warn("clean failed", "error", cleanErr)
		page.Succeeded = false
		page.Text = cleanRes.Output
		page.FinishedAt = time.Now().UTC()
		return nil
	}
	page.Succeeded = true

	langs := model.NormalizeLanguages(job.Languages())
	ocrRes, ocrErr := p.recognizer.Recognize(ctx, cleanedPath, langs)
	if ocrErr != nil {
		logger.Warn("recognition failed", "error", ocrErr)
		page.Succeeded = false
		page.Text = ocrRes.Diagnostics
		page.FinishedAt = time.Now().UTC()
		return nil
	}

	page.Text = ocrRes.Text
	page.Hocr = ocrRes.Hocr
	page.PDF = ocrRes.PDF

	cleaned, err := os.Open(cleanedPath)
	if err != nil {
		return fmt.Errorf("open cleaned image %s: %w", page.Name, err)
	}
	defer cleaned.Close()

	key := blob.DoneKey(job.UserID, job.ID, page.Name)
	if err := p.blobs.UploadBlob(ctx, key, cleaned, contentTypeFor(page.Name)); err != nil {
		logger.Warn("cleaned image upload failed", "error", err)
		page.Succeeded = false
		page.Text = err.Error()
	}
	page.FinishedAt = time.Now().UTC()
	return nil
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	default:
		return blob.ContentTypeJPEG
	}
}

// isImage reports whether the filename looks like a page image.
func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".jfif", ".png", ".webp", ".bmp", ".tiff":
		return true
	}
	return false
}
