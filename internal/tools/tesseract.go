package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Tesseract runs the tesseract binary on a page image and collects
// the text, hOCR and searchable-PDF outputs of a single invocation.
type Tesseract struct {
	runner    Runner
	binary    string
	modelsDir string
	workDir   string
}

// TesseractConfig configures a Tesseract.
type TesseractConfig struct {
	Runner    Runner
	Binary    string // defaults to "tesseract"
	ModelsDir string // traineddata directory, exported as TESSDATA_PREFIX
	WorkDir   string // working directory for the invocation
}

// NewTesseract creates a Tesseract.
func NewTesseract(cfg TesseractConfig) *Tesseract {
	runner := cfg.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	binary := cfg.Binary
	if binary == "" {
		binary = "tesseract"
	}
	return &Tesseract{
		runner:    runner,
		binary:    binary,
		modelsDir: cfg.ModelsDir,
		workDir:   cfg.WorkDir,
	}
}

// RecognizeResult is the outcome of one recognition run. On failure
// only Diagnostics is populated.
type RecognizeResult struct {
	Text        string
	Hocr        string
	PDF         []byte
	Diagnostics string
}

// Recognize runs tesseract on the image with the given language models.
// Langs are joined with "+"; an empty list falls back to ckb.
func (t *Tesseract) Recognize(ctx context.Context, imagePath string, langs []string) (RecognizeResult, error) {
	if len(langs) == 0 {
		langs = []string{"ckb"}
	}

	outDir, err := os.MkdirTemp("", "ocrhub-tess-*")
	if err != nil {
		return RecognizeResult{}, fmt.Errorf("create output directory: %w", err)
	}
	defer os.RemoveAll(outDir)

	base := filepath.Join(outDir, "result")
	env := []string{"TESSDATA_PREFIX=" + t.modelsDir}
	out, err := t.runner.Run(ctx, t.workDir, env, t.binary,
		"-l", strings.Join(langs, "+"), imagePath, base, "txt", "hocr", "pdf")
	if err != nil {
		return RecognizeResult{Diagnostics: string(out)},
			fmt.Errorf("recognize %s: %w", filepath.Base(imagePath), err)
	}

	text, err := os.ReadFile(base + ".txt")
	if err != nil {
		return RecognizeResult{}, fmt.Errorf("read text output: %w", err)
	}
	hocr, err := os.ReadFile(base + ".hocr")
	if err != nil {
		return RecognizeResult{}, fmt.Errorf("read hocr output: %w", err)
	}
	pdf, err := os.ReadFile(base + ".pdf")
	if err != nil {
		return RecognizeResult{}, fmt.Errorf("read pdf output: %w", err)
	}

	return RecognizeResult{Text: string(text), Hocr: string(hocr), PDF: pdf}, nil
}
