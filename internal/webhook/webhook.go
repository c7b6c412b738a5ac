// Package webhook posts job results to caller-supplied callback URLs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/azadk/ocrhub/internal/model"
)

// Notifier delivers job results to callback URLs. Delivery is
// best-effort: failures are logged and never affect the job outcome.
type Notifier struct {
	client       *http.Client
	assetBaseURL string
	logger       *slog.Logger
}

// Config configures a Notifier.
type Config struct {
	// AssetBaseURL prefixes artifact download URLs,
	// e.g. https://ocrhub.example.com/assets.
	AssetBaseURL string

	// Timeout bounds one delivery attempt. Defaults to 3 seconds.
	Timeout time.Duration

	// HTTPClient overrides the default client. Tests only.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// New creates a Notifier.
func New(cfg Config) *Notifier {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		client:       client,
		assetBaseURL: strings.TrimSuffix(cfg.AssetBaseURL, "/"),
		logger:       logger.With("component", "webhook"),
	}
}

type payload struct {
	ID                string     `json:"id"`
	Code              string     `json:"code"`
	Name              string     `json:"name"`
	UserID            int        `json:"user_id"`
	PageCount         int        `json:"page_count"`
	PaidPageCount     int        `json:"paid_page_count"`
	Status            string     `json:"status"`
	Lang              string     `json:"lang"`
	QueuedAt          time.Time  `json:"queued_at"`
	ProcessedAt       *time.Time `json:"processed_at"`
	FinishedAt        *time.Time `json:"finished_at"`
	UserFailingReason string     `json:"user_failing_reason"`
	Deleted           int        `json:"deleted"`
	CreatedAt         time.Time  `json:"created_at"`
	CreatedBy         int        `json:"created_by"`
	Pages             []string   `json:"pages"`
	PDFURL            *string    `json:"pdf_url"`
	TxtURL            *string    `json:"txt_url"`
	DocxURL           *string    `json:"docx_url"`
}

// Notify posts the job result to the job's callback URL. Jobs without
// a callback or not submitted through the API are skipped, as are
// localhost callbacks. Errors are swallowed after logging.
func (n *Notifier) Notify(ctx context.Context, job *model.Job, pages []*model.Page) {
	if !job.FromAPI || job.Callback == "" {
		return
	}

	logger := n.logger.With("job_id", job.ID, "callback", job.Callback)

	u, err := url.Parse(job.Callback)
	if err != nil {
		logger.Warn("invalid callback url", "error", err)
		return
	}
	if strings.EqualFold(u.Hostname(), "localhost") {
		logger.Debug("skipping localhost callback")
		return
	}

	body, err := json.Marshal(n.buildPayload(job, pages))
	if err != nil {
		logger.Error("encode webhook payload", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		logger.Warn("build webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		logger.Warn("webhook delivery failed", "error", err)
		return
	}
	defer resp.Body.Close()

	logger.Info("webhook delivered", "status_code", resp.StatusCode)
}

func (n *Notifier) buildPayload(job *model.Job, pages []*model.Page) payload {
	p := payload{
		ID:                job.ID,
		Code:              job.Code,
		Name:              job.Name,
		UserID:            job.UserID,
		PageCount:         job.PageCount,
		PaidPageCount:     job.PaidPageCount,
		Status:            job.Status,
		Lang:              job.Lang,
		QueuedAt:          job.QueuedAt,
		ProcessedAt:       job.ProcessedAt,
		FinishedAt:        job.FinishedAt,
		UserFailingReason: job.UserFailingReason,
		CreatedAt:         job.CreatedAt,
		CreatedBy:         job.CreatedBy,
		Pages:             []string{},
	}
	if job.Deleted {
		p.Deleted = 1
	}

	if job.Status == model.StatusCompleted {
		for _, page := range pages {
			p.Pages = append(p.Pages, page.Text)
		}
		p.PDFURL = n.assetURL(job, "result.pdf")
		p.TxtURL = n.assetURL(job, "result.txt")
		p.DocxURL = n.assetURL(job, "result.docx")
	}
	return p
}

func (n *Notifier) assetURL(job *model.Job, name string) *string {
	u := fmt.Sprintf("%s/done/%d/%s/%s", n.assetBaseURL, job.UserID, job.ID, name)
	return &u
}
