// Package model holds the core data types shared by the job pipeline,
// storage layer, and webhook notifier.
package model

import (
	"strings"
	"time"
)

// Job status values. Transitions are monotonic:
// queued -> processing -> completed | failed.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Payment mediums for ledger entries.
const (
	PaymentMediumBalance = 1 // internal page balance
	PaymentMediumFastPay = 2 // external payment provider
)

// Ledger entry types.
const (
	TransactionTypeRecharge = 1
	TransactionTypeOCRJob   = 2
)

// Job is one OCR job submitted by a user. A job owns a collection of
// pages for the duration of a single run.
type Job struct {
	ID                string
	Code              string
	Name              string
	UserID            int
	PageCount         int
	PaidPageCount     int
	Status            string
	Lang              string
	Callback          string
	FromAPI           bool
	QueuedAt          time.Time
	ProcessedAt       *time.Time
	FinishedAt        *time.Time
	FailingReason     string
	UserFailingReason string
	Deleted           bool
	CreatedAt         time.Time
	CreatedBy         int
}

// HasFinished reports whether the job reached a terminal status.
// Finished jobs are never reprocessed.
func (j *Job) HasFinished() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Languages returns the job's requested language codes. The lang column
// stores a comma-separated list.
func (j *Job) Languages() []string {
	if j.Lang == "" {
		return nil
	}
	parts := strings.Split(j.Lang, ",")
	langs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			langs = append(langs, p)
		}
	}
	return langs
}

// Page is a single source image of a job and its recognition outputs.
// Pages are created once at job start and immutable once inserted.
type Page struct {
	ID           string
	Name         string
	JobID        string
	UserID       int
	FullPath     string
	Text         string // recognized plain text, or tool diagnostics on failure
	Hocr         string
	PDF          []byte
	Succeeded    bool
	Processed    bool
	IsFree       bool
	PredictSizes bool
	StartedAt    time.Time
	FinishedAt   time.Time
	Deleted      bool
	CreatedAt    time.Time
	CreatedBy    int
}

// User is the owner of jobs and ledger entries. Balance is derived from
// the ledger, never stored on the user row.
type User struct {
	ID      int
	Name    string
	Email   string
	Phone   string
	Balance int
}

// NormalizePhone canonicalizes an Iraqi mobile number to +964 form.
// Used to match payment-provider senders against registered users.
func NormalizePhone(phone string) string {
	phone = strings.ReplaceAll(phone, " ", "")
	if phone == "" {
		return phone
	}
	switch {
	case strings.HasPrefix(phone, "+964"):
		return phone
	case strings.HasPrefix(phone, "964"):
		return "+" + phone
	case strings.HasPrefix(phone, "0"):
		return "+964" + phone[1:]
	default:
		return "+964" + phone
	}
}

// UserTransaction is an immutable ledger entry. A user's balance is the
// sum of PageCount over confirmed entries; rows are only ever appended.
type UserTransaction struct {
	ID              int64
	UserID          int
	PageCount       int      // signed: recharges positive, charges negative
	Amount          *float64 // optional monetary amount
	PaymentMediumID int
	TypeID          int
	Confirmed       bool
	TransactionID   string // external provider transaction id, recharges only
	AdminNote       string
	CreatedAt       time.Time
	CreatedBy       int
}
