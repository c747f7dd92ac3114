package ingest

import (
	"context"
	"time"

	"github.com/JustinTDCT/CineHub/internal/models"
)

type ItemStatus int

const (
	ItemReconciled ItemStatus = iota
	ItemSkipped
	ItemFailed
)

func (s ItemStatus) String() string {
	switch s {
	case ItemReconciled:
		return "reconciled"
	case ItemSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// ItemResult is the outcome of one external record.
type ItemResult struct {
	ExternalID int
	Page       int
	Status     ItemStatus
	MediaID    string
	Err        error
}

const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
)

type Report struct {
	RunID          string
	Kind           models.MediaType
	PagesRequested int
	PagesCompleted int
	PageFailures   int
	Reconciled     int
	Skipped        int
	Failed         int
	Items          []ItemResult
	State          string
	Error          string
	StartedAt      time.Time
	FinishedAt     time.Time
}

func (r *Report) add(res ItemResult) {
	r.Items = append(r.Items, res)
	switch res.Status {
	case ItemReconciled:
		r.Reconciled++
	case ItemSkipped:
		r.Skipped++
	case ItemFailed:
		r.Failed++
	}
}

func (r *Report) progress(page int) Progress {
	state := r.State
	if state == "" {
		state = StateRunning
	}
	return Progress{
		RunID:      r.RunID,
		Kind:       r.Kind,
		Page:       page,
		Pages:      r.PagesRequested,
		Reconciled: r.Reconciled,
		Skipped:    r.Skipped,
		Failed:     r.Failed,
		State:      state,
		Error:      r.Error,
		UpdatedAt:  time.Now(),
	}
}

// Progress is a point-in-time snapshot of a run.
type Progress struct {
	RunID      string           `json:"run_id"`
	Kind       models.MediaType `json:"kind"`
	Page       int              `json:"page"`
	Pages      int              `json:"pages"`
	Reconciled int              `json:"reconciled"`
	Skipped    int              `json:"skipped"`
	Failed     int              `json:"failed"`
	State      string           `json:"state"`
	Error      string           `json:"error,omitempty"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Percent is the share of requested pages processed so far.
func (p Progress) Percent() int {
	if p.Pages <= 0 {
		return 0
	}
	if p.State != StateRunning {
		return 100
	}
	return p.Page * 100 / p.Pages
}

// ProgressSink receives progress after every page and once at the end.
type ProgressSink interface {
	Report(ctx context.Context, p Progress)
}

// MultiSink fans progress out to several sinks.
type MultiSink []ProgressSink

func (m MultiSink) Report(ctx context.Context, p Progress) {
	for _, s := range m {
		if s != nil {
			s.Report(ctx, p)
		}
	}
}
