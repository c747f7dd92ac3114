package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/JustinTDCT/CineHub/internal/logger"
	"github.com/JustinTDCT/CineHub/internal/models"
)

// OnIngestDue is called for each media kind when a scheduled ingestion is due.
type OnIngestDue func(kind models.MediaType)

// Scheduler triggers catalog ingestion on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	callback OnIngestDue
	kinds    []models.MediaType
}

// New parses spec as a standard five-field cron expression (descriptors like
// "@daily" are accepted too).
func New(spec string, cb OnIngestDue) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse ingest schedule %q: %w", spec, err)
	}
	s := &Scheduler{
		cron:     cron.New(),
		schedule: schedule,
		callback: cb,
		kinds:    []models.MediaType{models.MediaTypeShow, models.MediaTypeMovie},
	}
	s.cron.Schedule(schedule, cron.FuncJob(s.fire))
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("ingest scheduler started", "next_run", s.Next(time.Now()))
}

// Stop halts the schedule and waits for a running trigger to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("ingest scheduler stopped")
}

// Next reports the first scheduled run after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

func (s *Scheduler) fire() {
	for _, kind := range s.kinds {
		logger.Info("scheduled ingestion due", "kind", kind)
		s.callback(kind)
	}
}
