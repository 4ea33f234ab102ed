// Package queue drains the jobs table. Delivery is at least once: a job
// that fails is rescheduled with backoff until the attempt ceiling,
// then parked as failed for inspection. The idempotency layer in the
// workflow dispatcher absorbs redeliveries.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"arremate/internal/audit"
	"arremate/internal/domain"
	"arremate/internal/engine"
	"arremate/internal/repo"
	"arremate/internal/workflow"
)

type Worker struct {
	Engine       engine.Engine
	PollInterval time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
}

func NewWorker(e engine.Engine) Worker {
	w := Worker{
		Engine:       e,
		PollInterval: 2 * time.Second,
		MaxAttempts:  5,
		RetryBackoff: 5 * time.Second,
	}
	if e.Config != nil {
		w.PollInterval = e.Config.PollInterval()
		w.MaxAttempts = e.Config.JobMaxAttempts()
		w.RetryBackoff = e.Config.RetryBackoff()
	}
	return w
}

func (w Worker) now() time.Time {
	if w.Engine.Now != nil {
		return w.Engine.Now()
	}
	return time.Now()
}

// Run polls until the context is cancelled. Each tick drains every job
// that is currently due.
func (w Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()
	for {
		w.Drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Drain processes due jobs until the queue is empty.
func (w Worker) Drain(ctx context.Context) {
	for {
		processed, err := w.ProcessOne(ctx)
		if err != nil {
			log.Printf("queue: %v", err)
			return
		}
		if !processed {
			return
		}
	}
}

// ProcessOne claims and runs a single due job. It reports false when
// nothing is due.
func (w Worker) ProcessOne(ctx context.Context) (bool, error) {
	now := w.now().UTC().Format(time.RFC3339)
	j, err := w.Engine.Repo.ClaimDueJob(ctx, now)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if err := w.runJob(ctx, j); err != nil {
		w.handleFailure(ctx, j, err)
		return true, nil
	}
	if err := w.Engine.Repo.CompleteJob(ctx, j.ID, w.now().UTC().Format(time.RFC3339)); err != nil {
		return true, fmt.Errorf("complete job %s: %w", j.ID, err)
	}
	return true, nil
}

func (w Worker) runJob(ctx context.Context, j domain.Job) error {
	var payload map[string]any
	if err := json.Unmarshal([]byte(j.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	tx, err := w.Engine.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	evt := workflow.Event{
		ID:       j.ID,
		TenantID: j.TenantID,
		Type:     j.EventType,
		ActorID:  j.ActorID,
		Payload:  payload,
	}
	d := workflow.Dispatcher{Repo: w.Engine.Repo, Audit: w.Engine.Audit, Now: w.Engine.Now}
	if _, err := d.Dispatch(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit()
}

// handleFailure reschedules the job or, past the attempt ceiling, parks
// it as failed. Failed jobs are never dropped from the table.
func (w Worker) handleFailure(ctx context.Context, j domain.Job, jobErr error) {
	now := w.now().UTC()
	ts := now.Format(time.RFC3339)
	if j.Attempts < w.MaxAttempts {
		runAfter := now.Add(w.RetryBackoff).Format(time.RFC3339)
		if err := w.Engine.Repo.RetryJob(ctx, j.ID, runAfter, jobErr.Error(), ts); err != nil {
			log.Printf("queue: reschedule job %s: %v", j.ID, err)
		}
		return
	}
	if err := w.Engine.Repo.FailJob(ctx, j.ID, jobErr.Error(), ts); err != nil {
		log.Printf("queue: fail job %s: %v", j.ID, err)
		return
	}
	tx, err := w.Engine.DB.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("queue: audit job failure %s: %v", j.ID, err)
		return
	}
	defer tx.Rollback()
	err = w.Engine.Audit.Append(ctx, tx, "job.failed", j.TenantID, "job", j.ID, j.ActorID, audit.Payload{
		"event_type": j.EventType,
		"attempts":   j.Attempts,
		"error":      jobErr.Error(),
	})
	if err != nil {
		log.Printf("queue: audit job failure %s: %v", j.ID, err)
		return
	}
	if err := tx.Commit(); err != nil {
		log.Printf("queue: audit job failure %s: %v", j.ID, err)
	}
	log.Printf("queue: job %s failed permanently after %d attempts: %v", j.ID, j.Attempts, jobErr)
}
