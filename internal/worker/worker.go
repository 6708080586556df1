// Package worker drains capture jobs from the queue into the attendance
// table.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"guardattend/internal/attendance"
	"guardattend/internal/queue"
)

// Recorder appends a resolved capture. *attendance.Service implements it.
type Recorder interface {
	Record(ctx context.Context, c attendance.Capture) (string, error)
}

// Run consumes q until ctx is done. Each capture job is recorded once;
// failures are logged and the job is dropped.
func Run(ctx context.Context, q queue.Queue, rec Recorder, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	msgs, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	log.Info("worker started")
	for msg := range msgs {
		Handle(ctx, msg, rec, log)
	}
	log.Info("worker stopped")
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Stop shuts down an in-process queue drained by Run. It closes q so Run
// records what was already accepted and returns, waiting up to grace for
// done. After grace, cancel stops Run and the jobs still buffered are
// logged as dropped. It returns the number dropped.
func Stop(q *queue.InMemory, done <-chan struct{}, cancel context.CancelFunc, grace time.Duration, log *zap.Logger) int {
	if log == nil {
		log = zap.NewNop()
	}
	_ = q.Close()
	pending := q.Len()
	if pending > 0 {
		log.Info("draining capture jobs", zap.Int("pending", pending))
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return 0
	case <-timer.C:
	}

	cancel()
	<-done
	dropped := q.Len()
	if dropped > 0 {
		log.Warn("capture jobs dropped at shutdown", zap.Int("dropped", dropped))
	}
	return dropped
}

// Handle processes one message and reports whether a record was appended.
func Handle(ctx context.Context, msg queue.Message, rec Recorder, log *zap.Logger) bool {
	if msg.Type != queue.TypeCapture {
		log.Warn("skipping unknown job type", zap.String("job_id", msg.ID), zap.String("type", msg.Type))
		return false
	}
	var c attendance.Capture
	if err := msg.Decode(&c); err != nil {
		log.Error("malformed capture job", zap.String("job_id", msg.ID), zap.Error(err))
		return false
	}
	c.JobID = msg.ID

	id, err := rec.Record(ctx, c)
	if err != nil {
		log.Error("capture job failed",
			zap.String("job_id", c.JobID),
			zap.String("user_id", c.UserID),
			zap.String("action", c.Action),
			zap.Error(err))
		return false
	}
	log.Info("capture job recorded",
		zap.String("job_id", c.JobID), zap.String("record_id", id))
	return true
}
