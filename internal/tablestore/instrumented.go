package tablestore

import (
	"context"
	"time"

	"go.uber.org/zap"

	"guardattend/internal/metrics"
)

// Instrumented records metrics and debug logs for every backend call.
type Instrumented struct {
	next    Backend
	metrics *metrics.Collectors
	log     *zap.Logger
}

// Instrument wraps next.
func Instrument(next Backend, m *metrics.Collectors, log *zap.Logger) *Instrumented {
	if m == nil {
		m = metrics.Nop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Instrumented{next: next, metrics: m, log: log}
}

func (i *Instrumented) Initialize(ctx context.Context, t Table) error {
	start := time.Now()
	err := i.next.Initialize(ctx, t)
	i.observe(t, "initialize", start, -1, err)
	return err
}

func (i *Instrumented) Load(ctx context.Context, t Table) ([]Row, error) {
	start := time.Now()
	rows, err := i.next.Load(ctx, t)
	i.observe(t, "load", start, len(rows), err)
	return rows, err
}

func (i *Instrumented) Save(ctx context.Context, t Table, rows []Row) error {
	start := time.Now()
	err := i.next.Save(ctx, t, rows)
	i.observe(t, "save", start, len(rows), err)
	return err
}

func (i *Instrumented) observe(t Table, op string, start time.Time, n int, err error) {
	elapsed := time.Since(start)
	i.metrics.StoreLatency.WithLabelValues(t.Name, op).Observe(elapsed.Seconds())
	result := "ok"
	if err != nil {
		result = "error"
		i.log.Warn("store operation failed",
			zap.String("table", t.Name), zap.String("op", op), zap.Error(err))
	} else {
		i.log.Debug("store operation",
			zap.String("table", t.Name), zap.String("op", op),
			zap.Int("rows", n), zap.Duration("elapsed", elapsed))
	}
	i.metrics.StoreOps.WithLabelValues(t.Name, op, result).Inc()
}
