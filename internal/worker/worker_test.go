package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"guardattend/internal/attendance"
	"guardattend/internal/queue"
	"guardattend/internal/tablestore"
)

func newService(t *testing.T) (*attendance.Service, *attendance.Repository) {
	t.Helper()
	repo := attendance.NewRepository(tablestore.NewMemory(), nil)
	require.NoError(t, repo.Init(context.Background()))
	return attendance.NewService(repo, nil, nil, 11, nil, nil), repo
}

func TestHandle(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	log := zap.NewNop()

	good, err := queue.NewMessage(queue.TypeCapture, attendance.Capture{
		UserID: "guard1", Action: attendance.ActionQRStart, QRPayload: "QR_START",
		Latitude: "12.97", Longitude: "77.59",
	})
	require.NoError(t, err)
	assert.True(t, Handle(ctx, good, svc, log))

	empty, err := queue.NewMessage(queue.TypeCapture, attendance.Capture{UserID: "guard1", Action: attendance.ActionQREnd})
	require.NoError(t, err)
	assert.False(t, Handle(ctx, empty, svc, log))

	assert.False(t, Handle(ctx, queue.Message{ID: "x", Type: "other"}, svc, log))
	assert.False(t, Handle(ctx, queue.Message{ID: "y", Type: queue.TypeCapture, Body: []byte("{")}, svc, log))

	recs, err := repo.Query(ctx, attendance.Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "guard1", recs[0].UserID)
	assert.Equal(t, attendance.SourceManual, recs[0].LocationSource)
}

func TestRun_DrainsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc, repo := newService(t)
	q := queue.NewInMemory(8)

	for i := 0; i < 3; i++ {
		msg, err := queue.NewMessage(queue.TypeCapture, attendance.Capture{
			UserID: "guard1", Action: attendance.ActionLoginPhoto,
		})
		require.NoError(t, err)
		require.NoError(t, q.Publish(ctx, msg))
	}

	done := make(chan error, 1)
	go func() { done <- Run(ctx, q, svc, nil) }()

	require.Eventually(t, func() bool {
		recs, err := repo.Query(context.Background(), attendance.Filter{})
		return err == nil && len(recs) == 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func publishCaptures(t *testing.T, q queue.Queue, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		msg, err := queue.NewMessage(queue.TypeCapture, attendance.Capture{
			UserID: "guard1", Action: attendance.ActionQRStart, QRPayload: "SITE-A",
		})
		require.NoError(t, err)
		require.NoError(t, q.Publish(context.Background(), msg))
	}
}

func TestStop_RecordsAcceptedJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc, repo := newService(t)
	q := queue.NewInMemory(8)
	publishCaptures(t, q, 4)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Run(ctx, q, svc, nil)
	}()

	assert.Zero(t, Stop(q, done, cancel, 2*time.Second, nil))

	recs, err := repo.Query(context.Background(), attendance.Filter{})
	require.NoError(t, err)
	assert.Len(t, recs, 4)
}

func TestStop_LogsDroppedJobsAfterGrace(t *testing.T) {
	q := queue.NewInMemory(8)
	publishCaptures(t, q, 3)

	// No consumer is running, so nothing drains before the grace period ends.
	done := make(chan struct{})
	cancel := func() { close(done) }
	core, logs := observer.New(zap.WarnLevel)

	assert.Equal(t, 3, Stop(q, done, cancel, 10*time.Millisecond, zap.New(core)))
	entries := logs.FilterMessage("capture jobs dropped at shutdown").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3), entries[0].ContextMap()["dropped"])
}
