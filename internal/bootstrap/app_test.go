package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"guardattend/internal/attendance"
	"guardattend/internal/config"
	"guardattend/internal/photos"
	"guardattend/internal/queue"
	"guardattend/internal/users"
)

func TestNew_MemoryStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.App{DataDir: t.TempDir(), StoreBackend: "memory", QueueBackend: "memory", PhotoBackend: "local"}

	app, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	defer app.Close()

	assert.DirExists(t, cfg.PhotoDir())
	assert.DirExists(t, cfg.QRDir())
	assert.IsType(t, &photos.Local{}, app.Photos)

	require.NoError(t, app.Users.Register(ctx, users.User{UserID: "guard1", PasswordHash: "x"}))
	id, err := app.Attendance.Append(ctx, attendance.Entry{UserID: "guard1", Action: attendance.ActionQRStart})
	require.NoError(t, err)
	assert.Equal(t, "1", id)

	q, r := app.OpenQueue()
	assert.IsType(t, &queue.InMemory{}, q)
	assert.Nil(t, r)

	families, err := app.Registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "go_goroutines")
}

func TestNew_StoreError(t *testing.T) {
	cfg := config.App{DataDir: t.TempDir(), StoreBackend: "nope"}
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestOpenQueue_Redis(t *testing.T) {
	app := &App{
		Config: config.App{QueueBackend: "redis", RedisAddr: "127.0.0.1:1", QueueKey: "k"},
		Log:    zap.NewNop(),
	}
	q, r := app.OpenQueue()
	require.NotNil(t, r)
	assert.IsType(t, &queue.RedisQueue{}, q)
	assert.NoError(t, app.Close())
}
