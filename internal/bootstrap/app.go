// Package bootstrap assembles the components shared by the API, the worker
// and the CLI from one configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"guardattend/internal/attendance"
	"guardattend/internal/config"
	"guardattend/internal/geo"
	"guardattend/internal/metrics"
	"guardattend/internal/photos"
	"guardattend/internal/queue"
	"guardattend/internal/store"
	"guardattend/internal/tablestore"
	"guardattend/internal/users"
)

// App holds the wired components.
type App struct {
	Config   config.App
	Log      *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Collectors

	Backend    tablestore.Backend
	Users      *users.Repository
	Attendance *attendance.Repository
	Captures   *attendance.Service
	Photos     photos.Store
	Geo        *geo.Client

	closers []func() error
}

// New creates the data directories, opens the record store, initializes
// both tables and builds the services on top.
func New(ctx context.Context, cfg config.App, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	if err := EnsureDirs(cfg); err != nil {
		return nil, err
	}

	backend, closeStore, err := store.OpenBackend(ctx, cfg, m, log)
	if err != nil {
		return nil, err
	}
	app := &App{
		Config:   cfg,
		Log:      log,
		Registry: reg,
		Metrics:  m,
		Backend:  backend,
		closers:  []func() error{closeStore},
	}

	app.Users = users.NewRepository(backend, log.Named("users"))
	app.Attendance = attendance.NewRepository(backend, log.Named("attendance"))
	if err := app.Users.Init(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("init users table: %w", err)
	}
	if err := app.Attendance.Init(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("init attendance table: %w", err)
	}

	app.Photos, err = OpenPhotos(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Geo = geo.New(cfg.GoogleMapsAPIKey, cfg.GeoUserAgent, cfg.GeoTimeout, log.Named("geo"))
	app.Captures = attendance.NewService(app.Attendance, app.Geo, app.Geo, cfg.PlusCodeLength, m, log.Named("captures"))
	return app, nil
}

// EnsureDirs creates the data, photo and QR directories.
func EnsureDirs(cfg config.App) error {
	for _, dir := range []string{cfg.DataDir, cfg.PhotoDir(), cfg.QRDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// OpenPhotos returns the photo store selected by PHOTO_BACKEND.
func OpenPhotos(ctx context.Context, cfg config.App) (photos.Store, error) {
	switch cfg.PhotoBackend {
	case "s3":
		return photos.NewS3(ctx, cfg.S3Bucket, cfg.S3Prefix)
	case "cloudinary":
		return photos.NewCloudinary(cfg.CloudinaryURL)
	default:
		return photos.NewLocal(cfg.PhotoDir()), nil
	}
}

// OpenQueue returns the capture queue and, for the redis backend, the
// client so callers can health-check it.
func (a *App) OpenQueue() (queue.Queue, *store.Redis) {
	if a.Config.QueueBackend == "redis" {
		r := store.NewRedis(a.Config.RedisAddr, a.Config.RedisPassword)
		a.closers = append(a.closers, r.Close)
		return queue.NewRedisQueue(r.Client, a.Config.QueueKey, a.Log.Named("queue")), r
	}
	return queue.NewInMemory(256), nil
}

// Close releases store and queue connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
