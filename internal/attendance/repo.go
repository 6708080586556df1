package attendance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"guardattend/internal/identity"
	"guardattend/internal/tablestore"
)

// TimestampLayout is the stored timestamp format, local time.
const TimestampLayout = "2006-01-02 15:04:05"

// Event actions. The store does not restrict action to this set.
const (
	ActionLoginPhoto = "LOGIN_PHOTO"
	ActionQRStart    = "QR_START"
	ActionQREnd      = "QR_END"
)

// Location sources.
const (
	SourceIP     = "ip"
	SourceManual = "manual"
)

// ErrInvalidFilter is returned when a query date bound or a stored
// timestamp cannot be parsed.
var ErrInvalidFilter = errors.New("invalid filter")

// Record is one stored attendance event.
type Record struct {
	RecordID       string `json:"record_id"`
	UserID         string `json:"user_id"`
	Timestamp      string `json:"timestamp"`
	Latitude       string `json:"latitude"`
	Longitude      string `json:"longitude"`
	Address        string `json:"address"`
	Pincode        string `json:"pincode"`
	PlusCode       string `json:"plus_code"`
	PhotoPath      string `json:"photo_path"`
	Action         string `json:"action"`
	LocationSource string `json:"location_source"`
	QRPayload      string `json:"qr_payload"`
}

// Entry holds the caller-supplied fields of a new event. The record id and
// timestamp are always assigned by the repository.
type Entry struct {
	UserID         string
	Latitude       string
	Longitude      string
	Address        string
	Pincode        string
	PlusCode       string
	PhotoPath      string
	Action         string
	LocationSource string
	QRPayload      string
}

// Filter selects records in Query. Zero-value fields do not filter.
type Filter struct {
	// UserID matches as a case-insensitive substring.
	UserID string
	// DateFrom and DateTo are inclusive bounds parsed as date-times.
	DateFrom string
	DateTo   string
	// Action matches exactly.
	Action string
}

// Repository manages the append-only attendance table. Every call reloads
// the full table; nothing is kept between calls. Appends through one
// Repository are serialized; writers in other processes are not.
type Repository struct {
	backend tablestore.Backend
	now     func() time.Time
	log     *zap.Logger

	// mu is held from Load to Save in Append.
	mu sync.Mutex
}

// NewRepository creates a repo.
func NewRepository(backend tablestore.Backend, log *zap.Logger) *Repository {
	if log == nil {
		log = zap.NewNop()
	}
	return &Repository{backend: backend, now: time.Now, log: log}
}

// WithClock replaces the time source used for record timestamps.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

// Init creates the attendance table if it does not exist.
func (r *Repository) Init(ctx context.Context) error {
	return r.backend.Initialize(ctx, tablestore.Attendance)
}

// Append stores a new event and returns its record id.
func (r *Repository) Append(ctx context.Context, e Entry) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.backend.Load(ctx, tablestore.Attendance)
	if err != nil {
		return "", err
	}

	next, err := nextRecordID(rows)
	if err != nil {
		// Known collision risk: a non-empty table restarts at 1 here.
		r.log.Warn("record id computation failed, falling back to 1",
			zap.Int("rows", len(rows)), zap.Error(err))
		next = 1
	}

	rec := Record{
		RecordID:       strconv.FormatInt(next, 10),
		UserID:         identity.Clean(e.UserID),
		Timestamp:      r.now().Format(TimestampLayout),
		Latitude:       e.Latitude,
		Longitude:      e.Longitude,
		Address:        e.Address,
		Pincode:        e.Pincode,
		PlusCode:       e.PlusCode,
		PhotoPath:      e.PhotoPath,
		Action:         e.Action,
		LocationSource: e.LocationSource,
		QRPayload:      e.QRPayload,
	}
	rows = append(rows, toRow(rec))
	if err := r.backend.Save(ctx, tablestore.Attendance, rows); err != nil {
		return "", err
	}

	r.log.Info("attendance recorded",
		zap.String("record_id", rec.RecordID),
		zap.String("user_id", rec.UserID),
		zap.String("action", rec.Action))
	return rec.RecordID, nil
}

// Query returns the records matching every set field of f, in table order.
func (r *Repository) Query(ctx context.Context, f Filter) ([]Record, error) {
	rows, err := r.backend.Load(ctx, tablestore.Attendance)
	if err != nil {
		return nil, err
	}

	var from, to time.Time
	if f.DateFrom != "" {
		if from, err = ParseTimestamp(f.DateFrom); err != nil {
			return nil, fmt.Errorf("%w: date_from: %w", ErrInvalidFilter, err)
		}
	}
	if f.DateTo != "" {
		if to, err = ParseTimestamp(f.DateTo); err != nil {
			return nil, fmt.Errorf("%w: date_to: %w", ErrInvalidFilter, err)
		}
	}

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := fromRow(row)
		if f.UserID != "" && !identity.ContainsFold(rec.UserID, f.UserID) {
			continue
		}
		if f.DateFrom != "" || f.DateTo != "" {
			// An empty stored timestamp never satisfies a bound.
			if rec.Timestamp == "" {
				continue
			}
			ts, err := ParseTimestamp(rec.Timestamp)
			if err != nil {
				return nil, fmt.Errorf("%w: record %s timestamp: %w", ErrInvalidFilter, rec.RecordID, err)
			}
			if f.DateFrom != "" && ts.Before(from) {
				continue
			}
			if f.DateTo != "" && ts.After(to) {
				continue
			}
		}
		if f.Action != "" && rec.Action != f.Action {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

var timestampLayouts = []string{
	TimestampLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses s in local time. Besides the stored layout it
// accepts ISO "T" separators, minute precision and bare dates (midnight).
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date-time %q", s)
}

var errIDOverflow = errors.New("record id out of range")

// nextRecordID returns one past the largest parseable record id, or 1 when
// no id parses. Unparseable ids are skipped; an id that parses as a number
// but does not fit an int64 is an error.
func nextRecordID(rows []tablestore.Row) (int64, error) {
	var (
		max   int64
		found bool
	)
	for _, row := range rows {
		v, ok, err := parseID(row[0])
		if err != nil {
			return 0, err
		}
		if ok && (!found || v > max) {
			max, found = v, true
		}
	}
	if !found {
		return 1, nil
	}
	if max == math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d", errIDOverflow, max)
	}
	return max + 1, nil
}

// parseID accepts integers and decimal forms such as "3.0", which
// spreadsheets produce when a cell was once numeric. Fractions are floored.
func parseID(s string) (int64, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	switch {
	case errors.Is(err, strconv.ErrRange):
		return 0, false, fmt.Errorf("%w: %q", errIDOverflow, s)
	case err != nil, math.IsNaN(f):
		return 0, false, nil
	}
	f = math.Floor(f)
	if math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false, fmt.Errorf("%w: %q", errIDOverflow, s)
	}
	return int64(f), true, nil
}

func toRow(r Record) tablestore.Row {
	return tablestore.Row{
		r.RecordID, r.UserID, r.Timestamp,
		r.Latitude, r.Longitude, r.Address, r.Pincode, r.PlusCode,
		r.PhotoPath, r.Action, r.LocationSource, r.QRPayload,
	}
}

func fromRow(row tablestore.Row) Record {
	return Record{
		RecordID:       row[0],
		UserID:         row[1],
		Timestamp:      row[2],
		Latitude:       row[3],
		Longitude:      row[4],
		Address:        row[5],
		Pincode:        row[6],
		PlusCode:       row[7],
		PhotoPath:      row[8],
		Action:         row[9],
		LocationSource: row[10],
		QRPayload:      row[11],
	}
}
