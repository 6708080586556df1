package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"guardattend/internal/geo"
	"guardattend/internal/metrics"
)

var (
	// ErrEmptyPayload rejects a QR capture without a decoded payload.
	ErrEmptyPayload = errors.New("qr payload is empty")
	// ErrUnknownAction rejects a capture whose action is not a known event.
	ErrUnknownAction = errors.New("unknown action")
)

// Capture is a guard's raw attendance event before location resolution.
// It is also the body of a queued capture job.
type Capture struct {
	JobID     string `json:"job_id"`
	UserID    string `json:"user_id"`
	Action    string `json:"action"`
	PhotoPath string `json:"photo_path,omitempty"`
	QRPayload string `json:"qr_payload,omitempty"`
	// Latitude and Longitude are set when the client supplied a position.
	Latitude  string `json:"latitude,omitempty"`
	Longitude string `json:"longitude,omitempty"`
}

// Validate checks the fields a capture must carry before it is queued.
func (c Capture) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return errors.New("user id required")
	}
	switch c.Action {
	case ActionLoginPhoto:
	case ActionQRStart, ActionQREnd:
		if strings.TrimSpace(c.QRPayload) == "" {
			return ErrEmptyPayload
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, c.Action)
	}
	return nil
}

// Locator finds the device position when the client did not send one.
type Locator interface {
	Locate(ctx context.Context) (lat, lon float64, err error)
}

// Geocoder turns a position into an address and postal code. It never
// fails; unknown positions yield empty strings.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon string) (address, pincode string)
}

// Service resolves location for captures and appends them to the
// attendance table.
type Service struct {
	repo        *Repository
	locator     Locator
	geocoder    Geocoder
	plusCodeLen int
	metrics     *metrics.Collectors
	log         *zap.Logger
}

// NewService wires a capture service. locator and geocoder may be nil, in
// which case captures without coordinates are stored without a location.
func NewService(repo *Repository, locator Locator, geocoder Geocoder, plusCodeLen int, m *metrics.Collectors, log *zap.Logger) *Service {
	if plusCodeLen == 0 {
		plusCodeLen = geo.DefaultPlusCodeLength
	}
	if m == nil {
		m = metrics.Nop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:        repo,
		locator:     locator,
		geocoder:    geocoder,
		plusCodeLen: plusCodeLen,
		metrics:     m,
		log:         log,
	}
}

// Record resolves the capture's location and appends it. It returns the
// new record id.
func (s *Service) Record(ctx context.Context, c Capture) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}

	lat, lon, source := s.position(ctx, c)
	var addr, pin string
	if s.geocoder != nil && lat != "" && lon != "" {
		addr, pin = s.geocoder.Reverse(ctx, lat, lon)
	}

	id, err := s.repo.Append(ctx, Entry{
		UserID:         c.UserID,
		Latitude:       lat,
		Longitude:      lon,
		Address:        addr,
		Pincode:        pin,
		PlusCode:       geo.PlusCode(lat, lon, s.plusCodeLen),
		PhotoPath:      c.PhotoPath,
		Action:         c.Action,
		LocationSource: source,
		QRPayload:      c.QRPayload,
	})
	if err != nil {
		return "", err
	}
	s.metrics.Captures.WithLabelValues(c.Action, source).Inc()
	return id, nil
}

// position prefers client coordinates, then the IP lookup. With neither,
// the coordinates stay empty and the source is manual.
func (s *Service) position(ctx context.Context, c Capture) (string, string, string) {
	lat, lon := strings.TrimSpace(c.Latitude), strings.TrimSpace(c.Longitude)
	if lat != "" || lon != "" {
		return lat, lon, SourceManual
	}
	if s.locator == nil {
		return "", "", SourceManual
	}
	la, lo, err := s.locator.Locate(ctx)
	if err != nil {
		s.log.Info("ip location unavailable", zap.String("job_id", c.JobID), zap.Error(err))
		return "", "", SourceManual
	}
	return geo.FormatCoord(la), geo.FormatCoord(lo), SourceIP
}
