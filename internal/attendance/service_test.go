package attendance

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"guardattend/internal/metrics"
)

type mockLocator struct{ mock.Mock }

func (m *mockLocator) Locate(ctx context.Context) (float64, float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Get(1).(float64), args.Error(2)
}

type mockGeocoder struct{ mock.Mock }

func (m *mockGeocoder) Reverse(ctx context.Context, lat, lon string) (string, string) {
	args := m.Called(ctx, lat, lon)
	return args.String(0), args.String(1)
}

func TestCapture_Validate(t *testing.T) {
	assert.NoError(t, Capture{UserID: "u", Action: ActionLoginPhoto}.Validate())
	assert.NoError(t, Capture{UserID: "u", Action: ActionQRStart, QRPayload: "QR_START"}.Validate())
	assert.ErrorIs(t, Capture{UserID: "u", Action: ActionQREnd, QRPayload: "  "}.Validate(), ErrEmptyPayload)
	assert.ErrorIs(t, Capture{UserID: "u", Action: "CHECKIN"}.Validate(), ErrUnknownAction)
	assert.Error(t, Capture{Action: ActionLoginPhoto}.Validate())
}

func TestRecord_ClientCoordinatesAreManual(t *testing.T) {
	ctx := context.Background()
	repo, mem := newRepo(t)
	loc := new(mockLocator)
	gc := new(mockGeocoder)
	gc.On("Reverse", ctx, "47.365590", "8.524997").Return("Zurich", "8004")
	m := metrics.Nop()

	svc := NewService(repo, loc, gc, 11, m, nil)
	id, err := svc.Record(ctx, Capture{
		UserID:    "guard1",
		Action:    ActionQRStart,
		QRPayload: "QR_START",
		Latitude:  "47.365590",
		Longitude: "8.524997",
	})
	require.NoError(t, err)
	assert.Equal(t, "1", id)
	loc.AssertNotCalled(t, "Locate", mock.Anything)

	recs, err := NewRepository(mem, nil).Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, SourceManual, rec.LocationSource)
	assert.Equal(t, "Zurich", rec.Address)
	assert.Equal(t, "8004", rec.Pincode)
	assert.Contains(t, rec.PlusCode, "8FVC9G8F+")
	assert.Equal(t, "QR_START", rec.QRPayload)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Captures.WithLabelValues(ActionQRStart, SourceManual)))
}

func TestRecord_IPLocation(t *testing.T) {
	ctx := context.Background()
	repo, mem := newRepo(t)
	loc := new(mockLocator)
	loc.On("Locate", ctx).Return(12.9716, 77.5946, nil)
	gc := new(mockGeocoder)
	gc.On("Reverse", ctx, "12.9716", "77.5946").Return("", "")

	_, err := NewService(repo, loc, gc, 0, nil, nil).Record(ctx, Capture{
		UserID:    "guard1",
		Action:    ActionLoginPhoto,
		PhotoPath: "data/photos/guard1.jpg",
	})
	require.NoError(t, err)

	recs, err := NewRepository(mem, nil).Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, SourceIP, recs[0].LocationSource)
	assert.Equal(t, "12.9716", recs[0].Latitude)
	assert.Equal(t, "77.5946", recs[0].Longitude)
	assert.NotEmpty(t, recs[0].PlusCode)
	assert.Equal(t, "data/photos/guard1.jpg", recs[0].PhotoPath)
}

func TestRecord_NoLocation(t *testing.T) {
	ctx := context.Background()
	repo, mem := newRepo(t)
	loc := new(mockLocator)
	loc.On("Locate", ctx).Return(0.0, 0.0, errors.New("offline"))
	gc := new(mockGeocoder)

	_, err := NewService(repo, loc, gc, 11, nil, nil).Record(ctx, Capture{
		UserID: "guard1", Action: ActionQREnd, QRPayload: "QR_END",
	})
	require.NoError(t, err)
	gc.AssertNotCalled(t, "Reverse", mock.Anything, mock.Anything, mock.Anything)

	recs, err := NewRepository(mem, nil).Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, SourceManual, recs[0].LocationSource)
	assert.Empty(t, recs[0].Latitude)
	assert.Empty(t, recs[0].PlusCode)
	assert.Empty(t, recs[0].Address)
}

func TestRecord_EmptyPayloadNeverAppends(t *testing.T) {
	ctx := context.Background()
	repo, mem := newRepo(t)

	_, err := NewService(repo, nil, nil, 11, nil, nil).Record(ctx, Capture{UserID: "g", Action: ActionQRStart})
	assert.ErrorIs(t, err, ErrEmptyPayload)

	recs, err := NewRepository(mem, nil).Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}
