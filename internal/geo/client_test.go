package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	olc "github.com/google/open-location-code/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New("", "GuardTest/1.0", 2*time.Second, nil)
	c.IPURL = srv.URL + "/ip"
	c.GoogleURL = srv.URL + "/google"
	c.NominatimURL = srv.URL + "/osm"
	return c, srv
}

func TestLocate(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ip":"203.0.113.9","loc":"12.9716,77.5946"}`))
	}))

	lat, lon, err := c.Locate(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 12.9716, lat, 1e-9)
	assert.InDelta(t, 77.5946, lon, 1e-9)
}

func TestLocate_Failures(t *testing.T) {
	for name, h := range map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) },
		"no loc": func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{}`)) },
		"bad loc": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"loc":"north,east"}`))
		},
	} {
		t.Run(name, func(t *testing.T) {
			c, _ := newTestClient(t, h)
			_, _, err := c.Locate(context.Background())
			assert.ErrorIs(t, err, ErrNoLocation)
		})
	}
}

func TestReverse_Nominatim(t *testing.T) {
	var gotUA, gotQuery string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/osm", r.URL.Path)
		gotUA, gotQuery = r.UserAgent(), r.URL.RawQuery
		_, _ = w.Write([]byte(`{"display_name":"MG Road, Bengaluru","address":{"postcode":"560001"}}`))
	}))

	addr, pin := c.Reverse(context.Background(), "12.97", "77.59")
	assert.Equal(t, "MG Road, Bengaluru", addr)
	assert.Equal(t, "560001", pin)
	assert.Equal(t, "GuardTest/1.0", gotUA)
	assert.Contains(t, gotQuery, "addressdetails=1")
	assert.Contains(t, gotQuery, "lat=12.97")
}

func TestReverse_GoogleFirst(t *testing.T) {
	var osmCalled bool
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/google":
			assert.Equal(t, "k1", r.URL.Query().Get("key"))
			assert.Equal(t, "12.97,77.59", r.URL.Query().Get("latlng"))
			_, _ = w.Write([]byte(`{"status":"OK","results":[{"formatted_address":"1 MG Rd",
				"address_components":[{"long_name":"KA","types":["administrative_area_level_1"]},
				{"long_name":"560001","types":["postal_code"]}]}]}`))
		default:
			osmCalled = true
		}
	}))
	c.GoogleKey = "k1"

	addr, pin := c.Reverse(context.Background(), "12.97", "77.59")
	assert.Equal(t, "1 MG Rd", addr)
	assert.Equal(t, "560001", pin)
	assert.False(t, osmCalled)
}

func TestReverse_GoogleFallsBackToNominatim(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/google" {
			_, _ = w.Write([]byte(`{"status":"REQUEST_DENIED","results":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"display_name":"fallback","address":{}}`))
	}))
	c.GoogleKey = "k1"

	addr, pin := c.Reverse(context.Background(), "1", "2")
	assert.Equal(t, "fallback", addr)
	assert.Empty(t, pin)
}

func TestReverse_FailureYieldsEmpty(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	addr, pin := c.Reverse(context.Background(), "1", "2")
	assert.Empty(t, addr)
	assert.Empty(t, pin)
}

func TestReverse_EmptyCoordinatesSkipLookup(t *testing.T) {
	var called bool
	c, _ := newTestClient(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	addr, pin := c.Reverse(context.Background(), "", "77.59")
	assert.Empty(t, addr)
	assert.Empty(t, pin)
	assert.False(t, called)
}

func TestPlusCode(t *testing.T) {
	code := PlusCode("47.365590", "8.524997", DefaultPlusCodeLength)
	require.NoError(t, olc.CheckFull(code))
	assert.Len(t, strings.ReplaceAll(code, "+", ""), DefaultPlusCodeLength)
	assert.True(t, strings.HasPrefix(code, "8FVC9G8F+"), code)

	assert.Empty(t, PlusCode("", "8.5", 11))
	assert.Empty(t, PlusCode("north", "8.5", 11))
	assert.Empty(t, PlusCode("NaN", "8.5", 11))
	assert.Empty(t, PlusCode("47.3", "8.5", 7))
}
