// Package geo resolves where a capture happened: the device's approximate
// position from its public IP, a street address and postal code for a
// coordinate pair, and the Open Location Code for that pair.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNoLocation is returned by Locate when no position could be determined.
var ErrNoLocation = errors.New("location unavailable")

const (
	defaultIPURL        = "https://ipinfo.io/json"
	defaultGoogleURL    = "https://maps.googleapis.com/maps/api/geocode/json"
	defaultNominatimURL = "https://nominatim.openstreetmap.org/reverse"
)

// Client calls the public geolocation and geocoding services.
type Client struct {
	HTTP *http.Client

	IPURL        string
	GoogleURL    string
	NominatimURL string

	// GoogleKey enables Google geocoding; Nominatim is used without it
	// and whenever Google yields nothing.
	GoogleKey string
	UserAgent string

	log *zap.Logger
}

// New creates a client with the given request timeout.
func New(googleKey, userAgent string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		HTTP:         &http.Client{Timeout: timeout},
		IPURL:        defaultIPURL,
		GoogleURL:    defaultGoogleURL,
		NominatimURL: defaultNominatimURL,
		GoogleKey:    googleKey,
		UserAgent:    userAgent,
		log:          log,
	}
}

// Locate returns the approximate position of this host's public IP.
func (c *Client) Locate(ctx context.Context) (float64, float64, error) {
	var out struct {
		Loc string `json:"loc"`
	}
	if err := c.getJSON(ctx, c.IPURL, nil, &out); err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrNoLocation, err)
	}
	lat, lon, ok := strings.Cut(out.Loc, ",")
	if !ok {
		return 0, 0, fmt.Errorf("%w: malformed loc %q", ErrNoLocation, out.Loc)
	}
	la, err1 := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	lo, err2 := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err := errors.Join(err1, err2); err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrNoLocation, err)
	}
	return la, lo, nil
}

// Reverse returns the address and postal code for a coordinate pair.
// Lookup failures are logged and yield empty strings.
func (c *Client) Reverse(ctx context.Context, lat, lon string) (string, string) {
	if lat == "" || lon == "" {
		return "", ""
	}
	if c.GoogleKey != "" {
		addr, pin, err := c.reverseGoogle(ctx, lat, lon)
		if err != nil {
			c.log.Debug("google geocoding failed", zap.Error(err))
		}
		if addr != "" {
			return addr, pin
		}
	}
	addr, pin, err := c.reverseNominatim(ctx, lat, lon)
	if err != nil {
		c.log.Warn("reverse geocoding failed",
			zap.String("lat", lat), zap.String("lon", lon), zap.Error(err))
		return "", ""
	}
	return addr, pin
}

func (c *Client) reverseGoogle(ctx context.Context, lat, lon string) (string, string, error) {
	q := url.Values{}
	q.Set("latlng", lat+","+lon)
	q.Set("key", c.GoogleKey)

	var out struct {
		Status  string `json:"status"`
		Results []struct {
			FormattedAddress  string `json:"formatted_address"`
			AddressComponents []struct {
				LongName string   `json:"long_name"`
				Types    []string `json:"types"`
			} `json:"address_components"`
		} `json:"results"`
	}
	if err := c.getJSON(ctx, c.GoogleURL, q, &out); err != nil {
		return "", "", err
	}
	if out.Status != "OK" || len(out.Results) == 0 {
		return "", "", fmt.Errorf("google geocoding status %q", out.Status)
	}
	res := out.Results[0]
	for _, comp := range res.AddressComponents {
		for _, t := range comp.Types {
			if t == "postal_code" {
				return res.FormattedAddress, comp.LongName, nil
			}
		}
	}
	return res.FormattedAddress, "", nil
}

func (c *Client) reverseNominatim(ctx context.Context, lat, lon string) (string, string, error) {
	q := url.Values{}
	q.Set("lat", lat)
	q.Set("lon", lon)
	q.Set("format", "json")
	q.Set("addressdetails", "1")

	var out struct {
		DisplayName string `json:"display_name"`
		Address     struct {
			Postcode string `json:"postcode"`
		} `json:"address"`
	}
	if err := c.getJSON(ctx, c.NominatimURL, q, &out); err != nil {
		return "", "", err
	}
	return out.DisplayName, out.Address.Postcode, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, q url.Values, dst any) error {
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("geo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("geo service error %s: %s", resp.Status, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
