// Package geocode resolves free-form location strings to coordinates via
// the Nominatim API.
package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sunscout/installer-cli/internal/ratelimit"
)

// DefaultBaseURL is the public Nominatim endpoint.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// Result is a resolved location. Matched is false when the service found
// nothing; that is not an error.
type Result struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	DisplayName string  `json:"display_name,omitempty"`
	Matched     bool    `json:"matched"`
}

// Client resolves location strings to coordinates.
type Client interface {
	Resolve(ctx context.Context, query string) (*Result, error)
}

// Nominatim is a rate-limited Nominatim client.
type Nominatim struct {
	baseURL   string
	http      *http.Client
	limiter   *ratelimit.Limiter
	userAgent string
}

// Option configures the Nominatim client.
type Option func(*Nominatim)

// WithBaseURL overrides the Nominatim endpoint.
func WithBaseURL(u string) Option {
	return func(n *Nominatim) {
		if u != "" {
			n.baseURL = u
		}
	}
}

// WithUserAgent overrides the identifying user agent. Nominatim's usage
// policy requires one.
func WithUserAgent(ua string) Option {
	return func(n *Nominatim) {
		if ua != "" {
			n.userAgent = ua
		}
	}
}

// NewNominatim creates a Nominatim client with the given rate limiter.
func NewNominatim(limiter *ratelimit.Limiter, opts ...Option) *Nominatim {
	n := &Nominatim{
		baseURL:   DefaultBaseURL,
		http:      &http.Client{Timeout: 10 * time.Second},
		limiter:   limiter,
		userAgent: "SunScoutBot/1.0 (+https://sunscout.dev/bot)",
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// nominatimPlace is one entry of the Nominatim search response.
type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Resolve geocodes a location string. Returns Matched=false when the
// service has no result for the query.
func (n *Nominatim) Resolve(ctx context.Context, query string) (*Result, error) {
	if err := n.limiter.Wait(ctx, ratelimit.ServiceGeocode); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit wait")
	}

	params := url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}
	reqURL := n.baseURL + "/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}

	if len(places) == 0 {
		zap.L().Debug("geocode: no match", zap.String("query", query))
		return &Result{Matched: false}, nil
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: parse lat")
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: parse lon")
	}

	return &Result{
		Latitude:    lat,
		Longitude:   lon,
		DisplayName: places[0].DisplayName,
		Matched:     true,
	}, nil
}
