package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sunscout/installer-cli/internal/ratelimit"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testLimiter() *ratelimit.Limiter {
	return ratelimit.New(map[string]time.Duration{ratelimit.ServiceGeocode: time.Millisecond})
}

func TestResolve_Match(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Austin, TX", r.URL.Query().Get("q"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat": "30.2672", "lon": "-97.7431", "display_name": "Austin, Travis County, Texas"}]`))
	}))
	defer srv.Close()

	c := NewNominatim(testLimiter(), WithBaseURL(srv.URL))
	got, err := c.Resolve(context.Background(), "Austin, TX")
	require.NoError(t, err)
	assert.True(t, got.Matched)
	assert.Equal(t, 30.2672, got.Latitude)
	assert.Equal(t, -97.7431, got.Longitude)
	assert.Contains(t, got.DisplayName, "Austin")
}

func TestResolve_NoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewNominatim(testLimiter(), WithBaseURL(srv.URL))
	got, err := c.Resolve(context.Background(), "nowhere at all")
	require.NoError(t, err)
	assert.False(t, got.Matched)
}

func TestResolve_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewNominatim(testLimiter(), WithBaseURL(srv.URL))
	_, err := c.Resolve(context.Background(), "Austin, TX")
	assert.Error(t, err)
}

func TestResolve_BadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewNominatim(testLimiter(), WithBaseURL(srv.URL))
	_, err := c.Resolve(context.Background(), "Austin, TX")
	assert.Error(t, err)
}
