package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sunscout/installer-cli/internal/model"
	"github.com/sunscout/installer-cli/internal/ratelimit"
	"github.com/sunscout/installer-cli/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testLimiter() *ratelimit.Limiter {
	return ratelimit.New(map[string]time.Duration{ratelimit.ServiceWebsite: time.Millisecond})
}

func siteInstaller(url string) model.Installer {
	return model.Installer{ID: "inst-1", Name: "Acme Solar", Website: url}
}

func TestScan_ClassifiesHomepage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Acme</title>
<script>var x = "commercial solar";</script>
<style>.solar-farm { color: red }</style></head>
<body><h1>Acme Solar</h1><p>We install Tesla Powerwall systems and EV chargers.</p></body></html>`))
	}))
	defer srv.Close()

	c := New(testLimiter())
	result, err := c.Scan(context.Background(), siteInstaller(srv.URL))
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Contains(t, result.Specialties, "battery_backup")
	assert.Contains(t, result.Specialties, "ev_charger")
	// Script and style content must not leak into classification.
	assert.NotContains(t, result.Specialties, "commercial_pv")
	assert.NotContains(t, result.Specialties, "utility_scale")
	assert.False(t, result.ScannedAt.IsZero())
}

func TestScan_BodyCapTruncatesPage(t *testing.T) {
	// Keywords past the configured cap must not influence classification.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>residential solar for your home</p>"))
		_, _ = w.Write(make([]byte, 4096))
		_, _ = w.Write([]byte("<p>Tesla Powerwall backup</p></body></html>"))
	}))
	defer srv.Close()

	c := New(testLimiter(), WithMaxBodyBytes(256))
	result, err := c.Scan(context.Background(), siteInstaller(srv.URL))
	require.NoError(t, err)
	assert.Contains(t, result.Specialties, "residential_pv")
	assert.NotContains(t, result.Specialties, "battery_backup")
}

func TestScan_PageTimeoutConfigurable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		time.Sleep(300 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>solar</body></html>"))
	}))
	defer srv.Close()

	c := New(testLimiter(), WithPageTimeout(50*time.Millisecond))
	result, err := c.Scan(context.Background(), siteInstaller(srv.URL))
	require.Error(t, err)
	assert.False(t, result.OK)
}

func TestScan_RobotsDisallowed(t *testing.T) {
	var pageFetched bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /\n"))
			return
		}
		pageFetched = true
	}))
	defer srv.Close()

	c := New(testLimiter())
	result, err := c.Scan(context.Background(), siteInstaller(srv.URL))
	require.Error(t, err)
	assert.True(t, resilience.IsPolicyDenied(err))
	assert.False(t, result.OK)
	assert.False(t, pageFetched, "denied site must not be fetched")
}

func TestScan_RobotsFetchFailureAllowsCrawl(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>residential solar experts</body></html>`))
	}))
	defer srv.Close()

	c := New(testLimiter())
	result, err := c.Scan(context.Background(), siteInstaller(srv.URL))
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Contains(t, result.Specialties, "residential_pv")
}

func TestScan_RobotsAllowsOtherAgents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: OtherBot\nDisallow: /\n"))
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>home solar installs</body></html>`))
	}))
	defer srv.Close()

	c := New(testLimiter())
	result, err := c.Scan(context.Background(), siteInstaller(srv.URL))
	require.NoError(t, err)
	assert.True(t, result.OK)
}

func TestScan_NonHTMLContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	c := New(testLimiter())
	result, err := c.Scan(context.Background(), siteInstaller(srv.URL))
	require.Error(t, err)
	assert.False(t, result.OK)
	assert.Contains(t, result.Err, "not an HTML page")
}

func TestScan_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(testLimiter())
	result, err := c.Scan(context.Background(), siteInstaller(srv.URL))
	require.Error(t, err)
	assert.False(t, result.OK)
	assert.Contains(t, result.Err, "status 503")
}

func TestScan_NoWebsite(t *testing.T) {
	c := New(testLimiter())
	result, err := c.Scan(context.Background(), model.Installer{Name: "No Site Co"})
	require.Error(t, err)
	assert.False(t, result.OK)
}

func TestNormalizeURL(t *testing.T) {
	got, err := NormalizeURL("example.com/about")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/about", got)

	got, err = NormalizeURL("http://example.com")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com", got)

	_, err = NormalizeURL("")
	assert.Error(t, err)
}

func TestStripHTML(t *testing.T) {
	html := `<html><head><script>alert("megawatt")</script><style>p{}</style></head>
<body><h1>Hello &amp; Welcome</h1>  <p>Solar   Pros</p></body></html>`

	got := StripHTML(html)
	assert.Equal(t, "hello & welcome solar pros", got)
}
