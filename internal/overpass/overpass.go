// Package overpass discovers solar-related businesses from OpenStreetMap
// via the Overpass API.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sunscout/installer-cli/internal/match"
	"github.com/sunscout/installer-cli/internal/model"
	"github.com/sunscout/installer-cli/internal/ratelimit"
	"github.com/sunscout/installer-cli/internal/resilience"
)

const (
	// DefaultBaseURL is the public Overpass API endpoint.
	DefaultBaseURL = "https://overpass-api.de/api/interpreter"

	// MaxRadiusMeters is the fair-use cap on query radius. Requests above
	// it fail before any network call.
	MaxRadiusMeters = 50000

	// DefaultTimeout bounds both the HTTP request and the server-side
	// [timeout:] directive in the query.
	DefaultTimeout = 25 * time.Second
)

// Client queries the Overpass API for solar-related businesses.
type Client struct {
	baseURL   string
	http      *http.Client
	limiter   *ratelimit.Limiter
	userAgent string
	timeout   time.Duration
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL overrides the Overpass endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithUserAgent overrides the identifying user agent.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTimeout overrides the query timeout, applied to both the HTTP
// client and the query's [timeout:] directive.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
			c.http.Timeout = d
		}
	}
}

// New creates a Client with the given rate limiter.
func New(limiter *ratelimit.Limiter, opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		http:      &http.Client{Timeout: DefaultTimeout},
		limiter:   limiter,
		userAgent: "SunScoutBot/1.0 (+https://sunscout.dev/bot)",
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// overpassResponse is the JSON envelope returned by the Overpass API.
type overpassResponse struct {
	Elements []element `json:"elements"`
}

// element is one OSM node, way, or relation.
type element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *center           `json:"center,omitempty"`
	Tags   map[string]string `json:"tags"`
}

type center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Discover queries for solar businesses within radiusMeters of a point and
// returns normalized, deduplicated candidates. Radius above the fair-use
// cap is a configuration error; transport failures and non-2xx responses
// are upstream errors, fatal for the discovery phase.
func (c *Client) Discover(ctx context.Context, lat, lon float64, radiusMeters int) ([]model.InstallerCandidate, error) {
	if radiusMeters <= 0 {
		return nil, resilience.NewConfigError("overpass: radius must be positive, got %d", radiusMeters)
	}
	if radiusMeters > MaxRadiusMeters {
		return nil, resilience.NewConfigError("overpass: radius %d exceeds fair-use cap of %d meters", radiusMeters, MaxRadiusMeters)
	}

	if err := c.limiter.Wait(ctx, ratelimit.ServiceDiscovery); err != nil {
		return nil, eris.Wrap(err, "overpass: rate limit wait")
	}

	query := buildQuery(lat, lon, radiusMeters, int(c.timeout.Seconds()))

	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewUpstreamError(eris.Wrap(err, "overpass: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resilience.NewUpstreamError(
			eris.Errorf("overpass: returned status %d", resp.StatusCode), resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewUpstreamError(eris.Wrap(err, "overpass: read body"), resp.StatusCode)
	}

	var parsed overpassResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, resilience.NewUpstreamError(eris.Wrap(err, "overpass: parse response"), resp.StatusCode)
	}

	candidates := normalize(parsed.Elements)

	zap.L().Info("overpass: discovery complete",
		zap.Float64("lat", lat),
		zap.Float64("lon", lon),
		zap.Int("radius_m", radiusMeters),
		zap.Int("elements", len(parsed.Elements)),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// clauses are the independent tag predicates unioned in the query. Each is
// applied to nodes, ways, and relations.
var clauses = []string{
	`["name"~"solar",i]`,
	`["craft"="electrician"]["name"~"solar|photovoltaic|pv",i]`,
	`["shop"="energy"]`,
	`["office"="energy_supplier"]["name"~"solar",i]`,
	`["craft"="solar_installer"]`,
	`["trade"="solar_installer"]`,
}

// buildQuery renders the Overpass QL query. "out center" makes ways and
// relations report a centroid coordinate.
func buildQuery(lat, lon float64, radiusMeters, timeoutSecs int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", timeoutSecs)
	around := fmt.Sprintf("(around:%d,%f,%f)", radiusMeters, lat, lon)
	for _, clause := range clauses {
		for _, kind := range []string{"node", "way", "relation"} {
			fmt.Fprintf(&b, "  %s%s%s;\n", kind, clause, around)
		}
	}
	b.WriteString(");\nout center tags;")
	return b.String()
}

// normalize converts raw elements to candidates, dropping unusable ones
// and deduplicating by folded name plus coordinate proximity.
func normalize(elements []element) []model.InstallerCandidate {
	var out []model.InstallerCandidate
	for _, el := range elements {
		cand, ok := el.toCandidate()
		if !ok {
			continue
		}
		if isDuplicate(out, cand) {
			continue
		}
		out = append(out, cand)
	}
	return out
}

// isDuplicate reports whether an equivalent candidate was already kept.
// First occurrence wins.
func isDuplicate(kept []model.InstallerCandidate, cand model.InstallerCandidate) bool {
	for _, k := range kept {
		if match.SameName(k.Name, cand.Name) &&
			match.Nearby(match.Point(k.Latitude, k.Longitude), match.Point(cand.Latitude, cand.Longitude), match.CoordTolerance) {
			return true
		}
	}
	return false
}

// toCandidate resolves the loosely-typed OSM tag schema into a candidate.
// Elements without a resolvable name or coordinate are dropped.
func (el element) toCandidate() (model.InstallerCandidate, bool) {
	t := resolveTags(el.Tags)
	if t.name == "" {
		return model.InstallerCandidate{}, false
	}

	lat, lon := el.Lat, el.Lon
	if lat == 0 && lon == 0 {
		if el.Center == nil {
			return model.InstallerCandidate{}, false
		}
		lat, lon = el.Center.Lat, el.Center.Lon
	}
	if lat == 0 && lon == 0 {
		return model.InstallerCandidate{}, false
	}

	return model.InstallerCandidate{
		SourceID:  fmt.Sprintf("%s/%d", el.Type, el.ID),
		Name:      t.name,
		Latitude:  lat,
		Longitude: lon,
		Street:    t.street,
		City:      t.city,
		State:     t.state,
		ZipCode:   t.postcode,
		Phone:     t.phone,
		Website:   t.website,
	}, true
}

// resolvedTags is the explicit optional-field view of an element's tags
// after fallback rules are applied, resolved once at the boundary.
type resolvedTags struct {
	name     string
	street   string
	city     string
	state    string
	postcode string
	phone    string
	website  string
}

func resolveTags(tags map[string]string) resolvedTags {
	var t resolvedTags

	// Name fallback chain, keeping only the first comma segment of
	// composite display names.
	for _, key := range []string{"name", "brand", "operator"} {
		if v := strings.TrimSpace(tags[key]); v != "" {
			t.name = strings.TrimSpace(strings.SplitN(v, ",", 2)[0])
			break
		}
	}

	street := strings.TrimSpace(tags["addr:street"])
	if num := strings.TrimSpace(tags["addr:housenumber"]); num != "" && street != "" {
		street = num + " " + street
	}
	t.street = street
	t.city = strings.TrimSpace(tags["addr:city"])
	t.state = strings.TrimSpace(tags["addr:state"])
	t.postcode = strings.TrimSpace(tags["addr:postcode"])

	t.phone = firstTag(tags, "phone", "contact:phone")
	t.website = firstTag(tags, "website", "contact:website")
	return t
}

func firstTag(tags map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(tags[k]); v != "" {
			return v
		}
	}
	return ""
}
