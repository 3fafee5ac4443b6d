// Package crawler fetches installer homepages politely and extracts plain
// text for specialty classification.
package crawler

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/sunscout/installer-cli/internal/classify"
	"github.com/sunscout/installer-cli/internal/model"
	"github.com/sunscout/installer-cli/internal/ratelimit"
	"github.com/sunscout/installer-cli/internal/resilience"
)

const (
	// DefaultUserAgent identifies the crawler to sites and their
	// exclusion policies.
	DefaultUserAgent = "SunScoutBot/1.0 (+https://sunscout.dev/bot)"

	pageTimeout   = 15 * time.Second
	robotsTimeout = 5 * time.Second
	maxBodyBytes  = 512 * 1024
)

// Crawler scans installer websites. Every step can fail independently
// without raising past its own stage; failures surface as an unsuccessful
// EnrichmentResult plus a typed error.
type Crawler struct {
	pages     *http.Client
	robots    *http.Client
	limiter   *ratelimit.Limiter
	userAgent string
	maxBody   int64
}

// Option configures the Crawler.
type Option func(*Crawler)

// WithUserAgent overrides the crawl user agent.
func WithUserAgent(ua string) Option {
	return func(c *Crawler) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithPageTimeout overrides the homepage fetch timeout.
func WithPageTimeout(d time.Duration) Option {
	return func(c *Crawler) {
		if d > 0 {
			c.pages.Timeout = d
		}
	}
}

// WithMaxBodyBytes overrides the homepage body size cap.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// New creates a Crawler with bounded timeouts on every fetch.
func New(limiter *ratelimit.Limiter, opts ...Option) *Crawler {
	c := &Crawler{
		pages: &http.Client{
			Timeout: pageTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		robots:    &http.Client{Timeout: robotsTimeout},
		limiter:   limiter,
		userAgent: DefaultUserAgent,
		maxBody:   maxBodyBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Scan crawls one installer's homepage and classifies its text. The
// returned error is nil only when the result is successful; policy
// denials come back as resilience.ErrPolicyDenied.
func (c *Crawler) Scan(ctx context.Context, installer model.Installer) (model.EnrichmentResult, error) {
	result := model.EnrichmentResult{ScannedAt: time.Now().UTC()}

	if strings.TrimSpace(installer.Website) == "" {
		return fail(result, eris.New("crawler: installer has no website"))
	}

	pageURL, err := NormalizeURL(installer.Website)
	if err != nil {
		return fail(result, eris.Wrap(err, "crawler: normalize url"))
	}

	if !c.allowed(ctx, pageURL) {
		return fail(result, eris.Wrap(resilience.ErrPolicyDenied, "crawler: "+pageURL))
	}

	if err := c.limiter.Wait(ctx, ratelimit.ServiceWebsite); err != nil {
		return fail(result, eris.Wrap(err, "crawler: rate limit wait"))
	}

	text, err := c.fetchText(ctx, pageURL)
	if err != nil {
		return fail(result, err)
	}

	result.Specialties = classify.Classify(text)
	result.OK = true

	zap.L().Debug("crawler: scan complete",
		zap.String("installer", installer.Name),
		zap.String("url", pageURL),
		zap.Strings("specialties", result.Specialties),
	)
	return result, nil
}

func fail(result model.EnrichmentResult, err error) (model.EnrichmentResult, error) {
	result.OK = false
	result.Err = err.Error()
	return result, err
}

// allowed checks the site's robots.txt for the crawler's user agent.
// Absence of a policy is not a denial: any retrieval failure or non-200
// status permits the crawl.
func (c *Crawler) allowed(ctx context.Context, pageURL string) bool {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return true
	}
	robotsURL := parsed.Scheme + "://" + parsed.Host + "/robots.txt"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return true
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.robots.Do(req)
	if err != nil {
		return true
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return true
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return true
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return true
	}

	path := parsed.Path
	if path == "" {
		path = "/"
	}
	return data.FindGroup(c.userAgent).Test(path)
}

// fetchText fetches the homepage and converts it to plain lowercase text.
func (c *Crawler) fetchText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "crawler: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.pages.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "crawler: fetch")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return "", eris.Errorf("crawler: status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return "", eris.Errorf("crawler: not an HTML page (content type %q)", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return "", eris.Wrap(err, "crawler: read body")
	}

	return StripHTML(string(body)), nil
}

// NormalizeURL prefixes https:// when the URL has no scheme.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", eris.New("crawler: empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrapf(err, "crawler: parse url %q", raw)
	}
	if parsed.Host == "" {
		return "", eris.Errorf("crawler: url %q has no host", raw)
	}
	return parsed.String(), nil
}

var (
	tagRe   = regexp.MustCompile(`<[^>]+>`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// StripHTML removes script and style blocks, strips remaining tags,
// decodes common entities, collapses whitespace, and lowercases.
func StripHTML(html string) string {
	for _, tag := range []string{"script", "style"} {
		re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
		html = re.ReplaceAllString(html, " ")
	}

	html = tagRe.ReplaceAllString(html, " ")

	r := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	html = r.Replace(html)

	html = spaceRe.ReplaceAllString(html, " ")
	return strings.ToLower(strings.TrimSpace(html))
}
