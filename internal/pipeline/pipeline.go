// Package pipeline sequences discovery, reconciliation, crawling,
// classification, and estimation into a single batch run.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sunscout/installer-cli/internal/estimate"
	"github.com/sunscout/installer-cli/internal/model"
	"github.com/sunscout/installer-cli/internal/overpass"
	"github.com/sunscout/installer-cli/internal/resilience"
	"github.com/sunscout/installer-cli/internal/store"
	"github.com/sunscout/installer-cli/pkg/geocode"
)

// Discoverer finds installer candidates around a point.
type Discoverer interface {
	Discover(ctx context.Context, lat, lon float64, radiusMeters int) ([]model.InstallerCandidate, error)
}

// Reconciler upserts candidates into the store.
type Reconciler interface {
	ReconcileAll(ctx context.Context, candidates []model.InstallerCandidate) ([]model.Installer, []error)
}

// Scanner crawls one installer's website and classifies its text.
type Scanner interface {
	Scan(ctx context.Context, installer model.Installer) (model.EnrichmentResult, error)
}

// Estimator derives a capacity estimate from available evidence.
type Estimator interface {
	Estimate(installer model.Installer, projects []model.PortfolioProject) estimate.CapacityEstimate
}

// RunOpts keys a pipeline run by coordinates or by a location string.
// When Location is set it takes precedence over Lat/Lon. HasCoords marks
// Lat/Lon as caller-supplied so the literal coordinate (0,0) stays valid.
type RunOpts struct {
	Lat          float64
	Lon          float64
	HasCoords    bool
	Location     string
	RadiusMeters int
}

// Pipeline drives a full discovery and enrichment run. Installers are
// processed strictly one at a time so the rate limiter can enforce
// per-service spacing without cross-worker coordination.
type Pipeline struct {
	store      store.Store
	discoverer Discoverer
	reconciler Reconciler
	scanner    Scanner
	estimator  Estimator
	geocoder   geocode.Client
}

// New creates a Pipeline.
func New(st store.Store, d Discoverer, r Reconciler, s Scanner, e Estimator, g geocode.Client) *Pipeline {
	return &Pipeline{
		store:      st,
		discoverer: d,
		reconciler: r,
		scanner:    s,
		estimator:  e,
		geocoder:   g,
	}
}

// Run executes one batch. The returned result is structured even under
// partial failure; the error is non-nil only for whole-run fatal
// conditions (bad configuration, upstream discovery outage).
func (p *Pipeline) Run(ctx context.Context, opts RunOpts) (*model.RunResult, error) {
	log := zap.L().With(zap.String("component", "pipeline"))
	result := &model.RunResult{}

	lat, lon := opts.Lat, opts.Lon
	hasCoords := opts.HasCoords
	if opts.Location != "" {
		resolved, err := p.geocoder.Resolve(ctx, opts.Location)
		if err != nil {
			return result, eris.Wrap(err, "pipeline: geocode location")
		}
		if !resolved.Matched {
			return result, resilience.NewConfigError("pipeline: could not resolve location %q", opts.Location)
		}
		lat, lon = resolved.Latitude, resolved.Longitude
		hasCoords = true
		log.Info("location resolved",
			zap.String("location", opts.Location),
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
		)
	}
	if !hasCoords {
		return result, resilience.NewConfigError("pipeline: no coordinates and no location given")
	}
	if opts.RadiusMeters > overpass.MaxRadiusMeters {
		return result, resilience.NewConfigError(
			"pipeline: radius %d exceeds fair-use cap of %d meters", opts.RadiusMeters, overpass.MaxRadiusMeters)
	}

	candidates, err := p.discoverer.Discover(ctx, lat, lon, opts.RadiusMeters)
	if err != nil {
		// Fatal for the whole run: nothing to reconcile.
		p.logEntry(ctx, "", "discovery", model.ScanStatusError, err.Error())
		return result, eris.Wrap(err, "pipeline: discovery")
	}
	result.Discovered = len(candidates)
	p.logEntry(ctx, "", "discovery", model.ScanStatusOK,
		fmt.Sprintf("discovered %d candidates", len(candidates)))

	installers, recErrs := p.reconciler.ReconcileAll(ctx, candidates)
	for _, e := range recErrs {
		result.Errors = append(result.Errors, e.Error())
	}

	for _, inst := range installers {
		// Cancellation is checked between installers, not mid-fetch.
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, eris.Wrap(ctx.Err(), "pipeline: run aborted").Error())
			break
		}

		if err := p.enrich(ctx, inst); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Processed++
	}

	// Report installers as persisted, specialties included.
	for _, inst := range installers {
		refreshed, err := p.store.GetInstaller(ctx, inst.ID)
		if err != nil || refreshed == nil {
			result.Installers = append(result.Installers, inst)
			continue
		}
		result.Installers = append(result.Installers, *refreshed)
	}

	log.Info("run complete",
		zap.Int("discovered", result.Discovered),
		zap.Int("processed", result.Processed),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// enrich runs the crawl, classify, and estimate sequence for one
// installer. A failure in any stage ends this installer's sequence
// without affecting the rest of the batch.
func (p *Pipeline) enrich(ctx context.Context, inst model.Installer) error {
	if inst.Website != "" {
		scan, err := p.scanner.Scan(ctx, inst)
		if err != nil {
			reason := "crawl failed"
			if resilience.IsPolicyDenied(err) {
				reason = "crawl not permitted"
			}
			p.logEntry(ctx, inst.ID, "crawler", model.ScanStatusError, reason+": "+err.Error())
			return resilience.NewCandidateError("crawler", inst.Name, err)
		}

		// A successful scan replaces the specialty set outright.
		if err := p.store.ReplaceSpecialties(ctx, inst.ID, scan.Specialties); err != nil {
			p.logEntry(ctx, inst.ID, "crawler", model.ScanStatusError, "apply specialties: "+err.Error())
			return resilience.NewCandidateError("crawler", inst.Name, err)
		}
		enrichedAt := scan.ScannedAt
		inst.LastEnrichedAt = &enrichedAt
		inst.Specialties = scan.Specialties
		if err := p.store.UpdateInstaller(ctx, &inst); err != nil {
			p.logEntry(ctx, inst.ID, "crawler", model.ScanStatusError, "stamp enrichment: "+err.Error())
			return resilience.NewCandidateError("crawler", inst.Name, err)
		}
		p.logEntry(ctx, inst.ID, "crawler", model.ScanStatusOK,
			fmt.Sprintf("detected %d specialties", len(scan.Specialties)))
	}

	projects, err := p.store.ListPortfolio(ctx, inst.ID)
	if err != nil {
		p.logEntry(ctx, inst.ID, "estimate", model.ScanStatusError, err.Error())
		return resilience.NewCandidateError("estimate", inst.Name, err)
	}
	est := p.estimator.Estimate(inst, projects)
	p.logEntry(ctx, inst.ID, "estimate", model.ScanStatusOK,
		fmt.Sprintf("estimated %.0f kW over %d projects (confidence %.1f, %s)",
			est.TotalKW, est.Projects, est.Confidence, est.Method))
	return nil
}

func (p *Pipeline) logEntry(ctx context.Context, installerID, source string, status model.ScanStatus, message string) {
	err := p.store.AppendScanLog(ctx, &model.ScanLogEntry{
		InstallerID: installerID,
		Source:      source,
		Status:      status,
		Message:     message,
	})
	if err != nil {
		zap.L().Warn("pipeline: scan log write failed", zap.Error(err))
	}
}
