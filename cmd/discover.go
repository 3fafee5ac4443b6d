package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sunscout/installer-cli/internal/crawler"
	"github.com/sunscout/installer-cli/internal/estimate"
	"github.com/sunscout/installer-cli/internal/links"
	"github.com/sunscout/installer-cli/internal/overpass"
	"github.com/sunscout/installer-cli/internal/pipeline"
	"github.com/sunscout/installer-cli/internal/ratelimit"
	"github.com/sunscout/installer-cli/internal/reconcile"
	"github.com/sunscout/installer-cli/pkg/geocode"
)

var (
	discoverLat      float64
	discoverLon      float64
	discoverLocation string
	discoverRadius   int
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run a discovery and enrichment batch around a point",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		limiter := ratelimit.New(map[string]time.Duration{
			ratelimit.ServiceDiscovery: cfg.RateLimit.Interval(cfg.RateLimit.DiscoveryMS),
			ratelimit.ServiceWebsite:   cfg.RateLimit.Interval(cfg.RateLimit.WebsiteMS),
			ratelimit.ServiceGeocode:   cfg.RateLimit.Interval(cfg.RateLimit.GeocodeMS),
		})

		discoverer := overpass.New(limiter,
			overpass.WithBaseURL(cfg.Discovery.BaseURL),
			overpass.WithUserAgent(cfg.Discovery.UserAgent),
			overpass.WithTimeout(time.Duration(cfg.Discovery.TimeoutSecs)*time.Second),
		)
		scanner := crawler.New(limiter,
			crawler.WithUserAgent(cfg.Crawl.UserAgent),
			crawler.WithPageTimeout(time.Duration(cfg.Crawl.TimeoutSecs)*time.Second),
			crawler.WithMaxBodyBytes(int64(cfg.Crawl.MaxBodyKB)*1024),
		)
		geocoder := geocode.NewNominatim(limiter,
			geocode.WithBaseURL(cfg.Geocode.BaseURL),
			geocode.WithUserAgent(cfg.Discovery.UserAgent),
		)
		estimator := estimate.New(estimate.Config{
			PortfolioConfidence: cfg.Estimate.PortfolioConfidence,
			HeuristicConfidence: cfg.Estimate.HeuristicConfidence,
			FloorConfidence:     cfg.Estimate.FloorConfidence,
			CommercialUnitKW:    cfg.Estimate.CommercialUnitKW,
			ResidentialUnitKW:   cfg.Estimate.ResidentialUnitKW,
			MinProjects:         cfg.Estimate.MinProjects,
		})

		radius := discoverRadius
		if radius == 0 {
			radius = cfg.Discovery.RadiusMeters
		}

		p := pipeline.New(st, discoverer, reconcile.New(st, links.Generate), scanner, estimator, geocoder)

		result, err := p.Run(ctx, pipeline.RunOpts{
			Lat:          discoverLat,
			Lon:          discoverLon,
			HasCoords:    cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon"),
			Location:     discoverLocation,
			RadiusMeters: radius,
		})
		if err != nil {
			return eris.Wrap(err, "discovery run")
		}

		zap.L().Info("discovery complete",
			zap.Int("discovered", result.Discovered),
			zap.Int("processed", result.Processed),
			zap.Int("errors", len(result.Errors)),
		)

		// Print result JSON to stdout
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	discoverCmd.Flags().Float64Var(&discoverLat, "lat", 0, "latitude of the search center")
	discoverCmd.Flags().Float64Var(&discoverLon, "lon", 0, "longitude of the search center")
	discoverCmd.Flags().StringVar(&discoverLocation, "location", "", "location string to geocode instead of --lat/--lon")
	discoverCmd.Flags().IntVar(&discoverRadius, "radius", 0, "search radius in meters (defaults to discovery.radius_meters)")
	rootCmd.AddCommand(discoverCmd)
}
