// Package estimate derives installed-capacity figures from whatever
// evidence is available for an installer.
package estimate

import (
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/sunscout/installer-cli/internal/model"
)

// CapacityEstimate holds an estimated installed capacity with an explicit
// confidence score. Callers must treat confidence below 0.5 as low
// confidence in any downstream display.
type CapacityEstimate struct {
	TotalKW    float64 `json:"total_kw"`
	Projects   int     `json:"projects"`
	Confidence float64 `json:"confidence"` // 0.0-1.0
	Method     string  `json:"method"`     // "portfolio" or "heuristic"
}

// Config holds the estimator's heuristic constants. The confidence values
// are rough priors, not statistically derived.
type Config struct {
	PortfolioConfidence float64 `yaml:"portfolio_confidence" mapstructure:"portfolio_confidence"`
	HeuristicConfidence float64 `yaml:"heuristic_confidence" mapstructure:"heuristic_confidence"`
	FloorConfidence     float64 `yaml:"floor_confidence" mapstructure:"floor_confidence"`
	CommercialUnitKW    float64 `yaml:"commercial_unit_kw" mapstructure:"commercial_unit_kw"`
	ResidentialUnitKW   float64 `yaml:"residential_unit_kw" mapstructure:"residential_unit_kw"`
	MinProjects         int     `yaml:"min_projects" mapstructure:"min_projects"`
}

// DefaultConfig returns the stock estimator constants.
func DefaultConfig() Config {
	return Config{
		PortfolioConfidence: 0.8,
		HeuristicConfidence: 0.4,
		FloorConfidence:     0.3,
		CommercialUnitKW:    50,
		ResidentialUnitKW:   8,
		MinProjects:         10,
	}
}

// Estimator computes capacity estimates. It never fails; absent evidence
// degrades confidence instead of producing an error.
type Estimator struct {
	cfg Config
}

// New creates an Estimator. Zero-valued config fields fall back to defaults.
func New(cfg Config) *Estimator {
	def := DefaultConfig()
	if cfg.PortfolioConfidence <= 0 {
		cfg.PortfolioConfidence = def.PortfolioConfidence
	}
	if cfg.HeuristicConfidence <= 0 {
		cfg.HeuristicConfidence = def.HeuristicConfidence
	}
	if cfg.FloorConfidence <= 0 {
		cfg.FloorConfidence = def.FloorConfidence
	}
	if cfg.CommercialUnitKW <= 0 {
		cfg.CommercialUnitKW = def.CommercialUnitKW
	}
	if cfg.ResidentialUnitKW <= 0 {
		cfg.ResidentialUnitKW = def.ResidentialUnitKW
	}
	if cfg.MinProjects <= 0 {
		cfg.MinProjects = def.MinProjects
	}
	return &Estimator{cfg: cfg}
}

// Estimate computes installed capacity for an installer. Structured
// portfolio evidence wins when present; otherwise a heuristic from review
// volume and business age applies.
func (e *Estimator) Estimate(installer model.Installer, projects []model.PortfolioProject) CapacityEstimate {
	var total float64
	var count int
	for _, p := range projects {
		if p.SizeKW > 0 {
			total += p.SizeKW
			count++
		}
	}
	if count > 0 {
		est := CapacityEstimate{
			TotalKW:    total,
			Projects:   count,
			Confidence: e.cfg.PortfolioConfidence,
			Method:     "portfolio",
		}
		e.log(installer, est)
		return est
	}

	projectCount := int(math.Floor(float64(installer.TotalReviews)/2)) + installer.YearsInBusiness*5
	if projectCount < e.cfg.MinProjects {
		projectCount = e.cfg.MinProjects
	}

	unit := e.cfg.ResidentialUnitKW
	if looksCommercial(installer) {
		unit = e.cfg.CommercialUnitKW
	}

	confidence := e.cfg.FloorConfidence
	if installer.TotalReviews > 0 || installer.YearsInBusiness > 0 {
		confidence = e.cfg.HeuristicConfidence
	}

	est := CapacityEstimate{
		TotalKW:    float64(projectCount) * unit,
		Projects:   projectCount,
		Confidence: confidence,
		Method:     "heuristic",
	}
	e.log(installer, est)
	return est
}

func (e *Estimator) log(installer model.Installer, est CapacityEstimate) {
	zap.L().Debug("estimate: capacity computed",
		zap.String("installer", installer.Name),
		zap.Float64("total_kw", est.TotalKW),
		zap.Int("projects", est.Projects),
		zap.Float64("confidence", est.Confidence),
		zap.String("method", est.Method),
	)
}

// looksCommercial reports whether an installer's specialties or locality
// text suggest commercial-scale work.
func looksCommercial(installer model.Installer) bool {
	for _, s := range installer.Specialties {
		switch s {
		case "commercial_pv", "utility_scale", "carport":
			return true
		}
	}
	locality := strings.ToLower(installer.City + " " + installer.Street)
	for _, hint := range []string{"industrial", "business park", "commerce"} {
		if strings.Contains(locality, hint) {
			return true
		}
	}
	return false
}
