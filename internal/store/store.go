// Package store persists installers, specialty tags, reference links, and
// the append-only scan log.
package store

import (
	"context"

	"github.com/sunscout/installer-cli/internal/model"
)

// InstallerFilter narrows ListInstallers.
type InstallerFilter struct {
	Specialty string
	Limit     int
	Offset    int
}

// ScanLogFilter narrows ListScanLog.
type ScanLogFilter struct {
	InstallerID string
	Limit       int
}

// Store is the persistence interface consumed by the pipeline. Lookups
// return (nil, nil) when no record matches. Scan log writes are
// append-only; nothing in this interface mutates or deletes log entries.
type Store interface {
	// Installers
	FindBySourceID(ctx context.Context, sourceID string) (*model.Installer, error)
	FindByNameNear(ctx context.Context, name string, lat, lon, tolerance float64) (*model.Installer, error)
	GetInstaller(ctx context.Context, id string) (*model.Installer, error)
	ListInstallers(ctx context.Context, filter InstallerFilter) ([]model.Installer, error)
	CreateInstaller(ctx context.Context, installer *model.Installer) error
	UpdateInstaller(ctx context.Context, installer *model.Installer) error

	// Specialties
	SeedSpecialtyTags(ctx context.Context, tags map[string]string) error
	ReplaceSpecialties(ctx context.Context, installerID string, slugs []string) error

	// Reference links
	AddReferenceLinks(ctx context.Context, links []model.ReferenceLink) error
	ListReferenceLinks(ctx context.Context, installerID string) ([]model.ReferenceLink, error)

	// Portfolio evidence
	ListPortfolio(ctx context.Context, installerID string) ([]model.PortfolioProject, error)

	// Audit log
	AppendScanLog(ctx context.Context, entry *model.ScanLogEntry) error
	ListScanLog(ctx context.Context, filter ScanLogFilter) ([]model.ScanLogEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
