// Package model defines the domain types shared across the discovery and
// enrichment pipeline.
package model

import (
	"time"
)

// InstallerCandidate is an unreconciled discovery result. It exists only
// within a single discovery run until the reconciler matches it to a
// persisted Installer.
type InstallerCandidate struct {
	SourceID  string  `json:"source_id,omitempty"` // stable external id, e.g. "node/123456"
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Street    string  `json:"street,omitempty"`
	City      string  `json:"city,omitempty"`
	State     string  `json:"state,omitempty"`
	ZipCode   string  `json:"zip_code,omitempty"`
	Phone     string  `json:"phone,omitempty"`
	Website   string  `json:"website,omitempty"`
}

// Installer is a persisted solar installation business.
type Installer struct {
	ID              string     `json:"id" db:"id"`
	SourceID        string     `json:"source_id,omitempty" db:"source_id"`
	Name            string     `json:"name" db:"name"`
	Latitude        float64    `json:"latitude" db:"latitude"`
	Longitude       float64    `json:"longitude" db:"longitude"`
	Street          string     `json:"street,omitempty" db:"street"`
	City            string     `json:"city,omitempty" db:"city"`
	State           string     `json:"state,omitempty" db:"state"`
	ZipCode         string     `json:"zip_code,omitempty" db:"zip_code"`
	Phone           string     `json:"phone,omitempty" db:"phone"`
	Website         string     `json:"website,omitempty" db:"website"`
	TotalReviews    int        `json:"total_reviews" db:"total_reviews"`
	YearsInBusiness int        `json:"years_in_business" db:"years_in_business"`
	Specialties     []string   `json:"specialties,omitempty" db:"-"`
	LastSeenAt      time.Time  `json:"last_seen_at" db:"last_seen_at"`
	LastEnrichedAt  *time.Time `json:"last_enriched_at,omitempty" db:"last_enriched_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// SpecialtyTag is immutable reference data mapping a slug to a human label.
type SpecialtyTag struct {
	Slug  string `json:"slug" db:"slug"`
	Label string `json:"label" db:"label"`
}

// ReferenceLink is an outbound URL for an installer (review site, licensing
// board, industry directory). Generated once on installer creation.
type ReferenceLink struct {
	InstallerID string `json:"installer_id" db:"installer_id"`
	Kind        string `json:"kind" db:"kind"`
	URL         string `json:"url" db:"url"`
}

// EnrichmentResult is the transient outcome of one website scan. Its effect
// is applied to the installer's specialty set and enrichment timestamp; it
// is never persisted as its own row.
type EnrichmentResult struct {
	Specialties []string  `json:"specialties,omitempty"`
	OK          bool      `json:"ok"`
	Err         string    `json:"error,omitempty"`
	ScannedAt   time.Time `json:"scanned_at"`
}

// PortfolioProject is structured evidence of a completed installation,
// used by the capacity estimator when available.
type PortfolioProject struct {
	InstallerID string    `json:"installer_id" db:"installer_id"`
	SizeKW      float64   `json:"size_kw" db:"size_kw"`
	CompletedAt time.Time `json:"completed_at" db:"completed_at"`
}
