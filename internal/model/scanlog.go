package model

import "time"

// ScanStatus is the outcome recorded in a scan log entry.
type ScanStatus string

const (
	ScanStatusOK    ScanStatus = "ok"
	ScanStatusError ScanStatus = "error"
)

// ScanLogEntry is an append-only audit record written by every pipeline
// stage on both success and failure. Never mutated or deleted.
type ScanLogEntry struct {
	ID          string     `json:"id" db:"id"`
	InstallerID string     `json:"installer_id,omitempty" db:"installer_id"`
	Source      string     `json:"source" db:"source"` // producing stage: discovery, reconcile, crawler, estimate
	Status      ScanStatus `json:"status" db:"status"`
	Message     string     `json:"message" db:"message"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// RunResult holds the outcome statistics of one discovery run.
type RunResult struct {
	Discovered int         `json:"discovered"`
	Processed  int         `json:"processed"`
	Installers []Installer `json:"installers"`
	Errors     []string    `json:"errors,omitempty"`
}
