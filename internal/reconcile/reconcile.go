// Package reconcile matches discovered candidates to persisted installers
// and decides create vs update.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sunscout/installer-cli/internal/match"
	"github.com/sunscout/installer-cli/internal/model"
	"github.com/sunscout/installer-cli/internal/resilience"
	"github.com/sunscout/installer-cli/internal/store"
)

// LinkGenerator builds reference links for a newly created installer.
type LinkGenerator func(model.Installer) []model.ReferenceLink

// Reconciler upserts candidates into the store.
type Reconciler struct {
	store store.Store
	links LinkGenerator
}

// New creates a Reconciler.
func New(st store.Store, links LinkGenerator) *Reconciler {
	return &Reconciler{store: st, links: links}
}

// ReconcileAll processes every candidate, collecting per-candidate errors
// instead of aborting the batch. The returned installers are the records
// as persisted after create or update.
func (r *Reconciler) ReconcileAll(ctx context.Context, candidates []model.InstallerCandidate) ([]model.Installer, []error) {
	log := zap.L().With(zap.String("component", "reconcile"))

	var installers []model.Installer
	var errs []error

	for _, cand := range candidates {
		inst, err := r.reconcile(ctx, cand)
		if err != nil {
			log.Warn("reconcile failed", zap.String("candidate", cand.Name), zap.Error(err))
			errs = append(errs, resilience.NewCandidateError("reconcile", cand.Name, err))
			r.logEntry(ctx, "", model.ScanStatusError, "reconcile "+cand.Name+": "+err.Error())
			continue
		}
		installers = append(installers, *inst)
	}
	return installers, errs
}

// reconcile upserts one candidate.
func (r *Reconciler) reconcile(ctx context.Context, cand model.InstallerCandidate) (*model.Installer, error) {
	existing, err := r.store.FindBySourceID(ctx, cand.SourceID)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: find by source id")
	}
	msg := "updated"
	if existing == nil {
		existing, err = r.store.FindByNameNear(ctx, cand.Name, cand.Latitude, cand.Longitude, match.CoordTolerance)
		if err != nil {
			return nil, eris.Wrap(err, "reconcile: find by name and location")
		}
		if existing != nil {
			dist := match.DistanceMeters(
				match.Point(existing.Latitude, existing.Longitude),
				match.Point(cand.Latitude, cand.Longitude))
			msg = fmt.Sprintf("updated via name match %.0fm away:", dist)
		}
	}

	if existing != nil {
		applyCandidate(existing, cand)
		if err := r.store.UpdateInstaller(ctx, existing); err != nil {
			return nil, eris.Wrap(err, "reconcile: update")
		}
		r.logEntry(ctx, existing.ID, model.ScanStatusOK, msg+" "+existing.Name)
		return existing, nil
	}

	created := &model.Installer{
		SourceID:   cand.SourceID,
		Name:       cand.Name,
		Latitude:   cand.Latitude,
		Longitude:  cand.Longitude,
		Street:     cand.Street,
		City:       cand.City,
		State:      cand.State,
		ZipCode:    cand.ZipCode,
		Phone:      cand.Phone,
		Website:    cand.Website,
		LastSeenAt: time.Now().UTC(),
	}
	if err := r.store.CreateInstaller(ctx, created); err != nil {
		return nil, eris.Wrap(err, "reconcile: create")
	}

	// Reference links are a one-time side effect of creation.
	if r.links != nil {
		if links := r.links(*created); len(links) > 0 {
			if err := r.store.AddReferenceLinks(ctx, links); err != nil {
				zap.L().Warn("reconcile: add reference links failed",
					zap.String("installer", created.ID), zap.Error(err))
			}
		}
	}

	r.logEntry(ctx, created.ID, model.ScanStatusOK, "created "+created.Name)
	return created, nil
}

// applyCandidate refreshes mutable fields. Fields absent in the candidate
// carry forward the existing value rather than blanking it.
func applyCandidate(existing *model.Installer, cand model.InstallerCandidate) {
	existing.Name = cand.Name
	existing.Latitude = cand.Latitude
	existing.Longitude = cand.Longitude
	if existing.SourceID == "" {
		existing.SourceID = cand.SourceID
	}
	if cand.Street != "" {
		existing.Street = cand.Street
	}
	if cand.City != "" {
		existing.City = cand.City
	}
	if cand.State != "" {
		existing.State = cand.State
	}
	if cand.ZipCode != "" {
		existing.ZipCode = cand.ZipCode
	}
	if cand.Phone != "" {
		existing.Phone = cand.Phone
	}
	if cand.Website != "" {
		existing.Website = cand.Website
	}
}

func (r *Reconciler) logEntry(ctx context.Context, installerID string, status model.ScanStatus, message string) {
	err := r.store.AppendScanLog(ctx, &model.ScanLogEntry{
		InstallerID: installerID,
		Source:      "reconcile",
		Status:      status,
		Message:     message,
	})
	if err != nil {
		zap.L().Warn("reconcile: scan log write failed", zap.Error(err))
	}
}
