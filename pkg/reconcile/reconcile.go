// Package reconcile compares the artifact recorded in a scope against the catalog's
// current recommendation and decides whether an update exists and whether it needs
// a new transfer. Updates that keep the same source URL are applied in place.
package reconcile

import (
	"context"
	"path/filepath"

	"github.com/glorpus-work/modelkeep/internal/logger"
	"github.com/glorpus-work/modelkeep/pkg/catalog"
	"github.com/glorpus-work/modelkeep/pkg/filename"
	"github.com/glorpus-work/modelkeep/pkg/fsutil"
	"github.com/glorpus-work/modelkeep/pkg/metrics"
	"github.com/glorpus-work/modelkeep/pkg/model"
	"github.com/glorpus-work/modelkeep/pkg/store"
)

// Reason explains why an update was reported.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonFilenameInvalid Reason = "filename_invalid"
	ReasonVersionMismatch Reason = "version_mismatch"
	ReasonMetadataChanged Reason = "metadata_changed"
)

// Decision is the outcome of comparing stored state with a recommendation.
type Decision struct {
	HasUpdate        bool   `json:"has_update"`
	RequiresDownload bool   `json:"requires_download"`
	Reason           Reason `json:"reason,omitempty"`
}

// Result is a Decision plus what Check did about it.
type Result struct {
	Decision
	Recommendation catalog.Recommendation `json:"recommendation"`
	// Applied is set when an in-place update was written to the store.
	Applied bool `json:"applied"`
}

// Recommender yields the descriptor the device should be running.
type Recommender interface {
	FetchRecommended(ctx context.Context) (catalog.Recommendation, error)
}

// Activity reports whether a transfer currently owns the scope.
type Activity interface {
	Active() bool
}

// Reconciler runs update checks for one scope.
type Reconciler struct {
	scope    *store.Scope
	catalog  Recommender
	activity Activity
}

// NewReconciler creates a reconciler. activity may be nil; when set, in-place
// updates are postponed while a transfer is running.
func NewReconciler(scope *store.Scope, rec Recommender, activity Activity) *Reconciler {
	return &Reconciler{scope: scope, catalog: rec, activity: activity}
}

// Evaluate applies the update rules in priority order:
//  1. a stored filename that does not validate against the stored descriptor and
//     version always requires a download;
//  2. equal versions and deep-equal descriptors mean no update;
//  3. anything else is an update, needing a download only if the source URL moved.
func Evaluate(stored model.Record, recommended *model.Descriptor, version string) Decision {
	name := stored.Download.Filename
	hasFile := name != ""
	valid := hasFile && filename.IsValid(name, stored.Descriptor, stored.CatalogVersion)

	if hasFile && !valid {
		return Decision{HasUpdate: true, RequiresDownload: true, Reason: ReasonFilenameInvalid}
	}

	sameVersion := stored.CatalogVersion == version
	sameDescriptor := stored.Descriptor.Equal(recommended)
	if sameVersion && sameDescriptor && (valid || !hasFile) {
		return Decision{}
	}

	d := Decision{
		HasUpdate:        true,
		RequiresDownload: !stored.Descriptor.SameArtifact(recommended) || (hasFile && !valid),
	}
	switch {
	case !sameVersion:
		d.Reason = ReasonVersionMismatch
	case !sameDescriptor:
		d.Reason = ReasonMetadataChanged
	default:
		d.Reason = ReasonFilenameInvalid
	}
	return d
}

// Check fetches the recommendation, evaluates it against the stored record and,
// when the update needs no transfer, overwrites the stored descriptor, version and
// catalog id right away.
func (r *Reconciler) Check(ctx context.Context) (Result, error) {
	rec, err := r.catalog.FetchRecommended(ctx)
	if err != nil {
		return Result{}, err
	}
	stored, err := r.scope.Record()
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Decision:       Evaluate(stored, &rec.Descriptor, rec.Version),
		Recommendation: rec,
	}
	metrics.RecordReconcile(r.scope.Name(), string(res.Reason))
	logger.Debug("Update check", logger.Fields{
		"scope":             r.scope.Name(),
		"has_update":        res.HasUpdate,
		"requires_download": res.RequiresDownload,
		"reason":            string(res.Reason),
		"version":           rec.Version,
	})

	if !res.HasUpdate || res.RequiresDownload {
		return res, nil
	}
	if r.activity != nil && r.activity.Active() {
		logger.Info("Transfer in progress, postponing in-place update", logger.Fields{"scope": r.scope.Name()})
		return res, nil
	}
	if err := r.apply(stored, rec); err != nil {
		return res, err
	}
	res.Applied = true
	return res, nil
}

// apply writes the new identity in place. A file already on disk is renamed to the
// name derived from the new descriptor and version so the stored filename keeps
// validating against the stored version.
func (r *Reconciler) apply(stored model.Record, rec catalog.Recommendation) error {
	dl := stored.Download
	newName := filename.Derive(&rec.Descriptor, rec.Version)
	var newPath string
	if dl.Path != "" && dl.Filename != newName {
		newPath = filepath.Join(filepath.Dir(dl.Path), newName)
		if err := renameArtifact(dl.Path, newPath); err != nil {
			return err
		}
	}

	err := r.scope.Update(func(tx *store.Tx) {
		tx.SetDescriptor(&rec.Descriptor)
		tx.SetString(store.FieldCatalogVersion, rec.Version)
		tx.SetString(store.FieldCatalogID, rec.ID)
		if newPath != "" {
			tx.SetString(store.FieldFilename, newName)
			tx.SetString(store.FieldPath, newPath)
		}
	})
	if err != nil {
		return err
	}
	logger.Info("Applied catalog update in place", logger.Fields{
		"scope":    r.scope.Name(),
		"version":  rec.Version,
		"filename": newName,
	})
	return nil
}

// renameArtifact moves the artifact and any partial transfer data along with it.
func renameArtifact(oldPath, newPath string) error {
	for _, pair := range [][2]string{
		{oldPath, newPath},
		{fsutil.PartialPath(oldPath), fsutil.PartialPath(newPath)},
	} {
		exists, err := fsutil.Exists(pair[0])
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if err := fsutil.Move(pair[0], pair[1]); err != nil {
			return err
		}
	}
	return nil
}
