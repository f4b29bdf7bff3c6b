// Package orchestrator wires the catalog, the download controller and the update
// reconciler together for each persistence scope.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glorpus-work/modelkeep/internal/logger"
	"github.com/glorpus-work/modelkeep/pkg/download"
	"github.com/glorpus-work/modelkeep/pkg/errutils"
	"github.com/glorpus-work/modelkeep/pkg/fsutil"
	"github.com/glorpus-work/modelkeep/pkg/model"
	"github.com/glorpus-work/modelkeep/pkg/reconcile"
	"github.com/glorpus-work/modelkeep/pkg/store"
)

// Install fetches the recommended descriptor and brings it onto the device in the
// given scope. With restart set, any existing file and transfer state is discarded.
func (o *Orchestrator) Install(ctx context.Context, scope string, restart bool) (download.Outcome, error) {
	eng, err := o.engine(scope)
	if err != nil {
		return download.OutcomeNone, err
	}

	emit(o.Hooks, Event{Phase: "checking", Scope: scope, Msg: "fetching catalog"})
	rec, err := o.Catalog.FetchRecommended(ctx)
	if err != nil {
		emit(o.Hooks, Event{Phase: "error", Scope: scope, Msg: err.Error()})
		return download.OutcomeNone, err
	}
	if rec.Fallback {
		emit(o.Hooks, Event{Phase: "checking", Scope: scope, Msg: "using bundled catalog"})
	}

	emit(o.Hooks, Event{Phase: "downloading", Scope: scope, Msg: fmt.Sprintf("%s (catalog %s)", rec.Descriptor.Name, rec.Version)})
	out, err := eng.controller.Start(ctx, download.StartRequest{
		Descriptor: rec.Descriptor,
		CatalogID:  rec.ID,
		Version:    rec.Version,
		Restart:    restart,
	})
	o.finish(scope, out, err)
	return out, err
}

// Resume continues a paused transfer in the scope. It returns OutcomeNone when there
// is nothing to resume.
func (o *Orchestrator) Resume(ctx context.Context, scope string) (download.Outcome, error) {
	eng, err := o.engine(scope)
	if err != nil {
		return download.OutcomeNone, err
	}
	emit(o.Hooks, Event{Phase: "resuming", Scope: scope})
	out, err := eng.controller.Resume(ctx)
	o.finish(scope, out, err)
	return out, err
}

// Pause suspends the transfer running in the scope, if any.
func (o *Orchestrator) Pause(ctx context.Context, scope string) error {
	eng, err := o.engine(scope)
	if err != nil {
		return err
	}
	if !eng.controller.Active() {
		return nil
	}
	emit(o.Hooks, Event{Phase: "pausing", Scope: scope})
	return eng.controller.Pause(ctx)
}

// Interrupt pauses the transfer of scope as soon as it has one, polling while the
// operation is still fetching the catalog or opening the transfer. It returns after
// one pause, when done is closed or when ctx ends.
func (o *Orchestrator) Interrupt(ctx context.Context, scope string, done <-chan struct{}) error {
	eng, err := o.engine(scope)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(InterruptPollInterval)
	defer ticker.Stop()
	for {
		if eng.controller.Transferring() {
			emit(o.Hooks, Event{Phase: "pausing", Scope: scope})
			return eng.controller.Pause(ctx)
		}
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Check compares the scope's stored artifact against the current recommendation.
func (o *Orchestrator) Check(ctx context.Context, scope string) (reconcile.Result, error) {
	eng, err := o.engine(scope)
	if err != nil {
		return reconcile.Result{}, err
	}
	emit(o.Hooks, Event{Phase: "checking", Scope: scope, Msg: "checking for updates"})
	return eng.reconciler.Check(ctx)
}

// Status reports the persisted record of the scope. A completed artifact whose file
// has disappeared is flagged as removed the first time it is noticed.
func (o *Orchestrator) Status(scope string) (Status, error) {
	eng, err := o.engine(scope)
	if err != nil {
		return Status{}, err
	}
	rec, err := o.detectRemoval(eng)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Scope:  scope,
		Phase:  rec.Download.Phase(),
		Active: eng.controller.Active(),
		Record: rec,
	}, nil
}

// ArtifactPath returns the location of the completed artifact in the scope.
func (o *Orchestrator) ArtifactPath(scope string) (string, error) {
	eng, err := o.engine(scope)
	if err != nil {
		return "", err
	}
	rec, err := o.detectRemoval(eng)
	if err != nil {
		return "", err
	}
	if !rec.Download.Completed() || rec.Download.FileRemoved {
		return "", fmt.Errorf("%w: scope %s", errutils.ErrArtifactMissing, scope)
	}
	return rec.Download.Path, nil
}

// Watch calls fn with the scope's status after every persisted change until ctx ends.
func (o *Orchestrator) Watch(ctx context.Context, scope string, fn func(Status)) error {
	eng, err := o.engine(scope)
	if err != nil {
		return err
	}
	return eng.scope.Watch(ctx, func(rec model.Record) {
		fn(Status{
			Scope:  scope,
			Phase:  rec.Download.Phase(),
			Active: eng.controller.Active(),
			Record: rec,
		})
	})
}

// Scopes lists every scope that has persisted state.
func (o *Orchestrator) Scopes() ([]string, error) {
	return o.Store.ListScopes()
}

func (o *Orchestrator) detectRemoval(eng *engine) (model.Record, error) {
	rec, err := eng.scope.Record()
	if err != nil {
		return model.Record{}, err
	}
	dl := rec.Download
	if !dl.Completed() || dl.FileRemoved || dl.Path == "" || eng.controller.Active() {
		return rec, nil
	}
	exists, err := fsutil.Exists(dl.Path)
	if err != nil || exists {
		return rec, err
	}

	logger.Warn("Downloaded artifact is gone", logger.Fields{"scope": eng.scope.Name(), "path": dl.Path})
	if err := eng.scope.Update(func(tx *store.Tx) {
		tx.SetBool(store.FieldFileRemoved, true)
	}); err != nil {
		return model.Record{}, err
	}
	rec.Download.FileRemoved = true
	return rec, nil
}

func (o *Orchestrator) finish(scope string, out download.Outcome, err error) {
	switch {
	case err != nil:
		emit(o.Hooks, Event{Phase: "error", Scope: scope, Msg: err.Error()})
	case out == download.OutcomeCompleted:
		emit(o.Hooks, Event{Phase: "done", Scope: scope})
	case out == download.OutcomeUpToDate:
		emit(o.Hooks, Event{Phase: "up_to_date", Scope: scope})
	case out == download.OutcomePaused:
		emit(o.Hooks, Event{Phase: "paused", Scope: scope})
	}
}

// engine returns the per-scope controller and reconciler, creating them on first use.
func (o *Orchestrator) engine(scope string) (*engine, error) {
	if o.Store == nil {
		return nil, errors.New("orchestrator has no store")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if eng, ok := o.engines[scope]; ok {
		return eng, nil
	}
	sc, err := o.Store.Scope(scope)
	if err != nil {
		return nil, err
	}

	var opts []download.Option
	if o.ProgressInterval > 0 {
		opts = append(opts, download.WithProgressInterval(o.ProgressInterval))
	}
	ctrl := download.NewController(sc, o.Starter, o.DocumentsDir, opts...)
	eng := &engine{
		scope:      sc,
		controller: ctrl,
		reconciler: reconcile.NewReconciler(sc, o.Catalog, ctrl),
	}
	if o.engines == nil {
		o.engines = make(map[string]*engine)
	}
	o.engines[scope] = eng
	return eng, nil
}
