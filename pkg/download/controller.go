// Package download implements the download state machine for one persistence scope:
// Idle -> Downloading -> {Paused, Completed, Failed}, with Paused -> Downloading on
// resume and Paused -> Idle on restart. Every transition is recorded in the scope's
// persisted record; the only in-memory state is the active transfer handle.
package download

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/glorpus-work/modelkeep/internal/logger"
	"github.com/glorpus-work/modelkeep/pkg/errutils"
	"github.com/glorpus-work/modelkeep/pkg/filename"
	"github.com/glorpus-work/modelkeep/pkg/fsutil"
	"github.com/glorpus-work/modelkeep/pkg/metrics"
	"github.com/glorpus-work/modelkeep/pkg/model"
	"github.com/glorpus-work/modelkeep/pkg/progress"
	"github.com/glorpus-work/modelkeep/pkg/store"
	"github.com/glorpus-work/modelkeep/pkg/transfer"
)

// Controller owns the single active transfer of a scope.
type Controller struct {
	scope    *store.Scope
	starter  transfer.Starter
	dir      string
	interval time.Duration
	clock    clock.Clock

	mu      sync.Mutex
	claimed bool
	active  transfer.Handle
	pausing bool
}

// Option customises a Controller.
type Option func(*Controller)

// WithProgressInterval sets the progress throttle window.
func WithProgressInterval(d time.Duration) Option {
	return func(c *Controller) { c.interval = d }
}

// WithClock swaps the time source used for timestamps and throttling.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// NewController creates a controller storing artifacts in documentsDir.
func NewController(scope *store.Scope, starter transfer.Starter, documentsDir string, opts ...Option) *Controller {
	c := &Controller{
		scope:    scope,
		starter:  starter,
		dir:      documentsDir,
		interval: progress.DefaultInterval,
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Scope returns the name of the persistence scope the controller writes.
func (c *Controller) Scope() string {
	return c.scope.Name()
}

// Active reports whether a Start or Resume call currently owns the scope.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.claimed || c.pausing
}

// Transferring reports whether a transfer handle is open and can be paused.
func (c *Controller) Transferring() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil && !c.pausing
}

// Start brings the artifact described by req onto the device and blocks until the
// transfer ends. A paused transfer is resumed unless req.Restart is set; an artifact
// that is already complete under the target name returns OutcomeUpToDate.
func (c *Controller) Start(ctx context.Context, req StartRequest) (Outcome, error) {
	if err := c.claim(); err != nil {
		return OutcomeNone, err
	}
	defer c.release()

	target := filename.Derive(&req.Descriptor, req.Version)
	path := filepath.Join(c.dir, target)

	rec, err := c.scope.Record()
	if err != nil {
		return OutcomeNone, err
	}
	dl := rec.Download

	if !req.Restart && dl.Resumable() {
		logger.Debug("Paused transfer found, resuming", logger.Fields{"scope": c.Scope(), "filename": dl.Filename})
		return c.resume(ctx, rec)
	}

	if dl.Filename == target && dl.Completed() {
		exists, err := fsutil.Exists(dl.Path)
		if err != nil {
			return OutcomeNone, err
		}
		if exists {
			return OutcomeUpToDate, nil
		}
		logger.Warn("Completed artifact is missing on disk, downloading again", logger.Fields{
			"scope": c.Scope(),
			"path":  dl.Path,
		})
	}

	if req.Restart {
		if err := c.discard(dl.Path, path); err != nil {
			return OutcomeNone, err
		}
	}

	err = c.scope.Update(func(tx *store.Tx) {
		tx.SetDescriptor(&req.Descriptor)
		tx.SetString(store.FieldCatalogID, req.CatalogID)
		tx.SetString(store.FieldCatalogVersion, req.Version)
		tx.SetString(store.FieldFilename, target)
		tx.SetString(store.FieldPath, path)
		tx.SetFloat(store.FieldTotalGB, req.Descriptor.SizeGB)
		tx.Clear(store.FieldCompletedAt)
		tx.Clear(store.FieldError)
		tx.Clear(store.FieldResumeToken)
		tx.SetBool(store.FieldPaused, false)
		tx.SetBool(store.FieldFileRemoved, false)
	})
	if err != nil {
		return OutcomeNone, err
	}

	reporter := c.newReporter()
	handle, err := c.starter.Begin(ctx, req.Descriptor.SourceURL, path, c.onProgress(reporter, req.Descriptor.SizeGB))
	if err != nil {
		reporter.Close()
		return c.fail(nil, err)
	}
	c.setActive(handle)
	metrics.RecordTransferStarted(c.Scope(), false)
	logger.Info("Download started", logger.Fields{
		"scope":    c.Scope(),
		"filename": target,
		"url":      req.Descriptor.SourceURL,
	})

	res, err := handle.Wait(ctx)
	reporter.Close()
	return c.settle(handle, res, err)
}

// Resume continues a paused transfer from its persisted resume token and blocks
// until it ends. Without a token it does nothing.
func (c *Controller) Resume(ctx context.Context) (Outcome, error) {
	if err := c.claim(); err != nil {
		return OutcomeNone, err
	}
	defer c.release()

	rec, err := c.scope.Record()
	if err != nil {
		return OutcomeNone, err
	}
	return c.resume(ctx, rec)
}

func (c *Controller) resume(ctx context.Context, rec model.Record) (Outcome, error) {
	dl := rec.Download
	if len(dl.ResumeToken) == 0 {
		return OutcomeNone, nil
	}

	var sizeGB float64
	if rec.Descriptor != nil {
		sizeGB = rec.Descriptor.SizeGB
	}
	reporter := c.newReporter()
	handle, err := c.starter.Restore(ctx, dl.ResumeToken, dl.Path, c.onProgress(reporter, sizeGB))
	if errors.Is(err, errutils.ErrInvalidResumeToken) {
		reporter.Close()
		logger.Warn("Discarding unreadable resume token", logger.Fields{"scope": c.Scope(), "error": err.Error()})
		return OutcomeNone, c.scope.Update(func(tx *store.Tx) { tx.Clear(store.FieldResumeToken) })
	}
	if err != nil {
		reporter.Close()
		return c.fail(nil, err)
	}
	c.setActive(handle)

	if err := c.scope.Update(func(tx *store.Tx) { tx.SetBool(store.FieldPaused, false) }); err != nil {
		logger.Warn("Could not clear paused flag", logger.Fields{"scope": c.Scope(), "error": err.Error()})
	}
	metrics.RecordTransferStarted(c.Scope(), true)
	logger.Info("Download resumed", logger.Fields{"scope": c.Scope(), "filename": dl.Filename})

	res, err := handle.Wait(ctx)
	reporter.Close()
	return c.settle(handle, res, err)
}

// Pause suspends the active transfer and persists its resume token. It does nothing
// when no transfer is active or the transfer has already finished. Pause never marks
// the artifact complete.
func (c *Controller) Pause(ctx context.Context) error {
	c.mu.Lock()
	handle := c.active
	if handle == nil {
		c.mu.Unlock()
		return nil
	}
	c.pausing = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.pausing = false
		c.mu.Unlock()
	}()

	token, err := handle.Pause(ctx)
	if errors.Is(err, errutils.ErrTransferFinished) {
		return nil
	}
	if err != nil {
		return errutils.Wrap(err, "could not pause transfer")
	}

	err = c.scope.Update(func(tx *store.Tx) {
		tx.SetBytes(store.FieldResumeToken, token)
		tx.SetBool(store.FieldPaused, true)
	})
	if err != nil {
		return err
	}
	metrics.RecordTransferPaused(c.Scope())
	logger.Info("Download paused", logger.Fields{"scope": c.Scope()})
	return nil
}

// settle applies the outcome rule to a finished transfer.
func (c *Controller) settle(handle transfer.Handle, res transfer.Result, err error) (Outcome, error) {
	if err == nil && res.Success() {
		return c.complete(res)
	}
	if err == nil {
		err = errutils.ErrTransferFailedWithStatus(res.StatusCode)
	}

	c.mu.Lock()
	pausing := c.pausing
	c.mu.Unlock()
	if pausing || errors.Is(err, errutils.ErrTransferPaused) {
		return OutcomePaused, nil
	}
	rec, rerr := c.scope.Record()
	if rerr == nil && rec.Download.Paused {
		return OutcomePaused, nil
	}
	return c.fail(handle, err)
}

func (c *Controller) complete(res transfer.Result) (Outcome, error) {
	now := c.clock.Now()
	gb := model.ToGB(res.Bytes)
	err := c.scope.Update(func(tx *store.Tx) {
		tx.SetTime(store.FieldCompletedAt, now)
		tx.Clear(store.FieldError)
		tx.Clear(store.FieldResumeToken)
		tx.SetBool(store.FieldPaused, false)
		tx.SetBool(store.FieldFileRemoved, false)
		if gb > 0 {
			tx.SetFloat(store.FieldProgressGB, gb)
			tx.SetFloat(store.FieldTotalGB, gb)
		}
	})
	if err != nil {
		return OutcomeNone, err
	}
	if gb > 0 {
		metrics.SetProgress(c.Scope(), gb)
	}
	metrics.RecordTransferCompleted(c.Scope())
	logger.Success("Download complete", logger.Fields{"scope": c.Scope(), "path": res.Path})
	return OutcomeCompleted, nil
}

// fail records a transfer failure so the caller is offered resume or restart, then
// returns the failure. The resume token is kept when the handle can still produce one.
func (c *Controller) fail(handle transfer.Handle, cause error) (Outcome, error) {
	var token []byte
	if handle != nil {
		if t, err := handle.Token(); err == nil {
			token = t
		}
	}
	err := c.scope.Update(func(tx *store.Tx) {
		tx.SetString(store.FieldError, cause.Error())
		tx.SetBool(store.FieldPaused, true)
		if token != nil {
			tx.SetBytes(store.FieldResumeToken, token)
		}
	})
	if err != nil {
		logger.Error("Could not record transfer failure", logger.Fields{"scope": c.Scope(), "error": err.Error()})
	}
	c.clearActive()
	metrics.RecordTransferFailed(c.Scope())
	logger.Error("Download failed", logger.Fields{"scope": c.Scope(), "error": cause.Error()})
	return OutcomeNone, cause
}

// discard removes the files of a previous attempt and resets transfer state.
func (c *Controller) discard(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := fsutil.RemoveIfExists(p); err != nil {
			return err
		}
		if err := fsutil.RemoveIfExists(fsutil.PartialPath(p)); err != nil {
			return err
		}
	}
	metrics.SetProgress(c.Scope(), 0)
	return c.scope.Update(func(tx *store.Tx) {
		tx.SetFloat(store.FieldProgressGB, 0)
		tx.Clear(store.FieldError)
		tx.Clear(store.FieldResumeToken)
		tx.SetBool(store.FieldPaused, false)
	})
}

func (c *Controller) newReporter() *progress.Reporter {
	return progress.NewReporter(c.persistProgress,
		progress.WithClock(c.clock),
		progress.WithInterval(c.interval),
	)
}

func (c *Controller) persistProgress(p progress.Progress) {
	err := c.scope.Update(func(tx *store.Tx) {
		tx.SetFloat(store.FieldProgressGB, p.DoneGB)
		if p.TotalGB > 0 {
			tx.SetFloat(store.FieldTotalGB, p.TotalGB)
		}
	})
	if err != nil {
		logger.Warn("Could not persist progress", logger.Fields{"scope": c.Scope(), "error": err.Error()})
		return
	}
	metrics.SetProgress(c.Scope(), p.DoneGB)
}

// onProgress adapts byte counts from the transfer to the reporter. sizeGB stands in
// for the total until the server announces a length.
func (c *Controller) onProgress(r *progress.Reporter, sizeGB float64) transfer.ProgressFunc {
	return func(done, total int64) {
		totalGB := sizeGB
		if total > 0 {
			totalGB = model.ToGB(total)
		}
		r.Report(progress.Progress{DoneGB: model.ToGB(done), TotalGB: totalGB})
	}
}

func (c *Controller) claim() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claimed || c.pausing {
		return ErrBusy
	}
	c.claimed = true
	return nil
}

func (c *Controller) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claimed = false
	c.active = nil
}

func (c *Controller) setActive(h transfer.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = h
}

func (c *Controller) clearActive() {
	c.setActive(nil)
}
