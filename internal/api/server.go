//go:generate mockgen -destination=./mocks/engine.go . Engine

// Package api exposes the download engine over a small HTTP control surface.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/glorpus-work/modelkeep/internal/logger"
	"github.com/glorpus-work/modelkeep/pkg/download"
	"github.com/glorpus-work/modelkeep/pkg/errutils"
	"github.com/glorpus-work/modelkeep/pkg/metrics"
	"github.com/glorpus-work/modelkeep/pkg/orchestrator"
	"github.com/glorpus-work/modelkeep/pkg/reconcile"
	"github.com/glorpus-work/modelkeep/pkg/store"
)

const scopeKey = "scope"

// Engine is the subset of the orchestrator served by the API.
type Engine interface {
	Install(ctx context.Context, scope string, restart bool) (download.Outcome, error)
	Resume(ctx context.Context, scope string) (download.Outcome, error)
	Pause(ctx context.Context, scope string) error
	Interrupt(ctx context.Context, scope string, done <-chan struct{}) error
	Check(ctx context.Context, scope string) (reconcile.Result, error)
	Status(scope string) (orchestrator.Status, error)
	ArtifactPath(scope string) (string, error)
	Scopes() ([]string, error)
}

// Server runs transfers started over HTTP in the background. Transfers outlive the
// request that started them; Shutdown pauses whatever is still running.
type Server struct {
	engine Engine

	mu      sync.Mutex
	running map[string]chan struct{}
	wg      sync.WaitGroup
}

// NewServer creates a server over engine.
func NewServer(engine Engine) *Server {
	return &Server{engine: engine, running: make(map[string]chan struct{})}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/api/v1/scopes")
	v1.GET("", s.handleScopes)
	s.scopeRoutes(v1.Group("/global", fixedScope(store.GlobalScope)))
	s.scopeRoutes(v1.Group("/provider/:id", providerScope))

	return r
}

func (s *Server) scopeRoutes(g *gin.RouterGroup) {
	g.GET("/state", s.handleState)
	g.GET("/path", s.handlePath)
	g.GET("/check", s.handleCheck)
	g.POST("/download", s.handleDownload)
	g.POST("/pause", s.handlePause)
	g.POST("/resume", s.handleResume)
}

func fixedScope(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(scopeKey, name)
		c.Next()
	}
}

func providerScope(c *gin.Context) {
	name := store.ProviderScope(c.Param("id"))
	if err := store.ValidateScope(name); err != nil {
		abortWithError(c, err)
		return
	}
	c.Set(scopeKey, name)
	c.Next()
}

func (s *Server) handleScopes(c *gin.Context) {
	scopes, err := s.engine.Scopes()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scopes": scopes})
}

func (s *Server) handleState(c *gin.Context) {
	st, err := s.engine.Status(c.GetString(scopeKey))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handlePath(c *gin.Context) {
	path, err := s.engine.ArtifactPath(c.GetString(scopeKey))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

func (s *Server) handleCheck(c *gin.Context) {
	res, err := s.engine.Check(c.Request.Context(), c.GetString(scopeKey))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleDownload(c *gin.Context) {
	scope := c.GetString(scopeKey)
	restart, _ := strconv.ParseBool(c.Query("restart"))

	s.launch(c, scope, "download", func(ctx context.Context) (download.Outcome, error) {
		return s.engine.Install(ctx, scope, restart)
	})
}

func (s *Server) handleResume(c *gin.Context) {
	scope := c.GetString(scopeKey)
	st, err := s.engine.Status(scope)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !st.Active && !st.Record.Download.Resumable() {
		c.JSON(http.StatusOK, gin.H{"scope": scope, "outcome": download.OutcomeNone.String()})
		return
	}

	s.launch(c, scope, "resume", func(ctx context.Context) (download.Outcome, error) {
		return s.engine.Resume(ctx, scope)
	})
}

func (s *Server) handlePause(c *gin.Context) {
	scope := c.GetString(scopeKey)
	if err := s.engine.Pause(c.Request.Context(), scope); err != nil {
		abortWithError(c, err)
		return
	}
	st, err := s.engine.Status(scope)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// launch runs op in the background and answers 202, or 409 if a transfer started
// through this server is still running in the scope.
func (s *Server) launch(c *gin.Context, scope, op string, fn func(context.Context) (download.Outcome, error)) {
	s.mu.Lock()
	if _, ok := s.running[scope]; ok {
		s.mu.Unlock()
		abortWithError(c, download.ErrBusy)
		return
	}
	done := make(chan struct{})
	s.running[scope] = done
	s.wg.Add(1)
	s.mu.Unlock()

	// The transfer must not end with the request.
	ctx := context.WithoutCancel(c.Request.Context())
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, scope)
			s.mu.Unlock()
			close(done)
		}()

		out, err := fn(ctx)
		if err != nil {
			logger.Error("Background transfer failed", logger.Fields{"scope": scope, "op": op, "error": err.Error()})
			return
		}
		logger.Info("Background transfer finished", logger.Fields{"scope": scope, "op": op, "outcome": out.String()})
	}()

	c.JSON(http.StatusAccepted, gin.H{"scope": scope, "status": "accepted"})
}

// Shutdown pauses every transfer started through this server and waits for the
// background goroutines to return, or for ctx to end. Operations still fetching the
// catalog are paused as soon as their transfer opens.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	running := make(map[string]chan struct{}, len(s.running))
	for scope, done := range s.running {
		running[scope] = done
	}
	s.mu.Unlock()

	var (
		errMu sync.Mutex
		errs  []error
		pause sync.WaitGroup
	)
	for scope, done := range running {
		scope, done := scope, done
		pause.Add(1)
		go func() {
			defer pause.Done()
			if err := s.engine.Interrupt(ctx, scope, done); err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
		}()
	}
	pause.Wait()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errutils.ErrScopeInvalid):
		return http.StatusBadRequest
	case errors.Is(err, errutils.ErrTransferInProgress):
		return http.StatusConflict
	case errors.Is(err, errutils.ErrArtifactMissing):
		return http.StatusNotFound
	case errors.Is(err, errutils.ErrCatalogFetch), errors.Is(err, errutils.ErrTransferFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
