package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glorpus-work/modelkeep/internal/api"
	"github.com/glorpus-work/modelkeep/internal/logger"
	"github.com/glorpus-work/modelkeep/pkg/orchestrator"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control API",
		Long: `Serve the HTTP control API and Prometheus metrics. Transfers started over the
API keep running in the background; stopping the server pauses them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), listenAddr)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (defaults to config)")

	return cmd
}

func runServe(ctx context.Context, listenAddr string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr == "" {
		listenAddr = cfg.Settings.ListenAddr
	}

	hooks := orchestrator.Hooks{OnEvent: func(e orchestrator.Event) {
		logger.Debug("Engine event", logger.Fields{"phase": e.Phase, "scope": e.Scope, "msg": e.Msg})
	}}
	orch, closeStore, err := openOrchestrator(cfg, hooks)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.Settings.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	apiServer := api.NewServer(orch)
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: cfg.Settings.HTTPTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Control API listening", logger.Fields{"addr": listenAddr})
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down control API")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", logger.Fields{"error": err.Error()})
	}
	return apiServer.Shutdown(shutdownCtx)
}
