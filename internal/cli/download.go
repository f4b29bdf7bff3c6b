package cli

import (
	"context"
	"fmt"

	"github.com/glorpus-work/modelkeep/internal/logger"
	"github.com/glorpus-work/modelkeep/pkg/download"
	"github.com/glorpus-work/modelkeep/pkg/orchestrator"
	"github.com/spf13/cobra"
)

// NewDownloadCmd creates the download command.
func NewDownloadCmd() *cobra.Command {
	var restart bool

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the recommended model",
		Long: `Fetch the model catalog, pick the model recommended for this device and
download it into the documents directory. Interrupting the command pauses the
transfer; run "modelkeep resume" to continue it later.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDownload(cmd.Context(), restart)
		},
	}

	cmd.Flags().BoolVar(&restart, "restart", false, "Discard any existing file and partial data first")

	return cmd
}

// NewResumeCmd creates the resume command.
func NewResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused download",
		Long:  "Continue a download that was paused or interrupted, from where it stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runResume(cmd.Context())
		},
	}

	return cmd
}

func runDownload(ctx context.Context, restart bool) error {
	return runTransfer(ctx, func(ctx context.Context, orch *orchestrator.Orchestrator, scope string) (download.Outcome, error) {
		return orch.Install(ctx, scope, restart)
	})
}

func runResume(ctx context.Context) error {
	return runTransfer(ctx, func(ctx context.Context, orch *orchestrator.Orchestrator, scope string) (download.Outcome, error) {
		return orch.Resume(ctx, scope)
	})
}

type transferFunc func(ctx context.Context, orch *orchestrator.Orchestrator, scope string) (download.Outcome, error)

// runTransfer runs fn until it returns. Cancellation of ctx (Ctrl-C) pauses the
// transfer instead of aborting it, so the partial data stays resumable. A pause
// requested before the transfer has started is applied once it does.
func runTransfer(ctx context.Context, fn transferFunc) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	orch, closeStore, err := openOrchestrator(cfg, printHooks(cfg))
	if err != nil {
		return err
	}
	defer closeStore()

	scope := currentScope()

	var res struct {
		out download.Outcome
		err error
	}
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		res.out, res.err = fn(context.WithoutCancel(ctx), orch, scope)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		logger.Info("Interrupted, pausing download (press Ctrl-C again to abort)", logger.Fields{"scope": scope})
		if err := orch.Interrupt(context.WithoutCancel(ctx), scope, finished); err != nil {
			logger.Error("Failed to pause download", logger.Fields{"scope": scope, "error": err.Error()})
		}
		<-finished
	}
	if res.err != nil {
		return fmt.Errorf("download failed: %w", res.err)
	}

	if cfg.Settings.OutputFormat == "json" {
		st, err := orch.Status(scope)
		if err != nil {
			return err
		}
		return printJSON(struct {
			Outcome string              `json:"outcome"`
			Status  orchestrator.Status `json:"status"`
		}{res.out.String(), st})
	}

	switch res.out {
	case download.OutcomeCompleted:
		path, err := orch.ArtifactPath(scope)
		if err != nil {
			return err
		}
		logger.Success("Model downloaded", logger.Fields{"scope": scope, "path": path})
	case download.OutcomeUpToDate:
		logger.Success("Model is already up to date", logger.Fields{"scope": scope})
	case download.OutcomePaused:
		logger.Info("Download paused, run \"modelkeep resume\" to continue", logger.Fields{"scope": scope})
	default:
		logger.Info("Nothing to resume", logger.Fields{"scope": scope})
	}
	return nil
}
