package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/glorpus-work/modelkeep/pkg/orchestrator"
	"github.com/spf13/cobra"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show download state",
		Long:  "Display the persisted download state of the selected scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), watch)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep printing the state as it changes")

	return cmd
}

// NewPathCmd creates the path command.
func NewPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print the downloaded model's path",
		Long:  "Print the absolute path of the completed model file, for use by the inference runtime",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return runPath()
		},
	}

	return cmd
}

func runStatus(ctx context.Context, watch bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	orch, closeStore, err := openOrchestrator(cfg, orchestrator.Hooks{})
	if err != nil {
		return err
	}
	defer closeStore()

	scope := currentScope()
	asJSON := cfg.Settings.OutputFormat == "json"

	st, err := orch.Status(scope)
	if err != nil {
		return err
	}
	if err := printStatus(st, asJSON); err != nil {
		return err
	}
	if !watch {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}
	return orch.Watch(ctx, scope, func(st orchestrator.Status) {
		_ = printStatus(st, asJSON)
	})
}

func printStatus(st orchestrator.Status, asJSON bool) error {
	if asJSON {
		return printJSON(st)
	}

	rec := st.Record
	dl := rec.Download
	tabWriter := tabwriter.NewWriter(os.Stdout, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintf(tabWriter, "Scope:\t%s\n", st.Scope)
	_, _ = fmt.Fprintf(tabWriter, "Phase:\t%s\n", st.Phase)
	if rec.Descriptor != nil {
		_, _ = fmt.Fprintf(tabWriter, "Model:\t%s\n", rec.Descriptor.Name)
		_, _ = fmt.Fprintf(tabWriter, "Source:\t%s\n", rec.Descriptor.SourceURL)
	}
	if rec.CatalogVersion != "" {
		_, _ = fmt.Fprintf(tabWriter, "Catalog:\t%s (%s)\n", rec.CatalogVersion, rec.CatalogID)
	}
	if dl.Filename != "" {
		_, _ = fmt.Fprintf(tabWriter, "File:\t%s\n", dl.Path)
	}
	_, _ = fmt.Fprintf(tabWriter, "Progress:\t%.2f / %.2f GB\n", dl.ProgressGB, dl.TotalGB)
	if dl.CompletedAt != nil {
		_, _ = fmt.Fprintf(tabWriter, "Completed:\t%s\n", dl.CompletedAt.Format(time.RFC3339))
	}
	if dl.FileRemoved {
		_, _ = fmt.Fprintln(tabWriter, "Warning:\tmodel file was removed from disk")
	}
	if dl.Error != "" {
		_, _ = fmt.Fprintf(tabWriter, "Error:\t%s\n", dl.Error)
	}
	_, _ = fmt.Fprintln(tabWriter)
	return tabWriter.Flush()
}

func runPath() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	orch, closeStore, err := openOrchestrator(cfg, orchestrator.Hooks{})
	if err != nil {
		return err
	}
	defer closeStore()

	path, err := orch.ArtifactPath(currentScope())
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}
