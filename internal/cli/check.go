package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/glorpus-work/modelkeep/internal/logger"
	"github.com/glorpus-work/modelkeep/pkg/catalog"
	"github.com/glorpus-work/modelkeep/pkg/orchestrator"
	"github.com/spf13/cobra"
)

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check for model updates",
		Long: `Compare the downloaded model with the catalog's current recommendation.
Updates that only change metadata are applied right away; updates that need
new bytes are reported and left for "modelkeep download".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd.Context())
		},
	}

	return cmd
}

// NewCatalogCmd creates the catalog command.
func NewCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the model catalog",
		Long:  "Show the models offered by the catalog and which one is recommended for this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCatalog(cmd.Context())
		},
	}

	return cmd
}

func runCheck(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	orch, closeStore, err := openOrchestrator(cfg, orchestrator.Hooks{})
	if err != nil {
		return err
	}
	defer closeStore()

	res, err := orch.Check(ctx, currentScope())
	if err != nil {
		return fmt.Errorf("update check failed: %w", err)
	}

	if cfg.Settings.OutputFormat == "json" {
		return printJSON(res)
	}

	switch {
	case !res.HasUpdate:
		logger.Success("Model is up to date", logger.Fields{"version": res.Recommendation.Version})
	case res.RequiresDownload:
		logger.Info("Update available, run \"modelkeep download\" to fetch it", logger.Fields{
			"model":  res.Recommendation.Descriptor.Name,
			"reason": string(res.Reason),
		})
	case res.Applied:
		logger.Success("Model metadata updated", logger.Fields{
			"version": res.Recommendation.Version,
			"reason":  string(res.Reason),
		})
	default:
		logger.Info("Update postponed until the running download ends", logger.Fields{"reason": string(res.Reason)})
	}
	return nil
}

func runCatalog(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := newCatalogService(cfg)
	if err != nil {
		return err
	}

	c, bundled, err := svc.Catalog(ctx)
	if err != nil {
		return err
	}
	recommended, err := catalog.Recommend(ctx, c, cfg.Settings.DeviceRAMGB)
	if err != nil {
		logger.Warn("No recommendation available", logger.Fields{"error": err.Error()})
	}

	if cfg.Settings.OutputFormat == "json" {
		doc, err := catalog.ToJSON(c)
		if err != nil {
			return err
		}
		return printJSON(struct {
			Bundled     bool            `json:"bundled"`
			Recommended string          `json:"recommended,omitempty"`
			Catalog     json.RawMessage `json:"catalog"`
		}{bundled, recommended, doc})
	}

	source := "remote"
	if bundled {
		source = "bundled"
	}
	fmt.Printf("Catalog %s (%s)\n\n", c.Version, source)

	ids := c.IDs()
	tabWriter := tabwriter.NewWriter(os.Stdout, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tabWriter, "\tID\tNAME\tSIZE\tRAM")
	for _, id := range ids {
		d, _ := c.Lookup(id)
		mark := ""
		if id == recommended {
			mark = "*"
		}
		_, _ = fmt.Fprintf(tabWriter, "%s\t%s\t%s\t%.2f GB\t%.0f GB\n", mark, id, d.Name, d.SizeGB, d.RAMRequiredGB)
	}
	return tabWriter.Flush()
}
