package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/glorpus-work/modelkeep/internal/logger"
	"github.com/glorpus-work/modelkeep/pkg/catalog"
	"github.com/glorpus-work/modelkeep/pkg/config"
	"github.com/glorpus-work/modelkeep/pkg/fsutil"
	"github.com/glorpus-work/modelkeep/pkg/orchestrator"
	"github.com/glorpus-work/modelkeep/pkg/store"
	"github.com/glorpus-work/modelkeep/pkg/transfer"
)

// These variables will be set by the main package
var (
	ConfigPath   *string
	Verbose      *bool
	OutputFormat *string
	Scope        *string
)

// loadConfig loads the configuration file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if OutputFormat != nil && *OutputFormat != "" {
		cfg.Settings.OutputFormat = *OutputFormat
	}
	if Verbose != nil && *Verbose {
		cfg.Settings.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.InitLogger(cfg.Settings.LogLevel, logger.OutputFormat(cfg.Settings.OutputFormat))
	return cfg, nil
}

func getConfigPath() string {
	if ConfigPath != nil && *ConfigPath != "" {
		return *ConfigPath
	}

	defaultPath, err := config.GetDefaultConfigPath()
	if err != nil {
		// An empty path surfaces as ErrEmptyConfigPath when the file is read.
		logger.Warn("Failed to get default config path, using empty path", logger.Fields{"error": err})
		return ""
	}
	return defaultPath
}

func currentScope() string {
	if Scope != nil && *Scope != "" {
		return *Scope
	}
	return store.GlobalScope
}

// newCatalogService builds the catalog service described by cfg. An empty catalog
// URL serves the bundled catalog only.
func newCatalogService(cfg *config.Config) (*catalog.Service, error) {
	var source catalog.Source
	if cfg.Settings.CatalogURL != "" {
		s, err := catalog.NewHTTPSource(cfg.Settings.CatalogURL, cfg.Settings.HTTPTimeout, cfg.Settings.UserAgent)
		if err != nil {
			return nil, err
		}
		source = s
	}
	return catalog.NewService(source, cfg.Settings.DeviceRAMGB), nil
}

// openOrchestrator opens the metadata store and wires the engine. The returned
// function closes the store.
func openOrchestrator(cfg *config.Config, hooks orchestrator.Hooks) (*orchestrator.Orchestrator, func(), error) {
	if err := os.MkdirAll(cfg.GetDocumentsDir(), fsutil.DirModeDefault); err != nil {
		return nil, nil, fmt.Errorf("failed to create documents directory: %w", err)
	}
	if err := os.MkdirAll(cfg.GetStorePath(), fsutil.DirModeDefault); err != nil {
		return nil, nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := store.Open(store.DefaultConfig(cfg.GetStorePath()))
	if err != nil {
		return nil, nil, err
	}
	svc, err := newCatalogService(cfg)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	orch := &orchestrator.Orchestrator{
		Store:            db,
		Catalog:          svc,
		Starter:          transfer.NewHTTPStarter(cfg.Settings.HTTPTimeout, cfg.Settings.UserAgent),
		DocumentsDir:     cfg.GetDocumentsDir(),
		ProgressInterval: cfg.Settings.ProgressInterval,
		Hooks:            hooks,
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			logger.Warn("Failed to close store", logger.Fields{"error": err.Error()})
		}
	}
	return orch, closeFn, nil
}

// printHooks renders orchestrator events as plain lines for text output.
func printHooks(cfg *config.Config) orchestrator.Hooks {
	if cfg.Settings.OutputFormat == "json" {
		return orchestrator.Hooks{}
	}
	return orchestrator.Hooks{OnEvent: func(e orchestrator.Event) {
		if e.Msg != "" {
			fmt.Printf("%s: %s (%s)\n", e.Phase, e.Msg, e.Scope)
		} else {
			fmt.Printf("%s (%s)\n", e.Phase, e.Scope)
		}
	}}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
