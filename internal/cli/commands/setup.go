package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapsheets/internal/cli/config"
	"github.com/leapstack-labs/leapsheets/internal/cli/output"
	sharedcfg "github.com/leapstack-labs/leapsheets/internal/config"
	"github.com/leapstack-labs/leapsheets/internal/export"
	"github.com/leapstack-labs/leapsheets/internal/sheets"
	"github.com/leapstack-labs/leapsheets/internal/sheets/google"
	"github.com/leapstack-labs/leapsheets/internal/sheets/xlsx"
	"github.com/leapstack-labs/leapsheets/internal/state"
	"github.com/leapstack-labs/leapsheets/internal/upload"
	"github.com/leapstack-labs/leapsheets/internal/warehouse"
	"github.com/leapstack-labs/leapsheets/pkg/core"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext from the loaded configuration.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}
}

// getConfig returns the current configuration, loading defaults when the
// root command did not run.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	cfg, err := config.LoadConfig("", nil)
	if err != nil {
		return &config.Config{
			StatePath:    config.DefaultStateFile,
			Environment:  config.DefaultEnv,
			OutputFormat: config.DefaultOutput,
			Sheets:       &config.SheetsConfig{Backend: sharedcfg.DefaultBackend},
		}
	}
	return cfg
}

// Runtime is the set of services an export needs.
type Runtime struct {
	Warehouse *warehouse.Executor
	Sheets    sheets.Client
	Store     core.Store
	Exporter  *export.Exporter
}

// Close releases the warehouse connection and the history store.
func (rt *Runtime) Close() {
	if rt.Warehouse != nil {
		_ = rt.Warehouse.Close()
	}
	if rt.Store != nil {
		_ = rt.Store.Close()
	}
}

// NewRuntime wires the warehouse, spreadsheet backend and history store
// from configuration. A missing spreadsheet backend is not an error here:
// the exporter reports it when a block needs it.
func (c *CommandContext) NewRuntime(ctx context.Context, noRewrite bool) *Runtime {
	rt := &Runtime{
		Warehouse: warehouse.New(c.Cfg.Target.AdapterConfig(), c.Logger),
	}

	client, err := newSheetsClient(ctx, c.Cfg.Sheets, c.Logger)
	if err != nil {
		c.Logger.Warn("spreadsheet backend unavailable", "error", err)
	}
	rt.Sheets = client

	if !c.Cfg.NoHistory {
		store, err := openStore(c.Cfg.StatePath, c.Logger)
		if err != nil {
			c.Logger.Warn("export history disabled", "error", err)
		} else {
			rt.Store = store
		}
	}

	var uploader export.Uploader
	if client != nil {
		uploader = upload.New(client, uploadOptions(c.Cfg.Sheets), c.Logger)
	}
	exporterCfg := export.Config{
		Warehouse: rt.Warehouse,
		Uploader:  uploader,
		NoRewrite: noRewrite || c.Cfg.NoRewrite,
		Logger:    c.Logger,
	}
	if rt.Store != nil {
		exporterCfg.Store = rt.Store
	}
	rt.Exporter = export.New(exporterCfg)
	return rt
}

func uploadOptions(s *config.SheetsConfig) upload.Options {
	if s == nil {
		return upload.Options{}
	}
	return upload.Options{
		AutoCreateSheets: s.AutoCreateSheets,
		QueryNote:        s.QueryNote,
		ProbeRows:        s.ProbeRows,
		ProbeCols:        s.ProbeCols,
	}
}

// newSheetsClient builds the configured backend. The Google credentials
// file is read and validated on every call.
func newSheetsClient(ctx context.Context, s *config.SheetsConfig, logger *slog.Logger) (sheets.Client, error) {
	if s == nil {
		return nil, fmt.Errorf("no sheets backend configured")
	}
	switch s.Backend {
	case sharedcfg.BackendXLSX:
		if err := os.MkdirAll(s.WorkbookDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create workbook directory: %w", err)
		}
		return xlsx.New(s.WorkbookDir, logger), nil
	default:
		client, err := google.NewFromCredentialsFile(ctx, logger, s.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// openStore opens the export history database, creating its directory.
func openStore(path string, logger *slog.Logger) (*state.SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	store := state.NewSQLiteStore(logger)
	if err := store.Open(path); err != nil {
		return nil, err
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
