package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapsheets/internal/cli/config"
	"github.com/leapstack-labs/leapsheets/internal/cli/output"
	sharedcfg "github.com/leapstack-labs/leapsheets/internal/config"
	"github.com/leapstack-labs/leapsheets/internal/sheets/google"
	"github.com/leapstack-labs/leapsheets/internal/warehouse"
)

// DoctorOptions holds options for the doctor command.
type DoctorOptions struct {
	Timeout time.Duration
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	opts := &DoctorOptions{}
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and connectivity",
		Long: `Check that leapsheets is ready to export:
  - a config file was found
  - the warehouse target is configured and answers a ping
  - the spreadsheet backend has usable credentials or a workbook directory
  - the export history database can be opened`,
		Example: `  leapsheets doctor
  leapsheets doctor -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContext(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()
			return renderDoctor(cc.Renderer, runChecks(ctx, cc))
		},
	}

	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 15*time.Second, "Time allowed for connectivity checks")

	return cmd
}

// Check statuses.
const (
	CheckPass = "pass"
	CheckWarn = "warn"
	CheckFail = "fail"
)

// HealthCheck is the result of one doctor check.
type HealthCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Checks []HealthCheck `json:"checks"`
	Ready  bool          `json:"ready"`
}

func runChecks(ctx context.Context, cc *CommandContext) *DoctorOutput {
	checks := []HealthCheck{
		checkConfigFile(),
		checkWarehouse(ctx, cc),
		checkSheets(cc.Cfg.Sheets),
		checkHistory(cc),
	}
	ready := true
	for _, c := range checks {
		if c.Status == CheckFail {
			ready = false
		}
	}
	return &DoctorOutput{Checks: checks, Ready: ready}
}

func checkConfigFile() HealthCheck {
	if path := config.GetConfigFileUsed(); path != "" {
		return HealthCheck{Name: "config", Status: CheckPass, Detail: path}
	}
	return HealthCheck{Name: "config", Status: CheckWarn, Detail: "no " + sharedcfg.ConfigFileName + " found, using defaults"}
}

func checkWarehouse(ctx context.Context, cc *CommandContext) HealthCheck {
	if !cc.Cfg.WarehouseConfigured() {
		return HealthCheck{Name: "warehouse", Status: CheckFail, Detail: "no target configured (set target.type)"}
	}
	exec := warehouse.New(cc.Cfg.Target.AdapterConfig(), cc.Logger)
	defer func() { _ = exec.Close() }()
	if err := exec.Ping(ctx); err != nil {
		return HealthCheck{Name: "warehouse", Status: CheckFail, Detail: err.Error()}
	}
	return HealthCheck{Name: "warehouse", Status: CheckPass, Detail: cc.Cfg.Target.Type}
}

func checkSheets(s *config.SheetsConfig) HealthCheck {
	if s == nil {
		return HealthCheck{Name: "sheets", Status: CheckFail, Detail: "no backend configured"}
	}
	switch s.Backend {
	case sharedcfg.BackendXLSX:
		info, err := os.Stat(s.WorkbookDir)
		switch {
		case os.IsNotExist(err):
			return HealthCheck{Name: "sheets", Status: CheckWarn, Detail: fmt.Sprintf("xlsx: %s will be created on first export", s.WorkbookDir)}
		case err != nil:
			return HealthCheck{Name: "sheets", Status: CheckFail, Detail: err.Error()}
		case !info.IsDir():
			return HealthCheck{Name: "sheets", Status: CheckFail, Detail: fmt.Sprintf("xlsx: %s is not a directory", s.WorkbookDir)}
		}
		return HealthCheck{Name: "sheets", Status: CheckPass, Detail: "xlsx: " + s.WorkbookDir}
	default:
		if _, err := google.LoadCredentials(s.CredentialsFile); err != nil {
			return HealthCheck{Name: "sheets", Status: CheckFail, Detail: "google: " + err.Error()}
		}
		return HealthCheck{Name: "sheets", Status: CheckPass, Detail: "google: " + s.CredentialsFile}
	}
}

func checkHistory(cc *CommandContext) HealthCheck {
	if cc.Cfg.NoHistory {
		return HealthCheck{Name: "history", Status: CheckWarn, Detail: "disabled"}
	}
	store, err := openStore(cc.Cfg.StatePath, cc.Logger)
	if err != nil {
		return HealthCheck{Name: "history", Status: CheckWarn, Detail: err.Error()}
	}
	_ = store.Close()
	return HealthCheck{Name: "history", Status: CheckPass, Detail: cc.Cfg.StatePath}
}

func renderDoctor(r *output.Renderer, out *DoctorOutput) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, "leapsheets doctor")
	for _, c := range out.Checks {
		status := "success"
		switch c.Status {
		case CheckWarn:
			status = "warning"
		case CheckFail:
			status = "failed"
		}
		r.StatusLine(c.Name, status, c.Detail)
	}
	r.Println("")
	if out.Ready {
		r.Success("Ready to export")
	} else {
		r.Warning("Some checks failed")
	}
	return nil
}
