// Package config provides the configuration types and defaults shared by the
// CLI and the export workflow.
package config

import "github.com/leapstack-labs/leapsheets/pkg/core"

// TargetConfig is the warehouse target as it appears in leapsheets.yaml.
type TargetConfig = core.TargetConfig

// SheetsConfig selects and tunes the spreadsheet backend.
type SheetsConfig struct {
	// Backend is "google" or "xlsx".
	Backend string `koanf:"backend"`
	// CredentialsFile is a Google service-account JSON key.
	CredentialsFile string `koanf:"credentials_file"`
	// WorkbookDir holds <spreadsheet_id>.xlsx files for the xlsx backend.
	WorkbookDir      string `koanf:"workbook_dir"`
	AutoCreateSheets bool   `koanf:"auto_create_sheets"`
	QueryNote        bool   `koanf:"query_note"`
	ProbeRows        int    `koanf:"probe_rows"`
	ProbeCols        int    `koanf:"probe_cols"`
}

// Sheets backends.
const (
	BackendGoogle = "google"
	BackendXLSX   = "xlsx"
)
