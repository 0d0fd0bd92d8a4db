package config

import (
	"strings"

	"github.com/leapstack-labs/leapsheets/pkg/core"
)

// Default configuration values.
const (
	DefaultStateFile   = ".leapsheets/history.db"
	DefaultEnv         = "dev"
	DefaultOutput      = "auto"
	DefaultBackend     = BackendGoogle
	DefaultWorkbookDir = "workbooks"
	DefaultProbeRows   = 1000
	DefaultProbeCols   = 52
)

var defaultSchemas = map[string]string{
	"duckdb":   "main",
	"sqlite":   "main",
	"postgres": "public",
}

// DefaultSchemaForType returns the default schema for a warehouse type.
func DefaultSchemaForType(dbType string) string {
	if s, ok := defaultSchemas[strings.ToLower(dbType)]; ok {
		return s
	}
	return "main"
}

// ApplyTargetDefaults fills in the schema and port a target type implies.
func ApplyTargetDefaults(t *core.TargetConfig) {
	if t == nil || t.Type == "" {
		return
	}
	t.Type = strings.ToLower(t.Type)
	if t.Schema == "" {
		t.Schema = DefaultSchemaForType(t.Type)
	}
	if t.Type == "postgres" && t.Port == 0 {
		t.Port = 5432
	}
}

// ApplySheetsDefaults fills unset spreadsheet settings.
func ApplySheetsDefaults(s *SheetsConfig) {
	if s == nil {
		return
	}
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	if s.Backend == "" {
		s.Backend = DefaultBackend
	}
	if s.Backend == BackendXLSX && s.WorkbookDir == "" {
		s.WorkbookDir = DefaultWorkbookDir
	}
	if s.ProbeRows <= 0 {
		s.ProbeRows = DefaultProbeRows
	}
	if s.ProbeCols <= 0 {
		s.ProbeCols = DefaultProbeCols
	}
}
