package config

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapsheets/pkg/adapter"
	"github.com/leapstack-labs/leapsheets/pkg/core"
)

// ValidateTarget checks that a configured target names a registered adapter.
// A nil or typeless target means no warehouse is configured, which is not an
// error until an export needs one.
func ValidateTarget(t *core.TargetConfig) error {
	if t == nil || t.Type == "" {
		return nil
	}
	if !adapter.IsRegistered(t.Type) {
		return &adapter.UnknownAdapterError{
			Type:      t.Type,
			Available: adapter.ListAdapters(),
		}
	}
	switch strings.ToLower(t.Type) {
	case "postgres":
		if t.Host == "" {
			return fmt.Errorf("target.host is required for postgres")
		}
	}
	return nil
}

// ValidateSheets checks the backend selection. Missing credentials are
// reported by the export, not here, so commands that never upload still run.
func ValidateSheets(s *SheetsConfig) error {
	if s == nil {
		return nil
	}
	switch s.Backend {
	case BackendGoogle, BackendXLSX:
		return nil
	default:
		return fmt.Errorf("unknown sheets backend %q (expected %s or %s)", s.Backend, BackendGoogle, BackendXLSX)
	}
}
