package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapsheets/internal/testutil"
	"github.com/leapstack-labs/leapsheets/pkg/adapter"
	"github.com/leapstack-labs/leapsheets/pkg/core"

	_ "github.com/leapstack-labs/leapsheets/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapsheets/pkg/adapters/postgres"
)

func TestApplyTargetDefaults(t *testing.T) {
	tests := []struct {
		name   string
		target *core.TargetConfig
		schema string
		port   int
	}{
		{"duckdb", &core.TargetConfig{Type: "duckdb"}, "main", 0},
		{"postgres", &core.TargetConfig{Type: "Postgres"}, "public", 5432},
		{"postgres keeps port", &core.TargetConfig{Type: "postgres", Port: 6543}, "public", 6543},
		{"explicit schema", &core.TargetConfig{Type: "duckdb", Schema: "analytics"}, "analytics", 0},
		{"unknown type", &core.TargetConfig{Type: "other"}, "main", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ApplyTargetDefaults(tt.target)
			assert.Equal(t, tt.schema, tt.target.Schema)
			assert.Equal(t, tt.port, tt.target.Port)
		})
	}

	empty := &core.TargetConfig{}
	ApplyTargetDefaults(empty)
	assert.Empty(t, empty.Schema, "typeless targets stay unconfigured")
	ApplyTargetDefaults(nil)
}

func TestApplySheetsDefaults(t *testing.T) {
	s := &SheetsConfig{}
	ApplySheetsDefaults(s)
	assert.Equal(t, BackendGoogle, s.Backend)
	assert.Empty(t, s.WorkbookDir)
	assert.Equal(t, DefaultProbeRows, s.ProbeRows)
	assert.Equal(t, DefaultProbeCols, s.ProbeCols)

	x := &SheetsConfig{Backend: " XLSX ", ProbeRows: 20}
	ApplySheetsDefaults(x)
	assert.Equal(t, BackendXLSX, x.Backend)
	assert.Equal(t, DefaultWorkbookDir, x.WorkbookDir)
	assert.Equal(t, 20, x.ProbeRows)
}

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		name    string
		target  *core.TargetConfig
		wantErr string
	}{
		{"nil", nil, ""},
		{"unconfigured", &core.TargetConfig{}, ""},
		{"duckdb", &core.TargetConfig{Type: "duckdb"}, ""},
		{"postgres", &core.TargetConfig{Type: "postgres", Host: "db"}, ""},
		{"postgres without host", &core.TargetConfig{Type: "postgres"}, "target.host is required"},
		{"unknown", &core.TargetConfig{Type: "oracle"}, `unknown warehouse type "oracle"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTarget(tt.target)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	var unknown *adapter.UnknownAdapterError
	require.ErrorAs(t, ValidateTarget(&core.TargetConfig{Type: "oracle"}), &unknown)
	assert.Contains(t, unknown.Available, "duckdb")
}

func TestValidateSheets(t *testing.T) {
	assert.NoError(t, ValidateSheets(nil))
	assert.NoError(t, ValidateSheets(&SheetsConfig{Backend: BackendXLSX}))
	assert.ErrorContains(t, ValidateSheets(&SheetsConfig{Backend: "excel"}), `unknown sheets backend "excel"`)
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, root, ConfigFileNameAlt, "target:\n  type: duckdb\n")
	nested := filepath.Join(root, "a", "b")
	testutil.WriteFile(t, nested, "q.sql", "SELECT 1;\n")

	assert.Equal(t, filepath.Join(root, ConfigFileNameAlt), FindConfigFile(root))
	assert.Equal(t, root, FindProjectRoot(nested, 10))
	assert.Empty(t, FindProjectRoot(nested, 2), "search depth is bounded")
	assert.Empty(t, FindConfigFile(nested))
}
