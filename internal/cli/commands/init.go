package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	sharedcfg "github.com/leapstack-labs/leapsheets/internal/config"
)

// InitOptions holds options for the init command.
type InitOptions struct {
	Force   bool
	Backend string
	Target  string
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Create a leapsheets.yaml and an example query file",
		Long: `Initialize a leapsheets project with a starter configuration and an
example SQL file showing the directive syntax.

This creates:
  - leapsheets.yaml   warehouse target and spreadsheet backend
  - example.sql       a query block with export directives
  - .env.example      environment overrides`,
		Example: `  # Initialize in current directory
  leapsheets init

  # Export to local .xlsx workbooks instead of Google Sheets
  leapsheets init --backend xlsx

  # Force overwrite existing config
  leapsheets init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			cc := NewCommandContext(cmd)
			files, err := runInit(dir, opts)
			if err != nil {
				return err
			}
			r := cc.Renderer
			for _, f := range files {
				r.StatusLine(f, "success", "")
			}
			r.Println("")
			r.Success("leapsheets project initialized!")
			r.Println("")
			r.Println("Next steps:")
			r.Println("  1. Point target in leapsheets.yaml at your warehouse")
			r.Println("  2. Set spreadsheet_id in example.sql")
			r.Println("  3. Run 'leapsheets doctor' to check connectivity")
			r.Println("  4. Run 'leapsheets export example.sql'")
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "Overwrite existing files")
	cmd.Flags().StringVar(&opts.Backend, "backend", sharedcfg.BackendGoogle, "Spreadsheet backend: google or xlsx")
	cmd.Flags().StringVar(&opts.Target, "target-type", "duckdb", "Warehouse type: duckdb, postgres or sqlite")

	return cmd
}

type starterTarget struct {
	Type     string `yaml:"type"`
	Database string `yaml:"database,omitempty"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
}

type starterSheets struct {
	Backend          string `yaml:"backend"`
	CredentialsFile  string `yaml:"credentials_file,omitempty"`
	WorkbookDir      string `yaml:"workbook_dir,omitempty"`
	AutoCreateSheets bool   `yaml:"auto_create_sheets"`
	QueryNote        bool   `yaml:"query_note"`
}

type starterConfig struct {
	Target    starterTarget `yaml:"target"`
	Sheets    starterSheets `yaml:"sheets"`
	StatePath string        `yaml:"state_path"`
}

func starter(opts *InitOptions) (starterConfig, error) {
	cfg := starterConfig{StatePath: sharedcfg.DefaultStateFile}

	switch opts.Target {
	case "duckdb":
		cfg.Target = starterTarget{Type: "duckdb", Database: "warehouse.duckdb"}
	case "sqlite":
		cfg.Target = starterTarget{Type: "sqlite", Database: "warehouse.db"}
	case "postgres":
		cfg.Target = starterTarget{
			Type: "postgres", Database: "analytics", Host: "localhost", Port: 5432,
			User: "${PGUSER}", Password: "${PGPASSWORD}",
		}
	default:
		return cfg, fmt.Errorf("unknown target type %q", opts.Target)
	}

	switch opts.Backend {
	case sharedcfg.BackendGoogle:
		cfg.Sheets = starterSheets{Backend: sharedcfg.BackendGoogle, CredentialsFile: "service-account.json", AutoCreateSheets: true}
	case sharedcfg.BackendXLSX:
		cfg.Sheets = starterSheets{Backend: sharedcfg.BackendXLSX, WorkbookDir: sharedcfg.DefaultWorkbookDir, AutoCreateSheets: true}
	default:
		return cfg, fmt.Errorf("unknown sheets backend %q", opts.Backend)
	}
	return cfg, nil
}

const exampleSQL = `--spreadsheet_id: REPLACE_WITH_SPREADSHEET_ID
--sheet_name: Summary
--start_cell: A1
--name: Daily summary
SELECT 'north' AS region, 120 AS orders
UNION ALL
SELECT 'south', 95;

-- Two destinations for one query:
--sheet_name: Summary
--start_cell: E1
-- 2
--sheet_name: Archive
--start_cell: offset 1
--data_only: true
SELECT current_date AS day, 215 AS orders;
`

const envExample = `# Copy to .env. Variables set here override nothing already in the environment.
# LEAPSHEETS_TARGET__DATABASE=warehouse.duckdb
# LEAPSHEETS_SHEETS__CREDENTIALS_FILE=service-account.json
`

func runInit(dir string, opts *InitOptions) ([]string, error) {
	cfg, err := starter(opts)
	if err != nil {
		return nil, err
	}
	content, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	configPath := filepath.Join(dir, sharedcfg.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !opts.Force {
		return nil, fmt.Errorf("%s already exists. Use --force to overwrite", sharedcfg.ConfigFileName)
	}

	files := []struct {
		name    string
		content []byte
	}{
		{sharedcfg.ConfigFileName, content},
		{"example.sql", []byte(exampleSQL)},
		{".env.example", []byte(envExample)},
	}
	var written []string
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if _, err := os.Stat(path); err == nil && !opts.Force && f.name != sharedcfg.ConfigFileName {
			continue
		}
		if err := os.WriteFile(path, f.content, 0o600); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", f.name, err)
		}
		written = append(written, f.name)
	}
	return written, nil
}
