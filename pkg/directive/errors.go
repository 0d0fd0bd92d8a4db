package directive

import "fmt"

// ConfigError reports a missing required parameter.
type ConfigError struct {
	Field Key
}

func (e *ConfigError) Error() string {
	switch e.Field {
	case KeySpreadsheetID:
		return "missing spreadsheet_id"
	case KeySheetName:
		return "missing sheet identifier (sheet_name)"
	case KeyStartCell:
		return "missing start location (start_cell)"
	default:
		return fmt.Sprintf("missing %s", e.Field)
	}
}

// FormatError reports a malformed parameter value.
type FormatError struct {
	Field Key
	Token string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid %s format: %q", e.Field, e.Token)
}
