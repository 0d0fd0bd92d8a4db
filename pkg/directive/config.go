package directive

import (
	"strconv"
	"strings"
)

// Config is the resolved configuration of one destination.
// Values are copied on construction; treat a Config as immutable.
type Config struct {
	SpreadsheetID    string
	SpreadsheetLabel string
	SheetID          *int64
	SheetName        string
	StartCell        string
	NamedRange       string
	Title            string
	TableName        string
	PreFiles         []string
	Transpose        bool
	DataOnly         bool
	Skip             bool
}

// FromValues resolves a destination's directive values.
// The legacy start_named_range key fills NamedRange when start_cell carries none.
func FromValues(values map[string]string, preFiles []string) Config {
	var c Config
	c.SpreadsheetID, c.SpreadsheetLabel = ParseSpreadsheetID(values[string(KeySpreadsheetID)])
	if v := strings.TrimSpace(values[string(KeySheetName)]); v != "" {
		id, name := ParseSheetName(v)
		if id != nil {
			n := *id
			c.SheetID = &n
		}
		c.SheetName = name
	}
	c.NamedRange, c.StartCell = ParseStartCell(values[string(KeyStartCell)])
	if c.NamedRange == "" {
		c.NamedRange = strings.TrimSpace(values[string(KeyStartNamedRange)])
	}
	c.Title = strings.TrimSpace(values[string(KeyName)])
	c.TableName = strings.TrimSpace(values[string(KeyTableName)])
	if b, ok := ParseBool(values[string(KeyTranspose)]); ok {
		c.Transpose = b
	}
	if b, ok := ParseBool(values[string(KeyDataOnly)]); ok {
		c.DataOnly = b
	}
	if b, ok := ParseBool(values[string(KeySkip)]); ok {
		c.Skip = b
	}
	if len(preFiles) > 0 {
		c.PreFiles = append([]string(nil), preFiles...)
	}
	return c
}

// HasStartLocation reports whether a start cell or named range is set.
func (c Config) HasStartLocation() bool {
	return strings.TrimSpace(c.StartCell) != "" || strings.TrimSpace(c.NamedRange) != ""
}

// HasSheetIdentifier reports whether a sheet name or numeric sheet id is set.
func (c Config) HasSheetIdentifier() bool {
	return strings.TrimSpace(c.SheetName) != "" || c.SheetID != nil
}

// IsUploadEligible reports whether the destination carries everything an upload needs.
func (c Config) IsUploadEligible() bool {
	return strings.TrimSpace(c.SpreadsheetID) != "" && c.HasSheetIdentifier() && c.HasStartLocation()
}

// StartCellParam returns the combined start_cell directive value.
func (c Config) StartCellParam() string {
	return FormatStartCell(c.NamedRange, c.StartCell)
}

// SheetParam returns the combined sheet_name directive value.
func (c Config) SheetParam() string {
	return FormatSheetName(c.SheetID, c.SheetName)
}

// SheetRef returns the sheet name, or the numeric id when no name is known.
func (c Config) SheetRef() string {
	if c.SheetName != "" {
		return c.SheetName
	}
	if c.SheetID != nil {
		return strconv.FormatInt(*c.SheetID, 10)
	}
	return ""
}

// Validate checks the upload preconditions without touching the network.
func (c Config) Validate() error {
	if strings.TrimSpace(c.SpreadsheetID) == "" {
		return &ConfigError{Field: KeySpreadsheetID}
	}
	if !c.HasSheetIdentifier() {
		return &ConfigError{Field: KeySheetName}
	}
	if !c.HasStartLocation() {
		return &ConfigError{Field: KeyStartCell}
	}
	cell := strings.TrimSpace(c.StartCell)
	if cell == "" {
		return nil
	}
	if _, ok := IsOffset(cell); ok {
		return nil
	}
	if !IsA1Cell(cell) {
		return &FormatError{Field: KeyStartCell, Token: cell}
	}
	row := strings.TrimLeft(cell, "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz")
	if n, err := strconv.Atoi(row); err != nil || n <= 0 {
		return &FormatError{Field: KeyStartCell, Token: cell}
	}
	return nil
}

// WithStartCell returns a copy with the start location replaced.
func (c Config) WithStartCell(namedRange, cell string) Config {
	c.PreFiles = append([]string(nil), c.PreFiles...)
	c.NamedRange, c.StartCell = namedRange, cell
	return c
}
