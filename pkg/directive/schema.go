// Package directive defines the export directive vocabulary and the resolved
// destination configuration built from it.
//
// A directive is a `--key: value` SQL comment line. The Schema slice is the
// single list of recognized keys; the parser uses it as a whitelist and the
// CLI uses it to describe the available parameters.
package directive

// Key names a directive.
type Key string

// Recognized directive keys.
const (
	KeySpreadsheetID   Key = "spreadsheet_id"
	KeySheetName       Key = "sheet_name"
	KeyStartCell       Key = "start_cell"
	KeyStartNamedRange Key = "start_named_range" // legacy, superseded by start_cell
	KeyName            Key = "name"
	KeyTableName       Key = "table_name"
	KeyTranspose       Key = "transpose"
	KeyDataOnly        Key = "data_only"
	KeySkip            Key = "skip"
	KeyPreFile         Key = "pre_file"
)

// Kind is the value type of a directive.
type Kind string

// Directive value kinds.
const (
	KindString  Kind = "string"
	KindBoolean Kind = "boolean"
	KindList    Kind = "list"
)

// KeySpec describes one directive key.
type KeySpec struct {
	Key         Key
	Kind        Kind
	Description string
	// Inheritable keys are copied from the document-level defaults into
	// every destination.
	Inheritable bool
}

// Schema lists every recognized directive in display order.
var Schema = []KeySpec{
	{KeySpreadsheetID, KindString, "Target spreadsheet id or URL (`ID` or `ID | label`)", true},
	{KeySheetName, KindString, "Target sheet (`ID`, `Name` or `ID | Name`)", true},
	{KeyStartCell, KindString, "Anchor (`A1`, `offset N`, `NamedRange` or `NamedRange | A1`)", false},
	{KeyStartNamedRange, KindString, "Named range anchor (legacy, use start_cell)", false},
	{KeyName, KindString, "Title row text written above the data", false},
	{KeyTableName, KindString, "Materialize the data as a spreadsheet table with this name", false},
	{KeyTranspose, KindBoolean, "Write columns as rows", true},
	{KeyDataOnly, KindBoolean, "Write values only: no header row, no formatting", true},
	{KeySkip, KindBoolean, "Skip this destination when exporting", true},
	{KeyPreFile, KindList, "SQL file to execute before this query (repeatable)", true},
}

var schemaIndex = func() map[Key]KeySpec {
	m := make(map[Key]KeySpec, len(Schema))
	for _, s := range Schema {
		m[s.Key] = s
	}
	return m
}()

// Lookup returns the spec for a key.
func Lookup(key string) (KeySpec, bool) {
	s, ok := schemaIndex[Key(key)]
	return s, ok
}

// IsKnown reports whether key is a recognized directive.
func IsKnown(key string) bool {
	_, ok := schemaIndex[Key(key)]
	return ok
}

// IsInheritable reports whether a default value for key flows into destinations.
func IsInheritable(key Key) bool {
	return schemaIndex[key].Inheritable
}
