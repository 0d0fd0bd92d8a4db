package core

// UploadResult describes where a result set landed in a spreadsheet.
// It is produced once per destination and consumed by the directive rewriter.
type UploadResult struct {
	// Range is the written rectangle in A1 notation, e.g. "Sheet1!A1:C10".
	Range string
	// SheetID is the resolved numeric sheet id (nil when it could not be resolved).
	SheetID *int64
	// SheetName is the resolved sheet title.
	SheetName string
	// StartCell is the concrete top-left cell of the write.
	StartCell string
	// NamedRange anchors the rectangle. It is set even when creating or
	// updating the range failed.
	NamedRange string
	// Rows and Cols are the written dimensions.
	Rows int
	Cols int
}
