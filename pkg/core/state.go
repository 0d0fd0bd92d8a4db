package core

import "time"

// RunStatus is the lifecycle state of an export run.
type RunStatus string

// Run status values.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run is one invocation of an export over a source file.
type Run struct {
	ID          string
	SourcePath  string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// ExportStatus describes how a single destination export ended.
type ExportStatus string

// Export status values.
const (
	ExportStatusExported  ExportStatus = "exported"
	ExportStatusSkipped   ExportStatus = "skipped"
	ExportStatusFailed    ExportStatus = "failed"
	ExportStatusCreate    ExportStatus = "create"
	ExportStatusCancelled ExportStatus = "cancelled"
)

// ExportRecord is one row of export history.
type ExportRecord struct {
	ID            string
	RunID         string
	SourcePath    string
	BlockIndex    int
	Destination   int
	SpreadsheetID string
	SheetName     string
	Range         string
	NamedRange    string
	Rows          int
	Cols          int
	Status        ExportStatus
	Error         string
	StartedAt     time.Time
	CompletedAt   time.Time
}

// Store defines the interface for export history persistence.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	CreateRun(sourcePath string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	GetRun(id string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)

	RecordExport(rec *ExportRecord) error
	ListExports(limit int) ([]*ExportRecord, error)
	ListExportsForRun(runID string) ([]*ExportRecord, error)
	ListExportsForSource(sourcePath string, limit int) ([]*ExportRecord, error)
	LatestExport(sourcePath string, blockIndex, destination int) (*ExportRecord, error)
}
