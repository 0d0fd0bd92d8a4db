// Package export runs query blocks and uploads their results.
//
// Blocks of a file are exported strictly in order. Within a block the query
// runs once and its result is uploaded to every destination in turn, after
// which the destination's directive header is updated with the resolved
// sheet and start location.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/leapsheets/internal/parser"
	"github.com/leapstack-labs/leapsheets/internal/rewrite"
	"github.com/leapstack-labs/leapsheets/internal/upload"
	"github.com/leapstack-labs/leapsheets/pkg/core"
	"github.com/leapstack-labs/leapsheets/pkg/directive"
)

// Outcome is the result tag of exporting one block.
type Outcome string

// Outcome values.
const (
	Exported             Outcome = "exported"
	SkippedMissingConfig Outcome = "skipped_missing_config"
	UserCancelled        Outcome = "user_cancelled"
	ExecutedCreate       Outcome = "executed_create"
)

// Warehouse runs SQL.
type Warehouse interface {
	Configured() bool
	Query(ctx context.Context, sql string) (*core.ResultSet, error)
	Exec(ctx context.Context, sql string) error
}

// Uploader writes a result set to one destination.
type Uploader interface {
	Upload(ctx context.Context, data *core.ResultSet, cfg directive.Config, meta upload.Meta) (*core.UploadResult, error)
}

// Options tune one ExportBlock call.
type Options struct {
	// ExecuteDependencies runs the block's pre_file scripts first.
	ExecuteDependencies bool
	// ExecutedPreFiles is shared across the blocks of a run so each pre-file
	// runs at most once. Nil means a fresh tracker for this call.
	ExecutedPreFiles *PreFileTracker
	// RunID groups history records. Empty disables history for the call.
	RunID string
}

// Config holds exporter dependencies.
type Config struct {
	Warehouse Warehouse
	// Uploader is nil when no spreadsheet backend is configured.
	Uploader Uploader
	// Store records export history (optional).
	Store core.Store
	// NoRewrite leaves the source untouched after uploads.
	NoRewrite bool
	Logger    *slog.Logger
}

// Exporter runs exports.
type Exporter struct {
	warehouse Warehouse
	uploader  Uploader
	store     core.Store
	rewrite   bool
	logger    *slog.Logger
}

// New creates an Exporter.
func New(cfg Config) *Exporter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exporter{
		warehouse: cfg.Warehouse,
		uploader:  cfg.Uploader,
		store:     cfg.Store,
		rewrite:   !cfg.NoRewrite,
		logger:    logger,
	}
}

// ExportBlock exports one block of src to all of its destinations.
//
// Network calls are not interrupted by ctx. Cancelling ctx only changes the
// outcome to UserCancelled at the next step boundary. Destinations that lack
// configuration are skipped; when no destination can be uploaded the outcome
// is SkippedMissingConfig. Upload errors are joined and returned together
// with the Exported outcome when at least one destination succeeded.
func (x *Exporter) ExportBlock(ctx context.Context, src *Source, block *parser.Block, opts Options) (Outcome, error) {
	if ctx.Err() != nil {
		return UserCancelled, nil
	}
	work := context.WithoutCancel(ctx)

	if block.IsCreate() {
		return x.executeCreate(ctx, work, src, block, opts)
	}

	eligible, skipErrs := x.eligibleDestinations(block)
	if len(eligible) == 0 {
		for _, d := range block.Destinations {
			x.recordSkip(opts.RunID, src, block, d, skipErrs[d.Index])
		}
		return SkippedMissingConfig, joinSkipErrors(block, skipErrs)
	}

	if err := x.checkConfigured(); err != nil {
		return "", err
	}
	if err := x.dependencies(work, src, block, opts); err != nil {
		return "", err
	}
	if ctx.Err() != nil {
		return UserCancelled, nil
	}

	started := time.Now().UTC()
	x.logger.Info("running query", "block", block.Index+1, "source", src.Path)
	data, err := x.warehouse.Query(work, block.SQL)
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	if ctx.Err() != nil {
		return UserCancelled, nil
	}

	ref := rewrite.RefOf(block)
	var errs []error
	exported := 0
	for _, d := range block.Destinations {
		if skipErr, skipped := skipErrs[d.Index]; skipped {
			x.recordSkip(opts.RunID, src, block, d, skipErr)
			continue
		}
		if ctx.Err() != nil {
			return UserCancelled, errors.Join(errs...)
		}

		meta := upload.Meta{
			SourcePath: src.Path,
			BlockStart: ref.Start,
			BlockEnd:   ref.End,
			DestIndex:  d.Index,
			Query:      block.SQL,
		}
		res, err := x.uploader.Upload(work, data, d.Config, meta)
		x.recordUpload(opts.RunID, src, block, d, res, err, started)
		if err != nil {
			errs = append(errs, fmt.Errorf("destination %d: %w", d.Index+1, err))
		}
		if res == nil {
			continue
		}
		exported++

		if x.rewrite {
			next, changed, err := src.record(ref, d.Index, res)
			if err != nil {
				errs = append(errs, fmt.Errorf("destination %d: failed to update directives: %w", d.Index+1, err))
				continue
			}
			if changed {
				x.logger.Debug("updated directives", "block", block.Index+1, "destination", d.Index+1)
			}
			ref = next
		}
	}

	if exported == 0 {
		return "", errors.Join(errs...)
	}
	return Exported, errors.Join(errs...)
}

// eligibleDestinations splits destinations into uploadable ones and ones to
// skip. Skipped destinations map to their configuration error, or nil for
// an explicit skip.
func (x *Exporter) eligibleDestinations(block *parser.Block) ([]*parser.Destination, map[int]error) {
	var eligible []*parser.Destination
	skipped := map[int]error{}
	for _, d := range block.Destinations {
		if d.Config.Skip {
			x.logger.Info("destination skipped", "block", block.Index+1, "destination", d.Index+1)
			skipped[d.Index] = nil
			continue
		}
		if err := d.Config.Validate(); err != nil {
			x.logger.Warn("destination not exported", "block", block.Index+1, "destination", d.Index+1, "error", err)
			skipped[d.Index] = err
			continue
		}
		eligible = append(eligible, d)
	}
	return eligible, skipped
}

func (x *Exporter) checkConfigured() error {
	if x.warehouse == nil || !x.warehouse.Configured() {
		return &NotConfiguredError{Component: "warehouse"}
	}
	if x.uploader == nil {
		return &NotConfiguredError{Component: "spreadsheet"}
	}
	return nil
}

func (x *Exporter) dependencies(ctx context.Context, src *Source, block *parser.Block, opts Options) error {
	if !opts.ExecuteDependencies {
		return nil
	}
	refs := blockPreFiles(block)
	if len(refs) == 0 {
		return nil
	}
	tracker := opts.ExecutedPreFiles
	if tracker == nil {
		tracker = NewPreFileTracker()
	}
	return x.runPreFiles(ctx, src.Path, refs, tracker)
}

func (x *Exporter) executeCreate(ctx, work context.Context, src *Source, block *parser.Block, opts Options) (Outcome, error) {
	if x.warehouse == nil || !x.warehouse.Configured() {
		return "", &NotConfiguredError{Component: "warehouse"}
	}
	if err := x.dependencies(work, src, block, opts); err != nil {
		return "", err
	}
	if ctx.Err() != nil {
		return UserCancelled, nil
	}
	x.logger.Info("executing statement", "block", block.Index+1, "source", src.Path)
	if err := x.warehouse.Exec(work, block.SQL); err != nil {
		return "", fmt.Errorf("statement failed: %w", err)
	}
	x.record(opts.RunID, &core.ExportRecord{
		SourcePath: src.Path, BlockIndex: block.Index, Status: core.ExportStatusCreate,
	})
	if ctx.Err() != nil {
		return UserCancelled, nil
	}
	return ExecutedCreate, nil
}

func (x *Exporter) recordSkip(runID string, src *Source, block *parser.Block, d *parser.Destination, err error) {
	rec := &core.ExportRecord{
		SourcePath:    src.Path,
		BlockIndex:    block.Index,
		Destination:   d.Index,
		SpreadsheetID: d.Config.SpreadsheetID,
		SheetName:     d.Config.SheetRef(),
		Status:        core.ExportStatusSkipped,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	x.record(runID, rec)
}

func (x *Exporter) recordUpload(runID string, src *Source, block *parser.Block, d *parser.Destination, res *core.UploadResult, err error, started time.Time) {
	rec := &core.ExportRecord{
		SourcePath:    src.Path,
		BlockIndex:    block.Index,
		Destination:   d.Index,
		SpreadsheetID: d.Config.SpreadsheetID,
		SheetName:     d.Config.SheetRef(),
		Status:        core.ExportStatusExported,
		StartedAt:     started,
	}
	if res != nil {
		rec.SheetName = res.SheetName
		rec.Range = res.Range
		rec.NamedRange = res.NamedRange
		rec.Rows, rec.Cols = res.Rows, res.Cols
	}
	if err != nil {
		rec.Error = err.Error()
		if res == nil {
			rec.Status = core.ExportStatusFailed
		}
	}
	x.record(runID, rec)
}

func (x *Exporter) record(runID string, rec *core.ExportRecord) {
	if x.store == nil || runID == "" {
		return
	}
	rec.RunID = runID
	if err := x.store.RecordExport(rec); err != nil {
		x.logger.Warn("failed to record export history", "error", err)
	}
}

// BlockResult is the outcome of one block within ExportFile.
type BlockResult struct {
	Block   int
	Outcome Outcome
	Err     error
}

// Failed reports whether the block's error should fail the run. A
// destination skipped for incomplete configuration only warns.
func (r BlockResult) Failed() bool {
	return r.Err != nil && r.Outcome != SkippedMissingConfig && r.Outcome != UserCancelled
}

// Progress is called after each block of a file finishes.
type Progress func(done, total int, r BlockResult)

// FileOptions tune ExportFile.
type FileOptions struct {
	ExecuteDependencies bool
	// Blocks restricts the export to these zero-based block indexes.
	Blocks   []int
	Progress Progress
}

// FileResult summarizes ExportFile.
type FileResult struct {
	RunID    string
	Blocks   []BlockResult
	PreFiles []string
}

// Err joins the errors of the blocks that failed.
func (r *FileResult) Err() error {
	var errs []error
	for _, b := range r.Blocks {
		if b.Failed() {
			errs = append(errs, fmt.Errorf("block %d: %w", b.Block+1, b.Err))
		}
	}
	return errors.Join(errs...)
}

// ExportFile exports the blocks of a file one after another. A circular
// pre-file dependency or a missing component stops the run; other block
// failures are collected and the run continues.
func (x *Exporter) ExportFile(ctx context.Context, path string, opts FileOptions) (*FileResult, error) {
	src, err := LoadSource(path)
	if err != nil {
		return nil, err
	}
	result := &FileResult{RunID: x.startRun(path)}
	tracker := NewPreFileTracker()

	// Block indexes are taken from the document as loaded; rewrites only add
	// header lines and never change the block count.
	blocks := src.Document().Blocks
	selected := selectBlocks(blocks, opts.Blocks)

	var fatal error
	for i, block := range selected {
		if ctx.Err() != nil {
			result.Blocks = append(result.Blocks, BlockResult{Block: block.Index, Outcome: UserCancelled})
			break
		}
		current, err := rewrite.Locate(src.Document(), rewrite.RefOf(block))
		if err != nil {
			current = block
		}
		outcome, err := x.ExportBlock(ctx, src, current, Options{
			ExecuteDependencies: opts.ExecuteDependencies,
			ExecutedPreFiles:    tracker,
			RunID:               result.RunID,
		})
		br := BlockResult{Block: block.Index, Outcome: outcome, Err: err}
		result.Blocks = append(result.Blocks, br)
		if opts.Progress != nil {
			opts.Progress(i+1, len(selected), br)
		}

		var circular *CircularDependencyError
		var missing *NotConfiguredError
		if errors.As(err, &circular) || errors.As(err, &missing) {
			fatal = err
			break
		}
	}
	result.PreFiles = tracker.Executed()
	x.finishRun(result, ctx.Err() != nil, fatal)

	if fatal != nil {
		return result, fatal
	}
	return result, nil
}

func selectBlocks(blocks []*parser.Block, indexes []int) []*parser.Block {
	if len(indexes) == 0 {
		return blocks
	}
	var out []*parser.Block
	for _, i := range indexes {
		if i >= 0 && i < len(blocks) {
			out = append(out, blocks[i])
		}
	}
	return out
}

func (x *Exporter) startRun(path string) string {
	if x.store == nil {
		return uuid.NewString()
	}
	run, err := x.store.CreateRun(path)
	if err != nil {
		x.logger.Warn("failed to start run history", "error", err)
		return ""
	}
	return run.ID
}

func (x *Exporter) finishRun(r *FileResult, cancelled bool, fatal error) {
	if x.store == nil || r.RunID == "" {
		return
	}
	status := core.RunStatusCompleted
	var msg string
	switch {
	case cancelled:
		status = core.RunStatusCancelled
	case fatal != nil:
		status, msg = core.RunStatusFailed, fatal.Error()
	case r.Err() != nil:
		status, msg = core.RunStatusFailed, r.Err().Error()
	}
	if err := x.store.CompleteRun(r.RunID, status, msg); err != nil {
		x.logger.Warn("failed to complete run history", "error", err)
	}
}

func joinSkipErrors(block *parser.Block, skipErrs map[int]error) error {
	var errs []error
	for _, d := range block.Destinations {
		if err := skipErrs[d.Index]; err != nil {
			errs = append(errs, fmt.Errorf("destination %d: %w", d.Index+1, err))
		}
	}
	return errors.Join(errs...)
}
