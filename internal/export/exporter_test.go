package export

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapsheets/internal/parser"
	"github.com/leapstack-labs/leapsheets/internal/rewrite"
	"github.com/leapstack-labs/leapsheets/internal/sheets"
	"github.com/leapstack-labs/leapsheets/internal/sheets/sheetstest"
	"github.com/leapstack-labs/leapsheets/internal/state"
	"github.com/leapstack-labs/leapsheets/internal/testutil"
	"github.com/leapstack-labs/leapsheets/internal/upload"
	"github.com/leapstack-labs/leapsheets/pkg/core"
	"github.com/leapstack-labs/leapsheets/pkg/directive"
)

type fakeWarehouse struct {
	mu         sync.Mutex
	configured bool
	result     *core.ResultSet
	queries    []string
	execs      []string
	onQuery    func()
	queryErr   error
}

func newFakeWarehouse() *fakeWarehouse {
	rs := core.NewResultSet([]string{"a", "b"})
	rs.Append(int64(1), int64(2))
	return &fakeWarehouse{configured: true, result: rs}
}

func (w *fakeWarehouse) Configured() bool { return w.configured }

func (w *fakeWarehouse) Query(_ context.Context, sql string) (*core.ResultSet, error) {
	w.mu.Lock()
	w.queries = append(w.queries, sql)
	w.mu.Unlock()
	if w.onQuery != nil {
		w.onQuery()
	}
	if w.queryErr != nil {
		return nil, w.queryErr
	}
	return w.result, nil
}

func (w *fakeWarehouse) Exec(_ context.Context, sql string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.execs = append(w.execs, sql)
	return nil
}

type harness struct {
	dir       string
	sheets    *sheetstest.Fake
	warehouse *fakeWarehouse
	exporter  *Exporter
}

func newHarness(t *testing.T, store core.Store) *harness {
	t.Helper()
	fake := sheetstest.New()
	fake.AddSheet("S", 10, "Sheet1")
	fake.AddSheet("S", 11, "Other")

	logger := testutil.NewTestLogger(t)
	now := func() time.Time { return time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC) }
	wh := newFakeWarehouse()
	return &harness{
		dir:       t.TempDir(),
		sheets:    fake,
		warehouse: wh,
		exporter: New(Config{
			Warehouse: wh,
			Uploader:  upload.New(fake, upload.Options{Now: now}, logger),
			Store:     store,
			Logger:    logger,
		}),
	}
}

func (h *harness) write(t *testing.T, name, content string) string {
	return testutil.WriteFile(t, h.dir, name, content)
}

func namedRangeOn(t *testing.T, fake *sheetstest.Fake, sheetID int64) string {
	t.Helper()
	for _, nr := range fake.NamedRanges("S") {
		if nr.Range.SheetID == sheetID {
			return nr.Name
		}
	}
	t.Fatalf("no named range on sheet %d", sheetID)
	return ""
}

func TestExportFile_SingleDestination(t *testing.T) {
	h := newHarness(t, nil)
	path := h.write(t, "q.sql", "--spreadsheet_id: S\n--sheet_name: Sheet1\n--start_cell: A1\nSELECT 1 AS a, 2 AS b;\n")

	res, err := h.exporter.ExportFile(context.Background(), path, FileOptions{})
	require.NoError(t, err)
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, Exported, res.Blocks[0].Outcome)
	assert.NotEmpty(t, res.RunID)

	assert.Equal(t, []string{"SELECT 1 AS a, 2 AS b"}, h.warehouse.queries)
	assert.Equal(t, "a", h.sheets.Value("S", "Sheet1", "A1"))
	assert.Equal(t, "2", h.sheets.Value("S", "Sheet1", "B2"))

	name := namedRangeOn(t, h.sheets, 10)
	assert.Equal(t,
		"--spreadsheet_id: S\n--sheet_name: 10 | Sheet1\n--start_cell: "+name+" | A1\nSELECT 1 AS a, 2 AS b;\n",
		testutil.ReadFile(t, path))
}

func TestExportFile_InheritedSheetResolvedByNamedRange(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.sheets.BatchUpdate(context.Background(), "S", []sheets.Request{
		sheets.AddNamedRange{Name: "other_range", Range: sheets.GridRange{SheetID: 11, StartRow: 0, EndRow: 1, StartCol: 0, EndCol: 1}},
	})
	require.NoError(t, err)
	header := "--spreadsheet_id: S\n--sheet_name: 10 | Sheet1\n--start_cell: A1\nSELECT 1 AS a;\n\n"
	tail := "\n\n--start_cell: C1\nSELECT 3 AS a;\n"
	path := h.write(t, "q.sql", header+"--start_cell: other_range\nSELECT 2 AS a;"+tail)

	res, err := h.exporter.ExportFile(context.Background(), path, FileOptions{Blocks: []int{1}})
	require.NoError(t, err)
	require.Len(t, res.Blocks, 1)
	require.NoError(t, res.Blocks[0].Err)
	assert.Equal(t, "a", h.sheets.Value("S", "Other", "A1"))

	text := testutil.ReadFile(t, path)
	assert.Equal(t, header+"--start_cell: other_range | A1\n--sheet_name: 11 | Other\nSELECT 2 AS a;"+tail, text)

	doc := parser.Parse(text)
	require.Len(t, doc.Blocks, 3)
	for _, i := range []int{0, 2} {
		cfg := doc.Blocks[i].Destinations[0].Config
		assert.Equal(t, "Sheet1", cfg.SheetName, "block %d keeps its sheet", i+1)
		assert.Equal(t, int64(10), *cfg.SheetID)
	}
}

func TestExportFile_NamedRangeFailureKeepsAnchor(t *testing.T) {
	h := newHarness(t, nil)
	h.sheets.RequestErr = func(r sheets.Request) error {
		switch r.(type) {
		case sheets.AddNamedRange, sheets.UpdateNamedRange:
			return errors.New("quota exceeded")
		}
		return nil
	}
	content := "--spreadsheet_id: S\n--sheet_name: 10 | Sheet1\n--start_cell: Sales | A1\nSELECT 1 AS a, 2 AS b;\n"
	path := h.write(t, "q.sql", content)

	res, err := h.exporter.ExportFile(context.Background(), path, FileOptions{})
	require.NoError(t, err)
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, Exported, res.Blocks[0].Outcome)
	require.Error(t, res.Blocks[0].Err)
	assert.Contains(t, res.Blocks[0].Err.Error(), "quota exceeded")
	assert.Equal(t, content, testutil.ReadFile(t, path))

	h.sheets.RequestErr = nil
	_, err = h.exporter.ExportFile(context.Background(), path, FileOptions{})
	require.NoError(t, err)
	assert.Equal(t, content, testutil.ReadFile(t, path))
	named := h.sheets.NamedRanges("S")
	require.Len(t, named, 1)
	assert.Equal(t, "Sales", named[0].Name)
}

func TestExportFile_TwoDestinationsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	path := h.write(t, "q.sql", "--spreadsheet_id: S\n--sheet_name: Sheet1\n--start_cell: A1\n-- 2\n--sheet_name: Other\n--start_cell: C3\nSELECT 1 AS a, 2 AS b;\n")

	_, err := h.exporter.ExportFile(context.Background(), path, FileOptions{})
	require.NoError(t, err)

	first, second := namedRangeOn(t, h.sheets, 10), namedRangeOn(t, h.sheets, 11)
	assert.NotEqual(t, first, second)
	want := "--spreadsheet_id: S\n--sheet_name: 10 | Sheet1\n--start_cell: " + first + " | A1\n" +
		"-- 2\n--sheet_name: 11 | Other\n--start_cell: " + second + " | C3\nSELECT 1 AS a, 2 AS b;\n"
	assert.Equal(t, want, testutil.ReadFile(t, path))
	assert.Equal(t, "a", h.sheets.Value("S", "Other", "C3"))
	assert.Len(t, h.warehouse.queries, 1, "query runs once per block")

	cells := h.sheets.NonEmptyCells("S", "Other")
	_, err = h.exporter.ExportFile(context.Background(), path, FileOptions{})
	require.NoError(t, err)

	assert.Equal(t, want, testutil.ReadFile(t, path), "second run makes no edits")
	assert.Equal(t, cells, h.sheets.NonEmptyCells("S", "Other"))
	assert.Len(t, h.sheets.NamedRanges("S"), 2)
}

func TestExportFile_Progress(t *testing.T) {
	h := newHarness(t, nil)
	path := h.write(t, "q.sql", "--spreadsheet_id: S\n--sheet_name: Sheet1\n--start_cell: A1\nSELECT 1 AS a, 2 AS b;\n\n--skip: true\nSELECT 3;\n\nCREATE TABLE t AS SELECT 1;\n")

	var seen []BlockResult
	res, err := h.exporter.ExportFile(context.Background(), path, FileOptions{
		Progress: func(done, total int, r BlockResult) {
			assert.Equal(t, 3, total)
			assert.Equal(t, len(seen)+1, done)
			seen = append(seen, r)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, res.Blocks, seen)
	assert.Equal(t, []Outcome{Exported, SkippedMissingConfig, ExecutedCreate},
		[]Outcome{seen[0].Outcome, seen[1].Outcome, seen[2].Outcome})
	assert.Equal(t, []string{"CREATE TABLE t AS SELECT 1"}, h.warehouse.execs)
}

func TestExportFile_SelectedBlocks(t *testing.T) {
	h := newHarness(t, nil)
	path := h.write(t, "q.sql", "--spreadsheet_id: S\n--sheet_name: Sheet1\n--start_cell: A1\nSELECT 1 AS a, 2 AS b;\n\n--spreadsheet_id: S\n--sheet_name: Other\n--start_cell: A1\nSELECT 2 AS a, 3 AS b;\n")

	res, err := h.exporter.ExportFile(context.Background(), path, FileOptions{Blocks: []int{1}})
	require.NoError(t, err)
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, 1, res.Blocks[0].Block)
	assert.Equal(t, []string{"SELECT 2 AS a, 3 AS b"}, h.warehouse.queries)
}

func TestBlockResult_Failed(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		br   BlockResult
		want bool
	}{
		{"exported", BlockResult{Outcome: Exported}, false},
		{"partial failure", BlockResult{Outcome: Exported, Err: boom}, true},
		{"query failed", BlockResult{Err: boom}, true},
		{"incomplete config", BlockResult{Outcome: SkippedMissingConfig, Err: boom}, false},
		{"explicit skip", BlockResult{Outcome: SkippedMissingConfig}, false},
		{"cancelled", BlockResult{Outcome: UserCancelled, Err: context.Canceled}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.br.Failed())
		})
	}
}

func TestExportFile_IncompleteConfigOnlyWarns(t *testing.T) {
	h := newHarness(t, nil)
	path := h.write(t, "q.sql", "--spreadsheet_id: S\n--sheet_name: Sheet1\n--start_cell: A1\nSELECT 1 AS a, 2 AS b;\n\nSELECT 2;\n")

	res, err := h.exporter.ExportFile(context.Background(), path, FileOptions{})
	require.NoError(t, err)
	require.Len(t, res.Blocks, 2)
	assert.Equal(t, SkippedMissingConfig, res.Blocks[1].Outcome)
	var cfgErr *directive.ConfigError
	require.ErrorAs(t, res.Blocks[1].Err, &cfgErr)
	assert.Equal(t, directive.KeyStartCell, cfgErr.Field)
	assert.NoError(t, res.Err())
}

func TestExportBlock_MissingConfig(t *testing.T) {
	h := newHarness(t, nil)
	src := &Source{Text: "--spreadsheet_id: S\n--start_cell: A1\nSELECT 1;\n"}
	block := src.Document().Blocks[0]

	outcome, err := h.exporter.ExportBlock(context.Background(), src, block, Options{})
	assert.Equal(t, SkippedMissingConfig, outcome)
	var cfgErr *directive.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, directive.KeySheetName, cfgErr.Field)
	assert.Empty(t, h.warehouse.queries)
	assert.Empty(t, h.sheets.Calls)
}

func TestExportBlock_FormatErrorSkipsOnlyThatDestination(t *testing.T) {
	h := newHarness(t, nil)
	src := &Source{Text: "--spreadsheet_id: S\n--sheet_name: Sheet1\n--start_cell: A0\n-- 2\n--start_cell: B2\nSELECT 1 AS a;\n"}
	block := src.Document().Blocks[0]

	outcome, err := h.exporter.ExportBlock(context.Background(), src, block, Options{})
	require.NoError(t, err)
	assert.Equal(t, Exported, outcome)
	assert.Equal(t, "a", h.sheets.Value("S", "Sheet1", "B2"))
	assert.Empty(t, h.sheets.Value("S", "Sheet1", "A1"))
}

func TestExportBlock_NotConfigured(t *testing.T) {
	src := &Source{Text: "--spreadsheet_id: S\n--sheet_name: Sheet1\n--start_cell: A1\nSELECT 1;\n"}
	block := src.Document().Blocks[0]

	tests := []struct {
		name      string
		exporter  *Exporter
		component string
	}{
		{
			name:      "no warehouse",
			exporter:  New(Config{Warehouse: &fakeWarehouse{}, Uploader: upload.New(sheetstest.New(), upload.Options{}, nil)}),
			component: "warehouse",
		},
		{
			name:      "no spreadsheet backend",
			exporter:  New(Config{Warehouse: newFakeWarehouse()}),
			component: "spreadsheet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.exporter.ExportBlock(context.Background(), src, block, Options{})
			var nc *NotConfiguredError
			require.True(t, errors.As(err, &nc))
			assert.Equal(t, tt.component, nc.Component)
		})
	}
}

func TestExportBlock_Cancellation(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		h := newHarness(t, nil)
		src := &Source{Text: "--spreadsheet_id: S\n--sheet_name: Sheet1\n--start_cell: A1\nSELECT 1;\n"}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		outcome, err := h.exporter.ExportBlock(ctx, src, src.Document().Blocks[0], Options{})
		require.NoError(t, err)
		assert.Equal(t, UserCancelled, outcome)
		assert.Empty(t, h.warehouse.queries)
	})

	t.Run("during query", func(t *testing.T) {
		h := newHarness(t, nil)
		src := &Source{Text: "--spreadsheet_id: S\n--sheet_name: Sheet1\n--start_cell: A1\nSELECT 1;\n"}
		ctx, cancel := context.WithCancel(context.Background())
		h.warehouse.onQuery = cancel

		outcome, err := h.exporter.ExportBlock(ctx, src, src.Document().Blocks[0], Options{})
		require.NoError(t, err)
		assert.Equal(t, UserCancelled, outcome)
		assert.Len(t, h.warehouse.queries, 1, "the in-flight query is not interrupted")
		assert.Zero(t, h.sheets.CallCount("UpdateValues"))
	})
}

func TestExportBlock_QueryError(t *testing.T) {
	h := newHarness(t, nil)
	h.warehouse.queryErr = errors.New("relation does not exist")
	src := &Source{Text: "--spreadsheet_id: S\n--sheet_name: Sheet1\n--start_cell: A1\nSELECT * FROM missing;\n"}

	_, err := h.exporter.ExportBlock(context.Background(), src, src.Document().Blocks[0], Options{})
	assert.ErrorContains(t, err, "relation does not exist")
	assert.Zero(t, h.sheets.CallCount("UpdateValues"))
}

func TestExportBlock_CircularPreFiles(t *testing.T) {
	h := newHarness(t, nil)
	a := h.write(t, "a.sql", "--pre_file: b.sql\nCREATE TABLE a AS SELECT 1;\n")
	b := h.write(t, "b.sql", "--pre_file: a.sql\nCREATE TABLE b AS SELECT 1;\n")
	main := h.write(t, "main.sql", "--spreadsheet_id: S\n--sheet_name: Sheet1\n--start_cell: A1\n--pre_file: a.sql\nSELECT 1;\n")

	src, err := LoadSource(main)
	require.NoError(t, err)

	outcome, err := h.exporter.ExportBlock(context.Background(), src, src.Document().Blocks[0], Options{ExecuteDependencies: true})

	var circular *CircularDependencyError
	require.True(t, errors.As(err, &circular))
	assert.Empty(t, outcome)
	assert.Equal(t, a, circular.Path)
	assert.Equal(t, []string{a, b, a}, circular.Chain)
	assert.Empty(t, h.warehouse.queries)
	assert.Empty(t, h.warehouse.execs)
}

func TestExportFile_PreFilesRunOnce(t *testing.T) {
	h := newHarness(t, nil)
	setup := h.write(t, "setup.sql", "CREATE TABLE base AS SELECT 1 AS a, 2 AS b;\n")
	path := h.write(t, "q.sql",
		"--spreadsheet_id: S\n--sheet_name: Sheet1\n--start_cell: A1\n--pre_file: setup.sql\nSELECT * FROM base;\n\n"+
			"--spreadsheet_id: S\n--sheet_name: Other\n--start_cell: A1\n--pre_file: ./setup.sql\nSELECT a FROM base;\n")

	res, err := h.exporter.ExportFile(context.Background(), path, FileOptions{ExecuteDependencies: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"CREATE TABLE base AS SELECT 1 AS a, 2 AS b"}, h.warehouse.execs)
	assert.Equal(t, []string{setup}, res.PreFiles)
}

func TestExportBlock_WithoutDependencies(t *testing.T) {
	h := newHarness(t, nil)
	src := &Source{Text: "--spreadsheet_id: S\n--sheet_name: Sheet1\n--start_cell: A1\n--pre_file: missing.sql\nSELECT 1 AS a;\n"}

	outcome, err := h.exporter.ExportBlock(context.Background(), src, src.Document().Blocks[0], Options{})
	require.NoError(t, err)
	assert.Equal(t, Exported, outcome)
	assert.Empty(t, h.warehouse.execs)
}

func TestExportFile_RecordsHistory(t *testing.T) {
	store := state.NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	defer func() { _ = store.Close() }()

	h := newHarness(t, store)
	path := h.write(t, "q.sql", "--spreadsheet_id: S\n--sheet_name: Sheet1\n--start_cell: A1\n-- 2\n--skip: yes\nSELECT 1 AS a, 2 AS b;\n")

	res, err := h.exporter.ExportFile(context.Background(), path, FileOptions{})
	require.NoError(t, err)

	run, err := store.GetRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, run.Status)

	recs, err := store.ListExportsForRun(res.RunID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, core.ExportStatusExported, recs[0].Status)
	assert.Equal(t, "Sheet1!A1:B2", recs[0].Range)
	assert.Equal(t, core.ExportStatusSkipped, recs[1].Status)
	assert.Equal(t, 1, recs[1].Destination)
}

func TestSource_RecordWithoutPath(t *testing.T) {
	src := &Source{Text: "--spreadsheet_id: S\n--sheet_name: Sheet1\n--start_cell: A1\nSELECT 1;\n"}
	block := src.Document().Blocks[0]
	id := int64(10)

	_, changed, err := src.record(rewrite.RefOf(block), 0, &core.UploadResult{SheetID: &id, SheetName: "Sheet1", StartCell: "A1"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, src.Text, "--sheet_name: 10 | Sheet1\n")

	_, changed, err = src.record(rewrite.RefOf(src.Document().Blocks[0]), 0, &core.UploadResult{SheetID: &id, SheetName: "Sheet1", StartCell: "A1"})
	require.NoError(t, err)
	assert.False(t, changed)
}
