package rewrite

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapsheets/internal/parser"
	"github.com/leapstack-labs/leapsheets/pkg/core"
	"github.com/leapstack-labs/leapsheets/pkg/directive"
)

func sheetID(n int64) *int64 { return &n }

const twoDestinations = `--spreadsheet_id: S
--sheet_name: Summary
--start_cell: A1
-- 2
--sheet_name: Detail
--start_cell: C3
SELECT 1;
`

func TestSetParameter_SecondDestinationOnly(t *testing.T) {
	doc := parser.Parse(twoDestinations)
	block := doc.Blocks[0]

	edits := SetParameter(doc, block, 1, directive.KeyStartCell, "E5")
	out, err := Apply(twoDestinations, edits)
	require.NoError(t, err)

	assert.Equal(t, `--spreadsheet_id: S
--sheet_name: Summary
--start_cell: A1
-- 2
--sheet_name: Detail
--start_cell: E5
SELECT 1;
`, out)
}

func TestSetParameter_InsertsIntoOwnGroup(t *testing.T) {
	text := "--sheet_name: A\n-- 2\n--sheet_name: B\nSELECT 1;"
	doc := parser.Parse(text)

	first := SetParameter(doc, doc.Blocks[0], 0, directive.KeyTableName, "t1")
	second := SetParameter(doc, doc.Blocks[0], 1, directive.KeyTableName, "t2")
	out, err := Apply(text, append(first, second...))
	require.NoError(t, err)
	assert.Equal(t, "--sheet_name: A\n--table_name: t1\n-- 2\n--sheet_name: B\n--table_name: t2\nSELECT 1;", out)

	reparsed := parser.Parse(out)
	dests := reparsed.Blocks[0].Destinations
	require.Len(t, dests, 2)
	assert.Equal(t, "t1", dests[0].Config.TableName)
	assert.Equal(t, "t2", dests[1].Config.TableName)
}

func TestRewrite_SecondDestination(t *testing.T) {
	doc := parser.Parse(twoDestinations)
	ref := RefOf(doc.Blocks[0])

	res := &core.UploadResult{SheetID: sheetID(5), SheetName: "Detail", StartCell: "C3", NamedRange: "ls_0a1b2c3d4e5f"}
	edits, err := Rewrite(twoDestinations, ref, 1, res)
	require.NoError(t, err)
	require.Len(t, edits, 2)

	out, err := Apply(twoDestinations, edits)
	require.NoError(t, err)
	assert.Equal(t, `--spreadsheet_id: S
--sheet_name: Summary
--start_cell: A1
-- 2
--sheet_name: 5 | Detail
--start_cell: ls_0a1b2c3d4e5f | C3
SELECT 1;
`, out)

	// A second run with the same result changes nothing.
	again, err := Rewrite(out, RefOf(parser.Parse(out).Blocks[0]), 1, res)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestRewrite_InheritedValuesAndInsertion(t *testing.T) {
	text := "--spreadsheet_id: S\n--sheet_name: Data\n--start_cell: A1\nSELECT 1;\n\nSELECT 2;"
	doc := parser.Parse(text)

	res := &core.UploadResult{SheetID: sheetID(7), SheetName: "Data", StartCell: "B2", NamedRange: "ls_x"}
	edits, err := Rewrite(text, RefOf(doc.Blocks[1]), 0, res)
	require.NoError(t, err)

	out, err := Apply(text, edits)
	require.NoError(t, err)
	assert.Equal(t, "--spreadsheet_id: S\n--sheet_name: 7 | Data\n--start_cell: A1\nSELECT 1;\n\n--start_cell: ls_x | B2\nSELECT 2;", out)
}

func TestRewrite_InheritedSheetResolvedElsewhere(t *testing.T) {
	text := "--spreadsheet_id: S\n--sheet_name: 0 | Summary\n--start_cell: A1\nSELECT 1;\n\n" +
		"--start_cell: Detail_Range\nSELECT 2;\n\nSELECT 3;"
	doc := parser.Parse(text)

	res := &core.UploadResult{SheetID: sheetID(1), SheetName: "Detail", StartCell: "B2", NamedRange: "Detail_Range"}
	edits, err := Rewrite(text, RefOf(doc.Blocks[1]), 0, res)
	require.NoError(t, err)

	out, err := Apply(text, edits)
	require.NoError(t, err)
	assert.Equal(t, "--spreadsheet_id: S\n--sheet_name: 0 | Summary\n--start_cell: A1\nSELECT 1;\n\n"+
		"--start_cell: Detail_Range | B2\n--sheet_name: 1 | Detail\nSELECT 2;\n\nSELECT 3;", out)

	reparsed := parser.Parse(out)
	assert.Equal(t, "Detail", reparsed.Blocks[1].Destinations[0].Config.SheetName)
	assert.Equal(t, "Summary", reparsed.Blocks[2].Destinations[0].Config.SheetName)
	assert.Equal(t, int64(0), *reparsed.Blocks[2].Destinations[0].Config.SheetID)
}

func TestRefinesSheet(t *testing.T) {
	tests := []struct {
		name  string
		sheet string
		res   core.UploadResult
		want  bool
	}{
		{"name gains id", "Data", core.UploadResult{SheetID: sheetID(7), SheetName: "Data"}, true},
		{"id gains name", "7", core.UploadResult{SheetID: sheetID(7), SheetName: "Data"}, true},
		{"renamed sheet keeps id", "7 | Old", core.UploadResult{SheetID: sheetID(7), SheetName: "New"}, true},
		{"other sheet by id", "0 | Summary", core.UploadResult{SheetID: sheetID(1), SheetName: "Detail"}, false},
		{"other sheet by name", "Summary", core.UploadResult{SheetName: "Detail"}, false},
		{"empty", "", core.UploadResult{SheetName: "Detail"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, refinesSheet(tt.sheet, &tt.res))
		})
	}
}

func TestRewrite_KeepsConfiguredNamedRange(t *testing.T) {
	text := "--sheet_name: S\n--start_cell: Sales | A1\nSELECT 1;"
	doc := parser.Parse(text)

	// An upload whose named range could not be set reports no name.
	edits, err := Rewrite(text, RefOf(doc.Blocks[0]), 0, &core.UploadResult{SheetName: "S", StartCell: "A1"})
	require.NoError(t, err)
	assert.Empty(t, edits)
}

func TestRewrite_RemovesLegacyNamedRange(t *testing.T) {
	text := "--sheet_name: S1\n--start_named_range: rng\n--start_cell: A1\nSELECT 1;"
	doc := parser.Parse(text)

	res := &core.UploadResult{SheetName: "S1", StartCell: "A1", NamedRange: "rng"}
	edits, err := Rewrite(text, RefOf(doc.Blocks[0]), 0, res)
	require.NoError(t, err)

	out, err := Apply(text, edits)
	require.NoError(t, err)
	assert.Equal(t, "--sheet_name: S1\n--start_cell: rng | A1\nSELECT 1;", out)
}

func TestRewrite_KeepsOffsetSyntax(t *testing.T) {
	text := "--sheet_name: S\n--start_cell: offset 2\nSELECT 1;"
	doc := parser.Parse(text)

	edits, err := Rewrite(text, RefOf(doc.Blocks[0]), 0, &core.UploadResult{SheetName: "S", StartCell: "A12"})
	require.NoError(t, err)
	assert.Empty(t, edits)
}

func TestRewrite_ShiftedBlock(t *testing.T) {
	original := "--sheet_name: S\n--start_cell: A1\nSELECT 42;"
	ref := RefOf(parser.Parse(original).Blocks[0])

	edited := "SELECT 0;\n" + original
	edits, err := Rewrite(edited, ref, 0, &core.UploadResult{SheetID: sheetID(3), SheetName: "S", StartCell: "A1"})
	require.NoError(t, err)

	out, err := Apply(edited, edits)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 0;\n--sheet_name: 3 | S\n--start_cell: A1\nSELECT 42;", out)
}

func TestRewrite_Errors(t *testing.T) {
	text := "--sheet_name: S\nSELECT 1;"
	ref := RefOf(parser.Parse(text).Blocks[0])

	_, err := Rewrite("SELECT 2;", ref, 0, &core.UploadResult{SheetName: "S"})
	assert.True(t, errors.Is(err, ErrBlockNotFound))

	_, err = Rewrite(text, ref, 3, &core.UploadResult{SheetName: "S"})
	assert.Error(t, err)

	edits, err := Rewrite(text, ref, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, edits)
}

func TestApply(t *testing.T) {
	t.Run("insertions at same offset keep order", func(t *testing.T) {
		out, err := Apply("ab", []Edit{{1, 1, "x"}, {1, 1, "y"}})
		require.NoError(t, err)
		assert.Equal(t, "axyb", out)
	})

	t.Run("replacement and insertion", func(t *testing.T) {
		out, err := Apply("hello world", []Edit{{0, 5, "HELLO"}, {11, 11, "!"}})
		require.NoError(t, err)
		assert.Equal(t, "HELLO world!", out)
	})

	t.Run("overlap", func(t *testing.T) {
		_, err := Apply("hello", []Edit{{0, 3, "x"}, {2, 4, "y"}})
		assert.Error(t, err)
	})

	t.Run("out of bounds", func(t *testing.T) {
		_, err := Apply("hi", []Edit{{1, 9, ""}})
		assert.Error(t, err)
	})
}
