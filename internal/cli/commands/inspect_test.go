package commands

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapsheets/internal/cli/testutil"
	"github.com/leapstack-labs/leapsheets/internal/parser"
)

const inspectFixture = `--spreadsheet_id: S
--sheet_name: Data
--start_cell: A1
--pre_file: setup.sql
SELECT region, count(*) FROM orders GROUP BY 1;

CREATE TABLE tmp AS SELECT 1;

--start_cell: B2
-- 2
--skip: true
-- 3
--start_cell: Z0
SELECT 2;
`

func TestBuildInspectOutput(t *testing.T) {
	doc := parser.Parse(inspectFixture)
	out := buildInspectOutput("q.sql", doc)

	assert.Equal(t, "q.sql", out.Path)
	assert.Equal(t, "S", out.Defaults["spreadsheet_id"])
	require.Len(t, out.Blocks, 3)

	first := out.Blocks[0]
	assert.Equal(t, 1, first.Block)
	assert.Equal(t, "query", first.Kind)
	require.Len(t, first.Destinations, 1)
	assert.Equal(t, "ready", first.Destinations[0].Status)
	assert.Equal(t, "query", first.Destinations[0].Provenance["start_cell"])
	assert.Equal(t, []string{"setup.sql"}, first.Destinations[0].PreFiles)

	assert.Equal(t, "create", out.Blocks[1].Kind)

	third := out.Blocks[2]
	require.Len(t, third.Destinations, 3)
	assert.Equal(t, "ready", third.Destinations[0].Status)
	assert.Equal(t, "default", third.Destinations[0].Provenance["sheet_name"])
	assert.Equal(t, "skipped", third.Destinations[1].Status)
	assert.Empty(t, third.Destinations[1].Problem)
	assert.Equal(t, "incomplete", third.Destinations[2].Status)
	assert.Contains(t, third.Destinations[2].Problem, "Z0")
}

func TestRenderInspect(t *testing.T) {
	doc := parser.Parse(inspectFixture)

	t.Run("markdown", func(t *testing.T) {
		tr := testutil.NewTestRendererMarkdown()
		require.NoError(t, renderInspect(tr.Renderer, "q.sql", doc))

		got := tr.Output()
		testutil.AssertNoANSI(t, got)
		assert.Contains(t, got, "# q.sql")
		assert.Contains(t, got, "| spreadsheet_id |")
		assert.Contains(t, got, "- [SUCCESS] block 2 destination 1 (CREATE TABLE tmp AS SELECT 1) executed, not uploaded")
		assert.Contains(t, got, "- [SKIPPED] block 3 destination 2")
		assert.Contains(t, got, "- [WARNING] block 3 destination 3")
	})

	t.Run("json", func(t *testing.T) {
		tr := testutil.NewTestRendererJSON()
		require.NoError(t, renderInspect(tr.Renderer, "q.sql", doc))

		var out InspectOutput
		require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &out))
		assert.Len(t, out.Blocks, 3)
	})

	t.Run("empty file", func(t *testing.T) {
		tr := testutil.NewTestRendererMarkdown()
		require.NoError(t, renderInspect(tr.Renderer, "empty.sql", parser.Parse("-- nothing here\n")))
		assert.Contains(t, tr.Output(), "no query blocks")
	})
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "SELECT 1", firstLine("SELECT 1\nFROM t"))
	long := "SELECT aaaaaaaaaa, bbbbbbbbbb, cccccccccc, dddddddddd, eeeeeeeeee"
	got := firstLine(long)
	assert.Len(t, got, 48)
	assert.Equal(t, "...", got[45:])
}
