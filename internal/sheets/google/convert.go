package google

import (
	"fmt"

	gsheets "google.golang.org/api/sheets/v4"

	"github.com/leapstack-labs/leapsheets/internal/sheets"
)

func toGridRange(g sheets.GridRange) *gsheets.GridRange {
	return &gsheets.GridRange{
		SheetId:          g.SheetID,
		StartRowIndex:    int64(g.StartRow),
		EndRowIndex:      int64(g.EndRow),
		StartColumnIndex: int64(g.StartCol),
		EndColumnIndex:   int64(g.EndCol),
		ForceSendFields:  []string{"SheetId", "StartRowIndex", "StartColumnIndex"},
	}
}

func fromGridRange(g *gsheets.GridRange) sheets.GridRange {
	if g == nil {
		return sheets.GridRange{}
	}
	return sheets.GridRange{
		SheetID:  g.SheetId,
		StartRow: int(g.StartRowIndex),
		EndRow:   int(g.EndRowIndex),
		StartCol: int(g.StartColumnIndex),
		EndCol:   int(g.EndColumnIndex),
	}
}

func toColor(c *sheets.Color) *gsheets.Color {
	if c == nil {
		return nil
	}
	return &gsheets.Color{
		Red:             c.Red,
		Green:           c.Green,
		Blue:            c.Blue,
		ForceSendFields: []string{"Red", "Green", "Blue"},
	}
}

// formatFields lists the userEnteredFormat fields a CellFormat sets, so
// RepeatCell leaves everything else alone.
func formatFields(f sheets.CellFormat) (*gsheets.CellFormat, string) {
	cf := &gsheets.CellFormat{TextFormat: &gsheets.TextFormat{}}
	fields := "userEnteredFormat.textFormat.bold"
	cf.TextFormat.Bold = f.Bold
	cf.TextFormat.ForceSendFields = []string{"Bold"}
	if f.FontSize > 0 {
		cf.TextFormat.FontSize = int64(f.FontSize)
		fields += ",userEnteredFormat.textFormat.fontSize"
	}
	if f.Foreground != nil {
		cf.TextFormat.ForegroundColor = toColor(f.Foreground)
		fields += ",userEnteredFormat.textFormat.foregroundColor"
	}
	if f.Background != nil {
		cf.BackgroundColor = toColor(f.Background)
		fields += ",userEnteredFormat.backgroundColor"
	}
	if f.Align != "" {
		cf.HorizontalAlignment = string(f.Align)
		fields += ",userEnteredFormat.horizontalAlignment"
	}
	return cf, fields
}

func tableColumns(names []string) []*gsheets.TableColumnProperties {
	cols := make([]*gsheets.TableColumnProperties, len(names))
	for i, name := range names {
		cols[i] = &gsheets.TableColumnProperties{
			ColumnIndex:     int64(i),
			ColumnName:      name,
			ForceSendFields: []string{"ColumnIndex"},
		}
	}
	return cols
}

func solidBorder() *gsheets.Border {
	return &gsheets.Border{Style: "SOLID", Width: 1, Color: toColor(&sheets.Black)}
}

func toRequest(r sheets.Request) (*gsheets.Request, error) {
	switch r := r.(type) {
	case sheets.AddSheet:
		props := &gsheets.SheetProperties{Title: r.Title}
		if r.HideGridlines {
			props.GridProperties = &gsheets.GridProperties{HideGridlines: true}
		}
		return &gsheets.Request{AddSheet: &gsheets.AddSheetRequest{Properties: props}}, nil

	case sheets.HideGridlines:
		return &gsheets.Request{UpdateSheetProperties: &gsheets.UpdateSheetPropertiesRequest{
			Properties: &gsheets.SheetProperties{
				SheetId:         r.SheetID,
				GridProperties:  &gsheets.GridProperties{HideGridlines: true},
				ForceSendFields: []string{"SheetId"},
			},
			Fields: "gridProperties.hideGridlines",
		}}, nil

	case sheets.FormatCells:
		cf, fields := formatFields(r.Format)
		return &gsheets.Request{RepeatCell: &gsheets.RepeatCellRequest{
			Range:  toGridRange(r.Range),
			Cell:   &gsheets.CellData{UserEnteredFormat: cf},
			Fields: fields,
		}}, nil

	case sheets.ClearFormat:
		return &gsheets.Request{RepeatCell: &gsheets.RepeatCellRequest{
			Range:  toGridRange(r.Range),
			Cell:   &gsheets.CellData{},
			Fields: "userEnteredFormat,note",
		}}, nil

	case sheets.Borders:
		return &gsheets.Request{UpdateBorders: &gsheets.UpdateBordersRequest{
			Range:  toGridRange(r.Range),
			Top:    solidBorder(),
			Bottom: solidBorder(),
			Left:   solidBorder(),
			Right:  solidBorder(),
		}}, nil

	case sheets.AutoResize:
		return &gsheets.Request{AutoResizeDimensions: &gsheets.AutoResizeDimensionsRequest{
			Dimensions: &gsheets.DimensionRange{
				SheetId:         r.SheetID,
				Dimension:       "COLUMNS",
				StartIndex:      int64(r.StartCol),
				EndIndex:        int64(r.EndCol),
				ForceSendFields: []string{"SheetId", "StartIndex"},
			},
		}}, nil

	case sheets.SetNote:
		return &gsheets.Request{RepeatCell: &gsheets.RepeatCellRequest{
			Range:  toGridRange(r.Range),
			Cell:   &gsheets.CellData{Note: r.Note},
			Fields: "note",
		}}, nil

	case sheets.AddNamedRange:
		return &gsheets.Request{AddNamedRange: &gsheets.AddNamedRangeRequest{
			NamedRange: &gsheets.NamedRange{Name: r.Name, Range: toGridRange(r.Range)},
		}}, nil

	case sheets.UpdateNamedRange:
		return &gsheets.Request{UpdateNamedRange: &gsheets.UpdateNamedRangeRequest{
			NamedRange: &gsheets.NamedRange{NamedRangeId: r.ID, Name: r.Name, Range: toGridRange(r.Range)},
			Fields:     "range",
		}}, nil

	case sheets.AddTable:
		return &gsheets.Request{AddTable: &gsheets.AddTableRequest{
			Table: &gsheets.Table{
				Name:             r.Name,
				Range:            toGridRange(r.Range),
				ColumnProperties: tableColumns(r.Columns),
			},
		}}, nil

	case sheets.UpdateTable:
		return &gsheets.Request{UpdateTable: &gsheets.UpdateTableRequest{
			Table: &gsheets.Table{
				TableId:          r.ID,
				Name:             r.Name,
				Range:            toGridRange(r.Range),
				ColumnProperties: tableColumns(r.Columns),
			},
			Fields: "range,columnProperties",
		}}, nil

	default:
		return nil, fmt.Errorf("unsupported request %T", r)
	}
}
