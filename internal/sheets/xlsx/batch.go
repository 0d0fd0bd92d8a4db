package xlsx

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/leapstack-labs/leapsheets/internal/sheets"
)

const (
	noteAuthor   = "leapsheets"
	tableStyle   = "TableStyleMedium2"
	minColWidth  = 8.43
	maxColWidth  = 80
	charColWidth = 1.2
)

var invalidTableChars = regexp.MustCompile(`[^A-Za-z0-9_.]`)

// BatchUpdate implements sheets.Client.
func (c *Client) BatchUpdate(_ context.Context, spreadsheetID string, requests []sheets.Request) ([]sheets.Reply, error) {
	if len(requests) == 0 {
		return nil, nil
	}
	replies := make([]sheets.Reply, len(requests))
	err := c.withWorkbook(spreadsheetID, true, func(wb *workbook) error {
		for i, r := range requests {
			reply, err := wb.apply(r)
			if err != nil {
				return fmt.Errorf("request %d (%T): %w", i, r, err)
			}
			replies[i] = reply
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return replies, nil
}

func (wb *workbook) apply(r sheets.Request) (sheets.Reply, error) {
	switch r := r.(type) {
	case sheets.AddSheet:
		if _, err := wb.f.NewSheet(r.Title); err != nil {
			return sheets.Reply{}, err
		}
		id, _ := wb.sheetID(r.Title)
		if r.HideGridlines {
			if err := wb.hideGridlines(r.Title); err != nil {
				return sheets.Reply{}, err
			}
		}
		return sheets.Reply{SheetID: id}, nil

	case sheets.HideGridlines:
		name, err := wb.sheetName(r.SheetID)
		if err != nil {
			return sheets.Reply{}, err
		}
		return sheets.Reply{}, wb.hideGridlines(name)

	case sheets.FormatCells:
		return sheets.Reply{}, wb.eachCell(r.Range, func(sheet, cell string, _, _ int) error {
			return wb.updateStyle(sheet, cell, func(st *excelize.Style) {
				if st.Font == nil {
					st.Font = &excelize.Font{}
				}
				st.Font.Bold = r.Format.Bold
				if r.Format.FontSize > 0 {
					st.Font.Size = float64(r.Format.FontSize)
				}
				if r.Format.Foreground != nil {
					st.Font.Color = hexColor(*r.Format.Foreground)
				}
				if r.Format.Background != nil {
					st.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{hexColor(*r.Format.Background)}}
				}
				if r.Format.Align != "" {
					if st.Alignment == nil {
						st.Alignment = &excelize.Alignment{}
					}
					st.Alignment.Horizontal = alignment(r.Format.Align)
				}
			})
		})

	case sheets.ClearFormat:
		name, err := wb.sheetName(r.Range.SheetID)
		if err != nil {
			return sheets.Reply{}, err
		}
		if err := wb.f.SetCellStyle(name, topLeft(r.Range), bottomRight(r.Range), 0); err != nil {
			return sheets.Reply{}, err
		}
		comments, err := wb.f.GetComments(name)
		if err != nil {
			return sheets.Reply{}, err
		}
		for _, cm := range comments {
			if inRange(r.Range, cm.Cell) {
				if err := wb.f.DeleteComment(name, cm.Cell); err != nil {
					return sheets.Reply{}, err
				}
			}
		}
		return sheets.Reply{}, nil

	case sheets.Borders:
		g := r.Range
		return sheets.Reply{}, wb.eachCell(g, func(sheet, cell string, row, col int) error {
			var edges []string
			if row == g.StartRow {
				edges = append(edges, "top")
			}
			if row == g.EndRow-1 {
				edges = append(edges, "bottom")
			}
			if col == g.StartCol {
				edges = append(edges, "left")
			}
			if col == g.EndCol-1 {
				edges = append(edges, "right")
			}
			if len(edges) == 0 {
				return nil
			}
			return wb.updateStyle(sheet, cell, func(st *excelize.Style) {
				for _, e := range edges {
					st.Border = append(st.Border, excelize.Border{Type: e, Color: "000000", Style: 1})
				}
			})
		})

	case sheets.AutoResize:
		return sheets.Reply{}, wb.autoResize(r)

	case sheets.SetNote:
		name, err := wb.sheetName(r.Range.SheetID)
		if err != nil {
			return sheets.Reply{}, err
		}
		cell := topLeft(r.Range)
		_ = wb.f.DeleteComment(name, cell)
		return sheets.Reply{}, wb.f.AddComment(name, excelize.Comment{Cell: cell, Author: noteAuthor, Text: r.Note})

	case sheets.AddNamedRange:
		if err := wb.defineName(r.Name, r.Range); err != nil {
			return sheets.Reply{}, err
		}
		return sheets.Reply{NamedRangeID: r.Name}, nil

	case sheets.UpdateNamedRange:
		name := r.Name
		if name == "" {
			name = r.ID
		}
		if err := wb.f.DeleteDefinedName(&excelize.DefinedName{Name: name}); err != nil {
			return sheets.Reply{}, err
		}
		return sheets.Reply{NamedRangeID: name}, wb.defineName(name, r.Range)

	case sheets.AddTable:
		id, err := wb.upsertTable("", r.Name, r.Range)
		return sheets.Reply{TableID: id}, err

	case sheets.UpdateTable:
		id, err := wb.upsertTable(r.ID, r.Name, r.Range)
		return sheets.Reply{TableID: id}, err

	default:
		return sheets.Reply{}, fmt.Errorf("unsupported request %T", r)
	}
}

func (wb *workbook) hideGridlines(sheet string) error {
	show := false
	return wb.f.SetSheetView(sheet, 0, &excelize.ViewOptions{ShowGridLines: &show})
}

func (wb *workbook) eachCell(g sheets.GridRange, fn func(sheet, cell string, row, col int) error) error {
	name, err := wb.sheetName(g.SheetID)
	if err != nil {
		return err
	}
	for row := g.StartRow; row < g.EndRow; row++ {
		for col := g.StartCol; col < g.EndCol; col++ {
			if err := fn(name, sheets.FormatCell(col+1, row+1), row, col); err != nil {
				return err
			}
		}
	}
	return nil
}

// updateStyle merges a change into the cell's current style.
func (wb *workbook) updateStyle(sheet, cell string, change func(*excelize.Style)) error {
	current, err := wb.f.GetCellStyle(sheet, cell)
	if err != nil {
		return err
	}
	st := &excelize.Style{}
	if current != 0 {
		if existing, err := wb.f.GetStyle(current); err == nil && existing != nil {
			st = existing
		}
	}
	change(st)
	id, err := wb.f.NewStyle(st)
	if err != nil {
		return err
	}
	return wb.f.SetCellStyle(sheet, cell, cell, id)
}

func (wb *workbook) autoResize(r sheets.AutoResize) error {
	name, err := wb.sheetName(r.SheetID)
	if err != nil {
		return err
	}
	rows, err := wb.f.GetRows(name)
	if err != nil {
		return err
	}
	for col := r.StartCol; col < r.EndCol; col++ {
		width := 0
		for _, row := range rows {
			if col < len(row) {
				width = max(width, utf8.RuneCountInString(row[col]))
			}
		}
		w := min(max(float64(width)*charColWidth+2, minColWidth), maxColWidth)
		letter := sheets.IndexToColumn(col + 1)
		if err := wb.f.SetColWidth(name, letter, letter, w); err != nil {
			return err
		}
	}
	return nil
}

func (wb *workbook) defineName(name string, g sheets.GridRange) error {
	sheet, err := wb.sheetName(g.SheetID)
	if err != nil {
		return err
	}
	return wb.f.SetDefinedName(&excelize.DefinedName{Name: name, RefersTo: refersTo(sheet, g)})
}

// upsertTable replaces any table with the same id or name. Workbook table
// names allow no spaces, so other characters become underscores.
func (wb *workbook) upsertTable(id, name string, g sheets.GridRange) (string, error) {
	sheet, err := wb.sheetName(g.SheetID)
	if err != nil {
		return "", err
	}
	stored := invalidTableChars.ReplaceAllString(name, "_")
	for _, existing := range []string{id, stored} {
		if existing == "" {
			continue
		}
		if err := wb.f.DeleteTable(existing); err == nil {
			break
		}
	}
	err = wb.f.AddTable(sheet, &excelize.Table{
		Range:     topLeft(g) + ":" + bottomRight(g),
		Name:      stored,
		StyleName: tableStyle,
	})
	if err != nil {
		return "", err
	}
	return stored, nil
}

func topLeft(g sheets.GridRange) string {
	return sheets.FormatCell(g.StartCol+1, g.StartRow+1)
}

func bottomRight(g sheets.GridRange) string {
	return sheets.FormatCell(g.EndCol, g.EndRow)
}

func inRange(g sheets.GridRange, cell string) bool {
	col, row, err := excelize.CellNameToCoordinates(cell)
	if err != nil {
		return false
	}
	return row-1 >= g.StartRow && row-1 < g.EndRow && col-1 >= g.StartCol && col-1 < g.EndCol
}

func hexColor(c sheets.Color) string {
	return fmt.Sprintf("%02X%02X%02X", channel(c.Red), channel(c.Green), channel(c.Blue))
}

func channel(v float64) int {
	return int(min(max(v, 0), 1)*255 + 0.5)
}

func alignment(a sheets.Alignment) string {
	switch a {
	case sheets.AlignRight:
		return "right"
	default:
		return "left"
	}
}
