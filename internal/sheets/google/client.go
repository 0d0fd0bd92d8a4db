// Package google implements sheets.Client on the Google Sheets v4 API.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/leapstack-labs/leapsheets/internal/sheets"
)

const userEntered = "USER_ENTERED"

// metadataFields limits GetSpreadsheet to what the upload engine reads.
const metadataFields = "spreadsheetId,properties.title,namedRanges," +
	"sheets(properties(sheetId,title,index,gridProperties(rowCount,columnCount)),tables(tableId,name,range,columnProperties(columnIndex,columnName)))"

// Client talks to the Google Sheets API.
type Client struct {
	svc    *gsheets.Service
	logger *slog.Logger
}

var _ sheets.Client = (*Client)(nil)

// New creates a client. Options follow google.golang.org/api/option.
func New(ctx context.Context, logger *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &Client{svc: svc, logger: logger}, nil
}

// NewFromCredentialsFile creates a client authenticated with a service
// account key. The file is read and validated on every call.
func NewFromCredentialsFile(ctx context.Context, logger *slog.Logger, path string) (*Client, error) {
	data, err := LoadCredentials(path)
	if err != nil {
		return nil, err
	}
	return New(ctx, logger,
		option.WithCredentialsJSON(data),
		option.WithScopes(gsheets.SpreadsheetsScope),
	)
}

// LoadCredentials reads a service account key file and checks that it is usable.
func LoadCredentials(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("no credentials file configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	var key struct {
		Type        string `json:"type"`
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("invalid credentials file %s: %w", path, err)
	}
	if key.Type != "service_account" || key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, fmt.Errorf("invalid credentials file %s: not a service account key", path)
	}
	return data, nil
}

// GetSpreadsheet implements sheets.Client.
func (c *Client) GetSpreadsheet(ctx context.Context, spreadsheetID string) (*sheets.Spreadsheet, error) {
	resp, err := c.svc.Spreadsheets.Get(spreadsheetID).
		Fields(googleapi.Field(metadataFields)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get spreadsheet %s: %w", spreadsheetID, err)
	}

	out := &sheets.Spreadsheet{ID: resp.SpreadsheetId}
	if resp.Properties != nil {
		out.Title = resp.Properties.Title
	}
	for _, sh := range resp.Sheets {
		if sh.Properties == nil {
			continue
		}
		s := sheets.Sheet{
			ID:    sh.Properties.SheetId,
			Title: sh.Properties.Title,
			Index: int(sh.Properties.Index),
		}
		if gp := sh.Properties.GridProperties; gp != nil {
			s.RowCount = int(gp.RowCount)
			s.ColCount = int(gp.ColumnCount)
		}
		for _, tbl := range sh.Tables {
			t := sheets.Table{ID: tbl.TableId, Name: tbl.Name, Range: fromGridRange(tbl.Range)}
			for _, col := range tbl.ColumnProperties {
				t.Columns = append(t.Columns, col.ColumnName)
			}
			s.Tables = append(s.Tables, t)
		}
		out.Sheets = append(out.Sheets, s)
	}
	for _, nr := range resp.NamedRanges {
		out.NamedRanges = append(out.NamedRanges, sheets.NamedRange{
			ID:    nr.NamedRangeId,
			Name:  nr.Name,
			Range: fromGridRange(nr.Range),
		})
	}
	return out, nil
}

// GetValues implements sheets.Client.
func (c *Client) GetValues(ctx context.Context, spreadsheetID, a1 string) ([][]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(spreadsheetID, a1).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get values %s: %w", a1, err)
	}
	rows := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		rows[i] = make([]string, len(row))
		for j, v := range row {
			if v != nil {
				rows[i][j] = fmt.Sprint(v)
			}
		}
	}
	return rows, nil
}

// UpdateValues implements sheets.Client.
func (c *Client) UpdateValues(ctx context.Context, spreadsheetID, a1 string, values [][]any) error {
	vr := &gsheets.ValueRange{Range: a1, MajorDimension: "ROWS", Values: values}
	resp, err := c.svc.Spreadsheets.Values.Update(spreadsheetID, a1, vr).
		ValueInputOption(userEntered).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update values %s: %w", a1, err)
	}
	c.logger.Debug("values updated", "range", resp.UpdatedRange, "cells", resp.UpdatedCells)
	return nil
}

// ClearValues implements sheets.Client.
func (c *Client) ClearValues(ctx context.Context, spreadsheetID, a1 string) error {
	if _, err := c.svc.Spreadsheets.Values.Clear(spreadsheetID, a1, &gsheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to clear values %s: %w", a1, err)
	}
	return nil
}

// BatchUpdate implements sheets.Client.
func (c *Client) BatchUpdate(ctx context.Context, spreadsheetID string, requests []sheets.Request) ([]sheets.Reply, error) {
	if len(requests) == 0 {
		return nil, nil
	}
	reqs := make([]*gsheets.Request, 0, len(requests))
	for _, r := range requests {
		req, err := toRequest(r)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}

	resp, err := c.svc.Spreadsheets.BatchUpdate(spreadsheetID, &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: reqs,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("batch update failed: %w", err)
	}

	replies := make([]sheets.Reply, len(requests))
	for i, r := range resp.Replies {
		if i >= len(replies) || r == nil {
			continue
		}
		switch {
		case r.AddSheet != nil && r.AddSheet.Properties != nil:
			replies[i].SheetID = r.AddSheet.Properties.SheetId
		case r.AddNamedRange != nil && r.AddNamedRange.NamedRange != nil:
			replies[i].NamedRangeID = r.AddNamedRange.NamedRange.NamedRangeId
		case r.AddTable != nil && r.AddTable.Table != nil:
			replies[i].TableID = r.AddTable.Table.TableId
		}
	}
	return replies, nil
}
