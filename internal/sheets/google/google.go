// Package google mirrors expenses into a Google Sheets worksheet, one row
// per expense keyed by the expense id in column A.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"expense/internal/core"
	"expense/internal/log"
)

// Header is the first row of the mirror sheet.
var Header = []any{"ID", "Date", "Category", "Subcategory", "Count", "Unit price", "Total", "Note"}

// Client writes expense rows to one sheet of a spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger

	// sheetID is the numeric id of sheetName, resolved on first delete.
	sheetID *int64
}

// Options configures a Client.
type Options struct {
	SpreadsheetID string
	SheetName     string
	// CredentialsJSON is a service account key.
	CredentialsJSON []byte

	// Endpoint and HTTPClient replace the Google endpoint and transport;
	// when HTTPClient is set no credentials are used.
	Endpoint   string
	HTTPClient *http.Client
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(opts.SheetName) == "" {
		return nil, errors.New("missing sheet name")
	}

	var clientOpts []goption.ClientOption
	switch {
	case opts.HTTPClient != nil:
		clientOpts = append(clientOpts, goption.WithHTTPClient(opts.HTTPClient))
	case len(opts.CredentialsJSON) > 0:
		clientOpts = append(clientOpts,
			goption.WithCredentialsJSON(opts.CredentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	default:
		return nil, errors.New("missing service account credentials")
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, goption.WithEndpoint(opts.Endpoint))
	}

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	logger = logger.WithComponent(log.ComponentSheets)
	logger.InfoContext(ctx, "Google Sheets service created",
		"spreadsheet_id", opts.SpreadsheetID,
		"sheet", opts.SheetName)

	return &Client{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		sheetName:     opts.SheetName,
		logger:        logger,
	}, nil
}

// EnsureHeader writes the header row when A1 is empty.
func (c *Client) EnsureHeader(ctx context.Context) error {
	rng := fmt.Sprintf("%s!A1:H1", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 && cell(resp.Values[0][0]) != "" {
		return nil
	}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{Header}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	c.logger.InfoContext(ctx, "Wrote mirror header", "sheet", c.sheetName)
	return nil
}

// Upsert writes e to its row, appending a new row when the id is not in
// the sheet yet.
func (c *Client) Upsert(ctx context.Context, e core.Expense) error {
	row, err := c.findRow(ctx, e.ID)
	if err != nil {
		return err
	}
	values := &gsheet.ValueRange{Values: [][]any{ToRow(e)}}

	if row == 0 {
		rng := fmt.Sprintf("%s!A:H", c.sheetName)
		_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, values).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("append expense %d: %w", e.ID, err)
		}
		c.logger.DebugContext(ctx, "Appended expense row", log.FieldExpenseID, e.ID)
		return nil
	}

	rng := fmt.Sprintf("%s!A%d:H%d", c.sheetName, row, row)
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, values).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update expense %d in %s: %w", e.ID, rng, err)
	}
	c.logger.DebugContext(ctx, "Updated expense row", log.FieldExpenseID, e.ID, "row", row)
	return nil
}

// Remove deletes the row of expense id. A missing row is not an error.
func (c *Client) Remove(ctx context.Context, id int64) error {
	row, err := c.findRow(ctx, id)
	if err != nil {
		return err
	}
	if row == 0 {
		c.logger.DebugContext(ctx, "Expense row already absent", log.FieldExpenseID, id)
		return nil
	}
	sheetID, err := c.resolveSheetID(ctx)
	if err != nil {
		return err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(row - 1),
					EndIndex:        int64(row),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete expense %d row %d: %w", id, row, err)
	}
	c.logger.DebugContext(ctx, "Deleted expense row", log.FieldExpenseID, id, "row", row)
	return nil
}

// findRow returns the 1-based row holding id, or 0.
func (c *Client) findRow(ctx context.Context, id int64) (int, error) {
	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", rng, err)
	}
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if got, ok := parseID(cell(row[0])); ok && got == id {
			return i + 1, nil
		}
	}
	return 0, nil
}

func (c *Client) resolveSheetID(ctx context.Context) (int64, error) {
	if c.sheetID != nil {
		return *c.sheetID, nil
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == c.sheetName {
			id := sh.Properties.SheetId
			c.sheetID = &id
			return id, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", c.sheetName)
}

// ToRow lays an expense out in the mirror columns. Amounts are plain
// decimals so the sheet can sum them.
func ToRow(e core.Expense) []any {
	category, subcategory := e.Category.Name, ""
	if e.Category.Parent != nil {
		category, subcategory = e.Category.Parent.Name, e.Category.Name
	}
	return []any{
		strconv.FormatInt(e.ID, 10),
		e.Date.String(),
		category,
		subcategory,
		e.Count,
		e.UnitPrice.String(),
		e.TotalPrice.String(),
		e.Note,
	}
}

func cell(v any) string {
	return strings.TrimSpace(fmt.Sprint(v))
}

// parseID accepts ids rendered as integers or as floats.
func parseID(s string) (int64, bool) {
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
		return int64(f), true
	}
	return 0, false
}
