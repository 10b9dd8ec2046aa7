package sheets

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/smolentsev/shopbot/pkg/config"
)

// ErrNotFound is returned when a row lookup finds no match.
var ErrNotFound = errors.New("sheets: row not found")

// Client wraps the Sheets API for the single spreadsheet the bot uses as
// its system of record for the catalog and the order ledger.
type Client struct {
	svc           *sheets.Service
	spreadsheetID string
}

// New builds a Sheets client from the provided configuration. Credentials
// come from an inline JSON blob, a key file, or application defaults, in
// that order.
func New(ctx context.Context, cfg config.SheetsConfig) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}

	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &Client{svc: svc, spreadsheetID: cfg.SpreadsheetID}, nil
}

// ReadAll returns every row of the named sheet as raw cell values.
func (c *Client) ReadAll(ctx context.Context, sheet string) ([][]any, error) {
	resp, err := c.svc.Spreadsheets.Values.
		Get(c.spreadsheetID, sheet).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	return resp.Values, nil
}

// Append adds a row to the end of the named sheet.
func (c *Client) Append(ctx context.Context, sheet string, row []any) error {
	vr := &sheets.ValueRange{Values: [][]any{row}}
	_, err := c.svc.Spreadsheets.Values.
		Append(c.spreadsheetID, sheet, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("appending to sheet %s: %w", sheet, err)
	}
	return nil
}

// FindRow scans the named sheet for the first row whose cell in the given
// zero-based column equals value. It returns the one-based row number and
// the row's cells, or ErrNotFound.
func (c *Client) FindRow(ctx context.Context, sheet string, column int, value string) (int, []any, error) {
	rows, err := c.ReadAll(ctx, sheet)
	if err != nil {
		return 0, nil, err
	}
	for i, row := range rows {
		if column >= len(row) {
			continue
		}
		if cellString(row[column]) == value {
			return i + 1, row, nil
		}
	}
	return 0, nil, ErrNotFound
}

// UpdateCell overwrites a single cell addressed by one-based row and column.
func (c *Client) UpdateCell(ctx context.Context, sheet string, row, column int, value any) error {
	rng := fmt.Sprintf("%s!%s%d", sheet, columnLetter(column), row)
	vr := &sheets.ValueRange{Values: [][]any{{value}}}
	_, err := c.svc.Spreadsheets.Values.
		Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("updating cell %s: %w", rng, err)
	}
	return nil
}

func cellString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// columnLetter converts a one-based column index into A1 notation.
func columnLetter(column int) string {
	letters := ""
	for column > 0 {
		column--
		letters = string(rune('A'+column%26)) + letters
		column /= 26
	}
	return letters
}
