package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	pkgerrors "github.com/smolentsev/shopbot/pkg/errors"
	"github.com/smolentsev/shopbot/pkg/sheets"
)

// Catalog sheet column layout, one-based. The quantity column is written
// back during order confirmation, so its position is load-bearing.
const (
	colID           = 1
	colCategory     = 2
	colManufacturer = 3
	colLine         = 4
	colQuantity     = 5
	colName         = 6
	colPrice        = 7
	colDescription  = 8
	colPhotoURL     = 9
)

// sheetReader is the slice of the sheets client the source needs.
type sheetReader interface {
	ReadAll(ctx context.Context, sheet string) ([][]any, error)
	FindRow(ctx context.Context, sheet string, column int, value string) (int, []any, error)
	UpdateCell(ctx context.Context, sheet string, row, column int, value any) error
}

// SheetSource reads the catalog from the spreadsheet that is its system
// of record.
type SheetSource struct {
	client sheetReader
	sheet  string
}

// NewSheetSource builds a catalog source over the named sheet.
func NewSheetSource(client sheetReader, sheet string) (*SheetSource, error) {
	if client == nil {
		return nil, fmt.Errorf("sheets client is required")
	}
	if sheet == "" {
		return nil, fmt.Errorf("sheet name is required")
	}
	return &SheetSource{client: client, sheet: sheet}, nil
}

// FetchAll reads every catalog row, skipping the header and rows without
// a product id.
func (s *SheetSource) FetchAll(ctx context.Context) ([]Item, error) {
	rows, err := s.client.ReadAll(ctx, s.sheet)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetching catalog sheet")
	}

	var items []Item
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		item := parseRow(row)
		if item.ID == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// AdjustStock adds delta (usually negative) to the quantity cell of the
// product's row. The result is clamped at zero.
func (s *SheetSource) AdjustStock(ctx context.Context, productID string, delta int) error {
	rowNum, row, err := s.client.FindRow(ctx, s.sheet, colID-1, productID)
	if err != nil {
		if errors.Is(err, sheets.ErrNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found in catalog sheet", productID))
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "locating catalog row")
	}

	current := cellInt(row, colQuantity-1)
	next := current + delta
	if next < 0 {
		next = 0
	}
	if err := s.client.UpdateCell(ctx, s.sheet, rowNum, colQuantity, next); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating catalog stock")
	}
	return nil
}

func parseRow(row []any) Item {
	return Item{
		ID:           cellString(row, colID-1),
		Category:     cellString(row, colCategory-1),
		Manufacturer: cellString(row, colManufacturer-1),
		Line:         cellString(row, colLine-1),
		Quantity:     cellInt(row, colQuantity-1),
		Name:         cellString(row, colName-1),
		Price:        cellFloat(row, colPrice-1),
		Description:  cellString(row, colDescription-1),
		PhotoURL:     cellString(row, colPhotoURL-1),
	}
}

func cellString(row []any, idx int) string {
	if idx >= len(row) || row[idx] == nil {
		return ""
	}
	if s, ok := row[idx].(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(row[idx]))
}

func cellInt(row []any, idx int) int {
	raw := cellString(row, idx)
	if raw == "" {
		return 0
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return int(f)
	}
	return 0
}

func cellFloat(row []any, idx int) float64 {
	raw := cellString(row, idx)
	if raw == "" {
		return 0
	}
	raw = strings.ReplaceAll(raw, ",", ".")
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return 0
}
