package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smolentsev/shopbot/pkg/enums"
	pkgerrors "github.com/smolentsev/shopbot/pkg/errors"
	"github.com/smolentsev/shopbot/pkg/sheets"
)

// Orders sheet column layout, one-based. Status lives in column 6 and is
// the only cell rewritten after append.
const (
	colOrderID  = 1
	colBuyerID  = 2
	colUsername = 3
	colItems    = 4
	colTotal    = 5
	colStatus   = 6
	colDelivery = 7
	colPayment  = 8
	colDate     = 9
)

// ItemSeparator joins the per-unit product ids in the ledger row.
const ItemSeparator = "; "

// Order is one row of the order ledger.
type Order struct {
	ID       string
	BuyerID  int64
	Username string
	ItemIDs  []string
	Total    float64
	Status   enums.OrderStatus
	Delivery enums.DeliveryMethod
	Payment  enums.PaymentMethod
	Date     string
}

// Row at which the order lives in the sheet, for status rewrites.
type Located struct {
	Order
	RowNum int
}

// Ledger is the order ledger boundary. The spreadsheet is the system of
// record; nothing about an order is stored in the relational DB except the
// referral attribution.
type Ledger interface {
	Append(ctx context.Context, order Order) error
	Find(ctx context.Context, orderID string) (*Located, error)
	SetStatus(ctx context.Context, rowNum int, status enums.OrderStatus) error
	ListByBuyer(ctx context.Context, buyerID int64) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)
}

// sheetClient is the slice of the sheets client the ledger needs.
type sheetClient interface {
	ReadAll(ctx context.Context, sheet string) ([][]any, error)
	Append(ctx context.Context, sheet string, row []any) error
	FindRow(ctx context.Context, sheet string, column int, value string) (int, []any, error)
	UpdateCell(ctx context.Context, sheet string, row, column int, value any) error
}

// SheetLedger stores orders as rows of the orders sheet.
type SheetLedger struct {
	client sheetClient
	sheet  string
}

// NewSheetLedger builds the ledger over the named sheet.
func NewSheetLedger(client sheetClient, sheet string) (*SheetLedger, error) {
	if client == nil {
		return nil, fmt.Errorf("sheets client is required")
	}
	if sheet == "" {
		return nil, fmt.Errorf("sheet name is required")
	}
	return &SheetLedger{client: client, sheet: sheet}, nil
}

// Append writes the order as a new ledger row.
func (l *SheetLedger) Append(ctx context.Context, order Order) error {
	row := []any{
		order.ID,
		order.BuyerID,
		order.Username,
		strings.Join(order.ItemIDs, ItemSeparator),
		order.Total,
		order.Status.String(),
		order.Delivery.String(),
		order.Payment.String(),
		order.Date,
	}
	if err := l.client.Append(ctx, l.sheet, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "appending order row")
	}
	return nil
}

// Find locates the order by id.
func (l *SheetLedger) Find(ctx context.Context, orderID string) (*Located, error) {
	rowNum, row, err := l.client.FindRow(ctx, l.sheet, colOrderID-1, orderID)
	if err != nil {
		if errors.Is(err, sheets.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("order %s not found", orderID))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "locating order row")
	}
	order := parseOrder(row)
	return &Located{Order: order, RowNum: rowNum}, nil
}

// SetStatus rewrites the status cell of the located row.
func (l *SheetLedger) SetStatus(ctx context.Context, rowNum int, status enums.OrderStatus) error {
	if err := l.client.UpdateCell(ctx, l.sheet, rowNum, colStatus, status.String()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating order status")
	}
	return nil
}

// ListByBuyer returns the buyer's orders in ledger order.
func (l *SheetLedger) ListByBuyer(ctx context.Context, buyerID int64) ([]Order, error) {
	all, err := l.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []Order
	for _, order := range all {
		if order.BuyerID == buyerID {
			out = append(out, order)
		}
	}
	return out, nil
}

// ListAll returns every ledger row.
func (l *SheetLedger) ListAll(ctx context.Context) ([]Order, error) {
	rows, err := l.client.ReadAll(ctx, l.sheet)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading order ledger")
	}
	var out []Order
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		order := parseOrder(row)
		if order.ID == "" {
			continue
		}
		out = append(out, order)
	}
	return out, nil
}

// UnitCounts aggregates the serialized per-unit item list by product id.
func (o Order) UnitCounts() map[string]int {
	counts := map[string]int{}
	for _, id := range o.ItemIDs {
		if id == "" {
			continue
		}
		counts[id]++
	}
	return counts
}

func parseOrder(row []any) Order {
	order := Order{
		ID:       cellString(row, colOrderID-1),
		BuyerID:  cellInt64(row, colBuyerID-1),
		Username: cellString(row, colUsername-1),
		Total:    cellFloat(row, colTotal-1),
		Date:     cellString(row, colDate-1),
	}
	if raw := cellString(row, colItems-1); raw != "" {
		for _, id := range strings.Split(raw, ";") {
			id = strings.TrimSpace(id)
			if id != "" {
				order.ItemIDs = append(order.ItemIDs, id)
			}
		}
	}
	order.Status, _ = enums.ParseOrderStatus(cellString(row, colStatus-1))
	order.Delivery, _ = enums.ParseDeliveryMethod(cellString(row, colDelivery-1))
	order.Payment, _ = enums.ParsePaymentMethod(cellString(row, colPayment-1))
	return order
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

func cellInt64(row []any, idx int) int64 {
	raw := cellString(row, idx)
	if raw == "" {
		return 0
	}
	var n int64
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return 0
	}
	return n
}

func cellFloat(row []any, idx int) float64 {
	raw := strings.ReplaceAll(cellString(row, idx), ",", ".")
	if raw == "" {
		return 0
	}
	var f float64
	if _, err := fmt.Sscanf(raw, "%g", &f); err != nil {
		return 0
	}
	return f
}

// DateString formats the ledger date the way rows store it.
func DateString(t time.Time) string {
	return t.Format("2006-01-02")
}
