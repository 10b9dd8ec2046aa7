package orders

import (
	"context"
	"fmt"
	"sort"

	"github.com/smolentsev/shopbot/internal/catalog"
)

type snapshotProvider interface {
	Snapshot() *catalog.Snapshot
}

// HistoryEntry is one past order rendered for the buyer.
type HistoryEntry struct {
	OrderID   string
	Date      string
	Status    string
	Total     float64
	ItemNames []string
}

// HistoryService lists a buyer's past orders from the ledger.
type HistoryService struct {
	ledger   Ledger
	snapshot snapshotProvider
}

// NewHistoryService builds the history reader.
func NewHistoryService(ledger Ledger, snapshot snapshotProvider) (*HistoryService, error) {
	if ledger == nil {
		return nil, fmt.Errorf("order ledger required")
	}
	if snapshot == nil {
		return nil, fmt.Errorf("catalog snapshot provider required")
	}
	return &HistoryService{ledger: ledger, snapshot: snapshot}, nil
}

// ForBuyer returns the buyer's orders with item ids resolved to display
// names where the current snapshot still knows them.
func (h *HistoryService) ForBuyer(ctx context.Context, buyerID int64) ([]HistoryEntry, error) {
	orders, err := h.ledger.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	snap := h.snapshot.Snapshot()
	entries := make([]HistoryEntry, 0, len(orders))
	for _, order := range orders {
		entry := HistoryEntry{
			OrderID: order.ID,
			Date:    order.Date,
			Status:  order.Status.String(),
			Total:   order.Total,
		}
		for productID, count := range order.UnitCounts() {
			name := productID
			if item, ok := snap.Item(productID); ok {
				name = item.Name
			}
			entry.ItemNames = append(entry.ItemNames, fmt.Sprintf("%s x%d", name, count))
		}
		sort.Strings(entry.ItemNames)
		entries = append(entries, entry)
	}
	return entries, nil
}
