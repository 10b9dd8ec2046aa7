package stats

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/smolentsev/shopbot/internal/catalog"
	"github.com/smolentsev/shopbot/internal/orders"
	"github.com/smolentsev/shopbot/pkg/enums"
)

type snapshotProvider interface {
	Snapshot() *catalog.Snapshot
}

type userCounter interface {
	Count(ctx context.Context) (int64, error)
	CountNewSince(ctx context.Context, cutoff time.Time) (int64, error)
	CountSeenSince(ctx context.Context, cutoff time.Time) (int64, error)
}

// Summary is the admin dashboard roll-up.
type Summary struct {
	Users           int64
	NewUsersToday   int64
	ActiveToday     int64
	OrdersPlaced    int
	OrdersConfirmed int
	OrdersCancelled int
	Revenue         float64
}

// ProductCount is one row of the top-products report, in catalog units.
type ProductCount struct {
	ProductID string
	Name      string
	Units     int
}

// BuyerCount is one row of the top-buyers report.
type BuyerCount struct {
	BuyerID  int64
	Username string
	Orders   int
	Amount   float64
}

// Service computes reports over the order ledger and the user table.
type Service struct {
	ledger   orders.Ledger
	snapshot snapshotProvider
	users    userCounter
	clock    func() time.Time
}

// NewService builds the stats service.
func NewService(ledger orders.Ledger, snapshot snapshotProvider, users userCounter) (*Service, error) {
	if ledger == nil {
		return nil, fmt.Errorf("order ledger required")
	}
	if snapshot == nil {
		return nil, fmt.Errorf("catalog snapshot provider required")
	}
	if users == nil {
		return nil, fmt.Errorf("user counter required")
	}
	return &Service{
		ledger:   ledger,
		snapshot: snapshot,
		users:    users,
		clock:    time.Now,
	}, nil
}

// Summary returns the roll-up. Revenue counts confirmed orders only:
// placed orders may still be rejected and cancelled ones never shipped.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	all, err := s.ledger.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, order := range all {
		switch order.Status {
		case enums.OrderStatusConfirmed:
			summary.OrdersConfirmed++
			summary.Revenue += order.Total
		case enums.OrderStatusCancelled:
			summary.OrdersCancelled++
		default:
			summary.OrdersPlaced++
		}
	}

	now := s.clock().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if summary.Users, err = s.users.Count(ctx); err != nil {
		return nil, err
	}
	if summary.NewUsersToday, err = s.users.CountNewSince(ctx, midnight); err != nil {
		return nil, err
	}
	if summary.ActiveToday, err = s.users.CountSeenSince(ctx, midnight); err != nil {
		return nil, err
	}
	return summary, nil
}

// TopProducts ranks products by units across non-cancelled orders. Names
// come from the current snapshot; a product that left the catalog keeps
// its raw id.
func (s *Service) TopProducts(ctx context.Context, n int) ([]ProductCount, error) {
	all, err := s.ledger.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	units := map[string]int{}
	for _, order := range all {
		if order.Status == enums.OrderStatusCancelled {
			continue
		}
		for productID, count := range order.UnitCounts() {
			units[productID] += count
		}
	}

	snap := s.snapshot.Snapshot()
	out := make([]ProductCount, 0, len(units))
	for productID, count := range units {
		row := ProductCount{ProductID: productID, Name: productID, Units: count}
		if item, ok := snap.Item(productID); ok {
			row.Name = item.Name
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Units != out[j].Units {
			return out[i].Units > out[j].Units
		}
		return out[i].Name < out[j].Name
	})
	return clamp(out, n), nil
}

// TopBuyers ranks buyers by amount spent across non-cancelled orders.
func (s *Service) TopBuyers(ctx context.Context, n int) ([]BuyerCount, error) {
	all, err := s.ledger.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	byBuyer := map[int64]*BuyerCount{}
	for _, order := range all {
		if order.Status == enums.OrderStatusCancelled {
			continue
		}
		row, ok := byBuyer[order.BuyerID]
		if !ok {
			row = &BuyerCount{BuyerID: order.BuyerID}
			byBuyer[order.BuyerID] = row
		}
		if order.Username != "" {
			row.Username = order.Username
		}
		row.Orders++
		row.Amount += order.Total
	}

	out := make([]BuyerCount, 0, len(byBuyer))
	for _, row := range byBuyer {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].BuyerID < out[j].BuyerID
	})
	return clamp(out, n), nil
}

func clamp[T any](rows []T, n int) []T {
	if n > 0 && len(rows) > n {
		return rows[:n]
	}
	return rows
}
