package catalog

import "time"

// Item is one catalog row. Snapshot entries are immutable; a refresh
// replaces the whole snapshot, it never patches items in place.
type Item struct {
	ID           string
	Category     string
	Manufacturer string
	Line         string
	Name         string
	Description  string
	Price        float64
	Quantity     int
	PhotoURL     string
}

// InStock reports whether the item has remaining units.
func (i Item) InStock() bool {
	return i.Quantity > 0
}

// Snapshot is a consistent, immutable view of the catalog.
type Snapshot struct {
	items       []Item
	byID        map[string]Item
	version     uint64
	refreshedAt time.Time
}

// NewSnapshot builds a snapshot from the given items.
func NewSnapshot(items []Item, version uint64, refreshedAt time.Time) *Snapshot {
	byID := make(map[string]Item, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	return &Snapshot{
		items:       items,
		byID:        byID,
		version:     version,
		refreshedAt: refreshedAt,
	}
}

// Items returns all catalog rows in sheet order.
func (s *Snapshot) Items() []Item {
	if s == nil {
		return nil
	}
	return s.items
}

// Item looks up a catalog row by product id.
func (s *Snapshot) Item(id string) (Item, bool) {
	if s == nil {
		return Item{}, false
	}
	item, ok := s.byID[id]
	return item, ok
}

// Len returns the number of catalog rows.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Version increases by one on every successful refresh.
func (s *Snapshot) Version() uint64 {
	if s == nil {
		return 0
	}
	return s.version
}

// RefreshedAt is when the snapshot was fetched.
func (s *Snapshot) RefreshedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.refreshedAt
}

// Categories lists distinct categories that have at least one in-stock item,
// in first-appearance order.
func (s *Snapshot) Categories() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, item := range s.Items() {
		if item.Category == "" || !item.InStock() {
			continue
		}
		if _, ok := seen[item.Category]; ok {
			continue
		}
		seen[item.Category] = struct{}{}
		out = append(out, item.Category)
	}
	return out
}

// Manufacturers lists distinct manufacturers with in-stock items in the category.
func (s *Snapshot) Manufacturers(category string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, item := range s.Items() {
		if item.Category != category || !item.InStock() {
			continue
		}
		if _, ok := seen[item.Manufacturer]; ok {
			continue
		}
		seen[item.Manufacturer] = struct{}{}
		out = append(out, item.Manufacturer)
	}
	return out
}

// Lines lists distinct product lines for a category/manufacturer pair.
func (s *Snapshot) Lines(category, manufacturer string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, item := range s.Items() {
		if item.Category != category || item.Manufacturer != manufacturer || !item.InStock() {
			continue
		}
		if _, ok := seen[item.Line]; ok {
			continue
		}
		seen[item.Line] = struct{}{}
		out = append(out, item.Line)
	}
	return out
}

// ProductsByLine returns the in-stock items for a category/manufacturer/line.
func (s *Snapshot) ProductsByLine(category, manufacturer, line string) []Item {
	var out []Item
	for _, item := range s.Items() {
		if item.Category == category && item.Manufacturer == manufacturer && item.Line == line && item.InStock() {
			out = append(out, item)
		}
	}
	return out
}
