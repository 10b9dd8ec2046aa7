package pricing

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/smolentsev/shopbot/internal/catalog"
	"github.com/smolentsev/shopbot/pkg/config"
	"github.com/smolentsev/shopbot/pkg/db/models"
	"github.com/smolentsev/shopbot/pkg/enums"
)

// Config carries the discount and shipping knobs.
type Config struct {
	LiquidCategory  string
	VolumeThreshold int
	VolumePerUnit   float64
	ParcelFee       float64
}

// FromAppConfig builds the engine config from the loaded application config.
func FromAppConfig(cfg *config.Config) Config {
	return Config{
		LiquidCategory:  cfg.Discounts.LiquidCategory,
		VolumeThreshold: cfg.Discounts.VolumeThreshold,
		VolumePerUnit:   cfg.Discounts.VolumePerUnit,
		ParcelFee:       cfg.Shipping.ParcelFee,
	}
}

// Breakdown is the priced view of a cart.
type Breakdown struct {
	Subtotal       float64
	PromoDiscount  float64
	VolumeDiscount float64
	Shipping       float64
	Total          float64
	LiquidCount    int
	PricedIDs      []string
	SkippedIDs     []string
}

// Engine prices carts. It is pure: promo consumption is a separate write
// that belongs to checkout commit, not to any price render.
type Engine struct {
	cfg Config
}

// NewEngine builds a pricing engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Quote prices the given cart lines against the catalog snapshot.
//
// The discount order is fixed and not commutative once a floor triggers:
// promo percent first, then volume discount, each applied to the running
// total and floored at zero. Shipping is added last and never discounted.
// Lines whose product is missing from the snapshot contribute nothing and
// are reported in SkippedIDs.
func (e *Engine) Quote(lines map[string]int, snap *catalog.Snapshot, promo *models.PromoCode, delivery enums.DeliveryMethod) Breakdown {
	breakdown := Breakdown{}

	subtotal := decimal.Zero
	for _, productID := range sortedIDs(lines) {
		quantity := lines[productID]
		if quantity <= 0 {
			continue
		}
		item, ok := snap.Item(productID)
		if !ok {
			breakdown.SkippedIDs = append(breakdown.SkippedIDs, productID)
			continue
		}
		breakdown.PricedIDs = append(breakdown.PricedIDs, productID)
		lineTotal := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(quantity)))
		subtotal = subtotal.Add(lineTotal)
		if item.Category == e.cfg.LiquidCategory {
			breakdown.LiquidCount += quantity
		}
	}
	breakdown.Subtotal, _ = subtotal.Float64()

	running := subtotal

	if promo != nil && promo.UsesLeft > 0 {
		percent := decimal.NewFromFloat(promo.Percent)
		discount := running.Mul(percent).Div(decimal.NewFromInt(100))
		running = floor(running.Sub(discount))
		breakdown.PromoDiscount, _ = discount.Float64()
	}

	if e.cfg.VolumeThreshold > 0 && breakdown.LiquidCount >= e.cfg.VolumeThreshold {
		discount := decimal.NewFromFloat(e.cfg.VolumePerUnit).Mul(decimal.NewFromInt(int64(breakdown.LiquidCount)))
		running = floor(running.Sub(discount))
		breakdown.VolumeDiscount, _ = discount.Float64()
	}

	if delivery.HasShippingFee() {
		fee := decimal.NewFromFloat(e.cfg.ParcelFee)
		running = running.Add(fee)
		breakdown.Shipping, _ = fee.Float64()
	}

	breakdown.Total, _ = running.Float64()
	return breakdown
}

// ItemUnits expands cart lines into one product id per unit, the layout the
// order ledger stores.
func ItemUnits(lines map[string]int) []string {
	var units []string
	for _, productID := range sortedIDs(lines) {
		for i := 0; i < lines[productID]; i++ {
			units = append(units, productID)
		}
	}
	return units
}

func sortedIDs(lines map[string]int) []string {
	ids := make([]string, 0, len(lines))
	for id := range lines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func floor(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
