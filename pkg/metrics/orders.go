package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics counts order lifecycle transitions.
type OrderMetrics struct {
	placed    prometheus.Counter
	confirmed prometheus.Counter
	cancelled prometheus.Counter
}

// NewOrderMetrics registers the order counters on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	placed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Orders committed through checkout.",
	})
	confirmed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_confirmed_total",
		Help: "Orders confirmed by the operator.",
	})
	cancelled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Orders rejected or cancelled by the operator.",
	})
	reg.MustRegister(placed, confirmed, cancelled)
	return &OrderMetrics{
		placed:    placed,
		confirmed: confirmed,
		cancelled: cancelled,
	}
}

// IncPlaced increments the placed-order counter.
func (o *OrderMetrics) IncPlaced() {
	if o == nil || o.placed == nil {
		return
	}
	o.placed.Inc()
}

// IncConfirmed increments the confirmed-order counter.
func (o *OrderMetrics) IncConfirmed() {
	if o == nil || o.confirmed == nil {
		return
	}
	o.confirmed.Inc()
}

// IncCancelled increments the cancelled-order counter.
func (o *OrderMetrics) IncCancelled() {
	if o == nil || o.cancelled == nil {
		return
	}
	o.cancelled.Inc()
}
