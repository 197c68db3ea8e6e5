package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set holds the engine's collectors. A nil *Set disables every method, so
// callers never branch on whether metrics are wired.
type Set struct {
	Orders           prometheus.Counter
	Cancels          prometheus.Counter
	Trades           prometheus.Counter
	DroppedTelemetry prometheus.Counter
	InDepth          prometheus.Gauge
	OutDepth         prometheus.Gauge
}

// New builds and registers the engine collectors.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		Orders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tycho", Subsystem: "engine", Name: "orders_total",
			Help: "New order messages processed.",
		}),
		Cancels: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tycho", Subsystem: "engine", Name: "cancels_total",
			Help: "Cancel messages processed.",
		}),
		Trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tycho", Subsystem: "engine", Name: "trades_total",
			Help: "Trades executed.",
		}),
		DroppedTelemetry: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tycho", Subsystem: "engine", Name: "dropped_telemetry_total",
			Help: "Server messages dropped because the output channel was full.",
		}),
		InDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tycho", Subsystem: "engine", Name: "in_channel_depth",
			Help: "Approximate input channel occupancy.",
		}),
		OutDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tycho", Subsystem: "engine", Name: "out_channel_depth",
			Help: "Approximate output channel occupancy.",
		}),
	}
	reg.MustRegister(s.Orders, s.Cancels, s.Trades, s.DroppedTelemetry, s.InDepth, s.OutDepth)
	return s
}

// IncOrders bumps the order counter.
func (s *Set) IncOrders() {
	if s != nil {
		s.Orders.Inc()
	}
}

// IncCancels bumps the cancel counter.
func (s *Set) IncCancels() {
	if s != nil {
		s.Cancels.Inc()
	}
}

// AddTrades bumps the trade counter by n.
func (s *Set) AddTrades(n int) {
	if s != nil {
		s.Trades.Add(float64(n))
	}
}

// IncDroppedTelemetry records one dropped server message.
func (s *Set) IncDroppedTelemetry() {
	if s != nil {
		s.DroppedTelemetry.Inc()
	}
}

// SetDepths records channel occupancy.
func (s *Set) SetDepths(in, out uint64) {
	if s != nil {
		s.InDepth.Set(float64(in))
		s.OutDepth.Set(float64(out))
	}
}
