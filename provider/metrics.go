package provider

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks funding pool activity.
type Metrics struct {
	PoolOutputs prometheus.Gauge
	FundingTxs  prometheus.Counter
	FillRounds  prometheus.Counter
	Exhausted   prometheus.Counter
	Replenished prometheus.Counter
}

// NewMetrics creates the pool metrics and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PoolOutputs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "libtoken_pool_outputs",
			Help: "Available default-value outputs in the funding pool.",
		}),
		FundingTxs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "libtoken_pool_funding_transactions_total",
			Help: "Funding transactions built from the pool.",
		}),
		FillRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "libtoken_pool_fill_rounds_total",
			Help: "Selection rounds spent adding fee inputs.",
		}),
		Exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "libtoken_pool_exhausted_total",
			Help: "Fee or funding requests the pool could not cover.",
		}),
		Replenished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "libtoken_pool_replenished_outputs_total",
			Help: "Default-value outputs created by replenishment.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.PoolOutputs, m.FundingTxs, m.FillRounds, m.Exhausted, m.Replenished)
	}
	return m
}
