package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "hl_mm_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(c)
		return c
	}

	m := &Metrics{
		CyclesTotal:           promCounter{counter("refresh_cycles_total", "Total refresh cycles executed.")},
		CyclesSkipped:         promCounter{counter("refresh_cycles_skipped_total", "Refresh cycles skipped on invalid snapshots.")},
		OrdersPlaced:          promCounter{counter("orders_placed_total", "Total orders placed.")},
		OrdersCancelled:       promCounter{counter("orders_cancelled_total", "Total orders cancelled.")},
		OrdersRejected:        promCounter{counter("orders_rejected_total", "Total order rejections observed.")},
		OrdersFilled:          promCounter{counter("orders_filled_total", "Total fills detected.")},
		GuardTripped:          promCounter{counter("risk_guard_tripped_total", "Risk guard trips.")},
		OpportunitiesFound:    promCounter{counter("arb_opportunities_found_total", "Arbitrage opportunities detected.")},
		OpportunitiesExecuted: promCounter{counter("arb_opportunities_executed_total", "Arbitrage opportunities executed.")},
		OpportunitiesBlocked:  promCounter{counter("arb_opportunities_blocked_total", "Arbitrage opportunities blocked by the inventory gate.")},
	}

	return &Prometheus{Metrics: m, registry: registry}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
