package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "dlmm_lp_bot"

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
	ticksHandled := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "ticks_handled_total",
		Help:      "Total number of price ticks evaluated by strategies.",
	})
	ticksDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "ticks_dropped_total",
		Help:      "Total number of price ticks dropped because a strategy was busy.",
	})
	positionsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "positions_created_total",
		Help:      "Total number of liquidity positions opened.",
	})
	positionsClosed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "positions_closed_total",
		Help:      "Total number of liquidity positions fully withdrawn.",
	})
	rebalances := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "rebalances_total",
		Help:      "Total number of completed remove-then-create rebalance cycles.",
	})
	swaps := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "swaps_total",
		Help:      "Total number of inventory correction swaps executed.",
	})
	createFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "create_failed_total",
		Help:      "Total number of failed position create flows.",
	})
	rebalanceFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "rebalance_failed_total",
		Help:      "Total number of failed rebalance cycles.",
	})

	registry.MustRegister(ticksHandled, ticksDropped, positionsCreated, positionsClosed, rebalances, swaps, createFailed, rebalanceFailed)

	return &Prometheus{
		Metrics: &Metrics{
			TicksHandled:     promCounter{ticksHandled},
			TicksDropped:     promCounter{ticksDropped},
			PositionsCreated: promCounter{positionsCreated},
			PositionsClosed:  promCounter{positionsClosed},
			Rebalances:       promCounter{rebalances},
			Swaps:            promCounter{swaps},
			CreateFailed:     promCounter{createFailed},
			RebalanceFailed:  promCounter{rebalanceFailed},
		},
		registry: registry,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
