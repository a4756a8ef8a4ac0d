package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	TicksHandled     Counter
	TicksDropped     Counter
	PositionsCreated Counter
	PositionsClosed  Counter
	Rebalances       Counter
	Swaps            Counter
	CreateFailed     Counter
	RebalanceFailed  Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		TicksHandled:     n,
		TicksDropped:     n,
		PositionsCreated: n,
		PositionsClosed:  n,
		Rebalances:       n,
		Swaps:            n,
		CreateFailed:     n,
		RebalanceFailed:  n,
	}
}
