package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	CyclesTotal           Counter
	CyclesSkipped         Counter
	OrdersPlaced          Counter
	OrdersCancelled       Counter
	OrdersRejected        Counter
	OrdersFilled          Counter
	GuardTripped          Counter
	OpportunitiesFound    Counter
	OpportunitiesExecuted Counter
	OpportunitiesBlocked  Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		CyclesTotal:           n,
		CyclesSkipped:         n,
		OrdersPlaced:          n,
		OrdersCancelled:       n,
		OrdersRejected:        n,
		OrdersFilled:          n,
		GuardTripped:          n,
		OpportunitiesFound:    n,
		OpportunitiesExecuted: n,
		OpportunitiesBlocked:  n,
	}
}
