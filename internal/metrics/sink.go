package metrics

// Sink is the abstract observability collaborator the core emits
// counter/gauge/histogram updates through.
type Sink interface {
	CounterInc(name string, delta float64)
	GaugeSet(name string, value float64)
	HistogramObserve(name string, value float64)
}

// Noop discards every update; used by tests and by either binary when no
// metrics bind address is configured.
type Noop struct{}

func (Noop) CounterInc(string, float64)       {}
func (Noop) GaugeSet(string, float64)         {}
func (Noop) HistogramObserve(string, float64) {}
