package usecase

// Metrics receives chat lifecycle counters. The HTTP layer supplies a
// Prometheus implementation; tests and tools use NopMetrics.
type Metrics interface {
	StreamFinished(provider string, outcome Outcome)
	DeltaForwarded(provider string)
	TitleSummarized(outcome Outcome)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) StreamFinished(string, Outcome) {}
func (NopMetrics) DeltaForwarded(string)          {}
func (NopMetrics) TitleSummarized(Outcome)        {}
