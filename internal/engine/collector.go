package engine

import "github.com/torosent/httpsample/internal/sample"

// Collector receives samples synchronously, in dispatch order.
// Implementations must return promptly; the engine waits for them.
type Collector interface {
	Collect(s sample.Sample)
}

// CollectorFunc adapts a function to Collector.
type CollectorFunc func(s sample.Sample)

// Collect calls f(s).
func (f CollectorFunc) Collect(s sample.Sample) {
	f(s)
}

// Tee hands every sample to each collector in argument order. Nil entries are skipped.
func Tee(collectors ...Collector) Collector {
	active := make([]Collector, 0, len(collectors))
	for _, c := range collectors {
		if c != nil {
			active = append(active, c)
		}
	}
	return CollectorFunc(func(s sample.Sample) {
		for _, c := range active {
			c.Collect(s)
		}
	})
}
