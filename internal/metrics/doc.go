// Package metrics aggregates samples into summary statistics.
//
// [Collector] satisfies the engine's collector contract, so it can be handed
// straight to a run:
//
//	collector := metrics.NewCollector()
//	collector.Start()
//	err := e.Run(ctx, 100, collector)
//	stats := collector.Stats(collector.Elapsed())
//
// Latency percentiles come from an HDR histogram tracking 1µs to 60s with three
// significant figures. Body sizes and status codes are tracked exactly.
//
// A sample counts as a success when its status is below 400; [Stats.Non2xx]
// counts every status outside 200-299.
package metrics
