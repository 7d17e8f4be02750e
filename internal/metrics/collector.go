package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/httpsample/internal/sample"
)

// Collector aggregates samples. It is safe to read Stats while samples arrive.
type Collector struct {
	mu          sync.Mutex
	hist        *hdrhistogram.Histogram
	successes   int64
	failures    int64
	non2xx      int64
	minLatency  time.Duration
	maxLatency  time.Duration
	sumLatency  time.Duration
	totalBytes  uint64
	minBytes    uint64
	maxBytes    uint64
	statusCodes map[int]int64
	start       time.Time
}

// Stats represents aggregated metrics.
type Stats struct {
	Total          int64         `json:"total" yaml:"total"`
	Successes      int64         `json:"successes" yaml:"successes"`
	Failures       int64         `json:"failures" yaml:"failures"`
	Non2xx         int64         `json:"non_2xx" yaml:"non_2xx"`
	MinLatency     time.Duration `json:"-" yaml:"-"`
	MaxLatency     time.Duration `json:"-" yaml:"-"`
	MeanLatency    time.Duration `json:"-" yaml:"-"`
	P50Latency     time.Duration `json:"-" yaml:"-"`
	P90Latency     time.Duration `json:"-" yaml:"-"`
	P99Latency     time.Duration `json:"-" yaml:"-"`
	Duration       time.Duration `json:"-" yaml:"-"`
	RequestsPerSec float64       `json:"requests_per_sec" yaml:"requests_per_sec"`

	TotalBytes uint64  `json:"total_bytes" yaml:"total_bytes"`
	MinBytes   uint64  `json:"min_bytes" yaml:"min_bytes"`
	MaxBytes   uint64  `json:"max_bytes" yaml:"max_bytes"`
	MeanBytes  float64 `json:"mean_bytes" yaml:"mean_bytes"`

	// Report-friendly millisecond fields.
	MinLatencyMs  float64 `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs float64 `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs  float64 `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	DurationMs    float64 `json:"duration_ms" yaml:"duration_ms"`

	StatusCodes   map[string]int `json:"status_codes,omitempty" yaml:"status_codes,omitempty"`
	StatusClasses map[string]int `json:"status_classes,omitempty" yaml:"status_classes,omitempty"`
}

// NewCollector returns an empty collector whose clock starts now.
func NewCollector() *Collector {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000_000, 3)
	return &Collector{
		hist:        h,
		statusCodes: make(map[int]int64),
		start:       time.Now(),
	}
}

// Start resets the reference time used by Elapsed.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now()
}

// Elapsed returns the time since the collector was created or last started.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.start)
}

// Collect records one sample.
func (c *Collector) Collect(s sample.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	latency := s.Duration()
	if latency > 0 {
		us := latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}
	c.sumLatency += latency

	first := c.successes+c.failures == 0
	if first || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}

	n := s.Length().Bytes()
	c.totalBytes += n
	if first || n < c.minBytes {
		c.minBytes = n
	}
	if n > c.maxBytes {
		c.maxBytes = n
	}

	status := int(s.Status())
	c.statusCodes[status]++
	if status >= 400 {
		c.failures++
	} else {
		c.successes++
	}
	if status < 200 || status > 299 {
		c.non2xx++
	}
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures
	stats := Stats{
		Total:      total,
		Successes:  c.successes,
		Failures:   c.failures,
		Non2xx:     c.non2xx,
		MinLatency: c.minLatency,
		MaxLatency: c.maxLatency,
		TotalBytes: c.totalBytes,
		MinBytes:   c.minBytes,
		MaxBytes:   c.maxBytes,
	}

	if total > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / total)
		stats.MeanBytes = float64(c.totalBytes) / float64(total)
	}

	if c.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.MinLatencyMs = toMillis(stats.MinLatency)
	stats.MaxLatencyMs = toMillis(stats.MaxLatency)
	stats.MeanLatencyMs = toMillis(stats.MeanLatency)
	stats.P50LatencyMs = toMillis(stats.P50Latency)
	stats.P90LatencyMs = toMillis(stats.P90Latency)
	stats.P99LatencyMs = toMillis(stats.P99Latency)

	stats.Duration = elapsed
	stats.DurationMs = toMillis(elapsed)
	if elapsed > 0 && total > 0 {
		stats.RequestsPerSec = float64(total) / elapsed.Seconds()
	}

	if len(c.statusCodes) > 0 {
		stats.StatusCodes = make(map[string]int, len(c.statusCodes))
		stats.StatusClasses = make(map[string]int)
		for code, count := range c.statusCodes {
			stats.StatusCodes[strconv.Itoa(code)] += int(count)
			stats.StatusClasses[StatusClass(code)] += int(count)
		}
	}

	return stats
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
