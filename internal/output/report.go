package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/torosent/httpsample/internal/metrics"
	"github.com/torosent/httpsample/internal/threshold"
)

// Format selects the summary encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Report is the machine-readable run summary.
type Report struct {
	RunID      string             `json:"run_id" yaml:"run_id"`
	URLs       []string           `json:"urls" yaml:"urls"`
	Stats      metrics.Stats      `json:"stats" yaml:"stats"`
	Thresholds []ThresholdOutcome `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// ThresholdOutcome is the serialized form of an evaluated threshold.
type ThresholdOutcome struct {
	Threshold string  `json:"threshold" yaml:"threshold"`
	Actual    float64 `json:"actual" yaml:"actual"`
	Pass      bool    `json:"pass" yaml:"pass"`
	Message   string  `json:"message,omitempty" yaml:"message,omitempty"`
}

// NewReport bundles the pieces of a finished run.
func NewReport(runID string, urls []string, stats metrics.Stats, results []threshold.Result) Report {
	r := Report{RunID: runID, URLs: urls, Stats: stats}
	for _, res := range results {
		r.Thresholds = append(r.Thresholds, ThresholdOutcome{
			Threshold: res.Threshold.Raw,
			Actual:    res.Actual,
			Pass:      res.Pass,
			Message:   res.Message,
		})
	}
	return r
}

// Write emits the report in the requested format.
func Write(w io.Writer, format Format, r Report) error {
	switch format {
	case FormatJSON:
		return PrintJSONReport(w, r)
	case FormatYAML:
		return PrintYAMLReport(w, r)
	case FormatText, "":
		PrintReport(w, r)
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r Report) {
	stats := r.Stats
	fmt.Fprintln(w, "\n--- Sampling Results ---")
	if r.RunID != "" {
		fmt.Fprintf(w, "Run:               %s\n", r.RunID)
	}
	fmt.Fprintf(w, "Samples:           %d\n", stats.Total)
	fmt.Fprintf(w, "Successful:        %d\n", stats.Successes)
	fmt.Fprintf(w, "Failed (>=400):    %d\n", stats.Failures)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration)
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", stats.RequestsPerSec)
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)
	fmt.Fprintln(w, "\nBody Size:")
	fmt.Fprintf(w, "  Total:           %d bytes\n", stats.TotalBytes)
	fmt.Fprintf(w, "  Min:             %d bytes\n", stats.MinBytes)
	fmt.Fprintf(w, "  Max:             %d bytes\n", stats.MaxBytes)
	fmt.Fprintf(w, "  Mean:            %.1f bytes\n", stats.MeanBytes)

	if len(stats.StatusCodes) > 0 {
		fmt.Fprintln(w, "\nStatus Codes:")
		for _, row := range metrics.FlattenStatusBuckets(stats.StatusCodes) {
			fmt.Fprintf(w, "  %s: %d\n", row.Code, row.Count)
		}
		classes := make([]string, 0, len(stats.StatusClasses))
		for class := range stats.StatusClasses {
			classes = append(classes, class)
		}
		sort.Strings(classes)
		fmt.Fprint(w, "  Classes:")
		for _, class := range classes {
			fmt.Fprintf(w, " %s=%d", class, stats.StatusClasses[class])
		}
		fmt.Fprintln(w)
	}

	if len(r.Thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, t := range r.Thresholds {
			fmt.Fprintf(w, "  %s\n", t.Message)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}
