// Package timing measures wall-clock time around arbitrary operations.
package timing

import "time"

// Measure runs op and returns its result together with the elapsed time.
func Measure[T any](op func() T) (T, time.Duration) {
	start := time.Now()
	result := op()
	return result, time.Since(start)
}
