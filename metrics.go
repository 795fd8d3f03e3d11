package invoke

import "time"

// Metrics is a collection of measurements attached to an Outcome.
// The map's keys are metric names; values are typically int or time.Duration.
//
// A Session always records:
//   - [MetricChunks]: the number of Chunk events appended to the output
//   - [MetricUnrecognizedEvents]: the number of Unrecognized events seen
//   - [MetricOutputBytes]: the size of the assembled output in bytes
//   - [MetricElapsed]: the time from submission to resolution
type Metrics map[string]any

const (
	// MetricChunks counts Chunk events appended to the output. The value is an int.
	MetricChunks = "chunks"

	// MetricUnrecognizedEvents counts Unrecognized events seen. The value is an int.
	MetricUnrecognizedEvents = "unrecognized_events"

	// MetricOutputBytes is the size of the assembled output. The value is an int.
	// It is recorded for failed sessions too, even though their Outcome carries no text.
	MetricOutputBytes = "output_bytes"

	// MetricElapsed is the time from submission to resolution. The value is a time.Duration.
	MetricElapsed = "elapsed"
)

// Chunks returns the number of chunks recorded in m.
func Chunks(m Metrics) (int, bool) {
	return GetMetric[int](m, MetricChunks)
}

// Elapsed returns the submission-to-resolution time recorded in m.
func Elapsed(m Metrics) (time.Duration, bool) {
	return GetMetric[time.Duration](m, MetricElapsed)
}

// GetMetric retrieves a metric value of type T from the metrics map.
// The second return value reports whether the metric was present.
//
// Panics if the value in the metrics map cannot be type asserted to T.
//
//	if n, ok := invoke.GetMetric[int](outcome.Metrics, invoke.MetricOutputBytes); ok {
//	    fmt.Printf("received %d bytes\n", n)
//	}
func GetMetric[T any](m Metrics, key string) (T, bool) {
	var metric T
	metricVal, ok := m[key]
	if !ok {
		return metric, false
	}
	metric = metricVal.(T)
	return metric, true
}
