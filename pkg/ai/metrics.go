package ai

import "math"

// Add accumulates o into m and recomputes the throughput over the summed
// duration.
func (m *ModelMetrics) Add(o ModelMetrics) {
	m.InputTokens += o.InputTokens
	m.OutputTokens += o.OutputTokens
	m.TotalTokens += o.TotalTokens
	m.DurationMs += o.DurationMs
	m.WallClockMs += o.WallClockMs

	if m.DurationMs > 0 {
		tps := (float64(m.TotalTokens) * 1000.0) / float64(m.DurationMs)
		m.TokenPerSecond = float32(math.Round(tps*100) / 100)
	}
}
