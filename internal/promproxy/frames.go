package promproxy

import (
	"fmt"
	"sort"
	"strings"
)

// Sample is one timestamped value of a series. Timestamps are Unix
// milliseconds.
type Sample struct {
	TimestampMs int64   `json:"timestamp"`
	Value       float64 `json:"value"`
}

// SeriesFrame is one named, labeled time series. Frames are built once per
// query result entry and never mutated afterwards.
type SeriesFrame struct {
	Name    string            `json:"name"`
	Labels  map[string]string `json:"labels,omitempty"`
	Samples []Sample          `json:"samples"`
}

// formatLegend derives a frame name from its label set. With no template the
// labels are rendered as comma-joined key="value" pairs ("value" when there
// are none). With a template every {{label}} or {{ label }} occurrence of a
// known label key is substituted; unknown placeholders stay verbatim.
func formatLegend(labels map[string]string, format string) string {
	if format == "" {
		var parts []string
		for k, v := range labels {
			parts = append(parts, fmt.Sprintf("%s=%q", k, v))
		}
		if len(parts) == 0 {
			return "value"
		}
		sort.Strings(parts)
		return strings.Join(parts, ", ")
	}

	result := format
	for k, v := range labels {
		result = strings.ReplaceAll(result, "{{"+k+"}}", v)
		result = strings.ReplaceAll(result, "{{ "+k+" }}", v)
	}
	return result
}
