// response.go decodes the Prometheus query API reply envelope.
//
// The result payload is a tagged variant: data.resultType discriminates
// between "vector" and "matrix", and each shape is decoded separately.
// Malformed result entries are skipped rather than failing the whole batch.

package promproxy

import (
	"encoding/json"
	"fmt"
	"strconv"
)

type promResponse struct {
	Status string   `json:"status"`
	Error  string   `json:"error,omitempty"`
	Data   promData `json:"data"`
}

type promData struct {
	ResultType string          `json:"resultType"`
	Result     json.RawMessage `json:"result"`
}

// promSample is the wire form of one sample: a [timestamp, "value"] pair
// with a float timestamp in seconds and a string-encoded value.
type promSample struct {
	Timestamp float64
	Value     string
}

func (s *promSample) UnmarshalJSON(b []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if err := json.Unmarshal(pair[0], &s.Timestamp); err != nil {
		return fmt.Errorf("sample timestamp: %w", err)
	}
	if err := json.Unmarshal(pair[1], &s.Value); err != nil {
		return fmt.Errorf("sample value: %w", err)
	}
	return nil
}

type matrixEntry struct {
	Metric map[string]string `json:"metric"`
	Values []promSample      `json:"values"`
}

type vectorEntry struct {
	Metric map[string]string `json:"metric"`
	Value  promSample        `json:"value"`
}

// toFrames transforms a successful envelope into series frames. Matrix
// entries keep their samples in received order; vector entries become
// single-sample frames. Timestamps are converted to milliseconds.
func toFrames(data promData, legendFormat string) []SeriesFrame {
	var raws []json.RawMessage
	if err := json.Unmarshal(data.Result, &raws); err != nil {
		return nil
	}

	var frames []SeriesFrame
	for _, raw := range raws {
		var frame SeriesFrame
		switch data.ResultType {
		case "matrix":
			var e matrixEntry
			if err := json.Unmarshal(raw, &e); err != nil {
				continue
			}
			frame = SeriesFrame{
				Name:   formatLegend(e.Metric, legendFormat),
				Labels: e.Metric,
			}
			for _, s := range e.Values {
				frame.Samples = append(frame.Samples, toSample(s))
			}
		case "vector":
			var e vectorEntry
			if err := json.Unmarshal(raw, &e); err != nil {
				continue
			}
			frame = SeriesFrame{
				Name:   formatLegend(e.Metric, legendFormat),
				Labels: e.Metric,
			}
			if e.Value.Value != "" {
				frame.Samples = append(frame.Samples, toSample(e.Value))
			}
		default:
			continue
		}
		frames = append(frames, frame)
	}
	return frames
}

func toSample(s promSample) Sample {
	// Values arrive string-encoded; this also handles "NaN", "+Inf", "-Inf".
	v, _ := strconv.ParseFloat(s.Value, 64)
	return Sample{
		TimestampMs: int64(s.Timestamp * 1000),
		Value:       v,
	}
}
