package synth

import "encoding/json"

// Segment is one turn of conversational context. Audio is rarely populated;
// the public API surface never transmits context audio.
type Segment struct {
	Text    string
	Speaker int
	Audio   []float64
}

// NormalizeContext converts loosely-typed context records into segments.
// A record converts only when it exposes both a usable text and a usable
// speaker value; anything else is dropped without error. Output order
// matches input order and nothing is deduplicated. The second return value
// reports how many records were dropped.
func NormalizeContext(records []map[string]any) ([]Segment, int) {
	if len(records) == 0 {
		return nil, 0
	}
	segments := make([]Segment, 0, len(records))
	dropped := 0
	for _, rec := range records {
		text, okText := textField(rec)
		speaker, okSpeaker := speakerField(rec)
		if !okText || !okSpeaker {
			dropped++
			continue
		}
		segments = append(segments, Segment{Text: text, Speaker: speaker})
	}
	return segments, dropped
}

func textField(rec map[string]any) (string, bool) {
	v, ok := rec["text"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func speakerField(rec map[string]any) (int, bool) {
	v, ok := rec["speaker"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
