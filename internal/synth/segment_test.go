package synth

import (
	"encoding/json"
	"testing"
)

func TestNormalizeContextKeepsValidRecordsInOrder(t *testing.T) {
	records := []map[string]any{
		{"text": "a", "speaker": 0},
		{"foo": "bar"},
		{"text": "b", "speaker": 1},
	}
	segments, dropped := NormalizeContext(records)
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if dropped != 1 {
		t.Fatalf("expected 1 dropped record, got %d", dropped)
	}
	if segments[0].Text != "a" || segments[0].Speaker != 0 {
		t.Fatalf("unexpected first segment: %+v", segments[0])
	}
	if segments[1].Text != "b" || segments[1].Speaker != 1 {
		t.Fatalf("unexpected second segment: %+v", segments[1])
	}
}

func TestNormalizeContextDropsPartialRecords(t *testing.T) {
	cases := []struct {
		name   string
		record map[string]any
		keep   bool
	}{
		{"both fields", map[string]any{"text": "hi", "speaker": 2}, true},
		{"text only", map[string]any{"text": "hi"}, false},
		{"speaker only", map[string]any{"speaker": 1}, false},
		{"speaker as json number", map[string]any{"text": "hi", "speaker": json.Number("3")}, true},
		{"speaker as float", map[string]any{"text": "hi", "speaker": float64(4)}, true},
		{"speaker wrong type", map[string]any{"text": "hi", "speaker": "zero"}, false},
		{"text wrong type", map[string]any{"text": 42, "speaker": 0}, false},
		{"empty text still a value", map[string]any{"text": "", "speaker": 0}, true},
		{"extra fields ignored", map[string]any{"text": "hi", "speaker": 0, "mood": "calm"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			segments, dropped := NormalizeContext([]map[string]any{tc.record})
			if tc.keep && (len(segments) != 1 || dropped != 0) {
				t.Fatalf("expected record kept, got segments=%d dropped=%d", len(segments), dropped)
			}
			if !tc.keep && (len(segments) != 0 || dropped != 1) {
				t.Fatalf("expected record dropped, got segments=%d dropped=%d", len(segments), dropped)
			}
		})
	}
}

func TestNormalizeContextNilAndEmpty(t *testing.T) {
	if segments, dropped := NormalizeContext(nil); segments != nil || dropped != 0 {
		t.Fatalf("nil input should normalize to nothing, got %v (%d dropped)", segments, dropped)
	}
	if segments, dropped := NormalizeContext([]map[string]any{}); len(segments) != 0 || dropped != 0 {
		t.Fatalf("empty input should normalize to nothing, got %v (%d dropped)", segments, dropped)
	}
}
