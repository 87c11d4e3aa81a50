package ai

import (
	"strings"
	"testing"
)

func TestUnmarshalFlexible_DiscoveredEdges(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"plain", `{"items":[{"source_id":"T1","target_id":"P1","type":"related to"}]}`},
		{"fenced", "```json\n{\"items\":[{\"source_id\":\"T1\",\"target_id\":\"P1\",\"type\":\"related to\"}]}\n```"},
		{"fence without language", "```\n{\"items\":[{\"source_id\":\"T1\",\"target_id\":\"P1\",\"type\":\"related to\"}]}```"},
		{"stringified", `"{\"items\":[{\"source_id\":\"T1\",\"target_id\":\"P1\",\"type\":\"related to\"}]}"`},
		{"unquoted keys", `{items: [{source_id: 'T1', target_id: 'P1', type: 'related to'}]}`},
		{"trailing comma", `{"items":[{"source_id":"T1","target_id":"P1","type":"related to",},]}`},
		{"missing brackets", `{"items":[{"source_id":"T1","target_id":"P1","type":"related to"`},
		{"duplicate leading brace", "{\n{\"items\":[{\"source_id\":\"T1\",\"target_id\":\"P1\",\"type\":\"related to\"}]}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got discoveredEdges
			if err := UnmarshalFlexible(tt.input, &got); err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}
			if len(got.Items) != 1 {
				t.Fatalf("expected 1 edge, got %d", len(got.Items))
			}
			e := got.Items[0]
			if e.SourceID != "T1" || e.TargetID != "P1" || e.Type != "related to" {
				t.Fatalf("expected T1 -related to-> P1, got %+v", e)
			}
		})
	}
}

func TestUnmarshalFlexible_Unrecoverable(t *testing.T) {
	var got discoveredEdges
	err := UnmarshalFlexible("no connections found", &got)
	if err == nil {
		t.Fatal("expected error for prose answer")
	}
}

func TestUnmarshalFlexible_ClipsLongInput(t *testing.T) {
	var got discoveredEdges
	err := UnmarshalFlexible(strings.Repeat("x", 1000), &got)
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), strings.Repeat("x", maxErrorInput+1)) {
		t.Fatalf("expected clipped input in error, got %d bytes", len(err.Error()))
	}
}

func TestCleanModelOutput(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"```json\n{\"items\":[]}\n```", `{"items":[]}`},
		{"  {\"items\":[]}  ", `{"items":[]}`},
		{"{ {\"items\":[]}", `{"items":[]}`},
		{"```{\"items\":[]}```", `{"items":[]}`},
	}
	for _, tt := range tests {
		if got := cleanModelOutput(tt.in); got != tt.want {
			t.Fatalf("expected %q, got %q", tt.want, got)
		}
	}
}
