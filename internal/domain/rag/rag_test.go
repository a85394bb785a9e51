package rag

import (
	"encoding/json"
	"testing"
)

func TestMaxSeverity(t *testing.T) {
	levels := []Level{Green, Amber, Red}
	for _, a := range levels {
		for _, b := range levels {
			got := MaxSeverity(a, b)
			if got < a || got < b {
				t.Errorf("MaxSeverity(%s, %s) = %s, below an input", a, b, got)
			}
			if got != a && got != b {
				t.Errorf("MaxSeverity(%s, %s) = %s, not one of the inputs", a, b, got)
			}
			if MaxSeverity(b, a) != got {
				t.Errorf("MaxSeverity not commutative for %s, %s", a, b)
			}
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"green", Green, false},
		{"AMBER", Amber, false},
		{" Red ", Red, false},
		{"yellow", Green, true},
		{"", Green, true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestLevel_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		L Level `json:"l"`
	}{Amber})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"l":"amber"}` {
		t.Errorf("unexpected json %s", b)
	}

	var out struct {
		L Level `json:"l"`
	}
	if err := json.Unmarshal([]byte(`{"l":"red"}`), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.L != Red {
		t.Errorf("expected red, got %s", out.L)
	}
	if err := json.Unmarshal([]byte(`{"l":"purple"}`), &out); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestFitnessFor(t *testing.T) {
	tests := map[Level]Fitness{Green: Fit, Amber: FitWithRestrictions, Red: NotFit}
	for l, want := range tests {
		if got := FitnessFor(l); got != want {
			t.Errorf("FitnessFor(%s) = %s, want %s", l, got, want)
		}
	}
}

func TestReviewDays(t *testing.T) {
	if ReviewDays(Red) != 3 || ReviewDays(Amber) != 7 || ReviewDays(Green) != 30 {
		t.Errorf("unexpected review windows %d/%d/%d", ReviewDays(Red), ReviewDays(Amber), ReviewDays(Green))
	}
}
