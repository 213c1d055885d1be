package client

import (
	"math"
	"reflect"
	"testing"
)

func TestTrialPayload(t *testing.T) {
	row := map[string]any{
		"trial":      3.0,
		"Acceptance": 1,
		"reward":     math.NaN(),
		"effort":     float32(0.5),
		"condition":  "high",
	}

	tests := []struct {
		name string
		opts RowOptions
		want map[string]any
	}{
		{
			name: "all columns",
			want: map[string]any{"trial": 3, "Acceptance": int64(1), "reward": nil, "effort": 0.5, "condition": "high"},
		},
		{
			name: "drop nulls",
			opts: RowOptions{DropNulls: true},
			want: map[string]any{"trial": 3, "Acceptance": int64(1), "effort": 0.5, "condition": "high"},
		},
		{
			name: "include",
			opts: RowOptions{Include: []string{"trial", "condition"}},
			want: map[string]any{"trial": 3, "condition": "high"},
		},
		{
			name: "exclude",
			opts: RowOptions{Exclude: []string{"reward", "effort", "condition"}},
			want: map[string]any{"trial": 3, "Acceptance": int64(1)},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := TrialPayload(row, tc.opts)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("TrialPayload() = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestTrialPayloadTrialCoercion(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{int64(7), 7},
		{"12", 12},
		{"4.0", 4},
		{2.5, 2.5},
		{"first", "first"},
		{nil, nil},
	}

	for _, tc := range tests {
		got := TrialPayload(map[string]any{"trial": tc.in}, RowOptions{})["trial"]
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("trial %#v -> %#v, want %#v", tc.in, got, tc.want)
		}
	}
}
