package service

import (
	"testing"

	"codepractice/internal/evaluator/model"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		mode     model.CompareMode
		actual   string
		expected string
		want     bool
	}{
		{name: "exact trimmed", mode: model.CompareExact, actual: " [0,1]\n", expected: "[0,1]", want: true},
		{name: "exact spacing differs", mode: model.CompareExact, actual: "[0,1]", expected: "[0, 1]", want: false},
		{name: "default mode is exact", mode: "", actual: "[0,1]", expected: "[0, 1]", want: false},
		{name: "json spacing", mode: model.CompareJSON, actual: "[0,1]", expected: "[0, 1]", want: true},
		{name: "json key order", mode: model.CompareJSON, actual: `{"b":2,"a":1}`, expected: `{"a":1,"b":2}`, want: true},
		{name: "json numbers", mode: model.CompareJSON, actual: "1.0", expected: "1", want: true},
		{name: "json mismatch", mode: model.CompareJSON, actual: "[1,0]", expected: "[0,1]", want: false},
		{name: "json falls back to exact", mode: model.CompareJSON, actual: "hello world", expected: " hello world ", want: true},
		{name: "json vs text", mode: model.CompareJSON, actual: "1", expected: "one", want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Compare(tc.mode, tc.actual, tc.expected); got != tc.want {
				t.Fatalf("Compare(%q, %q) = %v, want %v", tc.actual, tc.expected, got, tc.want)
			}
		})
	}
}
