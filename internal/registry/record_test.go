package registry

import (
	"testing"
	"time"
)

func TestUptimeAt(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		elapsed time.Duration
		want    string
	}{
		{0, "0s"},
		{42 * time.Second, "42s"},
		{59*time.Second + 900*time.Millisecond, "59s"},
		{60 * time.Second, "1m"},
		{17*time.Minute + 30*time.Second, "17m"},
		{time.Hour, "1h 0m"},
		{3*time.Hour + 5*time.Minute, "3h 5m"},
		{23*time.Hour + 59*time.Minute, "23h 59m"},
		{24 * time.Hour, "1d 0h"},
		{50 * time.Hour, "2d 2h"},
		{-5 * time.Second, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := UptimeAt(start, start.Add(tt.elapsed)); got != tt.want {
				t.Errorf("UptimeAt(+%v) = %q, want %q", tt.elapsed, got, tt.want)
			}
		})
	}
}

func TestFormatUptime_Recent(t *testing.T) {
	got := FormatUptime(time.Now().Add(-3 * time.Second))
	if got != "3s" && got != "4s" {
		t.Errorf("FormatUptime(3s ago) = %q", got)
	}
}

func TestFilter(t *testing.T) {
	records := []Record{
		{Port: 9867, Label: "ci-1"},
		{Port: 9869, Label: "ci-2"},
		{Port: 9871, Label: "dev"},
		{Port: 9873, Label: ""},
	}

	tests := []struct {
		pattern string
		want    []int
	}{
		{"ci-*", []int{9867, 9869}},
		{"dev", []int{9871}},
		{"*", []int{9867, 9869, 9871, 9873}},
		{"ci-?", []int{9867, 9869}},
		{"nothing", nil},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, err := Filter(records, tt.pattern)
			if err != nil {
				t.Fatalf("Filter() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Filter(%q) = %+v, want ports %v", tt.pattern, got, tt.want)
			}
			for i, rec := range got {
				if rec.Port != tt.want[i] {
					t.Errorf("Filter(%q)[%d].Port = %d, want %d", tt.pattern, i, rec.Port, tt.want[i])
				}
			}
		})
	}
}

func TestFilter_InvalidPattern(t *testing.T) {
	if _, err := Filter(nil, "[unclosed"); err == nil {
		t.Error("Filter() with malformed glob should fail")
	}
}
