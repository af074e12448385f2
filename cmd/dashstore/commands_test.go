package main

import (
	"testing"
	"time"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"", time.Time{}, false},
		{"2024-06-01", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), false},
		{"72h", now.Add(-72 * time.Hour), false},
		{"-5h", time.Time{}, true},
		{"yesterday", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := parseSince(tt.in, now)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseSince(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if !got.Equal(tt.want) {
			t.Fatalf("parseSince(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
