package ratelimit

import (
	"testing"
	"time"
)

func TestDayKeyUsesUTCCalendarDate(t *testing.T) {
	beforeMidnight := time.Date(2025, time.January, 5, 23, 59, 59, 999000000, time.UTC)
	afterMidnight := beforeMidnight.Add(time.Millisecond)

	if key := DayKey(beforeMidnight); key != "2025-01-05" {
		t.Fatalf("unexpected day key %q", key)
	}
	if key := DayKey(afterMidnight); key != "2025-01-06" {
		t.Fatalf("expected the next bucket one millisecond later, got %q", key)
	}
}

func TestDayKeyNormalizesZones(t *testing.T) {
	zone := time.FixedZone("UTC+5", 5*60*60)
	local := time.Date(2025, time.January, 6, 2, 0, 0, 0, zone)

	if key := DayKey(local); key != "2025-01-05" {
		t.Fatalf("expected UTC bucketing, got %q", key)
	}
}

func TestPositionKeyCollapsesCaseAndWhitespace(t *testing.T) {
	tests := []struct {
		name     string
		category string
		detail   string
		expected string
	}{
		{name: "plain", category: "engineering", detail: "Backend Developer", expected: "engineering:backend developer"},
		{name: "padded", category: "engineering", detail: "  backend developer ", expected: "engineering:backend developer"},
		{name: "empty-detail", category: "other", detail: "", expected: "other:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if key := PositionKey(tt.category, tt.detail); key != tt.expected {
				t.Fatalf("unexpected position key %q", key)
			}
		})
	}
}

func TestPairLockKeyIsStablePerPair(t *testing.T) {
	first := pairLockKey("hash-a", "company-1")
	if second := pairLockKey("hash-a", "company-1"); second != first {
		t.Fatalf("lock key must be deterministic")
	}
	if other := pairLockKey("hash-a", "company-2"); other == first {
		t.Fatalf("different pairs must map to different lock keys")
	}
}
