package model

import (
	"testing"
	"time"
)

func TestNormalizeAnalyticKey(t *testing.T) {
	t.Helper()

	tests := map[string]string{
		"faceRecognized":    "facerecognized",
		"Face Recognized":   "facerecognized",
		"face_recognized":   "facerecognized",
		"  LINE_CROSSING  ": "linecrossing",
		"":                  "",
	}
	for raw, want := range tests {
		if got := NormalizeAnalyticKey(raw); got != want {
			t.Fatalf("NormalizeAnalyticKey(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestDeviceEventTimestampPrefersOccurredAt(t *testing.T) {
	t.Helper()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	occurred := created.Add(-time.Minute)

	event := DeviceEvent{CreatedAt: created}
	if !event.Timestamp().Equal(created) {
		t.Fatalf("Timestamp() = %v, want created_at %v", event.Timestamp(), created)
	}
	event.OccurredAt = &occurred
	if !event.Timestamp().Equal(occurred) {
		t.Fatalf("Timestamp() = %v, want occurred_at %v", event.Timestamp(), occurred)
	}
}

func TestPresenceThresholdsNormalize(t *testing.T) {
	t.Helper()

	got := PresenceThresholds{OnlineWindow: time.Hour, OfflineThreshold: time.Minute}.Normalize()
	if got.OfflineThreshold != time.Hour {
		t.Fatalf("OfflineThreshold = %v, want clamped to online window", got.OfflineThreshold)
	}
	got = PresenceThresholds{}.Normalize()
	if got != DefaultPresenceThresholds() {
		t.Fatalf("Normalize() = %+v, want defaults", got)
	}
}
