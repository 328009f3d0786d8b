package model

import (
	"testing"
	"time"
)

func TestDigestFrequencyWindow(t *testing.T) {
	tests := []struct {
		freq DigestFrequency
		want time.Duration
	}{
		{FrequencyHourly, time.Hour},
		{FrequencyDaily, 24 * time.Hour},
		{FrequencyWeekly, 7 * 24 * time.Hour},
		{FrequencyImmediate, 0},
		{DigestFrequency(""), 0},
	}
	for _, tt := range tests {
		if got := tt.freq.Window(); got != tt.want {
			t.Errorf("Window(%q) = %s, want %s", tt.freq, got, tt.want)
		}
	}
}

func TestEffectiveFrequencyDefaultsToImmediate(t *testing.T) {
	if got := (ChannelConfig{}).EffectiveFrequency(); got != FrequencyImmediate {
		t.Errorf("empty frequency must normalize to immediate, got %q", got)
	}
	cfg := ChannelConfig{Frequency: FrequencyWeekly}
	if got := cfg.EffectiveFrequency(); got != FrequencyWeekly {
		t.Errorf("set frequency must pass through, got %q", got)
	}
}

func TestServerVersionNilSafe(t *testing.T) {
	var s *Server
	if s.Version() != "" {
		t.Error("nil server must report empty version")
	}
	s = &Server{Name: "a"}
	if s.Version() != "" {
		t.Error("missing version detail must report empty version")
	}
	s.VersionDetail = &VersionDetail{Version: "2.0.1"}
	if s.Version() != "2.0.1" {
		t.Errorf("got %q", s.Version())
	}
}
