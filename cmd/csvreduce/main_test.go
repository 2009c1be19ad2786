package main

import (
	"testing"
	"time"

	"github.com/arkilian/csvreduce/internal/config"
)

func TestSpeedup(t *testing.T) {
	if got := speedup(4*time.Second, 2*time.Second); got != 2 {
		t.Errorf("speedup = %v, want 2", got)
	}
	if got := speedup(time.Second, 0); got != 0 {
		t.Errorf("speedup with zero parallel time = %v, want 0", got)
	}
}

func TestSamplesFor(t *testing.T) {
	if len(samplesFor(config.DatasetPopulation)) != 5 {
		t.Error("expected five population samples")
	}
	if len(samplesFor(config.DatasetAirQuality)) != 4 {
		t.Error("expected four air quality samples")
	}
}

func TestPreview(t *testing.T) {
	if got := preview([]string{"a", "b"}, 5); got != "a, b" {
		t.Errorf("preview = %q", got)
	}
	if got := preview([]string{"a", "b", "c"}, 2); got != "a, b, ..." {
		t.Errorf("preview = %q", got)
	}
}

func TestSortedKeys(t *testing.T) {
	got := sortedKeys(map[string]interface{}{"b": 1, "a": 2})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("sortedKeys = %v", got)
	}
}
