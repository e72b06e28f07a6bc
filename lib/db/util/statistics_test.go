package util

import (
	"math"
	"testing"
)

func TestNewStats(t *testing.T) {
	stats := NewStats([]float64{4, 1, 3, 2})

	if stats.Min != 1 || stats.Max != 4 {
		t.Errorf("Expected min 1 and max 4, got %v and %v", stats.Min, stats.Max)
	}
	if stats.Mean != 2.5 {
		t.Errorf("Expected mean 2.5, got %v", stats.Mean)
	}
	if stats.Median != 2.5 {
		t.Errorf("Expected median 2.5, got %v", stats.Median)
	}
	if math.Abs(stats.StdDeviation-math.Sqrt(1.25)) > 1e-9 {
		t.Errorf("Unexpected standard deviation %v", stats.StdDeviation)
	}
}

func TestNewStatsEmpty(t *testing.T) {
	if stats := NewStats(nil); stats != (Stats{}) {
		t.Errorf("Expected zero stats for empty input, got %+v", stats)
	}
}

func TestNewDistributionStats(t *testing.T) {
	even := NewDistributionStats([]float64{10, 10, 10, 10})
	if even.DistributionQuality != 1 {
		t.Errorf("Expected perfect distribution quality, got %v", even.DistributionQuality)
	}

	skewed := NewDistributionStats([]float64{0, 0, 0, 40})
	if skewed.DistributionQuality >= even.DistributionQuality {
		t.Errorf("Expected skewed distribution to be worse, got %v", skewed.DistributionQuality)
	}
}

func TestHashStringSeeded(t *testing.T) {
	if HashString("key", 1) == HashString("key", 2) {
		t.Errorf("Expected different hashes for different seeds")
	}
	if HashString("key", 1) != HashString("key", 1) {
		t.Errorf("Expected hash to be deterministic")
	}
}
