package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// RateStats describes the effective sample rate measured during warm-up.
type RateStats struct {
	SamplesReceived int
	Duration        time.Duration
	RateMean        float64
	RateStdDev      float64
	RateMin         float64
	RateMax         float64
	// IsStable is true when the measured rate sits within the jitter
	// tolerance of the expected rate and its spread is small.
	IsStable bool
}

// jitterTolerance is the fractional deviation from the nominal rate the
// receiver accepts.
const jitterTolerance = 0.05

// Warmup consumes samples for the given duration and measures the
// effective sample rate against the expected one. Call after Connect and
// before starting the processing loop; an unstable stream usually means a
// wrong baud rate or a struggling device.
func (s *Source) Warmup(ctx context.Context, duration time.Duration, expectedRate float64) (*RateStats, error) {
	if s.state != Connected {
		return nil, fmt.Errorf("acquire: warmup requires a connected source")
	}

	slog.Info("acquire: warmup started", "duration", duration, "expected_rate", expectedRate)

	deadline := time.Now().Add(duration)
	var times []time.Time
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		_, outcome := s.ReadSample(ctx)
		switch outcome {
		case OutcomeSample:
			times = append(times, time.Now())
		case OutcomeDisconnected:
			return nil, fmt.Errorf("acquire: source disconnected during warmup")
		}
	}

	stats := CalculateRateStats(times, duration, expectedRate)
	if stats == nil {
		return nil, fmt.Errorf("acquire: not enough samples during warmup (got %d, need at least 2)", len(times))
	}

	slog.Info("acquire: warmup complete",
		"samples", stats.SamplesReceived,
		"rate_mean", fmt.Sprintf("%.1f", stats.RateMean),
		"rate_stddev", fmt.Sprintf("%.2f", stats.RateStdDev),
		"rate_range", fmt.Sprintf("%.1f-%.1f", stats.RateMin, stats.RateMax),
		"stable", stats.IsStable,
	)
	return stats, nil
}

// CalculateRateStats derives rate statistics from per-sample arrival times.
// Returns nil when fewer than two samples arrived.
func CalculateRateStats(times []time.Time, elapsed time.Duration, expectedRate float64) *RateStats {
	if len(times) < 2 {
		return nil
	}

	stats := &RateStats{
		SamplesReceived: len(times),
		Duration:        elapsed,
	}

	// Instantaneous rate per inter-arrival interval.
	rates := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		dt := times[i].Sub(times[i-1]).Seconds()
		if dt <= 0 {
			continue
		}
		rates = append(rates, 1/dt)
	}
	if len(rates) == 0 {
		return nil
	}

	var sum float64
	stats.RateMin, stats.RateMax = rates[0], rates[0]
	for _, r := range rates {
		sum += r
		stats.RateMin = math.Min(stats.RateMin, r)
		stats.RateMax = math.Max(stats.RateMax, r)
	}
	stats.RateMean = sum / float64(len(rates))

	var sq float64
	for _, r := range rates {
		d := r - stats.RateMean
		sq += d * d
	}
	stats.RateStdDev = math.Sqrt(sq / float64(len(rates)))

	if expectedRate > 0 {
		offNominal := math.Abs(stats.RateMean-expectedRate) / expectedRate
		stats.IsStable = offNominal <= jitterTolerance &&
			stats.RateStdDev <= 0.15*stats.RateMean
	}
	return stats
}
