package decision

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visiona/neurolink/internal/config"
	"github.com/visiona/neurolink/internal/quality"
)

func defaultEngine() *Engine {
	return New(config.Default().Decision)
}

// staticEngine disables adaptive calibration so thresholds stay at ±0.15.
func staticEngine() *Engine {
	cfg := config.Default().Decision
	cfg.AdaptiveThreshold = false
	return New(cfg)
}

func cleanDecide(e *Engine, leftAlpha, rightAlpha float64) Result {
	return e.Decide(leftAlpha, rightAlpha, 100, quality.Clean, quality.Clean)
}

func TestLateralizationIndexBounds(t *testing.T) {
	cases := []struct {
		left, right float64
	}{
		{0, 0}, {1, 0}, {0, 1}, {800, 200}, {1e-15, 1e15}, {5, 5},
	}
	for _, tc := range cases {
		li := LateralizationIndex(tc.left, tc.right)
		assert.LessOrEqual(t, math.Abs(li), 1.0, "LI(%g, %g)", tc.left, tc.right)
	}
}

func TestLateralizationIndexSymmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		l, r := rng.Float64()*1000, rng.Float64()*1000
		assert.InDelta(t, LateralizationIndex(l, r), -LateralizationIndex(r, l), 1e-12)
	}
}

func TestZeroPowerIsNeutral(t *testing.T) {
	e := staticEngine()
	res := cleanDecide(e, 0, 0)
	assert.Equal(t, 0.0, res.LI)
	assert.Equal(t, Neutral, res.Direction)
}

func TestClassificationAgainstStaticThresholds(t *testing.T) {
	e := staticEngine()

	cases := []struct {
		name        string
		left, right float64
		want        Direction
	}{
		{"strong right", 200, 1800, Right},
		{"strong left", 1800, 200, Left},
		{"balanced", 800, 800, Neutral},
		{"slightly right", 800, 900, Neutral}, // LI ≈ 0.06, inside the band
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := cleanDecide(e, tc.left, tc.right)
			assert.Equal(t, tc.want, res.Direction)
		})
	}
}

func TestStrongLateralizationConfidence(t *testing.T) {
	// Right hemisphere at amplitude 60 vs left at 20 gives alpha powers
	// around 1800 vs 200: LI = 0.8.
	e := staticEngine()
	res := cleanDecide(e, 200, 1800)

	require.Equal(t, Right, res.Direction)
	assert.Greater(t, res.LI, 0.6)
	assert.GreaterOrEqual(t, res.Confidence, 0.8)
}

func TestQualityGateProducesUnknown(t *testing.T) {
	e := staticEngine()
	res := e.Decide(200, 1800, 30, quality.Clean, quality.Clean)
	assert.Equal(t, Unknown, res.Direction)
	assert.Zero(t, res.Confidence)
}

func TestStrictGatingOnArtifact(t *testing.T) {
	e := staticEngine()
	res := e.Decide(200, 1800, 95, quality.Saturation, quality.Clean)
	assert.Equal(t, Unknown, res.Direction)
	assert.Zero(t, res.Confidence)
}

func TestGatedWindowsDoNotFeedSmoothing(t *testing.T) {
	e := staticEngine()

	for i := 0; i < 5; i++ {
		cleanDecide(e, 1800, 200) // LEFT
	}
	// A gated burst must not displace the majority.
	for i := 0; i < 10; i++ {
		res := e.Decide(200, 1800, 0, quality.Clean, quality.Clean)
		assert.Equal(t, Unknown, res.Direction)
		assert.Equal(t, Left, res.SmoothedDirection)
	}
}

func TestSmoothingMajority(t *testing.T) {
	e := staticEngine()

	// Same direction pushed smoothing_window times in a row wins outright.
	var res Result
	for i := 0; i < 5; i++ {
		res = cleanDecide(e, 200, 1800)
	}
	assert.Equal(t, Right, res.SmoothedDirection)

	// A single dissent does not flip the majority.
	res = cleanDecide(e, 1800, 200)
	assert.Equal(t, Right, res.SmoothedDirection)
}

func TestSmoothingTieResolvesNeutral(t *testing.T) {
	cfg := config.Default().Decision
	cfg.AdaptiveThreshold = false
	cfg.SmoothingWindow = 4
	e := New(cfg)

	cleanDecide(e, 1800, 200)
	cleanDecide(e, 1800, 200)
	cleanDecide(e, 200, 1800)
	res := cleanDecide(e, 200, 1800)
	assert.Equal(t, Neutral, res.SmoothedDirection)
}

func TestAdaptiveCalibration(t *testing.T) {
	cfg := config.Default().Decision
	e := New(cfg)

	// Feed LI ~ N(0.10, 0.02) through alpha-power pairs until the
	// calibration buffer fills.
	rng := rand.New(rand.NewSource(42))
	var res Result
	for i := 0; i < cfg.CalibrationSamples; i++ {
		li := 0.10 + rng.NormFloat64()*0.02
		// Powers (1−li, 1+li) produce exactly this LI.
		res = cleanDecide(e, 1-li, 1+li)
	}
	require.True(t, res.Calibrated)

	cal := e.Calibration()
	assert.InDelta(t, 0.10-0.02, cal.LeftThreshold, 0.015)
	assert.InDelta(t, 0.10+0.02, cal.RightThreshold, 0.015)

	// The bias point now classifies NEUTRAL; a clear excursion is RIGHT.
	res = cleanDecide(e, 1-0.10, 1+0.10)
	assert.Equal(t, Neutral, res.Direction)
	res = cleanDecide(e, 1-0.25, 1+0.25)
	assert.Equal(t, Right, res.Direction)
}

func TestRecalibrateResets(t *testing.T) {
	cfg := config.Default().Decision
	cfg.CalibrationSamples = 10
	e := New(cfg)

	for i := 0; i < 10; i++ {
		cleanDecide(e, 1-0.3, 1+0.3)
	}
	require.True(t, e.Calibration().Calibrated)

	e.Recalibrate()
	cal := e.Calibration()
	assert.False(t, cal.Calibrated)
	assert.Zero(t, cal.Collected)
	assert.Equal(t, cfg.LILeftThreshold, cal.LeftThreshold)
	assert.Equal(t, cfg.LIRightThreshold, cal.RightThreshold)
}

func TestConfidenceWithinUnitInterval(t *testing.T) {
	e := defaultEngine()
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 500; i++ {
		res := cleanDecide(e, rng.Float64()*1000, rng.Float64()*1000)
		assert.GreaterOrEqual(t, res.Confidence, 0.0)
		assert.LessOrEqual(t, res.Confidence, 1.0)
	}
}

func TestStatsSnapshot(t *testing.T) {
	e := staticEngine()
	cleanDecide(e, 1800, 200)
	cleanDecide(e, 200, 1800)
	cleanDecide(e, 800, 800)

	s := e.Stats()
	assert.Equal(t, 1, s.LeftCount)
	assert.Equal(t, 1, s.RightCount)
	assert.Equal(t, 1, s.NeutralCount)
	assert.LessOrEqual(t, s.LIMin, s.LIMax)
}

func TestNaNInputsProduceUnknown(t *testing.T) {
	e := staticEngine()
	res := e.Decide(math.NaN(), 100, 100, quality.Clean, quality.Clean)
	assert.Equal(t, Unknown, res.Direction)
}
