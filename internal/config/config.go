// Package config holds the typed configuration for the whole pipeline.
//
// The configuration is built once (defaults → optional YAML file → optional
// environment overrides), validated fail-fast, and then passed by value to
// the components that need their slice of it. There is no process-wide
// mutable configuration.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Serial configures the transport to the acquisition device.
type Serial struct {
	// Port is the endpoint name, or "auto" to trigger discovery.
	Port string `yaml:"port"`
	// Baudrate is the device line rate (8-N-1 framing).
	Baudrate int `yaml:"baudrate"`
	// TimeoutSeconds is the per-read timeout.
	TimeoutSeconds float64 `yaml:"timeout_s"`
	// MaxReconnectAttempts bounds the reconnect policy before the source
	// goes terminal.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`
	// ReconnectDelaySeconds is the initial backoff delay; it doubles per
	// attempt for the first five doublings and is capped at 30 s.
	ReconnectDelaySeconds float64 `yaml:"reconnect_delay_s"`
}

// Signal configures sampling, windowing and the filter bank.
type Signal struct {
	SamplingRate  float64 `yaml:"sampling_rate"`
	WindowSeconds float64 `yaml:"window_size_s"`
	WindowOverlap float64 `yaml:"window_overlap"`

	NotchFreq    float64 `yaml:"notch_freq"`
	NotchQ       float64 `yaml:"notch_q"`
	BandpassLow  float64 `yaml:"bandpass_low"`
	BandpassHigh float64 `yaml:"bandpass_high"`
	AlphaLow     float64 `yaml:"alpha_low"`
	AlphaHigh    float64 `yaml:"alpha_high"`
	BetaLow      float64 `yaml:"beta_low"`
	BetaHigh     float64 `yaml:"beta_high"`
	FilterOrder  int     `yaml:"filter_order"`

	ADCMax int `yaml:"adc_max"`
}

// Decision configures the lateralization classifier.
type Decision struct {
	LILeftThreshold    float64 `yaml:"li_left_threshold"`
	LIRightThreshold   float64 `yaml:"li_right_threshold"`
	CalibrationSamples int     `yaml:"calibration_samples"`
	AdaptiveThreshold  bool    `yaml:"adaptive_threshold"`
	AdaptiveK          float64 `yaml:"adaptive_k"`
	SmoothingWindow    int     `yaml:"smoothing_window"`
	QualityGate        float64 `yaml:"quality_gate"`
	StrictGating       bool    `yaml:"strict_gating"`
}

// Artifact configures the quality assessor thresholds.
type Artifact struct {
	SaturationThreshold float64 `yaml:"saturation_threshold"`
	LowSignalVariance   float64 `yaml:"low_signal_variance_threshold"`
	MuscleBetaThreshold float64 `yaml:"muscle_beta_threshold"`
	VarianceMultiplier  float64 `yaml:"variance_multiplier"`
	MedianWindow        int     `yaml:"median_window"`
	LineNoiseRatio      float64 `yaml:"line_noise_threshold"`
	MinSNRdB            float64 `yaml:"min_snr_db"`
}

// Logging configures the CSV record sink.
type Logging struct {
	EnableCSV            bool   `yaml:"enable_csv"`
	Filename             string `yaml:"filename"`
	FlushIntervalRecords int    `yaml:"flush_interval_records"`
}

// Config is the immutable master configuration.
type Config struct {
	Serial   Serial   `yaml:"serial"`
	Signal   Signal   `yaml:"signal"`
	Decision Decision `yaml:"decision"`
	Artifact Artifact `yaml:"artifact"`
	Logging  Logging  `yaml:"logging"`
}

// Default returns the configuration with all documented defaults.
func Default() Config {
	return Config{
		Serial: Serial{
			Port:                  "auto",
			Baudrate:              115200,
			TimeoutSeconds:        1.0,
			MaxReconnectAttempts:  5,
			ReconnectDelaySeconds: 1.0,
		},
		Signal: Signal{
			SamplingRate:  250.0,
			WindowSeconds: 2.0,
			WindowOverlap: 0.5,
			NotchFreq:     50.0,
			NotchQ:        30.0,
			BandpassLow:   1.0,
			BandpassHigh:  40.0,
			AlphaLow:      8.0,
			AlphaHigh:     12.0,
			BetaLow:       13.0,
			BetaHigh:      30.0,
			FilterOrder:   4,
			ADCMax:        1023,
		},
		Decision: Decision{
			LILeftThreshold:    -0.15,
			LIRightThreshold:   0.15,
			CalibrationSamples: 100,
			AdaptiveThreshold:  true,
			AdaptiveK:          1.0,
			SmoothingWindow:    5,
			QualityGate:        40.0,
			StrictGating:       true,
		},
		Artifact: Artifact{
			SaturationThreshold: 0.02,
			LowSignalVariance:   1.0,
			MuscleBetaThreshold: 100.0,
			VarianceMultiplier:  3.0,
			MedianWindow:        30,
			LineNoiseRatio:      0.5,
			MinSNRdB:            10.0,
		},
		Logging: Logging{
			EnableCSV:            true,
			Filename:             "eeg_data_log.csv",
			FlushIntervalRecords: 10,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults untouched.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv applies recognized environment overrides. EEG_LINE_FREQ must be
// 50 or 60 when set.
func (c Config) ApplyEnv() (Config, error) {
	if v := os.Getenv("EEG_LINE_FREQ"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || (f != 50 && f != 60) {
			return c, fmt.Errorf("config: EEG_LINE_FREQ must be 50 or 60, got %q", v)
		}
		c.Signal.NotchFreq = f
	}
	return c, nil
}

// WindowSamples is N = round(fs · window_seconds).
func (c Config) WindowSamples() int {
	return int(c.Signal.SamplingRate*c.Signal.WindowSeconds + 0.5)
}

// HopSamples is H = max(1, round(N · (1 − overlap))).
func (c Config) HopSamples() int {
	h := int(float64(c.WindowSamples())*(1-c.Signal.WindowOverlap) + 0.5)
	if h < 1 {
		h = 1
	}
	return h
}

// Validate fails fast on any configuration the pipeline cannot run with.
func (c Config) Validate() error {
	s := c.Signal
	if s.SamplingRate <= 0 {
		return fmt.Errorf("config: sampling_rate must be positive, got %g", s.SamplingRate)
	}
	if s.WindowSeconds <= 0 {
		return fmt.Errorf("config: window_size_s must be positive, got %g", s.WindowSeconds)
	}
	if s.WindowOverlap < 0 || s.WindowOverlap >= 1 {
		return fmt.Errorf("config: window_overlap must be in [0, 1), got %g", s.WindowOverlap)
	}
	if s.FilterOrder < 1 {
		return fmt.Errorf("config: filter_order must be >= 1, got %d", s.FilterOrder)
	}
	nyquist := s.SamplingRate / 2
	bands := []struct {
		name   string
		lo, hi float64
	}{
		{"bandpass", s.BandpassLow, s.BandpassHigh},
		{"alpha_band", s.AlphaLow, s.AlphaHigh},
		{"beta_band", s.BetaLow, s.BetaHigh},
	}
	for _, b := range bands {
		if b.lo <= 0 || b.hi <= b.lo {
			return fmt.Errorf("config: %s (%g, %g) must satisfy 0 < low < high", b.name, b.lo, b.hi)
		}
		if b.hi >= nyquist {
			return fmt.Errorf("config: %s high cutoff %g Hz must be below Nyquist %g Hz", b.name, b.hi, nyquist)
		}
	}
	if s.NotchFreq <= 0 || s.NotchFreq >= nyquist {
		return fmt.Errorf("config: notch_freq %g Hz must be in (0, Nyquist)", s.NotchFreq)
	}
	if s.NotchQ <= 0 {
		return fmt.Errorf("config: notch_q must be positive, got %g", s.NotchQ)
	}
	if s.ADCMax < 1 {
		return fmt.Errorf("config: adc_max must be >= 1, got %d", s.ADCMax)
	}

	// The narrowest analysis band needs enough cycles inside one window:
	// N >= 4 * order * max(1, fs/alpha_low).
	n := c.WindowSamples()
	lowest := s.AlphaLow
	perCutoff := s.SamplingRate / lowest
	if perCutoff < 1 {
		perCutoff = 1
	}
	minN := 4 * float64(s.FilterOrder) * perCutoff
	if float64(n) < minN {
		return fmt.Errorf(
			"config: window of %d samples is below the filter support requirement %d (order %d, lowest cutoff %g Hz)",
			n, int(minN), s.FilterOrder, lowest,
		)
	}

	d := c.Decision
	if d.LILeftThreshold >= d.LIRightThreshold {
		return fmt.Errorf("config: li_left_threshold %g must be below li_right_threshold %g",
			d.LILeftThreshold, d.LIRightThreshold)
	}
	if d.CalibrationSamples < 1 {
		return fmt.Errorf("config: calibration_samples must be >= 1, got %d", d.CalibrationSamples)
	}
	if d.SmoothingWindow < 1 {
		return fmt.Errorf("config: smoothing_window must be >= 1, got %d", d.SmoothingWindow)
	}
	if d.QualityGate < 0 || d.QualityGate > 100 {
		return fmt.Errorf("config: quality_gate must be in [0, 100], got %g", d.QualityGate)
	}

	if c.Serial.Baudrate <= 0 {
		return fmt.Errorf("config: baudrate must be positive, got %d", c.Serial.Baudrate)
	}
	if c.Serial.MaxReconnectAttempts < 0 {
		return fmt.Errorf("config: max_reconnect_attempts must be >= 0, got %d", c.Serial.MaxReconnectAttempts)
	}
	if c.Logging.FlushIntervalRecords < 1 {
		return fmt.Errorf("config: flush_interval_records must be >= 1, got %d", c.Logging.FlushIntervalRecords)
	}
	return nil
}
