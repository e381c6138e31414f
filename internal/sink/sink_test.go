package sink

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visiona/neurolink/internal/decision"
	"github.com/visiona/neurolink/internal/quality"
)

func sampleRecord() Record {
	return Record{
		Timestamp:         time.Unix(1700000000, 123456000),
		WindowIndex:       7,
		SampleCount:       2250,
		LeftAlphaPower:    812.345678,
		RightAlphaPower:   798.1,
		LI:                -0.00893217,
		Direction:         decision.Neutral,
		Confidence:        0.912345,
		SmoothedDirection: decision.Neutral,
		QualityScore:      96.5,
		LeftSNRdB:         41.25,
		RightSNRdB:        39.75,
		LeftArtifact:      quality.Clean,
		RightArtifact:     quality.Clean,
	}
}

func TestCSVHeaderAndRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	c, err := NewCSV(path, 1)
	require.NoError(t, err)
	require.NoError(t, c.WriteRecord(sampleRecord()))
	require.NoError(t, c.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)

	assert.Equal(t,
		"timestamp,sample_count,left_alpha_power,right_alpha_power,"+
			"lateralization_index,attention_direction,confidence,smoothed_direction,"+
			"quality_score,left_snr_db,right_snr_db,left_artifact,right_artifact",
		lines[0])

	fields := strings.Split(lines[1], ",")
	require.Len(t, fields, 13)
	assert.Equal(t, "1700000000.123456", fields[0])
	assert.Equal(t, "2250", fields[1])
	assert.Equal(t, "812.346", fields[2], "fractional numerics use 6 significant digits")
	assert.Equal(t, "NEUTRAL", fields[5])
	assert.Equal(t, "-0.00893217", fields[4])
	assert.Equal(t, "CLEAN", fields[11])
	assert.Equal(t, "CLEAN", fields[12])
}

func TestCSVUppercaseEnumerations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	c, err := NewCSV(path, 1)
	require.NoError(t, err)

	r := sampleRecord()
	r.Direction = decision.Unknown
	r.SmoothedDirection = decision.Left
	r.LeftArtifact = quality.Saturation
	r.RightArtifact = quality.MuscleArtifact
	require.NoError(t, c.WriteRecord(r))
	require.NoError(t, c.Close())

	raw, _ := os.ReadFile(path)
	assert.Contains(t, string(raw), "UNKNOWN")
	assert.Contains(t, string(raw), "LEFT")
	assert.Contains(t, string(raw), "SATURATION")
	assert.Contains(t, string(raw), "MUSCLE_ARTIFACT")
}

func TestCSVTerminalRecordWritesNoRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	c, err := NewCSV(path, 10)
	require.NoError(t, err)
	require.NoError(t, c.WriteRecord(Record{Terminal: true, Reason: "source disconnected"}))
	require.NoError(t, c.Close())

	raw, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(t, lines, 1, "terminal records only flush, the schema has no row for them")
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	r := sampleRecord()
	r.SmoothedDirection = decision.Right
	require.NoError(t, c.WriteRecord(r))
	assert.Contains(t, buf.String(), "RIGHT")
	assert.Contains(t, buf.String(), "->")
}

func TestConsoleSuppressesUnknown(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	r := sampleRecord()
	r.SmoothedDirection = decision.Unknown
	require.NoError(t, c.WriteRecord(r))
	assert.Empty(t, buf.String())
}

func TestConsoleTerminal(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)
	require.NoError(t, c.WriteRecord(Record{Terminal: true, Reason: "duration elapsed"}))
	assert.Contains(t, buf.String(), "duration elapsed")
}

// failSink always errors, to prove Multi isolates failures.
type failSink struct{ calls int }

func (f *failSink) WriteRecord(Record) error { f.calls++; return errors.New("boom") }
func (f *failSink) Flush() error             { return errors.New("boom") }
func (f *failSink) Close() error             { return errors.New("boom") }

// okSink records successes.
type okSink struct{ records int }

func (o *okSink) WriteRecord(Record) error { o.records++; return nil }
func (o *okSink) Flush() error             { return nil }
func (o *okSink) Close() error             { return nil }

func TestMultiIsolatesFailures(t *testing.T) {
	bad := &failSink{}
	good := &okSink{}
	m := NewMulti(bad, good, nil)

	require.NoError(t, m.WriteRecord(sampleRecord()))
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, 1, good.records, "a failing sink must not starve the others")

	require.NoError(t, m.Flush())
	require.NoError(t, m.Close())
}
