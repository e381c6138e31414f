package sink

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/visiona/neurolink/internal/telemetry"
)

// csvHeader is the fixed column set of the metrics log.
const csvHeader = "timestamp,sample_count,left_alpha_power,right_alpha_power," +
	"lateralization_index,attention_direction,confidence,smoothed_direction," +
	"quality_score,left_snr_db,right_snr_db,left_artifact,right_artifact\n"

// CSV appends window records to a file. A write failure disables the sink
// for the remainder of the run; the pipeline keeps going without it.
type CSV struct {
	w          io.WriteCloser
	flushEvery int
	sinceFlush int
	disabled   bool
	name       string
	syncer     interface{ Sync() error }
}

// NewCSV creates (truncating) the log file and writes the header row.
func NewCSV(path string, flushEvery int) (*CSV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sink: creating %s: %w", path, err)
	}
	c := &CSV{w: f, flushEvery: flushEvery, name: path, syncer: f}
	if _, err := io.WriteString(f, csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("sink: writing header to %s: %w", path, err)
	}
	slog.Info("sink: csv log opened", "path", path, "flush_every", flushEvery)
	return c, nil
}

// WriteRecord appends one row. Terminal records carry no row in this
// schema; they only force a flush.
func (c *CSV) WriteRecord(r Record) error {
	if c.disabled {
		return nil
	}
	if r.Terminal {
		return c.Flush()
	}

	row := fmt.Sprintf("%s,%d,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s\n",
		epochSeconds(r),
		r.SampleCount,
		g6(r.LeftAlphaPower),
		g6(r.RightAlphaPower),
		g6(r.LI),
		r.Direction.String(),
		g6(r.Confidence),
		r.SmoothedDirection.String(),
		g6(r.QualityScore),
		g6(r.LeftSNRdB),
		g6(r.RightSNRdB),
		r.LeftArtifact.String(),
		r.RightArtifact.String(),
	)

	if _, err := io.WriteString(c.w, row); err != nil {
		c.disable(err)
		return err
	}
	telemetry.RecordsWritten.WithLabelValues("csv").Inc()

	c.sinceFlush++
	if c.sinceFlush >= c.flushEvery {
		return c.Flush()
	}
	return nil
}

// Flush pushes buffered rows to stable storage.
func (c *CSV) Flush() error {
	if c.disabled {
		return nil
	}
	c.sinceFlush = 0
	if c.syncer == nil {
		return nil
	}
	if err := c.syncer.Sync(); err != nil {
		c.disable(err)
		return err
	}
	return nil
}

// Close flushes and closes the file.
func (c *CSV) Close() error {
	if c.w == nil {
		return nil
	}
	_ = c.Flush() // a sync failure is logged and disables the sink
	err := c.w.Close()
	c.w = nil
	c.disabled = true
	if err != nil {
		return fmt.Errorf("sink: closing %s: %w", c.name, err)
	}
	slog.Info("sink: csv log closed", "path", c.name)
	return nil
}

func (c *CSV) disable(err error) {
	c.disabled = true
	telemetry.SinkErrors.WithLabelValues("csv").Inc()
	slog.Error("sink: csv disabled for remainder of run", "path", c.name, "error", err)
}

// epochSeconds renders the wall-clock timestamp as fractional seconds
// since the epoch with microsecond precision.
func epochSeconds(r Record) string {
	secs := float64(r.Timestamp.Unix()) + float64(r.Timestamp.Nanosecond())/1e9
	return strconv.FormatFloat(secs, 'f', 6, 64)
}

// g6 renders a fractional numeric with 6 significant digits.
func g6(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
