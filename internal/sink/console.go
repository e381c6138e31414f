package sink

import (
	"fmt"
	"io"
	"os"

	"github.com/visiona/neurolink/internal/decision"
)

// Console renders records as human-readable lines, suppressing windows
// whose smoothed direction is still UNKNOWN.
type Console struct {
	w io.Writer
}

// NewConsole writes to stdout.
func NewConsole() *Console { return &Console{w: os.Stdout} }

// NewConsoleWriter writes to the given writer (used by tests).
func NewConsoleWriter(w io.Writer) *Console { return &Console{w: w} }

func glyph(d decision.Direction) string {
	switch d {
	case decision.Left:
		return "<-"
	case decision.Right:
		return "->"
	case decision.Neutral:
		return "--"
	default:
		return "??"
	}
}

// WriteRecord prints one line per classified window.
func (c *Console) WriteRecord(r Record) error {
	if r.Terminal {
		fmt.Fprintf(c.w, "run finished: %s\n", r.Reason)
		return nil
	}
	if r.SmoothedDirection == decision.Unknown {
		return nil
	}
	_, err := fmt.Fprintf(c.w,
		"attention %s %-7s | li %+0.3f | conf %.2f | quality %5.1f | alpha L %.2f R %.2f\n",
		glyph(r.SmoothedDirection),
		r.SmoothedDirection.String(),
		r.LI,
		r.Confidence,
		r.QualityScore,
		r.LeftAlphaPower,
		r.RightAlphaPower,
	)
	return err
}

// Flush is a no-op; the console is unbuffered.
func (c *Console) Flush() error { return nil }

// Close is a no-op.
func (c *Console) Close() error { return nil }
