package timing

import (
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// Observer receives the elapsed time of every successful phase
type Observer func(label string, elapsed time.Duration)

type Timer struct {
	out      io.Writer
	logger   *zap.Logger
	observer Observer
}

// New - timer printing "<label>: <duration>" lines to out, observer may be nil
func New(out io.Writer, logger *zap.Logger, observer Observer) *Timer {
	return &Timer{
		out:      out,
		logger:   logger,
		observer: observer,
	}
}

// Time - runs fn to completion and reports the wall clock time it took. The error of fn is returned unchanged
// and a failed phase is not reported as a result.
func (t *Timer) Time(label string, fn func() error) (time.Duration, error) {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	if err != nil {
		t.logger.Warn("timed phase failed", zap.String("label", label), zap.Duration("elapsed", elapsed), zap.Error(err))
		return elapsed, err
	}

	fmt.Fprintf(t.out, "%s: %s\n", label, elapsed)
	t.logger.Info("timed phase finished", zap.String("label", label), zap.Duration("elapsed", elapsed))
	if t.observer != nil {
		t.observer(label, elapsed)
	}

	return elapsed, nil
}
