package bench

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dnsx2k/bindbench/pkg/helpers"
	"github.com/dnsx2k/bindbench/pkg/ids"
	"github.com/dnsx2k/bindbench/pkg/metrics"
	"github.com/dnsx2k/bindbench/pkg/pool"
	"github.com/dnsx2k/bindbench/pkg/progress"
	"github.com/dnsx2k/bindbench/pkg/rabbit"
	"github.com/dnsx2k/bindbench/pkg/timing"
	"github.com/dnsx2k/bindbench/pkg/workload"
	"go.uber.org/zap"
)

type Options struct {
	Identifiers      int
	Topology         rabbit.Options
	Concurrency      int
	ProgressInterval time.Duration
}

type Runner struct {
	dial    rabbit.Dialer
	opts    Options
	out     io.Writer
	timer   *timing.Timer
	metrics *metrics.Metrics
	logger  *zap.Logger
	onState func(scenario string, state State)
}

func New(dial rabbit.Dialer, opts Options, out io.Writer, m *metrics.Metrics, logger *zap.Logger) *Runner {
	return &Runner{
		dial:    dial,
		opts:    opts,
		out:     out,
		timer:   timing.New(out, logger, m.ObservePhase),
		metrics: m,
		logger:  logger,
	}
}

// OnState - registers fn to be called on every scenario state transition
func (r *Runner) OnState(fn func(scenario string, state State)) {
	r.onState = fn
}

// Run - generates one identifier set and runs every scenario with it, one after another.
// The first failing scenario stops the run, its topology is torn down before returning.
func (r *Runner) Run(ctx context.Context) error {
	identifiers, err := ids.Generate(r.opts.Identifiers)
	if err != nil {
		return err
	}

	for _, s := range Scenarios {
		if err := r.runScenario(ctx, s, identifiers); err != nil {
			return err
		}
	}

	fmt.Fprintln(r.out, "done")
	return nil
}

func (r *Runner) runScenario(ctx context.Context, s Scenario, identifiers []string) (err error) {
	logger := r.logger.With(zap.String("scenario", s.Name))
	r.transition(logger, s, StateUninitialized)

	sess, err := rabbit.Setup(r.dial, helpers.ExchangeName(s.Kind), s.Kind, r.opts.Topology, logger)
	if sess != nil {
		defer func() {
			if tdErr := sess.Teardown(); tdErr != nil {
				logger.Error("teardown failed", zap.Error(tdErr))
				if err == nil {
					err = tdErr
				}
			}
			r.transition(logger, s, StateTeardownComplete)
		}()
	}
	if err != nil {
		return err
	}
	r.transition(logger, s, StateTopologyReady)

	queues := pool.New(sess.Queues)
	driver := workload.New(sess.Channel(), queues, workload.Options{
		Scenario:    s.Name,
		Exchange:    sess.Exchange,
		Kind:        s.Kind,
		Concurrency: r.opts.Concurrency,
	}, r.metrics, logger)

	r.transition(logger, s, StateWorkloadRunning)
	reporter := progress.Start(driver.Progress(), logger, r.opts.ProgressInterval)
	_, err = r.timer.Time(s.Label(), func() error {
		return driver.Run(ctx, identifiers)
	})
	reporter.Stop()
	if err != nil {
		r.transition(logger, s, StateWorkloadFailed)
		return err
	}
	r.transition(logger, s, StateWorkloadDone)

	assignments := queues.Assignments()
	r.metrics.AddAssignments(s.Name, assignments)
	logger.Debug("queue assignments", zap.Any("assignments", assignments))

	return nil
}

func (r *Runner) transition(logger *zap.Logger, s Scenario, state State) {
	logger.Info("scenario state changed", zap.Stringer("state", state))
	if r.onState != nil {
		r.onState(s.Name, state)
	}
}
