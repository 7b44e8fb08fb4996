package workload

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dnsx2k/bindbench/pkg/helpers"
	"github.com/dnsx2k/bindbench/pkg/metrics"
	"github.com/dnsx2k/bindbench/pkg/pool"
	"github.com/dnsx2k/bindbench/pkg/rabbit"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	Scenario string
	Exchange string
	Kind     string
	// Concurrency caps the units in flight, zero starts one goroutine per identifier
	Concurrency int
}

type Driver struct {
	ch       rabbit.Channel
	queues   pool.Pool
	opts     Options
	metrics  *metrics.Metrics
	logger   *zap.Logger
	progress *Progress
}

func New(ch rabbit.Channel, queues pool.Pool, opts Options, m *metrics.Metrics, logger *zap.Logger) *Driver {
	return &Driver{
		ch:       ch,
		queues:   queues,
		opts:     opts,
		metrics:  m,
		logger:   logger.With(zap.String("scenario", opts.Scenario)),
		progress: &Progress{},
	}
}

func (d *Driver) Progress() *Progress {
	return d.progress
}

// Run - binds and then unbinds a random pool queue for every identifier, all identifiers concurrently.
// The first failure cancels the run: units not started yet are skipped and units in flight stop before
// their next call. Run returns the first error once every unit has stopped, so the channel is idle
// afterwards. Nothing is retried.
func (d *Driver) Run(ctx context.Context, ids []string) error {
	d.progress.total.Store(int64(len(ids)))

	g, gctx := errgroup.WithContext(ctx)
	if d.opts.Concurrency > 0 {
		g.SetLimit(d.opts.Concurrency)
	}

	var once sync.Once
	for i := range ids {
		if gctx.Err() != nil {
			break
		}
		id := ids[i]
		g.Go(func() error {
			err := d.bindUnbind(gctx, id)
			if err != nil && !errors.Is(err, context.Canceled) {
				once.Do(func() {
					d.logger.Error("binding unit failed", zap.String("id", id), zap.Error(err))
				})
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (d *Driver) bindUnbind(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	queue := d.queues.Pick()
	key := helpers.BuildRoutingKey(d.opts.Kind, id)

	start := time.Now()
	err := d.ch.QueueBind(queue, key, d.opts.Exchange, false, nil)
	d.metrics.ObserveOperation(d.opts.Scenario, metrics.OpBind, time.Since(start), err)
	if err != nil {
		return err
	}
	d.progress.binds.Add(1)

	if err = ctx.Err(); err != nil {
		return err
	}
	start = time.Now()
	err = d.ch.QueueUnbind(queue, key, d.opts.Exchange, nil)
	d.metrics.ObserveOperation(d.opts.Scenario, metrics.OpUnbind, time.Since(start), err)
	if err != nil {
		return err
	}
	d.progress.unbinds.Add(1)

	return nil
}
