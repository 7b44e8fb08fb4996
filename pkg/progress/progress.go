package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type Counter interface {
	Completed() int64
	Total() int64
}

type Reporter interface {
	// Stop ends reporting and logs the final count, it is safe to call more than once
	Stop()
}

type srvContext struct {
	counter  Counter
	logger   *zap.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// Start - logs completed units every interval until stopped, a non-positive interval disables reporting
func Start(counter Counter, logger *zap.Logger, interval time.Duration) Reporter {
	srv := &srvContext{
		counter: counter,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	if interval <= 0 {
		close(srv.doneCh)
		return srv
	}

	go func() {
		defer close(srv.doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.check()
			case <-srv.stopCh:
				srv.check()
				return
			}
		}
	}()

	return srv
}

func (srv *srvContext) Stop() {
	srv.stopOnce.Do(func() {
		close(srv.stopCh)
	})
	<-srv.doneCh
}

func (srv *srvContext) check() {
	srv.logger.Info("workload progress",
		zap.Int64("completed", srv.counter.Completed()),
		zap.Int64("total", srv.counter.Total()),
	)
}
