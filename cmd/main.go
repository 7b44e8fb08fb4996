package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardanlabs/conf/v3"
	"github.com/dnsx2k/bindbench/cmd/config"
	"github.com/dnsx2k/bindbench/cmd/handlers"
	"github.com/dnsx2k/bindbench/pkg/bench"
	"github.com/dnsx2k/bindbench/pkg/metrics"
	"github.com/dnsx2k/bindbench/pkg/rabbit"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}

	code := run(logger)
	shutdown(logger, code)
}

// shutdown - the only exit path, buffered log entries are flushed before the process exits
func shutdown(logger *zap.Logger, code int) {
	_ = logger.Sync()
	os.Exit(code)
}

func run(logger *zap.Logger) int {
	var appCfg config.Config
	help, err := conf.Parse("BINDBENCH", &appCfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return 0
		}
		logger.Error("parsing config", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// HTTP

	if appCfg.Web.Addr != "" {
		gin.SetMode(gin.ReleaseMode)
		router := gin.New()
		router.Use(gin.Recovery())
		handlers.New(reg, logger).RegisterRoute(router)

		go func() {
			if err := router.Run(appCfg.Web.Addr); err != nil {
				logger.Error("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	// AMQP

	runner := bench.New(rabbit.Dial(appCfg.RabbitConnectionString, logger), bench.Options{
		Identifiers: appCfg.Workload.Identifiers,
		Topology: rabbit.Options{
			Queues:      appCfg.Workload.Queues,
			QueueExpiry: appCfg.Workload.QueueExpiry,
			Prefetch:    appCfg.Workload.Prefetch,
		},
		Concurrency:      appCfg.Workload.Concurrency,
		ProgressInterval: appCfg.ProgressInterval,
	}, os.Stdout, m, logger)

	if err := runner.Run(ctx); err != nil {
		logger.Error("benchmark failed", zap.Error(err))
		return 1
	}

	return 0
}
