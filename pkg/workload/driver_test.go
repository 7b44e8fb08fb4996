package workload

import (
	"context"
	"errors"
	"testing"

	"github.com/dnsx2k/bindbench/pkg/helpers"
	"github.com/dnsx2k/bindbench/pkg/ids"
	"github.com/dnsx2k/bindbench/pkg/metrics"
	"github.com/dnsx2k/bindbench/pkg/pool"
	"github.com/dnsx2k/bindbench/pkg/rabbit"
	"github.com/dnsx2k/bindbench/pkg/rabbit/rabbittest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T, broker *rabbittest.Broker, kind string, queues, concurrency int) (*Driver, *rabbit.Session, *metrics.Metrics) {
	t.Helper()

	sess, err := rabbit.Setup(broker.Dial, kind+"-test", kind, rabbit.Options{Queues: queues}, zap.NewNop())
	require.NoError(t, err)

	m := metrics.New(prometheus.NewRegistry())
	opts := Options{Scenario: kind, Exchange: sess.Exchange, Kind: kind, Concurrency: concurrency}

	return New(sess.Channel(), pool.New(sess.Queues), opts, m, zap.NewNop()), sess, m
}

func generate(t *testing.T, n int) []string {
	t.Helper()
	out, err := ids.Generate(n)
	require.NoError(t, err)
	return out
}

func TestRunTopic(t *testing.T) {
	broker := rabbittest.NewBroker()
	d, sess, m := setup(t, broker, amqp.ExchangeTopic, 3, 0)
	identifiers := generate(t, 100)

	require.NoError(t, d.Run(context.Background(), identifiers))

	assert.Equal(t, int64(100), broker.BindCount())
	assert.Equal(t, int64(100), broker.UnbindCount())
	assert.Zero(t, broker.UnmatchedUnbinds())
	assert.Zero(t, broker.Bindings(sess.Exchange))

	binds, unbinds := broker.KeyCounts()
	require.Len(t, binds, 100)
	for _, id := range identifiers {
		key := "#." + id + ".#"
		assert.Equal(t, 1, binds[key], key)
		assert.Equal(t, 1, unbinds[key], key)

		got, err := helpers.IdentifierFromRoutingKey(amqp.ExchangeTopic, key)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}

	assert.Equal(t, int64(100), d.Progress().Total())
	assert.Equal(t, int64(100), d.Progress().Binds())
	assert.Equal(t, int64(100), d.Progress().Completed())
	assert.Equal(t, 100.0, testutil.ToFloat64(m.Operations.WithLabelValues("topic", metrics.OpBind, metrics.ResultOK)))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.Operations.WithLabelValues("topic", metrics.OpUnbind, metrics.ResultOK)))
}

func TestRunDirect(t *testing.T) {
	broker := rabbittest.NewBroker()
	d, sess, _ := setup(t, broker, amqp.ExchangeDirect, 12, 0)
	identifiers := generate(t, 500)

	require.NoError(t, d.Run(context.Background(), identifiers))

	assert.Zero(t, broker.Bindings(sess.Exchange))
	binds, unbinds := broker.KeyCounts()
	for _, id := range identifiers {
		assert.Equal(t, 1, binds[id], id)
		assert.Equal(t, 1, unbinds[id], id)
	}
	assert.Equal(t, binds, unbinds)
}

func TestRunOrderIndependent(t *testing.T) {
	identifiers := generate(t, 25_000)

	for _, concurrency := range []int{0, 1} {
		broker := rabbittest.NewBroker()
		d, sess, _ := setup(t, broker, amqp.ExchangeTopic, 12, concurrency)

		require.NoError(t, d.Run(context.Background(), identifiers))

		assert.Zero(t, broker.Bindings(sess.Exchange), "concurrency %d", concurrency)
		assert.Equal(t, int64(25_000), broker.BindCount(), "concurrency %d", concurrency)
		assert.Equal(t, int64(25_000), broker.UnbindCount(), "concurrency %d", concurrency)
		assert.Zero(t, broker.UnmatchedUnbinds(), "concurrency %d", concurrency)
	}
}

func TestRunFailsFast(t *testing.T) {
	broker := rabbittest.NewBroker()
	injected := &amqp.Error{Code: amqp.NotFound, Reason: "NOT_FOUND - injected"}
	broker.FailBind = func(n int64, _ rabbittest.Binding) error {
		if n == 5000 {
			return injected
		}
		return nil
	}
	d, _, _ := setup(t, broker, amqp.ExchangeTopic, 12, 0)

	err := d.Run(context.Background(), generate(t, 25_000))
	require.Error(t, err)
	// the failed bind closes the channel, units still in flight see it closed
	assert.True(t, errors.Is(err, injected) || errors.Is(err, amqp.ErrClosed), err)
	assert.Less(t, broker.BindCount(), int64(25_000))

	// every unit has returned, nothing is still waiting on the channel
	assert.Equal(t, broker.BindCount(), d.Progress().Binds())
	assert.Equal(t, broker.UnbindCount(), d.Progress().Unbinds())
	assert.Zero(t, broker.Overlaps())
}

func TestRunSequentialFailureStopsLaunching(t *testing.T) {
	broker := rabbittest.NewBroker()
	injected := errors.New("rejected")
	broker.FailBind = func(n int64, _ rabbittest.Binding) error {
		if n == 10 {
			return injected
		}
		return nil
	}
	d, _, _ := setup(t, broker, amqp.ExchangeDirect, 3, 1)

	err := d.Run(context.Background(), generate(t, 1000))
	assert.ErrorIs(t, err, injected)
	assert.Equal(t, int64(9), broker.BindCount())
	assert.Equal(t, int64(9), d.Progress().Completed())
}

func TestRunOverWire(t *testing.T) {
	srv := rabbittest.NewWireServer()
	sess, err := rabbit.Setup(srv.Dial, "topic-wire", amqp.ExchangeTopic, rabbit.Options{Queues: 12}, zap.NewNop())
	require.NoError(t, err)

	opts := Options{Scenario: "topic", Exchange: sess.Exchange, Kind: amqp.ExchangeTopic}
	d := New(sess.Channel(), pool.New(sess.Queues), opts, metrics.New(prometheus.NewRegistry()), zap.NewNop())

	require.NoError(t, d.Run(context.Background(), generate(t, 2000)))
	assert.Equal(t, int64(2000), srv.BindCount())
	assert.Equal(t, int64(2000), srv.UnbindCount())
	assert.Zero(t, srv.Bindings(sess.Exchange))

	require.NoError(t, sess.Teardown())
	assert.Empty(t, srv.Exchanges())
	assert.Empty(t, srv.Queues())
	assert.NoError(t, srv.Err())
}

func TestRunCancelled(t *testing.T) {
	broker := rabbittest.NewBroker()
	d, _, _ := setup(t, broker, amqp.ExchangeDirect, 3, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Run(ctx, generate(t, 100))
	assert.ErrorIs(t, err, context.Canceled)
}
