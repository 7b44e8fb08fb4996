package rabbit

import (
	"errors"
	"time"

	"github.com/dnsx2k/bindbench/pkg/helpers"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	Queues      int
	QueueExpiry time.Duration
	// Prefetch is applied globally on the channel, zero skips the qos call
	Prefetch int
}

// Session - topology of one scenario together with the connection and channel it was declared on.
// Session is owned by a single scenario and is not safe for concurrent Teardown.
type Session struct {
	Exchange string
	Kind     string
	Queues   []string

	conn   Connection
	ch     Channel
	logger *zap.Logger
}

// Setup - dials a connection, opens a confirm channel and declares a durable exchange with the pool of queues.
// Declarations are not rolled back on failure: once a connection exists the partial session is returned
// along with the error and the caller is expected to Teardown it.
func Setup(dial Dialer, exchange, kind string, opts Options, logger *zap.Logger) (*Session, error) {
	conn, err := dial()
	if err != nil {
		return nil, err
	}

	queues := make([]string, opts.Queues)
	for i := range queues {
		queues[i] = helpers.QueueName(i)
	}
	s := &Session{
		Exchange: exchange,
		Kind:     kind,
		Queues:   queues,
		conn:     conn,
		logger:   logger.With(zap.String("exchange", exchange)),
	}

	ch, err := conn.Channel()
	if err != nil {
		return s, err
	}
	ch = serialize(ch)
	s.ch = ch

	if err = ch.Confirm(false); err != nil {
		return s, err
	}

	if err = ch.ExchangeDeclare(exchange, kind, true, false, false, false, nil); err != nil {
		return s, err
	}

	if err = s.declareQueues(opts.QueueExpiry); err != nil {
		return s, err
	}

	if opts.Prefetch > 0 {
		if err = ch.Qos(opts.Prefetch, 0, true); err != nil {
			return s, err
		}
	}

	s.logger.Debug("topology declared", zap.String("kind", kind), zap.Int("queues", len(queues)))
	return s, nil
}

// Channel - channel the topology was declared on, safe for concurrent use. Calls are issued one at a time.
func (s *Session) Channel() Channel {
	return s.ch
}

func (s *Session) declareQueues(expires time.Duration) error {
	args := helpers.QueueArgs(expires)

	var g errgroup.Group
	for i := range s.Queues {
		name := s.Queues[i]
		g.Go(func() error {
			_, err := s.ch.QueueDeclare(name, false, false, false, false, args)
			return err
		})
	}

	return g.Wait()
}

// Teardown - deletes the exchange and every queue of the pool, then closes the connection.
// Resources the broker no longer knows about are skipped, the connection is closed on every path.
func (s *Session) Teardown() error {
	var errs []error

	err := s.delete("exchange", s.Exchange, func(ch Channel) error {
		return ch.ExchangeDelete(s.Exchange, false, false)
	})
	if err != nil {
		errs = append(errs, err)
	}

	for i := range s.Queues {
		queue := s.Queues[i]
		err = s.delete("queue", queue, func(ch Channel) error {
			_, err := ch.QueueDelete(queue, false, false, false)
			return err
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	if err = s.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (s *Session) delete(resource, name string, fn func(ch Channel) error) error {
	ch, err := s.channel()
	if err != nil {
		return err
	}

	err = fn(ch)
	if IsNotFound(err) {
		s.logger.Warn("resource already gone", zap.String(resource, name))
		return nil
	}

	return err
}

// channel - broker closes a channel on any operation error, so a fresh one is opened when needed
func (s *Session) channel() (Channel, error) {
	if s.ch != nil && !s.ch.IsClosed() {
		return s.ch, nil
	}

	ch, err := s.conn.Channel()
	if err != nil {
		return nil, err
	}
	s.ch = serialize(ch)

	return s.ch, nil
}
