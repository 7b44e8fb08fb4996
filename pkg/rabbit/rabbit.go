package rabbit

import (
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Channel - subset of *amqp.Channel used by the benchmark
type Channel interface {
	Confirm(noWait bool) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	ExchangeDelete(name string, ifUnused, noWait bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	QueueUnbind(name, key, exchange string, args amqp.Table) error
	IsClosed() bool
}

type Connection interface {
	Channel() (Channel, error)
	Close() error
}

// Dialer - opens a new broker connection, each scenario owns the connection it dials
type Dialer func() (Connection, error)

type amqpConn struct {
	conn *amqp.Connection
}

// Dial - returns dialer for plain amqp connections, abnormal connection close is logged
func Dial(url string, logger *zap.Logger) Dialer {
	return func() (Connection, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, err
		}

		return Wrap(conn, logger), nil
	}
}

// Wrap - adapts an open amqp091 connection, abnormal connection close is logged
func Wrap(conn *amqp.Connection, logger *zap.Logger) Connection {
	notifyCloseCh := conn.NotifyClose(make(chan *amqp.Error, 1))
	go handleConnectionClose(notifyCloseCh, logger)

	return &amqpConn{conn: conn}
}

func (ac *amqpConn) Channel() (Channel, error) {
	ch, err := ac.conn.Channel()
	if err != nil {
		return nil, err
	}

	return ch, nil
}

func (ac *amqpConn) Close() error {
	return ac.conn.Close()
}

// IsNotFound - reports whether the broker answered with 404 not found
func IsNotFound(err error) bool {
	var amqpErr *amqp.Error
	return errors.As(err, &amqpErr) && amqpErr.Code == amqp.NotFound
}

func handleConnectionClose(c <-chan *amqp.Error, logger *zap.Logger) {
	for err := range c {
		logger.Error("connection closed", zap.Error(err))
	}
}
