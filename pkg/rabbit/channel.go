package rabbit

import (
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// serialChannel - amqp091 hands a synchronous reply to whichever caller waits on the channel next,
// so at most one request may be outstanding per channel. Every call holds chMu for its round trip.
type serialChannel struct {
	chMu sync.Mutex
	ch   Channel
}

func serialize(ch Channel) Channel {
	if _, ok := ch.(*serialChannel); ok {
		return ch
	}
	return &serialChannel{ch: ch}
}

func (sc *serialChannel) Confirm(noWait bool) error {
	sc.chMu.Lock()
	defer sc.chMu.Unlock()

	return sc.ch.Confirm(noWait)
}

func (sc *serialChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	sc.chMu.Lock()
	defer sc.chMu.Unlock()

	return sc.ch.Qos(prefetchCount, prefetchSize, global)
}

func (sc *serialChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	sc.chMu.Lock()
	defer sc.chMu.Unlock()

	return sc.ch.ExchangeDeclare(name, kind, durable, autoDelete, internal, noWait, args)
}

func (sc *serialChannel) ExchangeDelete(name string, ifUnused, noWait bool) error {
	sc.chMu.Lock()
	defer sc.chMu.Unlock()

	return sc.ch.ExchangeDelete(name, ifUnused, noWait)
}

func (sc *serialChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	sc.chMu.Lock()
	defer sc.chMu.Unlock()

	return sc.ch.QueueDeclare(name, durable, autoDelete, exclusive, noWait, args)
}

func (sc *serialChannel) QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error) {
	sc.chMu.Lock()
	defer sc.chMu.Unlock()

	return sc.ch.QueueDelete(name, ifUnused, ifEmpty, noWait)
}

func (sc *serialChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	sc.chMu.Lock()
	defer sc.chMu.Unlock()

	return sc.ch.QueueBind(name, key, exchange, noWait, args)
}

func (sc *serialChannel) QueueUnbind(name, key, exchange string, args amqp.Table) error {
	sc.chMu.Lock()
	defer sc.chMu.Unlock()

	return sc.ch.QueueUnbind(name, key, exchange, args)
}

func (sc *serialChannel) IsClosed() bool {
	return sc.ch.IsClosed()
}
