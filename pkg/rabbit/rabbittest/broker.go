// Package rabbittest provides an in-memory broker implementing the rabbit connection and channel
// interfaces. It keeps exchanges, queues and the binding table, and like a real AMQP broker it
// closes a channel after any failed operation. A channel accepts one call at a time: an overlapping
// call fails with amqp.ErrCommandInvalid, the error amqp091 reports when replies get crossed.
package rabbittest

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dnsx2k/bindbench/pkg/rabbit"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Binding struct {
	Queue    string
	Exchange string
	Key      string
}

type Exchange struct {
	Kind    string
	Durable bool
}

type Broker struct {
	// FailBind is consulted for every bind with its 1-based sequence number, a non-nil error fails the bind
	// and closes the channel
	FailBind func(n int64, b Binding) error
	// DialErr is returned by Dial when set
	DialErr error

	mu        sync.Mutex
	exchanges map[string]Exchange
	queues    map[string]amqp.Table
	bindings  map[Binding]struct{}
	conns     []*Conn

	bindCalls        int64
	binds            int64
	unbinds          int64
	unmatchedUnbinds int64
	overlaps         atomic.Int64
	keyBinds         map[string]int
	keyUnbinds       map[string]int

	prefetch       int
	prefetchGlobal bool
	confirms       int
}

func NewBroker() *Broker {
	return &Broker{
		exchanges:  make(map[string]Exchange),
		queues:     make(map[string]amqp.Table),
		bindings:   make(map[Binding]struct{}),
		keyBinds:   make(map[string]int),
		keyUnbinds: make(map[string]int),
	}
}

// Dial - matches rabbit.Dialer
func (b *Broker) Dial() (rabbit.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.DialErr != nil {
		return nil, b.DialErr
	}
	c := &Conn{broker: b}
	b.conns = append(b.conns, c)

	return c, nil
}

// Bindings - number of bindings currently held by the exchange
func (b *Broker) Bindings(exchange string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for k := range b.bindings {
		if k.Exchange == exchange {
			n++
		}
	}
	return n
}

// BindCount - acknowledged binds
func (b *Broker) BindCount() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.binds
}

// UnbindCount - acknowledged unbinds
func (b *Broker) UnbindCount() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unbinds
}

// UnmatchedUnbinds - unbinds issued for a binding that did not exist at that moment
func (b *Broker) UnmatchedUnbinds() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unmatchedUnbinds
}

// Overlaps - calls rejected because another call was outstanding on the same channel
func (b *Broker) Overlaps() int64 {
	return b.overlaps.Load()
}

// KeyCounts - binds and unbinds per routing key
func (b *Broker) KeyCounts() (binds, unbinds map[string]int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	binds = make(map[string]int, len(b.keyBinds))
	for k, v := range b.keyBinds {
		binds[k] = v
	}
	unbinds = make(map[string]int, len(b.keyUnbinds))
	for k, v := range b.keyUnbinds {
		unbinds[k] = v
	}
	return binds, unbinds
}

func (b *Broker) Exchange(name string) (Exchange, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.exchanges[name]
	return e, ok
}

func (b *Broker) Exchanges() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.exchanges))
	for k := range b.exchanges {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (b *Broker) Queue(name string) (amqp.Table, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	args, ok := b.queues[name]
	return args, ok
}

func (b *Broker) Queues() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.queues))
	for k := range b.queues {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DeleteQueue - removes a queue behind the client's back, as expiry would
func (b *Broker) DeleteQueue(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropQueue(name)
}

func (b *Broker) Prefetch() (count int, global bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.prefetch, b.prefetchGlobal
}

// ConfirmChannels - number of channels put into confirm mode
func (b *Broker) ConfirmChannels() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.confirms
}

func (b *Broker) Connections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// OpenConnections - connections not closed yet
func (b *Broker) OpenConnections() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, c := range b.conns {
		if !c.closed {
			n++
		}
	}
	return n
}

func (b *Broker) dropQueue(name string) {
	delete(b.queues, name)
	for k := range b.bindings {
		if k.Queue == name {
			delete(b.bindings, k)
		}
	}
}

func (b *Broker) dropExchange(name string) {
	delete(b.exchanges, name)
	for k := range b.bindings {
		if k.Exchange == name {
			delete(b.bindings, k)
		}
	}
}

type Conn struct {
	broker   *Broker
	closed   bool
	channels []*Channel
}

func (c *Conn) Channel() (rabbit.Channel, error) {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	if c.closed {
		return nil, amqp.ErrClosed
	}
	ch := &Channel{conn: c}
	c.channels = append(c.channels, ch)

	return ch, nil
}

func (c *Conn) Close() error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	if c.closed {
		return amqp.ErrClosed
	}
	c.closed = true
	for _, ch := range c.channels {
		ch.closed = true
	}

	return nil
}

func (c *Conn) IsClosed() bool {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	return c.closed
}

type Channel struct {
	conn   *Conn
	closed bool
	busy   atomic.Bool
}

func (ch *Channel) IsClosed() bool {
	ch.conn.broker.mu.Lock()
	defer ch.conn.broker.mu.Unlock()
	return ch.closed
}

func (ch *Channel) Confirm(noWait bool) error {
	b, err := ch.lock()
	if err != nil {
		return err
	}
	defer ch.unlock()

	b.confirms++
	return nil
}

func (ch *Channel) Qos(prefetchCount, prefetchSize int, global bool) error {
	b, err := ch.lock()
	if err != nil {
		return err
	}
	defer ch.unlock()

	b.prefetch = prefetchCount
	b.prefetchGlobal = global
	return nil
}

func (ch *Channel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	b, err := ch.lock()
	if err != nil {
		return err
	}
	defer ch.unlock()

	want := Exchange{Kind: kind, Durable: durable}
	if have, ok := b.exchanges[name]; ok && have != want {
		return ch.fail(amqp.PreconditionFailed, fmt.Sprintf("PRECONDITION_FAILED - inequivalent arg for exchange '%s'", name))
	}
	b.exchanges[name] = want

	return nil
}

func (ch *Channel) ExchangeDelete(name string, ifUnused, noWait bool) error {
	b, err := ch.lock()
	if err != nil {
		return err
	}
	defer ch.unlock()

	if _, ok := b.exchanges[name]; !ok {
		return ch.fail(amqp.NotFound, fmt.Sprintf("NOT_FOUND - no exchange '%s'", name))
	}
	b.dropExchange(name)

	return nil
}

func (ch *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	b, err := ch.lock()
	if err != nil {
		return amqp.Queue{}, err
	}
	defer ch.unlock()

	if durable {
		return amqp.Queue{}, ch.fail(amqp.PreconditionFailed, "durable queues are not supported")
	}
	if _, ok := b.queues[name]; !ok {
		b.queues[name] = args
	}

	return amqp.Queue{Name: name}, nil
}

func (ch *Channel) QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error) {
	b, err := ch.lock()
	if err != nil {
		return 0, err
	}
	defer ch.unlock()

	if _, ok := b.queues[name]; !ok {
		return 0, ch.fail(amqp.NotFound, fmt.Sprintf("NOT_FOUND - no queue '%s'", name))
	}
	b.dropQueue(name)

	return 0, nil
}

func (ch *Channel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	b, err := ch.lock()
	if err != nil {
		return err
	}
	defer ch.unlock()

	b.bindCalls++
	binding := Binding{Queue: name, Exchange: exchange, Key: key}
	if b.FailBind != nil {
		if err := b.FailBind(b.bindCalls, binding); err != nil {
			ch.closed = true
			return err
		}
	}
	if err := ch.exists(name, exchange); err != nil {
		return err
	}
	b.bindings[binding] = struct{}{}
	b.binds++
	b.keyBinds[key]++

	return nil
}

func (ch *Channel) QueueUnbind(name, key, exchange string, args amqp.Table) error {
	b, err := ch.lock()
	if err != nil {
		return err
	}
	defer ch.unlock()

	if err := ch.exists(name, exchange); err != nil {
		return err
	}
	binding := Binding{Queue: name, Exchange: exchange, Key: key}
	if _, ok := b.bindings[binding]; !ok {
		b.unmatchedUnbinds++
	}
	delete(b.bindings, binding)
	b.unbinds++
	b.keyUnbinds[key]++

	return nil
}

// lock - claims the channel for one call and acquires the broker lock, the caller unlocks
func (ch *Channel) lock() (*Broker, error) {
	b := ch.conn.broker
	if !ch.busy.CompareAndSwap(false, true) {
		b.overlaps.Add(1)
		return nil, amqp.ErrCommandInvalid
	}

	b.mu.Lock()
	if ch.closed || ch.conn.closed {
		b.mu.Unlock()
		ch.busy.Store(false)
		return nil, amqp.ErrClosed
	}
	return b, nil
}

func (ch *Channel) unlock() {
	ch.conn.broker.mu.Unlock()
	ch.busy.Store(false)
}

func (ch *Channel) exists(queue, exchange string) error {
	b := ch.conn.broker
	if _, ok := b.exchanges[exchange]; !ok {
		return ch.fail(amqp.NotFound, fmt.Sprintf("NOT_FOUND - no exchange '%s'", exchange))
	}
	if _, ok := b.queues[queue]; !ok {
		return ch.fail(amqp.NotFound, fmt.Sprintf("NOT_FOUND - no queue '%s'", queue))
	}
	return nil
}

func (ch *Channel) fail(code int, reason string) error {
	ch.closed = true
	return &amqp.Error{Code: code, Reason: reason, Server: true}
}
