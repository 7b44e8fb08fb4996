package rabbittest

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"

	"github.com/dnsx2k/bindbench/pkg/rabbit"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	frameMethod = 1
	frameEnd    = 0xCE

	classConnection = 10
	classChannel    = 20
	classExchange   = 40
	classQueue      = 50
	classBasic      = 60
	classConfirm    = 85

	protocolHeader = "AMQP\x00\x00\x09\x01"
)

// WireServer - AMQP 0-9-1 peer served over net.Pipe to the real amqp091 client. Like RabbitMQ it answers
// synchronous methods strictly in the order they arrive on a channel. Every declare, delete, bind and
// unbind succeeds; the server only keeps the resulting topology.
type WireServer struct {
	mu        sync.Mutex
	exchanges map[string]struct{}
	queues    map[string]struct{}
	bindings  map[Binding]struct{}
	binds     int64
	unbinds   int64
	errs      []error
}

func NewWireServer() *WireServer {
	return &WireServer{
		exchanges: make(map[string]struct{}),
		queues:    make(map[string]struct{}),
		bindings:  make(map[Binding]struct{}),
	}
}

// Dial - matches rabbit.Dialer, opens an amqp091 connection over an in-process pipe
func (s *WireServer) Dial() (rabbit.Connection, error) {
	client, server := net.Pipe()
	go s.serve(server)

	conn, err := amqp.Open(client, amqp.Config{
		SASL: []amqp.Authentication{&amqp.PlainAuth{Username: "guest", Password: "guest"}},
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	return rabbit.Wrap(conn, zap.NewNop()), nil
}

// Err - protocol violations seen by the server
func (s *WireServer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.errs...)
}

func (s *WireServer) BindCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.binds
}

func (s *WireServer) UnbindCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unbinds
}

// Bindings - number of bindings currently held by the exchange
func (s *WireServer) Bindings(exchange string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k := range s.bindings {
		if k.Exchange == exchange {
			n++
		}
	}
	return n
}

func (s *WireServer) Exchanges() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return keys(s.exchanges)
}

func (s *WireServer) Queues() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return keys(s.queues)
}

func (s *WireServer) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	header := make([]byte, len(protocolHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		s.fail(err)
		return
	}
	if string(header) != protocolHeader {
		s.fail(fmt.Errorf("unexpected protocol header %q", header))
		return
	}

	start := fields{}.octet(0).octet(9).long(0).longstr("PLAIN").longstr("en_US")
	if err := writeMethod(conn, 0, classConnection, 10, start); err != nil {
		s.fail(err)
		return
	}

	for {
		channel, class, method, args, err := readMethod(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				s.fail(err)
			}
			return
		}
		if class == 0 {
			continue
		}

		reply, replyMethod, ok := s.handle(class, method, args)
		if !ok {
			s.fail(fmt.Errorf("unexpected method %d.%d on channel %d", class, method, channel))
			return
		}
		if replyMethod == 0 {
			continue
		}
		if err = writeMethod(conn, channel, class, replyMethod, reply); err != nil {
			s.fail(err)
			return
		}
		if class == classConnection && method == 50 {
			return
		}
	}
}

// handle - applies one request and returns the reply arguments with the reply method id, zero for none
func (s *WireServer) handle(class, method uint16, args *reader) (fields, uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch class<<8 | method {
	case classConnection<<8 | 11: // start-ok
		return fields{}.short(2047).long(131072).short(0), 30, true
	case classConnection<<8 | 31: // tune-ok
		return nil, 0, true
	case classConnection<<8 | 40: // open
		return fields{}.shortstr(""), 41, true
	case classConnection<<8 | 50: // close
		return nil, 51, true
	case classChannel<<8 | 10: // open
		return fields{}.longstr(""), 11, true
	case classChannel<<8 | 40: // close
		return nil, 41, true
	case classConfirm<<8 | 10: // select
		if args.octet()&1 == 1 {
			return nil, 0, true
		}
		return nil, 11, true
	case classBasic<<8 | 10: // qos
		return nil, 11, true
	case classExchange<<8 | 10: // declare
		args.skip(2)
		s.exchanges[args.shortstr()] = struct{}{}
		return nil, 11, true
	case classExchange<<8 | 20: // delete
		args.skip(2)
		name := args.shortstr()
		delete(s.exchanges, name)
		for k := range s.bindings {
			if k.Exchange == name {
				delete(s.bindings, k)
			}
		}
		return nil, 21, true
	case classQueue<<8 | 10: // declare
		args.skip(2)
		name := args.shortstr()
		s.queues[name] = struct{}{}
		return fields{}.shortstr(name).long(0).long(0), 11, true
	case classQueue<<8 | 40: // delete
		args.skip(2)
		name := args.shortstr()
		delete(s.queues, name)
		for k := range s.bindings {
			if k.Queue == name {
				delete(s.bindings, k)
			}
		}
		return fields{}.long(0), 41, true
	case classQueue<<8 | 20: // bind
		args.skip(2)
		b := Binding{Queue: args.shortstr(), Exchange: args.shortstr(), Key: args.shortstr()}
		s.bindings[b] = struct{}{}
		s.binds++
		return nil, 21, true
	case classQueue<<8 | 50: // unbind
		args.skip(2)
		b := Binding{Queue: args.shortstr(), Exchange: args.shortstr(), Key: args.shortstr()}
		delete(s.bindings, b)
		s.unbinds++
		return nil, 51, true
	}

	return nil, 0, false
}

func (s *WireServer) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

// readMethod - reads frames until a method frame arrives, heartbeats report class zero
func readMethod(r *bufio.Reader) (channel, class, method uint16, args *reader, err error) {
	var hdr [7]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return 0, 0, 0, nil, err
	}
	channel = binary.BigEndian.Uint16(hdr[1:3])
	size := binary.BigEndian.Uint32(hdr[3:7])

	payload := make([]byte, size+1)
	if _, err = io.ReadFull(r, payload); err != nil {
		return 0, 0, 0, nil, err
	}
	if payload[size] != frameEnd {
		return 0, 0, 0, nil, fmt.Errorf("frame end %#x", payload[size])
	}
	if hdr[0] != frameMethod || size < 4 {
		return channel, 0, 0, nil, nil
	}

	class = binary.BigEndian.Uint16(payload[0:2])
	method = binary.BigEndian.Uint16(payload[2:4])
	return channel, class, method, &reader{b: payload[4:size]}, nil
}

func writeMethod(w io.Writer, channel, class, method uint16, args fields) error {
	frame := fields{frameMethod}.short(channel).long(uint32(4 + len(args))).short(class).short(method)
	frame = append(frame, args...)
	frame = append(frame, frameEnd)

	_, err := w.Write(frame)
	return err
}

// fields - big-endian argument encoder
type fields []byte

func (f fields) octet(v byte) fields { return append(f, v) }

func (f fields) short(v uint16) fields { return binary.BigEndian.AppendUint16(f, v) }

func (f fields) long(v uint32) fields { return binary.BigEndian.AppendUint32(f, v) }

func (f fields) shortstr(v string) fields { return append(f.octet(byte(len(v))), v...) }

func (f fields) longstr(v string) fields { return append(f.long(uint32(len(v))), v...) }

// reader - argument decoder, reads past the end yield zero values
type reader struct {
	b []byte
}

func (r *reader) skip(n int) {
	if n > len(r.b) {
		n = len(r.b)
	}
	r.b = r.b[n:]
}

func (r *reader) octet() byte {
	if len(r.b) == 0 {
		return 0
	}
	v := r.b[0]
	r.b = r.b[1:]
	return v
}

func (r *reader) shortstr() string {
	n := int(r.octet())
	if n > len(r.b) {
		n = len(r.b)
	}
	v := string(r.b[:n])
	r.b = r.b[n:]
	return v
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
