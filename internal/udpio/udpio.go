// Package udpio implements the bound datagram ports: UdpReceiver pushes
// inbound packets to a PacketWriter collaborator; UdpSender exposes a
// thread-safe enqueue drained by its own sender goroutine. Both are
// grounded on the teacher's udp_server.go recv/worker loop structure and
// its buffer pool usage, adapted here to use the reference-counted
// internal/bufpool.Buffer so a slow PacketWriter can retain a packet past
// the call that delivered it.
package udpio

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/wavecast/netio/internal/address"
	"github.com/wavecast/netio/internal/bufpool"
	"github.com/wavecast/netio/internal/ids"
)

// PacketWriter is the collaborator contract a UdpReceiver delivers inbound
// datagrams to. Write is invoked on the receiver's own goroutine and must
// not block; the buffer is released by the receiver immediately after
// Write returns unless the writer calls buf.Retain().
type PacketWriter interface {
	Write(buf *bufpool.Buffer, from address.Address)
}

// CloseHandler receives the terminal close callback once a port's OS
// handle has fully closed.
type CloseHandler interface {
	HandleClosed(id ids.ID)
}

// Receiver is a bound UDP port that pushes inbound datagrams to a writer.
type Receiver struct {
	mu      sync.Mutex
	id      ids.ID
	addr    address.Address
	conn    *net.UDPConn
	writer  PacketWriter
	pool    *bufpool.BufferPool
	handler CloseHandler
	stopped bool
	done    chan struct{}
	log     *slog.Logger
}

// NewReceiver binds addr and starts the receive loop, delivering datagrams
// to writer via a buffer drawn from pool.
func NewReceiver(addr address.Address, writer PacketWriter, pool *bufpool.BufferPool, handler CloseHandler, log *slog.Logger) (*Receiver, error) {
	if log == nil {
		log = slog.Default()
	}
	if pool == nil {
		pool = bufpool.NewBufferPool(bufpool.DefaultSize)
	}

	conn, bound, err := bindUDP(addr)
	if err != nil {
		return nil, err
	}

	r := &Receiver{
		addr:    bound,
		conn:    conn,
		writer:  writer,
		pool:    pool,
		handler: handler,
		done:    make(chan struct{}),
		log:     log,
	}
	go r.recvLoop()
	return r, nil
}

// SetID records the arena id the owner assigned this port.
func (r *Receiver) SetID(id ids.ID) {
	r.mu.Lock()
	r.id = id
	r.mu.Unlock()
}

// BindAddress returns the receiver's bound address.
func (r *Receiver) BindAddress() address.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addr
}

// Open is a no-op: binding already happened in NewReceiver.
func (r *Receiver) Open() error { return nil }

func (r *Receiver) recvLoop() {
	defer close(r.done)
	buf := make([]byte, r.pool.Cap())
	for {
		n, peer, err := r.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			r.mu.Lock()
			stopped := r.stopped
			r.mu.Unlock()
			if !stopped {
				r.log.Debug("udp receive ended", "error", err)
			}
			return
		}
		from := address.FromAddrPort(peer)
		pb := r.pool.Fill(buf, n)
		r.writer.Write(pb, from)
		pb.Release()
	}
}

// AsyncClose stops the receive loop and closes the socket. handler.HandleClosed
// fires once the receive goroutine has exited.
func (r *Receiver) AsyncClose() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	conn := r.conn
	r.mu.Unlock()

	_ = conn.Close()

	go func() {
		<-r.done
		r.mu.Lock()
		id := r.id
		handler := r.handler
		r.mu.Unlock()
		if handler != nil {
			handler.HandleClosed(id)
		}
	}()
}

// Sender is a bound UDP port exposing a thread-safe Write, drained by its
// own sender goroutine ("outbound packets are linked into a sender-owned
// queue ... the loop drains the queue and submits async sends").
type Sender struct {
	mu      sync.Mutex
	id      ids.ID
	addr    address.Address
	conn    *net.UDPConn
	handler CloseHandler
	queue   chan sendRequest
	stopped bool
	done    chan struct{}
	log     *slog.Logger
}

type sendRequest struct {
	buf *bufpool.Buffer
	to  address.Address
}

// ErrSenderClosed is returned by Write once the sender has begun closing.
var ErrSenderClosed = errors.New("udpio: sender closed")

// NewSender binds addr and starts the send-drain goroutine.
func NewSender(addr address.Address, handler CloseHandler, log *slog.Logger) (*Sender, error) {
	if log == nil {
		log = slog.Default()
	}

	conn, bound, err := bindUDP(addr)
	if err != nil {
		return nil, err
	}

	s := &Sender{
		addr:    bound,
		conn:    conn,
		handler: handler,
		queue:   make(chan sendRequest, 256),
		done:    make(chan struct{}),
		log:     log,
	}
	go s.sendLoop()
	return s, nil
}

// SetID records the arena id the owner assigned this port.
func (s *Sender) SetID(id ids.ID) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

// BindAddress returns the sender's bound address.
func (s *Sender) BindAddress() address.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Open is a no-op: binding already happened in NewSender.
func (s *Sender) Open() error { return nil }

// Write enqueues buf for delivery to `to`. It is safe to call from any
// goroutine. The buffer is retained until the send completes.
func (s *Sender) Write(ctx context.Context, buf *bufpool.Buffer, to address.Address) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSenderClosed
	}
	s.mu.Unlock()

	buf.Retain()
	select {
	case s.queue <- sendRequest{buf: buf, to: to}:
		return nil
	case <-ctx.Done():
		buf.Release()
		return ctx.Err()
	}
}

func (s *Sender) sendLoop() {
	defer close(s.done)
	for req := range s.queue {
		_, err := s.conn.WriteToUDPAddrPort(req.buf.Bytes(), req.to.AddrPort())
		if err != nil {
			s.log.Debug("udp send failed", "to", req.to.String(), "error", err)
		}
		req.buf.Release()
	}
}

// AsyncClose stops accepting new sends, lets already-queued sends drain,
// then closes the socket. handler.HandleClosed fires once the send loop has
// exited.
func (s *Sender) AsyncClose() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.queue)

	go func() {
		<-s.done
		_ = s.conn.Close()
		s.mu.Lock()
		id := s.id
		handler := s.handler
		s.mu.Unlock()
		if handler != nil {
			handler.HandleClosed(id)
		}
	}()
}

func bindUDP(addr address.Address) (*net.UDPConn, address.Address, error) {
	lc := net.ListenConfig{}
	if addr.Family() == address.IPv6 {
		lc.Control = controlV6Only(true)
	}

	pc, err := lc.ListenPacket(context.Background(), "udp", addr.String())
	if err != nil && addr.Family() == address.IPv6 {
		lc.Control = nil
		pc, err = lc.ListenPacket(context.Background(), "udp", addr.String())
	}
	if err != nil {
		return nil, address.Address{}, err
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return nil, address.Address{}, errors.New("udpio: unexpected packet conn type")
	}

	udpAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		_ = conn.Close()
		return nil, address.Address{}, errors.New("udpio: unexpected local address type")
	}
	bound := address.FromAddrPort(udpAddr.AddrPort())
	return conn, bound, nil
}

func controlV6Only(v6only bool) func(string, string, syscall.RawConn) error {
	return func(_, _ string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			val := 0
			if v6only {
				val = 1
			}
			sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, val)
		})
		if err != nil {
			return err
		}
		return sockErr
	}
}
