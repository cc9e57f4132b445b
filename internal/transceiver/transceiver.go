// Package transceiver implements the core orchestrator: a single loop
// goroutine owning the sets of open and closing ports, a thread-safe
// command API that routes through the task-submission protocol, and the
// two-phase close protocol that lets a Transceiver shut down only after
// every port's async close has completed. Grounded on the teacher's
// internal/server.Runner lifecycle (construct, Run, graceful Stop with a
// timeout) generalized from a single DNS listener pair to an arbitrary set
// of UDP/TCP ports tracked in an id-keyed arena.
package transceiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/wavecast/netio/internal/address"
	"github.com/wavecast/netio/internal/bufpool"
	"github.com/wavecast/netio/internal/ids"
	"github.com/wavecast/netio/internal/task"
	"github.com/wavecast/netio/internal/tcpconn"
	"github.com/wavecast/netio/internal/tcplistener"
	"github.com/wavecast/netio/internal/udpio"
)

// Port is the shared capability every port variant exposes to the
// Transceiver: a bind/source address for lookup, and an asynchronous close
// entry point.
type Port interface {
	BindAddress() address.Address
	AsyncClose()
}

// SenderHandle is the packet-writer handle returned by AddUDPSender.
type SenderHandle interface {
	Write(ctx context.Context, buf *bufpool.Buffer, to address.Address) error
	BindAddress() address.Address
}

// ErrPortAlreadyBound is returned when add_udp_*/add_tcp_server targets an
// address that is already bound by an open port.
var ErrPortAlreadyBound = errors.New("transceiver: address already bound")

// ErrNoListener is returned by AddTCPClient when the destination cannot
// possibly have a listener (e.g. port 0).
var ErrNoListener = errors.New("transceiver: no listener at destination")

// Stats is a point-in-time snapshot of transceiver activity, the shape the
// admin surface's /api/v1/stats endpoint reports.
type Stats struct {
	OpenPorts      int
	ClosingPorts   int
	TasksSubmitted int64
	TasksCompleted int64
	TaskQueueDepth int
}

// Transceiver owns the event loop goroutine and the sets of open/closing
// ports.
type Transceiver struct {
	log  *slog.Logger
	pool *bufpool.BufferPool

	tasks *task.Queue

	openPorts    *ids.Arena[Port]
	closingPorts *ids.Arena[Port]

	mu           sync.Mutex
	closeWaiters map[ids.ID]chan struct{}
	shuttingDown bool

	loopStop     chan struct{}
	stopOnce     sync.Once
	shutdownDone chan struct{}

	tasksSubmitted atomic.Int64
	tasksCompleted atomic.Int64
}

// New constructs a Transceiver and starts its loop goroutine. bufferPool
// supplies the reference-counted buffers handed to UDP receivers; a nil
// pool uses bufpool.DefaultSize.
func New(log *slog.Logger, bufferPool *bufpool.BufferPool) *Transceiver {
	if log == nil {
		log = slog.Default()
	}
	if bufferPool == nil {
		bufferPool = bufpool.NewBufferPool(bufpool.DefaultSize)
	}

	t := &Transceiver{
		log:          log,
		pool:         bufferPool,
		tasks:        task.NewQueue(32),
		openPorts:    ids.NewArena[Port](),
		closingPorts: ids.NewArena[Port](),
		closeWaiters: make(map[ids.ID]chan struct{}),
		loopStop:     make(chan struct{}),
		shutdownDone: make(chan struct{}),
	}

	go t.loop()
	return t
}

func (t *Transceiver) loop() {
	for {
		select {
		case tk := <-t.tasks.Tasks():
			task.Run(tk)
			t.tasksCompleted.Add(1)
		case <-t.loopStop:
			close(t.shutdownDone)
			return
		}
	}
}

func (t *Transceiver) submit(ctx context.Context, fn task.Func) (any, error) {
	t.tasksSubmitted.Add(1)
	return t.tasks.Submit(ctx, fn)
}

// NumPorts returns a snapshot count of open ports.
func (t *Transceiver) NumPorts() int {
	return t.openPorts.Len()
}

// Stats returns a point-in-time snapshot of loop activity.
func (t *Transceiver) Stats() Stats {
	return Stats{
		OpenPorts:      t.openPorts.Len(),
		ClosingPorts:   t.closingPorts.Len(),
		TasksSubmitted: t.tasksSubmitted.Load(),
		TasksCompleted: t.tasksCompleted.Load(),
		TaskQueueDepth: t.tasks.Depth(),
	}
}

func (t *Transceiver) addrBound(addr address.Address) bool {
	_, _, ok := t.openPorts.Find(func(p Port) bool {
		return sameAddr(p.BindAddress(), addr)
	})
	return ok
}

func sameAddr(a, b address.Address) bool {
	return a.Family() == b.Family() && a.IP() == b.IP() && a.Port() == b.Port()
}

// AddUDPReceiver binds a UDP port and delivers inbound datagrams to writer.
// If addr's port is 0, the returned address reflects the OS-assigned port.
func (t *Transceiver) AddUDPReceiver(ctx context.Context, addr address.Address, writer udpio.PacketWriter) (address.Address, error) {
	res, err := t.submit(ctx, func() (any, error) {
		if t.addrBound(addr) {
			return nil, fmt.Errorf("%w: %s", ErrPortAlreadyBound, addr)
		}
		r, err := udpio.NewReceiver(addr, writer, t.pool, t, t.log)
		if err != nil {
			return nil, err
		}
		id := t.openPorts.Insert(r)
		r.SetID(id)
		t.log.Info("port opened", "kind", "udp-receiver", "addr", r.BindAddress().String())
		return r.BindAddress(), nil
	})
	if err != nil {
		return address.Address{}, err
	}
	return res.(address.Address), nil
}

// AddUDPSender binds a UDP port and returns a thread-safe packet writer
// handle for it.
func (t *Transceiver) AddUDPSender(ctx context.Context, addr address.Address) (SenderHandle, error) {
	res, err := t.submit(ctx, func() (any, error) {
		if t.addrBound(addr) {
			return nil, fmt.Errorf("%w: %s", ErrPortAlreadyBound, addr)
		}
		s, err := udpio.NewSender(addr, t, t.log)
		if err != nil {
			return nil, err
		}
		id := t.openPorts.Insert(s)
		s.SetID(id)
		t.log.Info("port opened", "kind", "udp-sender", "addr", s.BindAddress().String())
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(SenderHandle), nil
}

// AddTCPServer binds a TCP listener (with the system default listen
// backlog) and hands accepted connections to acceptor.
func (t *Transceiver) AddTCPServer(ctx context.Context, addr address.Address, acceptor tcplistener.Acceptor) (address.Address, error) {
	res, err := t.submit(ctx, func() (any, error) {
		if t.addrBound(addr) {
			return nil, fmt.Errorf("%w: %s", ErrPortAlreadyBound, addr)
		}
		l, err := tcplistener.New(addr, acceptor, t, t.log)
		if err != nil {
			return nil, err
		}
		id := t.openPorts.Insert(l)
		l.SetID(id)
		t.log.Info("port opened", "kind", "tcp-listener", "addr", l.BindAddress().String())
		return l.BindAddress(), nil
	})
	if err != nil {
		return address.Address{}, err
	}
	return res.(address.Address), nil
}

// AddTCPClient starts an asynchronous connect to dst and returns a
// non-owning connection handle immediately; completion is reported through
// notifier. Returns ErrNoListener for destinations that cannot possibly
// have one bound (port 0).
func (t *Transceiver) AddTCPClient(ctx context.Context, dst address.Address, notifier tcpconn.Notifier) (*tcpconn.Conn, error) {
	res, err := t.submit(ctx, func() (any, error) {
		if dst.Port() == 0 {
			return nil, ErrNoListener
		}
		c := tcpconn.New(dst, t, t.log)
		if err := c.Open(); err != nil {
			return nil, err
		}
		if err := c.Connect(notifier); err != nil {
			return nil, err
		}
		id := t.openPorts.Insert(c)
		c.SetID(id)
		t.log.Info("port opened", "kind", "tcp-client", "dst", dst.String())
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*tcpconn.Conn), nil
}

// RemovePort closes the port bound at addr and waits for its async close to
// complete. Unknown addresses are a no-op, and an address already in
// closing is treated the same way (idempotent).
func (t *Transceiver) RemovePort(ctx context.Context, addr address.Address) error {
	waitChAny, err := t.submit(ctx, func() (any, error) {
		id, p, ok := t.openPorts.Find(func(p Port) bool { return sameAddr(p.BindAddress(), addr) })
		if !ok {
			return nil, nil
		}

		t.openPorts.Remove(id)
		t.closingPorts.InsertWithID(id, p)

		waiter := make(chan struct{})
		t.mu.Lock()
		t.closeWaiters[id] = waiter
		t.mu.Unlock()

		t.log.Info("port closing", "addr", addr.String())
		p.AsyncClose()

		return waiter, nil
	})
	if err != nil {
		return err
	}
	if waitChAny == nil {
		return nil
	}

	waiter := waitChAny.(chan struct{})
	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleClosed is the shared CloseHandler entry point every port variant
// calls once its OS handle has fully closed. It is routed through the task
// queue so the closing-ports arena is mutated only on the loop goroutine,
// the same confinement rule the original places on open_ports/closing_ports.
func (t *Transceiver) HandleClosed(id ids.ID) {
	t.tasks.TrySubmit(func() (any, error) {
		t.closingPorts.Remove(id)

		t.mu.Lock()
		waiter := t.closeWaiters[id]
		delete(t.closeWaiters, id)
		shuttingDown := t.shuttingDown
		t.mu.Unlock()

		if waiter != nil {
			close(waiter)
		}

		if shuttingDown && t.closingPorts.Len() == 0 {
			t.stopOnce.Do(func() { close(t.loopStop) })
		}
		return nil, nil
	})
}

// Close implements the destructor's shutdown sequence: every open port is
// moved into closing and async-closed, then Close blocks until
// closing_ports is empty and the loop has exited.
func (t *Transceiver) Close(ctx context.Context) error {
	_, err := t.submit(ctx, func() (any, error) {
		t.mu.Lock()
		t.shuttingDown = true
		t.mu.Unlock()

		var toClose []Port
		var toCloseIDs []ids.ID
		t.openPorts.Each(func(id ids.ID, p Port) {
			toCloseIDs = append(toCloseIDs, id)
			toClose = append(toClose, p)
		})
		for i, id := range toCloseIDs {
			t.openPorts.Remove(id)
			t.closingPorts.InsertWithID(id, toClose[i])
		}

		if len(toClose) == 0 {
			t.stopOnce.Do(func() { close(t.loopStop) })
		}

		t.log.Info("transceiver shutdown", "closing_ports", len(toClose))
		for _, p := range toClose {
			p.AsyncClose()
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	select {
	case <-t.shutdownDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
