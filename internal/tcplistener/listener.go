// Package tcplistener implements the bound TCP server port: it accepts
// inbound connections, materialises a tcpconn.Conn per accept, and hands it
// to an external ConnAcceptor. Bind policy and accept-loop structure are
// grounded on the teacher's tcp_server.go acceptLoop/listenTCPReusePort,
// adapted from SO_REUSEPORT fan-out (irrelevant to a single-loop-owner
// transceiver) to the IPv6-dual-stack retry this system's bind policy calls
// for.
package tcplistener

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/wavecast/netio/internal/address"
	"github.com/wavecast/netio/internal/ids"
	"github.com/wavecast/netio/internal/tcpconn"
)

// Backlog is the listen backlog value for server ports. bindTCP does not
// apply it: net.ListenConfig listens with the system default backlog
// (somaxconn on Linux).
const Backlog = 128

// Acceptor decides whether to admit an incoming connection and supplies its
// notifier. Returning nil from Accept closes the connection without
// affecting the listener.
type Acceptor interface {
	Accept(conn *tcpconn.Conn) tcpconn.Notifier
}

// CloseHandler receives the terminal close callback once the listener and
// all its children have fully closed.
type CloseHandler interface {
	HandleClosed(id ids.ID)
}

// Listener is a bound TCP server port.
type Listener struct {
	mu       sync.Mutex
	id       ids.ID
	addr     address.Address
	ln       net.Listener
	acceptor Acceptor
	handler  CloseHandler
	children map[ids.ID]*tcpconn.Conn
	closing  bool
	closed   bool
	wg       sync.WaitGroup
	log      *slog.Logger
}

// New binds addr and starts accepting. On success it returns a Listener
// whose BindAddress reflects the actual bound port (important when the
// caller asked for port 0).
func New(addr address.Address, acceptor Acceptor, handler CloseHandler, log *slog.Logger) (*Listener, error) {
	if log == nil {
		log = slog.Default()
	}

	ln, bound, err := bindTCP(addr)
	if err != nil {
		return nil, err
	}

	l := &Listener{
		addr:     bound,
		ln:       ln,
		acceptor: acceptor,
		handler:  handler,
		children: make(map[ids.ID]*tcpconn.Conn),
		log:      log,
	}

	l.wg.Add(1)
	go l.acceptLoop()

	return l, nil
}

// SetID records the arena id the owner assigned this listener.
func (l *Listener) SetID(id ids.ID) {
	l.mu.Lock()
	l.id = id
	l.mu.Unlock()
}

// BindAddress returns the listener's bound address.
func (l *Listener) BindAddress() address.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

// Open is a no-op for a Listener: binding already happened in New. It
// exists to satisfy the shared port capability contract.
func (l *Listener) Open() error {
	return nil
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()
	for {
		raw, err := l.ln.Accept()
		if err != nil {
			return
		}
		l.handleAccept(raw)
	}
}

// handleAccept runs the per-connection accept sequence described by the
// listener's accept contract: allocate, open, accept, hand to the
// acceptor, and either cleanup or register the child.
func (l *Listener) handleAccept(raw net.Conn) {
	conn := tcpconn.New(l.addr, l, l.log)

	if err := conn.Open(); err != nil {
		l.log.Warn("accept: open failed", "error", err)
		_ = raw.Close()
		return
	}

	if err := conn.Accept(raw); err != nil {
		l.log.Warn("accept: adopt failed", "error", err)
		_ = raw.Close()
		return
	}

	notifier := l.acceptor.Accept(conn)
	if notifier == nil {
		conn.AsyncClose()
		return
	}

	id := ids.NewID()
	conn.SetID(id)

	l.mu.Lock()
	l.children[id] = conn
	l.mu.Unlock()

	conn.AttachNotifier(notifier)
}

// HandleClosed removes a child connection once it has fully closed.
func (l *Listener) HandleClosed(id ids.ID) {
	l.mu.Lock()
	delete(l.children, id)
	closing := l.closing
	empty := len(l.children) == 0
	l.mu.Unlock()

	if closing && empty {
		l.finishClose()
	}
}

// AsyncClose marks the listener closing, tears down every open child, and
// closes the listening socket. handler.HandleClosed fires once the socket
// and all children have closed.
func (l *Listener) AsyncClose() {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return
	}
	l.closing = true
	children := make([]*tcpconn.Conn, 0, len(l.children))
	for _, c := range l.children {
		children = append(children, c)
	}
	empty := len(children) == 0
	l.mu.Unlock()

	_ = l.ln.Close()

	for _, c := range children {
		c.AsyncClose()
	}

	if empty {
		l.finishClose()
	}
}

func (l *Listener) finishClose() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	id := l.id
	handler := l.handler
	l.mu.Unlock()

	l.wg.Wait()
	if handler != nil {
		handler.HandleClosed(id)
	}
}

// bindTCP implements the bind policy: for IPv6 addresses, attempt a
// dual-stack-disabled bind first; on EINVAL/ENOTSUP, retry without the
// flag. It returns the listener and the address with the actually bound
// port filled in.
func bindTCP(addr address.Address) (net.Listener, address.Address, error) {
	lc := net.ListenConfig{}

	if addr.Family() == address.IPv6 {
		lc.Control = controlV6Only(true)
		ln, err := lc.Listen(context.Background(), "tcp", addr.String())
		if err == nil {
			return finishBind(ln, addr)
		}
		if !isV6OnlyUnsupported(err) {
			return nil, address.Address{}, err
		}
		lc.Control = nil
	}

	ln, err := lc.Listen(context.Background(), "tcp", addr.String())
	if err != nil {
		return nil, address.Address{}, err
	}
	return finishBind(ln, addr)
}

func finishBind(ln net.Listener, addr address.Address) (net.Listener, address.Address, error) {
	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		_ = ln.Close()
		return nil, address.Address{}, errors.New("tcplistener: unexpected listener address type")
	}
	bound := address.FromAddrPort(tcpAddr.AddrPort())
	return ln, bound, nil
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

func isV6OnlyUnsupported(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTSUP) || errors.Is(err, syscall.EOPNOTSUPP)
}
