// Package tcpconn implements the TCP connection state machine: accepted or
// dialed, bidirectional, with internal read buffering and a notifier
// contract. It is grounded on the length-prefixed connection handling in
// the teacher's tcp_server.go, generalized from that protocol's
// read/write-a-framed-message loop down to the plain byte-stream contract
// this system needs (callers frame their own messages; the connection only
// moves bytes).
package tcpconn

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/wavecast/netio/internal/address"
	"github.com/wavecast/netio/internal/ids"
)

// State is the connection's lifecycle state.
type State int

const (
	Init State = iota
	Opened
	Connecting
	Accepted
	Connected
	Closing
	Closed
	Error
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case Opened:
		return "opened"
	case Connecting:
		return "connecting"
	case Accepted:
		return "accepted"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// ConnectStatus tracks the monotonic connect outcome: None < {Connected, Error}.
type ConnectStatus int

const (
	None ConnectStatus = iota
	StatusConnected
	StatusError
)

// Notifier is the collaborator-supplied observer of connection lifecycle
// events. All three callbacks run on the owning goroutine path (the
// connection's own internal goroutines) and must not block.
type Notifier interface {
	NotifyConnected()
	NotifyReadable()
	NotifyWritable()
}

// CloseHandler receives the terminal close callback once a connection's OS
// handle has fully closed. Implementations must not block. Owners hold a
// strong reference to their children; children hold only this non-owning
// handler reference back, breaking the ownership cycle the original source
// has between listener and child connections.
type CloseHandler interface {
	HandleClosed(id ids.ID)
}

// ErrClosed is returned by operations attempted after the connection has
// entered Closing or Closed.
var ErrClosed = errors.New("tcpconn: connection closed")

// Conn is a bidirectional TCP port: accepted or dialed, with its own read
// buffering and a single notifier. Matches the original's TcpConnection:
// "bidirectional TCP port: accepted or dialed; owns read buffering;
// exposes write/read and connection status."
type Conn struct {
	mu            sync.Mutex
	id            ids.ID
	state         State
	connectStatus ConnectStatus
	dstAddr       address.Address
	srcAddr       address.Address
	notifier      Notifier
	raw           net.Conn
	stopped       bool
	closeHandler  CloseHandler
	closeOnce     sync.Once
	readerDone    chan struct{}

	stream *stream
	log    *slog.Logger
}

// New creates a connection targeting dst (the remote address for dialed
// connections, or the listener's address as a template for accepted ones).
// closeHandler receives the HandleClosed callback once the handle has fully
// closed.
func New(dst address.Address, closeHandler CloseHandler, log *slog.Logger) *Conn {
	if log == nil {
		log = slog.Default()
	}
	return &Conn{
		state:        Init,
		dstAddr:      dst,
		closeHandler: closeHandler,
		stream:       newStream(),
		log:          log,
	}
}

// SetID records the arena id the owner assigned this connection, used when
// reporting HandleClosed.
func (c *Conn) SetID(id ids.ID) {
	c.mu.Lock()
	c.id = id
	c.mu.Unlock()
}

// Open allocates the connection's logical handle. It performs no I/O; the
// OS handle is acquired by Accept or by the dial spawned from Connect.
func (c *Conn) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Init {
		return fmt.Errorf("tcpconn: open from state %s", c.state)
	}
	c.state = Opened
	return nil
}

// Accept adopts an already-accepted raw connection from a TcpListener and
// fills src_addr from the peer name, but does not yet attach a notifier:
// the listener's accept sequence calls this before consulting the
// acceptor, then calls AttachNotifier once the acceptor decides to admit
// the connection (step 3 precedes step 4 in the listener's accept
// sequence: "Call accept() ... ; invoke acceptor.accept(connection) ...;
// push ... and invoke set_connected(notifier)").
func (c *Conn) Accept(raw net.Conn) error {
	c.mu.Lock()
	if c.state != Opened {
		c.mu.Unlock()
		return fmt.Errorf("tcpconn: accept from state %s", c.state)
	}

	peer, ok := netAddrToAddress(raw.RemoteAddr())
	if !ok {
		c.mu.Unlock()
		return errors.New("tcpconn: accept: could not resolve peer address")
	}

	c.raw = raw
	c.srcAddr = peer
	c.connectStatus = StatusConnected
	c.state = Accepted
	c.readerDone = make(chan struct{})
	c.mu.Unlock()

	go c.readLoop()
	return nil
}

// AttachNotifier wires the connection's single notifier and invokes
// NotifyConnected exactly once, matching the listener's set_connected(notifier)
// step once the acceptor has admitted the connection.
func (c *Conn) AttachNotifier(notifier Notifier) {
	c.mu.Lock()
	c.notifier = notifier
	c.state = Connected
	c.mu.Unlock()

	notifier.NotifyConnected()
}

// Connect starts an asynchronous dial to dst_addr. It returns immediately;
// the eventual outcome is reported through connectStatus and, on success,
// through a single NotifyConnected call. This is the Go-idiomatic
// equivalent of "enqueues a connect task; the task issues the async connect
// on the loop thread": Go's net.Dial blocks the calling goroutine, so the
// dial itself runs on its own goroutine instead of a shared loop thread,
// while connectStatus mutation stays under the connection's own mutex the
// same way the original confines it to a single writer path.
func (c *Conn) Connect(notifier Notifier) error {
	c.mu.Lock()
	if c.state != Opened {
		c.mu.Unlock()
		return fmt.Errorf("tcpconn: connect from state %s", c.state)
	}
	c.notifier = notifier
	c.state = Connecting
	c.mu.Unlock()

	go c.connectWorker()
	return nil
}

func (c *Conn) connectWorker() {
	raw, err := net.Dial("tcp", c.dstAddr.String())
	c.mu.Lock()
	if err != nil {
		c.connectStatus = StatusError
		c.state = Error
		c.mu.Unlock()
		c.log.Warn("tcp connect failed", "dst", c.dstAddr.String(), "error", err)
		return
	}

	local, _ := netAddrToAddress(raw.LocalAddr())
	c.raw = raw
	c.srcAddr = local
	c.connectStatus = StatusConnected
	c.state = Connected
	c.readerDone = make(chan struct{})
	notifier := c.notifier
	c.mu.Unlock()

	go c.readLoop()
	if notifier != nil {
		notifier.NotifyConnected()
	}
}

// Write submits buf for an asynchronous send. The caller is not blocked
// until the network flush completes; notifier.NotifyWritable fires on
// completion, mirroring "the caller blocks until the submission returns but
// not until the network flush completes."
func (c *Conn) Write(buf []byte) error {
	c.mu.Lock()
	if c.stopped || c.state == Closing || c.state == Closed {
		c.mu.Unlock()
		return ErrClosed
	}
	raw := c.raw
	notifier := c.notifier
	c.mu.Unlock()

	if raw == nil {
		return errors.New("tcpconn: write before connected")
	}

	payload := append([]byte(nil), buf...)
	go func() {
		if _, err := raw.Write(payload); err != nil {
			c.log.Warn("tcp write failed", "error", err)
			return
		}
		if notifier != nil {
			notifier.NotifyWritable()
		}
	}()
	return nil
}

// Read synchronously drains the internal byte stream, returning the number
// of bytes copied (possibly 0 if nothing is buffered), or -1 once a fatal
// stream error has occurred.
func (c *Conn) Read(buf []byte) int {
	return c.stream.read(buf)
}

// StreamBroken reports whether a fatal stream error has occurred.
func (c *Conn) StreamBroken() bool {
	return c.stream.isBroken()
}

// Connected is a snapshot read of whether the connection is currently
// established.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectStatus == StatusConnected && c.state == Connected
}

// ConnectStatus returns the monotonic connect outcome.
func (c *Conn) ConnectStatus() ConnectStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectStatus
}

// Address returns the connection's local (source) address, meaningful only
// once Connected() is true.
func (c *Conn) Address() address.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.srcAddr
}

// DestinationAddress returns the remote endpoint this connection targets.
func (c *Conn) DestinationAddress() address.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dstAddr
}

// BindAddress satisfies the shared port capability contract. For a
// connection, the bind address is its source address.
func (c *Conn) BindAddress() address.Address {
	return c.Address()
}

// AsyncClose marks the connection stopped and tears down its OS handle.
// Once the reader goroutine observes the closed socket and exits,
// closeHandler.HandleClosed is invoked exactly once.
func (c *Conn) AsyncClose() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		c.state = Closing
		raw := c.raw
		readerDone := c.readerDone
		c.mu.Unlock()

		if raw != nil {
			_ = raw.Close()
		}

		go func() {
			if readerDone != nil {
				<-readerDone
			}
			c.mu.Lock()
			c.state = Closed
			id := c.id
			handler := c.closeHandler
			c.mu.Unlock()
			if handler != nil {
				handler.HandleClosed(id)
			}
		}()
	})
}

func (c *Conn) readLoop() {
	c.mu.Lock()
	raw := c.raw
	done := c.readerDone
	c.mu.Unlock()

	defer close(done)

	buf := make([]byte, 4096)
	for {
		n, err := raw.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			c.stream.push(chunk)
			c.mu.Lock()
			notifier := c.notifier
			c.mu.Unlock()
			if notifier != nil {
				notifier.NotifyReadable()
			}
		}
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				c.stream.fail(err.Error())
				c.log.Debug("tcp read ended", "error", err)
			}
			return
		}
	}
}

func netAddrToAddress(a net.Addr) (address.Address, bool) {
	tcpAddr, ok := a.(*net.TCPAddr)
	if !ok {
		return address.Address{}, false
	}
	ap := tcpAddr.AddrPort()
	return address.FromAddrPort(ap), true
}
