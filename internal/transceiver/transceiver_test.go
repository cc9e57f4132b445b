package transceiver_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavecast/netio/internal/address"
	"github.com/wavecast/netio/internal/bufpool"
	"github.com/wavecast/netio/internal/tcpconn"
	"github.com/wavecast/netio/internal/transceiver"
)

func anyLocal(t *testing.T) address.Address {
	t.Helper()
	a, err := address.Parse(address.IPv4, "127.0.0.1", 0)
	require.NoError(t, err)
	return a
}

func newT(t *testing.T) *transceiver.Transceiver {
	t.Helper()
	tr := transceiver.New(nil, bufpool.NewBufferPool(0))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = tr.Close(ctx)
	})
	return tr
}

func ctx(t *testing.T) context.Context {
	return context.Background()
}

// Scenario 1: UDP add/remove/add.
func TestScenario_UDPAddRemoveAdd(t *testing.T) {
	tr := newT(t)

	addr, err := tr.AddUDPSender(ctx(t), anyLocal(t))
	require.NoError(t, err)
	assert.Equal(t, 1, tr.NumPorts())

	boundAddr := addr.BindAddress()
	require.NoError(t, tr.RemovePort(ctx(t), boundAddr))
	assert.Equal(t, 0, tr.NumPorts())

	_, err = tr.AddUDPSender(ctx(t), boundAddr)
	require.NoError(t, err)
	assert.Equal(t, 1, tr.NumPorts())
}

// Scenario 2: UDP duplicate bind.
func TestScenario_UDPDuplicateBind(t *testing.T) {
	tr := newT(t)

	handle, err := tr.AddUDPSender(ctx(t), anyLocal(t))
	require.NoError(t, err)
	bound := handle.BindAddress()

	_, err = tr.AddUDPSender(ctx(t), bound)
	assert.ErrorIs(t, err, transceiver.ErrPortAlreadyBound)

	_, err = tr.AddUDPReceiver(ctx(t), bound, noopWriter{})
	assert.ErrorIs(t, err, transceiver.ErrPortAlreadyBound)

	assert.Equal(t, 1, tr.NumPorts())
}

type noopWriter struct{}

func (noopWriter) Write(*bufpool.Buffer, address.Address) {}

// Scenario 3: TCP connect with no server.
func TestScenario_TCPConnectNoServer(t *testing.T) {
	tr := newT(t)

	zero, err := address.Parse(address.IPv4, "0.0.0.0", 0)
	require.NoError(t, err)

	_, err = tr.AddTCPClient(ctx(t), zero, noopNotifier{})
	assert.ErrorIs(t, err, transceiver.ErrNoListener)
}

type noopNotifier struct{}

func (noopNotifier) NotifyConnected() {}
func (noopNotifier) NotifyReadable()  {}
func (noopNotifier) NotifyWritable()  {}

type recordingAcceptor struct {
	notifier *waitNotifier
}

func (a *recordingAcceptor) Accept(c *tcpconn.Conn) tcpconn.Notifier {
	return a.notifier
}

type waitNotifier struct {
	connected chan struct{}
	readable  chan struct{}
	writable  chan struct{}
}

func newWaitNotifier() *waitNotifier {
	return &waitNotifier{
		connected: make(chan struct{}),
		readable:  make(chan struct{}, 4),
		writable:  make(chan struct{}, 4),
	}
}

func (n *waitNotifier) NotifyConnected() { close(n.connected) }
func (n *waitNotifier) NotifyReadable() {
	select {
	case n.readable <- struct{}{}:
	default:
	}
}
func (n *waitNotifier) NotifyWritable() {
	select {
	case n.writable <- struct{}{}:
	default:
	}
}

// Scenario 4: TCP accept and notify.
func TestScenario_TCPAcceptAndNotify(t *testing.T) {
	tr := newT(t)

	serverNotifier := newWaitNotifier()
	acceptor := &recordingAcceptor{notifier: serverNotifier}

	serverAddr, err := tr.AddTCPServer(ctx(t), anyLocal(t), acceptor)
	require.NoError(t, err)

	clientNotifier := newWaitNotifier()
	c, err := tr.AddTCPClient(ctx(t), serverAddr, clientNotifier)
	require.NoError(t, err)

	select {
	case <-clientNotifier.connected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client connect")
	}

	assert.True(t, c.Connected())
	assert.NotEqual(t, serverAddr.String(), c.Address().String())
	assert.Equal(t, serverAddr.String(), c.DestinationAddress().String())
}

// Scenario 5: TCP bidirectional echo.
func TestScenario_TCPBidirectionalEcho(t *testing.T) {
	tr := newT(t)

	var serverConn *tcpconn.Conn
	serverConnReady := make(chan struct{})
	serverNotifier := newWaitNotifier()

	acceptor := acceptorFunc(func(c *tcpconn.Conn) tcpconn.Notifier {
		serverConn = c
		close(serverConnReady)
		return serverNotifier
	})

	serverAddr, err := tr.AddTCPServer(ctx(t), anyLocal(t), acceptor)
	require.NoError(t, err)

	clientNotifier := newWaitNotifier()
	c, err := tr.AddTCPClient(ctx(t), serverAddr, clientNotifier)
	require.NoError(t, err)

	select {
	case <-clientNotifier.connected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client connect")
	}
	select {
	case <-serverConnReady:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server accept")
	}

	require.NoError(t, c.Write([]byte("foo")))
	select {
	case <-clientNotifier.writable:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for client writable")
	}

	select {
	case <-serverNotifier.readable:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for server readable")
	}
	buf := make([]byte, 3)
	n := serverConn.Read(buf)
	require.Equal(t, 3, n)
	assert.Equal(t, "foo", string(buf))

	require.NoError(t, serverConn.Write([]byte("bar")))
	select {
	case <-clientNotifier.readable:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for client readable")
	}
	buf2 := make([]byte, 3)
	n2 := c.Read(buf2)
	require.Equal(t, 3, n2)
	assert.Equal(t, "bar", string(buf2))
}

type acceptorFunc func(*tcpconn.Conn) tcpconn.Notifier

func (f acceptorFunc) Accept(c *tcpconn.Conn) tcpconn.Notifier { return f(c) }

// Scenario 6: UDP addrinuse across two transceivers.
func TestScenario_UDPAddrInUseAcrossTransceivers(t *testing.T) {
	trA := newT(t)
	trB := newT(t)

	handle, err := trA.AddUDPSender(ctx(t), anyLocal(t))
	require.NoError(t, err)
	bound := handle.BindAddress()

	_, err = trB.AddUDPSender(ctx(t), bound)
	assert.Error(t, err)
}

func TestRemovePort_UnknownAddressIsNoop(t *testing.T) {
	tr := newT(t)
	err := tr.RemovePort(ctx(t), anyLocal(t))
	assert.NoError(t, err)
}

func TestNumPorts_BoundaryPortZeroAssignsRealPort(t *testing.T) {
	tr := newT(t)
	handle, err := tr.AddUDPSender(ctx(t), anyLocal(t))
	require.NoError(t, err)
	assert.NotZero(t, handle.BindAddress().Port())
}
