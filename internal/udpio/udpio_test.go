package udpio_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavecast/netio/internal/address"
	"github.com/wavecast/netio/internal/bufpool"
	"github.com/wavecast/netio/internal/ids"
	"github.com/wavecast/netio/internal/udpio"
)

type recordingWriter struct {
	mu       sync.Mutex
	received [][]byte
	got      chan struct{}
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{got: make(chan struct{}, 16)}
}

func (w *recordingWriter) Write(buf *bufpool.Buffer, _ address.Address) {
	w.mu.Lock()
	w.received = append(w.received, append([]byte(nil), buf.Bytes()...))
	w.mu.Unlock()
	select {
	case w.got <- struct{}{}:
	default:
	}
}

type recordingHandler struct {
	closed atomic.Int32
}

func (h *recordingHandler) HandleClosed(ids.ID) {
	h.closed.Add(1)
}

func localAddr(t *testing.T) address.Address {
	t.Helper()
	a, err := address.Parse(address.IPv4, "127.0.0.1", 0)
	require.NoError(t, err)
	return a
}

func TestReceiver_DeliversDatagram(t *testing.T) {
	w := newRecordingWriter()
	h := &recordingHandler{}
	r, err := udpio.NewReceiver(localAddr(t), w, nil, h, nil)
	require.NoError(t, err)
	defer r.AsyncClose()

	require.NotEqual(t, uint16(0), r.BindAddress().Port())

	s, err := udpio.NewSender(localAddr(t), h, nil)
	require.NoError(t, err)
	defer s.AsyncClose()

	pool := bufpool.NewBufferPool(64)
	buf := pool.Fill([]byte("hello"), 5)
	require.NoError(t, s.Write(context.Background(), buf, r.BindAddress()))
	buf.Release()

	select {
	case <-w.got:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for datagram")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.received, 1)
	assert.Equal(t, "hello", string(w.received[0]))
}

func TestReceiver_AsyncCloseInvokesHandleClosed(t *testing.T) {
	w := newRecordingWriter()
	h := &recordingHandler{}
	r, err := udpio.NewReceiver(localAddr(t), w, nil, h, nil)
	require.NoError(t, err)

	r.AsyncClose()

	require.Eventually(t, func() bool {
		return h.closed.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSender_WriteAfterCloseFails(t *testing.T) {
	h := &recordingHandler{}
	s, err := udpio.NewSender(localAddr(t), h, nil)
	require.NoError(t, err)

	s.AsyncClose()

	require.Eventually(t, func() bool {
		return h.closed.Load() == 1
	}, time.Second, 10*time.Millisecond)

	pool := bufpool.NewBufferPool(16)
	buf := pool.Fill([]byte("x"), 1)
	defer buf.Release()

	err = s.Write(context.Background(), buf, localAddr(t))
	assert.ErrorIs(t, err, udpio.ErrSenderClosed)
}

func TestBindUDP_PortZeroAssignsRealPort(t *testing.T) {
	h := &recordingHandler{}
	w := newRecordingWriter()
	r, err := udpio.NewReceiver(localAddr(t), w, nil, h, nil)
	require.NoError(t, err)
	defer r.AsyncClose()

	assert.NotZero(t, r.BindAddress().Port())
}
