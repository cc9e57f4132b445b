package bufpool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavecast/netio/internal/bufpool"
)

func TestBufferPool_FillAndRelease(t *testing.T) {
	p := bufpool.NewBufferPool(64)

	src := []byte("hello, world")
	buf := p.Fill(src, len(src))
	require.NotNil(t, buf)
	assert.Equal(t, src, buf.Bytes())
	assert.Equal(t, len(src), buf.Len())

	buf.Release()
}

func TestBuffer_RetainKeepsAlive(t *testing.T) {
	p := bufpool.NewBufferPool(32)
	buf := p.Fill([]byte("abc"), 3)

	buf.Retain() // two holders now
	buf.Release()
	// Still has one reference; contents must remain valid.
	assert.Equal(t, []byte("abc"), buf.Bytes())
	buf.Release()
}

func TestBufferPool_DefaultSize(t *testing.T) {
	p := bufpool.NewBufferPool(0)
	assert.Equal(t, bufpool.DefaultSize, p.Cap())
}

func TestBufferPool_ConcurrentGetPut(t *testing.T) {
	p := bufpool.NewBufferPool(128)
	done := make(chan struct{})
	const n = 50
	for i := 0; i < n; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			buf := p.Fill([]byte("payload"), len("payload"))
			buf.Release()
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}
}
