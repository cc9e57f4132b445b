package bufpool

import "sync/atomic"

// DefaultSize is the capacity of a pooled buffer, sized for the largest
// media/control datagram the transceiver is expected to move in one
// recvfrom/read call.
const DefaultSize = 2048

// Buffer is a fixed-capacity, reference-counted byte buffer obtained from a
// BufferPool. Its lifetime extends while any holder retains a reference
// (spec.md §3: "lifetime = longest holder"); the backing array is returned
// to the pool only when the last reference is released.
type Buffer struct {
	data []byte
	refs atomic.Int32
	pool *BufferPool
}

// Bytes returns the buffer's current contents. Callers must not retain the
// slice beyond the buffer's lifetime (i.e. past their matching Release).
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the number of valid bytes currently held.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Retain increments the reference count and returns the buffer, so a
// collaborator that wants to keep a packet beyond the call that delivered
// it can do so without a separate copy.
func (b *Buffer) Retain() *Buffer {
	b.refs.Add(1)
	return b
}

// Release decrements the reference count. When it reaches zero the buffer
// is returned to its pool and must not be touched again.
func (b *Buffer) Release() {
	if b.refs.Add(-1) == 0 {
		b.pool.put(b)
	}
}

// BufferPool hands out fixed-capacity reference-counted buffers backed by
// this package's generic Pool wrapper around sync.Pool.
type BufferPool struct {
	size int
	raw  *Pool[*Buffer]
}

// NewBufferPool creates a pool of buffers with the given per-buffer capacity.
// A size <= 0 uses DefaultSize.
func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = DefaultSize
	}
	bp := &BufferPool{size: size}
	bp.raw = New(func() *Buffer {
		return &Buffer{data: make([]byte, bp.size), pool: bp}
	})
	return bp
}

// Get acquires a buffer with a single reference held by the caller and its
// contents truncated to zero length, ready to be filled up to cap().
func (p *BufferPool) Get() *Buffer {
	buf := p.raw.Get()
	buf.refs.Store(1)
	buf.data = buf.data[:0]
	return buf
}

// Fill acquires a buffer and copies n bytes from src[:n] into it. This is
// the common path for a read/recv callback that was handed a byte count by
// the OS and needs an owned, poolable copy to hand to a collaborator.
func (p *BufferPool) Fill(src []byte, n int) *Buffer {
	buf := p.Get()
	buf.data = append(buf.data[:0], src[:n]...)
	return buf
}

// Cap returns the fixed capacity of buffers minted by this pool.
func (p *BufferPool) Cap() int {
	return p.size
}

func (p *BufferPool) put(b *Buffer) {
	b.data = b.data[:cap(b.data)]
	p.raw.Put(b)
}
