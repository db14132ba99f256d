// Package ring implements the single-producer/single-consumer byte ring
// shared between a mixer sink's AIO worker and the device DMA pump (spec
// §4.2.4, §5: "the ring-buffer between them is single-producer/
// single-consumer per direction and needs no additional lock beyond the
// ring's own acquire/release-block discipline"). A mutex stands in for
// that discipline here: the two sides never block each other for longer
// than a memcpy.
package ring

import "sync"

// Ring is a fixed-capacity circular byte buffer.
type Ring struct {
	mu    sync.Mutex
	data  []byte
	read  int
	write int
	used  int
}

// New allocates a Ring of the given byte capacity.
func New(capacity int) *Ring {
	return &Ring{data: make([]byte, capacity)}
}

func (r *Ring) Cap() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

func (r *Ring) Readable() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.used
}

func (r *Ring) Writable() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data) - r.used
}

// AcquireRead copies up to len(dst) bytes out of the ring, releasing the
// read block by advancing the read cursor. Returns bytes copied.
func (r *Ring) AcquireRead(dst []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(dst)
	if n > r.used {
		n = r.used
	}
	for i := 0; i < n; i++ {
		dst[i] = r.data[r.read]
		r.read = (r.read + 1) % len(r.data)
	}
	r.used -= n
	return n
}

// AcquireWrite copies up to len(src) bytes into the ring. Returns bytes
// accepted (less than len(src) if the ring is full).
func (r *Ring) AcquireWrite(src []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(src)
	free := len(r.data) - r.used
	if n > free {
		n = free
	}
	for i := 0; i < n; i++ {
		r.data[r.write] = src[i]
		r.write = (r.write + 1) % len(r.data)
	}
	r.used += n
	return n
}

// DropOldest discards n bytes from the front of the ring without
// copying them out (spec §4.4.2: input overrun "drop the oldest
// ring-buffer content in one shot").
func (r *Ring) DropOldest(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 {
		return 0
	}
	if n > r.used {
		n = r.used
	}
	r.read = (r.read + n) % len(r.data)
	r.used -= n
	return n
}
