package retransmit

import "sync"

// DefaultBufferCapacity is the default packet buffer size.
const DefaultBufferCapacity = 1000

// Buffer is the send-side bounded ring of recently-sent encoded frames,
// keyed by sync number. It is owned exclusively by the supervisor's
// server-role coordinator; Add is called from the requester goroutine, Get
// from the listener goroutine handling a RETX_REQUEST, so it mutex-protects
// its state.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	order    []byte // insertion order, oldest first
	frames   map[byte][]byte
}

// NewBuffer returns a [Buffer] with the given capacity. A non-positive
// capacity defaults to [DefaultBufferCapacity].
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &Buffer{
		capacity: capacity,
		frames:   make(map[byte][]byte),
	}
}

// Add inserts frame under syncNo. A duplicate syncNo is a no-op, preserving
// the first insertion. When at capacity, the oldest entry is evicted first.
func (b *Buffer) Add(syncNo byte, frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.frames[syncNo]; exists {
		return
	}

	if len(b.order) >= b.capacity {
		oldest := b.order[0]
		b.order = b.order[1:]
		delete(b.frames, oldest)
	}

	b.order = append(b.order, syncNo)
	b.frames[syncNo] = frame
}

// Get returns the buffered frame for syncNo, if still present.
func (b *Buffer) Get(syncNo byte) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	frame, ok := b.frames[syncNo]
	return frame, ok
}

// Len reports the number of frames currently buffered.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}
