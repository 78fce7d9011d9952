// Package retransmit implements the retransmission subsystem: a
// sync-number generator, a send-side packet buffer, a receive-side gap
// detector, and a coordinator that binds the three to a supervisor via the
// two reserved retransmission frame types.
package retransmit

import "sync"

// SyncGen is a monotonic, wrap-around sync-number counter. It starts at 0,
// so the emitted sequence is 1, 2, … N, 0, 1, … for N == MaxSync. It is
// safe for concurrent use, though in practice only one goroutine ever
// calls Next on a given instance.
type SyncGen struct {
	mu      sync.Mutex
	n       byte
	maxSync byte
}

// NewSyncGen returns a [SyncGen] wrapping at maxSync (inclusive). A zero
// maxSync defaults to 250.
func NewSyncGen(maxSync byte) *SyncGen {
	if maxSync == 0 {
		maxSync = 250
	}
	return &SyncGen{maxSync: maxSync}
}

// Next advances and returns the next sync number.
func (g *SyncGen) Next() byte {
	g.mu.Lock()
	defer g.mu.Unlock()

	modulus := int(g.maxSync) + 1 // In int: maxSync 255 must not wrap to a zero modulus.
	g.n = byte((int(g.n) + 1) % modulus)
	return g.n
}

// Reset returns the generator to its initial state. The supervisor calls
// this on reconnect for links that require sequencing.
func (g *SyncGen) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}

// MaxSync returns the largest sync number the generator emits before it
// wraps back to 0.
func (g *SyncGen) MaxSync() byte { return g.maxSync }
