package retransmit

import (
	"sync"

	"github.com/tzrikka/link/pkg/codec"
)

// Role selects which half of the retransmission protocol a [Coordinator]
// plays for its supervisor.
type Role int

const (
	// RoleServer buffers outbound frames and replays them on request.
	RoleServer Role = iota
	// RoleClient detects gaps in inbound frames and requests replays.
	RoleClient
)

// MaxRetxPayload is the largest number of missing sync numbers a single
// RETX_REQUEST frame may carry.
const MaxRetxPayload = 64

// Coordinator binds a [SyncGen], [Buffer], and [GapDetector] to a binary
// codec and a supervisor's transport, implementing the two reserved frame
// types. Exactly one of its two roles is active per instance.
type Coordinator struct {
	role  Role
	codec codec.Binary

	gen    *SyncGen // server role: assigns sync numbers to outbound frames
	buffer *Buffer  // server role: remembers recently-sent frames

	detector  *GapDetector // client role: tracks arrival gaps
	clientGen *SyncGen     // client role: sync numbers for its own RETX_REQUESTs

	mu      sync.Mutex
	pending map[byte]struct{} // client role: requested but not yet re-delivered
}

// NewServerCoordinator returns a [Coordinator] in [RoleServer]: it assigns
// sync numbers to outbound application frames, remembers them in buffer,
// and replays them on RETX_REQUEST.
func NewServerCoordinator(c codec.Binary, gen *SyncGen, buffer *Buffer) *Coordinator {
	return &Coordinator{role: RoleServer, codec: c, gen: gen, buffer: buffer}
}

// NewClientCoordinator returns a [Coordinator] in [RoleClient]: it feeds
// inbound sync numbers to detector and synthesises RETX_REQUEST frames
// using its own generator, never one shared with a server-role peer.
func NewClientCoordinator(c codec.Binary, detector *GapDetector, gen *SyncGen) *Coordinator {
	return &Coordinator{
		role:      RoleClient,
		codec:     c,
		detector:  detector,
		clientGen: gen,
		pending:   make(map[byte]struct{}),
	}
}

// Role reports the coordinator's role.
func (co *Coordinator) Role() Role { return co.role }

// EncodeOutbound assigns the next sync number to payload, encodes it as a
// binary application frame (frame type 0), and records it in the send-side
// buffer. Valid only in [RoleServer].
func (co *Coordinator) EncodeOutbound(payload []byte) []byte {
	syncNo := co.gen.Next()
	frame := co.codec.EncodeFrame(0, syncNo, payload)
	co.buffer.Add(syncNo, frame)
	return frame
}

// HandleRetxRequest decodes a RETX_REQUEST payload (a dense sequence of
// missing sync-number bytes) and returns the buffered frames to replay, in
// request order. Sync numbers evicted from the buffer are silently
// skipped. Valid only in [RoleServer].
func (co *Coordinator) HandleRetxRequest(payload []byte) [][]byte {
	var replies [][]byte
	for _, syncNo := range payload {
		if frame, ok := co.buffer.Get(syncNo); ok {
			replies = append(replies, frame)
		}
	}
	return replies
}

// HandleInbound feeds an inbound application frame's sync number to the
// gap detector and, when a gap is found, returns a ready-to-send
// RETX_REQUEST frame for the missing numbers. It returns nil when there is
// no gap to report. A frame whose sync number was previously requested is
// a retransmit arriving late: it passes through without touching the
// detector, so an out-of-order re-delivery never registers as a new gap.
// Valid only in [RoleClient].
func (co *Coordinator) HandleInbound(syncNo byte) []byte {
	co.mu.Lock()
	if _, requested := co.pending[syncNo]; requested {
		delete(co.pending, syncNo)
		co.mu.Unlock()
		return nil
	}
	co.mu.Unlock()

	missing := co.detector.Detect(syncNo)
	if len(missing) == 0 {
		return nil
	}

	if len(missing) > MaxRetxPayload {
		missing = missing[:MaxRetxPayload]
	}

	co.mu.Lock()
	for _, m := range missing {
		co.pending[m] = struct{}{}
	}
	co.mu.Unlock()

	reqSync := co.clientGen.Next()
	return co.codec.EncodeFrame(codec.RetxRequest, reqSync, missing)
}
