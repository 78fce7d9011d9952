package worker

import (
	"context"
	"time"

	"github.com/tzrikka/link/internal/logctx"
	"github.com/tzrikka/link/pkg/codec"
	"github.com/tzrikka/link/pkg/link"
	"github.com/tzrikka/link/pkg/retransmit"
	"github.com/tzrikka/link/pkg/transport"
)

// pollInterval is how long the listener sleeps between "no data yet" reads.
const pollInterval = 10 * time.Millisecond

// Retransmission optionally binds a [retransmit.Coordinator], in either
// role, to a worker, plus the raw-frame sender that replayed frames and
// synthesised RETX_REQUESTs are handed to (normally the requester's
// SendRaw).
type Retransmission struct {
	Coordinator *retransmit.Coordinator
	Binary      codec.Binary
	SendRaw     func(frame []byte) (bool, error)
}

// Listener drains a transport, deframes and decodes inbound bytes, and
// dispatches decoded values to an [link.EventSink]. It runs until its
// context is cancelled or the transport reports disconnection.
type Listener struct {
	codec   codec.Codec
	factory link.ReceiveValueFactory
	sink    link.EventSink
	retx    *Retransmission

	reqres transport.ReqRes
	pubsub transport.PubSub
}

// NewReqResListener returns a [Listener] over a request/response transport.
func NewReqResListener(t transport.ReqRes, c codec.Codec, factory link.ReceiveValueFactory, sink link.EventSink, retx *Retransmission) *Listener {
	return &Listener{codec: c, factory: factory, sink: sink, retx: retx, reqres: t}
}

// NewPubSubListener returns a [Listener] over a publish/subscribe
// transport. It subscribes to the bulk wildcard topic immediately.
func NewPubSubListener(t transport.PubSub, c codec.Codec, factory link.ReceiveValueFactory, sink link.EventSink, retx *Retransmission) *Listener {
	l := &Listener{codec: c, factory: factory, sink: sink, retx: retx, pubsub: t}
	_ = t.Subscribe(transport.BulkTopic, l.handleInbound)
	return l
}

// Run drains the transport until ctx is cancelled. For a pub/sub listener
// this merely blocks on ctx, since dispatch happens from the subscription
// callback.
func (l *Listener) Run(ctx context.Context) {
	logger := logctx.FromContext(ctx)

	if l.pubsub != nil {
		<-ctx.Done()
		logger.Debug("listener stopping (pub/sub)")
		return
	}

	for {
		select {
		case <-ctx.Done():
			logger.Debug("listener stopping")
			return
		default:
		}

		ok, data := l.reqres.Read()
		switch {
		case !ok:
			l.sink.OnFailedRecv(data)
			l.sink.OnDisconnected(data)
			return
		case len(data) == 0:
			time.Sleep(pollInterval)
			continue
		default:
			l.handleInbound("", data)
		}
	}
}

// handleInbound deframes chunk into zero or more frames and dispatches
// each. topic is empty for request/response transports.
func (l *Listener) handleInbound(_ string, chunk []byte) {
	var frames [][]byte
	if l.codec.IsFramed(chunk) {
		frames = [][]byte{chunk}
	} else {
		frames = l.codec.Split(chunk)
	}

	for _, frame := range frames {
		l.dispatchFrame(frame)
	}
}

func (l *Listener) dispatchFrame(frame []byte) {
	if l.retx != nil {
		l.dispatchBinaryFrame(frame)
		return
	}

	payload, err := l.codec.Decode(frame)
	if err != nil {
		l.sink.OnFailedRecv(frame)
		return
	}

	l.deliver(payload)
}

// dispatchBinaryFrame handles the retransmission-aware path. In client
// role, every inbound application frame's sync number feeds the gap
// detector. In server role, an inbound RETX_REQUEST is answered by
// replaying buffered frames verbatim; ordinary application frames (e.g.
// from a symmetric peer) still decode and deliver normally. Frames of
// either reserved type are consumed here and never delivered.
func (l *Listener) dispatchBinaryFrame(frame []byte) {
	frameType, syncNo, payload, err := l.retx.Binary.DecodeFrame(frame)
	if err != nil {
		l.sink.OnFailedRecv(frame)
		return
	}

	switch {
	case l.retx.Coordinator.Role() == retransmit.RoleServer && frameType == codec.RetxRequest:
		if l.retx.SendRaw == nil {
			return
		}
		for _, reply := range l.retx.Coordinator.HandleRetxRequest(payload) {
			_, _ = l.retx.SendRaw(reply)
		}
		return

	case frameType == codec.RetxRequest || frameType == codec.RetxResponse:
		return

	case l.retx.Coordinator.Role() == retransmit.RoleClient:
		if req := l.retx.Coordinator.HandleInbound(syncNo); req != nil && l.retx.SendRaw != nil {
			_, _ = l.retx.SendRaw(req)
		}
	}

	l.deliver(payload)
}

func (l *Listener) deliver(payload []byte) {
	if l.factory == nil {
		l.sink.OnReceived(rawReceiveValue(payload))
		return
	}

	value := l.factory()
	if err := value.FromBytes(payload); err != nil {
		l.sink.OnFailedRecv(payload)
		return
	}

	l.sink.OnReceived(value)
}

// rawReceiveValue wraps a decoded payload when no [link.ReceiveValueFactory]
// is configured, so the application still receives a [link.ReceiveValue].
type rawReceiveValue []byte

func (r rawReceiveValue) FromBytes(data []byte) error { return nil }
