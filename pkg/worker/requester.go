package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/tzrikka/link/internal/logctx"
	"github.com/tzrikka/link/pkg/codec"
	"github.com/tzrikka/link/pkg/link"
	"github.com/tzrikka/link/pkg/queue"
	"github.com/tzrikka/link/pkg/retransmit"
	"github.com/tzrikka/link/pkg/transport"
)

// DefaultQueueWaitTime is the default dequeue timeout between stop-flag
// checks.
const DefaultQueueWaitTime = 100 * time.Millisecond

// Requester drains an outbound [queue.Queue], frames each value, and hands
// it to a transport. It runs until its context is cancelled.
type Requester struct {
	codec         codec.Codec
	queue         *queue.Queue
	sink          link.EventSink
	queueWaitTime time.Duration
	retx          *Retransmission

	reqres transport.ReqRes
	pubsub transport.PubSub
}

// NewReqResRequester returns a [Requester] over a request/response transport.
// A non-nil retx with a server-role coordinator makes every outbound frame
// sync-numbered and buffered for later replay.
func NewReqResRequester(t transport.ReqRes, c codec.Codec, q *queue.Queue, sink link.EventSink, queueWaitTime time.Duration, retx *Retransmission) *Requester {
	return &Requester{codec: c, queue: q, sink: sink, queueWaitTime: orDefault(queueWaitTime), retx: retx, reqres: t}
}

// NewPubSubRequester returns a [Requester] over a publish/subscribe transport.
func NewPubSubRequester(t transport.PubSub, c codec.Codec, q *queue.Queue, sink link.EventSink, queueWaitTime time.Duration) *Requester {
	return &Requester{codec: c, queue: q, sink: sink, queueWaitTime: orDefault(queueWaitTime), pubsub: t}
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultQueueWaitTime
	}
	return d
}

// Run dequeues and sends until ctx is cancelled, then disconnects the
// transport exactly once.
func (r *Requester) Run(ctx context.Context) {
	logger := logctx.FromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			r.disconnect(logger)
			return
		default:
		}

		value, ok := r.queue.Pop(r.queueWaitTime)
		if !ok {
			continue
		}

		r.send(value)
	}
}

func (r *Requester) send(value link.SendValue) {
	payload := value.Encode()

	var frame []byte
	if r.retx != nil && r.retx.Coordinator.Role() == retransmit.RoleServer {
		frame = r.retx.Coordinator.EncodeOutbound(payload)
	} else {
		frame = r.codec.Encode(payload)
	}

	var outcome Outcome
	if r.pubsub != nil {
		outcome = r.sendPubSub(value, frame)
	} else {
		ok, err := r.reqres.Send(frame)
		outcome = classifySend(ok, err)
	}

	switch outcome.Kind {
	case OutcomeSent:
		r.sink.OnSent(value)
	case OutcomeDisconnected:
		r.sink.OnDisconnected(nil)
	default:
		r.sink.OnFailedSend(value)
	}
}

func (r *Requester) sendPubSub(value link.SendValue, frame []byte) Outcome {
	topical, ok := value.(link.TopicSendValue)
	if !ok || topical.Topic() == "" {
		return Outcome{Kind: OutcomeSoftFailure, Err: link.ErrNoTopic}
	}

	sent, err := r.pubsub.Publish(topical.Topic(), frame, 0, false)
	return classifySend(sent, err)
}

// SendRaw hands frame directly to the transport, bypassing the codec and
// the queue. The retransmission coordinator uses this to replay buffered
// frames and to dispatch the RETX_REQUEST frames it synthesises.
func (r *Requester) SendRaw(frame []byte) (bool, error) {
	if r.pubsub != nil {
		return false, link.NewError(link.KindConfiguration, nil)
	}
	return r.reqres.Send(frame)
}

func (r *Requester) disconnect(logger *slog.Logger) {
	if r.reqres != nil {
		r.reqres.Disconnect()
	}
	if r.pubsub != nil {
		r.pubsub.Disconnect()
	}
	logger.Debug("requester terminated")
}
