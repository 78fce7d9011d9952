package supervisor

import (
	"log/slog"
	"time"

	"github.com/tzrikka/link/pkg/link"
)

// supervisorSink sits between the workers and the application's event sink.
// It forwards every callback, records per-link metrics, turns a worker's
// disconnect observation into the supervisor's retry flag, and contains
// panics raised by application callbacks so a misbehaving handler never
// kills a worker.
type supervisorSink struct {
	s      *Supervisor
	logger *slog.Logger
}

func (k *supervisorSink) OnSent(value link.SendValue) {
	k.count(k.s.cfg.Metrics.CountOutboundFrame, "sent")
	k.forward(func(sink link.EventSink) { sink.OnSent(value) })
}

func (k *supervisorSink) OnFailedSend(value link.SendValue) {
	k.count(k.s.cfg.Metrics.CountOutboundFrame, "failed")
	k.forward(func(sink link.EventSink) { sink.OnFailedSend(value) })
}

func (k *supervisorSink) OnReceived(value link.ReceiveValue) {
	k.count(k.s.cfg.Metrics.CountInboundFrame, "received")
	k.forward(func(sink link.EventSink) { sink.OnReceived(value) })
}

func (k *supervisorSink) OnFailedRecv(raw []byte) {
	k.count(k.s.cfg.Metrics.CountInboundFrame, "failed")
	k.forward(func(sink link.EventSink) { sink.OnFailedRecv(raw) })
}

func (k *supervisorSink) OnDisconnected(raw []byte) {
	k.s.retry.Store(true)
	k.logger.Warn("link disconnected")
	k.forward(func(sink link.EventSink) { sink.OnDisconnected(raw) })
}

func (k *supervisorSink) count(fn func(*slog.Logger, time.Time, string, string), outcome string) {
	if k.s.cfg.Metrics == nil {
		return
	}
	fn(k.logger, time.Now().UTC(), k.s.id, outcome)
}

func (k *supervisorSink) forward(call func(link.EventSink)) {
	sink := k.s.cfg.Events
	if sink == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			k.logger.Error("panic in event callback", slog.Any("panic", r))
		}
	}()

	call(sink)
}
