// Package supervisor implements the per-link coordinator: a long-lived
// object that instantiates a transport from network parameters, owns the
// listener/requester worker pair and the outbound queue, drives
// connect-run-reconnect cycles, and reports connectedness to the
// application.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/sync/errgroup"

	"github.com/tzrikka/link/internal/logctx"
	"github.com/tzrikka/link/pkg/codec"
	"github.com/tzrikka/link/pkg/link"
	"github.com/tzrikka/link/pkg/metrics"
	"github.com/tzrikka/link/pkg/netparams"
	"github.com/tzrikka/link/pkg/queue"
	"github.com/tzrikka/link/pkg/registry"
	"github.com/tzrikka/link/pkg/retransmit"
	"github.com/tzrikka/link/pkg/transport"
	"github.com/tzrikka/link/pkg/worker"
)

const (
	// DefaultQueueSize is the outbound queue capacity when the
	// configuration doesn't specify one.
	DefaultQueueSize = 1000

	// runLoopTick is how long the lifecycle loop sleeps between retry-flag
	// checks while the link is healthy.
	runLoopTick = 100 * time.Microsecond

	// connectRetryPause is the pause between consecutive connect attempts.
	connectRetryPause = time.Millisecond
)

// DataPackage binds a codec and the application's value types to a link.
// It is the triple that parameterises a supervisor.
type DataPackage struct {
	// Codec frames outbound payloads and deframes inbound bytes. Required.
	Codec codec.Codec

	// SendType, when non-nil, makes Send reject values of any other
	// dynamic type with [link.ErrWrongSendType].
	SendType reflect.Type

	// ReceiveFactory, when non-nil, wraps each decoded inbound payload in
	// a fresh receive value before dispatch. When nil, payloads are
	// dispatched as raw byte values.
	ReceiveFactory link.ReceiveValueFactory
}

// RetxOptions enables the retransmission subsystem on a sequence-numbered
// binary link.
type RetxOptions struct {
	// Role selects which half of the protocol this supervisor plays.
	Role retransmit.Role

	// Binary is the sync-field-enabled binary codec the link uses. It
	// should be the same codec as the data package's.
	Binary codec.Binary

	// BufferCapacity bounds the server-side packet buffer. Zero means
	// [retransmit.DefaultBufferCapacity]. Ignored in client role.
	BufferCapacity int
}

// Config assembles everything a supervisor needs. Params, Registry, and
// Data.Codec are required; the rest is optional.
type Config struct {
	// Params is the network-parameter bag that selects and configures the
	// transport ("method", "host", "port", and so on).
	Params netparams.Params

	// Registry supplies the transport factories.
	Registry *registry.Registry

	// Data binds the codec and value types to this link.
	Data DataPackage

	// Events receives the lifecycle callbacks. Nil means callbacks are
	// dropped (lifecycle still runs).
	Events link.EventSink

	// QueueSize bounds the outbound queue. Zero means [DefaultQueueSize].
	QueueSize int

	// QueueWaitTime is the requester's dequeue timeout. Zero means
	// [worker.DefaultQueueWaitTime].
	QueueWaitTime time.Duration

	// Retransmission, when non-nil, enables gap detection and replay on
	// this link.
	Retransmission *RetxOptions

	// Metrics, when non-nil, records per-link frame counters.
	Metrics *metrics.Recorder
}

// Supervisor is the per-link coordinator. Create one with [New], start its
// lifecycle with [Supervisor.Start], and shut it down with
// [Supervisor.Stop]. All exported methods are safe for concurrent use.
type Supervisor struct {
	id  string
	cfg Config

	queue *queue.Queue

	serverGen *retransmit.SyncGen
	clientGen *retransmit.SyncGen
	buffer    *retransmit.Buffer

	mu       sync.Mutex
	reqRes   transport.ReqRes
	pubSub   transport.PubSub
	cancel   context.CancelFunc
	workers  *errgroup.Group
	started  bool
	finished chan struct{}

	retry atomic.Bool
	stop  atomic.Bool
}

// New validates cfg and returns an unstarted [Supervisor]. The outbound
// queue is created here, not on connect, so values may be enqueued before
// the link is first established and survive every reconnect.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Registry == nil {
		return nil, link.NewError(link.KindConfiguration, errors.New("nil transport registry"))
	}
	if cfg.Data.Codec == nil {
		return nil, link.NewError(link.KindConfiguration, errors.New("nil codec in data package"))
	}
	if missing := cfg.Params.RequireKeys("method"); len(missing) > 0 {
		return nil, link.NewError(link.KindConfiguration, fmt.Errorf("missing required parameters: %v", missing))
	}

	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}

	s := &Supervisor{
		id:       shortuuid.New(),
		cfg:      cfg,
		queue:    queue.New(size),
		finished: make(chan struct{}),
	}

	if retx := cfg.Retransmission; retx != nil {
		maxSync := retx.Binary.Config().MaxSync
		switch retx.Role {
		case retransmit.RoleServer:
			s.serverGen = retransmit.NewSyncGen(maxSync)
			s.buffer = retransmit.NewBuffer(retx.BufferCapacity)
		case retransmit.RoleClient:
			s.clientGen = retransmit.NewSyncGen(maxSync)
		}
	}

	s.retry.Store(true) // Not connected yet.
	return s, nil
}

// ID returns the supervisor's generated link ID, used in logs and metrics.
func (s *Supervisor) ID() string { return s.id }

// Start launches the lifecycle loop in the background. Calling Start more
// than once is a no-op.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true

	go s.run(logctx.WithLink(ctx, s.id))
}

// Send type-checks value against the data package, then enqueues it. It
// returns [link.ErrWrongSendType] on a type mismatch and [link.ErrQueueFull]
// when the outbound queue is at capacity; a full queue is back-pressure, not
// a failure of the link.
func (s *Supervisor) Send(value link.SendValue) error {
	if want := s.cfg.Data.SendType; want != nil && reflect.TypeOf(value) != want {
		return link.ErrWrongSendType
	}

	if !s.queue.Push(value) {
		return link.ErrQueueFull
	}
	return nil
}

// IsConnected reports whether the link is currently up: true iff the retry
// flag is cleared and shutdown hasn't been requested.
func (s *Supervisor) IsConnected() bool {
	return !s.retry.Load() && !s.stop.Load()
}

// Stop requests shutdown and waits for the lifecycle loop, both workers,
// and the transport to wind down. It must not be called from an event-sink
// callback. Safe to call more than once.
func (s *Supervisor) Stop() {
	s.stop.Store(true)

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if started {
		<-s.finished
	}
}

// run is the lifecycle loop: reconnect whenever the retry flag is set,
// otherwise idle briefly, until stop is requested. On exit it tears
// everything down.
func (s *Supervisor) run(ctx context.Context) {
	defer close(s.finished)
	logger := logctx.FromContext(ctx)

	for !s.stop.Load() {
		if ctx.Err() != nil {
			s.stop.Store(true)
			break
		}
		if s.retry.Load() {
			s.reconnect(ctx)
			continue
		}
		time.Sleep(runLoopTick)
	}

	s.stopCommunications(ctx)
	logger.Info("supervisor stopped")
}

// reconnect tears down whatever is left of the previous connection, then
// establishes a new one.
func (s *Supervisor) reconnect(ctx context.Context) {
	s.stopCommunications(ctx)
	s.startCommunication(ctx)
}

// startCommunication instantiates a transport from the network parameters,
// connects it (retrying until success or stop), starts the worker pair, and
// clears the retry flag.
func (s *Supervisor) startCommunication(ctx context.Context) {
	logger := logctx.FromContext(ctx)

	reqRes, pubSub, err := s.cfg.Registry.Create(s.cfg.Params)
	if err != nil {
		// A transport that can't even be instantiated is a configuration
		// error; retrying won't help, so surface it and stop.
		logger.Error("failed to create transport", slog.Any("error", err))
		s.stop.Store(true)
		return
	}

	for {
		if s.stop.Load() || ctx.Err() != nil {
			return
		}

		if reqRes != nil {
			err = reqRes.Connect(ctx)
		} else {
			err = pubSub.Connect(ctx)
		}
		if err == nil {
			break
		}

		logger.Debug("connect attempt failed", slog.Any("error", err))
		time.Sleep(connectRetryPause)
	}

	if s.serverGen != nil {
		s.serverGen.Reset()
	}
	if s.clientGen != nil {
		s.clientGen.Reset()
	}

	sink := &supervisorSink{s: s, logger: logger}
	listener, requester := s.buildWorkers(reqRes, pubSub, sink)

	workerCtx, cancel := context.WithCancel(logctx.InContext(context.Background(), logger))
	g := new(errgroup.Group)
	g.Go(func() error {
		listener.Run(workerCtx)
		return nil
	})
	g.Go(func() error {
		requester.Run(workerCtx)
		return nil
	})

	s.mu.Lock()
	s.reqRes = reqRes
	s.pubSub = pubSub
	s.cancel = cancel
	s.workers = g
	s.mu.Unlock()

	s.retry.Store(false)
	logger.Info("link connected")
}

// buildWorkers wires the listener and requester for the new connection,
// including the retransmission coordinator when one is configured. The gap
// detector is created fresh on every connect, since the peer's sequence
// restarts with the link.
func (s *Supervisor) buildWorkers(reqRes transport.ReqRes, pubSub transport.PubSub, sink link.EventSink) (*worker.Listener, *worker.Requester) {
	var requesterRetx, listenerRetx *worker.Retransmission
	if retx := s.cfg.Retransmission; retx != nil {
		var co *retransmit.Coordinator
		switch retx.Role {
		case retransmit.RoleServer:
			co = retransmit.NewServerCoordinator(retx.Binary, s.serverGen, s.buffer)
		case retransmit.RoleClient:
			detector := retransmit.NewGapDetector(retx.Binary.Config().MaxSync)
			co = retransmit.NewClientCoordinator(retx.Binary, detector, s.clientGen)
		}
		requesterRetx = &worker.Retransmission{Coordinator: co, Binary: retx.Binary}
		listenerRetx = &worker.Retransmission{Coordinator: co, Binary: retx.Binary}
	}

	c := s.cfg.Data.Codec
	factory := s.cfg.Data.ReceiveFactory

	if pubSub != nil {
		requester := worker.NewPubSubRequester(pubSub, c, s.queue, sink, s.cfg.QueueWaitTime)
		listener := worker.NewPubSubListener(pubSub, c, factory, sink, listenerRetx)
		return listener, requester
	}

	requester := worker.NewReqResRequester(reqRes, c, s.queue, sink, s.cfg.QueueWaitTime, requesterRetx)
	if listenerRetx != nil {
		listenerRetx.SendRaw = requester.SendRaw
	}
	listener := worker.NewReqResListener(reqRes, c, factory, sink, listenerRetx)
	return listener, requester
}

// stopCommunications winds down the worker pair and the transport, in that
// order. Each step is independent: a failure in one never prevents the
// others.
func (s *Supervisor) stopCommunications(ctx context.Context) {
	logger := logctx.FromContext(ctx)

	s.mu.Lock()
	cancel := s.cancel
	g := s.workers
	reqRes := s.reqRes
	pubSub := s.pubSub
	s.cancel = nil
	s.workers = nil
	s.reqRes = nil
	s.pubSub = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if g != nil {
		_ = g.Wait()
	}

	// The requester already disconnects on exit; this covers the case
	// where the workers never started, and is idempotent otherwise.
	if reqRes != nil {
		reqRes.Disconnect()
	}
	if pubSub != nil {
		pubSub.Disconnect()
	}

	if g != nil {
		logger.Debug("link communications stopped")
	}
}
