package supervisor

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tzrikka/link/pkg/codec"
	"github.com/tzrikka/link/pkg/link"
	"github.com/tzrikka/link/pkg/netparams"
	"github.com/tzrikka/link/pkg/registry"
	"github.com/tzrikka/link/pkg/retransmit"
	"github.com/tzrikka/link/pkg/transport"
)

type stringValue string

func (v stringValue) Encode() []byte { return []byte(v) }

type intValue int

func (v intValue) Encode() []byte { return nil }

type byteValue struct{ data []byte }

func (v *byteValue) FromBytes(data []byte) error {
	v.data = append([]byte(nil), data...)
	return nil
}

func newByteValue() link.ReceiveValue { return &byteValue{} }

// testSink records callbacks and counts disconnects.
type testSink struct {
	mu           sync.Mutex
	sent         []string
	received     [][]byte
	disconnected int
	panicOnRecv  bool
}

func (s *testSink) OnSent(v link.SendValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, string(v.Encode()))
}

func (s *testSink) OnFailedSend(_ link.SendValue) {}

func (s *testSink) OnReceived(v link.ReceiveValue) {
	s.mu.Lock()
	s.received = append(s.received, v.(*byteValue).data)
	panicking := s.panicOnRecv
	s.panicOnRecv = false
	s.mu.Unlock()

	if panicking {
		panic("application handler misbehaved")
	}
}

func (s *testSink) OnFailedRecv(_ []byte) {}

func (s *testSink) OnDisconnected(_ []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected++
}

func (s *testSink) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *testSink) receivedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

// echoTransport loops every sent frame back to its own reader.
type echoTransport struct {
	mu    sync.Mutex
	inbox [][]byte
	gate  chan struct{} // when non-nil, Send blocks until closed
	lost  atomic.Bool
}

func (e *echoTransport) Connect(_ context.Context) error { return nil }
func (e *echoTransport) Disconnect()                     {}

func (e *echoTransport) Send(frame []byte) (bool, error) {
	if e.gate != nil {
		<-e.gate
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.inbox = append(e.inbox, append([]byte(nil), frame...))
	return true, nil
}

func (e *echoTransport) Read() (bool, []byte) {
	if e.lost.Load() {
		return false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.inbox) == 0 {
		return true, nil
	}

	chunk := e.inbox[0]
	e.inbox = e.inbox[1:]
	return true, chunk
}

func echoRegistry(t *echoTransport) *registry.Registry {
	r := registry.New()
	r.RegisterReqRes("echo", func(_ netparams.Params) (transport.ReqRes, error) {
		return t, nil
	})
	return r
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEchoRoundTrip(t *testing.T) {
	sink := &testSink{}
	s, err := New(Config{
		Params:   netparams.New(map[string]string{"method": "echo"}),
		Registry: echoRegistry(&echoTransport{}),
		Data:     DataPackage{Codec: codec.NewSentinel(), ReceiveFactory: newByteValue},
		Events:   sink,
	})
	if err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, "connection", s.IsConnected)

	if err := s.Send(stringValue("hello")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	waitFor(t, "echoed value", func() bool { return sink.receivedCount() == 1 })

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if got := sink.sent; len(got) != 1 || got[0] != "hello" {
		t.Errorf("sent = %v, want [hello]", got)
	}
	if !bytes.Equal(sink.received[0], []byte("hello")) {
		t.Errorf("received = %q, want %q", sink.received[0], "hello")
	}
}

func TestSendTypeCheck(t *testing.T) {
	s, err := New(Config{
		Params:   netparams.New(map[string]string{"method": "echo"}),
		Registry: echoRegistry(&echoTransport{}),
		Data: DataPackage{
			Codec:    codec.NewSentinel(),
			SendType: reflect.TypeOf(stringValue("")),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Send(intValue(7)); !errors.Is(err, link.ErrWrongSendType) {
		t.Errorf("Send() error = %v, want %v", err, link.ErrWrongSendType)
	}
	if err := s.Send(stringValue("ok")); err != nil {
		t.Errorf("Send() error = %v, want nil", err)
	}
}

// A full queue rejects new values without blocking, and the accepted
// ones drain in order once the transport unblocks.
func TestFullQueueBackPressure(t *testing.T) {
	gate := make(chan struct{})
	echo := &echoTransport{gate: gate}
	sink := &testSink{}

	s, err := New(Config{
		Params:    netparams.New(map[string]string{"method": "echo"}),
		Registry:  echoRegistry(echo),
		Data:      DataPackage{Codec: codec.NewSentinel(), ReceiveFactory: newByteValue},
		Events:    sink,
		QueueSize: 5,
	})
	if err != nil {
		t.Fatal(err)
	}

	values := []string{"v0", "v1", "v2", "v3", "v4", "v5", "v6"}
	var accepted, rejected []string
	for _, v := range values {
		if err := s.Send(stringValue(v)); err != nil {
			if !errors.Is(err, link.ErrQueueFull) {
				t.Fatalf("Send(%s) error = %v, want %v", v, err, link.ErrQueueFull)
			}
			rejected = append(rejected, v)
			continue
		}
		accepted = append(accepted, v)
	}

	if len(accepted) != 5 || len(rejected) != 2 {
		t.Fatalf("accepted %d, rejected %d, want 5 and 2", len(accepted), len(rejected))
	}

	s.Start(context.Background())
	defer s.Stop()
	close(gate)

	waitFor(t, "all deliveries", func() bool { return sink.sentCount() == 5 })

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i, want := range accepted {
		if sink.sent[i] != want {
			t.Errorf("sent[%d] = %q, want %q", i, sink.sent[i], want)
		}
	}
}

// A lost read flips the supervisor into its retry state, a value
// enqueued while disconnected is delivered after the link recovers.
func TestDisconnectTriggersRetryAndQueueSurvives(t *testing.T) {
	first := &echoTransport{}
	second := &echoTransport{}
	reconnectGate := make(chan struct{})

	var connects atomic.Int32
	r := registry.New()
	r.RegisterReqRes("flaky", func(_ netparams.Params) (transport.ReqRes, error) {
		if connects.Add(1) == 1 {
			return first, nil
		}
		<-reconnectGate
		return second, nil
	})

	sink := &testSink{}
	s, err := New(Config{
		Params:   netparams.New(map[string]string{"method": "flaky"}),
		Registry: r,
		Data:     DataPackage{Codec: codec.NewSentinel(), ReceiveFactory: newByteValue},
		Events:   sink,
	})
	if err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, "initial connection", s.IsConnected)

	first.lost.Store(true)
	waitFor(t, "retry state", func() bool { return !s.IsConnected() })

	if err := s.Send(stringValue("queued-while-down")); err != nil {
		t.Fatalf("Send() while disconnected error = %v", err)
	}

	close(reconnectGate)
	waitFor(t, "reconnection", s.IsConnected)
	waitFor(t, "delivery after recovery", func() bool { return sink.sentCount() == 1 })

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.sent[0] != "queued-while-down" {
		t.Errorf("sent = %v, want [queued-while-down]", sink.sent)
	}
	if sink.disconnected == 0 {
		t.Error("the application was never told about the disconnect")
	}
}

// Shutdown completes within a small multiple of the worker wait times.
func TestStopIsBounded(t *testing.T) {
	s, err := New(Config{
		Params:   netparams.New(map[string]string{"method": "echo"}),
		Registry: echoRegistry(&echoTransport{}),
		Data:     DataPackage{Codec: codec.NewSentinel(), ReceiveFactory: newByteValue},
	})
	if err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	waitFor(t, "connection", s.IsConnected)

	start := time.Now()
	s.Stop()
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Stop() took %v, want well under 2s", elapsed)
	}

	if s.IsConnected() {
		t.Error("IsConnected() = true after Stop()")
	}
}

func TestPanicInCallbackDoesNotKillWorkers(t *testing.T) {
	sink := &testSink{panicOnRecv: true}
	s, err := New(Config{
		Params:   netparams.New(map[string]string{"method": "echo"}),
		Registry: echoRegistry(&echoTransport{}),
		Data:     DataPackage{Codec: codec.NewSentinel(), ReceiveFactory: newByteValue},
		Events:   sink,
	})
	if err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()
	waitFor(t, "connection", s.IsConnected)

	if err := s.Send(stringValue("first")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first (panicking) delivery", func() bool { return sink.receivedCount() == 1 })

	if err := s.Send(stringValue("second")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "second delivery", func() bool { return sink.receivedCount() == 2 })
}

func TestNewConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "nil registry", cfg: Config{
			Params: netparams.New(map[string]string{"method": "echo"}),
			Data:   DataPackage{Codec: codec.NewSentinel()},
		}},
		{name: "nil codec", cfg: Config{
			Params:   netparams.New(map[string]string{"method": "echo"}),
			Registry: registry.New(),
		}},
		{name: "missing method", cfg: Config{
			Params:   netparams.New(map[string]string{}),
			Registry: registry.New(),
			Data:     DataPackage{Codec: codec.NewSentinel()},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New() error = nil, want configuration error")
			}
		})
	}
}

// pairEnd is one half of an in-memory duplex link; Send delivers into the
// peer's inbox, optionally dropping frames in transit.
type pairEnd struct {
	mu    sync.Mutex
	inbox [][]byte
	peer  *pairEnd
	drop  func(frame []byte) bool
}

func (e *pairEnd) Connect(_ context.Context) error { return nil }
func (e *pairEnd) Disconnect()                     {}

func (e *pairEnd) Send(frame []byte) (bool, error) {
	if e.drop != nil && e.drop(frame) {
		return true, nil
	}

	e.peer.mu.Lock()
	defer e.peer.mu.Unlock()
	e.peer.inbox = append(e.peer.inbox, append([]byte(nil), frame...))
	return true, nil
}

func (e *pairEnd) Read() (bool, []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.inbox) == 0 {
		return true, nil
	}

	chunk := e.inbox[0]
	e.inbox = e.inbox[1:]
	return true, chunk
}

// A server-role supervisor's dropped frame is recovered through a
// RETX_REQUEST round trip, and every payload reaches the client exactly
// once.
func TestRetransmissionRecovery(t *testing.T) {
	bin := codec.NewBinary(codec.BinaryConfig{
		Head:           []byte{0xAA, 0x55},
		Tail:           []byte{0x0D, 0x0A},
		UseLengthField: true,
		UseSyncField:   true,
	})

	serverEnd := &pairEnd{}
	clientEnd := &pairEnd{}
	serverEnd.peer = clientEnd
	clientEnd.peer = serverEnd

	var dropped atomic.Bool
	serverEnd.drop = func(frame []byte) bool {
		frameType, syncNo, _, err := bin.DecodeFrame(frame)
		if err != nil || frameType != 0 || syncNo != 3 {
			return false
		}
		return dropped.CompareAndSwap(false, true)
	}

	r := registry.New()
	r.RegisterReqRes("server-end", func(_ netparams.Params) (transport.ReqRes, error) {
		return serverEnd, nil
	})
	r.RegisterReqRes("client-end", func(_ netparams.Params) (transport.ReqRes, error) {
		return clientEnd, nil
	})

	serverSink := &testSink{}
	server, err := New(Config{
		Params:         netparams.New(map[string]string{"method": "server-end"}),
		Registry:       r,
		Data:           DataPackage{Codec: bin, ReceiveFactory: newByteValue},
		Events:         serverSink,
		Retransmission: &RetxOptions{Role: retransmit.RoleServer, Binary: bin},
	})
	if err != nil {
		t.Fatal(err)
	}

	clientSink := &testSink{}
	client, err := New(Config{
		Params:         netparams.New(map[string]string{"method": "client-end"}),
		Registry:       r,
		Data:           DataPackage{Codec: bin, ReceiveFactory: newByteValue},
		Events:         clientSink,
		Retransmission: &RetxOptions{Role: retransmit.RoleClient, Binary: bin},
	})
	if err != nil {
		t.Fatal(err)
	}

	server.Start(context.Background())
	defer server.Stop()
	waitFor(t, "server connection", server.IsConnected)

	payloads := []string{"payload_0", "payload_1", "payload_2", "payload_3", "payload_4"}
	for _, p := range payloads {
		if err := server.Send(stringValue(p)); err != nil {
			t.Fatal(err)
		}
	}

	// All five frames are on the wire (sync 3's dropped) before the client
	// starts reading, so the replay can only trail the surviving frames.
	waitFor(t, "server-side sends", func() bool { return serverSink.sentCount() == 5 })
	if !dropped.Load() {
		t.Fatal("the frame with sync 3 was never dropped; the scenario did not run")
	}

	client.Start(context.Background())
	defer client.Stop()
	waitFor(t, "client connection", client.IsConnected)

	waitFor(t, "all five recovered deliveries", func() bool { return clientSink.receivedCount() == 5 })

	clientSink.mu.Lock()
	defer clientSink.mu.Unlock()

	// Surviving frames arrive in send order; the dropped payload is
	// re-delivered last, after the gap is observed at sync 4.
	want := []string{"payload_0", "payload_1", "payload_3", "payload_4", "payload_2"}
	for i, w := range want {
		if got := string(clientSink.received[i]); got != w {
			t.Errorf("received[%d] = %q, want %q", i, got, w)
		}
	}
}
