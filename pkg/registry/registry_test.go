package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/tzrikka/link/pkg/link"
	"github.com/tzrikka/link/pkg/netparams"
	"github.com/tzrikka/link/pkg/transport"
)

func TestCreateSelectsByMethod(t *testing.T) {
	r := New()
	r.RegisterReqRes("tcp", func(_ netparams.Params) (transport.ReqRes, error) {
		return fakeReqRes{}, nil
	})
	r.RegisterPubSub("mqtt", func(_ netparams.Params) (transport.PubSub, error) {
		return fakePubSub{}, nil
	})

	tests := []struct {
		name       string
		method     string
		wantReqRes bool
		wantPubSub bool
	}{
		{name: "req/res method", method: "tcp", wantReqRes: true},
		{name: "pub/sub method", method: "mqtt", wantPubSub: true},
		{name: "case-insensitive", method: "TCP", wantReqRes: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, ps, err := r.Create(netparams.New(map[string]string{"method": tt.method}))
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if (rr != nil) != tt.wantReqRes {
				t.Errorf("Create() req/res = %v, want %v", rr != nil, tt.wantReqRes)
			}
			if (ps != nil) != tt.wantPubSub {
				t.Errorf("Create() pub/sub = %v, want %v", ps != nil, tt.wantPubSub)
			}
		})
	}
}

func TestCreateConfigurationErrors(t *testing.T) {
	r := New()

	tests := []struct {
		name   string
		params map[string]string
	}{
		{name: "missing method", params: map[string]string{}},
		{name: "unknown method", params: map[string]string{"method": "carrier-pigeon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := r.Create(netparams.New(tt.params))
			if err == nil {
				t.Fatal("Create() error = nil, want configuration error")
			}
			if kind, ok := link.KindOf(err); !ok || kind != link.KindConfiguration {
				t.Errorf("Create() error kind = %v, want %v", kind, link.KindConfiguration)
			}
		})
	}
}

func TestFactoryErrorPropagates(t *testing.T) {
	wantErr := errors.New("missing host")

	r := New()
	r.RegisterReqRes("tcp", func(_ netparams.Params) (transport.ReqRes, error) {
		return nil, wantErr
	})

	_, _, err := r.Create(netparams.New(map[string]string{"method": "tcp"}))
	if !errors.Is(err, wantErr) {
		t.Errorf("Create() error = %v, want %v", err, wantErr)
	}
}

type fakeReqRes struct{}

func (fakeReqRes) Connect(_ context.Context) error { return nil }
func (fakeReqRes) Disconnect()                     {}
func (fakeReqRes) Send(_ []byte) (bool, error)     { return true, nil }
func (fakeReqRes) Read() (bool, []byte)            { return true, nil }

type fakePubSub struct{}

func (fakePubSub) Connect(_ context.Context) error { return nil }
func (fakePubSub) Disconnect()                     {}
func (fakePubSub) Publish(_ string, _ []byte, _ int, _ bool) (bool, error) {
	return true, nil
}
func (fakePubSub) Subscribe(_ string, _ func(string, []byte)) error { return nil }
