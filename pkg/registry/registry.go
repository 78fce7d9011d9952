// Package registry maps transport method names ("tcp", "serial", "mqtt") to
// factory functions. It is owned by the application and injected into each
// supervisor, instead of being process-wide hidden state: two applications
// in the same process can register disjoint transport sets without
// interfering with each other.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tzrikka/link/pkg/link"
	"github.com/tzrikka/link/pkg/netparams"
	"github.com/tzrikka/link/pkg/transport"
)

// ReqResFactory builds a request/response transport from a link's network
// parameters. It validates required parameters and fails with a
// configuration error when they are missing or unparsable.
type ReqResFactory func(params netparams.Params) (transport.ReqRes, error)

// PubSubFactory builds a publish/subscribe transport from a link's network
// parameters.
type PubSubFactory func(params netparams.Params) (transport.PubSub, error)

// Registry holds the transport factories an application has made available
// to its supervisors. The zero value is not usable; call [New].
type Registry struct {
	mu     sync.RWMutex
	reqRes map[string]ReqResFactory
	pubSub map[string]PubSubFactory
}

// New returns an empty [Registry].
func New() *Registry {
	return &Registry{
		reqRes: make(map[string]ReqResFactory),
		pubSub: make(map[string]PubSubFactory),
	}
}

// RegisterReqRes binds method to a request/response transport factory.
// Method names are case-insensitive; a later registration under the same
// name replaces the earlier one.
func (r *Registry) RegisterReqRes(method string, f ReqResFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqRes[strings.ToLower(method)] = f
}

// RegisterPubSub binds method to a publish/subscribe transport factory.
func (r *Registry) RegisterPubSub(method string, f PubSubFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pubSub[strings.ToLower(method)] = f
}

// Create instantiates the transport selected by the "method" parameter.
// Exactly one of the two returned transports is non-nil on success. A
// missing or unregistered method is a configuration error.
func (r *Registry) Create(params netparams.Params) (transport.ReqRes, transport.PubSub, error) {
	method := strings.ToLower(params.String("method"))
	if method == "" {
		return nil, nil, link.NewError(link.KindConfiguration, fmt.Errorf("missing required parameter %q", "method"))
	}

	r.mu.RLock()
	rrf, isReqRes := r.reqRes[method]
	psf, isPubSub := r.pubSub[method]
	r.mu.RUnlock()

	switch {
	case isReqRes:
		t, err := rrf(params)
		return t, nil, err
	case isPubSub:
		t, err := psf(params)
		return nil, t, err
	default:
		return nil, nil, link.NewError(link.KindConfiguration, fmt.Errorf("unknown transport method %q", method))
	}
}
