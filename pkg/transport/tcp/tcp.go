package tcp

import (
	"strings"

	"github.com/tzrikka/link/pkg/netparams"
	"github.com/tzrikka/link/pkg/transport"
)

// New builds a TCP transport in the role selected by the "role" parameter:
// "server" listens and accepts a single peer, anything else (including an
// absent role) dials as a client. This is the factory to register for the
// "tcp" method.
func New(params netparams.Params) (transport.ReqRes, error) {
	if strings.EqualFold(params.String("role"), "server") {
		return NewServer(params)
	}
	return NewClient(params)
}
