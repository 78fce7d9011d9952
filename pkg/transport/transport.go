// Package transport defines the opaque link contracts the worker pair and
// supervisor drive: a blocking request/response byte pipe, and a
// publish/subscribe message bus. Concrete implementations live under
// pkg/transport/{tcp,serial,mqtt}.
package transport

import "context"

// ReqRes is a connection-oriented, bidirectional byte transport. Send and
// Read run on disjoint goroutines (the requester and the listener
// respectively); implementations must tolerate that without additional
// synchronisation from the caller.
type ReqRes interface {
	// Connect blocks until the link is established or ctx is done. It is
	// idempotent: calling it on an already-connected transport succeeds
	// without side effects.
	Connect(ctx context.Context) error

	// Disconnect tears the link down. Safe to call on an unconnected or
	// already-disconnected transport.
	Disconnect()

	// Send writes frame in full. A false return (not an error) means the
	// write was rejected by the remote end or protocol but the link
	// itself is still usable; an error means the link is no longer
	// usable and should be treated as a disconnection.
	Send(frame []byte) (bool, error)

	// Read waits for the next chunk of bytes. (true, nil) with a nil or
	// empty slice means no data arrived before the transport's internal
	// timeout elapsed — not a failure. (false, _) means the link is
	// lost; the caller must treat this as disconnection.
	Read() (ok bool, data []byte)
}

// PubSub is a topic-addressed, broker-mediated transport.
type PubSub interface {
	Connect(ctx context.Context) error
	Disconnect()

	// Publish sends message on topic. qos and retain are broker hints;
	// implementations that don't support them may ignore retain and
	// clamp qos to their nearest supported level.
	Publish(topic string, message []byte, qos int, retain bool) (bool, error)

	// Subscribe registers callback for topic, which may contain
	// broker-specific wildcards. The listener always subscribes to the
	// bulk wildcard topic at construction; callback runs on the
	// transport's own delivery goroutine and must not block long.
	Subscribe(topic string, callback func(topic string, message []byte)) error
}

// BulkTopic is the wildcard subscription the listener uses to receive every
// message a pub/sub transport delivers, regardless of topic.
const BulkTopic = "#"
