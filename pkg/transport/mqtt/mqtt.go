// Package mqtt implements the publish/subscribe transport contract over an
// MQTT broker, using the Eclipse paho client.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/lithammer/shortuuid/v4"

	"github.com/tzrikka/link/internal/mqttauth"
	"github.com/tzrikka/link/pkg/link"
	"github.com/tzrikka/link/pkg/netparams"
	"github.com/tzrikka/link/pkg/transport"
)

const (
	// DefaultPort is the standard unencrypted MQTT broker port.
	DefaultPort = 1883

	// DefaultKeepAlive is the broker keepalive interval when the
	// "keepalive" parameter is absent.
	DefaultKeepAlive = 60 * time.Second

	// DefaultTokenWait bounds each broker operation (connect, publish,
	// subscribe) when the "timeout" parameter is absent.
	DefaultTokenWait = 5 * time.Second

	disconnectQuiesceMillis = 250
)

// Broker is an MQTT pub/sub transport. The paho client runs its own
// network goroutines; Publish and Subscribe are safe from any goroutine.
type Broker struct {
	opts      *mqtt.ClientOptions
	tokenWait time.Duration

	mu     sync.Mutex
	client mqtt.Client
}

// New builds a [Broker] from network parameters. Required:
// "broker_address". Optional: "port" (default 1883), "keepalive" (seconds),
// "timeout" (seconds, bounds each broker operation), "client_id",
// "username"/"password", and "jwt_secret"/"jwt_issuer"/"jwt_subject" for
// token-password brokers.
func New(params netparams.Params) (transport.PubSub, error) {
	if missing := params.RequireKeys("broker_address"); len(missing) > 0 {
		return nil, link.NewError(link.KindConfiguration, fmt.Errorf("missing required parameters: %v", missing))
	}

	port := params.IntDefault("port", DefaultPort)
	if port <= 0 || port > 65535 {
		return nil, link.NewError(link.KindConfiguration, fmt.Errorf("invalid port %d", port))
	}

	clientID := params.StringDefault("client_id", "link-"+shortuuid.New())

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", params.String("broker_address"), port)).
		SetClientID(clientID).
		SetKeepAlive(secondsParam(params, "keepalive", DefaultKeepAlive)).
		SetAutoReconnect(false) // The supervisor owns the reconnect policy.

	if u := params.String("username"); u != "" {
		opts.SetUsername(u)
	}

	switch {
	case params.Has("jwt_secret"):
		signer, err := mqttauth.NewSigner(
			[]byte(params.String("jwt_secret")),
			params.String("jwt_issuer"),
			params.String("jwt_subject"),
			0,
		)
		if err != nil {
			return nil, link.NewError(link.KindConfiguration, err)
		}
		opts.SetCredentialsProvider(func() (string, string) {
			token, err := signer.Password(time.Now())
			if err != nil {
				return clientID, ""
			}
			return clientID, token
		})
	case params.Has("password"):
		opts.SetPassword(params.String("password"))
	}

	return &Broker{
		opts:      opts,
		tokenWait: secondsParam(params, "timeout", DefaultTokenWait),
	}, nil
}

// Connect establishes the broker session. Idempotent while connected.
func (b *Broker) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil && b.client.IsConnected() {
		return nil
	}

	client := mqtt.NewClient(b.opts)
	token := client.Connect()

	wait := b.tokenWait
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < wait {
			wait = until
		}
	}

	if !token.WaitTimeout(wait) {
		client.Disconnect(0)
		return link.NewError(link.KindConnection, errors.New("broker connect timed out"))
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return link.NewError(classifyBrokerError(err), err)
	}

	b.client = client
	return nil
}

// Disconnect ends the broker session, allowing a short quiesce for
// in-flight messages. Safe to call when not connected.
func (b *Broker) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil {
		b.client.Disconnect(disconnectQuiesceMillis)
		b.client = nil
	}
}

// Publish sends message on topic. A timed-out broker acknowledgement is a
// soft failure; a dropped session is a connection error.
func (b *Broker) Publish(topic string, message []byte, qos int, retain bool) (bool, error) {
	client := b.current()
	if client == nil {
		return false, link.NewError(link.KindConnection, errors.New("not connected to broker"))
	}

	token := client.Publish(topic, clampQoS(qos), retain, message)
	if !token.WaitTimeout(b.tokenWait) {
		return false, link.NewError(link.KindTimeout, errors.New("publish not acknowledged in time"))
	}
	if err := token.Error(); err != nil {
		if !client.IsConnectionOpen() {
			return false, link.NewError(link.KindConnection, err)
		}
		return false, err
	}

	return true, nil
}

// Subscribe registers callback for topic (wildcards allowed, including the
// bulk topic "#"). The callback runs on the paho client's delivery
// goroutine.
func (b *Broker) Subscribe(topic string, callback func(topic string, message []byte)) error {
	client := b.current()
	if client == nil {
		return link.NewError(link.KindConnection, errors.New("not connected to broker"))
	}

	token := client.Subscribe(topic, 0, func(_ mqtt.Client, m mqtt.Message) {
		callback(m.Topic(), m.Payload())
	})
	if !token.WaitTimeout(b.tokenWait) {
		return link.NewError(link.KindTimeout, errors.New("subscribe not acknowledged in time"))
	}
	if err := token.Error(); err != nil {
		return link.NewError(classifyBrokerError(err), err)
	}

	return nil
}

func (b *Broker) current() mqtt.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client
}

// classifyBrokerError separates credential rejections from every other
// broker failure, which defaults to a connection error.
func classifyBrokerError(err error) link.ErrorKind {
	if errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) ||
		errors.Is(err, packets.ErrorRefusedNotAuthorised) {
		return link.KindAuthentication
	}
	return link.KindConnection
}

func clampQoS(qos int) byte {
	switch {
	case qos < 0:
		return 0
	case qos > 2:
		return 2
	default:
		return byte(qos)
	}
}

func secondsParam(params netparams.Params, key string, def time.Duration) time.Duration {
	switch v := params.Get(key).(type) {
	case int:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	case float64:
		if v > 0 {
			return time.Duration(v * float64(time.Second))
		}
	}
	return def
}
