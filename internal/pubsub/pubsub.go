package pubsub

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// Client is the slice of the broker connection the commlink tasks use.
// The reconnector owns connection lifecycle; sender and listener only
// publish and drain.
type Client interface {
	Connect(clientID string) error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	Publish(topic string, payload []byte, retain bool) error
	IsConnected() bool
	Disconnect()
}

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// PahoClient wraps an eclipse/paho connection. Auto-reconnect is off:
// the reconnector task is the single place connection recovery happens,
// on the scheduler's cadence.
type PahoClient struct {
	broker string
	client mqtt.Client
}

func NewPahoClient(broker string) *PahoClient {
	return &PahoClient{broker: broker}
}

func (p *PahoClient) Connect(clientID string) error {
	if p.client != nil {
		p.client.Disconnect(250)
		p.client = nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(p.broker).
		SetClientID(clientID).
		SetAutoReconnect(false).
		SetConnectTimeout(connectTimeout)

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connect to %s timed out", p.broker)
	}
	if err := token.Error(); err != nil {
		return err
	}

	p.client = c
	return nil
}

func (p *PahoClient) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	if p.client == nil {
		return fmt.Errorf("not connected")
	}

	token := p.client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("subscribe to %s timed out", topic)
	}
	return token.Error()
}

func (p *PahoClient) Publish(topic string, payload []byte, retain bool) error {
	if p.client == nil {
		return fmt.Errorf("not connected")
	}

	token := p.client.Publish(topic, 0, retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

func (p *PahoClient) IsConnected() bool {
	return p.client != nil && p.client.IsConnected()
}

func (p *PahoClient) Disconnect() {
	if p.client != nil {
		p.client.Disconnect(250)
		p.client = nil
	}
}

// Inbox buffers messages delivered on the transport goroutine until the
// listener task drains them on the scheduler goroutine. The listener
// never waits for new data; it only processes what is already buffered.
type Inbox struct {
	ch chan []byte
}

func NewInbox(depth int) *Inbox {
	return &Inbox{ch: make(chan []byte, depth)}
}

// Put enqueues a message without blocking. A full inbox drops the message
// rather than stalling the transport callback.
func (i *Inbox) Put(payload []byte) {
	buf := make([]byte, len(payload))
	copy(buf, payload)

	select {
	case i.ch <- buf:
	default:
		log.Warn().Int("len", len(payload)).Msg("Inbox full, dropping inbound message")
	}
}

// Drain hands every currently buffered message to fn and returns.
func (i *Inbox) Drain(fn func(payload []byte)) {
	for {
		select {
		case msg := <-i.ch:
			fn(msg)
		default:
			return
		}
	}
}
