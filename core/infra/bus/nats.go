package bus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects used by crewmux components.
const (
	SubjectInvalidate = "crewmux.cache.invalidate"

	crewSubjectPrefix = "crew"
)

var (
	errNilBus     = errors.New("nats bus not initialized")
	errNilPacket  = errors.New("nil bus packet")
	errEmptyTopic = errors.New("empty subject")
)

// NatsBus is a thin wrapper over a NATS connection that speaks JSON packets.
type NatsBus struct {
	nc *nats.Conn
}

// NewNatsBus dials NATS at the provided URL.
func NewNatsBus(url string) (*NatsBus, error) {
	opts := []nats.Option{
		nats.Name("crewmux-bus"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("[BUS] disconnected from NATS: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[BUS] reconnected to NATS at %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Printf("[BUS] connection closed")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NatsBus{nc: nc}, nil
}

// Close shuts down the underlying NATS connection.
func (b *NatsBus) Close() {
	if b != nil && b.nc != nil {
		b.nc.Close()
	}
}

// CrewSubject constructs the subject remote crew workers listen on.
func CrewSubject(domain, handlerID string) string {
	return fmt.Sprintf("%s.%s.%s", crewSubjectPrefix, sanitizeToken(domain), sanitizeToken(handlerID))
}

// Publish sends a JSON-encoded packet on the given subject.
func (b *NatsBus) Publish(subject string, packet *Packet) error {
	if b == nil || b.nc == nil {
		return errNilBus
	}
	if subject == "" {
		return errEmptyTopic
	}
	if packet == nil {
		return errNilPacket
	}
	data, err := encodePacket(packet)
	if err != nil {
		return err
	}
	return b.nc.Publish(subject, data)
}

// Subscribe attaches a subscription that decodes packets and invokes the handler.
func (b *NatsBus) Subscribe(subject, queue string, handler func(*Packet)) error {
	if b == nil || b.nc == nil {
		return errNilBus
	}
	if subject == "" {
		return errEmptyTopic
	}
	if handler == nil {
		return errors.New("nil handler")
	}
	cb := func(msg *nats.Msg) {
		packet, err := decodePacket(msg.Data)
		if err != nil {
			log.Printf("nats bus: failed to unmarshal packet: %v", err)
			return
		}
		handler(packet)
	}
	if queue == "" {
		_, err := b.nc.Subscribe(subject, cb)
		return err
	}
	_, err := b.nc.QueueSubscribe(subject, queue, cb)
	return err
}

// Request performs a request/reply round trip with JSON packets.
func (b *NatsBus) Request(ctx context.Context, subject string, packet *Packet) (*Packet, error) {
	if b == nil || b.nc == nil {
		return nil, errNilBus
	}
	if subject == "" {
		return nil, errEmptyTopic
	}
	if packet == nil {
		return nil, errNilPacket
	}
	data, err := encodePacket(packet)
	if err != nil {
		return nil, err
	}
	msg, err := b.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, err
	}
	return decodePacket(msg.Data)
}

// Serve attaches a queue subscription that answers request/reply traffic.
// The handler's returned packet is sent back on the reply subject.
func (b *NatsBus) Serve(subject, queue string, handler func(*Packet) (*Packet, error)) error {
	if b == nil || b.nc == nil {
		return errNilBus
	}
	if subject == "" {
		return errEmptyTopic
	}
	if handler == nil {
		return errors.New("nil handler")
	}
	cb := func(msg *nats.Msg) {
		packet, err := decodePacket(msg.Data)
		if err != nil {
			log.Printf("nats bus: failed to unmarshal request: %v", err)
			return
		}
		reply, err := handler(packet)
		if err != nil {
			log.Printf("nats bus: request handler error: %v", err)
			return
		}
		if msg.Reply == "" || reply == nil {
			return
		}
		data, err := encodePacket(reply)
		if err != nil {
			log.Printf("nats bus: failed to marshal reply: %v", err)
			return
		}
		if err := msg.Respond(data); err != nil {
			log.Printf("nats bus: failed to respond: %v", err)
		}
	}
	if queue == "" {
		_, err := b.nc.Subscribe(subject, cb)
		return err
	}
	_, err := b.nc.QueueSubscribe(subject, queue, cb)
	return err
}

func (b *NatsBus) IsConnected() bool {
	return b != nil && b.nc != nil && b.nc.IsConnected()
}

func (b *NatsBus) ConnectedURL() string {
	if b == nil || b.nc == nil {
		return ""
	}
	return b.nc.ConnectedUrl()
}

func sanitizeToken(token string) string {
	token = strings.TrimSpace(strings.ToLower(token))
	token = strings.ReplaceAll(token, ".", "_")
	token = strings.ReplaceAll(token, " ", "_")
	token = strings.ReplaceAll(token, "*", "_")
	token = strings.ReplaceAll(token, ">", "_")
	if token == "" {
		return "unknown"
	}
	return token
}
