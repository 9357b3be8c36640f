package signaling

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Broker is an in-process stand-in for the backend's STOMP broker. It mirrors
// the server's @MessageMapping routing: messages published to /app/...
// destinations are forwarded to the matching /topic/... broadcast, so client
// code exercises the exact topic layout it uses against the real backend.
// It backs the test suite and the offline demo mode.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[string]func(body []byte) // topic -> registration id -> handler
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[string]func(body []byte))}
}

// Client returns a connection bound to this broker. Each client tracks its
// own subscriptions and connected state, like one Channel against the real
// broker.
func (b *Broker) Client() *BrokerConn {
	return &BrokerConn{broker: b, ids: make(map[string]string)}
}

func (b *Broker) subscribe(topic string, handler func(body []byte)) string {
	id := uuid.NewString()
	b.mu.Lock()
	m, ok := b.subs[topic]
	if !ok {
		m = make(map[string]func(body []byte))
		b.subs[topic] = m
	}
	m[id] = handler
	b.mu.Unlock()
	return id
}

func (b *Broker) unsubscribe(topic, id string) {
	b.mu.Lock()
	if m, ok := b.subs[topic]; ok {
		delete(m, id)
		if len(m) == 0 {
			delete(b.subs, topic)
		}
	}
	b.mu.Unlock()
}

// deliver invokes every handler subscribed to topic, synchronously on the
// publisher's goroutine. Sequential publishes therefore arrive in publish
// order within one topic, matching the server-send-order guarantee.
func (b *Broker) deliver(topic string, body []byte) {
	b.mu.RLock()
	handlers := make([]func([]byte), 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(body)
	}
}

// route replays the backend's destination→topic mapping.
func (b *Broker) route(destination string, body []byte) error {
	switch destination {
	case DestChatSend:
		b.deliver(TopicPublic, body)

	case DestChatAddUser:
		// The backend composes the canonical presence notice before
		// broadcasting the JOIN.
		var msg ChatMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("bad addUser payload: %w", err)
		}
		msg.Type = MessageJoin
		msg.Content = msg.Sender + " joined"
		out, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		b.deliver(TopicPublic, out)

	case DestVideoRequest:
		b.deliver(TopicCallRequests, body)

	case DestVideoSignal:
		var env SignalEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("bad signal payload: %w", err)
		}
		if env.RoomID == "" {
			return fmt.Errorf("signal without roomId")
		}
		b.deliver(VideoTopic(env.RoomID), body)

	case DestVideoEnd:
		var end EndNotice
		if err := json.Unmarshal(body, &end); err != nil {
			return fmt.Errorf("bad end payload: %w", err)
		}
		b.deliver(VideoTopic(end.RoomID), body)

	default:
		// Direct topic publish, handy in tests.
		if strings.HasPrefix(destination, "/topic/") {
			b.deliver(destination, body)
			return nil
		}
		return fmt.Errorf("no route for destination %s", destination)
	}
	return nil
}

// BrokerConn implements Conn against an in-process Broker.
type BrokerConn struct {
	broker *Broker

	mu        sync.Mutex
	ids       map[string]string // registration id -> topic
	connected bool
	closed    bool
}

// Connect marks the connection live. It cannot fail; it exists so the demo
// path drives a BrokerConn through the same lifecycle as a Channel.
func (c *BrokerConn) Connect() {
	c.mu.Lock()
	if !c.closed {
		c.connected = true
	}
	c.mu.Unlock()
}

func (c *BrokerConn) Subscribe(topic string, handler func(body []byte)) (func(), error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.mu.Unlock()

	id := c.broker.subscribe(topic, handler)
	c.mu.Lock()
	c.ids[id] = topic
	c.mu.Unlock()

	cancel := func() {
		c.broker.unsubscribe(topic, id)
		c.mu.Lock()
		delete(c.ids, id)
		c.mu.Unlock()
	}
	return cancel, nil
}

func (c *BrokerConn) Publish(destination string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", destination, err)
	}

	c.mu.Lock()
	connected := c.connected && !c.closed
	c.mu.Unlock()
	if !connected {
		return ErrDisconnected
	}

	if err := c.broker.route(destination, body); err != nil {
		log.Printf("SIGNAL: local broker dropped %s: %v", destination, err)
	}
	return nil
}

// Disconnect drops all of this connection's subscriptions. Idempotent.
func (c *BrokerConn) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.connected = false
	ids := c.ids
	c.ids = make(map[string]string)
	c.mu.Unlock()

	for id, topic := range ids {
		c.broker.unsubscribe(topic, id)
	}
}
