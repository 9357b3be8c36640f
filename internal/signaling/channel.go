package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/google/uuid"
)

// ErrDisconnected is returned by Publish when the channel has no live broker
// connection. The message is dropped, never queued; callers decide how to
// degrade (the chat client echoes locally, call sessions just carry on).
var ErrDisconnected = errors.New("signaling: channel disconnected")

// ErrClosed is returned once Disconnect has been called.
var ErrClosed = errors.New("signaling: channel closed")

// Conn is the publish/subscribe surface shared by the live STOMP Channel and
// the in-memory Broker used for tests and demo mode.
type Conn interface {
	// Subscribe registers handler for every message body arriving on topic.
	// Multiple handlers may coexist on one topic; within a topic they see
	// messages in server-send order. cancel drops this one registration.
	Subscribe(topic string, handler func(body []byte)) (cancel func(), err error)

	// Publish serializes payload to JSON and sends it to destination.
	// Fire-and-forget: no acknowledgment is awaited.
	Publish(destination string, payload any) error
}

// Options tunes one Channel. Each UI scope opens its own Channel rather than
// sharing a process-wide one, so teardown stays scoped to that piece of UI.
type Options struct {
	// ReconnectDelay, when positive, redials after a connection failure or
	// drop at this fixed interval and re-establishes all subscriptions.
	// Zero means connect-once: failures are reported and the channel stays
	// disconnected.
	ReconnectDelay time.Duration

	// OnConnect fires after every successful handshake (including redials).
	OnConnect func()

	// OnError fires once per failed dial or dropped connection.
	OnError func(error)
}

// Channel is one logical STOMP-over-WebSocket connection to the backend
// broker. Zero-value is not usable; construct with New.
type Channel struct {
	url  string
	opts Options

	mu        sync.Mutex
	conn      *stomp.Conn
	stream    *wsStream
	subs      map[string]*topicSub
	connected bool
	closed    bool
	redialing bool
	gen       int // bumped on every successful dial; stale readers ignore drops
}

type topicSub struct {
	handlers map[string]func(body []byte)
	stomp    *stomp.Subscription
}

// New creates a disconnected Channel for the given WebSocket URL.
func New(socketURL string, opts Options) *Channel {
	return &Channel{
		url:  socketURL,
		opts: opts,
		subs: make(map[string]*topicSub),
	}
}

// Connect establishes the WebSocket transport and STOMP handshake. On success
// OnConnect fires and any subscriptions registered before connecting are
// established. On failure OnError fires, the channel stays disconnected, and
// a redial is scheduled only when ReconnectDelay is configured.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.dial(); err != nil {
		c.reportError(err)
		c.scheduleRedial()
		return err
	}
	return nil
}

func (c *Channel) dial() error {
	conn, stream, err := dialStomp(c.url)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		stream.Close()
		return ErrClosed
	}
	c.conn = conn
	c.stream = stream
	c.connected = true
	c.gen++
	gen := c.gen
	topics := make([]string, 0, len(c.subs))
	for t := range c.subs {
		topics = append(topics, t)
	}
	c.mu.Unlock()

	for _, t := range topics {
		if err := c.ensureStompSub(t, gen); err != nil {
			log.Printf("SIGNAL: resubscribe %s failed: %v", t, err)
		}
	}

	log.Printf("SIGNAL: connected to %s", c.url)
	if c.opts.OnConnect != nil {
		c.opts.OnConnect()
	}
	return nil
}

// Subscribe registers handler for topic. Safe before Connect: the STOMP
// subscription is established on the next successful dial.
func (c *Channel) Subscribe(topic string, handler func(body []byte)) (func(), error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	ts, ok := c.subs[topic]
	if !ok {
		ts = &topicSub{handlers: make(map[string]func(body []byte))}
		c.subs[topic] = ts
	}
	id := uuid.NewString()
	ts.handlers[id] = handler
	connected := c.connected
	gen := c.gen
	c.mu.Unlock()

	if connected {
		if err := c.ensureStompSub(topic, gen); err != nil {
			c.removeHandler(topic, id)
			return nil, err
		}
	}

	cancel := func() { c.removeHandler(topic, id) }
	return cancel, nil
}

// ensureStompSub opens the broker-side subscription for topic if this
// generation doesn't have one yet, and starts its reader.
func (c *Channel) ensureStompSub(topic string, gen int) error {
	c.mu.Lock()
	ts, ok := c.subs[topic]
	if !ok || !c.connected || c.gen != gen || ts.stomp != nil {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	c.mu.Unlock()

	sub, err := conn.Subscribe(topic, stomp.AckAuto)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	c.mu.Lock()
	if ts2, ok := c.subs[topic]; ok && c.gen == gen && ts2.stomp == nil {
		ts2.stomp = sub
	} else {
		c.mu.Unlock()
		sub.Unsubscribe()
		return nil
	}
	c.mu.Unlock()

	go c.readLoop(topic, sub, gen)
	return nil
}

// readLoop pumps one topic's messages to its handlers. One goroutine per
// topic keeps delivery within the topic in server-send order.
func (c *Channel) readLoop(topic string, sub *stomp.Subscription, gen int) {
	for msg := range sub.C {
		if msg == nil || msg.Err != nil {
			break
		}
		c.dispatch(topic, msg.Body)
	}
	c.handleDrop(gen)
}

func (c *Channel) dispatch(topic string, body []byte) {
	c.mu.Lock()
	ts, ok := c.subs[topic]
	if !ok {
		c.mu.Unlock()
		return
	}
	handlers := make([]func([]byte), 0, len(ts.handlers))
	for _, h := range ts.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(body)
	}
}

func (c *Channel) removeHandler(topic, id string) {
	c.mu.Lock()
	ts, ok := c.subs[topic]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(ts.handlers, id)
	var sub *stomp.Subscription
	if len(ts.handlers) == 0 {
		sub = ts.stomp
		delete(c.subs, topic)
	}
	c.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

// Publish sends payload as JSON to destination. While disconnected the
// message is dropped silently (logged at debug level only) and
// ErrDisconnected is returned so callers can reflect offline state.
func (c *Channel) Publish(destination string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", destination, err)
	}

	c.mu.Lock()
	if !c.connected || c.conn == nil {
		c.mu.Unlock()
		log.Printf("SIGNAL: dropped publish to %s (disconnected)", destination)
		return ErrDisconnected
	}
	conn := c.conn
	gen := c.gen
	c.mu.Unlock()

	if err := conn.Send(destination, "application/json", body); err != nil {
		c.handleDrop(gen)
		return ErrDisconnected
	}
	return nil
}

// handleDrop marks the connection lost. Only the first caller of the current
// generation acts; late readers from the same dial are ignored.
func (c *Channel) handleDrop(gen int) {
	c.mu.Lock()
	if c.closed || !c.connected || c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.connected = false
	stream := c.stream
	c.conn = nil
	c.stream = nil
	for _, ts := range c.subs {
		ts.stomp = nil
	}
	c.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
	log.Printf("SIGNAL: connection to %s lost", c.url)
	c.reportError(ErrDisconnected)
	c.scheduleRedial()
}

func (c *Channel) reportError(err error) {
	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
}

func (c *Channel) scheduleRedial() {
	if c.opts.ReconnectDelay <= 0 {
		return
	}
	c.mu.Lock()
	if c.closed || c.connected || c.redialing {
		c.mu.Unlock()
		return
	}
	c.redialing = true
	c.mu.Unlock()

	go func() {
		time.Sleep(c.opts.ReconnectDelay)
		c.mu.Lock()
		c.redialing = false
		if c.closed || c.connected {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		if err := c.dial(); err != nil {
			c.reportError(err)
			c.scheduleRedial()
		}
	}()
}

// Disconnect tears the channel down. Idempotent; after it returns, Publish
// reports ErrDisconnected and Subscribe fails with ErrClosed.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	stream := c.stream
	c.conn = nil
	c.stream = nil
	c.subs = make(map[string]*topicSub)
	c.mu.Unlock()

	if conn != nil {
		// Best-effort DISCONNECT frame without waiting for a receipt; the
		// socket close below is what actually releases the transport.
		_ = conn.MustDisconnect()
	}
	if stream != nil {
		stream.Close()
	}
	log.Printf("SIGNAL: channel to %s closed", c.url)
}
