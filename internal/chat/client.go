// Package chat implements the public chat stream: one shared room where the
// visitor and the admin exchange messages via the broker's /topic/public
// broadcast.
package chat

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/ndquang/portfolio-rtc/internal/signaling"
	"github.com/ndquang/portfolio-rtc/internal/util"
)

// DefaultBufferSize is the default number of messages kept in memory.
const DefaultBufferSize = 100

// SystemSender labels locally generated status lines (call announcements,
// offline notices). They never go over the wire.
const SystemSender = "System"

// Client is one participant's view of the public chat.
type Client struct {
	conn signaling.Conn
	name string

	mu        sync.RWMutex
	messages  *util.RingBuffer[signaling.ChatMessage]
	listeners []chan signaling.ChatMessage
	cancel    func()
}

// New creates a chat client publishing as displayName. bufferSize <= 0 uses
// DefaultBufferSize.
func New(conn signaling.Conn, displayName string, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Client{
		conn:     conn,
		name:     displayName,
		messages: util.NewRingBuffer[signaling.ChatMessage](bufferSize),
	}
}

// Listen subscribes to the public topic. Call once; incoming messages land in
// the buffer and fan out to listeners.
func (c *Client) Listen() error {
	cancel, err := c.conn.Subscribe(signaling.TopicPublic, func(body []byte) {
		var msg signaling.ChatMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			log.Printf("CHAT: bad message on %s: %v", signaling.TopicPublic, err)
			return
		}
		c.addMessage(msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", signaling.TopicPublic, err)
	}

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	return nil
}

// Join announces this participant on the room. The backend composes the
// "<name> joined" notice and broadcasts it back, so there is no local echo.
// Safe to call again after a reconnect.
func (c *Client) Join() error {
	if err := c.conn.Publish(signaling.DestChatAddUser, signaling.NewJoinMessage(c.name)); err != nil {
		return fmt.Errorf("join chat: %w", err)
	}
	log.Printf("CHAT: %q joined", c.name)
	return nil
}

// Send publishes a CHAT message. The broker broadcasts it back to everyone
// including the sender, so on success nothing is echoed locally. When the
// channel is down the message is kept locally so the author still sees it,
// and the error is returned for the UI to reflect offline state.
func (c *Client) Send(content string) error {
	msg := signaling.NewChatMessage(c.name, content)
	if err := c.conn.Publish(signaling.DestChatSend, msg); err != nil {
		c.addMessage(msg)
		return err
	}
	return nil
}

// AddSystem appends a local-only status line.
func (c *Client) AddSystem(text string) {
	c.addMessage(signaling.NewChatMessage(SystemSender, text))
}

// LoadHistory seeds the buffer with previously stored messages, oldest first.
// Meant to run before Listen so live traffic appends after the replay.
func (c *Client) LoadHistory(history []signaling.ChatMessage) {
	for _, msg := range history {
		c.messages.Push(msg)
	}
	log.Printf("CHAT: loaded %d messages of history", len(history))
}

// Messages returns the buffered messages, oldest first.
func (c *Client) Messages() []signaling.ChatMessage {
	return c.messages.Snapshot()
}

// Name returns the display name this client publishes as.
func (c *Client) Name() string { return c.name }

// Subscribe returns a channel receiving each new message. Slow listeners
// miss messages rather than blocking delivery.
func (c *Client) Subscribe() chan signaling.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan signaling.ChatMessage, 16)
	c.listeners = append(c.listeners, ch)
	return ch
}

// Unsubscribe removes and closes a listener channel.
func (c *Client) Unsubscribe(ch chan signaling.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, listener := range c.listeners {
		if listener == ch {
			close(listener)
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// Close detaches from the topic and closes all listener channels.
func (c *Client) Close() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	listeners := c.listeners
	c.listeners = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, ch := range listeners {
		close(ch)
	}
}

func (c *Client) addMessage(msg signaling.ChatMessage) {
	c.messages.Push(msg)

	c.mu.RLock()
	for _, listener := range c.listeners {
		select {
		case listener <- msg:
		default:
		}
	}
	c.mu.RUnlock()
}
