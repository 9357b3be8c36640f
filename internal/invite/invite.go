package invite

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/ndquang/portfolio-rtc/internal/signaling"
)

// Publisher is the outbound half of the signaling surface this package needs.
type Publisher interface {
	Publish(destination string, payload any) error
}

// Subscriber is the inbound half.
type Subscriber interface {
	Subscribe(topic string, handler func(body []byte)) (cancel func(), err error)
}

const roomIDSuffixLen = 6

// NewRoomID generates a call room identifier: "room-" + the current Unix
// millisecond timestamp + a random base36 suffix. The timestamp makes ids
// sortable and human-debuggable; the suffix keeps concurrent visitors from
// colliding within one millisecond.
func NewRoomID() string {
	return "room-" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + randBase36(roomIDSuffixLen)
}

func randBase36(n int) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// timestamp-derived suffix rather than panicking mid-call.
		s := strconv.FormatInt(time.Now().UnixNano(), 36)
		for len(s) < n {
			s = "0" + s
		}
		return s[len(s)-n:]
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf)
}

// Caller is the visitor side of the invitation flow.
type Caller struct {
	sig  Publisher
	name string

	// Echo, when set, receives a local status line for the visitor's own
	// chat view. The backend does not echo call requests back on the
	// public topic, so this is the only place the visitor sees their own
	// request.
	Echo func(text string)
}

func NewCaller(sig Publisher, visitorName string) *Caller {
	return &Caller{sig: sig, name: visitorName}
}

// Start announces a new call on the presence topic and returns the generated
// room id. The caller then opens its call session on that room immediately;
// the admin may accept at any point later.
func (c *Caller) Start() (string, error) {
	roomID := NewRoomID()
	req := signaling.CallRequest{RoomID: roomID, VisitorName: c.name}
	if err := c.sig.Publish(signaling.DestVideoRequest, req); err != nil {
		return "", fmt.Errorf("announce call %s: %w", roomID, err)
	}
	log.Printf("INVITE: call %s announced by %q", roomID, c.name)
	if c.Echo != nil {
		c.Echo(fmt.Sprintf("%s started a video call.", c.name))
	}
	return roomID, nil
}

// Listen wires the presence topic into reg on the admin side. Malformed or
// roomless requests are logged and dropped. The returned cancel detaches the
// subscription.
func Listen(conn Subscriber, reg *Registry) (func(), error) {
	return conn.Subscribe(signaling.TopicCallRequests, func(body []byte) {
		var req signaling.CallRequest
		if err := json.Unmarshal(body, &req); err != nil {
			log.Printf("INVITE: bad call request: %v", err)
			return
		}
		if req.RoomID == "" {
			log.Printf("INVITE: dropping call request without roomId")
			return
		}
		name := req.VisitorName
		if name == "" {
			name = "Visitor"
		}
		reg.Upsert(req.RoomID, name)
	})
}
