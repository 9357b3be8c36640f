package signaling

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

func collect(t *testing.T, conn *BrokerConn, topic string) *[]string {
	t.Helper()
	var mu sync.Mutex
	got := []string{}
	_, err := conn.Subscribe(topic, func(body []byte) {
		mu.Lock()
		got = append(got, string(body))
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	return &got
}

func TestBrokerChatRouting(t *testing.T) {
	broker := NewBroker()
	sender := broker.Client()
	sender.Connect()
	receiver := broker.Client()
	receiver.Connect()

	var mu sync.Mutex
	var got []ChatMessage
	if _, err := receiver.Subscribe(TopicPublic, func(body []byte) {
		var msg ChatMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			t.Errorf("bad broadcast: %v", err)
			return
		}
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
	}); err != nil {
		t.Fatal(err)
	}

	if err := sender.Publish(DestChatAddUser, NewJoinMessage("Guest_7")); err != nil {
		t.Fatal(err)
	}
	if err := sender.Publish(DestChatSend, NewChatMessage("Guest_7", "hello")); err != nil {
		t.Fatal(err)
	}

	// Delivery is synchronous; no polling needed.
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 broadcasts, got %d", len(got))
	}
	if got[0].Type != MessageJoin || got[0].Content != "Guest_7 joined" {
		t.Fatalf("join notice = %+v", got[0])
	}
	if got[1].Type != MessageChat || got[1].Content != "hello" {
		t.Fatalf("chat message = %+v", got[1])
	}
}

func TestBrokerSignalRoomScoping(t *testing.T) {
	broker := NewBroker()
	conn := broker.Client()
	conn.Connect()

	roomA := collect(t, conn, VideoTopic("room-a"))
	roomB := collect(t, conn, VideoTopic("room-b"))

	env := SignalEnvelope{
		Type:   SignalOffer,
		Data:   json.RawMessage(`{"type":"offer","sdp":"v=0"}`),
		From:   RoleVisitor,
		RoomID: "room-a",
	}
	if err := conn.Publish(DestVideoSignal, env); err != nil {
		t.Fatal(err)
	}
	if err := conn.Publish(DestVideoEnd, EndNotice{RoomID: "room-a"}); err != nil {
		t.Fatal(err)
	}

	if len(*roomA) != 2 {
		t.Fatalf("room-a expected signal+end, got %d messages", len(*roomA))
	}
	if len(*roomB) != 0 {
		t.Fatalf("room-b leaked %d messages", len(*roomB))
	}
}

func TestBrokerSignalWithoutRoomDropped(t *testing.T) {
	broker := NewBroker()
	conn := broker.Client()
	conn.Connect()

	got := collect(t, conn, VideoTopic(""))
	env := SignalEnvelope{Type: SignalOffer, Data: json.RawMessage(`{}`), From: RoleVisitor}
	// Publish succeeds (fire and forget) but the broker refuses to route a
	// roomless signal.
	if err := conn.Publish(DestVideoSignal, env); err != nil {
		t.Fatal(err)
	}
	if len(*got) != 0 {
		t.Fatalf("roomless signal was delivered: %v", *got)
	}
}

func TestBrokerCallRequests(t *testing.T) {
	broker := NewBroker()
	visitor := broker.Client()
	visitor.Connect()
	admin := broker.Client()
	admin.Connect()

	got := collect(t, admin, TopicCallRequests)
	if err := visitor.Publish(DestVideoRequest, CallRequest{RoomID: "room-1", VisitorName: "Sam"}); err != nil {
		t.Fatal(err)
	}

	if len(*got) != 1 {
		t.Fatalf("expected 1 call request, got %d", len(*got))
	}
	var req CallRequest
	if err := json.Unmarshal([]byte((*got)[0]), &req); err != nil {
		t.Fatal(err)
	}
	if req.RoomID != "room-1" || req.VisitorName != "Sam" {
		t.Fatalf("call request = %+v", req)
	}
}

func TestBrokerConnLifecycle(t *testing.T) {
	broker := NewBroker()
	conn := broker.Client()

	if err := conn.Publish(DestChatSend, NewChatMessage("x", "y")); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("publish before connect: err = %v, want ErrDisconnected", err)
	}

	conn.Connect()
	got := collect(t, conn, TopicPublic)
	if err := conn.Publish(DestChatSend, NewChatMessage("x", "y")); err != nil {
		t.Fatal(err)
	}
	if len(*got) != 1 {
		t.Fatalf("expected delivery after connect, got %d", len(*got))
	}

	conn.Disconnect()
	conn.Disconnect() // idempotent

	if err := conn.Publish(DestChatSend, NewChatMessage("x", "z")); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("publish after disconnect: err = %v, want ErrDisconnected", err)
	}
	if _, err := conn.Subscribe(TopicPublic, func([]byte) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("subscribe after disconnect: err = %v, want ErrClosed", err)
	}
	if len(*got) != 1 {
		t.Fatalf("message delivered after disconnect")
	}
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	broker := NewBroker()
	conn := broker.Client()
	conn.Connect()

	var n int
	cancel, err := conn.Subscribe(TopicPublic, func([]byte) { n++ })
	if err != nil {
		t.Fatal(err)
	}

	if err := conn.Publish(DestChatSend, NewChatMessage("a", "1")); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := conn.Publish(DestChatSend, NewChatMessage("a", "2")); err != nil {
		t.Fatal(err)
	}

	if n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
}

func TestBrokerPerTopicOrder(t *testing.T) {
	broker := NewBroker()
	conn := broker.Client()
	conn.Connect()

	got := collect(t, conn, TopicPublic)
	for i := 0; i < 20; i++ {
		if err := conn.Publish(DestChatSend, NewChatMessage("a", string(rune('a'+i)))); err != nil {
			t.Fatal(err)
		}
	}

	if len(*got) != 20 {
		t.Fatalf("expected 20 messages, got %d", len(*got))
	}
	for i, body := range *got {
		var msg ChatMessage
		if err := json.Unmarshal([]byte(body), &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Content != string(rune('a'+i)) {
			t.Fatalf("message %d out of order: %q", i, msg.Content)
		}
	}
}
