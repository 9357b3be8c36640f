package chat

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ndquang/portfolio-rtc/internal/signaling"
)

func newPair(t *testing.T) (*Client, *Client) {
	t.Helper()
	broker := signaling.NewBroker()

	guestConn := broker.Client()
	guestConn.Connect()
	guest := New(guestConn, "Guest_1", 10)
	if err := guest.Listen(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(guest.Close)

	adminConn := broker.Client()
	adminConn.Connect()
	admin := New(adminConn, "Admin", 10)
	if err := admin.Listen(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(admin.Close)

	return guest, admin
}

func TestJoinBroadcastsComposedNotice(t *testing.T) {
	guest, admin := newPair(t)

	if err := guest.Join(); err != nil {
		t.Fatal(err)
	}

	// Both sides see the notice, including the joiner.
	for _, c := range []*Client{guest, admin} {
		msgs := c.Messages()
		if len(msgs) != 1 {
			t.Fatalf("%s has %d messages, want 1", c.Name(), len(msgs))
		}
		if msgs[0].Type != signaling.MessageJoin || msgs[0].Content != "Guest_1 joined" {
			t.Fatalf("join notice = %+v", msgs[0])
		}
	}
}

func TestSendReachesBothSides(t *testing.T) {
	guest, admin := newPair(t)

	if err := guest.Send("hi there"); err != nil {
		t.Fatal(err)
	}
	if err := admin.Send("hello!"); err != nil {
		t.Fatal(err)
	}

	msgs := guest.Messages()
	if len(msgs) != 2 {
		t.Fatalf("guest sees %d messages, want 2", len(msgs))
	}
	if msgs[0].Sender != "Guest_1" || msgs[0].Content != "hi there" {
		t.Fatalf("first = %+v", msgs[0])
	}
	if msgs[1].Sender != "Admin" || msgs[1].Content != "hello!" {
		t.Fatalf("second = %+v", msgs[1])
	}
	if msgs[0].Timestamp == "" {
		t.Fatal("sent message missing timestamp")
	}
	if _, err := time.Parse(time.RFC3339, msgs[0].Timestamp); err != nil {
		t.Fatalf("timestamp %q not RFC3339: %v", msgs[0].Timestamp, err)
	}
}

func TestSendWhileDisconnectedEchoesLocally(t *testing.T) {
	broker := signaling.NewBroker()
	conn := broker.Client() // never connected
	c := New(conn, "Guest_2", 10)
	defer c.Close()

	err := c.Send("are you there?")
	if !errors.Is(err, signaling.ErrDisconnected) {
		t.Fatalf("err = %v, want ErrDisconnected", err)
	}

	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0].Content != "are you there?" {
		t.Fatalf("offline message not kept locally: %+v", msgs)
	}
}

func TestSystemMessagesStayLocal(t *testing.T) {
	guest, admin := newPair(t)

	guest.AddSystem("Guest_3 started a video call.")

	if len(admin.Messages()) != 0 {
		t.Fatal("system message leaked to the other side")
	}
	msgs := guest.Messages()
	if len(msgs) != 1 || msgs[0].Sender != SystemSender {
		t.Fatalf("system message = %+v", msgs)
	}
}

func TestLoadHistoryPrecedesLiveTraffic(t *testing.T) {
	guest, _ := newPair(t)

	history := []signaling.ChatMessage{
		signaling.NewChatMessage("Admin", "welcome"),
		signaling.NewChatMessage("Guest_0", "thanks"),
	}
	guest.LoadHistory(history)
	if err := guest.Send("new message"); err != nil {
		t.Fatal(err)
	}

	msgs := guest.Messages()
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0].Content != "welcome" || msgs[2].Content != "new message" {
		t.Fatalf("history/live order wrong: %+v", msgs)
	}
}

func TestBufferEvictsOldest(t *testing.T) {
	broker := signaling.NewBroker()
	conn := broker.Client()
	conn.Connect()
	c := New(conn, "Guest_1", 5)
	defer c.Close()
	if err := c.Listen(); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 8; i++ {
		if err := c.Send(fmt.Sprintf("m%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	msgs := c.Messages()
	if len(msgs) != 5 {
		t.Fatalf("buffer holds %d, want 5", len(msgs))
	}
	if msgs[0].Content != "m3" || msgs[4].Content != "m7" {
		t.Fatalf("window = %+v, want m3..m7", msgs)
	}
}

func TestSubscribeDeliversLiveMessages(t *testing.T) {
	guest, admin := newPair(t)

	live := guest.Subscribe()
	defer guest.Unsubscribe(live)

	if err := admin.Send("ping"); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-live:
		if msg.Content != "ping" {
			t.Fatalf("got %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("listener never received the message")
	}
}
