package call

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/ndquang/portfolio-rtc/internal/signaling"
)

func shortenRetransmit(t *testing.T, d time.Duration) {
	t.Helper()
	old := offerRetransmitInterval
	offerRetransmitInterval = d
	t.Cleanup(func() { offerRetransmitInterval = old })
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal(msg)
}

// makeOffer builds a standalone offer the way a remote initiator would.
func makeOffer(t *testing.T) (desc webrtc.SessionDescription, raw json.RawMessage) {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pc.Close() })
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			t.Fatal(err)
		}
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(offer)
	if err != nil {
		t.Fatal(err)
	}
	return offer, data
}

func TestOfferAnswerWithLateReceiver(t *testing.T) {
	shortenRetransmit(t, 50*time.Millisecond)

	broker := signaling.NewBroker()
	visitorConn := broker.Client()
	visitorConn.Connect()
	adminConn := broker.Client()
	adminConn.Connect()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	roomID := "room-test-1"
	visitor := New(roomID, signaling.RoleVisitor, visitorConn, Options{})
	admin := New(roomID, signaling.RoleAdmin, adminConn, Options{})
	defer visitor.End()
	defer admin.End()

	if err := visitor.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if visitor.State() != StateNegotiating {
		t.Fatalf("visitor state = %s, want negotiating", visitor.State())
	}

	// The admin joins only after the first offer already went out; the
	// retransmission loop must bridge the gap.
	time.Sleep(120 * time.Millisecond)
	if err := admin.Start(ctx); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 5*time.Second, func() bool {
		admin.mu.Lock()
		answered := admin.answered
		admin.mu.Unlock()
		return answered
	}, "admin never received a (retransmitted) offer")

	waitFor(t, 5*time.Second, func() bool {
		visitor.mu.Lock()
		answered := visitor.answered
		visitor.mu.Unlock()
		return answered
	}, "visitor never received the answer")

	if admin.pc.RemoteDescription() == nil {
		t.Fatal("admin remote description not set")
	}
	if visitor.pc.RemoteDescription() == nil {
		t.Fatal("visitor remote description not set")
	}
}

func TestStartTwice(t *testing.T) {
	broker := signaling.NewBroker()
	conn := broker.Client()
	conn.Connect()

	sess := New("room-x", signaling.RoleAdmin, conn, Options{})
	defer sess.End()

	if err := sess.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := sess.Start(context.Background()); err != ErrAlreadyStarted {
		t.Fatalf("second Start: err = %v, want ErrAlreadyStarted", err)
	}
}

func TestCandidateBeforeOfferIsQueued(t *testing.T) {
	broker := signaling.NewBroker()
	conn := broker.Client()
	conn.Connect()

	sess := New("room-q", signaling.RoleAdmin, conn, Options{})
	defer sess.End()
	if err := sess.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	cand, _ := json.Marshal(webrtc.ICECandidateInit{
		Candidate: "candidate:1 1 udp 2113937151 192.168.1.10 50000 typ host",
	})
	sess.HandleEnvelope(signaling.SignalEnvelope{
		Type: signaling.SignalICECandidate, Data: cand,
		From: signaling.RoleVisitor, RoomID: "room-q",
	})
	if n := sess.pendingCandidates(); n != 1 {
		t.Fatalf("pending candidates = %d, want 1", n)
	}

	_, rawOffer := makeOffer(t)
	sess.HandleEnvelope(signaling.SignalEnvelope{
		Type: signaling.SignalOffer, Data: rawOffer,
		From: signaling.RoleVisitor, RoomID: "room-q",
	})

	if n := sess.pendingCandidates(); n != 0 {
		t.Fatalf("pending candidates after offer = %d, want 0", n)
	}
	sess.mu.Lock()
	answered, remoteReady := sess.answered, sess.remoteReady
	sess.mu.Unlock()
	if !answered || !remoteReady {
		t.Fatalf("answered=%v remoteReady=%v after offer", answered, remoteReady)
	}
}

func TestEnvelopeFiltering(t *testing.T) {
	broker := signaling.NewBroker()
	conn := broker.Client()
	conn.Connect()

	sess := New("room-f", signaling.RoleAdmin, conn, Options{})
	defer sess.End()
	if err := sess.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	cand, _ := json.Marshal(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 10.0.0.1 4000 typ host"})

	t.Run("own echo dropped", func(t *testing.T) {
		sess.HandleEnvelope(signaling.SignalEnvelope{
			Type: signaling.SignalICECandidate, Data: cand,
			From: signaling.RoleAdmin, RoomID: "room-f",
		})
		if n := sess.pendingCandidates(); n != 0 {
			t.Fatalf("own echo was processed, %d pending", n)
		}
	})

	t.Run("other room dropped", func(t *testing.T) {
		sess.HandleEnvelope(signaling.SignalEnvelope{
			Type: signaling.SignalICECandidate, Data: cand,
			From: signaling.RoleVisitor, RoomID: "room-other",
		})
		if n := sess.pendingCandidates(); n != 0 {
			t.Fatalf("foreign room signal was processed, %d pending", n)
		}
	})

	t.Run("unknown type ignored", func(t *testing.T) {
		sess.HandleEnvelope(signaling.SignalEnvelope{
			Type: "renegotiate", Data: json.RawMessage(`{}`),
			From: signaling.RoleVisitor, RoomID: "room-f",
		})
	})
}

func TestEndIsIdempotentAndPublishesNotice(t *testing.T) {
	broker := signaling.NewBroker()
	conn := broker.Client()
	conn.Connect()

	watcher := broker.Client()
	watcher.Connect()
	var notices int
	if _, err := watcher.Subscribe(signaling.VideoTopic("room-e"), func(body []byte) {
		// Offers and candidates on this topic carry a "type"; the bare
		// EndNotice does not.
		var env signaling.SignalEnvelope
		if json.Unmarshal(body, &env) == nil && env.Type == "" && env.RoomID == "room-e" {
			notices++
		}
	}); err != nil {
		t.Fatal(err)
	}

	sess := New("room-e", signaling.RoleVisitor, conn, Options{})
	if err := sess.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	sess.End()
	sess.End()
	sess.End()

	if sess.State() != StateEnded {
		t.Fatalf("state = %s, want ended", sess.State())
	}
	select {
	case <-sess.Done():
	default:
		t.Fatal("Done not closed after End")
	}
	if notices != 1 {
		t.Fatalf("end notice published %d times, want 1", notices)
	}
}

func TestContextCancelEndsSession(t *testing.T) {
	broker := signaling.NewBroker()
	conn := broker.Client()
	conn.Connect()

	ctx, cancel := context.WithCancel(context.Background())
	sess := New("room-c", signaling.RoleAdmin, conn, Options{})
	if err := sess.Start(ctx); err != nil {
		t.Fatal(err)
	}

	cancel()
	waitFor(t, 2*time.Second, func() bool {
		return sess.State() == StateEnded
	}, "session did not end on context cancellation")
}

func TestStateTransitionsAreMonotonic(t *testing.T) {
	broker := signaling.NewBroker()
	conn := broker.Client()
	conn.Connect()

	var states []State
	sess := New("room-s", signaling.RoleAdmin, conn, Options{
		OnState: func(st State) { states = append(states, st) },
	})
	if err := sess.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	sess.End()

	// Callback ordering is the transition ordering; nothing may move
	// backwards.
	for i := 1; i < len(states); i++ {
		if states[i] <= states[i-1] {
			t.Fatalf("state went backwards: %v", states)
		}
	}
	if len(states) == 0 || states[len(states)-1] != StateEnded {
		t.Fatalf("final state not ended: %v", states)
	}
}

func TestTogglesWithoutLocalMedia(t *testing.T) {
	broker := signaling.NewBroker()
	conn := broker.Client()
	conn.Connect()

	sess := New("room-t", signaling.RoleAdmin, conn, Options{})
	defer sess.End()
	if err := sess.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Even receive-only sessions track the toggle state so the UI stays
	// consistent when media comes back.
	if muted := sess.ToggleMute(); !muted {
		t.Fatal("first ToggleMute should report muted")
	}
	if muted := sess.ToggleMute(); muted {
		t.Fatal("second ToggleMute should report unmuted")
	}
	if off := sess.ToggleCamera(); !off {
		t.Fatal("first ToggleCamera should report off")
	}
}
