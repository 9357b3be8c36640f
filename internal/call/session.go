package call

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/ndquang/portfolio-rtc/internal/signaling"
)

// offerRetransmitInterval is how often the initiator re-publishes its current
// local description until an answer arrives. The receiver subscribes to the
// room topic only after accepting the invitation, so the first offer can be
// broadcast into the void; re-sending the local description (which accretes
// gathered ICE candidates) bridges that gap. Package-level so tests can
// shorten it.
var offerRetransmitInterval = 2 * time.Second

// Options tunes one Session.
type Options struct {
	// STUNServers for ICE. Empty means host candidates only.
	STUNServers []string

	// OnState fires on every state transition, in transition order.
	OnState func(State)

	// OnRemoteTrack fires once per remote track as it arrives.
	OnRemoteTrack func(*webrtc.TrackRemote)
}

// Session is one WebRTC call scoped to a room. The visitor side creates the
// offer; the admin side answers. Both sides subscribe to the same room topic
// and drop their own echoes by sender role.
type Session struct {
	roomID    string
	role      signaling.Role
	initiator bool
	sig       Signaler
	opts      Options
	stats     *statsCollector

	mu           sync.Mutex
	state        State
	pc           *webrtc.PeerConnection
	media        *localMedia
	pending      []webrtc.ICECandidateInit
	remoteReady  bool // remote description set; candidates apply directly
	answered     bool
	muted        bool
	cameraOff    bool
	ended        bool
	unsubscribe  func()
	remoteTracks []*webrtc.TrackRemote

	startedAt time.Time
	done      chan struct{}
}

// New creates an idle Session. The visitor role is the initiator.
func New(roomID string, role signaling.Role, sig Signaler, opts Options) *Session {
	return &Session{
		roomID:    roomID,
		role:      role,
		initiator: role == signaling.RoleVisitor,
		sig:       sig,
		opts:      opts,
		stats:     newStatsCollector(),
		done:      make(chan struct{}),
	}
}

// Start acquires local media, subscribes to the room topic and, on the
// initiator side, begins negotiation. Capture failure downgrades to
// receive-only (see MediaErr); transport or PeerConnection failures end the
// session and are returned. Cancelling ctx tears the session down.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.startedAt = time.Now()
	s.mu.Unlock()
	s.setState(StateAcquiringMedia)

	pc, media, err := newPeerConnection(s.roomID, s.opts.STUNServers)
	if err != nil {
		s.End()
		return fmt.Errorf("create peer connection: %w", err)
	}
	if media != nil && media.err != nil {
		log.Printf("CALL [%s]: %v, continuing receive-only", s.roomID, media.err)
	}

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		media.close()
		pc.Close()
		return ErrSessionEnded
	}
	s.pc = pc
	s.media = media
	s.mu.Unlock()

	s.wireCallbacks(pc)

	cancel, err := s.sig.Subscribe(signaling.VideoTopic(s.roomID), func(body []byte) {
		var env signaling.SignalEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			log.Printf("CALL [%s]: bad signal payload: %v", s.roomID, err)
			return
		}
		s.HandleEnvelope(env)
	})
	if err != nil {
		s.End()
		return fmt.Errorf("subscribe room topic: %w", err)
	}
	s.mu.Lock()
	s.unsubscribe = cancel
	s.mu.Unlock()

	s.setState(StateNegotiating)
	if s.initiator {
		if err := s.startNegotiation(); err != nil {
			s.End()
			return err
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			s.End()
		case <-s.done:
		}
	}()
	return nil
}

func (s *Session) wireCallbacks(pc *webrtc.PeerConnection) {
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		s.publishSignal(signaling.SignalICECandidate, c.ToJSON())
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Printf("CALL [%s]: remote %s track ssrc=%d", s.roomID, track.Kind(), track.SSRC())
		s.mu.Lock()
		s.remoteTracks = append(s.remoteTracks, track)
		s.mu.Unlock()
		s.stats.watch(s.roomID, pc, track, s.done)
		if s.opts.OnRemoteTrack != nil {
			s.opts.OnRemoteTrack(track)
		}
	})

	pc.OnConnectionStateChange(func(cs webrtc.PeerConnectionState) {
		log.Printf("CALL [%s]: connection state %s", s.roomID, cs)
		switch cs {
		case webrtc.PeerConnectionStateConnected:
			s.setState(StateConnected)
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
			// ICE may still recover within its timeouts; only an explicit
			// End (local or via /app/video.end on the backend) finishes
			// the session.
		}
	})
}

// HandleEnvelope routes one signaling message for this room. Messages for
// other rooms and this session's own echoes (the room topic broadcasts to
// both participants) are dropped.
func (s *Session) HandleEnvelope(env signaling.SignalEnvelope) {
	if env.RoomID != s.roomID || env.From == s.role {
		return
	}
	switch env.Type {
	case signaling.SignalOffer:
		if s.initiator {
			return // glare: the offerer ignores counter-offers
		}
		s.handleOffer(env.Data)
	case signaling.SignalAnswer:
		if !s.initiator {
			return
		}
		s.handleAnswer(env.Data)
	case signaling.SignalICECandidate:
		s.handleCandidate(env.Data)
	default:
		log.Printf("CALL [%s]: ignoring signal type %q", s.roomID, env.Type)
	}
}

func (s *Session) handleOffer(data json.RawMessage) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(data, &desc); err != nil {
		log.Printf("CALL [%s]: bad offer: %v", s.roomID, err)
		return
	}

	s.mu.Lock()
	if s.ended || s.pc == nil {
		s.mu.Unlock()
		return
	}
	if s.answered {
		// Retransmitted offer we already answered: the initiator just
		// hasn't seen our answer yet. Re-publish it instead of resetting
		// the remote description mid-ICE.
		local := s.pc.LocalDescription()
		s.mu.Unlock()
		if local != nil {
			s.publishSignal(signaling.SignalAnswer, local)
		}
		return
	}
	pc := s.pc
	s.mu.Unlock()

	if err := pc.SetRemoteDescription(desc); err != nil {
		log.Printf("CALL [%s]: SetRemoteDescription(offer): %v", s.roomID, err)
		return
	}
	s.flushPending()

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		log.Printf("CALL [%s]: CreateAnswer: %v", s.roomID, err)
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		log.Printf("CALL [%s]: SetLocalDescription(answer): %v", s.roomID, err)
		return
	}

	s.mu.Lock()
	s.answered = true
	s.mu.Unlock()
	s.publishSignal(signaling.SignalAnswer, answer)
}

func (s *Session) handleAnswer(data json.RawMessage) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(data, &desc); err != nil {
		log.Printf("CALL [%s]: bad answer: %v", s.roomID, err)
		return
	}

	s.mu.Lock()
	if s.ended || s.answered || s.pc == nil {
		s.mu.Unlock()
		return
	}
	s.answered = true
	pc := s.pc
	s.mu.Unlock()

	if err := pc.SetRemoteDescription(desc); err != nil {
		log.Printf("CALL [%s]: SetRemoteDescription(answer): %v", s.roomID, err)
		return
	}
	s.flushPending()
}

// handleCandidate applies a remote ICE candidate, queueing it when it arrives
// before the remote description (candidates and descriptions race on the
// broadcast topic).
func (s *Session) handleCandidate(data json.RawMessage) {
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(data, &cand); err != nil {
		log.Printf("CALL [%s]: bad ice candidate: %v", s.roomID, err)
		return
	}

	s.mu.Lock()
	if s.ended || s.pc == nil {
		s.mu.Unlock()
		return
	}
	if !s.remoteReady {
		s.pending = append(s.pending, cand)
		n := len(s.pending)
		s.mu.Unlock()
		log.Printf("CALL [%s]: queued ice candidate (%d pending)", s.roomID, n)
		return
	}
	pc := s.pc
	s.mu.Unlock()

	if err := pc.AddICECandidate(cand); err != nil {
		log.Printf("CALL [%s]: AddICECandidate: %v", s.roomID, err)
	}
}

// flushPending applies candidates queued before the remote description was
// set. Must be called with the remote description in place.
func (s *Session) flushPending() {
	s.mu.Lock()
	s.remoteReady = true
	queued := s.pending
	s.pending = nil
	pc := s.pc
	s.mu.Unlock()

	if pc == nil {
		return
	}
	for _, cand := range queued {
		if err := pc.AddICECandidate(cand); err != nil {
			log.Printf("CALL [%s]: AddICECandidate (queued): %v", s.roomID, err)
		}
	}
	if len(queued) > 0 {
		log.Printf("CALL [%s]: applied %d queued ice candidates", s.roomID, len(queued))
	}
}

func (s *Session) startNegotiation() error {
	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	s.publishSignal(signaling.SignalOffer, offer)
	go s.retransmitOffer()
	return nil
}

// retransmitOffer re-publishes the current local description until the remote
// side answers. pc.LocalDescription() accretes gathered ICE candidates, so a
// receiver that subscribed late still gets a complete offer.
func (s *Session) retransmitOffer() {
	ticker := time.NewTicker(offerRetransmitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if s.ended || s.answered || s.pc == nil {
			s.mu.Unlock()
			return
		}
		local := s.pc.LocalDescription()
		s.mu.Unlock()

		if local == nil {
			continue
		}
		log.Printf("CALL [%s]: re-sending offer (no answer yet)", s.roomID)
		s.publishSignal(signaling.SignalOffer, local)
	}
}

func (s *Session) publishSignal(t signaling.SignalType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("CALL [%s]: marshal %s: %v", s.roomID, t, err)
		return
	}
	env := signaling.SignalEnvelope{Type: t, Data: data, From: s.role, RoomID: s.roomID}
	if err := s.sig.Publish(signaling.DestVideoSignal, env); err != nil {
		log.Printf("CALL [%s]: dropped %s signal: %v", s.roomID, t, err)
	}
}

// ToggleMute flips local audio on/off without renegotiation by swapping the
// audio sender's track. Returns the new muted state (true = muted).
func (s *Session) ToggleMute() bool {
	s.mu.Lock()
	s.muted = !s.muted
	muted := s.muted
	media := s.media
	s.mu.Unlock()

	s.swapSenderTrack(media, webrtc.RTPCodecTypeAudio, !muted)
	log.Printf("CALL [%s]: audio muted=%v", s.roomID, muted)
	return muted
}

// ToggleCamera flips local video on/off. Returns the new disabled state
// (true = camera off).
func (s *Session) ToggleCamera() bool {
	s.mu.Lock()
	s.cameraOff = !s.cameraOff
	off := s.cameraOff
	media := s.media
	s.mu.Unlock()

	s.swapSenderTrack(media, webrtc.RTPCodecTypeVideo, !off)
	log.Printf("CALL [%s]: camera disabled=%v", s.roomID, off)
	return off
}

func (s *Session) swapSenderTrack(media *localMedia, kind webrtc.RTPCodecType, enabled bool) {
	sender, track := media.sender(kind)
	if sender == nil {
		return // receive-only session, nothing to toggle
	}
	var next webrtc.TrackLocal
	if enabled {
		next = track
	}
	if err := sender.ReplaceTrack(next); err != nil {
		log.Printf("CALL [%s]: ReplaceTrack(%s): %v", s.roomID, kind, err)
	}
}

// End tears the session down: best-effort end notice to the backend, local
// media released, PeerConnection closed, room subscription dropped.
// Idempotent: safe to call multiple times and from any state.
func (s *Session) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	unsub := s.unsubscribe
	media := s.media
	pc := s.pc
	s.unsubscribe = nil
	s.mu.Unlock()

	if err := s.sig.Publish(signaling.DestVideoEnd, signaling.EndNotice{RoomID: s.roomID}); err != nil {
		log.Printf("CALL [%s]: end notice dropped: %v", s.roomID, err)
	}
	media.close()
	if pc != nil {
		if err := pc.Close(); err != nil {
			log.Printf("CALL [%s]: close peer connection: %v", s.roomID, err)
		}
	}
	if unsub != nil {
		unsub()
	}
	close(s.done)
	s.setState(StateEnded)
	log.Printf("CALL [%s]: ended after %s", s.roomID, s.Duration().Round(time.Second))
}

// setState advances the lifecycle. Transitions never move backwards and
// nothing leaves Ended.
func (s *Session) setState(next State) {
	s.mu.Lock()
	if s.state == StateEnded || next <= s.state {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()

	log.Printf("CALL [%s]: state → %s", s.roomID, next)
	if s.opts.OnState != nil {
		s.opts.OnState(next)
	}
}

// State reports the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RoomID returns the room this session is scoped to.
func (s *Session) RoomID() string { return s.roomID }

// Role returns which side of the call this session is.
func (s *Session) Role() signaling.Role { return s.role }

// Done is closed when the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// MediaErr reports ErrMediaAccessDenied when the session runs receive-only
// because no camera or microphone could be opened, nil otherwise.
func (s *Session) MediaErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.media == nil {
		return nil
	}
	return s.media.err
}

// Duration is the wall-clock time since Start, measured from call setup, not
// from ICE connection.
func (s *Session) Duration() time.Duration {
	s.mu.Lock()
	started := s.startedAt
	s.mu.Unlock()
	if started.IsZero() {
		return 0
	}
	return time.Since(started)
}

// RemoteTracks returns the remote tracks received so far.
func (s *Session) RemoteTracks() []*webrtc.TrackRemote {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*webrtc.TrackRemote, len(s.remoteTracks))
	copy(out, s.remoteTracks)
	return out
}

// Stats returns per-track receive counters.
func (s *Session) Stats() []TrackStats {
	return s.stats.snapshot()
}

// pendingCandidates reports how many remote candidates are queued awaiting
// the remote description.
func (s *Session) pendingCandidates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
