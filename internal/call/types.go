// Package call implements one WebRTC call between the visitor and the admin.
// It is designed to be maximally standalone: it imports Pion libraries, the
// wire types from internal/signaling, and stdlib. Coupling to the transport is
// via the Signaler interface only, so sessions run identically over the live
// STOMP channel and the in-memory broker.
package call

import "errors"

// Signaler is the only surface the call package needs from the realtime
// layer. Both *signaling.Channel and *signaling.BrokerConn satisfy it.
type Signaler interface {
	Publish(destination string, payload any) error
	Subscribe(topic string, handler func(body []byte)) (cancel func(), err error)
}

// ErrMediaAccessDenied reports that no camera or microphone could be opened.
// The session downgrades to receive-only instead of failing; callers surface
// the error to the user via MediaErr.
var ErrMediaAccessDenied = errors.New("call: camera/microphone unavailable or access denied")

// ErrSessionEnded is returned by operations invoked after End.
var ErrSessionEnded = errors.New("call: session already ended")

// ErrAlreadyStarted is returned by Start when the session left Idle before.
var ErrAlreadyStarted = errors.New("call: session already started")

// State is the lifecycle phase of a Session. Transitions only move forward:
// Idle → AcquiringMedia → Negotiating → Connected → Ended, with Ended
// reachable from any phase.
type State int

const (
	StateIdle State = iota
	StateAcquiringMedia
	StateNegotiating
	StateConnected
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringMedia:
		return "acquiring-media"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}
