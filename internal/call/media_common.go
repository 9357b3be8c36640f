package call

import (
	"log"

	"github.com/pion/webrtc/v4"
)

// localMedia holds whatever local capture succeeded for one session. senders
// and tracks are keyed by codec type so mute/camera toggles can swap the
// right sender's track without renegotiation. err is ErrMediaAccessDenied
// when capture failed entirely and the session is receive-only.
type localMedia struct {
	senders map[webrtc.RTPCodecType]*webrtc.RTPSender
	tracks  map[webrtc.RTPCodecType]webrtc.TrackLocal
	stop    func()
	err     error
}

func (m *localMedia) sender(kind webrtc.RTPCodecType) (*webrtc.RTPSender, webrtc.TrackLocal) {
	if m == nil {
		return nil, nil
	}
	return m.senders[kind], m.tracks[kind]
}

func (m *localMedia) close() {
	if m != nil && m.stop != nil {
		m.stop()
	}
}

func iceConfig(stunServers []string) webrtc.Configuration {
	servers := make([]webrtc.ICEServer, 0, len(stunServers))
	for _, u := range stunServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	return webrtc.Configuration{ICEServers: servers}
}

// addRecvOnlyTransceivers adds recvonly transceivers for video and audio so
// CreateOffer/CreateAnswer always produces valid m-lines with ICE credentials.
func addRecvOnlyTransceivers(roomID string, pc *webrtc.PeerConnection) {
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		log.Printf("CALL [%s]: AddTransceiver(video) error: %v", roomID, err)
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		log.Printf("CALL [%s]: AddTransceiver(audio) error: %v", roomID, err)
	}
}
