//go:build !linux || !cgo

package call

import (
	"log"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// newPeerConnection creates a receive-only PeerConnection on non-Linux
// platforms. Camera/mic capture via pion/mediadevices requires
// platform-specific drivers (V4L2/malgo on Linux), so here the session always
// reports ErrMediaAccessDenied and only receives remote media.
func newPeerConnection(roomID string, stunServers []string) (*webrtc.PeerConnection, *localMedia, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, nil, err
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, nil, err
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
	)

	pc, err := api.NewPeerConnection(iceConfig(stunServers))
	if err != nil {
		return nil, nil, err
	}

	addRecvOnlyTransceivers(roomID, pc)
	log.Printf("CALL [%s]: peer connection ready (receive-only, no local media on this platform)", roomID)
	return pc, &localMedia{err: ErrMediaAccessDenied}, nil
}
