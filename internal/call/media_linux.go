//go:build linux && cgo

package call

import (
	"log"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

// newPeerConnection creates the PeerConnection with VP8+Opus codecs and
// attempts to capture local camera/mic via pion/mediadevices (V4L2 + malgo).
// Capture failure never fails the call: the returned localMedia carries
// ErrMediaAccessDenied in err and the connection is receive-only.
func newPeerConnection(roomID string, stunServers []string) (*webrtc.PeerConnection, *localMedia, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, nil, err
	}
	vpxParams.BitRate = 1_500_000 // 1.5 Mbps

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, nil, err
	}

	codecSelector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	mediaEngine := &webrtc.MediaEngine{}
	codecSelector.Populate(mediaEngine)

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, nil, err
	}

	// Generous ICE timeouts so a brief NAT hiccup does not immediately
	// terminate the call. The default disconnectedTimeout is 5 s, too short
	// for paths that see short outages during re-keying or failover.
	se := webrtc.SettingEngine{}
	se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)

	pc, err := api.NewPeerConnection(iceConfig(stunServers))
	if err != nil {
		return nil, nil, err
	}

	media := captureLocalMedia(roomID, pc, codecSelector)
	return pc, media, nil
}

// captureLocalMedia tries video+audio, then video-only, then audio-only so a
// missing or busy microphone doesn't prevent the camera from working and vice
// versa. GetUserMedia fails as a unit if either requested track can't open.
func captureLocalMedia(roomID string, pc *webrtc.PeerConnection, codecSelector *mediadevices.CodecSelector) *localMedia {
	type attempt struct {
		video bool
		audio bool
		label string
	}
	for _, a := range []attempt{
		{true, true, "video+audio"},
		{true, false, "video-only"},
		{false, true, "audio-only"},
	} {
		constraints := mediadevices.MediaStreamConstraints{Codec: codecSelector}
		if a.video {
			constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
				// Exclude MJPEG: some cameras expose an MJPEG V4L2 node
				// that produces malformed frames which poison the VP8
				// encoder. Raw formats only.
				c.FrameFormat = prop.FrameFormatOneOf{
					frame.FormatYUYV,
					frame.FormatI420,
					frame.FormatI444,
					frame.FormatRGBA,
				}
				c.Width = prop.IntRanged{Max: 640}
				c.Height = prop.IntRanged{Max: 480}
			}
		}
		if a.audio {
			constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
		}

		stream, err := mediadevices.GetUserMedia(constraints)
		if err != nil {
			log.Printf("CALL [%s]: GetUserMedia (%s) failed: %v", roomID, a.label, err)
			continue
		}

		tracks := stream.GetTracks()
		media := &localMedia{
			senders: make(map[webrtc.RTPCodecType]*webrtc.RTPSender),
			tracks:  make(map[webrtc.RTPCodecType]webrtc.TrackLocal),
		}
		ok := true
		for _, track := range tracks {
			track.OnEnded(func(err error) {
				if err != nil {
					log.Printf("CALL [%s]: local track ended: %v", roomID, err)
				}
			})
			sender, err := pc.AddTrack(track)
			if err != nil {
				log.Printf("CALL [%s]: AddTrack error: %v", roomID, err)
				ok = false
				break
			}
			media.senders[track.Kind()] = sender
			media.tracks[track.Kind()] = track
		}
		if !ok {
			for _, t := range tracks {
				t.Close()
			}
			continue
		}

		// Negotiate receive legs for kinds we could not capture, so the
		// remote side's tracks still have an m-line to land on.
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
			if _, captured := media.tracks[kind]; captured {
				continue
			}
			if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				log.Printf("CALL [%s]: AddTransceiver(%s) error: %v", roomID, kind, err)
			}
		}

		media.stop = func() {
			for _, t := range tracks {
				t.Close()
			}
		}
		log.Printf("CALL [%s]: local media captured (%s), %d tracks", roomID, a.label, len(tracks))
		return media
	}

	// All attempts failed; fall back to receive-only so the call can still
	// show remote media without a local camera/mic.
	log.Printf("CALL [%s]: all media capture attempts failed, proceeding receive-only", roomID)
	addRecvOnlyTransceivers(roomID, pc)
	return &localMedia{err: ErrMediaAccessDenied}
}
