package call

import (
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// pliInterval is how often a keyframe is requested from the remote video
// sender. Without periodic PLIs a receiver that joins mid-stream (or drops a
// keyframe) can show corrupted video until the next natural keyframe.
const pliInterval = 3 * time.Second

// TrackStats is a snapshot of receive counters for one remote track.
type TrackStats struct {
	Kind     string
	SSRC     uint32
	Packets  uint64
	Bytes    uint64
	LastSeq  uint16
	LastSeen time.Time
}

type statsCollector struct {
	mu     sync.Mutex
	tracks map[uint32]*TrackStats
}

func newStatsCollector() *statsCollector {
	return &statsCollector{tracks: make(map[uint32]*TrackStats)}
}

// watch drains RTP from track, counting packets and bytes, and for video
// tracks runs the periodic PLI loop. Both goroutines stop when the track
// closes or done is closed.
func (c *statsCollector) watch(roomID string, pc *webrtc.PeerConnection, track *webrtc.TrackRemote, done <-chan struct{}) {
	ssrc := uint32(track.SSRC())
	c.mu.Lock()
	c.tracks[ssrc] = &TrackStats{Kind: track.Kind().String(), SSRC: ssrc}
	c.mu.Unlock()

	go c.readLoop(roomID, track, ssrc)
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		go c.pliLoop(roomID, pc, ssrc, done)
	}
}

func (c *statsCollector) readLoop(roomID string, track *webrtc.TrackRemote, ssrc uint32) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("CALL [%s]: rtp read (ssrc=%d): %v", roomID, ssrc, err)
			}
			return
		}
		c.record(ssrc, pkt)
	}
}

func (c *statsCollector) record(ssrc uint32, pkt *rtp.Packet) {
	c.mu.Lock()
	ts := c.tracks[ssrc]
	ts.Packets++
	ts.Bytes += uint64(len(pkt.Payload))
	ts.LastSeq = pkt.SequenceNumber
	ts.LastSeen = time.Now()
	c.mu.Unlock()
}

func (c *statsCollector) pliLoop(roomID string, pc *webrtc.PeerConnection, ssrc uint32, done <-chan struct{}) {
	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}
		err := pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}})
		if err != nil {
			log.Printf("CALL [%s]: PLI write (ssrc=%d): %v", roomID, ssrc, err)
			return
		}
	}
}

func (c *statsCollector) snapshot() []TrackStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TrackStats, 0, len(c.tracks))
	for _, ts := range c.tracks {
		out = append(out, *ts)
	}
	return out
}
