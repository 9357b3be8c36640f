package signaling

import (
	"fmt"
	"io"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/gorilla/websocket"
)

const handshakeTimeout = 10 * time.Second

// wsStream adapts a WebSocket connection to the io.ReadWriteCloser that
// go-stomp expects. Each Write becomes one WebSocket text message (one STOMP
// frame per message, which is what @stomp/stompjs sends and what the Spring
// broker produces); Read drains inbound messages sequentially.
type wsStream struct {
	conn *websocket.Conn
	r    io.Reader
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.r == nil {
			_, r, err := s.conn.NextReader()
			if err != nil {
				return 0, err
			}
			s.r = r
		}
		n, err := s.r.Read(p)
		if err == io.EOF {
			s.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	if err := s.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}

// dialStomp opens the WebSocket leg and performs the STOMP handshake on top
// of it. Heartbeats are disabled: the SockJS layer has its own liveness
// handling and the original client never negotiated them either.
func dialStomp(socketURL string) (*stomp.Conn, *wsStream, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.Dial(socketURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", socketURL, err)
	}

	stream := &wsStream{conn: ws}
	conn, err := stomp.Connect(stream,
		stomp.ConnOpt.HeartBeat(0, 0),
		stomp.ConnOpt.Host("/"),
	)
	if err != nil {
		ws.Close()
		return nil, nil, fmt.Errorf("stomp handshake: %w", err)
	}
	return conn, stream, nil
}
