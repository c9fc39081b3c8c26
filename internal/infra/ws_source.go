package infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrTextMessage is returned when a feed WebSocket delivers a text frame.
var ErrTextMessage = errors.New("ws: unexpected text message on binary feed")

// WSSource exposes the binary messages of a WebSocket as one continuous byte stream.
// Message boundaries carry no meaning: a record may span two messages.
// There is no reconnect; a dropped connection ends the stream.
type WSSource struct {
	conn        *websocket.Conn
	cur         io.Reader
	readTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// DialWS connects to a feed WebSocket. readTimeout bounds the wait for each
// message (0 disables it).
func DialWS(ctx context.Context, url string, readTimeout time.Duration) (*WSSource, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := make(http.Header)
	header.Set("User-Agent", AppName)

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("ws dial %s: %w", url, err)
	}
	return &WSSource{conn: conn, readTimeout: readTimeout}, nil
}

// Read implements io.Reader. A normal close from the server is reported as io.EOF.
func (s *WSSource) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if s.cur == nil {
			if s.readTimeout > 0 {
				s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
			}
			typ, r, err := s.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				return 0, ErrTextMessage
			}
			s.cur = r
		}

		n, err := s.cur.Read(p)
		if errors.Is(err, io.EOF) {
			// message exhausted, move on to the next one
			s.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Close sends a close frame (best effort) and closes the connection.
// It is safe to call from another goroutine to abort a blocked Read.
func (s *WSSource) Close() error {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
