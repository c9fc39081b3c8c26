package mockfeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tickfeed/internal/feed"
	"tickfeed/internal/infra"
)

// SourceFactory builds a fresh Source for each client connection.
type SourceFactory func() (Source, error)

// Server streams fixed-width records to every client that connects, over raw
// TCP or WebSocket. Each connection gets its own Source and its own pacing.
type Server struct {
	cfg       infra.ServerConfig
	newSource SourceFactory
	upgrader  websocket.Upgrader

	tcpWG sync.WaitGroup // owned by ServeTCP
	wsWG  sync.WaitGroup // WSHandler requests
}

// NewServer creates a server. cfg.Records caps records per connection (0 = unbounded),
// cfg.RatePerSec paces emission (0 = as fast as the socket accepts).
func NewServer(cfg infra.ServerConfig, newSource SourceFactory) *Server {
	if cfg.Batch < 1 {
		cfg.Batch = 1
	}
	return &Server{
		cfg:       cfg,
		newSource: newSource,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeTCP accepts connections on ln until ctx is done, then waits for
// its in-flight connections to finish. ln is closed on return.
func (s *Server) ServeTCP(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	slog.Info("Mock feed listening", slog.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.tcpWG.Wait()
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.tcpWG.Add(1)
		go func() {
			defer s.tcpWG.Done()
			s.handleTCP(ctx, conn)
		}()
	}
}

func (s *Server) handleTCP(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	// closing the socket is what unblocks a write to a stalled client
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	remote := conn.RemoteAddr().String()
	src, err := s.newSource()
	if err != nil {
		slog.Error("Failed to create source", slog.String("remote", remote), slog.Any("error", err))
		return
	}

	slog.Info("Client connected", slog.String("remote", remote), slog.String("transport", "tcp"))
	n, err := s.emit(ctx, src, func(b []byte) error {
		_, err := conn.Write(b)
		return err
	})
	s.logDone(ctx, remote, n, err)
}

// WSHandler returns an http.Handler that upgrades to WebSocket and streams
// records as binary messages of up to cfg.Batch records each. Streams stop
// when ctx is done; hijacked connections are not covered by http.Server.Shutdown.
func (s *Server) WSHandler(ctx context.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Add before the upgrade: Shutdown waits for active requests, not hijacked ones.
		s.wsWG.Add(1)
		defer s.wsWG.Done()

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("WS upgrade failed", slog.Any("error", err))
			return
		}
		defer conn.Close()

		stop := context.AfterFunc(ctx, func() { conn.Close() })
		defer stop()

		remote := r.RemoteAddr
		src, err := s.newSource()
		if err != nil {
			slog.Error("Failed to create source", slog.String("remote", remote), slog.Any("error", err))
			return
		}

		slog.Info("Client connected", slog.String("remote", remote), slog.String("transport", "ws"))
		n, err := s.emit(ctx, src, func(b []byte) error {
			return conn.WriteMessage(websocket.BinaryMessage, b)
		})
		s.logDone(ctx, remote, n, err)

		if err == nil {
			// end of stream: close handshake so the client reads a clean EOF
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)) == nil {
				conn.SetReadDeadline(time.Now().Add(time.Second))
				for {
					if _, _, err := conn.NextReader(); err != nil {
						break
					}
				}
			}
		}
	})
}

// Wait blocks until all connection handlers have returned. Stop the
// listeners first: the HTTP server serving WSHandler must be shut down
// before Wait is called.
func (s *Server) Wait() {
	s.tcpWG.Wait()
	s.wsWG.Wait()
}

// emit pulls records from src and passes them to send in wire form.
// Unpaced streams are sent cfg.Batch records at a time; paced streams record by record.
// It returns the number of records send accepted.
func (s *Server) emit(ctx context.Context, src Source, send func([]byte) error) (uint64, error) {
	var limiter *infra.RateLimiter
	batch := s.cfg.Batch
	if s.cfg.RatePerSec > 0 {
		limiter = infra.NewRateLimiter(max(s.cfg.Burst, 1), s.cfg.RatePerSec)
		batch = 1
	}

	limit := uint64(s.cfg.Records)
	buf := make([]byte, 0, batch*feed.RecordSize)
	var sent, pending uint64

	flush := func() error {
		if pending == 0 {
			return nil
		}
		if err := send(buf); err != nil {
			return err
		}
		sent += pending
		pending = 0
		buf = buf[:0]
		return nil
	}

	for limit == 0 || sent+pending < limit {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return sent, err
			}
		} else if err := ctx.Err(); err != nil {
			return sent, err
		}

		rec, ok := src.Next()
		if !ok {
			break
		}
		buf = feed.AppendRecord(buf, rec)
		pending++

		if len(buf) == cap(buf) {
			if err := flush(); err != nil {
				return sent, err
			}
		}
	}

	return sent, flush()
}

func (s *Server) logDone(ctx context.Context, remote string, n uint64, err error) {
	switch {
	case err == nil:
		slog.Info("Stream complete", slog.String("remote", remote), slog.Uint64("records", n))
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		slog.Info("Stream stopped (shutdown)", slog.String("remote", remote), slog.Uint64("records", n))
	default:
		// broken pipe / reset: the client went away
		slog.Info("Client disconnected", slog.String("remote", remote),
			slog.Uint64("records", n), slog.Any("error", err))
	}
}
