package mockfeed

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tickfeed/internal/feed"
	"tickfeed/internal/infra"
)

// counterSource yields records with Timestamp 0, 1, 2, ... up to n (n < 0 = forever).
type counterSource struct {
	i, n int
}

func (c *counterSource) Next() (feed.MarketRecord, bool) {
	if c.n >= 0 && c.i >= c.n {
		return feed.MarketRecord{}, false
	}
	rec := feed.MarketRecord{Timestamp: int64(c.i), Price: 100 + float64(c.i), Volume: 100}
	c.i++
	return rec, true
}

func counterFactory(n int) SourceFactory {
	return func() (Source, error) { return &counterSource{n: n}, nil }
}

func startTCP(t *testing.T, srv *Server) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeTCP(ctx, ln) }()
	return ln.Addr().String(), cancel, done
}

func readAll(t *testing.T, r io.Reader) ([]feed.MarketRecord, error) {
	t.Helper()
	fr := feed.NewReader(r)
	var out []feed.MarketRecord
	for {
		rec, err := fr.Next()
		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, err
		}
		out = append(out, rec)
	}
}

func TestServer_TCPRecordLimit(t *testing.T) {
	srv := NewServer(infra.ServerConfig{Records: 25, Batch: 8}, counterFactory(-1))
	addr, cancel, done := startTCP(t, srv)
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("ServeTCP returned %v", err)
		}
	}()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	recs, err := readAll(t, conn)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(recs) != 25 {
		t.Fatalf("got %d records; want 25", len(recs))
	}
	for i, rec := range recs {
		if rec.Timestamp != int64(i) {
			t.Fatalf("record %d = %+v", i, rec)
		}
	}
}

func TestServer_TCPSourceExhausted(t *testing.T) {
	srv := NewServer(infra.ServerConfig{Batch: 4}, counterFactory(6))
	addr, cancel, done := startTCP(t, srv)
	defer func() { cancel(); <-done }()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	recs, err := readAll(t, conn)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(recs) != 6 {
		t.Errorf("got %d records; want 6", len(recs))
	}
}

func TestServer_TCPPaced(t *testing.T) {
	// 20 records at 500/s with burst 1 take at least ~38ms
	srv := NewServer(infra.ServerConfig{Records: 20, RatePerSec: 500, Burst: 1, Batch: 64}, counterFactory(-1))
	addr, cancel, done := startTCP(t, srv)
	defer func() { cancel(); <-done }()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	start := time.Now()
	recs, err := readAll(t, conn)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(recs) != 20 {
		t.Fatalf("got %d records; want 20", len(recs))
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("paced stream finished in %v; pacing not applied", elapsed)
	}
}

func TestServer_ShutdownStopsUnboundedStream(t *testing.T) {
	srv := NewServer(infra.ServerConfig{Batch: 16}, counterFactory(-1))
	addr, cancel, done := startTCP(t, srv)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if _, err := feed.NextRecord(conn); err != nil {
		t.Fatalf("first record: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeTCP returned %v; want nil on shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ServeTCP did not return after cancel")
	}

	// The client sees the stream end: clean EOF, truncation or reset, never a hang.
	_, err = readAll(t, conn)
	if err != nil && !errors.Is(err, feed.ErrStreamTruncated) && !strings.Contains(err.Error(), "reset") {
		t.Errorf("unexpected read error after shutdown: %v", err)
	}
}

func TestServer_WebSocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer(infra.ServerConfig{Records: 10, Batch: 3}, counterFactory(-1))
	ts := httptest.NewServer(srv.WSHandler(ctx))
	defer ts.Close()

	url := strings.Replace(ts.URL, "http://", "ws://", 1)
	src, err := infra.DialWS(ctx, url, 5*time.Second)
	if err != nil {
		t.Fatalf("DialWS failed: %v", err)
	}
	defer src.Close()

	recs, err := readAll(t, src)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(recs) != 10 {
		t.Fatalf("got %d records; want 10", len(recs))
	}
	if recs[9].Timestamp != 9 || recs[9].Price != 109 {
		t.Errorf("last record = %+v", recs[9])
	}
}

func TestServer_WebSocketShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer(infra.ServerConfig{Batch: 4}, counterFactory(-1))
	ts := httptest.NewServer(srv.WSHandler(ctx))

	// a TCP listener shares the server, as in cmd/feedserver
	_, stopTCP, tcpDone := startTCP(t, srv)

	url := strings.Replace(ts.URL, "http://", "ws://", 1)
	src, err := infra.DialWS(context.Background(), url, 5*time.Second)
	if err != nil {
		t.Fatalf("DialWS failed: %v", err)
	}
	defer src.Close()

	if _, err := feed.NextRecord(src); err != nil {
		t.Fatalf("first record: %v", err)
	}

	// ServeTCP must not wait on the WebSocket stream that is still running.
	stopTCP()
	select {
	case <-tcpDone:
	case <-time.After(5 * time.Second):
		t.Fatal("ServeTCP blocked on a WebSocket handler")
	}

	cancel()
	ts.Close()

	waited := make(chan struct{})
	go func() {
		srv.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after shutdown")
	}

	// the client drains what was buffered and then sees the connection end
	_, _ = readAll(t, src)
}

func TestServer_SourceFactoryError(t *testing.T) {
	failing := func() (Source, error) { return nil, errors.New("no replay data") }
	srv := NewServer(infra.ServerConfig{Batch: 1}, failing)
	addr, cancel, done := startTCP(t, srv)
	defer func() { cancel(); <-done }()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if _, err := feed.NextRecord(conn); err != io.EOF {
		t.Errorf("err = %v; want io.EOF when the server has no source", err)
	}
}
