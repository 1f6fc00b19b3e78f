package ws

import (
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// echoServer upgrades with gorilla/websocket, an independent implementation,
// and echoes every text message back. It validates our hand-rolled framing
// against a real peer.
func echoServer(t *testing.T) (*httptest.Server, string, int) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.TextMessage {
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)

	host, port := hostPort(t, srv.URL)
	return srv, host, port
}

func hostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse server port: %v", err)
	}
	return u.Hostname(), port
}

// waitFor polls cond until it is true or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestConnectSendReceive(t *testing.T) {
	_, host, port := echoServer(t)

	tr := New()
	if err := tr.Connect(host, port, "/"); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer tr.Close()

	if !tr.IsConnected() {
		t.Fatal("IsConnected() = false after successful Connect")
	}

	const msg = `[{"Ping":{"Id":42}}]`
	if err := tr.Send(msg); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	var got string
	ok := waitFor(t, 2*time.Second, func() bool {
		m, found := tr.NextMessage()
		if found {
			got = m
		}
		return found
	})
	if !ok {
		t.Fatal("no echoed message received")
	}
	if got != msg {
		t.Errorf("echoed message = %q, want %q", got, msg)
	}

	if _, found := tr.NextMessage(); found {
		t.Error("message queue should be drained")
	}
}

func TestSendLargePayload(t *testing.T) {
	_, host, port := echoServer(t)

	tr := New()
	if err := tr.Connect(host, port, "/"); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer tr.Close()

	// Forces the 16-bit length tier through a real peer.
	msg := strings.Repeat("x", 4096)
	if err := tr.Send(msg); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	var got string
	if !waitFor(t, 2*time.Second, func() bool {
		m, found := tr.NextMessage()
		if found {
			got = m
		}
		return found
	}) {
		t.Fatal("no echoed message received")
	}
	if got != msg {
		t.Errorf("echoed payload length = %d, want %d", len(got), len(msg))
	}
}

func TestHandshakeRejected(t *testing.T) {
	// A plain HTTP server that refuses to upgrade.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 1024)
		_, _ = conn.Read(buf)
		_, _ = conn.Write([]byte("HTTP/1.1 400 Bad Request\r\nContent-Length: 0\r\n\r\n"))
	}()

	host, port := hostPort(t, "http://"+ln.Addr().String())

	tr := New()
	err = tr.Connect(host, port, "/")
	if err == nil {
		t.Fatal("Connect() should fail on non-101 response")
	}
	if tr.IsConnected() {
		t.Error("IsConnected() = true after rejected handshake")
	}
}

func TestPingAutoPong(t *testing.T) {
	pongReceived := make(chan struct{}, 1)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.SetPongHandler(func(appData string) error {
			if appData == "keepalive" {
				select {
				case pongReceived <- struct{}{}:
				default:
				}
			}
			return nil
		})

		if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(time.Second)); err != nil {
			return
		}

		// Keep reading so control frames are processed.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	host, port := hostPort(t, srv.URL)

	tr := New()
	if err := tr.Connect(host, port, "/"); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer tr.Close()

	select {
	case <-pongReceived:
		// Pong echoed the ping payload.
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive pong reply")
	}

	// Pings are handled internally, never queued to the consumer.
	if _, found := tr.NextMessage(); found {
		t.Error("ping leaked into the message queue")
	}
}

func TestServerDropQueuesError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Drop the socket without a close frame.
		conn.UnderlyingConn().Close()
	}))
	defer srv.Close()

	host, port := hostPort(t, srv.URL)

	tr := New()
	if err := tr.Connect(host, port, "/"); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer tr.Close()

	if !waitFor(t, 2*time.Second, func() bool { return !tr.IsConnected() }) {
		t.Fatal("transport still connected after server dropped the socket")
	}

	if !waitFor(t, time.Second, func() bool {
		_, found := tr.NextError()
		return found
	}) {
		t.Error("no error queued after unexpected disconnect")
	}
}

func TestCloseIdempotent(t *testing.T) {
	_, host, port := echoServer(t)

	tr := New()
	if err := tr.Connect(host, port, "/"); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	tr.Close()
	tr.Close() // second close must be a no-op

	if tr.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := tr.Send("x"); err == nil {
		t.Error("Send() after Close should fail")
	}
}

func TestCloseWithoutConnect(t *testing.T) {
	tr := New()
	tr.Close() // must not panic
}

func TestConcurrentSend(t *testing.T) {
	_, host, port := echoServer(t)

	tr := New()
	if err := tr.Connect(host, port, "/"); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer tr.Close()

	// Interleaved frame writes from many goroutines; the echo server's
	// decoder fails the test naturally if frames are corrupted.
	const senders = 8
	const perSender = 25
	done := make(chan struct{})
	for i := 0; i < senders; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < perSender; j++ {
				_ = tr.Send(strings.Repeat("m", 100+n))
			}
		}(i)
	}
	for i := 0; i < senders; i++ {
		<-done
	}

	count := 0
	waitFor(t, 3*time.Second, func() bool {
		for {
			_, found := tr.NextMessage()
			if !found {
				break
			}
			count++
		}
		return count == senders*perSender
	})
	if count != senders*perSender {
		t.Errorf("echoed messages = %d, want %d", count, senders*perSender)
	}
}

// dropServer upgrades and immediately drops the socket without a close frame.
func dropServer(t *testing.T) (string, int) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.UnderlyingConn().Close()
	}))
	t.Cleanup(srv.Close)

	host, port := hostPort(t, srv.URL)
	return host, port
}

func TestReconnectReleasesDroppedSockets(t *testing.T) {
	host, port := dropServer(t)

	fds, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skipf("cannot count open descriptors: %v", err)
	}
	before := len(fds)

	tr := New()
	defer tr.Close()

	const cycles = 20
	for i := 0; i < cycles; i++ {
		if err := tr.Connect(host, port, "/"); err != nil {
			t.Fatalf("Connect() cycle %d error: %v", i, err)
		}
		if !waitFor(t, 2*time.Second, func() bool { return !tr.IsConnected() }) {
			t.Fatalf("cycle %d: transport still connected after server dropped the socket", i)
		}
	}
	tr.Close()

	fds, err = os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Fatalf("recount open descriptors: %v", err)
	}
	after := len(fds)

	// A dropped connection must not outlive its session. Allow a little
	// slack for runtime descriptors, but nothing close to one per cycle.
	if after-before >= cycles/2 {
		t.Errorf("open descriptors grew from %d to %d over %d reconnect cycles", before, after, cycles)
	}
}

func TestReconnectClearsStaleSession(t *testing.T) {
	dropHost, dropPort := dropServer(t)
	_, echoHost, echoPort := echoServer(t)

	tr := New()
	defer tr.Close()

	if err := tr.Connect(dropHost, dropPort, "/"); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return !tr.IsConnected() }) {
		t.Fatal("transport still connected after server dropped the socket")
	}

	// Reconnect without draining. Connect joins the old reader first, so
	// the queued connection-lost error belongs to the dead session and must
	// not surface on the new one.
	if err := tr.Connect(echoHost, echoPort, "/"); err != nil {
		t.Fatalf("reconnect error: %v", err)
	}

	if err, found := tr.NextError(); found {
		t.Errorf("stale error leaked into new session: %v", err)
	}
	if _, found := tr.NextMessage(); found {
		t.Error("stale message leaked into new session")
	}

	if err := tr.Send("still alive"); err != nil {
		t.Fatalf("Send() on new session error: %v", err)
	}
	ok := waitFor(t, 2*time.Second, func() bool {
		m, found := tr.NextMessage()
		return found && m == "still alive"
	})
	if !ok {
		t.Fatal("no echo on the new session")
	}
	if !tr.IsConnected() {
		t.Error("IsConnected() = false on healthy new session")
	}
}
