package ws

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Default timeouts for the transport socket.
const (
	// defaultConnectTimeout is the maximum time to wait for the TCP dial
	// plus the upgrade handshake.
	defaultConnectTimeout = 10 * time.Second

	// defaultWriteTimeout is the per-frame write deadline.
	defaultWriteTimeout = 5 * time.Second
)

// Logger is the optional logging interface used by the transport.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Transport owns one WebSocket connection to the server.
//
// Thread Safety:
//   - Send is safe for concurrent use; a send lock serializes frame writes
//     so two frames are never interleaved on the wire.
//   - NextMessage and NextError are intended for a single consumer that
//     drains them each tick.
//   - Close is idempotent and safe from any goroutine.
type Transport struct {
	// conn and reader are set by Connect before the read loop starts and
	// are only replaced after the previous loop has exited.
	conn   net.Conn
	reader *bufio.Reader

	connected atomic.Bool

	// sendMu serializes whole-frame writes (commands, pong replies, close).
	sendMu sync.Mutex

	messages queue[string]
	errs     queue[error]

	done *closeOnce
	wg   sync.WaitGroup

	logger Logger
}

// New creates an unconnected Transport.
func New() *Transport {
	return &Transport{logger: noopLogger{}}
}

// SetLogger sets the logger for the transport.
func (t *Transport) SetLogger(logger Logger) {
	t.logger = logger
}

// Connect dials the server and performs the WebSocket upgrade handshake.
//
// On success it starts the background read loop and returns nil. On any
// dial or handshake failure it returns a descriptive error and leaves the
// transport disconnected; the caller must not proceed to the protocol
// handshake.
func (t *Transport) Connect(host string, port int, path string) error {
	if t.connected.Load() {
		return ErrAlreadyConnected
	}

	// Release any previous connection before dialing: close its socket,
	// join its read loop and drop whatever it queued, so a dead or stalled
	// reader from an earlier session cannot touch the new one.
	t.teardown()
	t.messages.clear()
	t.errs.clear()

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	conn, err := net.DialTimeout("tcp", addr, defaultConnectTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	// Frames are small and latency-sensitive; do not batch them.
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	reader := bufio.NewReader(conn)
	if err := t.upgrade(conn, reader, host, port, path); err != nil {
		conn.Close()
		return err
	}

	t.conn = conn
	t.reader = reader
	t.done = newCloseOnce()
	t.connected.Store(true)

	t.wg.Add(1)
	go t.readLoop(conn, reader)

	t.logger.Info("transport connected", "addr", addr, "path", path)
	return nil
}

// upgrade writes the HTTP/1.1 upgrade request and validates the response.
// The status line must contain "101"; remaining response headers are read
// and discarded so the reader is positioned at the first frame.
func (t *Transport) upgrade(conn net.Conn, reader *bufio.Reader, host string, port int, path string) error {
	nonce := make([]byte, 16)
	_, _ = rand.Read(nonce)
	key := base64.StdEncoding.EncodeToString(nonce)

	if path == "" {
		path = "/"
	}

	req := fmt.Sprintf("GET %s HTTP/1.1\r\n"+
		"Host: %s:%d\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Key: %s\r\n"+
		"Sec-WebSocket-Version: 13\r\n"+
		"\r\n", path, host, port, key)

	if err := conn.SetDeadline(time.Now().Add(defaultConnectTimeout)); err != nil {
		return fmt.Errorf("set handshake deadline: %w", err)
	}

	if _, err := conn.Write([]byte(req)); err != nil {
		return fmt.Errorf("write upgrade request: %w", err)
	}

	statusLine, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read upgrade response: %w", err)
	}
	if !strings.Contains(statusLine, "101") {
		return fmt.Errorf("%w: status %q", ErrHandshakeFailed, strings.TrimSpace(statusLine))
	}

	// Consume the remaining response headers.
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read upgrade headers: %w", err)
		}
		if line == "\r\n" || line == "\n" {
			break
		}
	}

	// Clear the handshake deadline; frame reads block indefinitely.
	return conn.SetDeadline(time.Time{})
}

// Send frames the text as a single masked client frame and writes it.
//
// A write failure marks the transport disconnected, enqueues the error for
// the tick-side consumer and returns it.
func (t *Transport) Send(text string) error {
	if !t.connected.Load() {
		return ErrNotConnected
	}
	return t.writeFrame(opText, []byte(text))
}

// writeFrame masks and writes one complete frame under the send lock.
func (t *Transport) writeFrame(opcode byte, payload []byte) error {
	buf := encodeClientFrame(opcode, payload, newMaskKey())

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	conn := t.conn
	if conn == nil {
		return ErrNotConnected
	}

	if err := conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if _, err := conn.Write(buf); err != nil {
		t.connected.Store(false)
		werr := fmt.Errorf("write frame: %w", err)
		t.errs.push(werr)
		return werr
	}
	return nil
}

// readLoop reads one frame at a time until disconnect or shutdown. It owns
// the passed conn's fd from here on: every exit path closes the socket, so a
// dropped connection never outlives the loop that noticed the drop.
func (t *Transport) readLoop(conn net.Conn, reader *bufio.Reader) {
	defer t.wg.Done()
	defer conn.Close()

	for {
		select {
		case <-t.done.Done():
			return
		default:
		}

		f, err := readFrame(reader)
		if err != nil {
			t.connected.Store(false)
			if !t.isClosed() {
				t.errs.push(fmt.Errorf("connection lost: %w", err))
			}
			return
		}

		switch f.opcode {
		case opText:
			t.messages.push(string(f.payload))
		case opBinary:
			// The protocol never uses binary frames.
		case opClose:
			t.logger.Debug("close frame received")
			t.connected.Store(false)
			return
		case opPing:
			// Reply immediately; the pong echoes the ping payload and is
			// not surfaced to the consumer.
			if err := t.writeFrame(opPong, f.payload); err != nil {
				t.logger.Warn("pong reply failed", "error", err)
			}
		case opPong:
			// Keepalive acknowledgment, nothing to do.
		default:
			// Continuation frames and reserved opcodes are ignored; a
			// message is assumed to arrive in a single frame.
		}
	}
}

// Close shuts the transport down: a best-effort masked close frame, then an
// unconditional socket close, then the read loop is joined. Idempotent.
func (t *Transport) Close() {
	if t.done == nil {
		return
	}

	if t.connected.Load() {
		if err := t.writeFrame(opClose, nil); err != nil {
			t.logger.Debug("close frame send failed", "error", err)
		}
	}

	t.teardown()
}

// teardown closes the socket, signals the read loop and waits for it to
// exit. No-op when the transport never connected. Idempotent.
func (t *Transport) teardown() {
	if t.done == nil {
		return
	}

	t.connected.Store(false)
	t.done.Close()

	if t.conn != nil {
		// Unblocks the reader if it is mid-read.
		t.conn.Close()
	}

	t.wg.Wait()
}

// NextMessage dequeues at most one received text message.
// Call repeatedly until the second return is false to drain the queue.
func (t *Transport) NextMessage() (string, bool) {
	return t.messages.pop()
}

// NextError dequeues at most one transport error.
// Call repeatedly until the second return is false to drain the queue.
func (t *Transport) NextError() (error, bool) {
	return t.errs.pop()
}

// IsConnected reports whether the connection is believed live. The flag
// flips to false on read or write failure before the error is queued.
func (t *Transport) IsConnected() bool {
	return t.connected.Load()
}

// isClosed returns true once Close has been requested.
func (t *Transport) isClosed() bool {
	select {
	case <-t.done.Done():
		return true
	default:
		return false
	}
}
