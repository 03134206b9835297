package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultWSTimeout = 30 * time.Second

// WSTranscriber talks to a local STT engine over websockets: one binary wav
// frame out, one text frame back.
//
// Each connection carries at most one outstanding request. A request takes an
// idle connection when one exists and dials otherwise, so concurrent calls
// never wait on each other. Up to poolSize connections are kept idle between
// requests. A connection that errors is dropped and the request is retried
// once on a fresh one.
type WSTranscriber struct {
	url    string
	dialer *websocket.Dialer
	log    *slog.Logger

	idle chan *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func NewWSTranscriber(url string, poolSize int, log *slog.Logger) *WSTranscriber {
	if poolSize <= 0 {
		poolSize = 4
	}
	if log == nil {
		log = slog.Default()
	}
	return &WSTranscriber{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		log:    log,
		idle:   make(chan *websocket.Conn, poolSize),
	}
}

func (t *WSTranscriber) Transcribe(ctx context.Context, wavPath string) (text string, err error) {
	start := time.Now()
	defer func() { observe("stt", start, err) }()

	audio, err := os.ReadFile(wavPath)
	if err != nil || len(audio) == 0 {
		return "", ErrNoAudio
	}

	for attempt := 0; attempt < 2; attempt++ {
		conn, fresh, err := t.conn(ctx)
		if err != nil {
			return "", err
		}
		text, err = roundTrip(ctx, conn, audio)
		if err == nil {
			t.release(conn)
			return strings.TrimSpace(text), nil
		}
		_ = conn.Close()
		if fresh || ctx.Err() != nil {
			return "", fmt.Errorf("speech: stt round trip: %w", err)
		}
		t.log.Warn("stt connection dropped, reconnecting", "err", err)
	}
	return "", fmt.Errorf("speech: stt unavailable")
}

// conn returns an idle connection or dials a new one; fresh reports the latter.
func (t *WSTranscriber) conn(ctx context.Context) (*websocket.Conn, bool, error) {
	select {
	case c := <-t.idle:
		return c, false, nil
	default:
	}
	c, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return nil, true, fmt.Errorf("speech: dial stt %s: %w", t.url, err)
	}
	return c, true, nil
}

func (t *WSTranscriber) release(c *websocket.Conn) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		_ = c.Close()
		return
	}
	select {
	case t.idle <- c:
	default:
		_ = c.Close()
	}
}

func roundTrip(ctx context.Context, c *websocket.Conn, audio []byte) (string, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWSTimeout)
	}
	_ = c.SetWriteDeadline(deadline)
	_ = c.SetReadDeadline(deadline)
	if err := c.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return "", err
	}
	_, msg, err := c.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(msg), nil
}

// Close drops every pooled connection.
func (t *WSTranscriber) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	for {
		select {
		case c := <-t.idle:
			_ = c.Close()
		default:
			return nil
		}
	}
}
