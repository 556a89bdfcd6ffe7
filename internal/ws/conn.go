package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ligustah/scanfetch/internal/logging"
)

// Common errors.
var (
	ErrNotFound     = errors.New("ws: endpoint not found")
	ErrForbidden    = errors.New("ws: access forbidden")
	ErrUnauthorized = errors.New("ws: unauthorized")
	ErrServerError  = errors.New("ws: server error")
	ErrBadScheme    = errors.New("ws: unsupported URI scheme")
	ErrClosed       = errors.New("ws: connection closed")
)

// Options configures the connection.
type Options struct {
	// HandshakeTimeout bounds the opening handshake.
	// Default: 10s
	HandshakeTimeout time.Duration

	// ReadLimit is the largest accepted frame in bytes. Call details carry
	// their audio inline, so this must exceed the largest recording.
	// Default: 64 MiB
	ReadLimit int64

	// Header is sent with the handshake request.
	Header http.Header

	// Logger receives connection lifecycle output. Default: discard.
	Logger *slog.Logger
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		HandshakeTimeout: 10 * time.Second,
		ReadLimit:        64 << 20,
	}
}

// Conn is a websocket connection carrying text frames.
type Conn struct {
	conn *websocket.Conn
	log  *slog.Logger

	writeMu sync.Mutex
	once    sync.Once
}

// Dial opens a websocket connection to uri. http and https URIs are mapped to
// ws and wss.
func Dial(ctx context.Context, uri string, opts Options) (*Conn, error) {
	defaults := DefaultOptions()
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaults.ReadLimit
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	target, err := NormalizeURI(uri)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, target, opts.Header)
	if err != nil {
		if resp != nil {
			if statusErr := checkStatusCode(resp.StatusCode); statusErr != nil {
				return nil, fmt.Errorf("dial %s: %w", target, statusErr)
			}
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	conn.SetReadLimit(opts.ReadLimit)
	opts.Logger.Debug("connected", "uri", target)

	return &Conn{conn: conn, log: opts.Logger}, nil
}

// NormalizeURI validates uri and maps http(s) schemes to ws(s).
func NormalizeURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", uri, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: %q", ErrBadScheme, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("parse %q: missing host", uri)
	}
	return u.String(), nil
}

// Send writes frame as one text message.
func (c *Conn) Send(ctx context.Context, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return c.translate(ctx, err)
	}
	return nil
}

// Receive returns the next text message. Binary messages are skipped.
// Cancelling ctx interrupts a blocked read and leaves the connection unusable.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, c.translate(ctx, err)
		}
		if mt == websocket.TextMessage {
			return data, nil
		}
		c.log.Debug("skipping non-text message", "type", mt, "bytes", len(data))
	}
}

// Close sends a close frame and releases the connection.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// translate prefers the context error and maps close frames to ErrClosed.
func (c *Conn) translate(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return fmt.Errorf("%w: %d %s", ErrClosed, closeErr.Code, closeErr.Text)
	}
	return err
}

// checkStatusCode returns an appropriate error for a failed handshake status.
func checkStatusCode(code int) error {
	switch {
	case code == http.StatusSwitchingProtocols:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code >= 500:
		return fmt.Errorf("%w: %d", ErrServerError, code)
	default:
		return fmt.Errorf("unexpected handshake status: %d", code)
	}
}
