package rdio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"golang.org/x/time/rate"
)

// Common errors.
var (
	// ErrChannel wraps failures of the underlying message channel. The
	// request it interrupted may or may not have reached the server.
	ErrChannel = errors.New("rdio: channel failure")

	// ErrMalformedFrame is returned when the server sends a frame that is
	// not a tagged JSON array.
	ErrMalformedFrame = errors.New("rdio: malformed frame")
)

// Channel is a connected, ordered, bidirectional channel of text frames.
// The caller owns its lifetime; Client never closes it.
type Channel interface {
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
}

// Options configures a Client.
type Options struct {
	// RequestRate limits requests per second. Zero means unlimited.
	RequestRate float64

	// Logger receives debug output about discarded frames.
	// Default: discard.
	Logger *slog.Logger
}

// Response is a correlated response frame.
type Response struct {
	Tag string
	// Args holds the elements following the tag.
	Args []json.RawMessage
}

// Payload returns the first element after the tag, or nil.
func (r Response) Payload() json.RawMessage {
	if len(r.Args) == 0 {
		return nil
	}
	return r.Args[0]
}

// Client sends tagged requests over a Channel and awaits correlated responses.
type Client struct {
	ch      Channel
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewClient creates a client bound to ch.
func NewClient(ch Channel, opts Options) *Client {
	c := &Client{ch: ch, log: opts.Logger}
	if c.log == nil {
		c.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.RequestRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestRate), 1)
	}
	return c
}

// Request sends [tag, args...] and returns the first received frame whose tag
// is in expect. Frames with other tags are discarded. There is no timeout
// beyond ctx; a response is otherwise awaited indefinitely.
func (c *Client) Request(ctx context.Context, expect []string, tag string, args ...any) (Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, err
		}
	}

	envelope := make([]any, 0, len(args)+1)
	envelope = append(envelope, tag)
	envelope = append(envelope, args...)
	frame, err := json.Marshal(envelope)
	if err != nil {
		return Response{}, fmt.Errorf("rdio: encode %s request: %w", tag, err)
	}

	if err := c.ch.Send(ctx, frame); err != nil {
		return Response{}, fmt.Errorf("%w: send %s: %v", ErrChannel, tag, err)
	}

	for {
		data, err := c.ch.Receive(ctx)
		if err != nil {
			return Response{}, fmt.Errorf("%w: await %s: %v", ErrChannel, tag, err)
		}

		resp, err := decodeFrame(data)
		if err != nil {
			return Response{}, err
		}
		if slices.Contains(expect, resp.Tag) {
			return resp, nil
		}
		c.log.Debug("discarding unsolicited frame", "tag", resp.Tag, "awaiting", expect)
	}
}

func decodeFrame(data []byte) (Response, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(elems) == 0 {
		return Response{}, fmt.Errorf("%w: empty array", ErrMalformedFrame)
	}
	var tag string
	if err := json.Unmarshal(elems[0], &tag); err != nil {
		return Response{}, fmt.Errorf("%w: tag is not a string", ErrMalformedFrame)
	}
	return Response{Tag: tag, Args: elems[1:]}, nil
}

// Version queries the server version.
func (c *Client) Version(ctx context.Context) (*Version, error) {
	resp, err := c.Request(ctx, []string{TagVersion}, TagVersion)
	if err != nil {
		return nil, err
	}
	var v Version
	if p := resp.Payload(); p != nil {
		if err := json.Unmarshal(p, &v); err != nil {
			return nil, fmt.Errorf("%w: VER: %v", ErrInvalidResponse, err)
		}
	}
	return &v, nil
}

// Config queries the server configuration.
func (c *Client) Config(ctx context.Context) (*ServerConfig, error) {
	resp, err := c.Request(ctx, []string{TagConfig}, TagConfig)
	if err != nil {
		return nil, err
	}
	return ParseConfig(resp.Payload())
}

// ParseConfig decodes a CFG payload and stamps each talkgroup with its system id.
func ParseConfig(payload json.RawMessage) (*ServerConfig, error) {
	if len(payload) == 0 || string(payload) == "null" {
		return nil, fmt.Errorf("%w: CFG without payload", ErrInvalidResponse)
	}

	var envelope struct {
		Systems json.RawMessage `json:"systems"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: CFG: %v", ErrInvalidResponse, err)
	}

	cfg := &ServerConfig{RawSystems: envelope.Systems}
	if len(envelope.Systems) > 0 {
		if err := json.Unmarshal(envelope.Systems, &cfg.Systems); err != nil {
			return nil, fmt.Errorf("%w: CFG systems: %v", ErrInvalidResponse, err)
		}
	}
	for i := range cfg.Systems {
		sys := &cfg.Systems[i]
		for j := range sys.Talkgroups {
			sys.Talkgroups[j].System = sys.ID
		}
	}
	return cfg, nil
}

// ListCalls fetches one page of call metadata.
func (c *Client) ListCalls(ctx context.Context, q ListQuery) (*ListResult, error) {
	resp, err := c.Request(ctx, []string{TagListCalls}, TagListCalls, q.wire())
	if err != nil {
		return nil, err
	}
	var res ListResult
	p := resp.Payload()
	if len(p) == 0 || string(p) == "null" {
		return nil, fmt.Errorf("%w: LCL without payload", ErrInvalidResponse)
	}
	if err := json.Unmarshal(p, &res); err != nil {
		return nil, fmt.Errorf("%w: LCL: %v", ErrInvalidResponse, err)
	}
	return &res, nil
}

// Call fetches the full detail of one call, including its audio.
func (c *Client) Call(ctx context.Context, id int64) (*CallDetail, error) {
	resp, err := c.Request(ctx, []string{TagCall}, TagCall, id, detailFlag)
	if err != nil {
		return nil, err
	}
	p := resp.Payload()
	if len(p) == 0 || string(p) == "null" {
		return nil, fmt.Errorf("%w: CAL %d without payload", ErrInvalidResponse, id)
	}
	var d CallDetail
	if err := json.Unmarshal(p, &d); err != nil {
		return nil, fmt.Errorf("%w: CAL %d: %v", ErrInvalidResponse, id, err)
	}
	return &d, nil
}
