// Package rdiotest provides a fake rdio-scanner server for tests.
//
// The fake answers VER, CFG, LCL and CAL requests from in-memory calls and can
// interleave unsolicited LSC frames, refuse specific calls, or drop the
// connection after a number of detail requests. It is reachable in-process via
// [Server.Channel] or over a real websocket via [Server.Start].
package rdiotest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ligustah/scanfetch/pkg/rdio"
)

// ErrClosed is returned by an in-process channel after the server hung up.
var ErrClosed = errors.New("rdiotest: connection closed")

// Server is a fake rdio-scanner server.
type Server struct {
	mu       sync.Mutex
	systems  []rdio.System
	calls    []rdio.CallDetail
	requests map[string]int
	fetched  []int64

	// Noise is the number of unsolicited LSC frames sent before every reply.
	Noise int

	// RefuseCalls lists call ids answered with ["CAL", null].
	RefuseCalls map[int64]bool

	// HangUpAfter closes the connection instead of answering the detail
	// request with this 1-based ordinal. Zero disables it.
	HangUpAfter int
}

// New creates a server with the given systems and calls.
func New(systems []rdio.System, calls []rdio.CallDetail) *Server {
	return &Server{
		systems:     systems,
		calls:       calls,
		requests:    make(map[string]int),
		RefuseCalls: make(map[int64]bool),
	}
}

// Requests returns how many requests with tag were received.
func (s *Server) Requests(tag string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[tag]
}

// Fetched returns the ids of all answered detail requests, in order.
func (s *Server) Fetched() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.fetched...)
}

// AddCall makes a new call visible to later requests.
func (s *Server) AddCall(c rdio.CallDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
}

// Refuse sets whether call id is answered with ["CAL", null]. Use it instead
// of RefuseCalls once the server is serving connections.
func (s *Server) Refuse(id int64, refuse bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if refuse {
		s.RefuseCalls[id] = true
	} else {
		delete(s.RefuseCalls, id)
	}
}

// handle answers one request frame. hangUp reports that the connection must
// be closed without a reply.
func (s *Server) handle(frame []byte) (replies [][]byte, hangUp bool, err error) {
	var req []json.RawMessage
	if err := json.Unmarshal(frame, &req); err != nil || len(req) == 0 {
		return nil, false, fmt.Errorf("rdiotest: bad request %s", frame)
	}
	var tag string
	if err := json.Unmarshal(req[0], &tag); err != nil {
		return nil, false, fmt.Errorf("rdiotest: bad tag in %s", frame)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[tag]++

	for i := 0; i < s.Noise; i++ {
		replies = append(replies, mustMarshal([]any{rdio.TagListeners, i + 1}))
	}

	switch tag {
	case rdio.TagVersion:
		replies = append(replies, mustMarshal([]any{tag, rdio.Version{Version: "6.6.3", Branding: "Test"}}))
	case rdio.TagConfig:
		replies = append(replies, mustMarshal([]any{tag, map[string]any{"systems": s.systems}}))
	case rdio.TagListCalls:
		if len(req) < 2 {
			return nil, false, fmt.Errorf("rdiotest: LCL without query")
		}
		res, err := s.list(req[1])
		if err != nil {
			return nil, false, err
		}
		replies = append(replies, mustMarshal([]any{tag, res}))
	case rdio.TagCall:
		if len(req) < 2 {
			return nil, false, fmt.Errorf("rdiotest: CAL without id")
		}
		var id int64
		if err := json.Unmarshal(req[1], &id); err != nil {
			return nil, false, fmt.Errorf("rdiotest: bad call id: %w", err)
		}
		if s.HangUpAfter > 0 && s.requests[tag] >= s.HangUpAfter {
			return nil, true, nil
		}
		detail := s.find(id)
		if detail == nil || s.RefuseCalls[id] {
			replies = append(replies, []byte(`["CAL",null]`))
			break
		}
		s.fetched = append(s.fetched, id)
		replies = append(replies, mustMarshal([]any{tag, detail}))
	default:
		replies = append(replies, mustMarshal([]any{"XXX", "unknown command"}))
	}
	return replies, false, nil
}

func (s *Server) find(id int64) *rdio.CallDetail {
	for i := range s.calls {
		if s.calls[i].ID == id {
			return &s.calls[i]
		}
	}
	return nil
}

type listQuery struct {
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
	System    int    `json:"system"`
	Talkgroup int    `json:"talkgroup"`
	Sort      int    `json:"sort"`
	Date      string `json:"date"`
}

func (s *Server) list(raw json.RawMessage) (*rdio.ListResult, error) {
	var q listQuery
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, fmt.Errorf("rdiotest: bad LCL query: %w", err)
	}
	var pivot *time.Time
	if q.Date != "" {
		t, err := time.Parse(time.RFC3339Nano, q.Date)
		if err != nil {
			return nil, fmt.Errorf("rdiotest: bad LCL date: %w", err)
		}
		pivot = &t
	}

	var matched []rdio.Call
	for _, c := range s.calls {
		if c.System != q.System || c.Talkgroup != q.Talkgroup {
			continue
		}
		if pivot != nil {
			if q.Sort < 0 && c.DateTime.After(*pivot) {
				continue
			}
			if q.Sort > 0 && c.DateTime.Before(*pivot) {
				continue
			}
		}
		matched = append(matched, c.Call)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if q.Sort > 0 {
			return matched[i].DateTime.Before(matched[j].DateTime)
		}
		return matched[i].DateTime.After(matched[j].DateTime)
	})

	res := &rdio.ListResult{Count: len(matched), Results: []rdio.Call{}}
	if q.Offset < len(matched) {
		end := q.Offset + q.Limit
		if end > len(matched) {
			end = len(matched)
		}
		res.Results = matched[q.Offset:end]
	}
	return res, nil
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// Channel returns an in-process connection to s.
func (s *Server) Channel() *Channel {
	return &Channel{server: s}
}

// Channel is an in-process rdio.Channel backed by a Server.
type Channel struct {
	server  *Server
	pending [][]byte
	closed  bool
}

// Send delivers a request frame and queues the replies.
func (c *Channel) Send(ctx context.Context, frame []byte) error {
	if c.closed {
		return ErrClosed
	}
	replies, hangUp, err := c.server.handle(frame)
	if err != nil {
		return err
	}
	if hangUp {
		c.closed = true
		return nil
	}
	c.pending = append(c.pending, replies...)
	return nil
}

// Receive returns the next queued reply.
func (c *Channel) Receive(ctx context.Context) ([]byte, error) {
	if len(c.pending) == 0 {
		if c.closed {
			return nil, ErrClosed
		}
		return nil, io.EOF
	}
	next := c.pending[0]
	c.pending = c.pending[1:]
	return next, nil
}

// Close closes the channel.
func (c *Channel) Close() error {
	c.closed = true
	return nil
}

// Start serves s over websocket on a local httptest server. The returned URL
// uses the ws:// scheme.
func (s *Server) Start() (*httptest.Server, string) {
	upgrader := websocket.Upgrader{}
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			mt, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.TextMessage {
				continue
			}
			replies, hangUp, err := s.handle(frame)
			if err != nil || hangUp {
				return
			}
			for _, reply := range replies {
				if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
					return
				}
			}
		}
	}))
	return hs, "ws" + strings.TrimPrefix(hs.URL, "http") + "/"
}

// Calls builds n calls for tg, one per minute from start, each with a small
// distinct audio payload. Ids start at firstID.
func Calls(tg rdio.Talkgroup, firstID int64, start time.Time, n int) []rdio.CallDetail {
	out := make([]rdio.CallDetail, n)
	for i := range out {
		id := firstID + int64(i)
		ts := start.Add(time.Duration(i) * time.Minute).UTC()
		out[i] = rdio.CallDetail{
			Call: rdio.Call{
				ID:        id,
				DateTime:  ts,
				System:    tg.System,
				Talkgroup: tg.ID,
			},
			Audio:     rdio.Buffer(fmt.Sprintf("audio-%d", id)),
			AudioName: fmt.Sprintf("%d-%d_%s.m4a", tg.ID, id, ts.Format("20060102150405")),
			AudioType: "audio/mp4",
		}
	}
	return out
}
