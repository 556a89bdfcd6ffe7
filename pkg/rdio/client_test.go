package rdio

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"
)

// scriptedChannel replays canned frames and records what was sent.
type scriptedChannel struct {
	sent    [][]byte
	replies []string
}

func (c *scriptedChannel) Send(ctx context.Context, frame []byte) error {
	c.sent = append(c.sent, frame)
	return nil
}

func (c *scriptedChannel) Receive(ctx context.Context) ([]byte, error) {
	if len(c.replies) == 0 {
		return nil, io.EOF
	}
	next := c.replies[0]
	c.replies = c.replies[1:]
	return []byte(next), nil
}

func TestRequestSkipsUnsolicitedFrames(t *testing.T) {
	ch := &scriptedChannel{replies: []string{
		`["LSC", 3]`,
		`["LSC", 4]`,
		`["VER", {"version": "6.6.3"}]`,
	}}
	client := NewClient(ch, Options{})

	v, err := client.Version(context.Background())
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v.Version != "6.6.3" {
		t.Errorf("expected version 6.6.3, got %q", v.Version)
	}
	if len(ch.replies) != 0 {
		t.Errorf("expected all frames consumed, %d left", len(ch.replies))
	}
	if string(ch.sent[0]) != `["VER"]` {
		t.Errorf("unexpected request frame: %s", ch.sent[0])
	}
}

func TestRequestChannelClosed(t *testing.T) {
	ch := &scriptedChannel{replies: []string{`["LSC", 1]`}}
	client := NewClient(ch, Options{})

	_, err := client.Call(context.Background(), 42)
	if !errors.Is(err, ErrChannel) {
		t.Fatalf("expected ErrChannel, got %v", err)
	}
}

func TestRequestMalformedFrame(t *testing.T) {
	tests := []string{`not json`, `[]`, `[1, 2]`, `{"tag": "CAL"}`}
	for _, frame := range tests {
		ch := &scriptedChannel{replies: []string{frame}}
		client := NewClient(ch, Options{})
		_, err := client.Call(context.Background(), 1)
		if !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("frame %s: expected ErrMalformedFrame, got %v", frame, err)
		}
	}
}

func TestListCallsWireFormat(t *testing.T) {
	ch := &scriptedChannel{replies: []string{
		`["LCL", {"count": 1, "results": [{"id": 7, "dateTime": "2024-05-21T08:00:00.000Z", "system": 1, "talkgroup": 100}]}]`,
	}}
	client := NewClient(ch, Options{})

	end := time.Date(2024, 5, 21, 10, 0, 0, 0, time.UTC)
	res, err := client.ListCalls(context.Background(), ListQuery{
		System:    1,
		Talkgroup: 100,
		Sort:      SortDescending,
		Date:      &end,
		Limit:     200,
		Offset:    400,
	})
	if err != nil {
		t.Fatalf("ListCalls: %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].ID != 7 {
		t.Fatalf("unexpected results: %+v", res.Results)
	}

	var sent []json.RawMessage
	if err := json.Unmarshal(ch.sent[0], &sent); err != nil {
		t.Fatalf("decode sent frame: %v", err)
	}
	var q map[string]any
	if err := json.Unmarshal(sent[1], &q); err != nil {
		t.Fatalf("decode query: %v", err)
	}
	if q["sort"] != float64(-1) || q["limit"] != float64(200) || q["offset"] != float64(400) {
		t.Errorf("unexpected query: %v", q)
	}
	if q["date"] != "2024-05-21T10:00:00.000Z" {
		t.Errorf("unexpected date: %v", q["date"])
	}
}

func TestListCallsOmitsOpenDate(t *testing.T) {
	ch := &scriptedChannel{replies: []string{`["LCL", {"count": 0, "results": []}]`}}
	client := NewClient(ch, Options{})

	if _, err := client.ListCalls(context.Background(), ListQuery{Sort: SortAscending, Limit: 10}); err != nil {
		t.Fatalf("ListCalls: %v", err)
	}

	var sent []json.RawMessage
	json.Unmarshal(ch.sent[0], &sent)
	var q map[string]any
	json.Unmarshal(sent[1], &q)
	if _, ok := q["date"]; ok {
		t.Errorf("expected no date field for an open bound, got %v", q["date"])
	}
}

func TestCallDecodesNodeBuffer(t *testing.T) {
	ch := &scriptedChannel{replies: []string{
		`["LSC", 2]`,
		`["CAL", {"id": 42, "system": 1, "talkgroup": 100, "dateTime": "2024-05-21T08:00:00.000Z",
		          "audio": {"type": "Buffer", "data": [0, 1, 254, 255]}, "audioName": "a.m4a", "audioType": "audio/mp4"}]`,
	}}
	client := NewClient(ch, Options{})

	d, err := client.Call(context.Background(), 42)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if d.ID != 42 || d.AudioName != "a.m4a" {
		t.Errorf("unexpected detail: %+v", d.Call)
	}
	if string(d.Audio) != string([]byte{0, 1, 254, 255}) {
		t.Errorf("unexpected audio: %v", []byte(d.Audio))
	}
	if string(ch.sent[0]) != `["CAL",42,"d"]` {
		t.Errorf("unexpected request frame: %s", ch.sent[0])
	}
}

func TestCallNullPayload(t *testing.T) {
	ch := &scriptedChannel{replies: []string{`["CAL", null]`}}
	client := NewClient(ch, Options{})

	_, err := client.Call(context.Background(), 9)
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestBufferRoundTripForms(t *testing.T) {
	var b Buffer
	if err := json.Unmarshal([]byte(`"AAH+/w=="`), &b); err != nil {
		t.Fatalf("base64 form: %v", err)
	}
	if string(b) != string([]byte{0, 1, 254, 255}) {
		t.Errorf("unexpected base64 decode: %v", []byte(b))
	}

	if err := json.Unmarshal([]byte(`{"type": "Buffer", "data": [256]}`), &b); err == nil {
		t.Error("expected error for out-of-range byte")
	}

	data, err := json.Marshal(Buffer{9})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"type":"Buffer","data":[9]}` {
		t.Errorf("unexpected encoding: %s", data)
	}
}

func TestRequestRateLimitHonorsContext(t *testing.T) {
	ch := &scriptedChannel{replies: []string{`["VER", {}]`, `["VER", {}]`}}
	client := NewClient(ch, Options{RequestRate: 0.001})

	if _, err := client.Version(context.Background()); err != nil {
		t.Fatalf("first Version: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.Version(ctx); err == nil {
		t.Fatal("expected the limiter to refuse a second request within the deadline")
	}
	if len(ch.sent) != 1 {
		t.Errorf("expected 1 frame sent, got %d", len(ch.sent))
	}
}
