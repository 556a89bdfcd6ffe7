package rdio

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Message tags used by the rdio-scanner protocol.
const (
	TagVersion   = "VER"
	TagConfig    = "CFG"
	TagListCalls = "LCL"
	TagCall      = "CAL"
	// TagListeners is an unsolicited listener-count update.
	TagListeners = "LSC"
)

// detailFlag asks the CAL query for the full call including audio.
const detailFlag = "d"

// Sort is the direction of a call listing relative to its pivot date.
type Sort int

const (
	// SortDescending lists calls at or before the pivot date, newest first.
	SortDescending Sort = -1
	// SortAscending lists calls at or after the pivot date, oldest first.
	SortAscending Sort = 1
)

// Call is the metadata of one recorded transmission as returned by a listing.
type Call struct {
	ID        int64     `json:"id"`
	DateTime  time.Time `json:"dateTime"`
	System    int       `json:"system"`
	Talkgroup int       `json:"talkgroup"`
}

// CallDetail is a full call as returned by the detail query.
type CallDetail struct {
	Call
	Audio     Buffer `json:"audio"`
	AudioName string `json:"audioName"`
	AudioType string `json:"audioType,omitempty"`
}

// Buffer is a byte payload encoded the way Node.js serializes a Buffer:
//
//	{"type": "Buffer", "data": [1, 2, 3]}
//
// A base64 JSON string is accepted as well.
type Buffer []byte

type nodeBuffer struct {
	Type string `json:"type"`
	Data []int  `json:"data"`
}

// MarshalJSON encodes b in the Node.js Buffer form.
func (b Buffer) MarshalJSON() ([]byte, error) {
	data := make([]int, len(b))
	for i, v := range b {
		data[i] = int(v)
	}
	return json.Marshal(nodeBuffer{Type: "Buffer", Data: data})
}

// UnmarshalJSON decodes a Node.js Buffer object or a base64 string.
func (b *Buffer) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("rdio: decode base64 buffer: %w", err)
		}
		*b = raw
		return nil
	}

	var nb nodeBuffer
	if err := json.Unmarshal(data, &nb); err != nil {
		return fmt.Errorf("rdio: decode buffer: %w", err)
	}
	out := make([]byte, len(nb.Data))
	for i, v := range nb.Data {
		if v < 0 || v > 255 {
			return fmt.Errorf("rdio: buffer byte %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// Version is the payload of a VER response.
type Version struct {
	Branding string `json:"branding,omitempty"`
	Email    string `json:"email,omitempty"`
	Version  string `json:"version,omitempty"`
}

// Talkgroup is a channel of related calls within a system.
type Talkgroup struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
	Name  string `json:"name,omitempty"`
	Tag   string `json:"tag,omitempty"`
	Group string `json:"group,omitempty"`

	// System is the id of the owning system. It is filled in from the
	// enclosing system when the server configuration is parsed.
	System int `json:"system"`
}

// System is a top-level collection of talkgroups.
type System struct {
	ID         int         `json:"id"`
	Label      string      `json:"label"`
	Talkgroups []Talkgroup `json:"talkgroups"`
}

// ServerConfig is the payload of a CFG response.
type ServerConfig struct {
	Systems []System `json:"systems"`

	// RawSystems is the systems list exactly as the server sent it.
	RawSystems json.RawMessage `json:"-"`
}

// ListQuery selects one page of calls for a talkgroup.
type ListQuery struct {
	System    int
	Talkgroup int
	Sort      Sort
	// Date is the pivot of the listing. Nil sends no pivot, which lists
	// the talkgroup from its newest (descending) or oldest (ascending) call.
	Date   *time.Time
	Limit  int
	Offset int
}

// listRequest is the wire form of ListQuery.
type listRequest struct {
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
	System    int    `json:"system"`
	Talkgroup int    `json:"talkgroup"`
	Sort      Sort   `json:"sort"`
	Date      string `json:"date,omitempty"`
}

func (q ListQuery) wire() listRequest {
	r := listRequest{
		Limit:     q.Limit,
		Offset:    q.Offset,
		System:    q.System,
		Talkgroup: q.Talkgroup,
		Sort:      q.Sort,
	}
	if q.Date != nil {
		r.Date = FormatDate(*q.Date)
	}
	return r
}

// ListResult is one page of a call listing.
type ListResult struct {
	Count   int    `json:"count"`
	Results []Call `json:"results"`
}

// FormatDate renders t the way the server expects a pivot date: UTC, ISO 8601, Z suffix.
func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// ErrInvalidResponse is returned when a correlated response cannot be decoded.
var ErrInvalidResponse = errors.New("rdio: invalid response")
