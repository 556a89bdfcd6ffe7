// Package enumerator lists the calls of a talkgroup within a time range.
//
// The server only offers one-sided listings: every call at or before a date
// (newest first) or at or after a date (oldest first), paged by limit and
// offset. [TwoSided] runs both listings to exhaustion and intersects them by
// call id, which yields exactly the calls inside [begin, end].
//
// Callers depend on [Enumerator] only, so a native range query can replace
// TwoSided without touching them.
package enumerator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ligustah/scanfetch/internal/logging"
	"github.com/ligustah/scanfetch/pkg/rdio"
)

// DefaultPageSize is the page size used by the reference deployment.
const DefaultPageSize = 200

// ErrInvalidPageSize is returned for a non-positive page size.
var ErrInvalidPageSize = errors.New("enumerator: page size must be positive")

// Range is a closed time interval. A nil bound is open.
type Range struct {
	Begin *time.Time
	End   *time.Time
}

// Enumerator lists the calls of one talkgroup within a range.
type Enumerator interface {
	Enumerate(ctx context.Context, tg rdio.Talkgroup, r Range) ([]rdio.Call, error)
}

// Lister fetches one page of a one-sided call listing.
type Lister interface {
	ListCalls(ctx context.Context, q rdio.ListQuery) (*rdio.ListResult, error)
}

// Options configures TwoSided.
type Options struct {
	// PageSize is the listing limit. Default: 200.
	PageSize int

	// Logger receives per-query debug output. Default: discard.
	Logger *slog.Logger
}

// TwoSided enumerates a range by intersecting a descending listing from the
// end bound with an ascending listing from the begin bound.
type TwoSided struct {
	lister Lister
	opts   Options
}

// NewTwoSided creates a TwoSided enumerator.
func NewTwoSided(lister Lister, opts Options) (*TwoSided, error) {
	if opts.PageSize == 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.PageSize < 0 {
		return nil, ErrInvalidPageSize
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &TwoSided{lister: lister, opts: opts}, nil
}

// Enumerate returns the calls of tg whose time lies in r, in the order the
// descending listing returned them. When begin is open only the descending
// listing runs, and when end is open only the ascending one. A call seen by
// just one of the two listings is excluded.
func (e *TwoSided) Enumerate(ctx context.Context, tg rdio.Talkgroup, r Range) ([]rdio.Call, error) {
	log := e.opts.Logger.With("system", tg.System, "talkgroup", tg.ID)

	switch {
	case r.Begin == nil:
		return e.listAll(ctx, tg, rdio.SortDescending, r.End)
	case r.End == nil:
		return e.listAll(ctx, tg, rdio.SortAscending, r.Begin)
	}

	before, err := e.listAll(ctx, tg, rdio.SortDescending, r.End)
	if err != nil {
		return nil, err
	}
	after, err := e.listAll(ctx, tg, rdio.SortAscending, r.Begin)
	if err != nil {
		return nil, err
	}

	merged := Intersect(before, after)
	log.Debug("merged listings", "before_end", len(before), "after_begin", len(after), "matched", len(merged))
	return merged, nil
}

// listAll pages through one listing until a short page arrives. A full page
// always costs one more request, which may come back empty.
func (e *TwoSided) listAll(ctx context.Context, tg rdio.Talkgroup, sort rdio.Sort, pivot *time.Time) ([]rdio.Call, error) {
	q := rdio.ListQuery{
		System:    tg.System,
		Talkgroup: tg.ID,
		Sort:      sort,
		Date:      pivot,
		Limit:     e.opts.PageSize,
	}

	var out []rdio.Call
	seen := make(map[int64]bool)
	for {
		page, err := e.lister.ListCalls(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("enumerator: list talkgroup %d offset %d: %w", tg.ID, q.Offset, err)
		}
		for _, c := range page.Results {
			// Inserts during the scan shift offsets and can repeat a call
			// across pages.
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
		}
		if len(page.Results) != q.Limit {
			return out, nil
		}
		q.Offset += q.Limit
	}
}

// Intersect returns the calls of a whose id also appears in b, in a's order.
func Intersect(a, b []rdio.Call) []rdio.Call {
	wanted := make(map[int64]bool, len(b))
	for _, c := range b {
		wanted[c.ID] = true
	}
	out := make([]rdio.Call, 0, len(a))
	for _, c := range a {
		if wanted[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// EnumerateAll enumerates each talkgroup in turn and concatenates the results
// in talkgroup order.
func EnumerateAll(ctx context.Context, e Enumerator, tgs []rdio.Talkgroup, r Range) ([]rdio.Call, error) {
	plan := []rdio.Call{}
	for _, tg := range tgs {
		calls, err := e.Enumerate(ctx, tg, r)
		if err != nil {
			return nil, err
		}
		plan = append(plan, calls...)
	}
	return plan, nil
}
