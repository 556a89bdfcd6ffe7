package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/ligustah/scanfetch/internal/logging"
	"github.com/ligustah/scanfetch/internal/output"
	"github.com/ligustah/scanfetch/internal/progress"
	"github.com/ligustah/scanfetch/pkg/checkpoint"
	"github.com/ligustah/scanfetch/pkg/rdio"
)

var (
	// ErrUnexpectedResponse is returned when the server answers a detail
	// request with something other than the requested call's audio.
	ErrUnexpectedResponse = errors.New("downloader: unexpected response to call request")

	// ErrAlreadyComplete is returned by Run for a job with nothing left to do.
	ErrAlreadyComplete = errors.New("downloader: job already complete")

	// ErrIndexOutOfRange is returned by Fix for an index outside the plan.
	ErrIndexOutOfRange = errors.New("downloader: index out of range")
)

// ItemError reports the plan item at which a job halted. The persisted cursor
// stays at Index.
//
// Use errors.As to extract this error; errors.Is sees the underlying cause.
type ItemError struct {
	Index  int   // Plan index of the failed item
	CallID int64 // Server id of the failed call
	Err    error // The error that occurred
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d (call %d): %v", e.Index, e.CallID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Fetcher retrieves the full detail of one call. *rdio.Client implements it.
type Fetcher interface {
	Call(ctx context.Context, id int64) (*rdio.CallDetail, error)
}

// Options configures a job.
type Options struct {
	// Progress is an optional progress reporter.
	Progress *progress.Reporter

	// Logger receives per-item output. Default: discard.
	Logger *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
}

// Job downloads the calls of a persisted plan one at a time.
type Job struct {
	store   *checkpoint.Store
	out     *output.Dir
	fetcher Fetcher
	state   *checkpoint.State
	opts    Options
}

// New creates a job for plan and persists it at cursor 0 before any item is
// processed.
func New(ctx context.Context, store *checkpoint.Store, out *output.Dir, fetcher Fetcher, params checkpoint.Params, plan []rdio.Call, opts Options) (*Job, error) {
	opts.applyDefaults()

	st := &checkpoint.State{Params: params, Plan: plan}
	if err := store.Create(ctx, st); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	opts.Logger.Info("created job", "id", st.ID, "key", st.Key, "calls", len(st.Plan))

	return &Job{store: store, out: out, fetcher: fetcher, state: st, opts: opts}, nil
}

// Resume rehydrates the job persisted in store. The plan is replayed exactly
// as persisted; the server is not queried again.
func Resume(ctx context.Context, store *checkpoint.Store, out *output.Dir, fetcher Fetcher, opts Options) (*Job, error) {
	st, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	return Attach(store, out, fetcher, st, opts), nil
}

// Attach wraps a state already loaded from store, for callers that inspect
// the job before connecting to its server.
func Attach(store *checkpoint.Store, out *output.Dir, fetcher Fetcher, st *checkpoint.State, opts Options) *Job {
	opts.applyDefaults()
	opts.Logger.Info("resuming job", "id", st.ID, "key", st.Key, "cursor", st.Cursor.String(), "calls", len(st.Plan))
	return &Job{store: store, out: out, fetcher: fetcher, state: st, opts: opts}
}

// State returns the job's current state.
func (j *Job) State() *checkpoint.State {
	return j.state
}

// Run downloads every remaining plan item in order. Each item is fetched,
// written, and only then checkpointed, so an interrupted item is downloaded
// again on resume. Any error halts the job at the failed item.
func (j *Job) Run(ctx context.Context) error {
	if j.state.Cursor.Done() {
		return ErrAlreadyComplete
	}

	if err := j.out.Prepare(j.state.Plan); err != nil {
		return err
	}

	for i := int(j.state.Cursor); i < len(j.state.Plan); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		call := j.state.Plan[i]
		if err := j.download(ctx, i, call); err != nil {
			return &ItemError{Index: i, CallID: call.ID, Err: err}
		}

		next := checkpoint.Cursor(i + 1)
		if err := j.store.SaveProgress(ctx, next); err != nil {
			return err
		}
		j.state.Cursor = next
	}

	if err := j.store.SaveProgress(ctx, checkpoint.Complete); err != nil {
		return err
	}
	j.state.Cursor = checkpoint.Complete
	j.opts.Logger.Info("job complete", "id", j.state.ID, "calls", len(j.state.Plan))
	return nil
}

// Fix downloads plan item index again without moving the cursor.
func (j *Job) Fix(ctx context.Context, index int) error {
	if index < 0 || index >= len(j.state.Plan) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(j.state.Plan))
	}
	call := j.state.Plan[index]
	if err := j.out.Prepare([]rdio.Call{call}); err != nil {
		return err
	}
	if err := j.download(ctx, index, call); err != nil {
		return &ItemError{Index: index, CallID: call.ID, Err: err}
	}
	return nil
}

// download fetches one call and writes its audio.
func (j *Job) download(ctx context.Context, index int, call rdio.Call) error {
	reporter := j.opts.Progress
	if reporter != nil {
		reporter.CallStarted()
	}
	fail := func(err error) error {
		if reporter != nil {
			reporter.CallFailed()
		}
		j.opts.Logger.Error("download failed", "index", index, "call", call.ID, "error", err)
		return err
	}

	detail, err := j.fetcher.Call(ctx, call.ID)
	if err != nil {
		if errors.Is(err, rdio.ErrInvalidResponse) {
			err = fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
		}
		return fail(err)
	}
	if err := validate(call, detail); err != nil {
		return fail(err)
	}

	key := j.out.Key(call, detail.AudioName)
	if err := j.out.Write(ctx, key, detail.Audio, detail.AudioType); err != nil {
		return fail(err)
	}

	if reporter != nil {
		reporter.CallCompleted(int64(len(detail.Audio)))
	}
	j.opts.Logger.Debug("downloaded call", "index", index, "call", call.ID, "key", key, "bytes", len(detail.Audio))
	return nil
}

// validate checks that detail is the audio of call.
func validate(call rdio.Call, detail *rdio.CallDetail) error {
	switch {
	case detail == nil:
		return fmt.Errorf("%w: empty detail", ErrUnexpectedResponse)
	case detail.ID != call.ID:
		return fmt.Errorf("%w: asked for call %d, got %d", ErrUnexpectedResponse, call.ID, detail.ID)
	case detail.AudioName == "":
		return fmt.Errorf("%w: call %d has no audio name", ErrUnexpectedResponse, call.ID)
	}
	switch path.Base(detail.AudioName) {
	case ".", "..", "/":
		return fmt.Errorf("%w: call %d has unusable audio name %q", ErrUnexpectedResponse, call.ID, detail.AudioName)
	}
	return nil
}
