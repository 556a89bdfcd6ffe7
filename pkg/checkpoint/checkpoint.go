package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/ligustah/scanfetch/pkg/rdio"
)

const (
	// ProgressObject is the name of the progress record.
	ProgressObject = "progress-index.txt"

	configPrefix   = "batch-download-"
	configSuffix   = ".config"
	completeMarker = "done"
)

var (
	// ErrNoJob is returned by Load when no job document exists.
	ErrNoJob = errors.New("checkpoint: no job found")

	// ErrAmbiguous is returned by Load when more than one job document exists.
	ErrAmbiguous = errors.New("checkpoint: multiple job documents found")

	// ErrMissingProgress is returned by Load when a job document exists without
	// a progress record. Starting at zero is not assumed: files for some prefix
	// of the plan may already have been written.
	ErrMissingProgress = errors.New("checkpoint: job document without progress record")

	// ErrCorruptProgress is returned when the progress record cannot be parsed
	// or points past the end of the plan.
	ErrCorruptProgress = errors.New("checkpoint: corrupt progress record")

	// ErrJobExists is returned by Create when a job document is already present.
	ErrJobExists = errors.New("checkpoint: job already exists")
)

// AmbiguousError lists the job documents that made Load refuse to choose.
type AmbiguousError struct {
	Keys []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("checkpoint: %d job documents found (%s); remove all but one to resume",
		len(e.Keys), strings.Join(e.Keys, ", "))
}

// Is reports whether target is ErrAmbiguous.
func (e *AmbiguousError) Is(target error) bool {
	return target == ErrAmbiguous
}

// Cursor is the index of the next plan item to process, or Complete.
type Cursor int

// Complete marks a job whose every plan item has been processed.
const Complete Cursor = -1

// Done reports whether c is Complete.
func (c Cursor) Done() bool {
	return c == Complete
}

// String returns the progress record encoding of c.
func (c Cursor) String() string {
	if c.Done() {
		return completeMarker
	}
	return strconv.Itoa(int(c))
}

// ParseCursor parses a progress record.
func ParseCursor(s string) (Cursor, error) {
	s = strings.TrimSpace(s)
	if s == completeMarker {
		return Complete, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrCorruptProgress, s)
	}
	return Cursor(n), nil
}

// Params are the request parameters a job was created with.
type Params struct {
	URI        string     `json:"uri"`
	Begin      *time.Time `json:"begin,omitempty"`
	End        *time.Time `json:"end,omitempty"`
	Talkgroups []int      `json:"talkgroups"`
	PageSize   int        `json:"page_size,omitempty"`
}

// State is a job: its parameters, its immutable plan, and its progress.
type State struct {
	ID        string
	Params    Params
	Plan      []rdio.Call
	CreatedAt time.Time
	Cursor    Cursor

	// Key is the object name of the job document.
	Key string
}

// Remaining returns the number of plan items not yet processed.
func (s *State) Remaining() int {
	if s.Cursor.Done() {
		return 0
	}
	return len(s.Plan) - int(s.Cursor)
}

// document is the persisted form of a job.
type document struct {
	ID        string      `json:"id"`
	Args      Params      `json:"args"`
	CreatedAt time.Time   `json:"created_at"`
	Plan      []rdio.Call `json:"call_metadata_list"`
}

// Options configures a Store.
type Options struct {
	Prefix string
	Now    func() time.Time
}

// Option is a functional option for configuring a Store.
type Option func(*Options)

// WithPrefix stores job objects under prefix (for example "jobs/a/").
func WithPrefix(prefix string) Option {
	return func(o *Options) {
		o.Prefix = prefix
	}
}

// WithClock overrides the time source used to stamp new jobs.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

// Store persists jobs in a bucket.
type Store struct {
	bucket *blob.Bucket
	opts   Options
}

// NewStore creates a store on bucket.
func NewStore(bucket *blob.Bucket, options ...Option) *Store {
	opts := Options{Now: time.Now}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.Prefix != "" && !strings.HasSuffix(opts.Prefix, "/") {
		opts.Prefix += "/"
	}
	return &Store{bucket: bucket, opts: opts}
}

// Create persists a new job at cursor 0. The job document is written once,
// in full, before the progress record. State.ID, CreatedAt and Key are
// filled in when empty.
func (s *Store) Create(ctx context.Context, st *State) error {
	keys, err := s.configKeys(ctx)
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		return fmt.Errorf("%w: %s", ErrJobExists, strings.Join(keys, ", "))
	}

	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = s.opts.Now().UTC()
	}
	if st.Plan == nil {
		st.Plan = []rdio.Call{}
	}
	st.Key = s.opts.Prefix + configName(st.Params.URI, st.CreatedAt)
	st.Cursor = 0

	data, err := json.Marshal(document{
		ID:        st.ID,
		Args:      st.Params,
		CreatedAt: st.CreatedAt,
		Plan:      st.Plan,
	})
	if err != nil {
		return fmt.Errorf("checkpoint: marshal job: %w", err)
	}
	if err := s.bucket.WriteAll(ctx, st.Key, data, nil); err != nil {
		return fmt.Errorf("checkpoint: write job: %w", err)
	}

	return s.SaveProgress(ctx, 0)
}

// SaveProgress rewrites the progress record.
func (s *Store) SaveProgress(ctx context.Context, c Cursor) error {
	if err := s.bucket.WriteAll(ctx, s.progressKey(), []byte(c.String()), nil); err != nil {
		return fmt.Errorf("checkpoint: write progress: %w", err)
	}
	return nil
}

// Progress reads the progress record alone.
func (s *Store) Progress(ctx context.Context) (Cursor, error) {
	data, err := s.bucket.ReadAll(ctx, s.progressKey())
	if err != nil {
		if isNotExist(err) {
			return 0, ErrMissingProgress
		}
		return 0, fmt.Errorf("checkpoint: read progress: %w", err)
	}
	return ParseCursor(string(data))
}

// Load reads the job and its progress.
func (s *Store) Load(ctx context.Context) (*State, error) {
	keys, err := s.configKeys(ctx)
	if err != nil {
		return nil, err
	}
	switch len(keys) {
	case 0:
		return nil, ErrNoJob
	case 1:
	default:
		return nil, &AmbiguousError{Keys: keys}
	}

	data, err := s.bucket.ReadAll(ctx, keys[0])
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read job %s: %w", keys[0], err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshal job %s: %w", keys[0], err)
	}

	cursor, err := s.Progress(ctx)
	if err != nil {
		return nil, err
	}
	if !cursor.Done() && int(cursor) > len(doc.Plan) {
		return nil, fmt.Errorf("%w: index %d past plan of %d", ErrCorruptProgress, cursor, len(doc.Plan))
	}

	return &State{
		ID:        doc.ID,
		Params:    doc.Args,
		Plan:      doc.Plan,
		CreatedAt: doc.CreatedAt,
		Cursor:    cursor,
		Key:       keys[0],
	}, nil
}

// Exists reports whether any job document is present.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	keys, err := s.configKeys(ctx)
	if err != nil {
		return false, err
	}
	return len(keys) > 0, nil
}

// Delete removes every job document and the progress record.
// Downloaded payloads are left in place.
func (s *Store) Delete(ctx context.Context) error {
	keys, err := s.configKeys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.bucket.Delete(ctx, key); err != nil && !isNotExist(err) {
			return fmt.Errorf("checkpoint: delete %s: %w", key, err)
		}
	}
	if err := s.bucket.Delete(ctx, s.progressKey()); err != nil && !isNotExist(err) {
		return fmt.Errorf("checkpoint: delete progress: %w", err)
	}
	return nil
}

func (s *Store) progressKey() string {
	return s.opts.Prefix + ProgressObject
}

// configKeys lists job documents directly under the prefix, sorted.
func (s *Store) configKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.bucket.List(&blob.ListOptions{Prefix: s.opts.Prefix, Delimiter: "/"})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("checkpoint: list jobs: %w", err)
		}
		if obj.IsDir {
			continue
		}
		if strings.HasSuffix(obj.Key, configSuffix) {
			keys = append(keys, obj.Key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// TimestampLayout formats creation times in object names.
const TimestampLayout = "20060102T150405.000Z"

// configName builds the job document name from the server host and creation time.
func configName(uri string, created time.Time) string {
	return configPrefix + Host(uri) + "-" + created.UTC().Format(TimestampLayout) + configSuffix
}

// Host returns the host of uri made safe for object names, or "unknown".
func Host(uri string) string {
	host := "unknown"
	if u, err := url.Parse(uri); err == nil && u.Host != "" {
		host = u.Host
	}
	return strings.NewReplacer(":", "_", "/", "_").Replace(host)
}

// isNotExist returns true if the error indicates the object doesn't exist.
func isNotExist(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}
