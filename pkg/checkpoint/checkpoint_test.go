package checkpoint

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"

	"github.com/ligustah/scanfetch/pkg/rdio"
)

func openBucket(t *testing.T) *blob.Bucket {
	t.Helper()
	bucket, err := blob.OpenBucket(context.Background(), "mem://")
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	t.Cleanup(func() { bucket.Close() })
	return bucket
}

func testPlan(n int) []rdio.Call {
	base := time.Date(2024, 5, 21, 8, 0, 0, 0, time.UTC)
	plan := make([]rdio.Call, n)
	for i := range plan {
		plan[i] = rdio.Call{
			ID:        int64(1000 + i),
			DateTime:  base.Add(time.Duration(i) * time.Minute),
			System:    1,
			Talkgroup: 100,
		}
	}
	return plan
}

func TestCreateAndLoad(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)
	store := NewStore(bucket, WithClock(func() time.Time {
		return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	}))

	begin := time.Date(2024, 5, 21, 0, 0, 0, 0, time.UTC)
	st := &State{
		Params: Params{
			URI:        "wss://scanner.example.org/",
			Begin:      &begin,
			Talkgroups: []int{100},
			PageSize:   200,
		},
		Plan: testPlan(3),
	}
	if err := store.Create(ctx, st); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if st.ID == "" {
		t.Error("expected a job id")
	}
	if st.Key != "batch-download-scanner.example.org-20240601T120000.000Z.config" {
		t.Errorf("unexpected key %q", st.Key)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ID != st.ID {
		t.Errorf("expected id %s, got %s", st.ID, loaded.ID)
	}
	if loaded.Cursor != 0 {
		t.Errorf("expected cursor 0, got %v", loaded.Cursor)
	}
	if len(loaded.Plan) != 3 || loaded.Plan[2].ID != 1002 {
		t.Errorf("unexpected plan: %+v", loaded.Plan)
	}
	if !loaded.Plan[1].DateTime.Equal(st.Plan[1].DateTime) {
		t.Errorf("plan timestamps not preserved")
	}
	if loaded.Params.Begin == nil || !loaded.Params.Begin.Equal(begin) || loaded.Params.End != nil {
		t.Errorf("unexpected params: %+v", loaded.Params)
	}
	if loaded.Remaining() != 3 {
		t.Errorf("expected 3 remaining, got %d", loaded.Remaining())
	}
}

func TestCreateRefusesExistingJob(t *testing.T) {
	ctx := context.Background()
	store := NewStore(openBucket(t))

	if err := store.Create(ctx, &State{Plan: testPlan(1)}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := store.Create(ctx, &State{Plan: testPlan(2)})
	if !errors.Is(err, ErrJobExists) {
		t.Fatalf("expected ErrJobExists, got %v", err)
	}
}

func TestSaveProgressDoesNotRewriteJob(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)
	store := NewStore(bucket)

	st := &State{Plan: testPlan(4)}
	if err := store.Create(ctx, st); err != nil {
		t.Fatalf("Create: %v", err)
	}
	before, err := bucket.Attributes(ctx, st.Key)
	if err != nil {
		t.Fatalf("Attributes: %v", err)
	}

	for i := 1; i <= 4; i++ {
		if err := store.SaveProgress(ctx, Cursor(i)); err != nil {
			t.Fatalf("SaveProgress(%d): %v", i, err)
		}
	}
	if err := store.SaveProgress(ctx, Complete); err != nil {
		t.Fatalf("SaveProgress(done): %v", err)
	}

	after, err := bucket.Attributes(ctx, st.Key)
	if err != nil {
		t.Fatalf("Attributes: %v", err)
	}
	if before.MD5 != nil && string(before.MD5) != string(after.MD5) {
		t.Error("job document changed after progress updates")
	}

	raw, err := bucket.ReadAll(ctx, ProgressObject)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(raw) != "done" {
		t.Errorf("expected literal done, got %q", raw)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.Cursor.Done() || loaded.Remaining() != 0 {
		t.Errorf("expected complete job, got cursor %v", loaded.Cursor)
	}
}

func TestLoadNoJob(t *testing.T) {
	store := NewStore(openBucket(t))
	if _, err := store.Load(context.Background()); !errors.Is(err, ErrNoJob) {
		t.Fatalf("expected ErrNoJob, got %v", err)
	}
}

func TestLoadAmbiguous(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)
	for _, key := range []string{
		"batch-download-a-20240101T000000.000Z.config",
		"batch-download-b-20240102T000000.000Z.config",
	} {
		if err := bucket.WriteAll(ctx, key, []byte(`{"call_metadata_list": []}`), nil); err != nil {
			t.Fatalf("WriteAll: %v", err)
		}
	}
	bucket.WriteAll(ctx, ProgressObject, []byte("0"), nil)

	_, err := NewStore(bucket).Load(ctx)
	if !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("expected ErrAmbiguous, got %v", err)
	}
	var ambiguous *AmbiguousError
	if !errors.As(err, &ambiguous) || len(ambiguous.Keys) != 2 {
		t.Fatalf("expected AmbiguousError with 2 keys, got %v", err)
	}
	if !strings.Contains(err.Error(), "batch-download-a-") {
		t.Errorf("expected keys in message, got %q", err.Error())
	}
}

func TestLoadMissingProgress(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)
	store := NewStore(bucket)
	if err := store.Create(ctx, &State{Plan: testPlan(2)}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := bucket.Delete(ctx, ProgressObject); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := store.Load(ctx); !errors.Is(err, ErrMissingProgress) {
		t.Fatalf("expected ErrMissingProgress, got %v", err)
	}
}

func TestLoadCorruptProgress(t *testing.T) {
	tests := []string{"abc", "-3", "7"}
	for _, progress := range tests {
		t.Run(progress, func(t *testing.T) {
			ctx := context.Background()
			bucket := openBucket(t)
			store := NewStore(bucket)
			if err := store.Create(ctx, &State{Plan: testPlan(2)}); err != nil {
				t.Fatalf("Create: %v", err)
			}
			bucket.WriteAll(ctx, ProgressObject, []byte(progress), nil)

			if _, err := store.Load(ctx); !errors.Is(err, ErrCorruptProgress) {
				t.Fatalf("expected ErrCorruptProgress, got %v", err)
			}
		})
	}
}

func TestPrefixIsolatesJobs(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)

	a := NewStore(bucket, WithPrefix("a"))
	b := NewStore(bucket, WithPrefix("b/"))
	if err := a.Create(ctx, &State{Plan: testPlan(1)}); err != nil {
		t.Fatalf("Create a: %v", err)
	}
	if err := b.Create(ctx, &State{Plan: testPlan(2)}); err != nil {
		t.Fatalf("Create b: %v", err)
	}

	st, err := a.Load(ctx)
	if err != nil {
		t.Fatalf("Load a: %v", err)
	}
	if len(st.Plan) != 1 || !strings.HasPrefix(st.Key, "a/") {
		t.Errorf("unexpected job for prefix a: %s with %d items", st.Key, len(st.Plan))
	}

	if _, err := NewStore(bucket).Load(ctx); !errors.Is(err, ErrNoJob) {
		t.Errorf("expected root to hold no job, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)
	store := NewStore(bucket)
	if err := store.Create(ctx, &State{Plan: testPlan(1)}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	exists, err := store.Exists(ctx)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("expected no job after delete")
	}
	if ok, _ := bucket.Exists(ctx, ProgressObject); ok {
		t.Error("expected progress record removed")
	}
	// Deleting twice is fine.
	if err := store.Delete(ctx); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestCursorEncoding(t *testing.T) {
	tests := []struct {
		in   string
		want Cursor
	}{
		{"0", 0},
		{"12", 12},
		{" 3\n", 3},
		{"done", Complete},
	}
	for _, tt := range tests {
		got, err := ParseCursor(tt.in)
		if err != nil {
			t.Errorf("ParseCursor(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCursor(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if got.String() != strings.TrimSpace(tt.in) {
			t.Errorf("String() = %q, want %q", got.String(), strings.TrimSpace(tt.in))
		}
	}
}
