// Package output writes downloaded call audio to the output location.
//
// The output location is a gocloud.dev/blob bucket. A plain filesystem path is
// opened with fileblob, so the same directory also holds the job checkpoint;
// any bucket URL (s3://, gs://, mem://) works as well. Calls are stored as
//
//	{system}/{talkgroup}/{audioName}
package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"

	"github.com/ligustah/scanfetch/pkg/rdio"
)

// ErrNotFound is returned by Stat for a missing object.
var ErrNotFound = errors.New("output: object not found")

// Layout maps a call and its audio file name to an object key.
type Layout func(call rdio.Call, audioName string) string

// DefaultLayout is {system}/{talkgroup}/{audioName}.
func DefaultLayout(call rdio.Call, audioName string) string {
	return path.Join(strconv.Itoa(call.System), strconv.Itoa(call.Talkgroup), path.Base(audioName))
}

// Dir is an output location.
type Dir struct {
	bucket *blob.Bucket
	root   string // local directory, empty for remote buckets
	layout Layout
	owned  bool
}

// Open opens location, which is either a local directory path or a bucket URL.
// Local directories are created when missing.
func Open(ctx context.Context, location string) (*Dir, error) {
	if location == "" {
		return nil, errors.New("output: empty location")
	}

	if strings.Contains(location, "://") {
		bucket, err := blob.OpenBucket(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("output: open bucket: %w", err)
		}
		d := New(bucket, "")
		d.owned = true
		return d, nil
	}

	root, err := filepath.Abs(location)
	if err != nil {
		return nil, fmt.Errorf("output: resolve %s: %w", location, err)
	}
	bucket, err := blob.OpenBucket(ctx, fileURL(root))
	if err != nil {
		return nil, fmt.Errorf("output: open directory: %w", err)
	}
	d := New(bucket, root)
	d.owned = true
	return d, nil
}

// fileURL builds a fileblob URL that creates the directory, keeps temp files
// next to their destination, and writes no attribute sidecar files.
func fileURL(root string) string {
	p := filepath.ToSlash(root)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "file://" + p + "?create_dir=true&no_tmp_dir=true&metadata=skip"
}

// New wraps an open bucket. root names the local directory backing the bucket,
// or is empty when the bucket is not on the local filesystem.
func New(bucket *blob.Bucket, root string) *Dir {
	return &Dir{bucket: bucket, root: root, layout: DefaultLayout}
}

// WithLayout returns a copy of d using layout for object keys.
func (d *Dir) WithLayout(layout Layout) *Dir {
	c := *d
	c.layout = layout
	c.owned = false
	return &c
}

// Bucket returns the underlying bucket.
func (d *Dir) Bucket() *blob.Bucket {
	return d.bucket
}

// Root returns the local directory, or "" for remote buckets.
func (d *Dir) Root() string {
	return d.root
}

// Key returns the object key for call with the given audio name.
func (d *Dir) Key(call rdio.Call, audioName string) string {
	return d.layout(call, audioName)
}

// Prepare creates the {system}/{talkgroup} directories of every call in plan.
// Object stores have no directories, so this only touches local outputs.
func (d *Dir) Prepare(plan []rdio.Call) error {
	if d.root == "" {
		return nil
	}
	type pair struct{ system, talkgroup int }
	seen := make(map[pair]bool)
	for _, c := range plan {
		p := pair{c.System, c.Talkgroup}
		if seen[p] {
			continue
		}
		seen[p] = true
		dir := filepath.Join(d.root, strconv.Itoa(c.System), strconv.Itoa(c.Talkgroup))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("output: create %s: %w", dir, err)
		}
	}
	return nil
}

// Write stores data at key, replacing any previous object.
func (d *Dir) Write(ctx context.Context, key string, data []byte, contentType string) error {
	var opts *blob.WriterOptions
	if contentType != "" {
		opts = &blob.WriterOptions{ContentType: contentType}
	}
	if err := d.bucket.WriteAll(ctx, key, data, opts); err != nil {
		return fmt.Errorf("output: write %s: %w", key, err)
	}
	return nil
}

// Stat returns the size of the object at key.
func (d *Dir) Stat(ctx context.Context, key string) (int64, error) {
	attrs, err := d.bucket.Attributes(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return 0, fmt.Errorf("output: stat %s: %w", key, err)
	}
	return attrs.Size, nil
}

// Sizes returns the size of every object directly under prefix, by key.
func (d *Dir) Sizes(ctx context.Context, prefix string) (map[string]int64, error) {
	sizes := make(map[string]int64)
	iter := d.bucket.List(&blob.ListOptions{Prefix: prefix, Delimiter: "/"})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			return sizes, nil
		}
		if err != nil {
			return nil, fmt.Errorf("output: list %s: %w", prefix, err)
		}
		if !obj.IsDir {
			sizes[obj.Key] = obj.Size
		}
	}
}

// Close releases the bucket if Open created it.
func (d *Dir) Close() error {
	if d.owned {
		return d.bucket.Close()
	}
	return nil
}
