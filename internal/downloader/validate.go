package downloader

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"

	"github.com/ligustah/scanfetch/internal/output"
	"github.com/ligustah/scanfetch/pkg/checkpoint"
)

// ValidationResult contains the results of validating a job's output.
type ValidationResult struct {
	Valid       bool     // true if every directory holds enough non-empty objects
	Checked     int      // number of plan items before the cursor
	Directories int      // number of system/talkgroup directories checked
	Shortfalls  int      // number of directories with fewer objects than items
	EmptyFiles  int      // number of zero-size objects
	Surplus     int      // non-empty objects beyond the expected count, e.g. from an earlier job
	Errors      []string // detailed error messages
}

// Validate checks that the output holds the calls a job claims to have
// downloaded. Audio names are only known after the detail request, so items
// are counted per system/talkgroup directory: each directory must hold at
// least as many non-empty objects as plan items before the cursor target it.
// The counts are lower bounds: files left by an earlier job in the same
// directory can hide a missing download. Such files show up in Surplus when
// they exceed the expected count.
//
// Missing or empty objects are reported in the ValidationResult with
// Valid=false, not returned as errors.
func Validate(ctx context.Context, out *output.Dir, st *checkpoint.State) (*ValidationResult, error) {
	done := len(st.Plan)
	if !st.Cursor.Done() {
		done = int(st.Cursor)
	}

	expected := make(map[string]int)
	for _, call := range st.Plan[:done] {
		dir := path.Join(strconv.Itoa(call.System), strconv.Itoa(call.Talkgroup)) + "/"
		expected[dir]++
	}
	dirs := make([]string, 0, len(expected))
	for dir := range expected {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	result := &ValidationResult{
		Valid:       true,
		Checked:     done,
		Directories: len(dirs),
		Errors:      make([]string, 0),
	}

	for _, dir := range dirs {
		sizes, err := out.Sizes(ctx, dir)
		if err != nil {
			return nil, fmt.Errorf("validate %s: %w", dir, err)
		}

		found := 0
		keys := make([]string, 0, len(sizes))
		for key := range sizes {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if sizes[key] == 0 {
				result.Valid = false
				result.EmptyFiles++
				result.Errors = append(result.Errors, fmt.Sprintf("empty file: %s", key))
				continue
			}
			found++
		}

		want := expected[dir]
		if found > want {
			result.Surplus += found - want
		}
		if found < want {
			result.Valid = false
			result.Shortfalls++
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: expected at least %d files, found %d", dir, want, found))
		}
	}

	return result, nil
}
