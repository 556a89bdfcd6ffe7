package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ligustah/scanfetch/internal/config"
	"github.com/ligustah/scanfetch/internal/downloader"
	"github.com/ligustah/scanfetch/internal/enumerator"
	"github.com/ligustah/scanfetch/internal/output"
	"github.com/ligustah/scanfetch/pkg/checkpoint"
	"github.com/ligustah/scanfetch/pkg/rdio"
)

var errBeginAfterEnd = errors.New("begin is after end")

func runFetch(args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)

	var common commonFlags
	var remote remoteFlags
	common.register(fs)
	remote.register(fs)

	var talkgroups string
	fs.StringVar(&talkgroups, "talkgroups", "", "Comma-separated talkgroup ids or labels")
	fs.StringVar(&talkgroups, "tgs", "", "Shorthand for -talkgroups")
	begin := fs.String("begin", "", "Earliest call time (RFC 3339, or local time like 2024-05-21T08:00)")
	end := fs.String("end", "", "Latest call time (same formats as -begin)")
	pageSize := fs.Int("page-size", 0, "Calls per listing request (default 200)")
	showProgress := fs.Bool("progress", false, "Show progress output (default when stderr is a terminal)")
	quiet := fs.Bool("quiet", false, "Disable progress output")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: scanfetch fetch [options] <uri> <outdir>

Download every call of the given talkgroups between -begin and -end, oldest
last, into <outdir>/<system>/<talkgroup>/. The plan is stored in <outdir>
before the first download, so an interrupted fetch continues where it
stopped when run again with the same <outdir>.

<uri> is an http(s) or ws(s) server address. <outdir> is a local directory
or a bucket URL (s3://, gs://, file://, mem://).

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if fs.NArg() > 2 {
		fmt.Fprintln(os.Stderr, "Error: too many arguments")
		fs.Usage()
		return ExitInvalidArgs
	}

	override := config.Config{
		URI:        fs.Arg(0),
		OutDir:     fs.Arg(1),
		Talkgroups: config.SplitList(talkgroups),
		PageSize:   *pageSize,
		Progress:   *showProgress,
	}
	if err := remote.apply(&override); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	cfg, log, ok := setup(fs, &common, override)
	if !ok {
		return ExitInvalidArgs
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		return ExitInvalidArgs
	}

	ctx, stop := signalContext()
	defer stop()

	out, store, err := openOutput(ctx, cfg.OutDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening output: %v\n", err)
		return ExitStorageError
	}
	defer out.Close()

	exists, err := store.Exists(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading job state: %v\n", err)
		return ExitStorageError
	}
	if exists {
		fmt.Fprintf(os.Stderr, "[scanfetch] Found an existing job in %s, resuming it\n", cfg.OutDir)
		return resumeJob(ctx, cfg, out, store, log, *quiet)
	}

	if err := cfg.ValidateRemote(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		return ExitInvalidArgs
	}
	if len(cfg.Talkgroups) == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one talkgroup is required")
		fs.Usage()
		return ExitInvalidArgs
	}
	rng, err := parseRange(*begin, *end, time.Local)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	return fetch(ctx, cfg, rng, out, store, log, *quiet)
}

// fetch plans a new job against the server and runs it.
func fetch(ctx context.Context, cfg config.Config, rng enumerator.Range, out *output.Dir, store *checkpoint.Store, log *slog.Logger, quiet bool) int {
	conn, client, err := connect(ctx, cfg.URI, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to server: %v\n", err)
		return ExitServerNotAccess
	}
	defer conn.Close()

	version, err := client.Version(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	log.Info("connected", "uri", cfg.URI, "version", version.Version, "branding", version.Branding)

	serverCfg, err := client.Config(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	dir, err := rdio.NewDirectory(serverCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	tgs, err := dir.ResolveAll(cfg.Talkgroups)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	fmt.Fprintf(os.Stderr, "[scanfetch] Talkgroups: %s\n", describeTalkgroups(tgs))
	fmt.Fprintf(os.Stderr, "[scanfetch] Range: %s to %s\n", describeBound(rng.Begin), describeBound(rng.End))

	enum, err := enumerator.NewTwoSided(client, enumerator.Options{
		PageSize: cfg.PageSize,
		Logger:   log,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	plan, err := enumerator.EnumerateAll(ctx, enum, tgs, rng)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "[scanfetch] Interrupted while listing calls, nothing was saved")
			return ExitInterrupted
		}
		fmt.Fprintf(os.Stderr, "Error listing calls: %v\n", err)
		return exitCode(err)
	}
	fmt.Fprintf(os.Stderr, "[scanfetch] Found %d calls\n", len(plan))

	ids := make([]int, len(tgs))
	for i, tg := range tgs {
		ids[i] = tg.ID
	}
	params := checkpoint.Params{
		URI:        cfg.URI,
		Begin:      rng.Begin,
		End:        rng.End,
		Talkgroups: ids,
		PageSize:   cfg.PageSize,
	}

	reporter := newReporter(cfg, quiet, len(plan), 0, cfg.URI, cfg.OutDir)
	job, err := downloader.New(ctx, store, out, client, params, plan, downloader.Options{
		Progress: reporter,
		Logger:   log,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code := exitCode(err); code != ExitGeneralError {
			return code
		}
		return ExitStorageError
	}

	return runJob(ctx, job, reporter, cfg.OutDir)
}

// naiveLayouts are accepted time formats without a zone, read in local time.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTime parses an RFC 3339 time, or a zone-less time in loc, and
// returns it in UTC.
func parseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

// parseRange parses optional begin and end bounds.
func parseRange(begin, end string, loc *time.Location) (enumerator.Range, error) {
	var r enumerator.Range
	if begin != "" {
		t, err := parseTime(begin, loc)
		if err != nil {
			return r, fmt.Errorf("begin: %w", err)
		}
		r.Begin = &t
	}
	if end != "" {
		t, err := parseTime(end, loc)
		if err != nil {
			return r, fmt.Errorf("end: %w", err)
		}
		r.End = &t
	}
	if r.Begin != nil && r.End != nil && r.Begin.After(*r.End) {
		return r, fmt.Errorf("%w: %s > %s", errBeginAfterEnd, r.Begin.Format(time.RFC3339), r.End.Format(time.RFC3339))
	}
	return r, nil
}

func describeBound(t *time.Time) string {
	if t == nil {
		return "open"
	}
	return t.Format(time.RFC3339)
}

func describeTalkgroups(tgs []rdio.Talkgroup) string {
	parts := make([]string, len(tgs))
	for i, tg := range tgs {
		parts[i] = fmt.Sprintf("%d (%s)", tg.ID, tg.Label)
	}
	return strings.Join(parts, ", ")
}
