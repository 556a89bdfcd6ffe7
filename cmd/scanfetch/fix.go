package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/ligustah/scanfetch/internal/config"
	"github.com/ligustah/scanfetch/internal/downloader"
)

// runFix downloads a single plan item again, leaving the job's progress as is.
func runFix(args []string) int {
	fs := flag.NewFlagSet("fix", flag.ExitOnError)

	var common commonFlags
	var remote remoteFlags
	common.register(fs)
	remote.register(fs)
	index := fs.Int("index", -1, "Plan index of the call to download again (required)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: scanfetch fix [options] -index N <outdir>

Download plan item N of the job in <outdir> again, for example after
validate reported a missing or empty file. The job's progress is unchanged.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if fs.NArg() != 1 || *index < 0 {
		fmt.Fprintln(os.Stderr, "Error: -index and <outdir> are required")
		fs.Usage()
		return ExitInvalidArgs
	}

	override := config.Config{OutDir: fs.Arg(0)}
	if err := remote.apply(&override); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	cfg, log, ok := setup(fs, &common, override)
	if !ok {
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

	st, err := store.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	if *index >= len(st.Plan) {
		fmt.Fprintf(os.Stderr, "Error: index %d out of range, the plan has %d calls\n", *index, len(st.Plan))
		return ExitInvalidArgs
	}

	conn, client, err := connect(ctx, st.Params.URI, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to server: %v\n", err)
		return ExitServerNotAccess
	}
	defer conn.Close()

	call := st.Plan[*index]
	fmt.Fprintf(os.Stderr, "[scanfetch] Fixing item %d (call %d, talkgroup %d)\n", *index, call.ID, call.Talkgroup)

	job := downloader.Attach(store, out, client, st, downloader.Options{Logger: log})
	if err := job.Fix(ctx, *index); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, downloader.ErrIndexOutOfRange) {
			return ExitInvalidArgs
		}
		return exitCode(err)
	}

	fmt.Fprintln(os.Stderr, "[scanfetch] Fixed")
	return ExitSuccess
}
