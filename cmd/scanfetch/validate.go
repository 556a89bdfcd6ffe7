package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ligustah/scanfetch/internal/downloader"
)

// runValidate checks the output directory against the stored job without
// contacting the server.
func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)

	var common commonFlags
	common.register(fs)

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: scanfetch validate [options] <outdir>

Verify that every talkgroup directory in <outdir> holds at least as many
non-empty audio files as the job has downloaded for it.

Audio file names are only known once a call is downloaded, so this is a
lower-bound check on file counts: files left in a directory by an earlier
job count too and can hide a missing download. Use 'fix -index N' to
download a single call again.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: <outdir> is required")
		fs.Usage()
		return ExitInvalidArgs
	}
	outDir := fs.Arg(0)

	ctx, stop := signalContext()
	defer stop()

	out, store, err := openOutput(ctx, outDir)
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

	result, err := downloader.Validate(ctx, out, st)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	fmt.Printf("Job: %s\n", st.Key)
	fmt.Printf("Progress: %d / %d calls (%s)\n", result.Checked, len(st.Plan), st.Cursor)
	fmt.Printf("Directories: %d\n", result.Directories)
	if result.Surplus > 0 {
		fmt.Printf("Unplanned files: %d (counts are a lower bound)\n", result.Surplus)
	}

	if result.Valid {
		fmt.Println("Status: VALID")
		return ExitSuccess
	}

	fmt.Println("Status: INVALID")
	fmt.Printf("Short directories: %d\n", result.Shortfalls)
	fmt.Printf("Empty files: %d\n", result.EmptyFiles)

	if len(result.Errors) > 0 {
		fmt.Println("\nErrors:")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	return ExitValidationFailed
}
