package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ligustah/scanfetch/internal/config"
)

func runResume(args []string) int {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)

	var common commonFlags
	var remote remoteFlags
	common.register(fs)
	remote.register(fs)
	showProgress := fs.Bool("progress", false, "Show progress output (default when stderr is a terminal)")
	quiet := fs.Bool("quiet", false, "Disable progress output")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: scanfetch resume [options] <outdir>

Continue the job stored in <outdir> from its saved progress. The stored plan
and server address are used; the server is not listed again.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "Error: too many arguments")
		fs.Usage()
		return ExitInvalidArgs
	}

	override := config.Config{OutDir: fs.Arg(0), Progress: *showProgress}
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

	return resumeJob(ctx, cfg, out, store, log, *quiet)
}
