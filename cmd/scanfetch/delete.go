package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
)

// runDelete removes the job document and progress record from an output
// directory. Downloaded audio is kept.
func runDelete(args []string) int {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)

	force := fs.Bool("force", false, "Skip confirmation prompt")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: scanfetch delete [options] <outdir>

Remove the job state from <outdir> so that a new fetch can start there.
Downloaded audio files are not touched.

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

	exists, err := store.Exists(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}
	if !exists {
		fmt.Fprintf(os.Stderr, "[scanfetch] No job in %s\n", outDir)
		return ExitSuccess
	}

	if !*force {
		fmt.Printf("Delete the job state in %s? [y/N]: ", outDir)
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(os.Stderr, "Cancelled")
			return ExitSuccess
		}
	}

	if err := store.Delete(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	fmt.Fprintf(os.Stderr, "[scanfetch] Deleted job state in %s\n", outDir)
	return ExitSuccess
}
