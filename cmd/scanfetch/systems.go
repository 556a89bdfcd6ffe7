package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ligustah/scanfetch/internal/config"
	"github.com/ligustah/scanfetch/internal/output"
	"github.com/ligustah/scanfetch/pkg/checkpoint"
	"github.com/ligustah/scanfetch/pkg/rdio"
)

// runSystems saves the server's systems list next to the downloads and prints
// the talkgroups it contains.
func runSystems(args []string) int {
	fs := flag.NewFlagSet("systems", flag.ExitOnError)

	var common commonFlags
	var remote remoteFlags
	common.register(fs)
	remote.register(fs)

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: scanfetch systems [options] <uri> <outdir>

Save the server's systems and talkgroups as
<outdir>/server-config-<host>-<timestamp>.json and list them.

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

	override := config.Config{URI: fs.Arg(0), OutDir: fs.Arg(1)}
	if err := remote.apply(&override); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	cfg, log, ok := setup(fs, &common, override)
	if !ok {
		return ExitInvalidArgs
	}
	if err := cfg.ValidateRemote(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		return ExitInvalidArgs
	}

	ctx, stop := signalContext()
	defer stop()

	out, err := output.Open(ctx, cfg.OutDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening output: %v\n", err)
		return ExitStorageError
	}
	defer out.Close()

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

	data, err := systemsDocument(serverCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitProtocolError
	}
	key := systemsKey(cfg.URI, time.Now())
	if err := out.Write(ctx, key, data, "application/json"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	for _, sys := range serverCfg.Systems {
		fmt.Printf("System %d: %s\n", sys.ID, sys.Label)
		for _, tg := range sys.Talkgroups {
			fmt.Printf("  %6d  %-20s %s\n", tg.ID, tg.Label, tg.Name)
		}
	}
	fmt.Fprintf(os.Stderr, "[scanfetch] Saved systems to %s\n", key)
	return ExitSuccess
}

// systemsKey names the systems document for the server at uri.
func systemsKey(uri string, now time.Time) string {
	return fmt.Sprintf("server-config-%s-%s.json", checkpoint.Host(uri), now.UTC().Format(checkpoint.TimestampLayout))
}

// systemsDocument renders the systems list as the server sent it, indented.
func systemsDocument(cfg *rdio.ServerConfig) ([]byte, error) {
	raw := cfg.RawSystems
	if len(raw) == 0 {
		raw = json.RawMessage("[]")
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("systems: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
