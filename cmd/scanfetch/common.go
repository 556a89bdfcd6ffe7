package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/scanfetch/internal/config"
	"github.com/ligustah/scanfetch/internal/downloader"
	"github.com/ligustah/scanfetch/internal/logging"
	"github.com/ligustah/scanfetch/internal/output"
	"github.com/ligustah/scanfetch/internal/progress"
	"github.com/ligustah/scanfetch/internal/ws"
	"github.com/ligustah/scanfetch/pkg/checkpoint"
	"github.com/ligustah/scanfetch/pkg/rdio"
)

// commonFlags are accepted by every command.
type commonFlags struct {
	configPath string
	verbose    bool
	logFormat  string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML configuration file")
	fs.BoolVar(&c.verbose, "v", false, "Verbose (debug) logging")
	fs.StringVar(&c.logFormat, "log-format", "text", "Log format: text or json")
}

// remoteFlags are accepted by commands that talk to a server.
type remoteFlags struct {
	rate             float64
	handshakeTimeout time.Duration
	readLimit        string
}

func (r *remoteFlags) register(fs *flag.FlagSet) {
	fs.Float64Var(&r.rate, "rate", 0, "Max requests per second (0 = unlimited)")
	fs.DurationVar(&r.handshakeTimeout, "handshake-timeout", 0, "Websocket handshake timeout (default 10s)")
	fs.StringVar(&r.readLimit, "read-limit", "", "Largest accepted frame, e.g. 128MiB (default 64MiB)")
}

func (r *remoteFlags) apply(o *config.Config) error {
	o.RequestRate = r.rate
	o.Connection.HandshakeTimeout = r.handshakeTimeout
	if r.readLimit != "" {
		size, err := progress.ParseBytes(r.readLimit)
		if err != nil {
			return fmt.Errorf("invalid read limit: %w", err)
		}
		o.Connection.ReadLimit = size
	}
	return nil
}

// loadConfig layers defaults, the config file, the environment, and the
// flag values in override.
func loadConfig(common *commonFlags, override config.Config) (config.Config, error) {
	cfg := config.Default()
	if common.configPath != "" {
		var err error
		cfg, err = config.LoadFromFile(common.configPath)
		if err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}
	override.Verbose = common.verbose
	return cfg.Merge(override), nil
}

func newLogger(common *commonFlags, cfg config.Config) (*slog.Logger, error) {
	format, err := logging.ParseFormat(common.logFormat)
	if err != nil {
		return nil, err
	}
	return logging.New(os.Stderr, logging.Options{Verbose: cfg.Verbose, Format: format}), nil
}

// setup loads the configuration and logger, printing errors itself.
func setup(fs *flag.FlagSet, common *commonFlags, override config.Config) (config.Config, *slog.Logger, bool) {
	cfg, err := loadConfig(common, override)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cfg, nil, false
	}
	log, err := newLogger(common, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		return cfg, nil, false
	}
	return cfg, log, true
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\n[scanfetch] Received interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// connect dials uri and wraps the connection in a protocol client.
func connect(ctx context.Context, uri string, cfg config.Config, log *slog.Logger) (*ws.Conn, *rdio.Client, error) {
	conn, err := ws.Dial(ctx, uri, ws.Options{
		HandshakeTimeout: cfg.Connection.HandshakeTimeout,
		ReadLimit:        cfg.Connection.ReadLimit,
		Logger:           log,
	})
	if err != nil {
		return nil, nil, err
	}
	client := rdio.NewClient(conn, rdio.Options{
		RequestRate: cfg.RequestRate,
		Logger:      log,
	})
	return conn, client, nil
}

// openOutput opens the output location and the job store inside it.
func openOutput(ctx context.Context, location string) (*output.Dir, *checkpoint.Store, error) {
	out, err := output.Open(ctx, location)
	if err != nil {
		return nil, nil, err
	}
	return out, checkpoint.NewStore(out.Bucket()), nil
}

// newReporter returns a progress reporter when progress output is enabled
// explicitly or stderr is a terminal, and nil otherwise.
func newReporter(cfg config.Config, quiet bool, total, done int, source, dest string) *progress.Reporter {
	if quiet || !(cfg.Progress || progress.IsTerminal(os.Stderr)) {
		return nil
	}
	return progress.NewReporter(progress.Options{
		TotalCalls:     total,
		StartAt:        done,
		UpdateInterval: time.Second,
		Source:         source,
		Destination:    dest,
	})
}

// resumeJob continues the job stored in out. The job's own server URI is
// used; the plan is not queried again.
func resumeJob(ctx context.Context, cfg config.Config, out *output.Dir, store *checkpoint.Store, log *slog.Logger, quiet bool) int {
	st, err := store.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, checkpoint.ErrMissingProgress) {
			fmt.Fprintln(os.Stderr, "[scanfetch] Run 'scanfetch delete' and start over")
		}
		return exitCode(err)
	}
	if st.Cursor.Done() {
		fmt.Fprintf(os.Stderr, "[scanfetch] Not resuming a completed download: %s\n", st.Key)
		return ExitSuccess
	}

	uri := st.Params.URI
	if cfg.URI != "" && cfg.URI != uri {
		log.Warn("ignoring uri, the job belongs to another server", "uri", cfg.URI, "job_uri", uri)
	}

	conn, client, err := connect(ctx, uri, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to server: %v\n", err)
		return ExitServerNotAccess
	}
	defer conn.Close()

	fmt.Fprintf(os.Stderr, "[scanfetch] Resuming %s: %d/%d calls remaining\n", st.Key, st.Remaining(), len(st.Plan))

	reporter := newReporter(cfg, quiet, len(st.Plan), int(st.Cursor), uri, cfg.OutDir)
	job := downloader.Attach(store, out, client, st, downloader.Options{
		Progress: reporter,
		Logger:   log,
	})
	return runJob(ctx, job, reporter, cfg.OutDir)
}

// runJob runs job to completion or to its first error and reports the outcome.
func runJob(ctx context.Context, job *downloader.Job, reporter *progress.Reporter, outDir string) int {
	if reporter != nil {
		reporter.Start()
	}
	err := job.Run(ctx)
	if reporter != nil {
		reporter.Stop()
	}

	switch {
	case err == nil:
		fmt.Fprintf(os.Stderr, "[scanfetch] Download complete: %d calls in %s\n", len(job.State().Plan), outDir)
		return ExitSuccess
	case errors.Is(err, downloader.ErrAlreadyComplete):
		fmt.Fprintln(os.Stderr, "[scanfetch] Not resuming a completed download")
		return ExitSuccess
	case ctx.Err() != nil:
		fmt.Fprintln(os.Stderr, "[scanfetch] Download interrupted, progress saved for resume")
		return ExitInterrupted
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	var itemErr *downloader.ItemError
	if errors.As(err, &itemErr) {
		fmt.Fprintf(os.Stderr, "[scanfetch] Stopped at item %d; run 'scanfetch resume %s' to continue\n", itemErr.Index, outDir)
	}
	return exitCode(err)
}

// exitCode maps an error to the command's exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, rdio.ErrUnknownTalkgroup):
		return ExitInvalidArgs
	case errors.Is(err, checkpoint.ErrNoJob),
		errors.Is(err, checkpoint.ErrAmbiguous),
		errors.Is(err, checkpoint.ErrMissingProgress),
		errors.Is(err, checkpoint.ErrCorruptProgress),
		errors.Is(err, checkpoint.ErrJobExists):
		return ExitStateError
	case errors.Is(err, rdio.ErrChannel),
		errors.Is(err, rdio.ErrMalformedFrame),
		errors.Is(err, rdio.ErrInvalidResponse),
		errors.Is(err, rdio.ErrDuplicateTalkgroup),
		errors.Is(err, downloader.ErrUnexpectedResponse):
		return ExitProtocolError
	case errors.Is(err, output.ErrNotFound):
		return ExitStorageError
	default:
		return ExitGeneralError
	}
}
