package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/compare-aspaths/aspaths/pkg/aspath"
	"github.com/malbeclabs/compare-aspaths/aspaths/pkg/metrics"
	"github.com/malbeclabs/compare-aspaths/aspaths/pkg/ripestat"
	"github.com/malbeclabs/compare-aspaths/aspaths/pkg/ris"
	"github.com/malbeclabs/compare-aspaths/aspaths/pkg/target"
	"github.com/malbeclabs/compare-aspaths/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	progName = "compare-aspaths"

	exitOK       = 0
	exitFailure  = 1
	exitBadUsage = 2

	description = `Compare the AS-paths to a chosen <target> between a certain timepoint backwards in time and now, display those that differs.`

	epilog = `
Note that <target> is a BGP prefix, so using k-root (193.0.14.129) as an example, one would set the target as 193.0.14.0/24 which is the BGP prefix covering that IP address.

If you are unsure what the BGP prefix covering an IP you're interested in you can generally just do a whois on the IP and get the route object which will tell you what *should* be in the BGP table. But you can also search here: https://stat.ripe.net/app/launchpad which will tell you exactly what's in the BGP table.

Examples:

# Compare as-paths between 1 RIS-dump back in time and now for k-root :
compare-aspaths -n 1 193.0.14.0/24

# Compare as-paths between 5 RIS-dumps back in time and now for k-root :
compare-aspaths -n 5 193.0.14.0/24

# The default is set to 3 RIS-dumps back in time, so same example using the default :
compare-aspaths 193.0.14.0/24
`
)

// environment is everything run needs from the process.
type environment struct {
	args   []string
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
	clock  clockwork.Clock
}

func main() {
	// Load .env file. godotenv does not override existing env vars, so
	// process env and explicit exports take precedence.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, environment{
		args:   os.Args[1:],
		stdout: os.Stdout,
		stderr: os.Stderr,
		getenv: os.Getenv,
		clock:  clockwork.NewRealClock(),
	})
	stop()
	os.Exit(code)
}

func run(ctx context.Context, env environment) int {
	fs := flag.NewFlagSet(progName, flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	fs.SortFlags = false
	// Unknown options are ignored rather than treated as usage errors.
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] <target>\n\n%s\n\nFlags:\n", progName, description)
		fs.PrintDefaults()
		fmt.Fprint(fs.Output(), epilog)
	}

	dumpsBackFlag := fs.IntP("dumps-back", "n", ris.DefaultDumpsBack, "The number of RIS dumps back in time to compare with")
	baseURLFlag := fs.String("base-url", ripestat.DefaultBaseURL, "RIPEstat data API base URL (or set RIPESTAT_BASE_URL env var)")
	sourceAppFlag := fs.String("sourceapp", ripestat.DefaultSourceApp, "sourceapp identifier sent to RIPEstat (or set RIPESTAT_SOURCEAPP env var)")
	metricsTextfileFlag := fs.String("metrics-textfile", "", "Write Prometheus metrics to this file on exit (or set METRICS_TEXTFILE env var)")
	verboseFlag := fs.Bool("verbose", false, "enable verbose (debug) logging")
	versionFlag := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(env.args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(env.stderr, "Error: %v\n\n", err)
		fs.Usage()
		return exitBadUsage
	}

	if *versionFlag {
		fmt.Fprintf(env.stdout, "%s %s (commit %s, built %s)\n", progName, version, commit, date)
		return exitOK
	}

	// Override flags with environment variables if set
	if envBaseURL := env.getenv("RIPESTAT_BASE_URL"); envBaseURL != "" {
		*baseURLFlag = envBaseURL
	}
	if envSourceApp := env.getenv("RIPESTAT_SOURCEAPP"); envSourceApp != "" {
		*sourceAppFlag = envSourceApp
	}
	if envMetricsTextfile := env.getenv("METRICS_TEXTFILE"); envMetricsTextfile != "" {
		*metricsTextfileFlag = envMetricsTextfile
	}

	// Nothing touches the network until the target is known to be a prefix.
	prefix, err := target.Validate(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(env.stderr, "Error: %v\n\n", err)
		fs.Usage()
		return exitFailure
	}

	log := logger.New(env.stderr, *verboseFlag)

	// Sentry is optional and a no-op unless SENTRY_DSN is set.
	sentryEnabled := false
	if dsn := env.getenv("SENTRY_DSN"); dsn != "" {
		sentryEnv := env.getenv("SENTRY_ENVIRONMENT")
		if sentryEnv == "" {
			sentryEnv = "production"
		}
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: sentryEnv,
			Release:     progName + "@" + version,
		}); err != nil {
			log.Warn("sentry initialization failed", "error", err)
		} else {
			sentryEnabled = true
			defer sentry.Flush(2 * time.Second)
		}
	}

	m := metrics.New()
	m.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	client, err := ripestat.NewClient(ripestat.ClientConfig{
		BaseURL:   *baseURLFlag,
		SourceApp: *sourceAppFlag,
		Logger:    log,
		Metrics:   m,
	})
	if err == nil {
		err = compare(ctx, log, compareConfig{
			Clock:     env.clock,
			Client:    client,
			Metrics:   m,
			Prefix:    prefix.String(),
			DumpsBack: *dumpsBackFlag,
			Out:       env.stdout,
		})
	}

	if err == nil {
		m.LastRunSuccess.Set(1)
	}
	if *metricsTextfileFlag != "" {
		if werr := m.WriteTextfile(*metricsTextfileFlag); werr != nil {
			log.Warn("failed to write metrics", "path", *metricsTextfileFlag, "error", werr)
		}
	}

	if err != nil {
		if sentryEnabled {
			sentry.CaptureException(err)
		}
		fmt.Fprintf(env.stderr, "Error: %v\n", err)
		return exitFailure
	}
	return exitOK
}

type compareConfig struct {
	Clock     clockwork.Clock
	Client    *ripestat.Client
	Metrics   *metrics.Metrics
	Prefix    string
	DumpsBack int
	Out       io.Writer
}

// compare fetches both snapshots and reports the sources whose AS path
// changed. A snapshot RIPEstat has no data for is compared as empty.
func compare(ctx context.Context, log *slog.Logger, cfg compareConfig) error {
	window, err := ris.ResolveWindow(cfg.Clock, cfg.DumpsBack)
	if err != nil {
		return fmt.Errorf("failed to resolve dump time: %w", err)
	}
	log.Debug("comparing snapshots",
		"prefix", cfg.Prefix,
		"dumps_back", cfg.DumpsBack,
		"then", window.ThenTimestamp(),
		"now", window.NowTimestamp(),
	)

	then, thenOK, err := fetchSnapshot(ctx, log, cfg, "then", window.ThenTimestamp())
	if err != nil {
		return err
	}
	now, nowOK, err := fetchSnapshot(ctx, log, cfg, "now", window.NowTimestamp())
	if err != nil {
		return err
	}

	diffs := aspath.Compare(then, now)
	cfg.Metrics.ChangedSources.Set(float64(len(diffs)))

	if err := aspath.Report(cfg.Out, diffs); err != nil {
		return err
	}

	if len(diffs) == 0 && (!thenOK || !nowOK) {
		log.Warn("no AS path changes reported, but snapshot data was unavailable",
			"then_available", thenOK,
			"now_available", nowOK,
		)
	}
	return nil
}

func fetchSnapshot(ctx context.Context, log *slog.Logger, cfg compareConfig, name, timestamp string) (*aspath.Snapshot, bool, error) {
	state, err := cfg.Client.BGPState(ctx, cfg.Prefix, timestamp)
	if errors.Is(err, ripestat.ErrNoData) {
		log.Warn("ripestat: no data for snapshot", "snapshot", name, "timestamp", timestamp, "error", err)
		cfg.Metrics.SnapshotSources.WithLabelValues(name).Set(0)
		return aspath.NewSnapshot(), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch %s snapshot at %s: %w", name, timestamp, err)
	}

	snap := state.Snapshot()
	cfg.Metrics.SnapshotSources.WithLabelValues(name).Set(float64(snap.Len()))
	return snap, true, nil
}
