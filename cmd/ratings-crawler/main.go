package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/ratings-crawler/pkg/config"
	"github.com/Sriram-PR/ratings-crawler/pkg/email"
	"github.com/Sriram-PR/ratings-crawler/pkg/enrich"
	"github.com/Sriram-PR/ratings-crawler/pkg/fetch"
	applog "github.com/Sriram-PR/ratings-crawler/pkg/log"
	"github.com/Sriram-PR/ratings-crawler/pkg/metrics"
	"github.com/Sriram-PR/ratings-crawler/pkg/orchestrate"
	"github.com/Sriram-PR/ratings-crawler/pkg/storage"
	"github.com/Sriram-PR/ratings-crawler/pkg/utils"
)

const version = "0.4.0"

const gcInterval = 10 * time.Minute

// stageCommands maps subcommands onto pipeline stages; "run" executes all of them
var stageCommands = map[string]string{
	"import":    orchestrate.StageImport,
	"resolve":   orchestrate.StageResolve,
	"discover":  orchestrate.StageDiscover,
	"extract":   orchestrate.StageExtract,
	"policies":  orchestrate.StagePolicies,
	"emails":    orchestrate.StageEmails,
	"verify":    orchestrate.StageVerify,
	"social":    orchestrate.StageSocial,
	"aggregate": orchestrate.StageAggregate,
	"run":       "",
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "validate":
		runValidate(os.Args[2:])
	case "version":
		fmt.Printf("ratings-crawler %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		if _, ok := stageCommands[cmd]; ok {
			os.Exit(runStage(cmd, os.Args[2:]))
		}
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `ratings-crawler - Merchant ratings crawl-and-extract pipeline

Usage:
  ratings-crawler <command> [options]

Commands:
  import      Import merchants from a YAML seed file
  resolve     Resolve merchant domains and detect Shopify
  discover    Discover product URLs for resolved merchants
  extract     Extract ratings from discovered product pages
  policies    Parse return and shipping policies
  emails      Discover contact emails
  verify      Verify personal emails with the configured provider
  social      Look up the latest Instagram post of each merchant
  aggregate   Recompute per-merchant rating statistics
  run         Run every stage in order
  validate    Validate configuration
  version     Show version info

Run 'ratings-crawler <command> -h' for command-specific help.`)
}

// stageOptions holds the flags shared by all stage commands
type stageOptions struct {
	command   string
	config    string
	logLevel  string
	limit     int
	ids       []string
	report    string
	profile   string
	reset     bool
	seed      string
	export    string
	pprofAddr string
}

// parseStageFlags parses the flags of a stage command
func parseStageFlags(cmd string, args []string, stderr io.Writer) (*stageOptions, error) {
	opts := &stageOptions{command: cmd}
	var ids string

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.config, "config", "", "Path to YAML config file (empty reads the environment only)")
	fs.StringVar(&opts.logLevel, "loglevel", "", "Log level (debug, info, warn, error), overrides log_level")
	fs.IntVar(&opts.limit, "limit", 0, "Items per stage for this run (0 uses the configured limit)")
	fs.StringVar(&ids, "ids", "", "Comma-separated merchant IDs to process instead of the default selection")
	fs.StringVar(&opts.report, "report", "", "Write a YAML run report to this path")
	fs.StringVar(&opts.profile, "profile", utils.DefaultProfile, "State database profile under state_dir")
	fs.BoolVar(&opts.reset, "reset", false, "Remove the profile's state database before starting")
	fs.StringVar(&opts.pprofAddr, "pprof", "", "pprof address, e.g. localhost:6060 (disabled by default)")
	switch cmd {
	case "import":
		fs.StringVar(&opts.seed, "seed", "", "YAML seed file with a 'merchants' list (required)")
	case "discover":
		fs.StringVar(&opts.export, "export", "", "Write every known product URL to this file after discovery")
	}

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: ratings-crawler %s [options]\n\nOptions:\n", cmd)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cmd == "import" && opts.seed == "" {
		fs.Usage()
		return nil, errors.New("-seed is required")
	}
	opts.ids = splitIDs(ids)
	return opts, nil
}

// splitIDs parses a comma-separated ID list, dropping blanks
func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// loadConfig loads the config file (or the environment) and applies defaults
func loadConfig(path string) (*config.AppConfig, []string, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	warnings, err := cfg.Validate()
	if err != nil {
		return nil, warnings, err
	}
	return cfg, warnings, nil
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to YAML config file (empty reads the environment only)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ratings-crawler validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, os.Stdout, os.Stderr))
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	cfg, warnings, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}

	fmt.Fprintf(stdout, "OK: [fetch] concurrency=%d timeout=%v retries=%d\n", cfg.Concurrency, cfg.RequestTimeout, cfg.Retries)
	fmt.Fprintf(stdout, "OK: [robots] respect=%t ttl=%v\n", cfg.RespectRobots(), cfg.RobotsTTL)
	fmt.Fprintf(stdout, "OK: [state] dir=%s\n", cfg.StateDir)

	switch {
	case cfg.MillionVerifier.Active():
		fmt.Fprintf(stdout, "OK: [verify] %s\n", enrich.ProviderMillionVerifier)
	case cfg.DeBounce.Active():
		fmt.Fprintf(stdout, "OK: [verify] %s\n", enrich.ProviderDeBounce)
	default:
		fmt.Fprintln(stdout, "WARN: [verify] no verifier configured, the verify stage is disabled")
	}
	if cfg.Apify.Token == "" {
		fmt.Fprintln(stdout, "WARN: [social] APIFY_TOKEN not set, the social stage is disabled")
	} else {
		fmt.Fprintf(stdout, "OK: [social] %s lookback=%dd\n", enrich.SourceApifyInstagram, cfg.Apify.LookbackDays)
	}

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// app holds the long-lived components of one command invocation
type app struct {
	cfg      *config.AppConfig
	log      *logrus.Logger
	store    *storage.BadgerStore
	pipeline *orchestrate.Pipeline
}

// newApp opens the state store and wires the pipeline. The caller must call close.
func newApp(ctx context.Context, opts *stageOptions, cfg *config.AppConfig, log *logrus.Logger) (*app, error) {
	store, err := storage.NewBadgerStore(cfg.StateDir, opts.profile, opts.reset, log.WithField("component", "storage"))
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	go store.RunGC(ctx, gcInterval)

	httpClient := fetch.NewClient(cfg.HTTPClientSettings, log)
	deps := orchestrate.Deps{
		Fetcher:  fetch.NewFetcher(httpClient, cfg, log),
		MX:       email.NewDNSChecker(cfg.DNSServer, cfg.DNSTimeout, log),
		Verifier: enrich.NewVerifier(httpClient, cfg),
	}
	if cfg.Apify.Token != "" {
		deps.Social = enrich.NewApifyInstagram(httpClient, cfg.Apify)
	}

	return &app{
		cfg:      cfg,
		log:      log,
		store:    store,
		pipeline: orchestrate.NewPipeline(cfg, store, deps, log),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Errorf("Closing state store failed: %v", err)
	}
}

// limitFor returns the -limit override or the configured stage limit
func (a *app) limitFor(opts *stageOptions, configured int) int {
	if opts.limit > 0 {
		return opts.limit
	}
	return configured
}

// execute runs the stage named by opts.command and returns the collected report
func (a *app) execute(ctx context.Context, opts *stageOptions) (*orchestrate.RunReport, error) {
	if opts.command == "run" {
		return a.pipeline.RunAll(ctx)
	}

	run := &orchestrate.RunReport{StartedAt: time.Now().UTC()}
	started := time.Now()
	limits := a.cfg.Limits

	var report *orchestrate.StageReport
	var err error
	switch stageCommands[opts.command] {
	case orchestrate.StageImport:
		var seeds []config.SeedMerchant
		seeds, err = config.LoadSeedFile(opts.seed)
		if err != nil {
			return run, err
		}
		report, err = a.pipeline.ImportMerchants(ctx, seeds)
	case orchestrate.StageResolve:
		report, err = a.pipeline.ResolveDomains(ctx, opts.ids, a.limitFor(opts, limits.Resolve))
	case orchestrate.StageDiscover:
		report, err = a.pipeline.DiscoverProducts(ctx, opts.ids, a.limitFor(opts, limits.Discover))
		if err == nil && opts.export != "" {
			if _, exportErr := a.store.WriteProductURLs(ctx, opts.export); exportErr != nil {
				a.log.Errorf("Exporting product URLs failed: %v", exportErr)
			}
		}
	case orchestrate.StageExtract:
		report, err = a.pipeline.ExtractRatings(ctx, a.limitFor(opts, limits.Extract))
	case orchestrate.StagePolicies:
		report, err = a.pipeline.ParsePolicies(ctx, opts.ids, a.limitFor(opts, limits.Policies))
	case orchestrate.StageEmails:
		report, err = a.pipeline.DiscoverEmails(ctx, opts.ids, a.limitFor(opts, limits.Emails))
	case orchestrate.StageVerify:
		report, err = a.pipeline.VerifyEmails(ctx, a.limitFor(opts, limits.Verify))
	case orchestrate.StageSocial:
		report, err = a.pipeline.EnrichSocial(ctx, opts.ids, a.limitFor(opts, limits.Social))
	case orchestrate.StageAggregate:
		report, err = a.pipeline.AggregateMerchants(ctx, opts.ids, a.limitFor(opts, limits.Aggregate))
	default:
		return run, fmt.Errorf("unknown stage command %q", opts.command)
	}

	if report != nil {
		run.Stages = append(run.Stages, report)
	}
	run.Duration = time.Since(started)
	return run, err
}

// runStage executes one stage command and returns the process exit code
func runStage(cmd string, args []string) int {
	opts, err := parseStageFlags(cmd, args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	cfg, warnings, err := loadConfig(opts.config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}
	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	log := applog.New(level, cfg.LogFormat)
	for _, w := range warnings {
		log.Warn(w)
	}
	logAppConfig(cfg, log)

	// ===========================================================
	// == Setup Context & Signal Handling ==
	// ===========================================================
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("PANIC in signal handler: %v", r)
			}
		}()
		sig := <-sigChan
		log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()
	defer signal.Stop(sigChan)

	startPprof(opts.pprofAddr, log)
	startMetrics(ctx, cfg.MetricsAddr, log)

	// ===========================================================
	// == Initialize Components & Execute ==
	// ===========================================================
	a, err := newApp(ctx, opts, cfg, log)
	if err != nil {
		log.Errorf("Initialization failed: %v", err)
		return 1
	}
	defer a.close()

	run, err := a.execute(ctx, opts)

	if opts.report != "" && run != nil {
		if writeErr := run.WriteYAML(opts.report); writeErr != nil {
			log.Errorf("Writing run report failed: %v", writeErr)
		} else {
			log.Infof("Run report written to %s", opts.report)
		}
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Run cancelled gracefully.")
			return 0
		}
		log.Errorf("Command '%s' finished with error: %v", cmd, err)
		return 1
	}
	log.Infof("Command '%s' completed successfully.", cmd)
	return 0
}

// startPprof starts the pprof HTTP server if addr is non-empty.
func startPprof(addr string, log *logrus.Logger) {
	if addr != "" {
		go func() {
			log.Infof("Starting pprof server at http://%s/debug/pprof/", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				log.Errorf("pprof server error: %v", err)
			}
		}()
	}
}

// startMetrics serves /metrics on addr until ctx is done. Empty addr disables it.
func startMetrics(ctx context.Context, addr string, log *logrus.Logger) {
	if addr == "" {
		return
	}
	metrics.Init()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Infof("Serving metrics at http://%s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server error: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// logAppConfig logs the effective configuration
func logAppConfig(cfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Config Fetch: Concurrency:%d, Timeout:%v, Retries:%d, Jitter:%v, HostRate:%v",
		cfg.Concurrency, cfg.RequestTimeout, cfg.Retries, cfg.RetryJitter, cfg.HostRate)
	log.Infof("Config Robots: Respect:%t, TTL:%v, StateDir:%s",
		cfg.RespectRobots(), cfg.RobotsTTL, cfg.StateDir)
	log.Infof("Config Limits: Resolve:%d, Discover:%d (max %d per merchant), Extract:%d, Policies:%d, Emails:%d, Verify:%d, Social:%d, Aggregate:%d",
		cfg.Limits.Resolve, cfg.Limits.Discover, cfg.Limits.MaxProductsPerMerchant, cfg.Limits.Extract,
		cfg.Limits.Policies, cfg.Limits.Emails, cfg.Limits.Verify, cfg.Limits.Social, cfg.Limits.Aggregate)
	log.Infof("Config Services: MillionVerifier:%t, DeBounce:%t, Apify:%t, VerifyTTL:%dd",
		cfg.MillionVerifier.Active(), cfg.DeBounce.Active(), cfg.Apify.Token != "", cfg.VerifyTTLDays)
}
