package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/newsfuse/internal/app"
)

// Exit codes.
const (
	exitOK     = 0
	exitFatal  = 1
	exitLabels = 2
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(exitOK)
		}
		if errors.Is(err, errVersion) {
			fmt.Printf("newsfuse %s (%s)\n", app.BuildVersion, app.BuildCommit)
			os.Exit(exitOK)
		}
		log.Error().Err(err).Msg("bad configuration")
		os.Exit(exitFatal)
	}

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("run failed")
		stop()
		os.Exit(exitCode(err))
	}
}

func run(ctx context.Context, cfg app.Config) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()
	return a.Run(ctx)
}

// exitCode maps a run error to the process exit status. Recoverable page and
// document failures never reach here.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, app.ErrLabels):
		return exitLabels
	default:
		return exitFatal
	}
}

var errVersion = errors.New("version requested")

// parseConfig builds the run configuration. Precedence from low to high:
// defaults, config file, environment (after dotenv files), explicit flags.
func parseConfig(args []string, output io.Writer) (app.Config, error) {
	def := app.DefaultConfig()
	fs := flag.NewFlagSet("newsfuse", flag.ContinueOnError)
	fs.SetOutput(output)

	var (
		fl         app.Config
		configPath string
		envFiles   string
		version    bool
	)
	fs.StringVar(&configPath, "config", "", "Path to a YAML or JSON config file")
	fs.StringVar(&envFiles, "env", ".env", "Comma-separated dotenv files loaded before reading NEWSFUSE_* variables")
	fs.BoolVar(&version, "version", false, "Print version and exit")

	fs.StringVar(&fl.EditionPath, "edition", "", "Edition file (YAML or JSON) listing article PDFs and page labels")
	fs.StringVar(&fl.IssueURL, "issue", "", "Archive issue page to crawl for articles")
	fs.StringVar(&fl.OutputPath, "output", "", "Path of the edition PDF (default <output.dir>/<edition name>.pdf)")
	fs.StringVar(&fl.OutputDir, "output.dir", def.OutputDir, "Directory for the edition PDF")
	fs.StringVar(&fl.WorkDir, "work.dir", def.WorkDir, "Directory for downloaded article PDFs")
	fs.BoolVar(&fl.KeepWorkDir, "work.keep", false, "Keep the work directory after a successful run")
	fs.BoolVar(&fl.SkipLastPage, "skip-last-page", false, "Drop the last page of every article PDF before pairing pages with labels")
	fs.BoolVar(&fl.FillMissing, "fill.missing", false, "Insert a placeholder page for every labelled page no PDF supplied")
	fs.StringVar(&fl.LabelPolicy, "labels.policy", def.LabelPolicy, "On a bad page label: abort the run, or skip the article")
	fs.IntVar(&fl.Concurrency, "http.concurrency", def.Concurrency, "Parallel article downloads")
	fs.Float64Var(&fl.RequestsPerSecond, "http.rps", def.RequestsPerSecond, "Request rate limit towards the archive; 0 disables")
	fs.IntVar(&fl.MaxAttempts, "http.attempts", def.MaxAttempts, "Attempts per request on transient errors")
	fs.DurationVar(&fl.RequestTimeout, "http.timeout", def.RequestTimeout, "Timeout per request")
	fs.StringVar(&fl.UserAgent, "http.ua", def.UserAgent, "User-Agent header")
	fs.StringVar(&fl.Cookie, "session.cookie", "", "Cookie header value of an authenticated archive session (prefer NEWSFUSE_COOKIE)")
	fs.StringVar(&fl.CacheDir, "cache.dir", def.CacheDir, "Download cache directory; empty disables")
	fs.DurationVar(&fl.CacheMaxAge, "cache.maxAge", 0, "Purge cache entries older than this before the run; 0 disables")
	fs.BoolVar(&fl.CacheClear, "cache.clear", false, "Clear the cache before the run")
	fs.BoolVar(&fl.CacheStrictPerms, "cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")
	fs.BoolVar(&fl.CrawlOnly, "crawl.only", false, "Crawl the issue and save the edition file without assembling")
	fs.StringVar(&fl.SaveEdition, "crawl.save", "", "Where -crawl.only saves the edition (default next to the output)")
	fs.BoolVar(&fl.Verbose, "v", false, "Verbose logging")

	if err := fs.Parse(args); err != nil {
		return app.Config{}, err
	}
	if version {
		return app.Config{}, errVersion
	}
	if fs.NArg() > 0 {
		return app.Config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	var files []string
	for _, p := range strings.Split(envFiles, ",") {
		if p = strings.TrimSpace(p); p != "" {
			files = append(files, p)
		}
	}
	if err := app.LoadEnvFiles(files...); err != nil {
		return app.Config{}, fmt.Errorf("load env files: %w", err)
	}

	cfg := def
	if configPath != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			return app.Config{}, fmt.Errorf("config file: %w", err)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvOverrides(&cfg)

	setters := map[string]func(){
		"edition":           func() { cfg.EditionPath = fl.EditionPath },
		"issue":             func() { cfg.IssueURL = fl.IssueURL },
		"output":            func() { cfg.OutputPath = fl.OutputPath },
		"output.dir":        func() { cfg.OutputDir = fl.OutputDir },
		"work.dir":          func() { cfg.WorkDir = fl.WorkDir },
		"work.keep":         func() { cfg.KeepWorkDir = fl.KeepWorkDir },
		"skip-last-page":    func() { cfg.SkipLastPage = fl.SkipLastPage },
		"fill.missing":      func() { cfg.FillMissing = fl.FillMissing },
		"labels.policy":     func() { cfg.LabelPolicy = fl.LabelPolicy },
		"http.concurrency":  func() { cfg.Concurrency = fl.Concurrency },
		"http.rps":          func() { cfg.RequestsPerSecond = fl.RequestsPerSecond },
		"http.attempts":     func() { cfg.MaxAttempts = fl.MaxAttempts },
		"http.timeout":      func() { cfg.RequestTimeout = fl.RequestTimeout },
		"http.ua":           func() { cfg.UserAgent = fl.UserAgent },
		"session.cookie":    func() { cfg.Cookie = fl.Cookie },
		"cache.dir":         func() { cfg.CacheDir = fl.CacheDir },
		"cache.maxAge":      func() { cfg.CacheMaxAge = fl.CacheMaxAge },
		"cache.clear":       func() { cfg.CacheClear = fl.CacheClear },
		"cache.strictPerms": func() { cfg.CacheStrictPerms = fl.CacheStrictPerms },
		"crawl.only":        func() { cfg.CrawlOnly = fl.CrawlOnly },
		"crawl.save":        func() { cfg.SaveEdition = fl.SaveEdition },
		"v":                 func() { cfg.Verbose = fl.Verbose },
	}
	fs.Visit(func(f *flag.Flag) {
		if set, ok := setters[f.Name]; ok {
			set()
		}
	})
	return cfg, nil
}
