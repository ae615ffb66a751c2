package app

import (
	"time"

	"github.com/hyperifyio/newsfuse/internal/listing"
)

// Label policies.
const (
	// LabelPolicyAbort stops the run on the first unparsable page label.
	LabelPolicyAbort = "abort"
	// LabelPolicySkip drops the article with the bad label and continues.
	LabelPolicySkip = "skip"
)

// Defaults shared by the flag set and the config file overlay.
const (
	DefaultOutputDir         = "."
	DefaultWorkDir           = ".newsfuse-work"
	DefaultCacheDir          = ".newsfuse-cache"
	DefaultLabelPolicy       = LabelPolicyAbort
	DefaultConcurrency       = 4
	DefaultRequestsPerSecond = 1.0
	DefaultMaxAttempts       = 3
	DefaultRequestTimeout    = 2 * time.Minute
)

// DefaultUserAgent identifies the tool to the archive.
func DefaultUserAgent() string { return "newsfuse/" + BuildVersion }

// Config holds runtime configuration for the application.
type Config struct {
	// Exactly one of EditionPath and IssueURL names the edition.
	EditionPath string
	IssueURL    string

	// OutputPath, when set, is the final PDF. Otherwise the PDF is written to
	// OutputDir under the edition name.
	OutputPath string
	OutputDir  string

	WorkDir      string
	KeepWorkDir  bool
	SkipLastPage bool
	LabelPolicy  string
	// FillMissing inserts a placeholder page for every index no document
	// supplied.
	FillMissing bool

	// HTTP
	Concurrency       int
	RequestsPerSecond float64
	MaxAttempts       int
	RequestTimeout    time.Duration
	UserAgent         string
	// Cookie is a Cookie header value for an authenticated archive session.
	Cookie    string
	Selectors listing.Selectors

	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool

	// CrawlOnly stops after the crawl and saves the edition to SaveEdition,
	// or next to the would-be output as <name>.yaml.
	CrawlOnly   bool
	SaveEdition string

	Verbose bool
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		OutputDir:         DefaultOutputDir,
		WorkDir:           DefaultWorkDir,
		LabelPolicy:       DefaultLabelPolicy,
		Concurrency:       DefaultConcurrency,
		RequestsPerSecond: DefaultRequestsPerSecond,
		MaxAttempts:       DefaultMaxAttempts,
		RequestTimeout:    DefaultRequestTimeout,
		UserAgent:         DefaultUserAgent(),
		CacheDir:          DefaultCacheDir,
	}
}
