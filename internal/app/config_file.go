package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/newsfuse/internal/listing"
)

// FileConfig represents the single-file configuration schema.
type FileConfig struct {
	Edition   string `yaml:"edition" json:"edition"`
	Issue     string `yaml:"issue" json:"issue"`
	Output    string `yaml:"output" json:"output"`
	OutputDir string `yaml:"outputDir" json:"outputDir"`

	Work struct {
		Dir  string `yaml:"dir" json:"dir"`
		Keep bool   `yaml:"keep" json:"keep"`
	} `yaml:"work" json:"work"`

	SkipLastPage *bool `yaml:"skipLastPage" json:"skipLastPage"`
	FillMissing  bool  `yaml:"fillMissing" json:"fillMissing"`

	Labels struct {
		Policy string `yaml:"policy" json:"policy"`
	} `yaml:"labels" json:"labels"`

	HTTP struct {
		Concurrency       int           `yaml:"concurrency" json:"concurrency"`
		RequestsPerSecond float64       `yaml:"requestsPerSecond" json:"requestsPerSecond"`
		Attempts          int           `yaml:"attempts" json:"attempts"`
		Timeout           time.Duration `yaml:"timeout" json:"timeout"`
		UserAgent         string        `yaml:"userAgent" json:"userAgent"`
	} `yaml:"http" json:"http"`

	Session struct {
		Cookie string `yaml:"cookie" json:"cookie"`
	} `yaml:"session" json:"session"`

	Selectors listing.Selectors `yaml:"selectors" json:"selectors"`

	Cache struct {
		Dir         string        `yaml:"dir" json:"dir"`
		MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
		Clear       bool          `yaml:"clear" json:"clear"`
		StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
	} `yaml:"cache" json:"cache"`

	CrawlOnly   bool   `yaml:"crawlOnly" json:"crawlOnly"`
	SaveEdition string `yaml:"saveEdition" json:"saveEdition"`
	Verbose     bool   `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &fc); err != nil {
			fc = FileConfig{}
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays every value the file sets onto cfg. Call it on
// defaults, before env and flags.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	if fc.Edition != "" {
		cfg.EditionPath = fc.Edition
	}
	if fc.Issue != "" {
		cfg.IssueURL = fc.Issue
	}
	if fc.Output != "" {
		cfg.OutputPath = fc.Output
	}
	if fc.OutputDir != "" {
		cfg.OutputDir = fc.OutputDir
	}
	if fc.Work.Dir != "" {
		cfg.WorkDir = fc.Work.Dir
	}
	if fc.Work.Keep {
		cfg.KeepWorkDir = true
	}
	if fc.SkipLastPage != nil {
		cfg.SkipLastPage = *fc.SkipLastPage
	}
	if fc.FillMissing {
		cfg.FillMissing = true
	}
	if fc.Labels.Policy != "" {
		cfg.LabelPolicy = fc.Labels.Policy
	}
	if fc.HTTP.Concurrency > 0 {
		cfg.Concurrency = fc.HTTP.Concurrency
	}
	if fc.HTTP.RequestsPerSecond > 0 {
		cfg.RequestsPerSecond = fc.HTTP.RequestsPerSecond
	}
	if fc.HTTP.Attempts > 0 {
		cfg.MaxAttempts = fc.HTTP.Attempts
	}
	if fc.HTTP.Timeout > 0 {
		cfg.RequestTimeout = fc.HTTP.Timeout
	}
	if fc.HTTP.UserAgent != "" {
		cfg.UserAgent = fc.HTTP.UserAgent
	}
	if fc.Session.Cookie != "" {
		cfg.Cookie = fc.Session.Cookie
	}
	if fc.Selectors != (listing.Selectors{}) {
		cfg.Selectors = fc.Selectors
	}
	if fc.Cache.Dir != "" {
		cfg.CacheDir = fc.Cache.Dir
	}
	if fc.Cache.MaxAge > 0 {
		cfg.CacheMaxAge = fc.Cache.MaxAge
	}
	if fc.Cache.Clear {
		cfg.CacheClear = true
	}
	if fc.Cache.StrictPerms {
		cfg.CacheStrictPerms = true
	}
	if fc.CrawlOnly {
		cfg.CrawlOnly = true
	}
	if fc.SaveEdition != "" {
		cfg.SaveEdition = fc.SaveEdition
	}
	if fc.Verbose {
		cfg.Verbose = true
	}
}

// ValidateConfig checks the settings a run cannot do without.
func ValidateConfig(cfg Config) error {
	hasEdition := strings.TrimSpace(cfg.EditionPath) != ""
	hasIssue := strings.TrimSpace(cfg.IssueURL) != ""
	switch {
	case hasEdition && hasIssue:
		return errors.New("config: set either an edition file or an issue url, not both")
	case !hasEdition && !hasIssue:
		return errors.New("config: an edition file or an issue url is required")
	}
	if cfg.CrawlOnly && !hasIssue {
		return errors.New("config: crawl only needs an issue url")
	}
	if strings.TrimSpace(cfg.OutputPath) == "" && strings.TrimSpace(cfg.OutputDir) == "" {
		return errors.New("config: output path or output dir is required")
	}
	if strings.TrimSpace(cfg.WorkDir) == "" {
		return errors.New("config: work dir is required")
	}
	switch cfg.LabelPolicy {
	case LabelPolicyAbort, LabelPolicySkip:
	default:
		return fmt.Errorf("config: label policy must be %q or %q, got %q", LabelPolicyAbort, LabelPolicySkip, cfg.LabelPolicy)
	}
	if cfg.Concurrency < 0 || cfg.RequestsPerSecond < 0 || cfg.MaxAttempts < 0 || cfg.RequestTimeout < 0 || cfg.CacheMaxAge < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	return nil
}
