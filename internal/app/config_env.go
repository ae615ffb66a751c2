package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix namespaces every environment variable the tool reads.
const EnvPrefix = "NEWSFUSE_"

// ApplyEnvOverrides overrides cfg fields with environment variables that are
// set. Env sits above the config file and below flags.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(EnvPrefix + key)); v != "" {
			*dst = v
		}
	}
	setString(&cfg.EditionPath, "EDITION")
	setString(&cfg.IssueURL, "ISSUE_URL")
	setString(&cfg.OutputPath, "OUTPUT")
	setString(&cfg.OutputDir, "OUTPUT_DIR")
	setString(&cfg.WorkDir, "WORK_DIR")
	setString(&cfg.LabelPolicy, "LABEL_POLICY")
	setString(&cfg.UserAgent, "USER_AGENT")
	setString(&cfg.Cookie, "COOKIE")
	setString(&cfg.CacheDir, "CACHE_DIR")
	setString(&cfg.SaveEdition, "SAVE_EDITION")

	if v := os.Getenv(EnvPrefix + "CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			cfg.Concurrency = n
		}
	}
	if v := os.Getenv(EnvPrefix + "ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			cfg.MaxAttempts = n
		}
	}
	if v := os.Getenv(EnvPrefix + "RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= 0 {
			cfg.RequestsPerSecond = f
		}
	}
	setDuration := func(dst *time.Duration, key string) {
		if s := os.Getenv(EnvPrefix + key); s != "" {
			if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
				*dst = d
			}
		}
	}
	setDuration(&cfg.RequestTimeout, "TIMEOUT")
	setDuration(&cfg.CacheMaxAge, "CACHE_MAX_AGE")

	setBool := func(dst *bool, key string) {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvPrefix + key))) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}
	setBool(&cfg.KeepWorkDir, "KEEP_WORK_DIR")
	setBool(&cfg.SkipLastPage, "SKIP_LAST_PAGE")
	setBool(&cfg.FillMissing, "FILL_MISSING")
	setBool(&cfg.CacheClear, "CACHE_CLEAR")
	setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
	setBool(&cfg.CrawlOnly, "CRAWL_ONLY")
	setBool(&cfg.Verbose, "VERBOSE")
}
