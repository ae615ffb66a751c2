// Package app wires the edition source, page label normalization, document
// download and reassembly into one run.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/hyperifyio/newsfuse/internal/assemble"
	"github.com/hyperifyio/newsfuse/internal/cache"
	"github.com/hyperifyio/newsfuse/internal/download"
	"github.com/hyperifyio/newsfuse/internal/edition"
	"github.com/hyperifyio/newsfuse/internal/fetch"
	"github.com/hyperifyio/newsfuse/internal/listing"
	"github.com/hyperifyio/newsfuse/internal/pagelabel"
)

// ErrLabels wraps the page label error that stopped a run under the abort
// policy.
var ErrLabels = errors.New("page labels rejected")

type App struct {
	cfg        Config
	httpClient *http.Client
	httpCache  *cache.HTTPCache
	limiter    *rate.Limiter
}

func New(ctx context.Context, cfg Config) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	hc, err := newHTTPClient(cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}
	a := &App{cfg: cfg, httpClient: hc, limiter: newLimiter(cfg.RequestsPerSecond)}

	if cfg.CacheDir != "" {
		if cfg.CacheClear {
			if err := cache.ClearDir(cfg.CacheDir); err != nil {
				log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache clear failed")
			}
		}
		if cfg.CacheMaxAge > 0 {
			n, err := cache.PurgeByAge(cfg.CacheDir, cfg.CacheMaxAge)
			if err != nil {
				log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache purge failed")
			} else if n > 0 {
				log.Info().Int("removed", n).Dur("max_age", cfg.CacheMaxAge).Msg("cache purged")
			}
		}
		a.httpCache = &cache.HTTPCache{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms}
	}
	return a, nil
}

// Close releases idle connections.
func (a *App) Close() {
	if a.httpClient != nil {
		a.httpClient.CloseIdleConnections()
	}
}

// Run produces the edition PDF and its run report. Recoverable failures are
// logged and recorded in the report; the returned error is non-nil for
// configuration, crawl, label (ErrLabels) and assembly failures.
func (a *App) Run(ctx context.Context) error {
	start := time.Now()
	pages, docs := a.clients()

	ed, source, err := a.acquire(ctx, pages)
	if err != nil {
		return err
	}
	name := ed.DisplayName()
	log.Info().Str("edition", name).Int("articles", len(ed.Articles)).Str("source", source).Msg("edition loaded")

	if a.cfg.CrawlOnly {
		path := deriveEditionPath(a.cfg, name)
		if err := ed.Save(path); err != nil {
			return fmt.Errorf("save edition: %w", err)
		}
		log.Info().Str("path", path).Msg("edition saved")
		return nil
	}

	records := make([]articleRecord, len(ed.Articles))
	for i, art := range ed.Articles {
		records[i] = articleRecord{Article: i + 1, Label: art.RawLabel(), Source: art.Source(), Status: statusOK}
	}
	kept, sets, err := a.normalize(ed, records)
	if err != nil {
		return err
	}

	articles := make([]edition.Article, len(kept))
	for j, i := range kept {
		articles[j] = ed.Articles[i]
	}
	f := &download.Fetcher{Getter: docs, WorkDir: a.cfg.WorkDir, Reuse: a.cfg.KeepWorkDir, Concurrency: a.cfg.Concurrency}
	results, err := f.Fetch(ctx, articles)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	documents := make([]assemble.Document, len(results))
	for j, r := range results {
		documents[j] = assemble.FileDocument(r.Path)
		if r.Err != nil {
			rec := &records[kept[j]]
			rec.Status = statusDownloadError
			rec.Errors = append(rec.Errors, r.Err.Error())
		}
	}

	output := deriveOutputPath(a.cfg, name)
	opts := assemble.Options{
		SkipLastPage: a.cfg.SkipLastPage,
		WorkDir:      a.cfg.WorkDir,
		KeepWorkDir:  a.cfg.KeepWorkDir,
	}
	if a.cfg.FillMissing {
		opts.Placeholder = placeholderPage(name)
	}
	r := assemble.New(opts)
	rep, err := r.Reassemble(documents, sets, output)
	if err != nil {
		return err
	}
	mergeAssembly(records, kept, rep)

	sum, size, err := fileSHA256Hex(output)
	if err != nil {
		return fmt.Errorf("hash output: %w", err)
	}
	report := runReport{
		Edition:      name,
		Source:       source,
		Output:       output,
		SHA256:       sum,
		Bytes:        size,
		Pages:        rep.Pages,
		Unfilled:     rep.Unfilled,
		Placeholders: rep.Placeholders,
		Articles:     records,
		Version:      BuildVersion,
		GeneratedAt:  time.Now().UTC(),
	}
	if err := writeRunReport(output, report); err != nil {
		log.Warn().Err(err).Str("path", deriveManifestSidecarPath(output)).Msg("run report not written")
	}
	log.Info().
		Str("out", output).
		Int("pages", len(rep.Pages)).
		Int("unfilled", len(rep.Unfilled)).
		Int("skipped_pages", len(rep.Extraction)).
		Dur("elapsed", time.Since(start)).
		Msg("done")
	return nil
}

// acquire loads the edition file or crawls the issue page.
func (a *App) acquire(ctx context.Context, pages *fetch.Client) (*edition.Edition, string, error) {
	if p := strings.TrimSpace(a.cfg.EditionPath); p != "" {
		ed, err := edition.Load(p)
		if err != nil {
			return nil, "", fmt.Errorf("load edition: %w", err)
		}
		if err := ed.Validate(); err != nil {
			return nil, "", fmt.Errorf("edition %s: %w", p, err)
		}
		if a.cfg.Cookie != "" {
			for _, art := range ed.Articles {
				if art.URL != "" {
					a.seed(art.URL)
					break
				}
			}
		}
		return ed, p, nil
	}
	a.seed(a.cfg.IssueURL)
	c := &listing.Crawler{Getter: pages, Selectors: a.cfg.Selectors}
	res, err := c.Crawl(ctx, a.cfg.IssueURL)
	if err != nil {
		return nil, "", err
	}
	if len(res.Skipped) > 0 {
		log.Warn().Int("skipped", len(res.Skipped)).Msg("some article pages could not be read")
	}
	return res.Edition, a.cfg.IssueURL, nil
}

func (a *App) seed(rawURL string) {
	if a.cfg.Cookie == "" {
		return
	}
	n, err := seedCookies(a.httpClient.Jar, rawURL, a.cfg.Cookie)
	if err != nil {
		log.Warn().Err(err).Msg("session cookie ignored")
		return
	}
	log.Debug().Int("cookies", n).Str("url", rawURL).Msg("session cookie seeded")
}

// normalize turns every article's raw label into page indices under the
// configured policy. It returns the positions of the articles that take part
// in the reassembly and their page index sets.
func (a *App) normalize(ed *edition.Edition, records []articleRecord) ([]int, [][]int, error) {
	labels := ed.RawLabels()
	if a.cfg.LabelPolicy == LabelPolicyAbort {
		sets, err := pagelabel.Normalize(labels)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrLabels, err)
		}
		kept := make([]int, len(sets))
		for i := range sets {
			kept[i] = i
			records[i].Indices = sets[i]
		}
		return kept, sets, nil
	}

	var kept []int
	var sets [][]int
	for _, res := range pagelabel.NewNormalizer().Each(labels) {
		if res.Err != nil {
			log.Warn().Err(res.Err).Int("article", res.Article+1).Msg("article dropped")
			records[res.Article].Status = statusLabelError
			records[res.Article].Errors = append(records[res.Article].Errors, res.Err.Error())
			continue
		}
		kept = append(kept, res.Article)
		sets = append(sets, res.Pages)
		records[res.Article].Indices = res.Pages
	}
	if len(kept) == 0 {
		return nil, nil, fmt.Errorf("%w: no article has a usable page label", ErrLabels)
	}
	return kept, sets, nil
}
