// Package download places every article PDF of an edition in the work
// directory as art<N>.pdf, N counting articles from 1.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/newsfuse/internal/edition"
	"github.com/hyperifyio/newsfuse/internal/fetch"
)

// ErrNotPDF is returned for a body that does not start with the PDF header.
var ErrNotPDF = errors.New("not a pdf document")

var pdfMagic = []byte("%PDF")

// Result is the outcome for one article. Path is set even when Err is not,
// so the article keeps its slot in the reassembly.
type Result struct {
	Article int
	Path    string
	Source  string
	Bytes   int
	Reused  bool
	Err     error
}

// Fetcher downloads article documents.
type Fetcher struct {
	Getter  fetch.Getter
	WorkDir string
	// Reuse keeps art<N>.pdf from an earlier run when its art<N>.source
	// sidecar names the same source as the current article. Without Reuse,
	// Fetch first removes every leftover document and fragment.
	Reuse bool
	// Concurrency bounds parallel downloads. Zero or one means sequential.
	Concurrency int
}

// Path returns the work file for article i (zero-based).
func (f *Fetcher) Path(i int) string {
	return filepath.Join(f.WorkDir, fmt.Sprintf("art%d.pdf", i+1))
}

func sourcePath(docPath string) string {
	return strings.TrimSuffix(docPath, ".pdf") + ".source"
}

// Fetch retrieves every article and returns one Result per article in
// article order. Per-article failures are in Result.Err; the error return is
// for a work directory that cannot be created or a cancelled context.
func (f *Fetcher) Fetch(ctx context.Context, articles []edition.Article) ([]Result, error) {
	if err := os.MkdirAll(f.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("work dir: %w", err)
	}
	if !f.Reuse {
		if err := f.clean(); err != nil {
			return nil, fmt.Errorf("work dir: %w", err)
		}
	}
	results := make([]Result, len(articles))
	limit := f.Concurrency
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, a := range articles {
		i, a := i, a
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Article: i, Path: f.Path(i), Source: a.Source(), Err: err}
				return nil
			}
			results[i] = f.one(ctx, i, a)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return results, err
	}
	for _, r := range results {
		ev := log.Debug()
		if r.Err != nil {
			ev = log.Warn().Err(r.Err)
		}
		ev.Int("article", r.Article+1).Str("source", r.Source).Int("bytes", r.Bytes).Bool("reused", r.Reused).Msg("document")
	}
	return results, nil
}

func (f *Fetcher) one(ctx context.Context, i int, a edition.Article) Result {
	r := Result{Article: i, Path: f.Path(i), Source: a.Source()}
	if f.Reuse {
		if n, ok := existing(r.Path, r.Source); ok {
			r.Bytes, r.Reused = n, true
			return r
		}
	}
	var body []byte
	var err error
	switch {
	case a.File != "":
		body, err = os.ReadFile(a.File)
	case a.URL != "":
		if f.Getter == nil {
			err = errors.New("no http client configured")
		} else {
			body, _, err = f.Getter.Get(ctx, a.URL)
		}
	default:
		err = edition.ErrNoSource
	}
	if err == nil && !bytes.HasPrefix(body, pdfMagic) {
		err = ErrNotPDF
	}
	if err != nil {
		r.Err = err
		return r
	}
	// A document without its sidecar is never reused.
	_ = os.Remove(sourcePath(r.Path))
	if err := writeFile(r.Path, body); err != nil {
		r.Err = err
		return r
	}
	if err := writeFile(sourcePath(r.Path), []byte(r.Source)); err != nil {
		r.Err = err
		return r
	}
	r.Bytes = len(body)
	return r
}

// existing reports the size of a work document left by an earlier run for
// the same source.
func existing(path, source string) (int, bool) {
	recorded, err := os.ReadFile(sourcePath(path))
	if err != nil || string(recorded) != source {
		return 0, false
	}
	fh, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer fh.Close()
	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(fh, head); err != nil || !bytes.Equal(head, pdfMagic) {
		return 0, false
	}
	info, err := fh.Stat()
	if err != nil {
		return 0, false
	}
	return int(info.Size()), true
}

// clean removes documents, sidecars, partial writes and kept fragments of
// an earlier run.
func (f *Fetcher) clean() error {
	for _, pattern := range []string{"art*.pdf", "art*.source", "art*.part"} {
		matches, err := filepath.Glob(filepath.Join(f.WorkDir, pattern))
		if err != nil {
			return err
		}
		for _, m := range matches {
			if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
		}
	}
	return os.RemoveAll(filepath.Join(f.WorkDir, "fragments"))
}

func writeFile(path string, body []byte) error {
	tmp := path + ".part"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
