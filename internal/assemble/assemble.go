// Package assemble rebuilds a newspaper edition from per-article scans: every
// article PDF is cut into single pages, each page is keyed by its normalized
// page index, duplicates are dropped and the survivors are merged in index
// order into one document.
package assemble

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
)

func init() {
	// pdfcpu would otherwise install its config files under the user config dir.
	api.DisableConfigDir()
}

// Options control page pairing and work directory handling.
type Options struct {
	// SkipLastPage drops the last physical page of every article document
	// before pairing pages with indices. Some archives append a trailing
	// notice page to each article scan; others do not, so this is a choice.
	SkipLastPage bool
	// WorkDir holds the downloaded article documents. It is removed after a
	// successful run and kept, with the fragments written to WorkDir/fragments,
	// when the final document cannot be written.
	WorkDir string
	// KeepWorkDir disables removal of WorkDir on success.
	KeepWorkDir bool
	// Placeholder, when set, renders a stand-in page for every unfilled
	// index so the edition keeps its page count.
	Placeholder func(index int) ([]byte, error)
}

// ArticleReport summarizes what one article contributed.
type ArticleReport struct {
	Article    int    `json:"article"`
	Document   string `json:"document"`
	PageCount  int    `json:"page_count"`
	Added      []int  `json:"added,omitempty"`
	Duplicates []int  `json:"duplicates,omitempty"`
	Failed     bool   `json:"failed,omitempty"`
}

// Report describes a reassembly run.
type Report struct {
	Output   string          `json:"output"`
	Pages    []int           `json:"pages"`
	Articles []ArticleReport `json:"articles"`
	// Extraction lists every recoverable failure.
	Extraction []*ExtractionError `json:"-"`
	// Unfilled lists indices named by some page set that no document supplied.
	Unfilled []int `json:"unfilled,omitempty"`
	// Placeholders lists the unfilled indices that got a stand-in page.
	Placeholders []int `json:"placeholders,omitempty"`
}

// Reassembler merges article documents into a single edition document.
type Reassembler struct {
	opts Options
}

func New(opts Options) *Reassembler {
	return &Reassembler{opts: opts}
}

// Reassemble pairs docs[i] with sets[i], extracts each physical page p of
// docs[i] under the index sets[i][p] and writes the merged result to
// outputPath. Per-page and per-document failures are collected in the report;
// the returned error is non-nil only for mismatched inputs or an
// *AssemblyError.
func (r *Reassembler) Reassemble(docs []Document, sets [][]int, outputPath string) (*Report, error) {
	if len(docs) != len(sets) {
		return nil, fmt.Errorf("assemble: %d documents for %d page sets", len(docs), len(sets))
	}
	store := NewFragmentStore()
	rep := &Report{Output: outputPath}
	for i, doc := range docs {
		ar, errs := r.extractArticle(store, i, doc, sets[i])
		rep.Articles = append(rep.Articles, ar)
		for _, e := range errs {
			ev := log.Warn().Err(e.Err).Int("article", e.Article+1).Str("document", e.Document)
			if e.Page < 0 {
				ev.Msg("document skipped")
				continue
			}
			ev.Int("page", e.Page+1).Msg("page skipped")
		}
		rep.Extraction = append(rep.Extraction, errs...)
	}
	rep.Unfilled = unfilled(sets, store)
	if r.opts.Placeholder != nil {
		for _, idx := range rep.Unfilled {
			idx := idx
			if _, err := store.Extract(idx, func() ([]byte, error) { return r.opts.Placeholder(idx) }); err != nil {
				log.Warn().Err(err).Int("index", idx).Msg("placeholder failed")
				continue
			}
			rep.Placeholders = append(rep.Placeholders, idx)
		}
	}
	rep.Pages = store.Keys()

	if err := write(store, outputPath); err != nil {
		r.preserve(store)
		return rep, err
	}
	log.Info().Str("out", outputPath).Int("pages", len(rep.Pages)).Int("skipped", len(rep.Extraction)).Msg("wrote edition")
	r.cleanup()
	return rep, nil
}

func (r *Reassembler) extractArticle(store *FragmentStore, article int, doc Document, set []int) (ArticleReport, []*ExtractionError) {
	ar := ArticleReport{Article: article, Document: doc.Name()}
	fail := func(page int, err error) *ExtractionError {
		return &ExtractionError{Article: article, Page: page, Document: doc.Name(), Err: err}
	}

	ctx, err := readDocument(doc)
	if err != nil {
		ar.Failed = true
		return ar, []*ExtractionError{fail(-1, err)}
	}
	ar.PageCount = ctx.PageCount
	limit := ctx.PageCount
	if r.opts.SkipLastPage && limit > 0 {
		limit--
	}

	var errs []*ExtractionError
	for p := 0; p < limit; p++ {
		if p >= len(set) {
			errs = append(errs, fail(p, ErrNoPageIndex))
			continue
		}
		index := set[p]
		added, err := store.Extract(index, func() ([]byte, error) { return extractPage(ctx, p+1) })
		switch {
		case err != nil:
			errs = append(errs, fail(p, err))
		case added:
			ar.Added = append(ar.Added, index)
		default:
			ar.Duplicates = append(ar.Duplicates, index)
			log.Debug().Int("article", article+1).Int("index", index).Msg("page already stored")
		}
	}
	if len(set) > limit {
		log.Debug().Int("article", article+1).Int("indices", len(set)).Int("pages", limit).Msg("label names more pages than the document has")
	}
	return ar, errs
}

func readDocument(doc Document) (*model.Context, error) {
	rs, err := doc.Open()
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer rs.Close()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadContext(rs, conf)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("validate pdf: %w", err)
	}
	return ctx, nil
}

// extractPage renders page pageNr (1-based) of ctx as a standalone PDF.
func extractPage(ctx *model.Context, pageNr int) ([]byte, error) {
	one, err := pdfcpu.ExtractPages(ctx, []int{pageNr}, false)
	if err != nil {
		return nil, fmt.Errorf("extract page: %w", err)
	}
	var buf bytes.Buffer
	if err := api.WriteContext(one, &buf); err != nil {
		return nil, fmt.Errorf("write page: %w", err)
	}
	return buf.Bytes(), nil
}

// write merges the fragments in ascending index order into outputPath. The
// document is first written next to the target and renamed into place, so a
// failed run never leaves a truncated output behind.
func write(store *FragmentStore, outputPath string) error {
	keys := store.Keys()
	if len(keys) == 0 {
		return &AssemblyError{Path: outputPath, Err: ErrNoPages}
	}
	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &AssemblyError{Path: outputPath, Err: err}
		}
	}
	tmp := outputPath + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return &AssemblyError{Path: outputPath, Err: err}
	}
	if err := merge(store, keys, f); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return &AssemblyError{Path: outputPath, Err: err}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return &AssemblyError{Path: outputPath, Err: err}
	}
	if err := os.Rename(tmp, outputPath); err != nil {
		_ = os.Remove(tmp)
		return &AssemblyError{Path: outputPath, Err: err}
	}
	return nil
}

func merge(store *FragmentStore, keys []int, w io.Writer) error {
	if len(keys) == 1 {
		b, _ := store.Get(keys[0])
		_, err := w.Write(b)
		return err
	}
	rsc := make([]io.ReadSeeker, 0, len(keys))
	for _, k := range keys {
		b, _ := store.Get(k)
		rsc = append(rsc, bytes.NewReader(b))
	}
	if err := api.MergeRaw(rsc, w, false, model.NewDefaultConfiguration()); err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	return nil
}

func unfilled(sets [][]int, store *FragmentStore) []int {
	seen := make(map[int]bool)
	var out []int
	for _, set := range sets {
		for _, idx := range set {
			if seen[idx] || store.Has(idx) {
				continue
			}
			seen[idx] = true
			out = append(out, idx)
		}
	}
	sort.Ints(out)
	return out
}

func (r *Reassembler) preserve(store *FragmentStore) {
	if r.opts.WorkDir == "" {
		return
	}
	dir := filepath.Join(r.opts.WorkDir, "fragments")
	if err := store.Persist(dir); err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("could not keep fragments")
		return
	}
	log.Warn().Str("dir", r.opts.WorkDir).Msg("work directory kept for inspection")
}

func (r *Reassembler) cleanup() {
	if r.opts.WorkDir == "" || r.opts.KeepWorkDir {
		return
	}
	if err := os.RemoveAll(r.opts.WorkDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("dir", r.opts.WorkDir).Msg("work directory cleanup failed")
	}
}
