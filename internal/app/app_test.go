package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hyperifyio/newsfuse/internal/edition"
	"github.com/hyperifyio/newsfuse/internal/pagelabel"
	"github.com/hyperifyio/newsfuse/internal/pdftest"
)

const planet = "Daily Planet; Metropolis (May 1, 2022)"

type fakeArticle struct {
	label  string
	widths []float64
}

// newArchive serves an issue page, one article page per article and the
// article PDFs. Every request must carry the session cookie.
func newArchive(t *testing.T, articles []fakeArticle) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var items strings.Builder
	for i, a := range articles {
		n := i + 1
		fmt.Fprintf(&items, `<li class="resultItem ltr"><a id="addFlashPageParameterformat_fulltextPDF" href="/docview/%d">PDF</a></li>`, n)
		page := fmt.Sprintf(`<html><body><embed id="embedded-pdf" src="/pdf/%d.pdf"><div id="authordiv"><span>Staff</span><span>%s: %s.</span></div></body></html>`, n, planet, a.label)
		mux.HandleFunc(fmt.Sprintf("/docview/%d", n), func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(page))
		})
		body := pdftest.MustBuild(t, a.widths...)
		mux.HandleFunc(fmt.Sprintf("/pdf/%d.pdf", n), func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write(body)
		})
	}
	issue := `<html><body><ul>` + items.String() + `</ul></body></html>`
	mux.HandleFunc("/publication/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(issue))
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sid"); err != nil || c.Value != "abc" {
			http.Error(w, "login required", http.StatusForbidden)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.WorkDir = filepath.Join(dir, "work")
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.RequestsPerSecond = 0
	cfg.MaxAttempts = 1
	cfg.Concurrency = 2
	cfg.Cookie = "sid=abc"
	return cfg
}

func run(t *testing.T, cfg Config) error {
	t.Helper()
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()
	return a.Run(context.Background())
}

func readReport(t *testing.T, output string) runReport {
	t.Helper()
	b, err := os.ReadFile(deriveManifestSidecarPath(output))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var r runReport
	if err := json.Unmarshal(b, &r); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	return r
}

func TestRun_CrawlAndAssemble(t *testing.T) {
	srv := newArchive(t, []fakeArticle{
		{"1-2", []float64{101, 102}},
		{"2, 3", []float64{192, 103}},
		{"S1", []float64{501}},
	})
	cfg := testConfig(t)
	cfg.IssueURL = srv.URL + "/publication/1"

	if err := run(t, cfg); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := filepath.Join(cfg.OutputDir, planet+".pdf")
	if diff := cmp.Diff([]float64{101, 102, 103, 501}, pdftest.Widths(t, out)); diff != "" {
		t.Fatalf("pages (-want +got):\n%s", diff)
	}
	rep := readReport(t, out)
	if diff := cmp.Diff([]int{1, 2, 3, 1001}, rep.Pages); diff != "" {
		t.Fatalf("report pages (-want +got):\n%s", diff)
	}
	sum, _, err := fileSHA256Hex(out)
	if err != nil || rep.SHA256 != sum {
		t.Fatalf("report digest %q does not match output %q (%v)", rep.SHA256, sum, err)
	}
	if rep.Edition != planet || len(rep.Articles) != 3 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if diff := cmp.Diff([]int{2}, rep.Articles[1].Duplicates); diff != "" {
		t.Fatalf("duplicates (-want +got):\n%s", diff)
	}
	for _, a := range rep.Articles {
		if a.Status != statusOK {
			t.Fatalf("article %d status %q", a.Article, a.Status)
		}
	}
	if _, err := os.Stat(cfg.WorkDir); !os.IsNotExist(err) {
		t.Fatalf("work dir should be removed after success")
	}
}

func TestRun_IgnoresWorkFilesOfEarlierEdition(t *testing.T) {
	srv := newArchive(t, []fakeArticle{
		{"1", []float64{101}},
		{"2", []float64{102}},
	})
	cfg := testConfig(t)
	cfg.IssueURL = srv.URL + "/publication/1"
	// Left behind by a failed run for another edition.
	if err := os.MkdirAll(filepath.Join(cfg.WorkDir, "fragments"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	pdftest.WriteFile(t, cfg.WorkDir, "art1.pdf", 901)
	pdftest.WriteFile(t, cfg.WorkDir, "art3.pdf", 903)

	if err := run(t, cfg); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := filepath.Join(cfg.OutputDir, planet+".pdf")
	if diff := cmp.Diff([]float64{101, 102}, pdftest.Widths(t, out)); diff != "" {
		t.Fatalf("pages (-want +got):\n%s", diff)
	}
}

func TestRun_LabelPolicyAbort(t *testing.T) {
	srv := newArchive(t, []fakeArticle{
		{"1-2", []float64{101, 102}},
		{"2-x", []float64{102}},
	})
	cfg := testConfig(t)
	cfg.IssueURL = srv.URL + "/publication/1"

	err := run(t, cfg)
	if !errors.Is(err, ErrLabels) {
		t.Fatalf("expected ErrLabels, got %v", err)
	}
	var pe *pagelabel.ParseError
	if !errors.As(err, &pe) || pe.Article != 1 {
		t.Fatalf("expected ParseError for the second article, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, planet+".pdf")); !os.IsNotExist(err) {
		t.Fatalf("no output expected after abort")
	}
}

func TestRun_LabelPolicySkip(t *testing.T) {
	srv := newArchive(t, []fakeArticle{
		{"1-2", []float64{101, 102}},
		{"2-x", []float64{102}},
		{"S1", []float64{501}},
	})
	cfg := testConfig(t)
	cfg.IssueURL = srv.URL + "/publication/1"
	cfg.LabelPolicy = LabelPolicySkip
	cfg.KeepWorkDir = true

	if err := run(t, cfg); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := filepath.Join(cfg.OutputDir, planet+".pdf")
	if diff := cmp.Diff([]float64{101, 102, 501}, pdftest.Widths(t, out)); diff != "" {
		t.Fatalf("pages (-want +got):\n%s", diff)
	}
	rep := readReport(t, out)
	// The rejected label must not have claimed a band.
	if diff := cmp.Diff([]int{1, 2, 1001}, rep.Pages); diff != "" {
		t.Fatalf("report pages (-want +got):\n%s", diff)
	}
	if rep.Articles[1].Status != statusLabelError || len(rep.Articles[1].Errors) != 1 {
		t.Fatalf("article 2 record: %+v", rep.Articles[1])
	}
	// Kept articles are renumbered for download.
	if _, err := os.Stat(filepath.Join(cfg.WorkDir, "art2.pdf")); err != nil {
		t.Fatalf("kept work dir should hold art2.pdf: %v", err)
	}
}

func TestRun_CrawlOnlySavesEdition(t *testing.T) {
	srv := newArchive(t, []fakeArticle{{"N3", []float64{103}}})
	cfg := testConfig(t)
	cfg.IssueURL = srv.URL + "/publication/1"
	cfg.CrawlOnly = true

	if err := run(t, cfg); err != nil {
		t.Fatalf("run: %v", err)
	}
	ed, err := edition.Load(filepath.Join(cfg.OutputDir, planet+".yaml"))
	if err != nil {
		t.Fatalf("load saved edition: %v", err)
	}
	want := &edition.Edition{Name: planet, Articles: []edition.Article{
		{Citation: planet + ": N3.", URL: srv.URL + "/pdf/1.pdf"},
	}}
	if diff := cmp.Diff(want, ed); diff != "" {
		t.Fatalf("edition (-want +got):\n%s", diff)
	}
}

func TestRun_MissingCookieFailsCrawl(t *testing.T) {
	srv := newArchive(t, []fakeArticle{{"1", []float64{101}}})
	cfg := testConfig(t)
	cfg.IssueURL = srv.URL + "/publication/1"
	cfg.Cookie = ""
	if err := run(t, cfg); err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected a 403 from the issue page, got %v", err)
	}
}

func TestRun_EditionFileWithPlaceholders(t *testing.T) {
	dir := t.TempDir()
	pdftest.WriteFile(t, dir, "a.pdf", 101, 102)
	pdftest.WriteFile(t, dir, "b.pdf", 205)
	ed := &edition.Edition{Name: "Scans", Articles: []edition.Article{
		{Label: "1-3", File: "a.pdf"},
		{Label: "5", File: "b.pdf"},
	}}
	edPath := filepath.Join(dir, "edition.yaml")
	if err := ed.Save(edPath); err != nil {
		t.Fatalf("save: %v", err)
	}
	cfg := testConfig(t)
	cfg.Cookie = ""
	cfg.EditionPath = edPath
	cfg.OutputPath = filepath.Join(dir, "final.pdf")
	cfg.FillMissing = true

	if err := run(t, cfg); err != nil {
		t.Fatalf("run: %v", err)
	}
	// Index 3 has no physical page and gets an A4 placeholder.
	if diff := cmp.Diff([]float64{101, 102, 595, 205}, pdftest.Widths(t, cfg.OutputPath)); diff != "" {
		t.Fatalf("pages (-want +got):\n%s", diff)
	}
	rep := readReport(t, cfg.OutputPath)
	if diff := cmp.Diff([]int{3}, rep.Placeholders); diff != "" {
		t.Fatalf("placeholders (-want +got):\n%s", diff)
	}
}

func TestRun_DownloadFailureIsRecoverable(t *testing.T) {
	dir := t.TempDir()
	pdftest.WriteFile(t, dir, "a.pdf", 101)
	ed := &edition.Edition{Articles: []edition.Article{
		{Label: "1", File: "a.pdf"},
		{Label: "2", File: "missing.pdf"},
	}}
	edPath := filepath.Join(dir, "edition.yaml")
	if err := ed.Save(edPath); err != nil {
		t.Fatalf("save: %v", err)
	}
	cfg := testConfig(t)
	cfg.EditionPath = edPath

	if err := run(t, cfg); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := filepath.Join(cfg.OutputDir, "edition.pdf")
	rep := readReport(t, out)
	if rep.Articles[1].Status != statusDownloadError {
		t.Fatalf("article 2 status %q", rep.Articles[1].Status)
	}
	if diff := cmp.Diff([]int{2}, rep.Unfilled); diff != "" {
		t.Fatalf("unfilled (-want +got):\n%s", diff)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	if _, err := New(context.Background(), DefaultConfig()); err == nil {
		t.Fatalf("expected validation error")
	}
}
