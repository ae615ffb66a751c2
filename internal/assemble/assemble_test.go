package assemble

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/newsfuse/internal/pdftest"
)

func TestReassemble_SingleArticleRoundTrip(t *testing.T) {
	dir := t.TempDir()
	doc := pdftest.WriteFile(t, dir, "art1.pdf", 201, 202, 203)
	out := filepath.Join(dir, "out.pdf")

	rep, err := New(Options{}).Reassemble([]Document{FileDocument(doc)}, [][]int{{1, 2, 3}}, out)
	if err != nil {
		t.Fatalf("reassemble: %v", err)
	}
	if diff := cmp.Diff([]float64{201, 202, 203}, pdftest.Widths(t, out)); diff != "" {
		t.Fatalf("pages (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, rep.Pages); diff != "" {
		t.Fatalf("report pages (-want +got):\n%s", diff)
	}
	if len(rep.Extraction) != 0 {
		t.Fatalf("unexpected extraction errors: %v", rep.Extraction)
	}
	if _, err := os.Stat(out + ".partial"); !os.IsNotExist(err) {
		t.Fatalf("partial output left behind")
	}
}

func TestReassemble_DeduplicatesAndOrders(t *testing.T) {
	dir := t.TempDir()
	docs := []Document{
		FileDocument(pdftest.WriteFile(t, dir, "art1.pdf", 303, 304)),
		// Page 3 again, scanned slightly differently; the first copy must win.
		FileDocument(pdftest.WriteFile(t, dir, "art2.pdf", 101, 399)),
		BytesDocument{Label: "art3", Data: pdftest.MustBuild(t, 502)},
	}
	sets := [][]int{{3, 4}, {1, 3}, {1002}}
	out := filepath.Join(dir, "edition.pdf")

	rep, err := New(Options{}).Reassemble(docs, sets, out)
	if err != nil {
		t.Fatalf("reassemble: %v", err)
	}
	if diff := cmp.Diff([]float64{101, 303, 304, 502}, pdftest.Widths(t, out)); diff != "" {
		t.Fatalf("pages (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{3}, rep.Articles[1].Duplicates); diff != "" {
		t.Fatalf("duplicates (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 3, 4, 1002}, rep.Pages); diff != "" {
		t.Fatalf("report pages (-want +got):\n%s", diff)
	}
}

func TestReassemble_SkipLastPagePolicy(t *testing.T) {
	t.Run("skip", func(t *testing.T) {
		dir := t.TempDir()
		doc := pdftest.WriteFile(t, dir, "art1.pdf", 205, 206, 999)
		out := filepath.Join(dir, "out.pdf")
		rep, err := New(Options{SkipLastPage: true}).Reassemble([]Document{FileDocument(doc)}, [][]int{{5, 6}}, out)
		if err != nil {
			t.Fatalf("reassemble: %v", err)
		}
		if diff := cmp.Diff([]float64{205, 206}, pdftest.Widths(t, out)); diff != "" {
			t.Fatalf("pages (-want +got):\n%s", diff)
		}
		if len(rep.Extraction) != 0 {
			t.Fatalf("unexpected extraction errors: %v", rep.Extraction)
		}
	})
	t.Run("keep", func(t *testing.T) {
		dir := t.TempDir()
		doc := pdftest.WriteFile(t, dir, "art1.pdf", 205, 206, 999)
		out := filepath.Join(dir, "out.pdf")
		rep, err := New(Options{}).Reassemble([]Document{FileDocument(doc)}, [][]int{{5, 6}}, out)
		if err != nil {
			t.Fatalf("reassemble: %v", err)
		}
		if diff := cmp.Diff([]float64{205, 206}, pdftest.Widths(t, out)); diff != "" {
			t.Fatalf("pages (-want +got):\n%s", diff)
		}
		if len(rep.Extraction) != 1 || !errors.Is(rep.Extraction[0], ErrNoPageIndex) || rep.Extraction[0].Page != 2 {
			t.Fatalf("expected one ErrNoPageIndex for the third page, got %v", rep.Extraction)
		}
	})
}

func TestReassemble_BadDocumentsAreRecoverable(t *testing.T) {
	dir := t.TempDir()
	docs := []Document{
		FileDocument(filepath.Join(dir, "missing.pdf")),
		FileDocument(pdftest.WriteFile(t, dir, "art2.pdf", 210, 211)),
		BytesDocument{Label: "corrupt", Data: []byte("%PDF-1.4 not really")},
	}
	sets := [][]int{{1}, {10, 11}, {12}}
	out := filepath.Join(dir, "out.pdf")

	rep, err := New(Options{}).Reassemble(docs, sets, out)
	if err != nil {
		t.Fatalf("reassemble: %v", err)
	}
	if diff := cmp.Diff([]float64{210, 211}, pdftest.Widths(t, out)); diff != "" {
		t.Fatalf("pages (-want +got):\n%s", diff)
	}
	if len(rep.Extraction) != 2 {
		t.Fatalf("expected 2 document errors, got %v", rep.Extraction)
	}
	for i, e := range rep.Extraction {
		if e.Page != -1 {
			t.Fatalf("error %d should concern the whole document: %v", i, e)
		}
	}
	if !rep.Articles[0].Failed || !rep.Articles[2].Failed || rep.Articles[1].Failed {
		t.Fatalf("unexpected article status: %+v", rep.Articles)
	}
	if diff := cmp.Diff([]int{1, 12}, rep.Unfilled); diff != "" {
		t.Fatalf("unfilled (-want +got):\n%s", diff)
	}
}

func TestReassemble_NoPagesIsFatalAndKeepsWorkDir(t *testing.T) {
	work := t.TempDir()
	if err := os.WriteFile(filepath.Join(work, "art1.pdf"), []byte("junk"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := filepath.Join(t.TempDir(), "out.pdf")

	_, err := New(Options{WorkDir: work}).Reassemble([]Document{FileDocument(filepath.Join(work, "art1.pdf"))}, [][]int{{1}}, out)
	var ae *AssemblyError
	if !errors.As(err, &ae) || !errors.Is(err, ErrNoPages) {
		t.Fatalf("expected AssemblyError(ErrNoPages), got %v", err)
	}
	if ae.Path != out {
		t.Fatalf("error path = %q", ae.Path)
	}
	if _, err := os.Stat(filepath.Join(work, "art1.pdf")); err != nil {
		t.Fatalf("work dir must be kept: %v", err)
	}
}

func TestReassemble_UnwritableOutputKeepsEvidence(t *testing.T) {
	work := t.TempDir()
	doc := pdftest.WriteFile(t, work, "art1.pdf", 220, 221)
	// A regular file where the output directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := filepath.Join(blocker, "out.pdf")

	_, err := New(Options{WorkDir: work}).Reassemble([]Document{FileDocument(doc)}, [][]int{{1, 2}}, out)
	var ae *AssemblyError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AssemblyError, got %v", err)
	}
	if _, err := os.Stat(doc); err != nil {
		t.Fatalf("download must be kept: %v", err)
	}
	for _, name := range []string{"1.pdf", "2.pdf"} {
		if _, err := os.Stat(filepath.Join(work, "fragments", name)); err != nil {
			t.Fatalf("fragment %s not kept: %v", name, err)
		}
	}
}

func TestReassemble_WorkDirCleanup(t *testing.T) {
	for _, keep := range []bool{false, true} {
		root := t.TempDir()
		work := filepath.Join(root, "work")
		if err := os.MkdirAll(work, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		doc := pdftest.WriteFile(t, work, "art1.pdf", 230)
		out := filepath.Join(root, "out.pdf")
		if _, err := New(Options{WorkDir: work, KeepWorkDir: keep}).Reassemble([]Document{FileDocument(doc)}, [][]int{{1}}, out); err != nil {
			t.Fatalf("reassemble: %v", err)
		}
		_, statErr := os.Stat(work)
		if keep && statErr != nil {
			t.Fatalf("work dir removed despite KeepWorkDir")
		}
		if !keep && !os.IsNotExist(statErr) {
			t.Fatalf("work dir not removed: %v", statErr)
		}
	}
}

func TestReassemble_MismatchedInputs(t *testing.T) {
	_, err := New(Options{}).Reassemble([]Document{FileDocument("a.pdf")}, nil, "out.pdf")
	if err == nil {
		t.Fatalf("expected error")
	}
	var ae *AssemblyError
	if errors.As(err, &ae) {
		t.Fatalf("input mismatch is not an assembly error")
	}
}

func TestExtractionError_Message(t *testing.T) {
	e := &ExtractionError{Article: 1, Page: 4, Document: "art2.pdf", Err: ErrNoPageIndex}
	if got, want := e.Error(), "article 2 (art2.pdf) page 5: no page index for physical page"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestReassemble_PlaceholdersForUnfilled(t *testing.T) {
	dir := t.TempDir()
	doc := pdftest.WriteFile(t, dir, "art1.pdf", 201, 203)
	out := filepath.Join(dir, "out.pdf")
	var asked []int
	opts := Options{Placeholder: func(index int) ([]byte, error) {
		asked = append(asked, index)
		return pdftest.Build(900 + float64(index))
	}}
	// Index 2 is named but the document has only two pages.
	rep, err := New(opts).Reassemble([]Document{FileDocument(doc)}, [][]int{{1, 3, 2}}, out)
	if err != nil {
		t.Fatalf("reassemble: %v", err)
	}
	if diff := cmp.Diff([]int{2}, asked); diff != "" {
		t.Fatalf("placeholder calls (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{201, 902, 203}, pdftest.Widths(t, out)); diff != "" {
		t.Fatalf("pages (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2}, rep.Unfilled); diff != "" {
		t.Fatalf("unfilled (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2}, rep.Placeholders); diff != "" {
		t.Fatalf("placeholders (-want +got):\n%s", diff)
	}
}

func TestReassemble_SkippedLogLines(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	dir := t.TempDir()
	docs := []Document{
		FileDocument(filepath.Join(dir, "missing.pdf")),
		FileDocument(pdftest.WriteFile(t, dir, "art2.pdf", 240, 241)),
	}
	if _, err := New(Options{}).Reassemble(docs, [][]int{{1}, {2}}, filepath.Join(dir, "out.pdf")); err != nil {
		t.Fatalf("reassemble: %v", err)
	}

	var skipped []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		if err := json.Unmarshal(line, &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if m, _ := entry["message"].(string); m == "document skipped" || m == "page skipped" {
			skipped = append(skipped, entry)
		}
	}
	if len(skipped) != 2 {
		t.Fatalf("expected 2 skip lines, got %v", skipped)
	}
	if skipped[0]["message"] != "document skipped" {
		t.Fatalf("first line = %v", skipped[0])
	}
	if _, ok := skipped[0]["page"]; ok {
		t.Fatalf("whole-document failure must not carry a page: %v", skipped[0])
	}
	if skipped[1]["message"] != "page skipped" || skipped[1]["page"] != float64(2) {
		t.Fatalf("second line = %v", skipped[1])
	}
}
