// Package pdftest builds small PDFs for tests. Every page gets a caller-chosen
// width so that page identity and order survive slicing and merging and can
// be checked by reading the widths back.
package pdftest

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() { api.DisableConfigDir() }

// Height of every generated page, in points.
const Height = 600

// Build returns a PDF with one page per width (points).
func Build(widths ...float64) ([]byte, error) {
	if len(widths) == 0 {
		return nil, fmt.Errorf("pdftest: no pages")
	}
	// The default size differs from every page so that each page carries its
	// own MediaBox.
	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt", Size: gofpdf.SizeType{Wd: 1, Ht: 1}})
	pdf.SetFont("Helvetica", "", 12)
	for i, w := range widths {
		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: w, Ht: Height})
		pdf.Text(10, 40, fmt.Sprintf("page %d width %.0f", i+1, w))
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MustBuild is Build for tests.
func MustBuild(t testing.TB, widths ...float64) []byte {
	t.Helper()
	b, err := Build(widths...)
	if err != nil {
		t.Fatalf("build pdf: %v", err)
	}
	return b
}

// WriteFile writes a generated PDF to dir/name and returns its path.
func WriteFile(t testing.TB, dir, name string, widths ...float64) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, MustBuild(t, widths...), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return p
}

// Widths reads the page widths of the PDF at path, rounded to whole points.
func Widths(t testing.TB, path string) []float64 {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open pdf: %v", err)
	}
	defer f.Close()
	ctx, err := api.ReadContext(f, model.NewDefaultConfiguration())
	if err != nil {
		t.Fatalf("read pdf: %v", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		t.Fatalf("validate pdf: %v", err)
	}
	dims, err := ctx.PageDims()
	if err != nil {
		t.Fatalf("page dims: %v", err)
	}
	out := make([]float64, 0, len(dims))
	for _, d := range dims {
		out = append(out, math.Round(d.Width))
	}
	return out
}
