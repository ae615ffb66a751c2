package app

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// placeholderPage renders a single A4 page standing in for a page index that
// no article document supplied.
func placeholderPage(editionName string) func(index int) ([]byte, error) {
	return func(index int) ([]byte, error) {
		pdf := gofpdf.New("P", "mm", "A4", "")
		tr := pdf.UnicodeTranslatorFromDescriptor("")
		pdf.SetTitle(fmt.Sprintf("Missing page %d", index), true)
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 18)
		pdf.Ln(60)
		pdf.CellFormat(0, 12, tr("Page not available"), "", 1, "C", false, 0, "")
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page index %d", index), "", 1, "C", false, 0, "")
		if editionName != "" {
			pdf.Ln(4)
			pdf.MultiCell(0, 6, tr(editionName), "", "C", false)
		}
		var buf bytes.Buffer
		if err := pdf.Output(&buf); err != nil {
			return nil, fmt.Errorf("render placeholder: %w", err)
		}
		return buf.Bytes(), nil
	}
}
