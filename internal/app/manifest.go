package app

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/hyperifyio/newsfuse/internal/assemble"
)

// Article statuses in the run report.
const (
	statusOK            = "ok"
	statusPartial       = "partial"
	statusLabelError    = "label_error"
	statusDownloadError = "download_error"
	statusDocumentError = "document_error"
)

// articleRecord is what one article contributed to the run.
type articleRecord struct {
	Article    int      `json:"article"`
	Label      string   `json:"label"`
	Source     string   `json:"source"`
	Indices    []int    `json:"indices,omitempty"`
	Added      []int    `json:"added,omitempty"`
	Duplicates []int    `json:"duplicates,omitempty"`
	Status     string   `json:"status"`
	Errors     []string `json:"errors,omitempty"`
}

// runReport is the sidecar written next to the edition PDF.
type runReport struct {
	Edition      string          `json:"edition"`
	Source       string          `json:"source"`
	Output       string          `json:"output"`
	SHA256       string          `json:"sha256"`
	Bytes        int64           `json:"bytes"`
	Pages        []int           `json:"pages"`
	Unfilled     []int           `json:"unfilled,omitempty"`
	Placeholders []int           `json:"placeholders,omitempty"`
	Articles     []articleRecord `json:"articles"`
	Version      string          `json:"version"`
	GeneratedAt  time.Time       `json:"generated_at"`
}

// fileSHA256Hex returns the lowercase hex SHA-256 of the file and its size.
func fileSHA256Hex(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// mergeAssembly folds the reassembly report into the per-article records.
// kept maps the reassembler's article numbers to record positions.
func mergeAssembly(records []articleRecord, kept []int, rep *assemble.Report) {
	for _, ar := range rep.Articles {
		rec := &records[kept[ar.Article]]
		rec.Added = ar.Added
		rec.Duplicates = ar.Duplicates
		if ar.Failed && rec.Status == statusOK {
			rec.Status = statusDocumentError
		}
	}
	for _, e := range rep.Extraction {
		rec := &records[kept[e.Article]]
		rec.Errors = append(rec.Errors, e.Error())
		if rec.Status == statusOK {
			rec.Status = statusPartial
		}
	}
}

func marshalRunReport(r runReport) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// deriveManifestSidecarPath returns the report path next to the output PDF.
func deriveManifestSidecarPath(outputPath string) string {
	return outputPath + ".manifest.json"
}

func writeRunReport(outputPath string, r runReport) error {
	b, err := marshalRunReport(r)
	if err != nil {
		return err
	}
	return os.WriteFile(deriveManifestSidecarPath(outputPath), b, 0o644)
}
