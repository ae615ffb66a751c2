// Package edition describes one newspaper edition as an ordered list of
// article scans, each with the archive's page label. An edition is produced
// by the listing crawl or written by hand, and can be saved and reloaded so a
// crawl and an assembly can run separately.
package edition

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/newsfuse/internal/pagelabel"
)

// Article is one scanned article. Exactly one of URL and File names its PDF.
type Article struct {
	// Label is the raw page label, e.g. "12-14" or "N3, S1".
	Label string `yaml:"label,omitempty" json:"label,omitempty"`
	// Citation is the archive's citation line. It supplies the label when
	// Label is empty.
	Citation string `yaml:"citation,omitempty" json:"citation,omitempty"`
	URL      string `yaml:"url,omitempty" json:"url,omitempty"`
	File     string `yaml:"file,omitempty" json:"file,omitempty"`
}

// RawLabel returns the page label to normalize.
func (a Article) RawLabel() string {
	if strings.TrimSpace(a.Label) != "" {
		return a.Label
	}
	_, label := pagelabel.SplitCitation(a.Citation)
	return label
}

// Source returns the URL or file the article's PDF comes from.
func (a Article) Source() string {
	if a.URL != "" {
		return a.URL
	}
	return a.File
}

// Edition is an ordered list of articles. Order matters: the first article
// to supply a page index wins.
type Edition struct {
	Name     string    `yaml:"name,omitempty" json:"name,omitempty"`
	Articles []Article `yaml:"articles" json:"articles"`
}

// DisplayName returns Name, or the edition name taken from the first
// article's citation.
func (e *Edition) DisplayName() string {
	if strings.TrimSpace(e.Name) != "" {
		return strings.TrimSpace(e.Name)
	}
	for _, a := range e.Articles {
		if name, _ := pagelabel.SplitCitation(a.Citation); name != "" {
			return name
		}
	}
	return ""
}

// RawLabels returns every article's raw label in order.
func (e *Edition) RawLabels() []string {
	out := make([]string, len(e.Articles))
	for i, a := range e.Articles {
		out[i] = a.RawLabel()
	}
	return out
}

var (
	ErrNoArticles = errors.New("edition has no articles")
	ErrNoSource   = errors.New("article needs exactly one of url or file")
)

// Validate checks that the edition can be assembled. Label syntax is checked
// later by the normalizer.
func (e *Edition) Validate() error {
	if len(e.Articles) == 0 {
		return ErrNoArticles
	}
	for i, a := range e.Articles {
		if (a.URL == "") == (a.File == "") {
			return fmt.Errorf("article %d: %w", i+1, ErrNoSource)
		}
	}
	return nil
}

// Load reads an edition from YAML or JSON, chosen by extension. Unknown
// extensions are tried as YAML, then JSON. Relative File paths are resolved
// against the edition file's directory.
func Load(path string) (*Edition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var e Edition
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &e); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &e); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &e); err != nil {
			e = Edition{}
			if jerr := json.Unmarshal(b, &e); jerr != nil {
				return nil, fmt.Errorf("parse edition: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	base := filepath.Dir(path)
	for i := range e.Articles {
		if f := e.Articles[i].File; f != "" && !filepath.IsAbs(f) {
			e.Articles[i].File = filepath.Join(base, f)
		}
	}
	return &e, nil
}

// Save writes the edition as YAML.
func (e *Edition) Save(path string) error {
	b, err := yaml.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode edition: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, b, 0o644)
}
