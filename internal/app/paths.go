package app

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const maxFileNameBytes = 150

// SafeFileName turns an edition name into a single path element. Path
// separators, characters Windows reserves and control characters become '_';
// whitespace collapses to single spaces. An empty result becomes "edition".
func SafeFileName(name string) string {
	name = norm.NFKC.String(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case strings.ContainsRune(`<>:"/\|?*`, r), unicode.IsControl(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	if len(out) > maxFileNameBytes {
		cut := maxFileNameBytes
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut]
	}
	out = strings.Trim(out, ". ")
	if out == "" {
		return "edition"
	}
	return out
}

// deriveOutputPath returns OutputPath, or <OutputDir>/<safe name>.pdf.
func deriveOutputPath(cfg Config, editionName string) string {
	if p := strings.TrimSpace(cfg.OutputPath); p != "" {
		return p
	}
	return filepath.Join(cfg.OutputDir, SafeFileName(editionName)+".pdf")
}

// deriveEditionPath is where -crawl.only saves the crawled edition.
func deriveEditionPath(cfg Config, editionName string) string {
	if p := strings.TrimSpace(cfg.SaveEdition); p != "" {
		return p
	}
	out := deriveOutputPath(cfg, editionName)
	return strings.TrimSuffix(out, filepath.Ext(out)) + ".yaml"
}
