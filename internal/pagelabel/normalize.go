// Package pagelabel turns the page labels a newspaper archive attaches to each
// article ("12, 14-16, N3") into sortable page indices.
//
// Plain numbers map to themselves. Tokens carrying a section marker (any
// character other than an ASCII digit or '-') are shifted into a band owned by
// that marker, so "N3" and "3" never collide and all N-section pages sort
// after the plain ones. Bands are handed out in the order markers are first
// seen across the whole edition, which is why one BandTable must be threaded
// through every label of that edition.
package pagelabel

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrEmptyNumber is returned for a token with no digits left after
	// stripping markers, e.g. "" or "N".
	ErrEmptyNumber = errors.New("empty page number")
	// ErrMalformedRange is returned for ranges missing a bound ("12-", "-5")
	// or with more than one hyphen.
	ErrMalformedRange = errors.New("malformed page range")
	// ErrReversedRange is returned when a range ends before it starts.
	ErrReversedRange = errors.New("page range ends before it starts")
	// ErrPageOutOfBand is returned for page numbers of BandWidth or more,
	// which would collide with the next marker band.
	ErrPageOutOfBand = fmt.Errorf("page number must be below %d", BandWidth)
)

// ParseError reports a label that could not be normalized. Article is the
// zero-based position of the label in its edition; Error() numbers articles
// from 1 to match the art<N>.pdf work files.
type ParseError struct {
	Article int
	Label   string
	Token   string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("article %d: page label %q: token %q: %v", e.Article+1, e.Label, e.Token, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Result is the outcome of normalizing one article label.
type Result struct {
	Article int
	Label   string
	Pages   []int
	Err     error
}

// Normalizer normalizes labels against a shared BandTable. The zero value is
// ready to use and allocates its table on first use.
type Normalizer struct {
	Table *BandTable
}

// NewNormalizer returns a normalizer with a fresh band table.
func NewNormalizer() *Normalizer {
	return &Normalizer{Table: NewBandTable()}
}

// Normalize converts one label per article into sorted page index lists using
// a band table created for this call. It stops at the first malformed label
// and returns its *ParseError.
func Normalize(labels []string) ([][]int, error) {
	n := NewNormalizer()
	out := make([][]int, 0, len(labels))
	for i, l := range labels {
		pages, err := n.Label(i, l)
		if err != nil {
			return nil, err
		}
		out = append(out, pages)
	}
	return out, nil
}

// Each normalizes every label and reports each outcome separately, so callers
// can decide per article whether a bad label is fatal. A failed label leaves
// the band table as it was before that label.
func (n *Normalizer) Each(labels []string) []Result {
	out := make([]Result, 0, len(labels))
	for i, l := range labels {
		pages, err := n.Label(i, l)
		out = append(out, Result{Article: i, Label: l, Pages: pages, Err: err})
	}
	return out
}

// Label normalizes the label of the article at position article. The result
// is sorted ascending; a label that repeats a page keeps the repeat. On error
// no marker discovered by this label stays in the table.
func (n *Normalizer) Label(article int, raw string) ([]int, error) {
	if n.Table == nil {
		n.Table = NewBandTable()
	}
	mark := n.Table.Len()
	pages, tok, err := n.parse(raw)
	if err != nil {
		n.Table.truncate(mark)
		return nil, &ParseError{Article: article, Label: raw, Token: tok, Err: err}
	}
	return pages, nil
}

func (n *Normalizer) parse(raw string) ([]int, string, error) {
	var pages []int
	for _, tok := range strings.Split(fold(raw), ",") {
		tok = stripSpace(tok)
		band := 0
		if m, ok := firstMarker(tok); ok {
			band = n.Table.Band(m)
		}
		start, end, err := parseToken(stripMarkers(tok))
		if err != nil {
			return nil, tok, err
		}
		for k := start; k <= end; k++ {
			pages = append(pages, band+k)
		}
	}
	sort.Ints(pages)
	return pages, "", nil
}

// parseToken parses a cleaned token, either "n" or "a-b", into an inclusive range.
func parseToken(tok string) (int, int, error) {
	if !strings.Contains(tok, "-") {
		v, err := parseNumber(tok)
		if err != nil {
			return 0, 0, err
		}
		return v, v, nil
	}
	parts := strings.Split(tok, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return 0, 0, ErrMalformedRange
	}
	start, err := parseNumber(parts[0])
	if err != nil {
		return 0, 0, err
	}
	end, err := parseNumber(parts[1])
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		return 0, 0, ErrReversedRange
	}
	return start, end, nil
}

func parseNumber(s string) (int, error) {
	if s == "" {
		return 0, ErrEmptyNumber
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		// Only digits remain at this point, so the one failure left is overflow.
		return 0, ErrPageOutOfBand
	}
	if v >= BandWidth {
		return 0, ErrPageOutOfBand
	}
	return v, nil
}

func isKept(r rune) bool { return (r >= '0' && r <= '9') || r == '-' }

// firstMarker returns the first rune that is neither an ASCII digit nor '-'.
func firstMarker(tok string) (rune, bool) {
	for _, r := range tok {
		if !isKept(r) {
			return r, true
		}
	}
	return 0, false
}

func stripMarkers(tok string) string {
	return strings.Map(func(r rune) rune {
		if isKept(r) {
			return r
		}
		return -1
	}, tok)
}

func stripSpace(tok string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, tok)
}

// fold applies NFKC (full-width digits, no-break spaces) and maps typographic
// dashes to '-', so "１２–１４" (full-width digits, en dash) reads as "12-14".
func fold(s string) string {
	s = norm.NFKC.String(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '\u2010' && r <= '\u2015', r == '\u2212':
			return '-'
		}
		return r
	}, s)
}
