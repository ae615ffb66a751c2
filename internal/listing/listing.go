// Package listing reads an archive issue page and its article pages and
// turns them into an edition: one PDF URL and one citation per article.
package listing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/newsfuse/internal/edition"
	"github.com/hyperifyio/newsfuse/internal/fetch"
)

// Selectors locate the pieces of the archive markup.
type Selectors struct {
	// ArticleLinks matches one element per article on the issue page.
	ArticleLinks    string `yaml:"articleLinks" json:"articleLinks"`
	ArticleLinkAttr string `yaml:"articleLinkAttr" json:"articleLinkAttr"`
	// PDF matches the embedded document on an article page.
	PDF     string `yaml:"pdf" json:"pdf"`
	PDFAttr string `yaml:"pdfAttr" json:"pdfAttr"`
	// Citation matches the element whose text is the citation line.
	Citation string `yaml:"citation" json:"citation"`
}

// DefaultSelectors matches the ProQuest publication pages.
func DefaultSelectors() Selectors {
	return Selectors{
		ArticleLinks:    "li.resultItem.ltr #addFlashPageParameterformat_fulltextPDF",
		ArticleLinkAttr: "href",
		PDF:             "#embedded-pdf",
		PDFAttr:         "src",
		Citation:        "#authordiv span:nth-of-type(2)",
	}
}

// WithDefaults fills empty fields from DefaultSelectors.
func (s Selectors) WithDefaults() Selectors {
	d := DefaultSelectors()
	if s.ArticleLinks == "" {
		s.ArticleLinks = d.ArticleLinks
	}
	if s.ArticleLinkAttr == "" {
		s.ArticleLinkAttr = d.ArticleLinkAttr
	}
	if s.PDF == "" {
		s.PDF = d.PDF
	}
	if s.PDFAttr == "" {
		s.PDFAttr = d.PDFAttr
	}
	if s.Citation == "" {
		s.Citation = d.Citation
	}
	return s
}

var (
	ErrNoArticleLinks = errors.New("no article links on issue page")
	ErrNoPDF          = errors.New("no embedded pdf on article page")
	ErrNoCitation     = errors.New("no citation on article page")
)

// ParseIssue returns the absolute article page URLs of an issue page in
// document order. Repeated links are kept once.
func ParseIssue(r io.Reader, base *url.URL, sel Selectors) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse issue page: %w", err)
	}
	seen := make(map[string]bool)
	var links []string
	doc.Find(sel.ArticleLinks).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr(sel.ArticleLinkAttr)
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		abs, err := resolve(base, href)
		if err != nil {
			log.Debug().Err(err).Str("href", href).Msg("skipping unparsable link")
			return
		}
		if seen[abs] {
			return
		}
		seen[abs] = true
		links = append(links, abs)
	})
	if len(links) == 0 {
		return nil, ErrNoArticleLinks
	}
	return links, nil
}

// ParseArticle extracts the PDF URL and citation text from an article page.
func ParseArticle(r io.Reader, base *url.URL, sel Selectors) (edition.Article, error) {
	var a edition.Article
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return a, fmt.Errorf("parse article page: %w", err)
	}
	src, ok := doc.Find(sel.PDF).First().Attr(sel.PDFAttr)
	if !ok || strings.TrimSpace(src) == "" {
		return a, ErrNoPDF
	}
	if a.URL, err = resolve(base, src); err != nil {
		return a, fmt.Errorf("pdf url: %w", err)
	}
	a.Citation = strings.Join(strings.Fields(doc.Find(sel.Citation).First().Text()), " ")
	if a.Citation == "" {
		return a, ErrNoCitation
	}
	return a, nil
}

func resolve(base *url.URL, ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	return u.String(), nil
}

// Skipped records an article page that could not be read.
type Skipped struct {
	Link string
	Err  error
}

// Result is the outcome of a crawl.
type Result struct {
	Edition *edition.Edition
	Skipped []Skipped
}

// Crawler walks an issue page and its article pages. Pages are fetched one at
// a time; politeness comes from the Getter's limiter.
type Crawler struct {
	Getter    fetch.Getter
	Selectors Selectors
}

// Crawl builds an edition from the issue at issueURL. Article pages that fail
// are logged and skipped; a crawl that yields no article at all is an error.
func (c *Crawler) Crawl(ctx context.Context, issueURL string) (*Result, error) {
	sel := c.Selectors.WithDefaults()
	base, err := url.Parse(issueURL)
	if err != nil {
		return nil, fmt.Errorf("issue url: %w", err)
	}
	body, _, err := c.Getter.Get(ctx, issueURL)
	if err != nil {
		return nil, fmt.Errorf("fetch issue page: %w", err)
	}
	links, err := ParseIssue(bytes.NewReader(body), base, sel)
	if err != nil {
		return nil, err
	}
	log.Info().Str("issue", issueURL).Int("articles", len(links)).Msg("issue page parsed")

	res := &Result{Edition: &edition.Edition{}}
	for i, link := range links {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a, err := c.article(ctx, link)
		if err != nil {
			log.Warn().Err(err).Int("article", i+1).Str("link", link).Msg("article skipped")
			res.Skipped = append(res.Skipped, Skipped{Link: link, Err: err})
			continue
		}
		log.Debug().Int("article", i+1).Str("citation", a.Citation).Msg("article found")
		res.Edition.Articles = append(res.Edition.Articles, a)
	}
	if len(res.Edition.Articles) == 0 {
		return nil, fmt.Errorf("crawl %s: %w", issueURL, edition.ErrNoArticles)
	}
	res.Edition.Name = res.Edition.DisplayName()
	return res, nil
}

func (c *Crawler) article(ctx context.Context, link string) (edition.Article, error) {
	base, err := url.Parse(link)
	if err != nil {
		return edition.Article{}, err
	}
	body, _, err := c.Getter.Get(ctx, link)
	if err != nil {
		return edition.Article{}, err
	}
	return ParseArticle(bytes.NewReader(body), base, c.Selectors.WithDefaults())
}
