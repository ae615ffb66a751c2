package assemble

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPageIndex marks a physical page that has no entry in its article's
	// page index list.
	ErrNoPageIndex = errors.New("no page index for physical page")
	// ErrNoPages is returned when not a single fragment could be extracted.
	ErrNoPages = errors.New("no pages to assemble")
)

// ExtractionError reports a page, or a whole document when Page is -1, that
// contributed nothing to the final document. Article and Page are zero-based;
// Error() numbers both from 1.
type ExtractionError struct {
	Article  int
	Page     int
	Document string
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Page < 0 {
		return fmt.Sprintf("article %d (%s): %v", e.Article+1, e.Document, e.Err)
	}
	return fmt.Sprintf("article %d (%s) page %d: %v", e.Article+1, e.Document, e.Page+1, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// AssemblyError is fatal: the final document could not be written to Path.
type AssemblyError struct {
	Path string
	Err  error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assemble %s: %v", e.Path, e.Err)
}

func (e *AssemblyError) Unwrap() error { return e.Err }
