package assemble

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// FragmentStore holds single-page PDFs keyed by normalized page index. The
// first fragment stored for an index wins; later attempts are no-ops, which is
// how a page listed under two articles ends up once in the final document.
type FragmentStore struct {
	frags map[int][]byte
}

// NewFragmentStore returns an empty store.
func NewFragmentStore() *FragmentStore {
	return &FragmentStore{frags: make(map[int][]byte)}
}

// Extract stores the fragment produced by fn under index unless one is already
// present. fn is only called when the index is absent. It reports whether a
// new fragment was stored.
func (s *FragmentStore) Extract(index int, fn func() ([]byte, error)) (bool, error) {
	if _, ok := s.frags[index]; ok {
		return false, nil
	}
	b, err := fn()
	if err != nil {
		return false, err
	}
	s.frags[index] = b
	return true, nil
}

// Has reports whether a fragment is stored under index.
func (s *FragmentStore) Has(index int) bool {
	_, ok := s.frags[index]
	return ok
}

// Get returns the fragment stored under index.
func (s *FragmentStore) Get(index int) ([]byte, bool) {
	b, ok := s.frags[index]
	return b, ok
}

// Len returns the number of stored fragments.
func (s *FragmentStore) Len() int { return len(s.frags) }

// Keys returns the stored indices in ascending order.
func (s *FragmentStore) Keys() []int {
	keys := make([]int, 0, len(s.frags))
	for k := range s.frags {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Persist writes every fragment to dir as <index>.pdf.
func (s *FragmentStore) Persist(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir fragments: %w", err)
	}
	for _, k := range s.Keys() {
		p := filepath.Join(dir, strconv.Itoa(k)+".pdf")
		if err := os.WriteFile(p, s.frags[k], 0o644); err != nil {
			return fmt.Errorf("write fragment %d: %w", k, err)
		}
	}
	return nil
}
