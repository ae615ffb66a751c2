package pagelabel

// BandWidth is the size of one offset band. Plain numeric pages live in
// [0, BandWidth) and the k-th discovered marker owns [k*BandWidth, (k+1)*BandWidth).
// A label value of BandWidth or more would spill into the next band and is
// rejected with ErrPageOutOfBand.
const BandWidth = 1000

// BandTable maps a section marker (the first non-digit, non-hyphen character of
// a page token, e.g. 'N' in "N3") to its offset band. Bands are assigned in
// discovery order: the first marker gets 1000, the second 2000, and so on.
//
// A table is meant to be shared by every label of one edition so that the same
// marker always lands in the same band. It is not safe for concurrent use.
type BandTable struct {
	order []rune
	bands map[rune]int
}

// NewBandTable returns an empty table.
func NewBandTable() *BandTable {
	return &BandTable{bands: make(map[rune]int)}
}

// Band returns the offset for marker, assigning the next free band if the
// marker has not been seen before.
func (t *BandTable) Band(marker rune) int {
	if b, ok := t.bands[marker]; ok {
		return b
	}
	b := BandWidth * (1 + len(t.order))
	t.order = append(t.order, marker)
	t.bands[marker] = b
	return b
}

// Lookup returns the offset for marker without assigning one.
func (t *BandTable) Lookup(marker rune) (int, bool) {
	b, ok := t.bands[marker]
	return b, ok
}

// Markers returns the known markers in discovery order.
func (t *BandTable) Markers() []rune {
	out := make([]rune, len(t.order))
	copy(out, t.order)
	return out
}

// Len reports how many markers have been assigned a band.
func (t *BandTable) Len() int { return len(t.order) }

// truncate forgets every marker discovered after the first n.
func (t *BandTable) truncate(n int) {
	for _, m := range t.order[n:] {
		delete(t.bands, m)
	}
	t.order = t.order[:n]
}
