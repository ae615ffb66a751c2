package pagelabel

import "strings"

// SplitCitation splits an archive citation line into the edition name and the
// raw page label, e.g.
//
//	"The Economist; London Vol. 440, Iss. 9251, (Jul 3, 2021): 12-14."
//
// gives ("The Economist; London Vol. 440, Iss. 9251, (Jul 3, 2021)", "12-14").
// The split happens at the last ':'. Lines without a colon fall back to using
// the last whitespace-separated word as the label.
func SplitCitation(text string) (name, label string) {
	text = strings.Join(strings.Fields(text), " ")
	if i := strings.LastIndex(text, ":"); i >= 0 {
		name = strings.TrimSpace(text[:i])
		label = strings.TrimSpace(text[i+1:])
	} else if j := strings.LastIndex(text, " "); j >= 0 {
		name = strings.TrimSpace(text[:j])
		label = text[j+1:]
	} else {
		label = text
	}
	label = strings.TrimRight(label, ".")
	name = strings.TrimRight(name, ":;, ")
	return name, label
}
