// Package matcher locates occurrences of a token subsequence inside a
// token sequence. It is a pure function layer with no store access; both
// propagation engines build on it.
package matcher

import (
	"strings"

	"github.com/nlp-tlp/quickgraph-sub001/pkg/common"
)

// Tokenize splits a phrase on whitespace. It mirrors how dataset items
// are tokenized at ingestion, so matcher output lines up with stored
// token indices.
func Tokenize(text string) []string {
	return strings.Fields(text)
}

// Matches returns every span (i, i+len(target)-1) at which candidate
// matches target element-wise. Spans may overlap; the result is ordered
// by ascending start index. An empty target matches nothing.
func Matches(target []string, candidate []string) []common.Span {
	if len(target) == 0 || len(candidate) < len(target) {
		return nil
	}

	var spans []common.Span
	for i := 0; i+len(target) <= len(candidate); i++ {
		if candidate[i] != target[0] {
			continue
		}
		matched := true
		for j := 1; j < len(target); j++ {
			if candidate[i+j] != target[j] {
				matched = false
				break
			}
		}
		if matched {
			spans = append(spans, common.Span{Start: i, End: i + len(target) - 1})
		}
	}
	return spans
}
