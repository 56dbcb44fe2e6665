// Package prompt assembles augmented system prompts from retrieval
// results and tracks citation provenance.
package prompt

import (
	"fmt"
	"strings"

	"github.com/adavi-labs/practicegpt/internal/domain"
)

const contextHeader = "RELEVANT DOCUMENTS FROM YOUR KNOWLEDGE BASE:"

// Assemble merges the persona prompt with a delimited retrieved-context
// block and returns the distinct source identifiers in first-seen order.
// With no results the base prompt is returned unchanged with nil
// citations. Results are listed in the order supplied, assumed already
// rank-sorted upstream.
func Assemble(basePrompt string, results []domain.RetrievalResult) (string, []string) {
	if len(results) == 0 {
		return basePrompt, nil
	}

	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\n")
	b.WriteString(contextHeader)
	b.WriteString("\n")
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, r.Text)
	}

	return strings.TrimRight(b.String(), "\n"), Citations(results)
}

// Citations returns the distinct source identifiers of the results in
// first-seen order; multiple chunks of one source collapse to a single
// entry.
func Citations(results []domain.RetrievalResult) []string {
	seen := make(map[string]struct{}, len(results))
	var citations []string
	for _, r := range results {
		source := r.Source()
		if source == "" {
			continue
		}
		if _, ok := seen[source]; ok {
			continue
		}
		seen[source] = struct{}{}
		citations = append(citations, source)
	}
	return citations
}
