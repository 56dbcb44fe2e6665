// Package retrieval ranks stored document chunks against user queries.
//
// Search is two-tier: a lexical term-frequency ranking first, then a
// case-insensitive substring scan when ranking yields nothing. Lexical
// ranking can legitimately return zero rows for short or oddly-tokenized
// queries while the literal phrase still exists in the corpus; the
// fallback guarantees best-effort recall.
package retrieval

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/adavi-labs/practicegpt/internal/domain"
)

// FallbackScore is the uniform nominal score assigned to substring
// matches. Tunable policy: the fallback returns matches unconditionally,
// it does not apply a relevance threshold.
const FallbackScore = 1.0

// ChunkSource is the storage the index ranks over
type ChunkSource interface {
	ChunksByOwner(ownerID string) ([]domain.Chunk, error)
	SubstringSearch(ownerID, query string, topK int) ([]domain.Chunk, error)
}

// Index performs owner-scoped lexical search over stored chunks
type Index struct {
	source       ChunkSource
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewIndex creates an index over the given chunk source
func NewIndex(source ChunkSource) *Index {
	return &Index{
		source:       source,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Search returns up to topK of the owner's chunks ranked by lexical
// relevance, descending score with ties broken by ascending chunk index.
// When ranking produces no nonzero scores the substring fallback is
// applied instead. topK <= 0 returns nothing without querying.
func (ix *Index) Search(ownerID, query string, topK int) ([]domain.RetrievalResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	chunks, err := ix.source.ChunksByOwner(ownerID)
	if err != nil {
		return nil, err
	}

	ranked := ix.rank(chunks, query)
	if len(ranked) > 0 {
		if len(ranked) > topK {
			ranked = ranked[:topK]
		}
		return ranked, nil
	}

	matches, err := ix.source.SubstringSearch(ownerID, query, topK)
	if err != nil {
		return nil, err
	}
	results := make([]domain.RetrievalResult, 0, len(matches))
	for _, chunk := range matches {
		results = append(results, toResult(chunk, FallbackScore))
	}
	return results, nil
}

// rank scores every chunk by summed tf×idf weight of the query terms it
// contains and returns the nonzero-scored chunks in rank order.
func (ix *Index) rank(chunks []domain.Chunk, query string) []domain.RetrievalResult {
	queryTerms := ix.tokenize(query)
	if len(queryTerms) == 0 || len(chunks) == 0 {
		return nil
	}

	termSet := make(map[string]struct{}, len(queryTerms))
	for _, term := range queryTerms {
		termSet[term] = struct{}{}
	}

	// document frequencies over the owner's corpus, query terms only
	df := make(map[string]int, len(termSet))
	chunkTerms := make([]map[string]int, len(chunks))
	for i, chunk := range chunks {
		tf := make(map[string]int)
		for _, tok := range ix.tokenize(chunk.Text) {
			if _, wanted := termSet[tok]; wanted {
				tf[tok]++
			}
		}
		chunkTerms[i] = tf
		for term := range tf {
			df[term]++
		}
	}

	n := float64(len(chunks))
	idf := make(map[string]float64, len(df))
	for term, count := range df {
		// smoothed IDF
		idf[term] = math.Log((1+n)/(1+float64(count))) + 1.0
	}

	var results []domain.RetrievalResult
	for i, chunk := range chunks {
		score := 0.0
		for term, count := range chunkTerms[i] {
			score += float64(count) * idf[term]
		}
		if score > 0 {
			results = append(results, toResult(chunk, score))
		}
	}

	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		return results[a].ChunkIndex < results[b].ChunkIndex
	})
	return results
}

func (ix *Index) tokenize(text string) []string {
	raw := ix.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, tok := range raw {
		if _, isStop := ix.stopwords[tok]; isStop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func toResult(chunk domain.Chunk, score float64) domain.RetrievalResult {
	result := domain.RetrievalResult{
		ChunkID:    chunk.ID,
		Text:       chunk.Text,
		Score:      score,
		DocumentID: chunk.DocumentID,
		ChunkIndex: chunk.Index,
		Metadata:   chunk.Metadata,
	}
	if filename, ok := chunk.Metadata["filename"].(string); ok {
		result.Filename = filename
	}
	return result
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for",
		"to", "of", "in", "on", "at", "by", "with", "as", "is", "are",
		"was", "were", "be", "been", "being", "it", "this", "that",
		"these", "those", "from", "up", "down", "over", "under", "than",
		"so", "such", "into", "about", "between", "through", "during",
		"before", "after", "out", "off", "own", "same", "too", "very",
		"can", "will", "just", "should", "now", "what", "our",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
