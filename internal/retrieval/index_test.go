package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adavi-labs/practicegpt/internal/domain"
)

// fakeSource serves chunks from memory with the same owner scoping and
// fallback semantics as the sqlite repository.
type fakeSource struct {
	chunks []domain.Chunk
}

func (f *fakeSource) ChunksByOwner(ownerID string) ([]domain.Chunk, error) {
	var out []domain.Chunk
	for _, c := range f.chunks {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeSource) SubstringSearch(ownerID, query string, topK int) ([]domain.Chunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	var out []domain.Chunk
	for _, c := range f.chunks {
		if c.OwnerID == ownerID && strings.Contains(strings.ToLower(c.Text), strings.ToLower(query)) {
			out = append(out, c)
			if len(out) == topK {
				break
			}
		}
	}
	return out, nil
}

func chunk(owner, doc string, index int, text string) domain.Chunk {
	return domain.Chunk{
		ID:         doc + "-" + string(rune('0'+index)),
		DocumentID: doc,
		OwnerID:    owner,
		Index:      index,
		Text:       text,
		Metadata:   map[string]any{"filename": doc + ".txt"},
	}
}

func TestSearch_RanksByRelevance(t *testing.T) {
	source := &fakeSource{chunks: []domain.Chunk{
		chunk("owner-1", "doc", 0, "Billing policies and insurance claims handling"),
		chunk("owner-1", "doc", 1, "Wound care: clean the wound and dress the wound daily"),
		chunk("owner-1", "doc", 2, "General wound prevention tips"),
	}}
	index := NewIndex(source)

	results, err := index.Search("owner-1", "wound care", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, 1, results[0].ChunkIndex, "chunk mentioning the terms most ranks first")
	assert.Equal(t, 2, results[1].ChunkIndex)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Equal(t, "doc.txt", results[0].Filename)
}

func TestSearch_TopKLimit(t *testing.T) {
	source := &fakeSource{chunks: []domain.Chunk{
		chunk("owner-1", "doc", 0, "botox treatment"),
		chunk("owner-1", "doc", 1, "botox aftercare"),
		chunk("owner-1", "doc", 2, "botox contraindications"),
	}}
	index := NewIndex(source)

	results, err := index.Search("owner-1", "botox", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearch_TiesBreakBySequenceIndex(t *testing.T) {
	source := &fakeSource{chunks: []domain.Chunk{
		chunk("owner-1", "doc", 3, "laser safety notes"),
		chunk("owner-1", "doc", 1, "laser safety notes"),
	}}
	index := NewIndex(source)

	results, err := index.Search("owner-1", "laser", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].ChunkIndex)
	assert.Equal(t, 3, results[1].ChunkIndex)
}

func TestSearch_OwnerIsolation(t *testing.T) {
	source := &fakeSource{chunks: []domain.Chunk{
		chunk("owner-a", "doca", 0, "intake form for new patients"),
		chunk("owner-b", "docb", 0, "intake form for new patients"),
	}}
	index := NewIndex(source)

	results, err := index.Search("owner-a", "intake form", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doca", results[0].DocumentID)
}

func TestSearch_FallbackFindsLiteralSubstring(t *testing.T) {
	// every query token is a stopword, so lexical ranking scores nothing,
	// but the literal phrase exists in the corpus
	source := &fakeSource{chunks: []domain.Chunk{
		chunk("owner-1", "doc", 0, "What is our own policy on this"),
		chunk("owner-1", "doc", 1, "unrelated content"),
	}}
	index := NewIndex(source)

	results, err := index.Search("owner-1", "our own", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].ChunkIndex)
	assert.Equal(t, FallbackScore, results[0].Score)
}

func TestSearch_TopKZero(t *testing.T) {
	index := NewIndex(&fakeSource{})
	results, err := index.Search("owner-1", "anything", 0)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestSearch_EmptyCorpus(t *testing.T) {
	index := NewIndex(&fakeSource{})
	results, err := index.Search("owner-1", "query", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
