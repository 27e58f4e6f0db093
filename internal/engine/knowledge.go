package engine

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/google/uuid"
)

// KnowledgeStore holds discovered knowledge items for the life of a run.
// Contents only grow; re-ingesting an identical (sourceID, summary) pair
// is a no-op. Alongside the append-only arena it maintains an in-memory
// full-text index over summaries so answer composition can pull the most
// relevant items rather than just the most recent.
type KnowledgeStore struct {
	items []KnowledgeItem
	seen  map[string]bool // (sourceID, summary) dedup keys
	index bleve.Index
}

// NewKnowledgeStore creates an empty store with a mem-only search index.
func NewKnowledgeStore() (*KnowledgeStore, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create knowledge index: %w", err)
	}
	return &KnowledgeStore{
		seen:  make(map[string]bool),
		index: idx,
	}, nil
}

// Close releases the underlying index.
func (s *KnowledgeStore) Close() error {
	if s.index == nil {
		return nil
	}
	return s.index.Close()
}

func dedupKey(sourceID, summary string) string {
	return sourceID + "\x00" + summary
}

// Add ingests one knowledge item, assigning it an ID and the given step.
// Returns true if the item was new. Duplicates by (sourceID, summary) are
// dropped silently so idempotent re-ingestion cannot inflate the store.
func (s *KnowledgeStore) Add(sourceID, summary string, step int) (KnowledgeItem, bool) {
	key := dedupKey(sourceID, summary)
	if s.seen[key] {
		return KnowledgeItem{}, false
	}
	item := KnowledgeItem{
		ID:       uuid.NewString(),
		SourceID: sourceID,
		Summary:  summary,
		Step:     step,
	}
	s.items = append(s.items, item)
	s.seen[key] = true
	// Index failures degrade Search to recency order; the arena is still
	// the source of truth.
	_ = s.index.Index(item.ID, map[string]string{
		"source":  item.SourceID,
		"summary": item.Summary,
	})
	return item, true
}

// Merge ingests handler-produced items, preserving dedup semantics, and
// returns how many were new.
func (s *KnowledgeStore) Merge(items []KnowledgeItem, step int) int {
	added := 0
	for _, it := range items {
		if _, ok := s.Add(it.SourceID, it.Summary, step); ok {
			added++
		}
	}
	return added
}

// Size returns the number of distinct items held.
func (s *KnowledgeStore) Size() int { return len(s.items) }

// All returns a copy of every item in insertion order.
func (s *KnowledgeStore) All() []KnowledgeItem {
	return append([]KnowledgeItem(nil), s.items...)
}

// Recent returns up to n items, most recent first.
func (s *KnowledgeStore) Recent(n int) []KnowledgeItem {
	if n <= 0 || n > len(s.items) {
		n = len(s.items)
	}
	out := make([]KnowledgeItem, 0, n)
	for i := len(s.items) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.items[i])
	}
	return out
}

// Sources returns every distinct sourceID in first-seen order.
func (s *KnowledgeStore) Sources() []string {
	seen := make(map[string]bool, len(s.items))
	var out []string
	for _, it := range s.items {
		if !seen[it.SourceID] {
			seen[it.SourceID] = true
			out = append(out, it.SourceID)
		}
	}
	return out
}

// Search returns up to n items ranked by full-text relevance to query.
// Falls back to Recent(n) when the index yields nothing usable.
func (s *KnowledgeStore) Search(query string, n int) []KnowledgeItem {
	if query == "" || len(s.items) == 0 {
		return s.Recent(n)
	}
	if n <= 0 {
		n = len(s.items)
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), n, 0, false)
	res, err := s.index.Search(req)
	if err != nil || len(res.Hits) == 0 {
		return s.Recent(n)
	}
	byID := make(map[string]KnowledgeItem, len(s.items))
	for _, it := range s.items {
		byID[it.ID] = it
	}
	out := make([]KnowledgeItem, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if it, ok := byID[hit.ID]; ok {
			out = append(out, it)
		}
	}
	if len(out) == 0 {
		return s.Recent(n)
	}
	return out
}
