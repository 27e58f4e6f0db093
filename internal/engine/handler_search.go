package engine

import (
	"context"
	"fmt"
	"time"
)

const maxResultsPerQuery = 5

// SearchHandler issues the decided queries against a web search provider.
// Queries run sequentially: each query's results inform nothing within the
// step, but provider rate limits are unforgiving.
type SearchHandler struct {
	provider SearchProvider
	policy   RetryPolicy
	hooks    Hooks
}

func NewSearchHandler(provider SearchProvider, policy RetryPolicy, hooks Hooks) *SearchHandler {
	return &SearchHandler{provider: provider, policy: policy, hooks: hooks}
}

func (h *SearchHandler) Execute(ctx context.Context, dec Decision, ec *ExecContext) HandlerResult {
	res := HandlerResult{Success: true}
	if dec.Search == nil {
		res.Success = false
		res.Error = fmt.Errorf("search decision without parameters")
		return res
	}
	if h.provider == nil {
		res.Success = false
		res.FailedQueries = append(res.FailedQueries, dec.Search.Queries...)
		res.Error = fmt.Errorf("no search provider configured")
		return res
	}

	seen := make(map[string]bool, len(ec.KnownURLs))
	for u := range ec.KnownURLs {
		seen[u] = true
	}
	nextIndex := ec.BaseURLIndex
	errored := 0

	for _, query := range dec.Search.Queries {
		hits, err := RetryWithPolicy(ctx, h.policy,
			func(ctx context.Context) ([]SearchResult, error) {
				return h.provider.Search(ctx, query)
			},
			func(attempt int, delay time.Duration, err error) {
				h.hooks.OnRetryAttempt(ctx, attempt, delay, err)
			},
		)
		if err != nil {
			// One dead query does not sink the step; the loop moves on
			// with whatever the other queries returned.
			errored++
			res.FailedQueries = append(res.FailedQueries, query)
			res.Error = err
			continue
		}
		if len(hits) == 0 {
			res.FailedQueries = append(res.FailedQueries, query)
			continue
		}

		for i, hit := range hits {
			if i >= maxResultsPerQuery {
				break
			}
			if hit.URL == "" || seen[hit.URL] {
				continue
			}
			seen[hit.URL] = true
			res.DiscoveredURLs = append(res.DiscoveredURLs, URLCandidate{
				Index:   nextIndex,
				URL:     hit.URL,
				Title:   hit.Title,
				Snippet: hit.Snippet,
			})
			nextIndex++
			if hit.Snippet == "" {
				// A bare link is a candidate to visit, not knowledge.
				continue
			}
			res.Knowledge = append(res.Knowledge, KnowledgeItem{
				SourceID: hit.URL,
				Summary:  fmt.Sprintf("Title: %s\nSnippet: %s", hit.Title, hit.Snippet),
			})
		}
	}

	// Partial failure stays a success; a provider that served no query
	// at all did fail the step.
	if errored == len(dec.Search.Queries) && errored > 0 {
		res.Success = false
	}

	return res
}
