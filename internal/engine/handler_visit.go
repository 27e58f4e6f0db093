package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ChamsBouzaiene/ibis/internal/prompts"
)

// nothingRelevant is the summarizer's sentinel for pages that contributed
// no usable facts.
const nothingRelevant = "NOTHING RELEVANT"

// VisitHandler fetches the decided URL candidates and condenses each page
// into knowledge. Fetches run concurrently up to the configured cap;
// unknown indices are skipped rather than failed, since the model
// occasionally hallucinates one.
type VisitHandler struct {
	fetcher Fetcher
	llm     LLMClient
	opts    ChatOptions
	policy  RetryPolicy
	hooks   Hooks
	budget  *TokenBudget
}

func NewVisitHandler(fetcher Fetcher, llm LLMClient, opts ChatOptions, policy RetryPolicy, budget *TokenBudget, hooks Hooks) *VisitHandler {
	return &VisitHandler{fetcher: fetcher, llm: llm, opts: opts, policy: policy, budget: budget, hooks: hooks}
}

type visitOutcome struct {
	url     string
	summary string
	ok      bool
}

func (h *VisitHandler) Execute(ctx context.Context, dec Decision, ec *ExecContext) HandlerResult {
	res := HandlerResult{Success: true}
	if dec.Visit == nil {
		return res
	}

	byIndex := make(map[int]URLCandidate, len(ec.Candidates))
	for _, c := range ec.Candidates {
		byIndex[c.Index] = c
	}

	var targets []URLCandidate
	for _, idx := range dec.Visit.Indices {
		if c, ok := byIndex[idx]; ok {
			targets = append(targets, c)
		}
	}
	if len(targets) == 0 {
		return res
	}
	if h.fetcher == nil {
		// No fetcher means the URLs can never be read; mark them visited
		// so the loop stops proposing them.
		for _, t := range targets {
			res.VisitedURLs = append(res.VisitedURLs, t.URL)
		}
		return res
	}

	limit := ec.ConcurrencyCap
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	outcomes := make([]visitOutcome, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target URLCandidate) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = h.visitOne(ctx, ec.Question.Text, target)
		}(i, target)
	}
	wg.Wait()

	for _, out := range outcomes {
		res.VisitedURLs = append(res.VisitedURLs, out.url)
		if out.ok && out.summary != "" {
			res.Knowledge = append(res.Knowledge, KnowledgeItem{
				SourceID: out.url,
				Summary:  out.summary,
			})
		}
	}
	return res
}

func (h *VisitHandler) visitOne(ctx context.Context, question string, target URLCandidate) visitOutcome {
	out := visitOutcome{url: target.URL}

	content, err := RetryWithPolicy(ctx, h.policy,
		func(ctx context.Context) (string, error) {
			return h.fetcher.Fetch(ctx, target.URL)
		},
		func(attempt int, delay time.Duration, err error) {
			h.hooks.OnRetryAttempt(ctx, attempt, delay, err)
		},
	)
	if err != nil || strings.TrimSpace(content) == "" {
		// Still marked visited so the loop stops proposing a dead URL.
		return out
	}

	out.ok = true
	out.summary = h.summarize(ctx, question, target.URL, content)
	return out
}

// summarize condenses page content into question-relevant facts. When the
// model is unavailable the raw head of the page stands in, which is noisy
// but better than discarding a successful fetch.
func (h *VisitHandler) summarize(ctx context.Context, question, url, content string) string {
	if h.llm == nil {
		return truncate(strings.TrimSpace(content), 600)
	}

	messages := []ChatMessage{
		{Role: RoleUser, Content: prompts.BuildSummarize(question, url, truncate(content, 12000))},
	}
	resp, err := h.llm.Chat(ctx, messages, h.opts)
	if h.budget != nil {
		h.budget.Track(resp.Usage.Prompt, resp.Usage.Completion)
	}
	if err != nil {
		return truncate(strings.TrimSpace(content), 600)
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" || strings.EqualFold(summary, nothingRelevant) {
		return ""
	}
	return summary
}
