package engine

import (
	"fmt"
	"strings"
)

// Normalization caps. The model is told about them too, but the caps are
// enforced here regardless of what it returns.
const (
	maxQueriesPerStep      = 5
	maxVisitsPerStep       = 5
	maxSubQuestionsPerStep = 5
	maxFallbackVisits      = 3

	// forcedAnswerCharCap bounds the synthesized answer built from
	// concatenated knowledge summaries.
	forcedAnswerCharCap = 8000
)

// normalizeDecision converts a validated raw decision into a Decision
// with explicit defaults and caps applied per action type. It is total:
// every raw decision with a known action yields a valid Decision.
func normalizeDecision(raw rawDecision, dc *DecisionContext) Decision {
	dec := Decision{
		Think:  strings.TrimSpace(raw.Think),
		Action: ActionType(raw.Action),
	}

	switch dec.Action {
	case ActionSearch:
		queries := dedupeStrings(raw.SearchQueries, maxQueriesPerStep)
		if len(queries) == 0 {
			queries = []string{dc.Question.Text}
		}
		dec.Search = &SearchParams{Queries: queries}

	case ActionVisit:
		indices := dedupeInts(raw.URLIndices, maxVisitsPerStep)
		if len(indices) == 0 {
			indices = []int{0}
		}
		dec.Visit = &VisitParams{Indices: indices}

	case ActionReflect:
		subs := dedupeStrings(raw.SubQuestions, maxSubQuestionsPerStep)
		if len(subs) == 0 {
			subs = []string{synthesizeSubQuestion(dc.Question)}
		}
		dec.Reflect = &ReflectParams{SubQuestions: subs}

	case ActionAnswer:
		dec.Answer = &AnswerParams{
			Text:       strings.TrimSpace(raw.Answer),
			References: dedupeStrings(raw.References, 0),
			IsFinal:    raw.IsFinal,
		}

	case ActionCoding:
		dec.Coding = &CodingParams{
			Description: strings.TrimSpace(raw.CodingIssue),
			Code:        raw.Code,
		}
	}

	return dec
}

// fallbackDecision is the router's total last resort: every context,
// however empty, yields a valid decision. No knowledge yet means search
// the original question; unvisited candidates mean visit a few of them;
// otherwise synthesize a (non-forced) answer from what we have.
func fallbackDecision(dc *DecisionContext) Decision {
	if dc.KnowledgeSize == 0 {
		return Decision{
			Think:    "no knowledge gathered yet, searching the question directly",
			Action:   ActionSearch,
			Search:   &SearchParams{Queries: []string{dc.Question.Text}},
			Fallback: true,
		}
	}

	if unvisited := dc.UnvisitedCandidates(); len(unvisited) > 0 {
		n := len(unvisited)
		if n > maxFallbackVisits {
			n = maxFallbackVisits
		}
		indices := make([]int, 0, n)
		for _, c := range unvisited[:n] {
			indices = append(indices, c.Index)
		}
		return Decision{
			Think:    "model reply unusable, visiting unread candidates",
			Action:   ActionVisit,
			Visit:    &VisitParams{Indices: indices},
			Fallback: true,
		}
	}

	dec := synthesizedAnswer(dc.Knowledge)
	dec.Think = "model reply unusable and nothing left to explore, answering from gathered knowledge"
	dec.Fallback = true
	return dec
}

// forcedAnswer builds the final answer decision used by the override
// chain: knowledge summaries concatenated under a char cap, every source
// cited, marked final.
func forcedAnswer(items []KnowledgeItem, forcedBy string) Decision {
	dec := synthesizedAnswer(items)
	dec.Think = fmt.Sprintf("finalizing without evaluator consent (%s)", forcedBy)
	dec.Answer.IsFinal = true
	dec.ForcedBy = forcedBy
	return dec
}

// synthesizedAnswer concatenates knowledge summaries into a draft answer
// citing every distinct source. IsFinal is left false; callers decide.
func synthesizedAnswer(items []KnowledgeItem) Decision {
	// Every distinct source is cited, including those whose summary no
	// longer fits under the char cap.
	seen := make(map[string]bool)
	var refs []string
	for _, it := range items {
		if !seen[it.SourceID] {
			seen[it.SourceID] = true
			refs = append(refs, it.SourceID)
		}
	}

	var sb strings.Builder
	for _, it := range items {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		remaining := forcedAnswerCharCap - sb.Len()
		if remaining <= 0 {
			break
		}
		summary := it.Summary
		if len(summary) > remaining {
			summary = summary[:remaining]
		}
		sb.WriteString(summary)
	}
	return Decision{
		Action: ActionAnswer,
		Answer: &AnswerParams{Text: sb.String(), References: refs},
	}
}

// synthesizeSubQuestion derives a default reflection sub-question when
// the model supplies none.
func synthesizeSubQuestion(q Question) string {
	return fmt.Sprintf("What key facts are still missing to fully answer: %s", q.Text)
}

func dedupeStrings(in []string, limit int) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func dedupeInts(in []int, limit int) []int {
	seen := make(map[int]bool, len(in))
	var out []int
	for _, n := range in {
		if n < 0 || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
