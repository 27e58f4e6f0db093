package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ChamsBouzaiene/ibis/internal/prompts"
)

// Override causes, recorded on Decision.ForcedBy in the order the router
// checks them.
const (
	ForcedByFinalization = "forced_finalization"
	ForcedByBudget       = "budget"
	ForcedBySteps        = "steps"
	ForcedByStagnation   = "stagnation"
)

// Router turns a decision context into the next action. Deterministic
// overrides are checked in a fixed order before the model is consulted;
// an unusable model reply falls back to a deterministic decision, so
// Decide is total: it always returns a valid Decision.
type Router struct {
	llm    LLMClient
	budget *TokenBudget
	policy RetryPolicy
	opts   ChatOptions
	hooks  Hooks
}

func NewRouter(llm LLMClient, budget *TokenBudget, policy RetryPolicy, opts ChatOptions, hooks Hooks) *Router {
	return &Router{llm: llm, budget: budget, policy: policy, opts: opts, hooks: hooks}
}

// Decide picks the next action. knowledge is the full store contents in
// ingestion order, used when an override or fallback must synthesize an
// answer.
func (r *Router) Decide(ctx context.Context, dc *DecisionContext, knowledge []KnowledgeItem) Decision {
	// Override chain. Order matters: an explicit finalization request wins
	// over resource limits, budget over steps, steps over stagnation.
	switch {
	case dc.ForceFinalize:
		return forcedAnswer(knowledge, ForcedByFinalization)
	case r.budget.Exceeded():
		return forcedAnswer(knowledge, ForcedByBudget)
	case dc.Step > dc.MaxSteps:
		return forcedAnswer(knowledge, ForcedBySteps)
	case dc.Stagnation.StuckInLoop || dc.Stagnation.NoProgress:
		return forcedAnswer(knowledge, ForcedByStagnation)
	}

	messages := []ChatMessage{
		{Role: RoleSystem, Content: prompts.DecisionSystem},
		{Role: RoleUser, Content: prompts.BuildDecision(buildDecisionInput(dc))},
	}

	resp, err := RetryWithPolicy(ctx, r.policy,
		func(ctx context.Context) (LLMResponse, error) {
			return r.llm.Chat(ctx, messages, r.opts)
		},
		func(attempt int, delay time.Duration, err error) {
			r.hooks.OnRetryAttempt(ctx, attempt, delay, err)
		},
	)
	r.budget.Track(resp.Usage.Prompt, resp.Usage.Completion)
	if err != nil {
		if IsRetryExhausted(err) {
			r.hooks.OnRetryExhausted(ctx, err)
		}
		return r.fallback(ctx, dc, knowledge, fmt.Sprintf("model call failed: %v", err))
	}

	raw, err := parseDecision(resp.Content)
	if err != nil {
		return r.fallback(ctx, dc, knowledge, fmt.Sprintf("unusable model reply: %v", err))
	}

	dec := normalizeDecision(raw, dc)
	if dec.Action == ActionAnswer && dec.Answer.Text == "" {
		return r.fallback(ctx, dc, knowledge, "model proposed an empty answer")
	}
	return dec
}

func (r *Router) fallback(ctx context.Context, dc *DecisionContext, knowledge []KnowledgeItem, reason string) Decision {
	r.hooks.OnFallback(ctx, dc.Step, reason)
	dec := fallbackDecision(dc)
	if dec.Action == ActionAnswer {
		// rebuild from the full store rather than the capped context view
		full := synthesizedAnswer(knowledge)
		dec.Answer = full.Answer
	}
	return dec
}

// Context caps keep the decision prompt bounded on long runs.
const (
	promptKnowledgeCap = 20
	promptCandidateCap = 15
	promptDiaryCap     = 10
)

func buildDecisionInput(dc *DecisionContext) prompts.DecisionInput {
	in := prompts.DecisionInput{
		Question:        dc.Question.Text,
		QuestionType:    string(dc.Question.Type),
		CurrentQuestion: dc.CurrentQuestion,
		Diary:           tailStrings(dc.Diary, promptDiaryCap),
		FailedQueries:   dc.FailedQueries,
		Step:            dc.Step,
		MaxSteps:        dc.MaxSteps,
		BudgetRemaining: dc.BudgetRemaining,
	}

	for i, it := range dc.Knowledge {
		if i >= promptKnowledgeCap {
			break
		}
		in.Knowledge = append(in.Knowledge, fmt.Sprintf("%s: %s", it.SourceID, it.Summary))
	}

	for i, c := range dc.UnvisitedCandidates() {
		if i >= promptCandidateCap {
			break
		}
		line := fmt.Sprintf("[%d] %s - %s", c.Index, c.Title, c.URL)
		if c.Snippet != "" {
			line += " | " + truncate(c.Snippet, 120)
		}
		in.Candidates = append(in.Candidates, line)
	}

	for _, sq := range dc.SubQuestions {
		if !dc.Answered[sq] {
			in.OpenQuestions = append(in.OpenQuestions, sq)
		}
	}

	if dc.LastEvaluation != nil && !dc.LastEvaluation.Pass {
		in.LastEvaluation = dc.LastEvaluation.Think
	}

	// Nudge the model toward wrapping up when resources run short of the
	// hard overrides above.
	in.ForceFinalize = dc.BudgetRatio >= 0.85 || dc.Step == dc.MaxSteps-1
	return in
}

func tailStrings(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
