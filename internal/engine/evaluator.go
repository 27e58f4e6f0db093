package engine

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/ibis/internal/prompts"
)

// Evaluator judges whether a draft answer is good enough to end the run.
type Evaluator interface {
	Evaluate(ctx context.Context, question, answer string, references []string) EvaluationResult
}

// hedgingMarkers fail the definitive criterion before the model is even
// asked. Lowercase; matched against the lowercased answer.
var hedgingMarkers = []string{
	"i cannot answer",
	"i can't answer",
	"i am unable",
	"i'm unable",
	"i don't know",
	"i do not know",
	"as an ai",
	"it is unclear whether",
	"impossible to determine",
}

// LLMEvaluator checks a draft answer against the five quality criteria.
// Two criteria have deterministic pre-checks; the rest go to the model.
// An unreachable model accepts the answer rather than wedging the run in
// a rejection loop.
type LLMEvaluator struct {
	llm    LLMClient
	budget *TokenBudget
	policy RetryPolicy
	opts   ChatOptions
	hooks  Hooks
}

func NewLLMEvaluator(llm LLMClient, budget *TokenBudget, policy RetryPolicy, opts ChatOptions, hooks Hooks) *LLMEvaluator {
	return &LLMEvaluator{llm: llm, budget: budget, policy: policy, opts: opts, hooks: hooks}
}

func (e *LLMEvaluator) Evaluate(ctx context.Context, question, answer string, references []string) EvaluationResult {
	if len(references) == 0 {
		return EvaluationResult{Pass: false, Think: "attribution: the answer cites no sources"}
	}
	lower := strings.ToLower(answer)
	for _, marker := range hedgingMarkers {
		if strings.Contains(lower, marker) {
			return EvaluationResult{Pass: false, Think: "definitive: the answer hedges (\"" + marker + "\") instead of committing"}
		}
	}

	messages := []ChatMessage{
		{Role: RoleSystem, Content: prompts.EvaluationSystem},
		{Role: RoleUser, Content: prompts.BuildEvaluation(question, answer, references)},
	}
	resp, err := RetryWithPolicy(ctx, e.policy,
		func(ctx context.Context) (LLMResponse, error) {
			return e.llm.Chat(ctx, messages, e.opts)
		},
		func(attempt int, delay time.Duration, err error) {
			e.hooks.OnRetryAttempt(ctx, attempt, delay, err)
		},
	)
	if e.budget != nil {
		e.budget.Track(resp.Usage.Prompt, resp.Usage.Completion)
	}
	if err != nil {
		return EvaluationResult{Pass: true, Think: "evaluator unavailable, answer accepted"}
	}

	return parseVerdict(resp.Content)
}

type rawVerdict struct {
	Pass  bool   `json:"pass"`
	Think string `json:"think"`
}

// parseVerdict reads the evaluator's JSON reply. An unparsable verdict
// counts as a pass for the same reason an unreachable evaluator does.
func parseVerdict(reply string) EvaluationResult {
	block, err := extractJSON(reply)
	if err != nil {
		return EvaluationResult{Pass: true, Think: "unparsable verdict, answer accepted"}
	}
	var v rawVerdict
	if err := json.Unmarshal([]byte(block), &v); err != nil {
		return EvaluationResult{Pass: true, Think: "unparsable verdict, answer accepted"}
	}
	return EvaluationResult{Pass: v.Pass, Think: strings.TrimSpace(v.Think)}
}
