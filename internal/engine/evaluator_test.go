package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestEvaluatorAttributionPrecheck(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("must not be consulted")}
	e := NewLLMEvaluator(llm, nil, noRetry, ChatOptions{}, nil)

	verdict := e.Evaluate(context.Background(), "q", "a confident answer", nil)
	if verdict.Pass {
		t.Error("an answer with no references must fail attribution")
	}
	if !strings.Contains(verdict.Think, "attribution") {
		t.Errorf("Think = %q, want it to name attribution", verdict.Think)
	}
	if llm.calls != 0 {
		t.Errorf("precheck failures are deterministic; model consulted %d times", llm.calls)
	}
}

func TestEvaluatorDefinitivePrecheck(t *testing.T) {
	hedges := []string{
		"I cannot answer this question.",
		"I don't know what the population is.",
		"It is unclear whether the law passed.",
	}
	for _, answer := range hedges {
		llm := &scriptedLLM{err: errors.New("must not be consulted")}
		e := NewLLMEvaluator(llm, nil, noRetry, ChatOptions{}, nil)

		verdict := e.Evaluate(context.Background(), "q", answer, []string{"https://a.example"})
		if verdict.Pass {
			t.Errorf("hedging answer %q must fail the definitive criterion", answer)
		}
		if !strings.Contains(verdict.Think, "definitive") {
			t.Errorf("Think = %q, want it to name the definitive criterion", verdict.Think)
		}
	}
}

func TestEvaluatorModelVerdict(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		wantPass bool
	}{
		{"pass verdict", `{"pass": true, "think": "all criteria met"}`, true},
		{"fail verdict", `{"pass": false, "think": "completeness: only covers one aspect"}`, false},
		{"fenced verdict", "```json\n{\"pass\": true, \"think\": \"ok\"}\n```", true},
		{"unparsable verdict accepted", "certainly looks fine to me", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &scriptedLLM{replies: []string{tt.reply}}
			e := NewLLMEvaluator(llm, NewTokenBudget(1000), noRetry, ChatOptions{}, nil)

			verdict := e.Evaluate(context.Background(), "q", "a sourced answer", []string{"https://a.example"})
			if verdict.Pass != tt.wantPass {
				t.Errorf("Pass = %v, want %v (think: %q)", verdict.Pass, tt.wantPass, verdict.Think)
			}
		})
	}
}

func TestEvaluatorUnreachableAcceptsAnswer(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("bad request")}
	e := NewLLMEvaluator(llm, nil, noRetry, ChatOptions{}, nil)

	verdict := e.Evaluate(context.Background(), "q", "a sourced answer", []string{"https://a.example"})
	if !verdict.Pass {
		t.Error("an unreachable evaluator must accept rather than wedge the run in rejections")
	}
}
