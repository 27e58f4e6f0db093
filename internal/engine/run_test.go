package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// testRunConfig keeps runs fast and deterministic: no retries, no
// backoff sleeping, no direct-answer probe unless a test opts in.
func testRunConfig() RunConfig {
	cfg := DefaultRunConfig()
	cfg.MaxSteps = 10
	cfg.TokenBudget = -1
	cfg.StepTimeout = time.Second
	cfg.DirectAnswerProbe = false
	cfg.Retry = RetryConfig{
		LLMPolicy:          noRetry,
		CollaboratorPolicy: noRetry,
	}
	return cfg
}

func TestNewAgentValidation(t *testing.T) {
	llm := &scriptedLLM{}

	if _, err := NewAgent(Deps{}, testRunConfig()); err == nil {
		t.Error("NewAgent without an LLM should fail")
	}

	cfg := testRunConfig()
	cfg.MaxSteps = 0
	if _, err := NewAgent(Deps{LLM: llm}, cfg); !IsValidation(err) {
		t.Errorf("MaxSteps=0 should be a validation error, got %v", err)
	}

	if _, err := NewAgent(Deps{LLM: llm}, testRunConfig()); err != nil {
		t.Errorf("valid agent construction failed: %v", err)
	}
}

func TestRunRejectsEmptyQuestion(t *testing.T) {
	a, err := NewAgent(Deps{LLM: &scriptedLLM{}}, testRunConfig())
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	if _, err := a.Run(context.Background(), "   "); !IsValidation(err) {
		t.Errorf("blank question should be a validation error, got %v", err)
	}
}

func TestRunZeroBudgetForcesAnswerAtStepOne(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("must not be consulted")}
	cfg := testRunConfig()
	cfg.TokenBudget = 0

	a, err := NewAgent(Deps{LLM: llm}, cfg)
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}

	result, err := a.Run(context.Background(), "what is the capital of France?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Termination != ForcedByBudget {
		t.Errorf("Termination = %q, want %q", result.Termination, ForcedByBudget)
	}
	if result.Status != StatusExhausted {
		t.Errorf("Status = %q, want %q", result.Status, StatusExhausted)
	}
	if result.Steps != 1 {
		t.Errorf("Steps = %d, want 1", result.Steps)
	}
	if llm.calls != 0 {
		t.Errorf("model consulted %d times on an exhausted budget", llm.calls)
	}
}

func TestRunStagnationTerminatesFailingRun(t *testing.T) {
	// Model unreachable and no search provider: every step degenerates to
	// the same fallback search, which trips the loop detector.
	llm := &scriptedLLM{err: errors.New("bad request")}

	a, err := NewAgent(Deps{LLM: llm}, testRunConfig())
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}

	result, err := a.Run(context.Background(), "unanswerable question")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Termination != ForcedByStagnation {
		t.Errorf("Termination = %q, want %q", result.Termination, ForcedByStagnation)
	}
	if result.Status != StatusExhausted {
		t.Errorf("Status = %q, want %q", result.Status, StatusExhausted)
	}
	if result.Steps >= testRunConfig().MaxSteps {
		t.Errorf("stagnation should end the run well before the step cap, took %d steps", result.Steps)
	}
	if result.KnowledgeItems != 0 {
		t.Errorf("KnowledgeItems = %d, want 0", result.KnowledgeItems)
	}
}

func TestRunStepCapGuaranteesTermination(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("bad request")}
	cfg := testRunConfig()
	cfg.MaxSteps = 4
	// Detection windows wider than the run, so only the step cap can end it.
	cfg.Stagnation = StagnationConfig{LoopWindow: 100, ProgressWindow: 100}

	a, err := NewAgent(Deps{LLM: llm}, cfg)
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}

	result, err := a.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Steps != cfg.MaxSteps {
		t.Errorf("Steps = %d, want termination exactly at the cap %d", result.Steps, cfg.MaxSteps)
	}
	if result.Termination != ForcedBySteps {
		t.Errorf("Termination = %q, want %q", result.Termination, ForcedBySteps)
	}
	if result.Status != StatusExhausted {
		t.Errorf("Status = %q, want %q", result.Status, StatusExhausted)
	}
}

func TestRunFinalStepStillResearches(t *testing.T) {
	// Even a one-step run gets a real decision on that step; the cap
	// ends the run only after the step has executed.
	llm := &scriptedLLM{err: errors.New("bad request")}
	provider := &fakeSearch{hits: map[string][]SearchResult{
		"q": {{Title: "T", URL: "https://example.com/t", Snippet: "a fact"}},
	}}
	cfg := testRunConfig()
	cfg.MaxSteps = 1

	a, err := NewAgent(Deps{LLM: llm, Search: provider}, cfg)
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}

	result, err := a.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Steps != 1 {
		t.Errorf("Steps = %d, want 1", result.Steps)
	}
	if result.Termination != ForcedBySteps {
		t.Errorf("Termination = %q, want %q", result.Termination, ForcedBySteps)
	}
	if result.KnowledgeItems != 1 {
		t.Errorf("KnowledgeItems = %d, want the fallback search on step 1 to have run", result.KnowledgeItems)
	}
	if !strings.Contains(result.Answer, "a fact") {
		t.Errorf("Answer = %q, want it built from the step-1 search result", result.Answer)
	}
}

func TestRunForcedFinalizationOption(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("must not be consulted")}
	cfg := testRunConfig()
	cfg.ForcedFinalization = true

	a, err := NewAgent(Deps{LLM: llm}, cfg)
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}

	result, err := a.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Termination != ForcedByFinalization {
		t.Errorf("Termination = %q, want %q", result.Termination, ForcedByFinalization)
	}
	if result.Steps != 1 {
		t.Errorf("Steps = %d, want forced finalization on the first step", result.Steps)
	}
	if llm.calls != 0 {
		t.Errorf("llm.calls = %d, want 0 for a caller-forced finalization", llm.calls)
	}
}

func TestRunEvaluatedAnswer(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		// step 1: decide to search
		`{"think":"look it up","action":"search","searchQueries":["capital of France"]}`,
		// step 2: decide to answer, not yet final
		`{"think":"I have it","action":"answer","answer":"Paris is the capital of France.","references":["https://a.example"],"isFinal":false}`,
		// evaluator verdict
		`{"pass": true, "think": "all criteria met"}`,
	}}
	provider := &fakeSearch{hits: map[string][]SearchResult{
		"capital of France": {{URL: "https://a.example", Title: "France", Snippet: "Paris is the capital."}},
	}}

	a, err := NewAgent(Deps{LLM: llm, Search: provider}, testRunConfig())
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}

	result, err := a.Run(context.Background(), "what is the capital of France?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Termination != TerminationEvaluated {
		t.Errorf("Termination = %q, want %q", result.Termination, TerminationEvaluated)
	}
	if result.Status != StatusAnswered {
		t.Errorf("Status = %q, want %q", result.Status, StatusAnswered)
	}
	if result.Answer != "Paris is the capital of France." {
		t.Errorf("Answer = %q", result.Answer)
	}
	if result.Steps != 2 {
		t.Errorf("Steps = %d, want 2", result.Steps)
	}
	if result.KnowledgeItems != 1 {
		t.Errorf("KnowledgeItems = %d, want the search snippet ingested", result.KnowledgeItems)
	}
	if result.Usage.Total == 0 {
		t.Error("Usage should account for the model calls")
	}
}

func TestRunForcedFinalizationAfterRejections(t *testing.T) {
	// Unsourced answers fail the attribution precheck deterministically;
	// after two rejections the finalization override takes over.
	llm := &scriptedLLM{replies: []string{
		`{"action":"answer","answer":"trust me, it is Paris"}`,
		`{"action":"answer","answer":"really, it is Paris"}`,
	}}
	cfg := testRunConfig()
	cfg.MaxRejectedAnswers = 2

	a, err := NewAgent(Deps{LLM: llm}, cfg)
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}

	result, err := a.Run(context.Background(), "what is the capital of France?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Termination != ForcedByFinalization {
		t.Errorf("Termination = %q, want %q", result.Termination, ForcedByFinalization)
	}
	if result.Steps != 3 {
		t.Errorf("Steps = %d, want forced finalization on step 3", result.Steps)
	}
}

func TestRunFallbackOnlyRunConverges(t *testing.T) {
	// Model permanently unreachable but search works: fallback search,
	// fallback visit, fallback answer accepted by the failing-open
	// evaluator.
	llm := &scriptedLLM{err: errors.New("bad request")}
	provider := &fakeSearch{hits: map[string][]SearchResult{
		"q": {{URL: "https://a.example", Title: "A", Snippet: "the fact"}},
	}}

	a, err := NewAgent(Deps{LLM: llm, Search: provider}, testRunConfig())
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}

	result, err := a.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Termination != TerminationFallback {
		t.Errorf("Termination = %q, want %q", result.Termination, TerminationFallback)
	}
	if result.Status != StatusExhausted {
		t.Errorf("Status = %q, want %q", result.Status, StatusExhausted)
	}
	if result.Answer == "" || len(result.References) == 0 {
		t.Errorf("fallback answer should quote gathered knowledge, got %q refs=%v", result.Answer, result.References)
	}
}

func TestRunDirectAnswerProbe(t *testing.T) {
	llm := &scriptedLLM{replies: []string{`{"direct": true, "answer": "4"}`}}
	cfg := testRunConfig()
	cfg.DirectAnswerProbe = true

	a, err := NewAgent(Deps{LLM: llm}, cfg)
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}

	result, err := a.Run(context.Background(), "what is 2+2?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Termination != TerminationDirect {
		t.Errorf("Termination = %q, want %q", result.Termination, TerminationDirect)
	}
	if result.Answer != "4" {
		t.Errorf("Answer = %q, want 4", result.Answer)
	}
	if result.Steps != 0 {
		t.Errorf("Steps = %d, want 0 for a direct answer", result.Steps)
	}
}

func TestRunDirectProbeDeclinesIntoLoop(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		`{"direct": false}`,
		`{"action":"answer","answer":"42","references":["https://a.example"],"isFinal":true}`,
	}}
	cfg := testRunConfig()
	cfg.DirectAnswerProbe = true

	a, err := NewAgent(Deps{LLM: llm}, cfg)
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}

	result, err := a.Run(context.Background(), "a research question")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Termination != TerminationFinal {
		t.Errorf("Termination = %q, want %q", result.Termination, TerminationFinal)
	}
	if result.Steps != 1 {
		t.Errorf("Steps = %d, want 1", result.Steps)
	}
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a, err := NewAgent(Deps{LLM: &scriptedLLM{}}, testRunConfig())
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}

	result, err := a.Run(ctx, "q")
	if err == nil {
		t.Fatal("cancelled run should surface the context error")
	}
	if result.Status != StatusCancelled {
		t.Errorf("Status = %q, want %q", result.Status, StatusCancelled)
	}
	if result.Termination != TerminationCancelled {
		t.Errorf("Termination = %q, want %q", result.Termination, TerminationCancelled)
	}
}

func TestRunEmitsHookEvents(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		`{"action":"answer","answer":"done","references":["https://a.example"],"isFinal":true}`,
	}}
	ch := make(chan Event, 16)

	a, err := NewAgent(Deps{LLM: llm}, testRunConfig(), ChannelHook{Ch: ch})
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	if _, err := a.Run(context.Background(), "q"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := map[string]bool{}
	for {
		select {
		case ev := <-ch:
			want[ev.Kind] = true
			continue
		default:
		}
		break
	}
	for _, k := range []string{"step_started", "action_decided", "action_completed", "run_terminated"} {
		if !want[k] {
			t.Errorf("missing %q event, got %v", k, want)
		}
	}
}
