package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

type fakeSearch struct {
	hits  map[string][]SearchResult
	err   error
	errOn string // fail this one query; err fails all of them
}

func (f *fakeSearch) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.errOn != "" && query == f.errOn {
		return nil, errors.New("bad request")
	}
	return f.hits[query], nil
}

type fakeFetcher struct {
	pages map[string]string
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	content, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("404 not found: %s", url)
	}
	return content, nil
}

type fakeRunner struct {
	output string
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, description, code string) (string, error) {
	return f.output, f.err
}

type fakeEvaluator struct {
	verdict EvaluationResult
	calls   int
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, question, answer string, references []string) EvaluationResult {
	f.calls++
	return f.verdict
}

func searchDecision(queries ...string) Decision {
	return Decision{Action: ActionSearch, Search: &SearchParams{Queries: queries}}
}

func TestSearchHandlerDiscoversAndIngests(t *testing.T) {
	provider := &fakeSearch{hits: map[string][]SearchResult{
		"paris": {
			{URL: "https://a.example", Title: "A", Snippet: "about paris"},
			{URL: "https://b.example", Title: "B", Snippet: "more paris"},
		},
	}}
	h := NewSearchHandler(provider, noRetry, nil)

	ec := &ExecContext{
		Question:     Question{Text: "paris"},
		KnownURLs:    map[string]bool{},
		BaseURLIndex: 4,
	}
	res := h.Execute(context.Background(), searchDecision("paris"), ec)

	if !res.Success {
		t.Fatalf("Execute failed: %v", res.Error)
	}
	if len(res.DiscoveredURLs) != 2 {
		t.Fatalf("discovered %d URLs, want 2", len(res.DiscoveredURLs))
	}
	// Indices continue densely from the base.
	if res.DiscoveredURLs[0].Index != 4 || res.DiscoveredURLs[1].Index != 5 {
		t.Errorf("indices = [%d, %d], want [4, 5]",
			res.DiscoveredURLs[0].Index, res.DiscoveredURLs[1].Index)
	}
	if len(res.Knowledge) != 2 {
		t.Errorf("ingested %d knowledge items, want 2", len(res.Knowledge))
	}
	if !strings.Contains(res.Knowledge[0].Summary, "about paris") {
		t.Errorf("snippet missing from summary: %q", res.Knowledge[0].Summary)
	}
}

func TestSearchHandlerSkipsKnownURLs(t *testing.T) {
	provider := &fakeSearch{hits: map[string][]SearchResult{
		"q": {{URL: "https://known.example", Title: "K"}, {URL: "https://new.example", Title: "N"}},
	}}
	h := NewSearchHandler(provider, noRetry, nil)

	ec := &ExecContext{
		KnownURLs:    map[string]bool{"https://known.example": true},
		BaseURLIndex: 1,
	}
	res := h.Execute(context.Background(), searchDecision("q"), ec)
	if len(res.DiscoveredURLs) != 1 || res.DiscoveredURLs[0].URL != "https://new.example" {
		t.Errorf("DiscoveredURLs = %v, want only the new URL", res.DiscoveredURLs)
	}
}

func TestSearchHandlerRemembersFailedQueries(t *testing.T) {
	t.Run("empty result set", func(t *testing.T) {
		provider := &fakeSearch{hits: map[string][]SearchResult{}}
		h := NewSearchHandler(provider, noRetry, nil)

		res := h.Execute(context.Background(), searchDecision("nothing here"), &ExecContext{KnownURLs: map[string]bool{}})
		if !res.Success {
			t.Error("an empty result set is not a handler failure")
		}
		if want := []string{"nothing here"}; !reflect.DeepEqual(res.FailedQueries, want) {
			t.Errorf("FailedQueries = %v, want %v", res.FailedQueries, want)
		}
	})

	t.Run("every query erroring fails the step", func(t *testing.T) {
		provider := &fakeSearch{err: errors.New("bad request")}
		h := NewSearchHandler(provider, noRetry, nil)

		res := h.Execute(context.Background(), searchDecision("a", "b"), &ExecContext{KnownURLs: map[string]bool{}})
		if res.Success {
			t.Error("a provider that served no query should fail the step")
		}
		if res.Error == nil {
			t.Error("total provider failure should surface a diagnostic")
		}
		if len(res.Knowledge) != 0 {
			t.Errorf("Knowledge = %v, want none from a failed provider", res.Knowledge)
		}
		if len(res.FailedQueries) != 2 {
			t.Errorf("FailedQueries = %v, want both queries recorded", res.FailedQueries)
		}
	})

	t.Run("partial failure stays a success", func(t *testing.T) {
		provider := &fakeSearch{
			hits: map[string][]SearchResult{
				"good": {{Title: "T", URL: "https://example.com/t", Snippet: "a fact"}},
			},
			errOn: "bad",
		}
		h := NewSearchHandler(provider, noRetry, nil)

		res := h.Execute(context.Background(), searchDecision("good", "bad"), &ExecContext{KnownURLs: map[string]bool{}})
		if !res.Success {
			t.Error("one surviving query should keep the step successful")
		}
		if len(res.Knowledge) != 1 {
			t.Errorf("Knowledge = %v, want the surviving query's hit", res.Knowledge)
		}
		if want := []string{"bad"}; !reflect.DeepEqual(res.FailedQueries, want) {
			t.Errorf("FailedQueries = %v, want %v", res.FailedQueries, want)
		}
	})

	t.Run("no provider configured", func(t *testing.T) {
		h := NewSearchHandler(nil, noRetry, nil)
		res := h.Execute(context.Background(), searchDecision("q"), &ExecContext{})
		if res.Success {
			t.Error("missing provider should fail the step")
		}
		if res.Error == nil {
			t.Error("missing provider should surface an error")
		}
		if want := []string{"q"}; !reflect.DeepEqual(res.FailedQueries, want) {
			t.Errorf("FailedQueries = %v, want %v", res.FailedQueries, want)
		}
	})
}

func TestSearchHandlerSnippetlessHitIsCandidateOnly(t *testing.T) {
	provider := &fakeSearch{hits: map[string][]SearchResult{
		"q": {
			{Title: "Bare", URL: "https://example.com/bare"},
			{Title: "Full", URL: "https://example.com/full", Snippet: "a fact"},
		},
	}}
	h := NewSearchHandler(provider, noRetry, nil)

	res := h.Execute(context.Background(), searchDecision("q"), &ExecContext{KnownURLs: map[string]bool{}})
	if len(res.DiscoveredURLs) != 2 {
		t.Fatalf("DiscoveredURLs = %d, want both hits kept as candidates", len(res.DiscoveredURLs))
	}
	if len(res.Knowledge) != 1 {
		t.Fatalf("Knowledge = %v, want only the hit with a snippet", res.Knowledge)
	}
	if res.Knowledge[0].SourceID != "https://example.com/full" {
		t.Errorf("Knowledge SourceID = %q, want the snippeted hit", res.Knowledge[0].SourceID)
	}
}

func visitDecision(indices ...int) Decision {
	return Decision{Action: ActionVisit, Visit: &VisitParams{Indices: indices}}
}

func TestVisitHandlerSummarizesPages(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.example": "Paris is the capital and largest city of France.",
	}}
	llm := &scriptedLLM{replies: []string{"Paris is the capital of France."}}
	budget := NewTokenBudget(1000)
	h := NewVisitHandler(fetcher, llm, ChatOptions{}, noRetry, budget, nil)

	ec := &ExecContext{
		Question:       Question{Text: "capital of France"},
		Candidates:     []URLCandidate{{Index: 0, URL: "https://a.example"}},
		ConcurrencyCap: 2,
	}
	res := h.Execute(context.Background(), visitDecision(0), ec)

	if !res.Success {
		t.Fatalf("Execute failed: %v", res.Error)
	}
	if want := []string{"https://a.example"}; !reflect.DeepEqual(res.VisitedURLs, want) {
		t.Errorf("VisitedURLs = %v, want %v", res.VisitedURLs, want)
	}
	if len(res.Knowledge) != 1 || res.Knowledge[0].Summary != "Paris is the capital of France." {
		t.Errorf("Knowledge = %+v, want the model summary", res.Knowledge)
	}
	if budget.Totals().Total == 0 {
		t.Error("summarize calls must be tracked against the budget")
	}
}

func TestVisitHandlerSkipsUnknownIndices(t *testing.T) {
	h := NewVisitHandler(&fakeFetcher{}, nil, ChatOptions{}, noRetry, nil, nil)
	ec := &ExecContext{
		Candidates: []URLCandidate{
			{Index: 0, URL: "https://a.example"},
			{Index: 1, URL: "https://b.example"},
			{Index: 2, URL: "https://c.example"},
		},
	}

	// Index 7 was never discovered; the step succeeds with no effects.
	res := h.Execute(context.Background(), visitDecision(7), ec)
	if !res.Success {
		t.Errorf("unknown index should not fail the step: %v", res.Error)
	}
	if len(res.Knowledge) != 0 || len(res.VisitedURLs) != 0 {
		t.Errorf("unknown index should produce nothing, got %+v", res)
	}
}

func TestVisitHandlerFetchFailureMarksVisited(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	h := NewVisitHandler(fetcher, nil, ChatOptions{}, noRetry, nil, nil)
	ec := &ExecContext{
		Candidates:     []URLCandidate{{Index: 0, URL: "https://dead.example"}},
		ConcurrencyCap: 1,
	}

	res := h.Execute(context.Background(), visitDecision(0), ec)
	if !res.Success {
		t.Errorf("fetch failure should not fail the step: %v", res.Error)
	}
	if want := []string{"https://dead.example"}; !reflect.DeepEqual(res.VisitedURLs, want) {
		t.Errorf("dead URL must still be marked visited, got %v", res.VisitedURLs)
	}
	if len(res.Knowledge) != 0 {
		t.Errorf("failed fetch should yield no knowledge, got %+v", res.Knowledge)
	}
}

func TestVisitHandlerIrrelevantPageDropped(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{"https://a.example": "lorem ipsum"}}
	llm := &scriptedLLM{replies: []string{"NOTHING RELEVANT"}}
	h := NewVisitHandler(fetcher, llm, ChatOptions{}, noRetry, nil, nil)
	ec := &ExecContext{
		Candidates:     []URLCandidate{{Index: 0, URL: "https://a.example"}},
		ConcurrencyCap: 1,
	}

	res := h.Execute(context.Background(), visitDecision(0), ec)
	if len(res.Knowledge) != 0 {
		t.Errorf("irrelevant pages should add no knowledge, got %+v", res.Knowledge)
	}
	if len(res.VisitedURLs) != 1 {
		t.Errorf("the URL was still visited, got %v", res.VisitedURLs)
	}
}

func TestReflectHandlerDedupes(t *testing.T) {
	h := NewReflectHandler()
	ec := &ExecContext{
		Question:     Question{Text: "What is the capital of France?"},
		SubQuestions: []string{"How large is Paris?"},
	}
	dec := Decision{Action: ActionReflect, Reflect: &ReflectParams{SubQuestions: []string{
		"what is the capital of france",  // duplicate of the original, modulo case and punctuation
		"How large is Paris?",            // already on the board
		"When did Paris become capital?", // genuinely new
		"when did paris become capital",  // duplicate within the batch
	}}}

	res := h.Execute(context.Background(), dec, ec)
	if !res.Success {
		t.Fatalf("Execute failed: %v", res.Error)
	}
	if want := []string{"When did Paris become capital?"}; !reflect.DeepEqual(res.SubQuestions, want) {
		t.Errorf("SubQuestions = %v, want %v", res.SubQuestions, want)
	}
}

func TestAnswerHandler(t *testing.T) {
	question := Question{Text: "q"}
	params := &AnswerParams{Text: "an answer", References: []string{"https://a.example"}}

	t.Run("forced answers bypass the evaluator", func(t *testing.T) {
		eval := &fakeEvaluator{verdict: EvaluationResult{Pass: false}}
		h := NewAnswerHandler(eval)
		dec := Decision{Action: ActionAnswer, Answer: params, ForcedBy: ForcedByBudget}

		res := h.Execute(context.Background(), dec, &ExecContext{Question: question})
		if !res.Final {
			t.Error("forced answers must terminate")
		}
		if eval.calls != 0 {
			t.Errorf("evaluator consulted %d times for a forced answer", eval.calls)
		}
	})

	t.Run("explicitly final answers bypass the evaluator", func(t *testing.T) {
		eval := &fakeEvaluator{verdict: EvaluationResult{Pass: false}}
		h := NewAnswerHandler(eval)
		final := *params
		final.IsFinal = true
		dec := Decision{Action: ActionAnswer, Answer: &final}

		res := h.Execute(context.Background(), dec, &ExecContext{Question: question})
		if !res.Final || eval.calls != 0 {
			t.Errorf("final answer should skip evaluation, Final=%v calls=%d", res.Final, eval.calls)
		}
	})

	t.Run("passing verdict terminates", func(t *testing.T) {
		eval := &fakeEvaluator{verdict: EvaluationResult{Pass: true, Think: "good"}}
		h := NewAnswerHandler(eval)
		dec := Decision{Action: ActionAnswer, Answer: params}

		res := h.Execute(context.Background(), dec, &ExecContext{Question: question})
		if !res.Final {
			t.Error("a passing answer must terminate")
		}
		if res.Evaluation == nil || !res.Evaluation.Pass {
			t.Errorf("Evaluation = %+v, want the passing verdict recorded", res.Evaluation)
		}
	})

	t.Run("failing verdict continues the loop", func(t *testing.T) {
		eval := &fakeEvaluator{verdict: EvaluationResult{Pass: false, Think: "completeness: missing details"}}
		h := NewAnswerHandler(eval)
		dec := Decision{Action: ActionAnswer, Answer: params}

		res := h.Execute(context.Background(), dec, &ExecContext{Question: question})
		if res.Final {
			t.Error("a rejected answer must not terminate")
		}
		if res.Evaluation == nil || res.Evaluation.Pass {
			t.Errorf("Evaluation = %+v, want the failing verdict recorded", res.Evaluation)
		}
	})
}

func TestCodingHandler(t *testing.T) {
	dec := Decision{Action: ActionCoding, Coding: &CodingParams{Description: "sum 1..10", Code: "print(sum(range(11)))"}}

	t.Run("output becomes knowledge", func(t *testing.T) {
		h := NewCodingHandler(&fakeRunner{output: "55\n"})
		res := h.Execute(context.Background(), dec, &ExecContext{})
		if !res.Success {
			t.Fatalf("Execute failed: %v", res.Error)
		}
		if len(res.Knowledge) != 1 {
			t.Fatalf("Knowledge = %+v, want one item", res.Knowledge)
		}
		if res.Knowledge[0].SourceID != "computation" {
			t.Errorf("SourceID = %q, want computation", res.Knowledge[0].SourceID)
		}
		if !strings.Contains(res.Knowledge[0].Summary, "55") {
			t.Errorf("Summary = %q, want it to carry the result", res.Knowledge[0].Summary)
		}
	})

	t.Run("execution failure fails the step only", func(t *testing.T) {
		h := NewCodingHandler(&fakeRunner{err: errors.New("exit code 1")})
		res := h.Execute(context.Background(), dec, &ExecContext{})
		if res.Success || res.Error == nil {
			t.Errorf("failed run should report a failed step, got %+v", res)
		}
	})

	t.Run("no runner configured", func(t *testing.T) {
		h := NewCodingHandler(nil)
		res := h.Execute(context.Background(), dec, &ExecContext{})
		if res.Success || res.Error == nil {
			t.Errorf("missing runner should report a failed step, got %+v", res)
		}
	})
}

func TestHandlerRegistryUnknownAction(t *testing.T) {
	reg := NewHandlerRegistry()
	res := reg.Execute(context.Background(), Decision{Action: ActionType("teleport")}, &ExecContext{})
	if res.Error == nil {
		t.Error("unregistered action should report an error")
	}
}
