package engine

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ChamsBouzaiene/ibis/internal/prompts"
)

// Agent drives the research loop: decide, act, ingest, repeat, until an
// answer terminates the run or the limits force one. Construction wires
// the collaborators; Run is safe to call repeatedly but not concurrently
// on the same Agent.
type Agent struct {
	deps  Deps
	cfg   RunConfig
	hooks Hooks
}

func NewAgent(deps Deps, cfg RunConfig, hooks ...Hook) (*Agent, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Agent{deps: deps, cfg: cfg, hooks: Hooks(hooks)}, nil
}

// Run researches the question until it terminates. Termination is
// guaranteed: the step cap override forces an answer at the latest step,
// and every path through a step either terminates or advances the step
// counter.
func (a *Agent) Run(ctx context.Context, question string) (Result, error) {
	if strings.TrimSpace(question) == "" {
		return Result{}, &ValidationError{Field: "question", Reason: "must not be empty"}
	}

	q := ClassifyQuestion(question)
	budget := NewTokenBudget(a.cfg.TokenBudget)

	if a.cfg.DirectAnswerProbe && !budget.Exceeded() {
		if answer, ok := a.probeDirectAnswer(ctx, q, budget); ok {
			result := Result{
				Answer:      answer,
				Status:      StatusAnswered,
				Termination: TerminationDirect,
				Usage:       budget.Totals(),
			}
			a.hooks.OnRunTerminated(ctx, result)
			return result, nil
		}
	}

	store, err := NewKnowledgeStore()
	if err != nil {
		return Result{}, err
	}
	defer store.Close()

	history := NewHistory(a.cfg.Stagnation)
	state := newRunState(q)
	router := NewRouter(a.deps.LLM, budget, a.cfg.Retry.LLMPolicy, a.cfg.Decision, a.hooks)
	registry := a.buildRegistry(budget)

	for step := 1; ; step++ {
		if err := ctx.Err(); err != nil {
			result := a.cancelledResult(store, step-1, budget)
			a.hooks.OnRunTerminated(ctx, result)
			return result, err
		}

		a.hooks.OnStepStart(ctx, step)

		dc := a.buildDecisionContext(state, store, history, budget, step)
		dec := router.Decide(ctx, dc, store.All())
		a.hooks.OnDecision(ctx, step, dec)

		history.Record(ActionRecord{Step: step, Type: dec.Action, Think: dec.Think, Params: dec.ParamsLine()})

		ec := &ExecContext{
			Question:       q,
			Candidates:     state.candidates,
			KnownURLs:      state.knownURLs,
			BaseURLIndex:   state.nextCandidateIndex(),
			Knowledge:      store.Recent(promptKnowledgeCap),
			SubQuestions:   state.subQuestions,
			Step:           step,
			Timeout:        a.cfg.StepTimeout,
			ConcurrencyCap: a.cfg.ConcurrencyCap,
		}
		res := registry.Execute(ctx, dec, ec)

		added := store.Merge(res.Knowledge, step)
		state.applyResult(res, added > 0)
		history.NoteKnowledgeSize(store.Size())
		a.hooks.OnActionCompleted(ctx, step, dec, res)

		if res.Final && res.Answer != nil {
			result := a.finalResult(dec, res, store, step, budget)
			a.hooks.OnRunTerminated(ctx, result)
			return result, nil
		}

		// The final permitted step still gets a real decision; only once
		// it has run does the cap end the run.
		if step >= a.cfg.MaxSteps {
			forced := forcedAnswer(store.All(), ForcedBySteps)
			result := Result{
				Answer:         forced.Answer.Text,
				References:     forced.Answer.References,
				KnowledgeItems: store.Size(),
				Steps:          step,
				Termination:    ForcedBySteps,
				Status:         StatusExhausted,
				Usage:          budget.Totals(),
				Knowledge:      store.All(),
			}
			a.hooks.OnRunTerminated(ctx, result)
			return result, nil
		}
	}
}

func (a *Agent) buildRegistry(budget *TokenBudget) *HandlerRegistry {
	evaluator := NewLLMEvaluator(a.deps.LLM, budget, a.cfg.Retry.LLMPolicy, a.cfg.Evaluation, a.hooks)

	registry := NewHandlerRegistry()
	registry.Register(ActionSearch, NewSearchHandler(a.deps.Search, a.cfg.Retry.CollaboratorPolicy, a.hooks))
	registry.Register(ActionVisit, NewVisitHandler(a.deps.Fetcher, a.deps.LLM, a.cfg.Summary, a.cfg.Retry.CollaboratorPolicy, budget, a.hooks))
	registry.Register(ActionReflect, NewReflectHandler())
	registry.Register(ActionAnswer, NewAnswerHandler(evaluator))
	registry.Register(ActionCoding, NewCodingHandler(a.deps.Runner))
	return registry
}

func (a *Agent) buildDecisionContext(state *runState, store *KnowledgeStore, history *History, budget *TokenBudget, step int) *DecisionContext {
	return &DecisionContext{
		Question:        state.question,
		CurrentQuestion: state.currentQuestion(),
		Knowledge:       store.Recent(promptKnowledgeCap),
		KnowledgeSize:   store.Size(),
		Candidates:      state.candidates,
		Visited:         state.visited,
		Diary:           history.Diary(promptDiaryCap),
		FailedQueries:   state.failedQueries,
		SubQuestions:    state.subQuestions,
		Answered:        state.answered,
		LastEvaluation:  state.lastEvaluation,
		Step:            step,
		MaxSteps:        a.cfg.MaxSteps,
		BudgetRemaining: budget.Remaining(),
		BudgetRatio:     budget.UsageRatio(),
		Stagnation:      history.DetectPattern(),
		ForceFinalize: a.cfg.ForcedFinalization ||
			(a.cfg.MaxRejectedAnswers > 0 && state.rejectedAnswers >= a.cfg.MaxRejectedAnswers),
	}
}

func (a *Agent) finalResult(dec Decision, res HandlerResult, store *KnowledgeStore, step int, budget *TokenBudget) Result {
	result := Result{
		Answer:         res.Answer.Text,
		References:     res.Answer.References,
		KnowledgeItems: store.Size(),
		Steps:          step,
		Usage:          budget.Totals(),
		Knowledge:      store.All(),
	}
	switch {
	case dec.ForcedBy != "":
		result.Termination = dec.ForcedBy
		result.Status = StatusExhausted
	case dec.Fallback:
		result.Termination = TerminationFallback
		result.Status = StatusExhausted
	case res.Evaluation != nil:
		result.Termination = TerminationEvaluated
		result.Status = StatusAnswered
	default:
		result.Termination = TerminationFinal
		result.Status = StatusAnswered
	}
	return result
}

func (a *Agent) cancelledResult(store *KnowledgeStore, steps int, budget *TokenBudget) Result {
	return Result{
		KnowledgeItems: store.Size(),
		Steps:          steps,
		Termination:    TerminationCancelled,
		Status:         StatusCancelled,
		Usage:          budget.Totals(),
		Knowledge:      store.All(),
	}
}

type rawDirectProbe struct {
	Direct bool   `json:"direct"`
	Answer string `json:"answer"`
}

// probeDirectAnswer asks the model once whether the question is trivial.
// Any failure means "not trivial": the loop does the work instead.
func (a *Agent) probeDirectAnswer(ctx context.Context, q Question, budget *TokenBudget) (string, bool) {
	messages := []ChatMessage{
		{Role: RoleSystem, Content: prompts.DirectProbeSystem},
		{Role: RoleUser, Content: prompts.BuildDirectProbe(q.Text)},
	}
	resp, err := a.deps.LLM.Chat(ctx, messages, a.cfg.Decision)
	budget.Track(resp.Usage.Prompt, resp.Usage.Completion)
	if err != nil {
		return "", false
	}

	block, err := extractJSON(resp.Content)
	if err != nil {
		return "", false
	}
	var probe rawDirectProbe
	if err := json.Unmarshal([]byte(block), &probe); err != nil {
		return "", false
	}
	if !probe.Direct || strings.TrimSpace(probe.Answer) == "" {
		return "", false
	}
	return strings.TrimSpace(probe.Answer), true
}
