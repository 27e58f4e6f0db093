package engine

import (
	"context"
	"fmt"
	"time"
)

// ExecContext is the read-only slice of run state a handler may consult.
// Handlers never mutate run state; they report effects through
// HandlerResult and the orchestrator applies them.
type ExecContext struct {
	Question Question

	// Candidates holds every URL discovered so far, indexed densely.
	Candidates []URLCandidate
	// KnownURLs contains every URL already discovered or visited, for
	// duplicate suppression when search turns up the same page again.
	KnownURLs map[string]bool
	// BaseURLIndex is the next free candidate index.
	BaseURLIndex int

	// Knowledge is a snapshot of the store, most recent first.
	Knowledge []KnowledgeItem

	// SubQuestions are the open sub-questions already on the board.
	SubQuestions []string

	Step           int
	Timeout        time.Duration
	ConcurrencyCap int
}

// HandlerResult carries everything a handler produced. The orchestrator
// merges Knowledge into the store, appends DiscoveredURLs to the
// candidate list, and records VisitedURLs and FailedQueries.
type HandlerResult struct {
	Success bool
	Error   error

	Knowledge      []KnowledgeItem
	DiscoveredURLs []URLCandidate
	VisitedURLs    []string
	FailedQueries  []string
	SubQuestions   []string

	// Answer and Evaluation are set by the answer handler only.
	Answer     *AnswerParams
	Evaluation *EvaluationResult
	// Final signals the run should terminate with Answer.
	Final bool
}

// ActionHandler executes one decided action.
type ActionHandler interface {
	Execute(ctx context.Context, dec Decision, ec *ExecContext) HandlerResult
}

// HandlerRegistry maps action types to their handlers.
type HandlerRegistry struct {
	handlers map[ActionType]ActionHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[ActionType]ActionHandler)}
}

func (r *HandlerRegistry) Register(t ActionType, h ActionHandler) {
	r.handlers[t] = h
}

// Execute dispatches dec to its handler under the step timeout.
func (r *HandlerRegistry) Execute(ctx context.Context, dec Decision, ec *ExecContext) HandlerResult {
	h, ok := r.handlers[dec.Action]
	if !ok {
		return HandlerResult{Error: fmt.Errorf("no handler registered for action %q", dec.Action)}
	}
	if ec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ec.Timeout)
		defer cancel()
	}
	return h.Execute(ctx, dec, ec)
}
