package engine

import (
	"fmt"
	"time"
)

// RunConfig holds the per-run knobs. Zero values are filled in by
// DefaultRunConfig; callers tweak what they care about.
type RunConfig struct {
	// MaxSteps caps the number of loop iterations. Reaching it forces a
	// final answer from gathered knowledge.
	MaxSteps int

	// TokenBudget caps total model token usage across all calls of the
	// run. 0 means exhausted from the start; negative disables the cap.
	TokenBudget int

	// StepTimeout bounds each action handler's execution.
	StepTimeout time.Duration

	// ConcurrencyCap bounds parallel fetches inside a visit step.
	ConcurrencyCap int

	// MaxRejectedAnswers forces finalization after this many evaluator
	// rejections. 0 disables the forcing.
	MaxRejectedAnswers int

	// ForcedFinalization makes every decision a forced final answer from
	// whatever knowledge has been gathered, skipping the model consult.
	ForcedFinalization bool

	// DirectAnswerProbe asks the model once, before any research, whether
	// the question is trivial enough to answer outright.
	DirectAnswerProbe bool

	Stagnation StagnationConfig
	Retry      RetryConfig

	// Decision, Evaluation and Summary are the model knobs for the three
	// kinds of calls the loop makes.
	Decision   ChatOptions
	Evaluation ChatOptions
	Summary    ChatOptions
}

// DefaultRunConfig returns the settings used by the CLI.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		MaxSteps:           20,
		TokenBudget:        150_000,
		StepTimeout:        60 * time.Second,
		ConcurrencyCap:     3,
		MaxRejectedAnswers: 2,
		DirectAnswerProbe:  true,
		Stagnation:         DefaultStagnationConfig(),
		Retry:              DefaultRetryConfig(),
		Decision:           ChatOptions{Temperature: 0.1, MaxOutputTokens: 2048},
		Evaluation:         ChatOptions{Temperature: 0, MaxOutputTokens: 512},
		Summary:            ChatOptions{Temperature: 0.1, MaxOutputTokens: 1024},
	}
}

// Validate rejects configs the loop cannot run with.
func (c RunConfig) Validate() error {
	if c.MaxSteps <= 0 {
		return &ValidationError{Field: "MaxSteps", Reason: "must be positive"}
	}
	if c.StepTimeout < 0 {
		return &ValidationError{Field: "StepTimeout", Reason: "must not be negative"}
	}
	if c.ConcurrencyCap < 0 {
		return &ValidationError{Field: "ConcurrencyCap", Reason: "must not be negative"}
	}
	if c.Stagnation.LoopWindow <= 0 || c.Stagnation.ProgressWindow <= 0 {
		return &ValidationError{Field: "Stagnation", Reason: "windows must be positive"}
	}
	return nil
}

// Deps are the external collaborators a run needs. LLM is mandatory;
// the rest degrade gracefully when absent (searches fail the query,
// visits skip, coding steps fail).
type Deps struct {
	LLM     LLMClient
	Search  SearchProvider
	Fetcher Fetcher
	Runner  CodeRunner
}

func (d Deps) validate() error {
	if d.LLM == nil {
		return fmt.Errorf("an LLM client is required")
	}
	return nil
}
