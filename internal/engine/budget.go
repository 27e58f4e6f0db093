// Package engine implements the iterative research loop: trackers, the
// action router, action handlers, the answer evaluator, and the
// orchestrator that wires them together.
package engine

import "sync"

// TokenBudget accumulates prompt/completion token usage against a fixed
// budget. A budget of zero means every call is already over budget; a
// negative budget disables the check. Safe for concurrent use: visit
// steps track usage from parallel summarize calls.
type TokenBudget struct {
	budget int

	mu     sync.Mutex
	totals Usage
}

// NewTokenBudget creates a tracker for the given budget.
func NewTokenBudget(budget int) *TokenBudget {
	return &TokenBudget{budget: budget}
}

// Track adds one call's usage to the running totals. Negative inputs are
// clamped to zero.
func (b *TokenBudget) Track(prompt, completion int) {
	if prompt < 0 {
		prompt = 0
	}
	if completion < 0 {
		completion = 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.totals.Prompt += prompt
	b.totals.Completion += completion
	b.totals.Total += prompt + completion
}

// Exceeded reports whether the running total has reached the budget.
func (b *TokenBudget) Exceeded() bool {
	if b.budget < 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totals.Total >= b.budget
}

// Remaining returns the unspent budget, floored at zero.
func (b *TokenBudget) Remaining() int {
	if b.budget < 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if rem := b.budget - b.totals.Total; rem > 0 {
		return rem
	}
	return 0
}

// UsageRatio returns spent/budget clamped to [0,1].
func (b *TokenBudget) UsageRatio() float64 {
	if b.budget <= 0 {
		if b.budget == 0 {
			return 1
		}
		return 0
	}
	b.mu.Lock()
	total := b.totals.Total
	b.mu.Unlock()
	ratio := float64(total) / float64(b.budget)
	if ratio > 1 {
		return 1
	}
	return ratio
}

// Totals returns the accumulated usage.
func (b *TokenBudget) Totals() Usage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totals
}
