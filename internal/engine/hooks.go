// engine/hooks.go
package engine

import (
	"context"
	"time"
)

// Hook receives loop observability callbacks. One callback fires per
// step boundary; implementations must not block the loop.
type Hook interface {
	OnStepStart(ctx context.Context, step int)
	OnDecision(ctx context.Context, step int, dec Decision)
	OnActionCompleted(ctx context.Context, step int, dec Decision, res HandlerResult)
	OnRunTerminated(ctx context.Context, result Result)
	// Fallback / retry diagnostics
	OnFallback(ctx context.Context, step int, reason string)
	OnRetryAttempt(ctx context.Context, attempt int, delay time.Duration, err error)
	OnRetryExhausted(ctx context.Context, err error)
}

// NopHook lets you implement only the hooks you need.
type NopHook struct{}

func (NopHook) OnStepStart(context.Context, int)                                {}
func (NopHook) OnDecision(context.Context, int, Decision)                       {}
func (NopHook) OnActionCompleted(context.Context, int, Decision, HandlerResult) {}
func (NopHook) OnRunTerminated(context.Context, Result)                         {}
func (NopHook) OnFallback(context.Context, int, string)                         {}
func (NopHook) OnRetryAttempt(context.Context, int, time.Duration, error)       {}
func (NopHook) OnRetryExhausted(context.Context, error)                         {}

// Hooks fans callbacks out to every registered hook.
type Hooks []Hook

func (hs Hooks) OnStepStart(ctx context.Context, step int) {
	for _, h := range hs {
		h.OnStepStart(ctx, step)
	}
}
func (hs Hooks) OnDecision(ctx context.Context, step int, dec Decision) {
	for _, h := range hs {
		h.OnDecision(ctx, step, dec)
	}
}
func (hs Hooks) OnActionCompleted(ctx context.Context, step int, dec Decision, res HandlerResult) {
	for _, h := range hs {
		h.OnActionCompleted(ctx, step, dec, res)
	}
}
func (hs Hooks) OnRunTerminated(ctx context.Context, result Result) {
	for _, h := range hs {
		h.OnRunTerminated(ctx, result)
	}
}
func (hs Hooks) OnFallback(ctx context.Context, step int, reason string) {
	for _, h := range hs {
		h.OnFallback(ctx, step, reason)
	}
}
func (hs Hooks) OnRetryAttempt(ctx context.Context, attempt int, delay time.Duration, err error) {
	for _, h := range hs {
		h.OnRetryAttempt(ctx, attempt, delay, err)
	}
}
func (hs Hooks) OnRetryExhausted(ctx context.Context, err error) {
	for _, h := range hs {
		h.OnRetryExhausted(ctx, err)
	}
}
