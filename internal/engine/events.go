package engine

import (
	"context"
	"time"
)

// Event is one progress event emitted at a step boundary.
type Event struct {
	Kind string // "step_started", "action_decided", "action_completed", "run_terminated", "fallback", "retry_attempt", "retry_exhausted"
	Data any
}

// ChannelHook bridges engine callbacks to an events channel for external
// observers (CLI progress display, tests). Sends drop when the channel
// is full so a slow consumer can never stall the loop.
type ChannelHook struct{ Ch chan<- Event }

func (h ChannelHook) send(e Event) {
	select {
	case h.Ch <- e:
	default:
	}
}

func (h ChannelHook) OnStepStart(_ context.Context, step int) {
	h.send(Event{Kind: "step_started", Data: step})
}
func (h ChannelHook) OnDecision(_ context.Context, step int, dec Decision) {
	h.send(Event{Kind: "action_decided", Data: map[string]any{
		"step":   step,
		"action": string(dec.Action),
		"forced": dec.ForcedBy,
	}})
}
func (h ChannelHook) OnActionCompleted(_ context.Context, step int, dec Decision, res HandlerResult) {
	h.send(Event{Kind: "action_completed", Data: map[string]any{
		"step":      step,
		"action":    string(dec.Action),
		"success":   res.Success,
		"knowledge": len(res.Knowledge),
	}})
}
func (h ChannelHook) OnRunTerminated(_ context.Context, result Result) {
	h.send(Event{Kind: "run_terminated", Data: result})
}
func (h ChannelHook) OnFallback(_ context.Context, step int, reason string) {
	h.send(Event{Kind: "fallback", Data: map[string]any{"step": step, "reason": reason}})
}
func (h ChannelHook) OnRetryAttempt(_ context.Context, attempt int, delay time.Duration, err error) {
	h.send(Event{Kind: "retry_attempt", Data: map[string]any{
		"attempt": attempt,
		"delay":   delay,
		"error":   err.Error(),
	}})
}
func (h ChannelHook) OnRetryExhausted(_ context.Context, err error) {
	h.send(Event{Kind: "retry_exhausted", Data: err.Error()})
}
