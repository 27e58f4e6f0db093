package engine

import (
	"context"
	"strings"
)

// ReflectHandler registers new sub-questions. It is pure bookkeeping:
// duplicates of the original question or of sub-questions already on the
// board are dropped, and a step that adds nothing new is still a success.
type ReflectHandler struct{}

func NewReflectHandler() *ReflectHandler { return &ReflectHandler{} }

func (h *ReflectHandler) Execute(ctx context.Context, dec Decision, ec *ExecContext) HandlerResult {
	res := HandlerResult{Success: true}
	if dec.Reflect == nil {
		return res
	}

	known := make(map[string]bool, len(ec.SubQuestions)+1)
	known[normalizeQuestion(ec.Question.Text)] = true
	for _, sq := range ec.SubQuestions {
		known[normalizeQuestion(sq)] = true
	}

	for _, sq := range dec.Reflect.SubQuestions {
		key := normalizeQuestion(sq)
		if key == "" || known[key] {
			continue
		}
		known[key] = true
		res.SubQuestions = append(res.SubQuestions, strings.TrimSpace(sq))
	}
	return res
}

func normalizeQuestion(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	return strings.TrimRight(q, "?.! ")
}
