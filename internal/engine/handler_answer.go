package engine

import (
	"context"
)

// AnswerHandler decides whether a proposed answer ends the run. Forced
// and explicitly final answers terminate without evaluation; everything
// else must pass the evaluator first.
type AnswerHandler struct {
	evaluator Evaluator
}

func NewAnswerHandler(evaluator Evaluator) *AnswerHandler {
	return &AnswerHandler{evaluator: evaluator}
}

func (h *AnswerHandler) Execute(ctx context.Context, dec Decision, ec *ExecContext) HandlerResult {
	res := HandlerResult{Success: true}
	if dec.Answer == nil {
		return res
	}
	res.Answer = dec.Answer

	if dec.ForcedBy != "" || dec.Answer.IsFinal {
		res.Final = true
		return res
	}
	if h.evaluator == nil {
		res.Final = true
		return res
	}

	verdict := h.evaluator.Evaluate(ctx, ec.Question.Text, dec.Answer.Text, dec.Answer.References)
	res.Evaluation = &verdict
	res.Final = verdict.Pass
	return res
}
