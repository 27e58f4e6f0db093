package engine

import (
	"context"
	"fmt"
	"strings"
)

// codingSourceID is the citation reference for knowledge derived from
// code execution rather than the web.
const codingSourceID = "computation"

// CodingHandler runs the decided snippet through the configured runner
// and folds its output into knowledge. A failed run is a failed step,
// not a failed run: the loop carries on.
type CodingHandler struct {
	runner CodeRunner
}

func NewCodingHandler(runner CodeRunner) *CodingHandler {
	return &CodingHandler{runner: runner}
}

func (h *CodingHandler) Execute(ctx context.Context, dec Decision, ec *ExecContext) HandlerResult {
	res := HandlerResult{Success: true}
	if dec.Coding == nil {
		return res
	}
	if h.runner == nil {
		res.Success = false
		res.Error = fmt.Errorf("no code runner configured")
		return res
	}

	output, err := h.runner.Run(ctx, dec.Coding.Description, dec.Coding.Code)
	if err != nil {
		res.Success = false
		res.Error = err
		return res
	}

	output = strings.TrimSpace(output)
	if output == "" {
		return res
	}
	res.Knowledge = append(res.Knowledge, KnowledgeItem{
		SourceID: codingSourceID,
		Summary:  fmt.Sprintf("%s\nResult: %s", dec.Coding.Description, truncate(output, 2000)),
	})
	return res
}
