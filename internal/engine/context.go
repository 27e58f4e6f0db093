package engine

// DecisionContext is the read-only, per-decision snapshot the router
// sees. It is rebuilt fresh each step by the orchestrator and never
// aliases live run state, so the loop stays the only mutator.
type DecisionContext struct {
	Question        Question
	CurrentQuestion string // rotates across unanswered sub-questions

	Knowledge     []KnowledgeItem // most-recent-first, capped
	KnowledgeSize int             // total store size, not the capped view

	Candidates []URLCandidate // unvisited URL candidates, capped
	Visited    []string

	Diary         []string // most recent entries, oldest first
	FailedQueries []string // queries that returned nothing

	SubQuestions []string
	Answered     map[string]bool

	LastEvaluation *EvaluationResult

	Step     int
	MaxSteps int

	BudgetRemaining int
	BudgetRatio     float64

	// Stagnation is the pattern detected over the recent action history.
	Stagnation Pattern

	ForceFinalize bool
}

// UnvisitedCandidates filters candidates down to those not yet visited.
func (dc *DecisionContext) UnvisitedCandidates() []URLCandidate {
	visited := make(map[string]bool, len(dc.Visited))
	for _, u := range dc.Visited {
		visited[u] = true
	}
	var out []URLCandidate
	for _, c := range dc.Candidates {
		if !visited[c.URL] {
			out = append(out, c)
		}
	}
	return out
}
