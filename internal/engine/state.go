package engine

// Status is the lifecycle state of a run.
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusRunning   Status = "RUNNING"
	StatusAnswered  Status = "ANSWERED"
	StatusExhausted Status = "EXHAUSTED"
	StatusCancelled Status = "CANCELLED"
)

// Termination reasons reported on Result. Forced runs carry the override
// cause that ended them.
const (
	TerminationEvaluated = "evaluated" // answer passed the quality evaluator
	TerminationFinal     = "final"     // model declared the answer final
	TerminationDirect    = "direct"    // trivial question answered without research
	TerminationFallback  = "fallback"  // deterministic fallback produced the answer
	TerminationCancelled = "cancelled"
)

// Result is what a run hands back to the caller.
type Result struct {
	Answer         string   `json:"answer"`
	References     []string `json:"references"`
	KnowledgeItems int      `json:"knowledge_items"`
	Steps          int      `json:"steps"`
	Termination    string   `json:"termination"`
	Status         Status   `json:"status"`
	Usage          Usage    `json:"usage"`

	// Knowledge carries the gathered items for callers that archive
	// runs; KnowledgeItems is its length.
	Knowledge []KnowledgeItem `json:"-"`
}

// runState is the orchestrator's mutable per-run state. Everything a
// handler needs is copied into ExecContext; handlers never see this.
type runState struct {
	question Question

	candidates []URLCandidate
	knownURLs  map[string]bool
	visited    []string

	subQuestions []string
	answered     map[string]bool
	rotation     int

	failedQueries   []string
	lastEvaluation  *EvaluationResult
	rejectedAnswers int
}

func newRunState(q Question) *runState {
	return &runState{
		question:  q,
		knownURLs: make(map[string]bool),
		answered:  make(map[string]bool),
	}
}

// currentQuestion rotates the focus across unanswered sub-questions so no
// gap starves; with none open, the original question is the focus.
func (s *runState) currentQuestion() string {
	open := s.openSubQuestions()
	if len(open) == 0 {
		return s.question.Text
	}
	return open[s.rotation%len(open)]
}

func (s *runState) openSubQuestions() []string {
	var open []string
	for _, sq := range s.subQuestions {
		if !s.answered[sq] {
			open = append(open, sq)
		}
	}
	return open
}

// applyResult folds a handler's effects into the run state.
func (s *runState) applyResult(res HandlerResult, knowledgeGrew bool) {
	for _, c := range res.DiscoveredURLs {
		if s.knownURLs[c.URL] {
			continue
		}
		s.knownURLs[c.URL] = true
		s.candidates = append(s.candidates, c)
	}
	for _, u := range res.VisitedURLs {
		s.knownURLs[u] = true
		s.visited = append(s.visited, u)
	}
	s.failedQueries = append(s.failedQueries, res.FailedQueries...)
	s.subQuestions = append(s.subQuestions, res.SubQuestions...)

	if res.Evaluation != nil {
		s.lastEvaluation = res.Evaluation
		if !res.Evaluation.Pass {
			s.rejectedAnswers++
		}
	}

	// Advance the focus: a step that grew knowledge retires the focused
	// sub-question, anything else just rotates past it.
	if open := s.openSubQuestions(); len(open) > 0 {
		focused := open[s.rotation%len(open)]
		if knowledgeGrew {
			s.answered[focused] = true
		} else {
			s.rotation++
		}
	}
}

// nextCandidateIndex is the dense index for the next discovered URL.
func (s *runState) nextCandidateIndex() int {
	return len(s.candidates)
}
