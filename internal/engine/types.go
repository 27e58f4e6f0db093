package engine

import (
	"context"
	"fmt"
	"strings"
)

// ActionType identifies one of the research actions the loop can dispatch.
type ActionType string

const (
	ActionSearch  ActionType = "search"
	ActionVisit   ActionType = "visit"
	ActionReflect ActionType = "reflect"
	ActionAnswer  ActionType = "answer"
	ActionCoding  ActionType = "coding"
)

// ValidAction reports whether name is one of the five known actions.
func ValidAction(name string) bool {
	switch ActionType(name) {
	case ActionSearch, ActionVisit, ActionReflect, ActionAnswer, ActionCoding:
		return true
	}
	return false
}

// QuestionType is a coarse routing hint derived from the question text.
type QuestionType string

const (
	QuestionFactual       QuestionType = "factual"
	QuestionComparative   QuestionType = "comparative"
	QuestionComputational QuestionType = "computational"
	QuestionOpenEnded     QuestionType = "open_ended"
)

// Question is the immutable input of a run.
type Question struct {
	Text string
	Type QuestionType
}

// ClassifyQuestion derives a routing hint from the question text.
// It is a cheap heuristic; misclassification only nudges the decision
// prompt, it never changes loop semantics.
func ClassifyQuestion(text string) Question {
	lower := strings.ToLower(text)
	q := Question{Text: strings.TrimSpace(text), Type: QuestionOpenEnded}
	switch {
	case strings.Contains(lower, "how many") ||
		strings.Contains(lower, "calculate") ||
		strings.Contains(lower, "compute") ||
		strings.Contains(lower, "sum of"):
		q.Type = QuestionComputational
	case strings.Contains(lower, " vs ") ||
		strings.Contains(lower, "versus") ||
		strings.Contains(lower, "compare") ||
		strings.Contains(lower, "difference between"):
		q.Type = QuestionComparative
	case strings.HasPrefix(lower, "who ") ||
		strings.HasPrefix(lower, "when ") ||
		strings.HasPrefix(lower, "where ") ||
		strings.HasPrefix(lower, "what is ") ||
		strings.HasPrefix(lower, "what was "):
		q.Type = QuestionFactual
	}
	return q
}

// KnowledgeItem is one atomic fact derived from an external source.
// Immutable once created; only action handlers produce them.
type KnowledgeItem struct {
	ID       string `json:"id"`
	SourceID string `json:"source_id"` // URL or computation reference for citation
	Summary  string `json:"summary"`
	Step     int    `json:"step"` // step at which the item was ingested
}

// ActionRecord is one diary entry: what the loop did at a given step.
type ActionRecord struct {
	Step   int
	Type   ActionType
	Think  string
	Params string // normalized params, rendered for diary display
}

// Line renders the record as a single diary line.
func (r ActionRecord) Line() string {
	if r.Params == "" {
		return fmt.Sprintf("step %d: %s", r.Step, r.Type)
	}
	return fmt.Sprintf("step %d: %s %s", r.Step, r.Type, r.Params)
}

// URLCandidate is a URL discovered by search, addressable by its dense
// run-scoped index.
type URLCandidate struct {
	Index   int
	URL     string
	Title   string
	Snippet string
}

// EvaluationResult is the answer evaluator's verdict on a draft answer.
type EvaluationResult struct {
	Pass  bool
	Think string // rationale naming unmet criteria when Pass is false
}

// SearchParams carries normalized parameters for a search action.
type SearchParams struct {
	Queries []string
}

// VisitParams carries normalized parameters for a visit action.
type VisitParams struct {
	Indices []int
}

// ReflectParams carries normalized parameters for a reflect action.
type ReflectParams struct {
	SubQuestions []string
}

// AnswerParams carries normalized parameters for an answer action.
type AnswerParams struct {
	Text       string
	References []string
	IsFinal    bool
}

// CodingParams carries normalized parameters for a coding action.
type CodingParams struct {
	Description string
	Code        string
}

// Decision is the router's choice of next action with normalized params.
// Exactly one of the param fields matching Action is non-nil.
type Decision struct {
	Think  string
	Action ActionType

	Search  *SearchParams
	Visit   *VisitParams
	Reflect *ReflectParams
	Answer  *AnswerParams
	Coding  *CodingParams

	// ForcedBy names the override that produced this decision without
	// consulting the model ("forced_finalization", "budget", "steps",
	// "stagnation"). Empty for model and fallback decisions.
	ForcedBy string
	// Fallback is true when the model reply could not be parsed and the
	// deterministic fallback produced this decision.
	Fallback bool
}

// ParamsLine renders the decision's parameters for the diary.
func (d Decision) ParamsLine() string {
	switch d.Action {
	case ActionSearch:
		if d.Search != nil {
			return fmt.Sprintf("queries=%q", d.Search.Queries)
		}
	case ActionVisit:
		if d.Visit != nil {
			return fmt.Sprintf("indices=%v", d.Visit.Indices)
		}
	case ActionReflect:
		if d.Reflect != nil {
			return fmt.Sprintf("subquestions=%d", len(d.Reflect.SubQuestions))
		}
	case ActionAnswer:
		if d.Answer != nil {
			return fmt.Sprintf("final=%v refs=%d", d.Answer.IsFinal, len(d.Answer.References))
		}
	case ActionCoding:
		if d.Coding != nil {
			return fmt.Sprintf("issue=%q", truncate(d.Coding.Description, 60))
		}
	}
	return ""
}

// MessageRole represents the role of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatMessage is the provider-agnostic message we pass around.
type ChatMessage struct {
	Role    MessageRole
	Content string
}

// Usage holds token accounting returned by providers.
type Usage struct {
	Prompt     int
	Completion int
	Total      int
}

// LLMResponse is a normalized result of one completion call.
type LLMResponse struct {
	Content string
	Usage   Usage
}

// ChatOptions keeps knobs forwarded to the provider SDK.
type ChatOptions struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int
}

// LLMClient abstracts the completion SDK (OpenAI, Anthropic, Gemini, ...).
type LLMClient interface {
	Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (LLMResponse, error)
}

// SearchResult is one hit from a web search provider.
type SearchResult struct {
	URL     string
	Title   string
	Snippet string
}

// SearchProvider issues one web search query.
type SearchProvider interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// Fetcher retrieves the extracted text content of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// CodeRunner executes a code snippet in isolation and returns its textual
// result. Isolation is the runner's responsibility; the engine treats it
// as opaque.
type CodeRunner interface {
	Run(ctx context.Context, description, code string) (string, error)
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
