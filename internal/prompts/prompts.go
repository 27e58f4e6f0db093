// Package prompts builds the model-facing text for the research loop.
// It is a leaf package: plain string inputs, no engine types.
package prompts

import (
	"fmt"
	"strings"
)

// DecisionSystem is the system prompt framing the step decision.
const DecisionSystem = `You are a research agent working through a question step by step.
At each step you pick exactly one action and reply with a single JSON object, nothing else.

Actions:
- search: issue web queries. {"action":"search","think":"...","searchQueries":["..."]} (max 5 queries)
- visit: read discovered URLs by index. {"action":"visit","think":"...","urlIndices":[0,2]} (max 5 indices)
- reflect: break the question into sub-questions. {"action":"reflect","think":"...","subQuestions":["..."]} (max 5)
- answer: propose an answer. {"action":"answer","think":"...","answer":"...","references":["url","..."],"isFinal":false}
- coding: solve a computation with code. {"action":"coding","think":"...","codingIssue":"...","code":"..."}

Rules:
- Cite only sources listed in the knowledge section.
- Do not repeat a query that already failed.
- Answer only when the gathered knowledge supports it.`

// DecisionInput carries everything rendered into the decision user prompt.
type DecisionInput struct {
	Question        string
	QuestionType    string
	CurrentQuestion string
	Knowledge       []string // rendered "source: summary" lines, most recent first
	Candidates      []string // rendered "[i] title - url" lines, unvisited only
	Diary           []string
	FailedQueries   []string
	OpenQuestions   []string
	LastEvaluation  string
	Step            int
	MaxSteps        int
	BudgetRemaining int
	ForceFinalize   bool
}

// BuildDecision renders the per-step user prompt.
func BuildDecision(in DecisionInput) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Question: %s\n", in.Question)
	if in.QuestionType != "" {
		fmt.Fprintf(&sb, "Question type: %s\n", in.QuestionType)
	}
	if in.CurrentQuestion != "" && in.CurrentQuestion != in.Question {
		fmt.Fprintf(&sb, "Current focus: %s\n", in.CurrentQuestion)
	}
	fmt.Fprintf(&sb, "Step %d of %d. Budget remaining: %d tokens.\n", in.Step, in.MaxSteps, in.BudgetRemaining)

	writeSection(&sb, "Gathered knowledge", in.Knowledge, "none yet")
	writeSection(&sb, "Unvisited URLs (by index)", in.Candidates, "none")
	writeSection(&sb, "Action diary", in.Diary, "empty")
	writeSection(&sb, "Queries that returned nothing (do not repeat)", in.FailedQueries, "")
	writeSection(&sb, "Open sub-questions", in.OpenQuestions, "")

	if in.LastEvaluation != "" {
		fmt.Fprintf(&sb, "\nYour previous answer was rejected: %s\n", in.LastEvaluation)
	}
	if in.ForceFinalize {
		sb.WriteString("\nYou are out of room to explore. You must answer now with what you have, action \"answer\" with isFinal true.\n")
	} else {
		sb.WriteString("\nPick the single best next action and reply with one JSON object.\n")
	}
	return sb.String()
}

// EvaluationSystem frames the answer quality check.
const EvaluationSystem = `You are a strict evaluator of research answers.
Judge the draft answer against five criteria:
1. freshness: not stale for a time-sensitive question
2. plurality: covers the multiple items the question asks for
3. completeness: addresses every part of the question
4. attribution: every claim traceable to a cited source
5. definitive: commits to an answer, no hedging or refusal

Reply with a single JSON object: {"pass":true|false,"think":"which criteria failed and why"}.`

// BuildEvaluation renders the evaluator's user prompt.
func BuildEvaluation(question, answer string, references []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\nDraft answer:\n%s\n", question, answer)
	writeSection(&sb, "Cited sources", references, "none")
	sb.WriteString("\nDoes this answer pass all five criteria? Reply with the JSON verdict only.\n")
	return sb.String()
}

// BuildSummarize renders the prompt used to condense fetched page content
// into knowledge summaries relevant to the question.
func BuildSummarize(question, url, content string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question being researched: %s\n\n", question)
	fmt.Fprintf(&sb, "Content of %s:\n%s\n\n", url, content)
	sb.WriteString("Summarize, in at most five sentences, only the facts from this page relevant to the question. If nothing is relevant, reply exactly: NOTHING RELEVANT.\n")
	return sb.String()
}

// DirectProbeSystem frames the pre-research triviality check.
const DirectProbeSystem = `You decide whether a question can be answered correctly from general knowledge alone, without any web research.
Reply with a single JSON object:
- trivially answerable: {"direct":true,"answer":"the full answer"}
- needs research (current events, niche facts, anything you are not certain of): {"direct":false}`

// BuildDirectProbe renders the triviality check for one question.
func BuildDirectProbe(question string) string {
	return fmt.Sprintf("Question: %s\n\nCan this be answered directly with full confidence? Reply with the JSON object only.\n", question)
}

func writeSection(sb *strings.Builder, title string, lines []string, empty string) {
	if len(lines) == 0 {
		if empty != "" {
			fmt.Fprintf(sb, "\n%s: %s\n", title, empty)
		}
		return
	}
	fmt.Fprintf(sb, "\n%s:\n", title)
	for _, l := range lines {
		sb.WriteString("- ")
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
}
