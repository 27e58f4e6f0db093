package engine

// StagnationConfig holds the windows for the stagnation heuristics.
// The detectors are heuristics, not proofs; a false positive only forces
// an earlier answer, never a wrong one.
type StagnationConfig struct {
	// LoopWindow is how many trailing records must be identical in
	// (type, params) before the run counts as stuck in a loop.
	LoopWindow int
	// ProgressWindow is how many trailing steps without knowledge growth
	// count as no progress.
	ProgressWindow int
}

// DefaultStagnationConfig returns the default detection windows.
func DefaultStagnationConfig() StagnationConfig {
	return StagnationConfig{LoopWindow: 3, ProgressWindow: 3}
}

// Pattern is the stagnation detector's verdict.
type Pattern struct {
	StuckInLoop bool
	NoProgress  bool
}

// History stores the ordered diary of past actions and per-step knowledge
// sizes, and detects stagnation patterns over them. Append-only within a
// run.
type History struct {
	cfg     StagnationConfig
	records []ActionRecord
	// knowledge store size observed after each completed step
	sizes []int
}

// NewHistory creates a tracker with the given stagnation windows; zero
// windows fall back to the defaults.
func NewHistory(cfg StagnationConfig) *History {
	def := DefaultStagnationConfig()
	if cfg.LoopWindow <= 0 {
		cfg.LoopWindow = def.LoopWindow
	}
	if cfg.ProgressWindow <= 0 {
		cfg.ProgressWindow = def.ProgressWindow
	}
	return &History{cfg: cfg}
}

// Record appends one action record. Records must arrive in strict step
// order; the tracker does not reorder.
func (h *History) Record(r ActionRecord) {
	h.records = append(h.records, r)
}

// NoteKnowledgeSize records the knowledge store's size after a step.
func (h *History) NoteKnowledgeSize(n int) {
	h.sizes = append(h.sizes, n)
}

// Len returns the number of recorded actions.
func (h *History) Len() int { return len(h.records) }

// Diary returns up to max human-readable entries, oldest first among the
// most recent max records.
func (h *History) Diary(max int) []string {
	start := 0
	if max > 0 && len(h.records) > max {
		start = len(h.records) - max
	}
	out := make([]string, 0, len(h.records)-start)
	for _, r := range h.records[start:] {
		out = append(out, r.Line())
	}
	return out
}

// Records returns a copy of the full record log.
func (h *History) Records() []ActionRecord {
	return append([]ActionRecord(nil), h.records...)
}

// DetectPattern inspects the trailing window of the diary and knowledge
// growth for stagnation.
func (h *History) DetectPattern() Pattern {
	return Pattern{
		StuckInLoop: h.stuckInLoop(),
		NoProgress:  h.noProgress(),
	}
}

func (h *History) stuckInLoop() bool {
	n := h.cfg.LoopWindow
	if len(h.records) < n {
		return false
	}
	tail := h.records[len(h.records)-n:]
	first := tail[0]
	for _, r := range tail[1:] {
		if r.Type != first.Type || r.Params != first.Params {
			return false
		}
	}
	return true
}

func (h *History) noProgress() bool {
	m := h.cfg.ProgressWindow
	// Need m+1 observations to cover m steps of (non-)growth.
	if len(h.sizes) < m+1 {
		return false
	}
	tail := h.sizes[len(h.sizes)-m-1:]
	return tail[len(tail)-1] <= tail[0]
}
