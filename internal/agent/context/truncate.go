// Package context manages the conversation's fit inside the model's
// context window. Two reduction strategies apply in order of increasing
// aggressiveness: per-tool-result truncation, then whole-history
// compaction through the LLM.
package context

import (
	"fmt"

	"github.com/robusta-dev/holmes/internal/tokens"
	"github.com/robusta-dev/holmes/pkg/models"
)

const (
	// DefaultSafetyMargin is subtracted from every budget computation so
	// framing drift between our counts and the provider's cannot tip a
	// request over the limit.
	DefaultSafetyMargin = 256

	// MinToolTokens is the floor of the per-tool budget: even under
	// heavy pressure a tool result keeps at least this much.
	MinToolTokens = 512

	// MaxToolTokens is the absolute cap on any single tool result.
	MaxToolTokens = 10_000
)

// TruncationMarker prefixes the suffix appended to shortened tool data.
const TruncationMarker = "…[TRUNCATED: "

// Truncator shrinks oversized tool outputs so the history fits the
// model's context window.
type Truncator struct {
	acct         *tokens.Accountant
	minTool      int
	maxTool      int
	safetyMargin int
}

// NewTruncator creates a truncator for the accountant's model.
// maxToolTokens overrides MaxToolTokens when positive.
func NewTruncator(acct *tokens.Accountant, maxToolTokens int) *Truncator {
	maxTool := MaxToolTokens
	if maxToolTokens > 0 {
		maxTool = maxToolTokens
	}
	minTool := MinToolTokens
	if minTool > maxTool {
		minTool = maxTool
	}
	return &Truncator{
		acct:         acct,
		minTool:      minTool,
		maxTool:      maxTool,
		safetyMargin: DefaultSafetyMargin,
	}
}

// Budget is the input-token allowance for a message list: the context
// window minus the reserved completion length and safety margin.
func (t *Truncator) Budget() int {
	return t.acct.ContextWindow() - t.acct.MaxOutput() - t.safetyMargin
}

// Fits reports whether the history fits the budget as-is.
func (t *Truncator) Fits(msgs []*models.Message) bool {
	return t.acct.CountMessages(msgs).Total <= t.Budget()
}

// Fit truncates tool messages in place so the history fits the budget,
// distributing the overage across tool results: each gets
// max(MinToolTokens, available/count), capped at the per-tool maximum.
// Status and params survive; only the data payload is shortened, with a
// marker suffix so the LLM can recognize incomplete output.
//
// Fit returns whether the history fits afterwards; truncation alone
// cannot always succeed, since non-tool messages are untouchable here.
func (t *Truncator) Fit(msgs []*models.Message) bool {
	budget := t.Budget()
	total := t.acct.CountMessages(msgs).Total
	if total <= budget {
		// Even inside the overall budget, individual results above the
		// absolute cap are still cut.
		t.capOversized(msgs)
		return true
	}

	var toolIdx []int
	toolTokens := 0
	for i, m := range msgs {
		if m != nil && m.Role == models.RoleTool {
			toolIdx = append(toolIdx, i)
			toolTokens += t.acct.CountMessage(m)
		}
	}
	if len(toolIdx) == 0 {
		return false
	}

	availableForTools := budget - (total - toolTokens)
	perTool := availableForTools / len(toolIdx)
	if perTool < t.minTool {
		perTool = t.minTool
	}
	if perTool > t.maxTool {
		perTool = t.maxTool
	}

	for _, i := range toolIdx {
		// The per-tool allowance covers the whole message; framing (role
		// overhead, tool name) comes out of it before the content budget.
		framing := t.acct.CountMessage(msgs[i]) - t.acct.CountText(msgs[i].Content)
		msgs[i].Content = t.TruncateData(msgs[i].Content, perTool-framing)
	}
	return t.acct.CountMessages(msgs).Total <= budget
}

func (t *Truncator) capOversized(msgs []*models.Message) {
	for _, m := range msgs {
		if m != nil && m.Role == models.RoleTool {
			m.Content = t.TruncateData(m.Content, t.maxTool)
		}
	}
}

// TruncateData cuts data at the character boundary nearest the token
// budget and appends "…[TRUNCATED: N more chars]". TruncateData is
// idempotent: output that already fits comes back unchanged.
func (t *Truncator) TruncateData(data string, budget int) string {
	if budget <= 0 {
		budget = t.minTool
	}
	if t.acct.CountText(data) <= budget {
		return data
	}

	// Reserve room for the marker inside the budget so a second pass
	// sees a fitting payload and leaves it alone.
	markerReserve := t.acct.CountText(TruncationMarker + "123456789 more chars]")
	keepBudget := budget - markerReserve
	if keepBudget < 1 {
		keepBudget = 1
	}
	kept, removed := t.acct.TruncateToTokens(data, keepBudget)
	return fmt.Sprintf("%s%s%d more chars]", kept, TruncationMarker, removed)
}
