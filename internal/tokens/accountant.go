// Package tokens provides deterministic token accounting for conversation
// histories and per-model context limits.
//
// Counts are best-effort: they are stable for a given (model, messages)
// pair and additive at message granularity, but are not guaranteed to
// match the provider's billed count exactly.
package tokens

import (
	"os"
	"strconv"

	"github.com/pkoukk/tiktoken-go"

	"github.com/robusta-dev/holmes/pkg/models"
)

const (
	// perMessageOverhead approximates the framing tokens each message
	// costs on the wire (role markers, separators).
	perMessageOverhead = 4

	// fallbackEncoding is used for models tiktoken does not know.
	fallbackEncoding = "cl100k_base"

	// approxBytesPerToken drives the heuristic counter used when no BPE
	// vocabulary can be loaded. Four bytes per token is the usual rule
	// of thumb for English prose.
	approxBytesPerToken = 4

	// EnvContextWindow and EnvMaxOutput override the model table.
	EnvContextWindow = "HOLMES_CONTEXT_WINDOW"
	EnvMaxOutput     = "HOLMES_MAX_OUTPUT_TOKENS"
)

// Breakdown is a per-role token count for a message list.
type Breakdown struct {
	Total     int
	System    int
	User      int
	Assistant int
	Tool      int
	ToolCall  int
}

// Accountant counts tokens for a single model. Construct once per run;
// environment overrides are read at construction and fixed thereafter.
type Accountant struct {
	model         string
	encoder       *tiktoken.Tiktoken
	limits        ModelLimits
	contextWindow int
	maxOutput     int
}

// NewAccountant creates an accountant for the given model name.
func NewAccountant(model string) *Accountant {
	encoder, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// tiktoken fetches vocabularies on first use. In an air-gapped
		// environment both lookups fail; a nil encoder switches the
		// accountant to the byte heuristic, which keeps the same
		// determinism and additivity guarantees.
		encoder, _ = tiktoken.GetEncoding(fallbackEncoding)
	}

	limits := LimitsFor(model)
	a := &Accountant{
		model:         model,
		encoder:       encoder,
		limits:        limits,
		contextWindow: limits.ContextWindow,
		maxOutput:     limits.MaxOutput,
	}
	if v := envInt(EnvContextWindow); v > 0 {
		a.contextWindow = v
	}
	if v := envInt(EnvMaxOutput); v > 0 {
		a.maxOutput = v
	}
	return a
}

func envInt(key string) int {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// Model returns the model name the accountant was built for.
func (a *Accountant) Model() string { return a.model }

// ContextWindow returns the model's input-token capacity.
func (a *Accountant) ContextWindow() int { return a.contextWindow }

// MaxOutput returns the model's maximum completion length.
func (a *Accountant) MaxOutput() int { return a.maxOutput }

// CountText returns the token count of a string.
func (a *Accountant) CountText(s string) int {
	if s == "" {
		return 0
	}
	if a.encoder == nil {
		return (len(s) + approxBytesPerToken - 1) / approxBytesPerToken
	}
	return len(a.encoder.Encode(s, nil, nil))
}

// CountMessage returns the token count of one message, including framing
// overhead and any tool calls it carries.
func (a *Accountant) CountMessage(m *models.Message) int {
	if m == nil {
		return 0
	}
	n := perMessageOverhead + a.CountText(m.Content)
	for _, tc := range m.ToolCalls {
		n += a.CountText(tc.Name) + a.CountText(string(tc.Arguments))
	}
	if m.ToolName != "" {
		n += a.CountText(m.ToolName)
	}
	return n
}

// CountMessages returns the per-role breakdown for a message list. The
// total is the sum of CountMessage over the list.
func (a *Accountant) CountMessages(msgs []*models.Message) Breakdown {
	var b Breakdown
	for _, m := range msgs {
		if m == nil {
			continue
		}
		n := a.CountMessage(m)
		b.Total += n
		switch m.Role {
		case models.RoleSystem:
			b.System += n
		case models.RoleUser:
			b.User += n
		case models.RoleAssistant:
			b.Assistant += n
			for _, tc := range m.ToolCalls {
				b.ToolCall += a.CountText(tc.Name) + a.CountText(string(tc.Arguments))
			}
		case models.RoleTool:
			b.Tool += n
		}
	}
	return b
}

// Available computes the token budget left for the next turn:
//
//	ContextWindow - CountMessages(msgs) - MaxOutput - safetyMargin
//
// A non-positive return means the history cannot fit another turn.
func (a *Accountant) Available(msgs []*models.Message, safetyMargin int) int {
	return a.contextWindow - a.CountMessages(msgs).Total - a.maxOutput - safetyMargin
}

// Cost returns the dollar cost for the given token usage, or zero when
// pricing for the model is unknown.
func (a *Accountant) Cost(promptTokens, completionTokens int) float64 {
	if a.limits.InputCostPerMTok == 0 && a.limits.OutputCostPerMTok == 0 {
		return 0
	}
	return float64(promptTokens)/1e6*a.limits.InputCostPerMTok +
		float64(completionTokens)/1e6*a.limits.OutputCostPerMTok
}

// TruncateToTokens cuts s at the character boundary nearest the given
// token budget. It returns the kept prefix and the number of characters
// removed. A budget at or above the string's count returns s unchanged.
func (a *Accountant) TruncateToTokens(s string, budget int) (string, int) {
	if budget <= 0 {
		return "", len(s)
	}
	if a.encoder == nil {
		if a.CountText(s) <= budget {
			return s, 0
		}
		kept := s[:min(len(s), budget*approxBytesPerToken)]
		for len(kept) > 0 && !validUTF8Suffix(kept) {
			kept = kept[:len(kept)-1]
		}
		return kept, len(s) - len(kept)
	}
	ids := a.encoder.Encode(s, nil, nil)
	if len(ids) <= budget {
		return s, 0
	}
	kept := a.encoder.Decode(ids[:budget])
	// Decoding a token prefix can split a multi-byte rune; trim any
	// trailing invalid sequence rather than emit garbage.
	for len(kept) > 0 && !validUTF8Suffix(kept) {
		kept = kept[:len(kept)-1]
	}
	return kept, len(s) - len(kept)
}

func validUTF8Suffix(s string) bool {
	// The last rune is valid when the string round-trips through a rune
	// slice without a replacement character at the end.
	r := []rune(s)
	return len(r) == 0 || r[len(r)-1] != '�'
}
