package context

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robusta-dev/holmes/internal/tokens"
	"github.com/robusta-dev/holmes/pkg/models"
)

// CompactedMetadataKey marks the summary message of a compacted history.
const CompactedMetadataKey = "holmes_compacted"

// continuationNote tells the model the gap in its history is deliberate.
const continuationNote = "Conversation history has been compacted to fit the context window. Continue the investigation from the summary above."

// SummaryFunc produces a summary for a compaction prompt. The loop
// adapts its LLM provider into this; tests inject fakes.
type SummaryFunc func(ctx context.Context, prompt string) (string, error)

// Compactor replaces a long history with an LLM-generated summary.
type Compactor struct {
	summarize SummaryFunc
	acct      *tokens.Accountant
	logger    *slog.Logger
}

// NewCompactor creates a compactor using the given summary function.
func NewCompactor(summarize SummaryFunc, acct *tokens.Accountant, logger *slog.Logger) *Compactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compactor{summarize: summarize, acct: acct, logger: logger}
}

// IsCompacted reports whether the history is still in the shape a
// Compact call produced: the summary message followed only by the
// continuation note. Once new turns are appended after the note the
// history is no longer compact and may be summarized again, old
// summary included.
func IsCompacted(msgs []*models.Message) bool {
	marker := -1
	for i, m := range msgs {
		if m == nil || m.Metadata == nil {
			continue
		}
		if v, ok := m.Metadata[CompactedMetadataKey].(bool); ok && v {
			marker = i
		}
	}
	return marker >= 0 && marker == len(msgs)-2
}

// Compact returns a reduced history:
//
//	[system (verbatim), assistant (summary), system (continuation note)]
//
// The system message is stripped before summarization and retained
// unchanged. Compacting a history still in this minimal shape is a
// no-op; one that has grown new turns since its last compaction is
// summarized again, previous summary and note included. A
// compaction that would grow the history returns the original instead;
// the result never has more tokens than the input. A summarization
// error also returns the original history, with the error surfaced so
// the caller can log a warning.
func (c *Compactor) Compact(ctx context.Context, msgs []*models.Message) ([]*models.Message, error) {
	if len(msgs) == 0 || IsCompacted(msgs) {
		return msgs, nil
	}

	var system *models.Message
	rest := msgs
	if msgs[0] != nil && msgs[0].Role == models.RoleSystem {
		system = msgs[0]
		rest = msgs[1:]
	}
	if len(rest) == 0 {
		return msgs, nil
	}

	summary, err := c.summarize(ctx, BuildCompactionPrompt(rest))
	if err != nil {
		return msgs, fmt.Errorf("compaction failed: %w", err)
	}

	now := time.Now()
	compacted := make([]*models.Message, 0, 3)
	if system != nil {
		compacted = append(compacted, system)
	}
	compacted = append(compacted,
		&models.Message{
			Role:      models.RoleAssistant,
			Content:   summary,
			Metadata:  map[string]any{CompactedMetadataKey: true},
			CreatedAt: now,
		},
		&models.Message{
			Role:      models.RoleSystem,
			Content:   continuationNote,
			CreatedAt: now,
		},
	)

	before := c.acct.CountMessages(msgs).Total
	after := c.acct.CountMessages(compacted).Total
	if after >= before {
		c.logger.Warn("compaction did not shrink history, keeping original",
			"before_tokens", before,
			"after_tokens", after,
		)
		return msgs, nil
	}

	c.logger.Info("history compacted",
		"before_tokens", before,
		"after_tokens", after,
		"messages_summarized", len(rest),
	)
	return compacted, nil
}

// BuildCompactionPrompt renders the fixed compaction prompt over the
// messages being summarized.
func BuildCompactionPrompt(msgs []*models.Message) string {
	var sb strings.Builder
	sb.WriteString("Summarize the investigation so far for your own future reference. Cover:\n")
	sb.WriteString("- What was asked and what has been done\n")
	sb.WriteString("- Which tools were run and what they revealed (keep exact resource names, namespaces, error strings)\n")
	sb.WriteString("- Working hypotheses and what remains to be checked\n\n")
	sb.WriteString("Conversation:\n\n")

	for _, m := range msgs {
		if m == nil {
			continue
		}
		sb.WriteString("[")
		sb.WriteString(string(m.Role))
		sb.WriteString("]: ")
		if m.Content != "" {
			sb.WriteString(m.Content)
		}
		for _, tc := range m.ToolCalls {
			fmt.Fprintf(&sb, "\n  [called tool: %s %s]", tc.Name, tc.Arguments)
		}
		sb.WriteString("\n\n")
	}

	sb.WriteString("---\nProvide the summary:")
	return sb.String()
}
