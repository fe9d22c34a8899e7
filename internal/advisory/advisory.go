// Package advisory implements the mapping advisory: an optional,
// non-authoritative OpenAI-backed hint attached to a resolved
// ColumnMapping for a human reviewer. It never feeds back into a
// mapping's Method or Confidence and no stage consults it.
package advisory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/yourorg/csv-ingest/internal/model"
)

const systemPrompt = `You are a data engineer reviewing an automated CSV column mapping decision. ` +
	`Given one source column's mapping to a target schema column, write a single short sentence ` +
	`(under 25 words) noting anything a human reviewer should double check, or confirming the mapping ` +
	`looks correct. Never suggest a different target column; only comment on the one given.`

// Advisor calls the OpenAI Chat Completions API to produce a short review
// note for a single column mapping. A zero-value Advisor with no APIKey
// is never constructed; callers check config.AIEnabled first.
type Advisor struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

func New(apiKey, model string, timeout time.Duration) *Advisor {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Advisor{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		timeout: timeout,
	}
}

// Advise satisfies orchestrator.Advisor. A low-confidence or unmapped
// column is the common case worth spending a call on; callers may skip
// high-confidence exact matches to save tokens.
func (a *Advisor) Advise(ctx context.Context, m *model.ColumnMapping) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.Chat.Completions.New(reqCtx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(describeMapping(m)),
		},
		MaxCompletionTokens: openai.Int(int64(60)),
	})
	if err != nil {
		return "", fmt.Errorf("advisory: openai call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("advisory: no choices returned")
	}

	note := strings.TrimSpace(resp.Choices[0].Message.Content)
	return note, nil
}

func describeMapping(m *model.ColumnMapping) string {
	target := "(unmapped)"
	if m.TargetColumn != nil {
		target = *m.TargetColumn
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Source column: %q\nMapped target: %q\nMethod: %s\nConfidence: %.2f\n",
		m.SourceColumn, target, m.Method, m.Confidence)
	if len(m.AlternativeMappings) > 0 {
		sb.WriteString("Alternative candidates considered: ")
		for i, alt := range m.AlternativeMappings {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s (%.2f)", alt.TargetColumn, alt.Confidence)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
