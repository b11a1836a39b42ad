// Package chat answers free-form questions as the user by grounding a
// language model in retrieved memories.
package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/altailabs/twind/internal/llm"
	"github.com/altailabs/twind/internal/memory"
)

const systemPrompt = "You are an assistant that impersonates a specific user based on their memories. " +
	"Use the provided memories to answer in the user's voice, adopting the user's tone and preferred words. " +
	"When using memories, cite them if helpful. Do not invent private facts."

// emptyContextPlaceholder stands in when retrieval finds nothing; chat never
// blocks on empty memory.
const emptyContextPlaceholder = "(no relevant memories found)"

// Generator runs a prompt through the model fallback protocol.
type Generator interface {
	Generate(ctx context.Context, prompt llm.Prompt) (string, error)
}

// Answer is a chat response with its retrieval provenance.
type Answer struct {
	// Response is the raw model text.
	Response string `json:"response"`

	// Sources are the retrieved memories the answer was grounded in.
	Sources []memory.QueryResult `json:"sources"`
}

// Orchestrator runs the retrieval-then-generation pipeline for one question.
// Within a request the stages are strictly sequential: retrieval, then
// prompt construction, then generation.
type Orchestrator struct {
	memories  memory.Store
	generator Generator
	logger    *zap.Logger
}

// New creates an Orchestrator.
func New(memories memory.Store, generator Generator, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		memories:  memories,
		generator: generator,
		logger:    logger,
	}
}

// Ask answers a question as the user, grounded in their top-K memories.
func (o *Orchestrator) Ask(ctx context.Context, userID int64, question string, topK int) (*Answer, error) {
	results, err := o.memories.QueryMemories(ctx, userID, question, topK)
	if err != nil {
		return nil, fmt.Errorf("querying memories: %w", err)
	}

	o.logger.Debug("retrieved memories for chat",
		zap.Int64("user_id", userID),
		zap.Int("count", len(results)),
	)

	contextBlock := buildContext(results)
	user := fmt.Sprintf(
		"User identity id: %d\nRelevant memories:\n%s\n\nQuestion: %s\n\nAnswer as the user, in 1-3 short paragraphs.",
		userID, contextBlock, question,
	)

	response, err := o.generator.Generate(ctx, llm.Prompt{System: systemPrompt, User: user})
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	if results == nil {
		results = []memory.QueryResult{}
	}
	return &Answer{Response: response, Sources: results}, nil
}

// buildContext concatenates retrieved memories into the prompt context
// block: preview text, facts, preferences, and signals per memory.
func buildContext(results []memory.QueryResult) string {
	if len(results) == 0 {
		return emptyContextPlaceholder
	}

	parts := make([]string, 0, len(results))
	for _, r := range results {
		preview, _ := r.Payload[memory.PayloadContentPreview].(string)
		if preview == "" {
			preview, _ = r.Payload["transcript"].(string)
		}
		parts = append(parts, fmt.Sprintf(
			"- Preview: %s\n  Facts: %s\n  Preferences: %s\n  Signals: %s",
			preview,
			formatPayloadValue(r.Payload["facts"]),
			formatPayloadValue(r.Payload["preferences"]),
			formatPayloadValue(r.Payload["signals"]),
		))
	}
	return strings.Join(parts, "\n\n")
}

func formatPayloadValue(v any) string {
	if v == nil {
		return "[]"
	}
	return fmt.Sprintf("%v", v)
}
