package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultFallbackModel is tried when no fallback list is configured.
const DefaultFallbackModel = "gemini-mini"

// defaultBackoff is the fixed wait before each fallback attempt.
const defaultBackoff = time.Second

// Generator runs prompts against a primary model with ordered fallback.
//
// On a quota-class failure of the primary model, each fallback model is given
// exactly one attempt, sequentially, with a fixed backoff before each. The
// first success wins. Non-quota failures, and quota failures that exhaust
// every fallback, propagate the original error unchanged.
type Generator struct {
	client    Client
	primary   string
	fallbacks []string
	backoff   time.Duration
	logger    *zap.Logger
}

// NewGenerator creates a Generator.
//
// fallbacks is the ordered fallback model list; when empty, a single built-in
// default model is used. A nil logger is replaced with a no-op logger.
func NewGenerator(client Client, primary string, fallbacks []string, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(fallbacks) == 0 {
		fallbacks = []string{DefaultFallbackModel}
	}
	return &Generator{
		client:    client,
		primary:   primary,
		fallbacks: fallbacks,
		backoff:   defaultBackoff,
		logger:    logger,
	}
}

// Generate invokes the primary model, applying the fallback protocol on
// quota-class failures.
func (g *Generator) Generate(ctx context.Context, prompt Prompt) (string, error) {
	text, primaryErr := g.client.GenerateText(ctx, g.primary, prompt)
	if primaryErr == nil {
		return text, nil
	}

	kind := Classify(primaryErr)
	if kind != KindQuota {
		return "", primaryErr
	}

	g.logger.Warn("primary model quota exhausted, trying fallbacks",
		zap.String("primary", g.primary),
		zap.Strings("fallbacks", g.fallbacks),
	)

	for _, model := range g.fallbacks {
		// Fixed backoff before each attempt to avoid immediate throttling.
		// The wait is cooperative: it never blocks other requests.
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("fallback canceled: %w", ctx.Err())
		case <-time.After(g.backoff):
		}

		text, err := g.client.GenerateText(ctx, model, prompt)
		if err == nil {
			g.logger.Info("fallback model succeeded", zap.String("model", model))
			return text, nil
		}
		g.logger.Warn("fallback model failed",
			zap.String("model", model),
			zap.Error(err),
		)
	}

	// Every fallback failed; surface the original failure.
	return "", primaryErr
}
