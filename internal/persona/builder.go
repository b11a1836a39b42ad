// Package persona builds the aggregate personality portrait for a user.
package persona

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/altailabs/twind/internal/ingest"
	"github.com/altailabs/twind/internal/memory"
	"github.com/altailabs/twind/internal/summarizer"
)

// SourcePortrait tags persona memory points.
const SourcePortrait = "persona_portrait"

// Ingester runs the full ingestion pipeline for a user.
type Ingester interface {
	IngestUserResponses(ctx context.Context, userID int64) (*ingest.Result, error)
}

// ThemeSummarizer builds a Persona from the aggregated item set.
type ThemeSummarizer interface {
	SummarizeUserThemes(ctx context.Context, audioItems []summarizer.AudioItem, likertItems []summarizer.LikertItem) (*summarizer.Persona, error)
}

// Builder orchestrates ingestion, theme summarization, and the persona
// self-upsert.
type Builder struct {
	ingester   Ingester
	summarizer ThemeSummarizer
	memories   memory.Store
	logger     *zap.Logger
}

// New creates a Builder.
func New(ingester Ingester, s ThemeSummarizer, memories memory.Store, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		ingester:   ingester,
		summarizer: s,
		memories:   memories,
		logger:     logger,
	}
}

// BuildPortrait ingests all of the user's responses, summarizes them into a
// Persona, and upserts the persona itself as one more memory point so future
// chat queries can retrieve persona-level facts.
func (b *Builder) BuildPortrait(ctx context.Context, userID int64) (*summarizer.Persona, error) {
	items, err := b.ingester.IngestUserResponses(ctx, userID)
	if err != nil {
		return nil, err
	}

	persona, err := b.summarizer.SummarizeUserThemes(ctx, items.AudioItems, items.LikertItems)
	if err != nil {
		return nil, fmt.Errorf("summarizing user themes: %w", err)
	}

	content := fmt.Sprintf(
		"Persona core identity: %s\n\nPersona summary:\n%s",
		persona.CoreIdentity, persona.Summary,
	)
	metadata := map[string]any{
		memory.PayloadSource: SourcePortrait,
		"traits":             persona.Traits,
		"values":             persona.Values,
		"motivations":        persona.Motivations,
		"stressors":          persona.Stressors,
		"communication_style": map[string]any{
			"tone": persona.CommunicationStyle.Tone,
			"do":   persona.CommunicationStyle.Do,
			"dont": persona.CommunicationStyle.Dont,
		},
	}

	if _, err := b.memories.UpsertMemory(ctx, userID, content, metadata); err != nil {
		return nil, fmt.Errorf("upserting persona memory: %w", err)
	}

	b.logger.Info("persona portrait built",
		zap.Int64("user_id", userID),
		zap.Int("audio_items", len(items.AudioItems)),
		zap.Int("likert_items", len(items.LikertItems)),
	)
	return persona, nil
}
