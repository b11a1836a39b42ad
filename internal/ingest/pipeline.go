// Package ingest turns a user's questionnaire responses into structured
// items and retrievable memories.
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/altailabs/twind/internal/memory"
	"github.com/altailabs/twind/internal/questionnaire"
	"github.com/altailabs/twind/internal/summarizer"
	"github.com/altailabs/twind/internal/transcribe"
)

// Memory point sources written by the pipeline.
const (
	SourceAudio  = "questionnaire_audio"
	SourceLikert = "questionnaire_likert"
)

// maxLikertScale normalizes raw rating values into [0,1].
const maxLikertScale = 5

// ResponseLister loads a user's responses in creation-time order.
type ResponseLister interface {
	ListResponses(ctx context.Context, userID int64) ([]questionnaire.Response, error)
}

// AudioSummarizer extracts a structured summary from one transcript.
type AudioSummarizer interface {
	SummarizeAudioAnswer(ctx context.Context, transcript, questionText string) (*summarizer.AudioSummary, error)
}

// Result carries the structured items produced by one ingestion run.
type Result struct {
	AudioItems  []summarizer.AudioItem  `json:"audio_items"`
	LikertItems []summarizer.LikertItem `json:"likert_items"`
}

// Pipeline ingests questionnaire responses into the memory store.
type Pipeline struct {
	responses   ResponseLister
	summarizer  AudioSummarizer
	memories    memory.Store
	transcriber transcribe.Transcriber
	logger      *zap.Logger
}

// New creates a Pipeline. A nil transcriber means transcription is
// unavailable and responses that need it surface transcribe.ErrNotImplemented.
func New(responses ResponseLister, s AudioSummarizer, memories memory.Store, transcriber transcribe.Transcriber, logger *zap.Logger) *Pipeline {
	if transcriber == nil {
		transcriber = transcribe.Unavailable{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		responses:   responses,
		summarizer:  s,
		memories:    memories,
		transcriber: transcriber,
		logger:      logger,
	}
}

// IngestUserResponses processes all of a user's responses in creation-time
// order and upserts one memory per usable response.
//
// Audio responses prefer a previously stored transcription; responses with
// neither a transcript nor an audio path are skipped. Rating responses with
// no recorded value are skipped. Unknown question types are ignored.
//
// Re-running ingestion creates additional duplicate memory points; there is
// no dedup by response id.
func (p *Pipeline) IngestUserResponses(ctx context.Context, userID int64) (*Result, error) {
	responses, err := p.responses.ListResponses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading responses for user %d: %w", userID, err)
	}

	result := &Result{
		AudioItems:  []summarizer.AudioItem{},
		LikertItems: []summarizer.LikertItem{},
	}

	for _, resp := range responses {
		switch resp.Question.Type {
		case questionnaire.TypeAudio:
			item, err := p.ingestAudio(ctx, userID, resp)
			if err != nil {
				return nil, err
			}
			if item != nil {
				result.AudioItems = append(result.AudioItems, *item)
			}

		case questionnaire.TypeLikert:
			item, err := p.ingestLikert(ctx, userID, resp)
			if err != nil {
				return nil, err
			}
			if item != nil {
				result.LikertItems = append(result.LikertItems, *item)
			}

		default:
			// Unknown question type: forward-compatible no-op.
			p.logger.Debug("skipping response with unknown question type",
				zap.String("response_id", resp.ID),
				zap.String("type", string(resp.Question.Type)),
			)
		}
	}

	p.logger.Info("ingestion completed",
		zap.Int64("user_id", userID),
		zap.Int("audio_items", len(result.AudioItems)),
		zap.Int("likert_items", len(result.LikertItems)),
	)
	return result, nil
}

func (p *Pipeline) ingestAudio(ctx context.Context, userID int64, resp questionnaire.Response) (*summarizer.AudioItem, error) {
	transcript := resp.Transcription
	if transcript == "" {
		if resp.AudioPath == "" {
			// No audio and no transcript: nothing to ingest.
			return nil, nil
		}
		var err error
		transcript, err = p.transcriber.Transcribe(ctx, resp.AudioPath)
		if err != nil {
			// transcribe.ErrNotImplemented must stay recognizable to the caller.
			return nil, fmt.Errorf("transcribing response %s: %w", resp.ID, err)
		}
	}

	summary, err := p.summarizer.SummarizeAudioAnswer(ctx, transcript, resp.Question.Text)
	if err != nil {
		return nil, fmt.Errorf("summarizing response %s: %w", resp.ID, err)
	}

	item := &summarizer.AudioItem{
		ResponseID:   resp.ID,
		QuestionID:   resp.QuestionID,
		QuestionText: resp.Question.Text,
		Transcript:   transcript,
		Summary:      summary.Summary,
		Facts:        summary.Facts,
		Preferences:  summary.Preferences,
		Signals:      summary.Signals,
		CreatedAt:    resp.CreatedAt,
	}

	content := fmt.Sprintf(
		"Question: %s\nType: AUDIO\n\nTranscript:\n%s\n\nSummary:\n%s",
		resp.Question.Text, transcript, item.Summary,
	)
	metadata := map[string]any{
		memory.PayloadSource: SourceAudio,
		"response_id":        resp.ID,
		"question_id":        resp.QuestionID,
		"question_type":      string(questionnaire.TypeAudio),
		"created_at":         resp.CreatedAt.Format(timeLayout),
		"transcript":         transcript,
		"facts":              item.Facts,
		"preferences":        item.Preferences,
		"signals":            item.Signals,
	}

	if _, err := p.memories.UpsertMemory(ctx, userID, content, metadata); err != nil {
		// A lost write must be visible to the caller.
		return nil, fmt.Errorf("upserting audio memory for response %s: %w", resp.ID, err)
	}
	return item, nil
}

func (p *Pipeline) ingestLikert(ctx context.Context, userID int64, resp questionnaire.Response) (*summarizer.LikertItem, error) {
	if resp.LikertValue == nil {
		// Nothing recorded.
		return nil, nil
	}

	value := *resp.LikertValue
	normalized := float64(value) / maxLikertScale

	item := &summarizer.LikertItem{
		ResponseID:   resp.ID,
		QuestionID:   resp.QuestionID,
		QuestionText: resp.Question.Text,
		Value:        value,
		Normalized:   normalized,
		CreatedAt:    resp.CreatedAt,
	}

	content := fmt.Sprintf(
		"Question: %s\nType: LIKERT\nAnswer (raw): %d\nAnswer (normalized 0-1): %.3f",
		resp.Question.Text, value, normalized,
	)
	metadata := map[string]any{
		memory.PayloadSource: SourceLikert,
		"response_id":        resp.ID,
		"question_id":        resp.QuestionID,
		"question_type":      string(questionnaire.TypeLikert),
		"created_at":         resp.CreatedAt.Format(timeLayout),
		"value":              value,
		"normalized_value":   normalized,
	}

	if _, err := p.memories.UpsertMemory(ctx, userID, content, metadata); err != nil {
		return nil, fmt.Errorf("upserting likert memory for response %s: %w", resp.ID, err)
	}
	return item, nil
}

// timeLayout matches RFC 3339 for provenance timestamps in payloads.
const timeLayout = "2006-01-02T15:04:05Z07:00"
