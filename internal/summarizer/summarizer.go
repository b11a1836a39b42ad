package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/altailabs/twind/internal/llm"
)

const audioSystemPrompt = `You are building a personality model of a real person based on their answers to interview questions.
Given a question and a transcript, extract:
- a concise summary (2-3 sentences) of what this answer says about the person
- explicit facts about them (short bullet-style statements)
- preferences/values implied by the answer
- a few trait signals with scores between 0 and 1 (for example: introversion, risk_tolerance, conscientiousness).

Return ONLY valid JSON with keys: summary, facts, preferences, signals.
Example format:
{
  "summary": "...",
  "facts": ["..."],
  "preferences": ["..."],
  "signals": {"introversion": 0.7, "risk_tolerance": 0.3}
}`

const themesSystemPrompt = `You are creating a high-level personality portrait of a real person.
You are given two datasets in JSON:
- audio_items: per-question analysis of open-ended audio answers
- likert_items: numeric answers to Likert questions

Use them to infer:
- core identity tagline (one sentence)
- an overall summary (2-3 paragraphs)
- a small set of traits with scores 0-1 (for example: introversion, openness, conscientiousness, emotional_stability, agreeableness, risk_tolerance)
- key values (e.g., autonomy, family, achievement, creativity)
- main motivations
- main stressors or fears
- communication style: tone, do (things that work well), dont (things to avoid)

Return ONLY valid JSON with keys:
core_identity, summary, traits, values, motivations, stressors, communication_style.
communication_style must be an object with keys: tone, do, dont.`

// Generator runs a prompt through the model fallback protocol.
type Generator interface {
	Generate(ctx context.Context, prompt llm.Prompt) (string, error)
}

// Summarizer produces structured summaries via the language model.
type Summarizer struct {
	generator Generator
	logger    *zap.Logger
}

// New creates a Summarizer.
func New(generator Generator, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{generator: generator, logger: logger}
}

// SummarizeAudioAnswer extracts a structured summary from one transcript.
//
// Generation failures propagate (after the fallback protocol has run inside
// the generator). Malformed model output never fails: the raw text becomes
// the summary and the structured fields stay empty.
func (s *Summarizer) SummarizeAudioAnswer(ctx context.Context, transcript, questionText string) (*AudioSummary, error) {
	user := fmt.Sprintf("Question: %s\n\nTranscript:\n%s\n\nReturn ONLY JSON, no extra text.", questionText, transcript)

	raw, err := s.generator.Generate(ctx, llm.Prompt{System: audioSystemPrompt, User: user})
	if err != nil {
		return nil, err
	}

	var summary AudioSummary
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &summary); err != nil {
		s.logger.Warn("model returned non-JSON audio summary, degrading to raw text",
			zap.Error(err),
		)
		summary = AudioSummary{Summary: strings.TrimSpace(raw)}
	}
	summary.fillDefaults()
	return &summary, nil
}

// SummarizeUserThemes builds a Persona from the full aggregated item set in
// a single model call. Malformed output degrades the same way: raw text in
// Summary, every other field an empty default.
func (s *Summarizer) SummarizeUserThemes(ctx context.Context, audioItems []AudioItem, likertItems []LikertItem) (*Persona, error) {
	audioJSON, err := json.Marshal(audioItems)
	if err != nil {
		return nil, fmt.Errorf("encoding audio items: %w", err)
	}
	likertJSON, err := json.Marshal(likertItems)
	if err != nil {
		return nil, fmt.Errorf("encoding likert items: %w", err)
	}

	user := fmt.Sprintf(
		"Here are the audio_items (JSON list):\n%s\n\nHere are the likert_items (JSON list):\n%s\n\nReturn ONLY JSON, no explanation.",
		audioJSON, likertJSON,
	)

	raw, err := s.generator.Generate(ctx, llm.Prompt{System: themesSystemPrompt, User: user})
	if err != nil {
		return nil, err
	}

	var persona Persona
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &persona); err != nil {
		s.logger.Warn("model returned non-JSON persona, degrading to raw text",
			zap.Error(err),
		)
		persona = Persona{Summary: strings.TrimSpace(raw)}
	}
	persona.fillDefaults()
	return &persona, nil
}

// stripCodeFence removes a surrounding markdown code fence, which models
// emit despite being told to return bare JSON.
func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
