// Package summarizer turns raw questionnaire answers into compact
// structured summaries and whole-user personas using a language model.
package summarizer

import "time"

// AudioSummary is the structured extraction from one audio answer.
type AudioSummary struct {
	// Summary is 2-3 sentences on what the answer says about the person.
	Summary string `json:"summary"`

	// Facts are explicit short statements about the person.
	Facts []string `json:"facts"`

	// Preferences are preferences or values implied by the answer.
	Preferences []string `json:"preferences"`

	// Signals maps trait names to scores in [0,1].
	Signals map[string]float64 `json:"signals"`
}

// AudioItem is one processed audio response.
type AudioItem struct {
	ResponseID   string             `json:"response_id"`
	QuestionID   string             `json:"question_id"`
	QuestionText string             `json:"question_text"`
	Transcript   string             `json:"transcript"`
	Summary      string             `json:"summary"`
	Facts        []string           `json:"facts"`
	Preferences  []string           `json:"preferences"`
	Signals      map[string]float64 `json:"signals"`
	CreatedAt    time.Time          `json:"created_at"`
}

// LikertItem is one processed rating response.
type LikertItem struct {
	ResponseID   string    `json:"response_id"`
	QuestionID   string    `json:"question_id"`
	QuestionText string    `json:"question_text"`
	Value        int64     `json:"value"`
	Normalized   float64   `json:"normalized_value"`
	CreatedAt    time.Time `json:"created_at"`
}

// CommunicationStyle describes how to talk like (and to) the user.
type CommunicationStyle struct {
	Tone string   `json:"tone"`
	Do   []string `json:"do"`
	Dont []string `json:"dont"`
}

// Persona is the aggregate personality portrait derived from all of a
// user's answers.
type Persona struct {
	CoreIdentity       string             `json:"core_identity"`
	Summary            string             `json:"summary"`
	Traits             map[string]float64 `json:"traits"`
	Values             []string           `json:"values"`
	Motivations        []string           `json:"motivations"`
	Stressors          []string           `json:"stressors"`
	CommunicationStyle CommunicationStyle `json:"communication_style"`
}

// fillDefaults replaces nil collection fields with empty values so callers
// never see nils regardless of what the model returned.
func (s *AudioSummary) fillDefaults() {
	if s.Facts == nil {
		s.Facts = []string{}
	}
	if s.Preferences == nil {
		s.Preferences = []string{}
	}
	if s.Signals == nil {
		s.Signals = map[string]float64{}
	}
}

func (p *Persona) fillDefaults() {
	if p.Traits == nil {
		p.Traits = map[string]float64{}
	}
	if p.Values == nil {
		p.Values = []string{}
	}
	if p.Motivations == nil {
		p.Motivations = []string{}
	}
	if p.Stressors == nil {
		p.Stressors = []string{}
	}
	if p.CommunicationStyle.Do == nil {
		p.CommunicationStyle.Do = []string{}
	}
	if p.CommunicationStyle.Dont == nil {
		p.CommunicationStyle.Dont = []string{}
	}
}
