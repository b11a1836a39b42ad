// Package questionnaire provides relational storage for questionnaire
// questions and user responses.
package questionnaire

import "time"

// QuestionType distinguishes the response kinds the pipeline understands.
// Unknown types are ignored by ingestion as a forward-compatible no-op.
type QuestionType string

const (
	// TypeAudio is an open-ended question answered by an audio recording.
	TypeAudio QuestionType = "AUDIO"

	// TypeLikert is a rating question answered on a numeric scale.
	TypeLikert QuestionType = "LIKERT"
)

// Question is one questionnaire question.
type Question struct {
	ID   string
	Text string
	Type QuestionType
}

// Response is one user's answer to a question.
//
// LikertValue is nil for audio responses and for unanswered ratings.
// Transcription holds a previously stored transcript when available.
type Response struct {
	ID            string
	UserID        int64
	QuestionID    string
	LikertValue   *int64
	AudioPath     string
	Transcription string
	CreatedAt     time.Time

	// Question is populated by list operations.
	Question Question
}
