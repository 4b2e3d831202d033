// Package hermes connects medbot to the NATS event bus.
package hermes

import "time"

const (
	// SubjectTurn carries every counted consultation turn.
	SubjectTurn = "medbot.consultation.turn"
	// SubjectSummary carries the structured patient summary after each
	// successful summary turn.
	SubjectSummary = "medbot.consultation.summary"
	// SubjectTranscript is consumed: final speech-to-text transcripts that
	// should be handled as patient turns.
	SubjectTranscript = "medbot.transcript.final"
)

type TurnEvent struct {
	SessionID   string    `json:"session_id"`
	Turn        int       `json:"turn"`
	Phase       string    `json:"phase"`
	PatientText string    `json:"patient_text"`
	Reply       string    `json:"reply"`
	Failed      bool      `json:"failed"`
	Timestamp   time.Time `json:"timestamp"`
}

type SummaryEvent struct {
	SessionID      string         `json:"session_id"`
	Turn           int            `json:"turn"`
	Narrative      string         `json:"narrative"`
	KeySymptoms    []string       `json:"key_symptoms"`
	TimelineInfo   []string       `json:"timeline_info"`
	Medications    []string       `json:"medications"`
	Allergies      []string       `json:"allergies"`
	SeverityScores map[string]int `json:"severity_scores"`
	Timestamp      time.Time      `json:"timestamp"`
}

// TranscriptFinal is a finished utterance from an upstream voice pipeline.
type TranscriptFinal struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}
