package memory

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// Message is one role-tagged entry in the rolling window.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// PatientSummary is the read-only projection of the patient context that is
// shown to the model and to clinicians.
type PatientSummary struct {
	ConversationTurns int            `json:"conversation_turns"`
	KeySymptoms       []string       `json:"key_symptoms"`
	TimelineInfo      []string       `json:"timeline_info"`
	Medications       []string       `json:"medications"`
	Allergies         []string       `json:"allergies"`
	SeverityScores    map[string]int `json:"severity_scores"`
}

// JSON renders the summary indented for embedding in prompts and replies.
func (s PatientSummary) JSON() string {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		// Only plain strings and ints: marshalling cannot fail.
		panic(err)
	}
	return string(b)
}
