// Package prompt assembles backend-ready prompts from an instruction
// template, recent history and the memory context.
package prompt

import "strings"

// ReplyCue ends every prompt so the backend answers as the doctor.
const ReplyCue = "Doctor:"

const historyExchanges = 3

// Exchange is one history entry. Either side may be empty: the welcome entry
// has no patient text and an in-flight turn has no doctor text.
type Exchange struct {
	Patient string `json:"patient,omitempty"`
	Doctor  string `json:"doctor,omitempty"`
}

// Build lays out, in order: the instruction, the memory context block when
// non-empty, the last three history exchanges when present, then the current
// utterance and the reply cue. Longer histories are windowed, not summarised.
func Build(instruction string, history []Exchange, memoryContext, userText string) string {
	var sb strings.Builder
	sb.WriteString(instruction)
	sb.WriteString("\n\n")

	if memoryContext != "" {
		sb.WriteString("Previous conversation context:\n")
		sb.WriteString(memoryContext)
		sb.WriteString("\n\n")
	}

	recent := history
	if len(recent) > historyExchanges {
		recent = recent[len(recent)-historyExchanges:]
	}
	if len(recent) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, ex := range recent {
			if ex.Patient != "" {
				sb.WriteString("Patient: " + ex.Patient + "\n")
			}
			if ex.Doctor != "" {
				sb.WriteString("Doctor: " + ex.Doctor + "\n")
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Patient: " + userText + "\n\n")
	sb.WriteString(ReplyCue)
	return sb.String()
}
