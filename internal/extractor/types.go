package extractor

import "time"

// PatientContext holds the facts pulled from patient utterances during one
// consultation. List entries are verbatim utterances, never fragments.
type PatientContext struct {
	Symptoms       []string
	Timeline       []string
	Medications    []string
	Allergies      []string
	SeverityScores map[string]int // ISO-8601 timestamp -> 1..10
	SessionStart   time.Time
}

// NewPatientContext returns an empty context stamped with start.
func NewPatientContext(start time.Time) *PatientContext {
	return &PatientContext{
		Symptoms:       []string{},
		Timeline:       []string{},
		Medications:    []string{},
		Allergies:      []string{},
		SeverityScores: map[string]int{},
		SessionStart:   start,
	}
}

// Category names one extraction branch.
type Category string

const (
	CategorySymptom    Category = "symptom"
	CategoryTimeline   Category = "timeline"
	CategorySeverity   Category = "severity"
	CategoryMedication Category = "medication"
	CategoryAllergy    Category = "allergy"
)

// Match lists the categories an utterance triggered, in evaluation order.
// A category appears even when its entry was already present.
type Match struct {
	Categories []Category
	Severity   int // 0 when no severity was captured
}

// Has reports whether c was triggered.
func (m Match) Has(c Category) bool {
	for _, got := range m.Categories {
		if got == c {
			return true
		}
	}
	return false
}
