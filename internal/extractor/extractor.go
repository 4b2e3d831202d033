// Package extractor pulls lightweight medical facts out of free-text patient
// utterances with keyword and regex heuristics.
//
// This is a best-effort filter, not a clinical parser: "no pain at all"
// still counts as a symptom and "3 days of pain" records a severity of 3.
// Those false positives are known and accepted.
package extractor

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Keyword sets are matched as substrings of the lower-cased utterance.
var (
	SymptomKeywords = []string{
		"pain", "ache", "hurt", "sore", "cough", "fever", "nausea",
		"headache", "dizzy", "tired", "fatigue", "vomit", "swollen",
		"rash", "itch", "burn", "cramp", "bleed", "shortness of breath",
	}
	TimelineKeywords   = []string{"days", "weeks", "months", "hours", "yesterday", "today", "started", "began"}
	MedicationKeywords = []string{"taking", "medication", "medicine", "pills", "prescribed", "drug"}
	AllergyKeywords    = []string{"allergic", "allergy", "allergies", "reaction"}
)

// A digit 1-10 followed anywhere later by pain, severity or scale.
var severityPattern = regexp.MustCompile(`\b([1-9]|10)\b.*(?:pain|severity|scale)`)

// severityKeyLayout keeps a fixed nine-digit fraction so keys sort and never
// lose precision.
const severityKeyLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Extract runs every category against utterance and records matches into pc.
// Categories are independent; none short-circuits another.
func Extract(utterance string, pc *PatientContext, now time.Time) Match {
	var m Match
	lower := strings.ToLower(utterance)

	if containsAny(lower, SymptomKeywords) {
		pc.Symptoms = appendUnique(pc.Symptoms, utterance)
		m.Categories = append(m.Categories, CategorySymptom)
	}

	if containsAny(lower, TimelineKeywords) {
		pc.Timeline = appendUnique(pc.Timeline, utterance)
		m.Categories = append(m.Categories, CategoryTimeline)
	}

	if score, ok := Severity(lower); ok {
		if pc.SeverityScores == nil {
			pc.SeverityScores = map[string]int{}
		}
		pc.SeverityScores[severityKey(pc.SeverityScores, now)] = score
		m.Categories = append(m.Categories, CategorySeverity)
		m.Severity = score
	}

	if containsAny(lower, MedicationKeywords) {
		pc.Medications = appendUnique(pc.Medications, utterance)
		m.Categories = append(m.Categories, CategoryMedication)
	}

	if containsAny(lower, AllergyKeywords) {
		pc.Allergies = appendUnique(pc.Allergies, utterance)
		m.Categories = append(m.Categories, CategoryAllergy)
	}

	return m
}

// Severity returns the first 1-10 score mentioned before a pain/severity/scale
// word. Only the first matching span counts.
func Severity(utterance string) (int, bool) {
	sub := severityPattern.FindStringSubmatch(strings.ToLower(utterance))
	if sub == nil {
		return 0, false
	}
	n, err := strconv.Atoi(sub[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func appendUnique(list []string, utterance string) []string {
	for _, existing := range list {
		if existing == utterance {
			return list
		}
	}
	return append(list, utterance)
}

func severityKey(scores map[string]int, now time.Time) string {
	t := now
	for {
		key := t.Format(severityKeyLayout)
		if _, taken := scores[key]; !taken {
			return key
		}
		t = t.Add(time.Nanosecond)
	}
}
