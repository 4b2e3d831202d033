package consultation

// Phase is the stage of a consultation, derived from the turn count.
type Phase string

const (
	PhaseGathering Phase = "gathering"
	PhaseSummary   Phase = "summary"
)

// SummaryTurn is the first turn answered with the summary flow. Every later
// turn repeats it with the then-current history.
const SummaryTurn = 4

// PhaseOf is the whole transition table: gathering while turnCount < 4.
func PhaseOf(turnCount int) Phase {
	if turnCount < SummaryTurn {
		return PhaseGathering
	}
	return PhaseSummary
}
