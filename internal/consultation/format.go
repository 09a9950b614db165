package consultation

import (
	"strings"
)

const (
	noFirstAidText = "no specific guidance recommended"

	// FallbackMessage is shown whenever the triage service cannot be reached
	// or returns something unusable.
	FallbackMessage = "I apologize, but I'm having trouble analyzing your symptoms right now. " +
		"If this is an emergency, please call your local emergency number immediately (999)."
)

// composeAssistantContent renders a triage result the way the chat shows it:
// summary, a bulleted first-aid list and an optional flags line.
func composeAssistantContent(r *TriageResult) string {
	var b strings.Builder
	b.WriteString(r.SummaryForRescue)
	b.WriteString("\n\nFirst Aid:\n• ")
	if len(r.FirstAid) == 0 {
		b.WriteString(noFirstAidText)
	} else {
		b.WriteString(strings.Join(r.FirstAid, "\n• "))
	}
	if len(r.MedicalFlags) > 0 {
		b.WriteString("\n\nMedical Flags: ")
		b.WriteString(strings.Join(r.MedicalFlags, ", "))
	}
	return b.String()
}
