package models

type Decision string

const (
	DecisionAccept Decision = "ACCEPT"
	DecisionReject Decision = "REJECT"
)

func (d Decision) Valid() bool {
	return d == DecisionAccept || d == DecisionReject
}

// ReviewDecision is a reviewer's verdict on one event. The backend keeps
// one per event id; the latest submission wins.
type ReviewDecision struct {
	EventID       string   `json:"-"`
	Decision      Decision `json:"decision"`
	ReviewerNotes string   `json:"reviewer_notes"`
	IncludePlate  bool     `json:"include_plate"`
}

// DefaultDecision is what gets submitted for an event nobody has touched.
func DefaultDecision(eventID string) ReviewDecision {
	return ReviewDecision{
		EventID:       eventID,
		Decision:      DecisionAccept,
		ReviewerNotes: "",
		IncludePlate:  false,
	}
}

// PartialDecision carries only the fields a reviewer changed.
type PartialDecision struct {
	Decision      *Decision
	ReviewerNotes *string
	IncludePlate  *bool
}

// Apply overlays the set fields of p onto d.
func (p PartialDecision) Apply(d ReviewDecision) ReviewDecision {
	if p.Decision != nil {
		d.Decision = *p.Decision
	}
	if p.ReviewerNotes != nil {
		d.ReviewerNotes = *p.ReviewerNotes
	}
	if p.IncludePlate != nil {
		d.IncludePlate = *p.IncludePlate
	}
	return d
}
