package models

type EventType string

const (
	EventNoHelmet         EventType = "NO_HELMET"
	EventRedLightJump     EventType = "RED_LIGHT_JUMP"
	EventWrongSideDriving EventType = "WRONG_SIDE_DRIVING"
	EventRecklessDriving  EventType = "RECKLESS_DRIVING"
)

type KeyMoment struct {
	T    float64 `json:"t"`
	Note string  `json:"note"`
}

// Event is an incident surfaced for review. Its identity is fixed once
// issued; other fields may still change while Provisional is true.
type Event struct {
	EventID             string      `json:"event_id"`
	PacketID            string      `json:"packet_id,omitempty"`
	EventType           EventType   `json:"event_type"`
	StartTime           float64     `json:"start_time"`
	EndTime             float64     `json:"end_time"`
	Confidence          float64     `json:"confidence"`
	RiskScore           float64     `json:"risk_score"`
	ViolatorDescription string      `json:"violator_description,omitempty"`
	EvidenceFrames      []string    `json:"evidence_frames"`
	ExplanationShort    string      `json:"explanation_short"`
	PlateText           *string     `json:"plate_text,omitempty"`
	PlateCandidates     []string    `json:"plate_candidates,omitempty"`
	PlateConfidence     *float64    `json:"plate_confidence,omitempty"`
	KeyMoments          []KeyMoment `json:"key_moments,omitempty"`
	Uncertain           bool        `json:"uncertain"`
	UncertaintyReason   *string     `json:"uncertainty_reason,omitempty"`
	Provisional         bool        `json:"provisional"`
	SourceStage         string      `json:"source_stage,omitempty"`
}

// EventsPage is the body of GET /api/runs/{id}/events.
type EventsPage struct {
	Events      []Event `json:"events"`
	Provisional bool    `json:"provisional"`
}

type Priority struct {
	Label string
	Tone  string
}

// PriorityFromRisk buckets a 0-100 risk score.
func PriorityFromRisk(risk float64) Priority {
	switch {
	case risk >= 70:
		return Priority{Label: "High", Tone: "red"}
	case risk >= 40:
		return Priority{Label: "Medium", Tone: "orange"}
	default:
		return Priority{Label: "Low", Tone: "green"}
	}
}
