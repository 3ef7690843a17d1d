package models

type AnchorFrame struct {
	Path string  `json:"path"`
	T    float64 `json:"t,omitempty"`
}

type LocalProposal struct {
	ProposedEventType EventType `json:"proposed_event_type,omitempty"`
	LocalScore        *float64  `json:"local_score,omitempty"`
	ReasonCodes       []string  `json:"reason_codes,omitempty"`
}

type Routing struct {
	SentToFlash   bool     `json:"sent_to_flash,omitempty"`
	RoutingReason []string `json:"routing_reason,omitempty"`
}

// StageResult is the outcome of one verification pass over a packet.
type StageResult struct {
	Status    string         `json:"status"`
	LatencyMS *int64         `json:"latency_ms,omitempty"`
	Response  map[string]any `json:"response,omitempty"`
}

// Packet is an in-flight candidate detection and its lineage through the
// pipeline. It may mature into at most one Event.
type Packet struct {
	PacketID      string        `json:"packet_id"`
	CandidateID   string        `json:"candidate_id,omitempty"`
	AnchorFrames  []AnchorFrame `json:"anchor_frames,omitempty"`
	Local         LocalProposal `json:"local"`
	Routing       Routing       `json:"routing"`
	Flash         *StageResult  `json:"flash,omitempty"`
	Pro           *StageResult  `json:"pro,omitempty"`
	FinalEventID  *string       `json:"final_event_id,omitempty"`
	DroppedReason *string       `json:"dropped_reason,omitempty"`
}

// Score returns the local score, or 0 when the packet was never scored.
func (p Packet) Score() float64 {
	if p.Local.LocalScore == nil {
		return 0
	}
	return *p.Local.LocalScore
}

func (p Packet) Scored() bool {
	return p.Local.LocalScore != nil
}

// AnchorPaths returns the non-empty anchor frame paths in order.
func (p Packet) AnchorPaths() []string {
	paths := make([]string, 0, len(p.AnchorFrames))
	for _, f := range p.AnchorFrames {
		if f.Path != "" {
			paths = append(paths, f.Path)
		}
	}
	return paths
}

type TraceSummary struct {
	PacketsTotal   int `json:"packets_total"`
	FlashDone      int `json:"flash_done"`
	ProDone        int `json:"pro_done"`
	Finalized      int `json:"finalized"`
	DroppedPackets int `json:"dropped_packets"`
}

// TracePage is the body of GET /api/runs/{id}/trace.
type TracePage struct {
	Summary     *TraceSummary `json:"summary,omitempty"`
	Packets     []Packet      `json:"packets"`
	Provisional bool          `json:"provisional"`
	Message     string        `json:"message,omitempty"`
}
