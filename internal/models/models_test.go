package models

import (
	"strings"
	"testing"
)

func TestDescribeStateCoversEveryState(t *testing.T) {
	states := []RunState{StatePending, StateRunning, StateReadyForReview, StateExported, StateFailed}
	for _, s := range states {
		d := DescribeState(s)
		if !d.Known {
			t.Errorf("state %s has no descriptor", s)
		}
		if d.Label == "" || d.Tone == "" {
			t.Errorf("state %s has incomplete descriptor: %+v", s, d)
		}
	}

	d := DescribeState("SOMETHING_NEW")
	if d.Known {
		t.Error("expected fallback descriptor for unrecognized state")
	}
	if d.Label != "Unknown" || d.Cadence != CadenceActive {
		t.Errorf("unexpected fallback descriptor: %+v", d)
	}
}

func TestDescribeStateCadence(t *testing.T) {
	tests := []struct {
		state RunState
		want  Cadence
	}{
		{StatePending, CadenceActive},
		{StateRunning, CadenceActive},
		{StateReadyForReview, CadenceSettled},
		{StateExported, CadenceSettled},
		{StateFailed, CadenceSettled},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := DescribeState(tt.state).Cadence; got != tt.want {
				t.Errorf("cadence = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunStateClassification(t *testing.T) {
	if !StateReadyForReview.Reviewable() || !StateExported.Reviewable() {
		t.Error("ready and exported must be reviewable")
	}
	if StateFailed.Reviewable() || StateRunning.Reviewable() {
		t.Error("failed and running must not be reviewable")
	}
	if StateReadyForReview.Terminal() {
		t.Error("ready for review is not terminal")
	}
	if !StateFailed.Settled() || StatePending.Settled() {
		t.Error("unexpected settled classification")
	}
}

func TestLabelsFallBack(t *testing.T) {
	if got := StageLabel("MYSTERY"); got != "Processing" {
		t.Errorf("StageLabel fallback = %q", got)
	}
	if got := EventTypeLabel(EventRedLightJump); got != "Red Light Jump" {
		t.Errorf("EventTypeLabel = %q", got)
	}
	if got := EventTypeLabel(""); got != "Potential incident" {
		t.Errorf("EventTypeLabel fallback = %q", got)
	}
}

func TestRunStatusSummary(t *testing.T) {
	status := &RunStatus{
		Metrics: map[string]any{
			"flash_done":         float64(3),
			"pro_done":           float64(2),
			"packets_sent_flash": float64(7),
			"packets_finalized":  "4",
			"flash_uncertain":    float64(1),
		},
	}

	got := status.Summary()
	want := RunSummary{ClipsChecked: 5, PotentialIncidents: 7, ReadyForReview: 4, NeedsExtraCheck: 1}
	if got != want {
		t.Errorf("Summary() = %+v, want %+v", got, want)
	}

	status.Metrics["candidate_total"] = float64(9)
	if got := status.Summary().PotentialIncidents; got != 9 {
		t.Errorf("candidate_total should take precedence, got %d", got)
	}

	var empty *RunStatus
	if got := empty.Metric("flash_done"); got != 0 {
		t.Errorf("nil status metric = %v", got)
	}
}

func TestPriorityFromRisk(t *testing.T) {
	tests := []struct {
		risk float64
		want string
	}{
		{95, "High"},
		{70, "High"},
		{40, "Medium"},
		{39.9, "Low"},
		{0, "Low"},
	}
	for _, tt := range tests {
		if got := PriorityFromRisk(tt.risk).Label; got != tt.want {
			t.Errorf("PriorityFromRisk(%v) = %s, want %s", tt.risk, got, tt.want)
		}
	}
}

func TestPartialDecisionApply(t *testing.T) {
	reject := DecisionReject
	notes := "duplicate"
	base := DefaultDecision("e1")

	got := PartialDecision{Decision: &reject}.Apply(base)
	if got.Decision != DecisionReject || got.ReviewerNotes != "" || got.IncludePlate {
		t.Errorf("unexpected result: %+v", got)
	}

	got = PartialDecision{ReviewerNotes: &notes}.Apply(got)
	if got.Decision != DecisionReject || got.ReviewerNotes != notes {
		t.Errorf("partial apply lost earlier fields: %+v", got)
	}
	if got.EventID != "e1" {
		t.Errorf("event id changed: %q", got.EventID)
	}
}

func TestNewRunID(t *testing.T) {
	id := NewRunID()
	if !strings.HasPrefix(id, "run_") || len(id) != 14 {
		t.Errorf("unexpected run id %q", id)
	}
	if id == NewRunID() {
		t.Error("run ids should be unique")
	}
}

func TestPacketScore(t *testing.T) {
	score := 0.42
	scored := Packet{PacketID: "p1", Local: LocalProposal{LocalScore: &score}}
	unscored := Packet{PacketID: "p2"}

	if !scored.Scored() || scored.Score() != 0.42 {
		t.Errorf("scored packet: %v %v", scored.Scored(), scored.Score())
	}
	if unscored.Scored() || unscored.Score() != 0 {
		t.Errorf("unscored packet: %v %v", unscored.Scored(), unscored.Score())
	}

	p := Packet{AnchorFrames: []AnchorFrame{{Path: "a.jpg"}, {Path: ""}, {Path: "b.jpg"}}}
	if got := p.AnchorPaths(); len(got) != 2 || got[0] != "a.jpg" || got[1] != "b.jpg" {
		t.Errorf("AnchorPaths() = %v", got)
	}
}
