package sim

import (
	"fmt"
	"sort"

	"github.com/kdimtricp/civiclens/internal/models"
)

// phase is how far a started run has progressed through the pipeline.
type phase int

const (
	phaseIngest phase = iota
	phaseLocal
	phaseFlash
	phasePro
	phasePostprocess
	phaseReady
)

type phaseInfo struct {
	stage    models.Stage
	progress int
	message  string
}

var phases = map[phase]phaseInfo{
	phaseIngest:      {models.StageIngest, 10, "Extracting frames"},
	phaseLocal:       {models.StageLocalProposals, 30, "Scoring local proposals"},
	phaseFlash:       {models.StageGeminiFlash, 55, "Checking clips"},
	phasePro:         {models.StageGeminiPro, 75, "Running extra checks"},
	phasePostprocess: {models.StagePostprocess, 90, "Merging results"},
	phaseReady:       {models.StageReadyForReview, 100, "Ready for review"},
}

// candidate is one scripted detection and how each verification pass
// treats it.
type candidate struct {
	packetID  string
	eventType models.EventType
	score     *float64
	start     float64
	end       float64
	sent      bool
	routing   []string
	relevant  bool
	uncertain bool
	eventID   string
	risk      float64
	plate     string
}

func ptr[T any](v T) *T { return &v }

var candidates = []candidate{
	{
		packetID: "pkt_001", eventType: models.EventNoHelmet, score: ptr(0.91),
		start: 12.0, end: 15.5, sent: true, routing: []string{"score_above_threshold"},
		relevant: true, eventID: "evt_001", risk: 78, plate: "KA01AB1234",
	},
	{
		packetID: "pkt_002", eventType: models.EventRedLightJump, score: ptr(0.72),
		start: 3.2, end: 6.0, sent: true, routing: []string{"score_above_threshold"},
		relevant: true, uncertain: true, eventID: "evt_002", risk: 52,
	},
	{
		packetID: "pkt_003", eventType: models.EventWrongSideDriving, score: ptr(0.35),
		start: 20.0, end: 22.4, sent: true, routing: []string{"score_above_threshold"},
	},
	{
		packetID: "pkt_004", eventType: models.EventRecklessDriving,
		start: 30.0, end: 31.0, routing: []string{"below_flash_threshold"},
	},
}

func (c candidate) anchors() []models.AnchorFrame {
	return []models.AnchorFrame{
		{Path: fmt.Sprintf("frames/%s_0.jpg", c.packetID), T: c.start},
		{Path: fmt.Sprintf("frames/%s_1.jpg", c.packetID), T: c.end},
	}
}

func (c candidate) finalEvent() models.Event {
	e := models.Event{
		EventID:             c.eventID,
		PacketID:            c.packetID,
		EventType:           c.eventType,
		StartTime:           c.start,
		EndTime:             c.end,
		Confidence:          *c.score,
		RiskScore:           c.risk,
		ViolatorDescription: "Rider on a black scooter",
		EvidenceFrames:      paths(c.anchors()),
		ExplanationShort:    models.EventTypeLabel(c.eventType) + " observed in the clip.",
		KeyMoments:          []models.KeyMoment{{T: c.start, Note: "Violation visible"}},
		Uncertain:           c.uncertain,
		SourceStage:         "FINAL",
	}
	if c.plate != "" {
		e.PlateText = ptr(c.plate)
		e.PlateCandidates = []string{c.plate}
		e.PlateConfidence = ptr(0.83)
	}
	if c.uncertain {
		e.UncertaintyReason = ptr("Signal state partly occluded")
	}
	return e
}

func paths(frames []models.AnchorFrame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Path)
	}
	return out
}

// packets returns the trace as it looks at phase p.
func packets(p phase) []models.Packet {
	if p < phaseLocal {
		return []models.Packet{}
	}

	out := make([]models.Packet, 0, len(candidates))
	for i, c := range candidates {
		pkt := models.Packet{
			PacketID:     c.packetID,
			CandidateID:  fmt.Sprintf("cand_%03d", i+1),
			AnchorFrames: c.anchors(),
			Local: models.LocalProposal{
				ProposedEventType: c.eventType,
				LocalScore:        c.score,
				ReasonCodes:       []string{"motion_spike"},
			},
			Routing: models.Routing{SentToFlash: c.sent, RoutingReason: c.routing},
		}

		if c.sent && p >= phaseFlash {
			pkt.Flash = &models.StageResult{
				Status:    "OK",
				LatencyMS: ptr(int64(850 + 40*i)),
				Response:  map[string]any{"is_relevant": c.relevant, "uncertain": c.uncertain},
			}
		}
		if c.relevant && p >= phasePro {
			pkt.Pro = &models.StageResult{
				Status:    "OK",
				LatencyMS: ptr(int64(2100 + 90*i)),
				Response:  map[string]any{"event_id": c.eventID, "event_type": string(c.eventType)},
			}
		}

		switch {
		case pkt.Pro != nil:
			pkt.FinalEventID = ptr(c.eventID)
		case pkt.Flash != nil && c.relevant:
			pkt.FinalEventID = ptr("live_flash_" + c.packetID)
		case !c.sent:
			pkt.DroppedReason = ptr(c.routing[len(c.routing)-1])
		case pkt.Flash != nil:
			pkt.DroppedReason = ptr("flash_not_relevant")
		}

		out = append(out, pkt)
	}
	return out
}

func summarize(pkts []models.Packet) *models.TraceSummary {
	s := &models.TraceSummary{PacketsTotal: len(pkts)}
	for _, p := range pkts {
		if p.Flash != nil {
			s.FlashDone++
		}
		if p.Pro != nil {
			s.ProDone++
		}
		if p.FinalEventID != nil {
			s.Finalized++
		} else if p.DroppedReason != nil {
			s.DroppedPackets++
		}
	}
	return s
}

// liveEvents synthesizes provisional events from partial pipeline output.
func liveEvents(p phase) []models.Event {
	events := []models.Event{}
	if p < phaseLocal {
		return events
	}

	for _, c := range candidates {
		base := models.Event{
			PacketID:       c.packetID,
			EventType:      c.eventType,
			StartTime:      c.start,
			EndTime:        c.end,
			EvidenceFrames: paths(c.anchors()),
			Provisional:    true,
		}
		if c.score != nil {
			base.Confidence = *c.score
			base.RiskScore = *c.score * 100
		}

		switch {
		case c.relevant && p >= phasePro:
			e := c.finalEvent()
			e.Provisional = true
			e.SourceStage = "PRO_LIVE"
			events = append(events, e)
		case c.relevant && p >= phaseFlash:
			base.EventID = "live_flash_" + c.packetID
			base.SourceStage = "FLASH_LIVE"
			base.ExplanationShort = "Flash marked this packet relevant. Waiting for final merge."
			base.Uncertain = c.uncertain
			events = append(events, base)
		case c.sent && p < phaseFlash:
			base.EventID = "live_local_" + c.packetID
			base.SourceStage = "LOCAL_PENDING"
			base.ExplanationShort = "Detected by local engine. Flash step pending."
			base.Uncertain = true
			base.UncertaintyReason = ptr("Awaiting Flash validation")
			events = append(events, base)
		}
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].StartTime < events[j].StartTime })
	return events
}

// finalEvents is the merged result in the order the pipeline wrote it,
// which is not chronological.
func finalEvents() []models.Event {
	var events []models.Event
	for _, c := range candidates {
		if c.relevant {
			events = append(events, c.finalEvent())
		}
	}
	return events
}

func metrics(p phase) map[string]any {
	m := map[string]any{}
	if p >= phaseLocal {
		m["candidate_total"] = len(candidates)
		m["packets_sent_flash"] = countWhere(func(c candidate) bool { return c.sent })
	}
	if p >= phaseFlash {
		m["flash_done"] = countWhere(func(c candidate) bool { return c.sent })
		m["flash_uncertain"] = countWhere(func(c candidate) bool { return c.uncertain })
	}
	if p >= phasePro {
		m["pro_done"] = countWhere(func(c candidate) bool { return c.relevant })
	}
	if p >= phaseReady {
		m["packets_finalized"] = countWhere(func(c candidate) bool { return c.relevant })
	}
	return m
}

func countWhere(pred func(candidate) bool) int {
	n := 0
	for _, c := range candidates {
		if pred(c) {
			n++
		}
	}
	return n
}

// logLines returns the pipeline log up to and including phase p.
func logLines(p phase) []models.LogLine {
	var lines []models.LogLine
	add := func(stage models.Stage, event, msg string) {
		lines = append(lines, models.LogLine{
			TS:      fmt.Sprintf("00:00:%02d", len(lines)),
			Stage:   string(stage),
			Level:   "INFO",
			Event:   event,
			Message: msg,
		})
	}

	add(models.StageIngest, "stage_started", "Ingest started")
	add(models.StageIngest, "frames_extracted", "Extracted 960 frames")
	if p >= phaseLocal {
		add(models.StageLocalProposals, "stage_started", "Local proposals started")
		add(models.StageLocalProposals, "candidates_found", fmt.Sprintf("Found %d candidates", len(candidates)))
	}
	if p >= phaseFlash {
		for _, c := range candidates {
			if c.sent {
				add(models.StageGeminiFlash, "packet_checked", "Checked "+c.packetID)
			}
		}
	}
	if p >= phasePro {
		for _, c := range candidates {
			if c.relevant {
				add(models.StageGeminiPro, "packet_verified", "Verified "+c.packetID)
			}
		}
	}
	if p >= phasePostprocess {
		add(models.StagePostprocess, "merge_started", "Merging events")
	}
	if p >= phaseReady {
		add(models.StageReadyForReview, "run_ready", "Run ready for review")
	}
	return lines
}
