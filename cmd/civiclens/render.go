package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/kdimtricp/civiclens/internal/client"
	"github.com/kdimtricp/civiclens/internal/models"
	"github.com/kdimtricp/civiclens/internal/reconcile"
	"github.com/kdimtricp/civiclens/internal/session"
)

var toneColors = map[string]lipgloss.Color{
	"blue":   lipgloss.Color("#3b82f6"),
	"cyan":   lipgloss.Color("#06b6d4"),
	"green":  lipgloss.Color("#22c55e"),
	"orange": lipgloss.Color("#f97316"),
	"red":    lipgloss.Color("#ef4444"),
	"gray":   lipgloss.Color("#9ca3af"),
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	faintStyle = lipgloss.NewStyle().Faint(true)
	errorStyle = lipgloss.NewStyle().Foreground(toneColors["red"]).Bold(true)
)

func toneColor(tone string) lipgloss.Color {
	if c, ok := toneColors[tone]; ok {
		return c
	}
	return toneColors["gray"]
}

func pill(label, tone string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#ffffff")).
		Background(toneColor(tone)).
		Padding(0, 1).
		Render(label)
}

func progressBar(pct, width int) string {
	pct = max(0, min(100, pct))
	filled := pct * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func renderError(err error) string {
	if err == nil {
		return ""
	}
	return errorStyle.Render("! "+client.Message(err)) + "\n"
}

func renderStatus(snap session.Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s\n", titleStyle.Render("Run "+snap.RunID), statusPill(snap.Status))
	if snap.Status != nil {
		fmt.Fprintf(&b, "%s %3d%%  %s\n", progressBar(snap.Status.ProgressPct, 30), snap.Status.ProgressPct, models.StageLabel(snap.Status.Stage))
		if snap.Status.StageMessage != "" {
			fmt.Fprintf(&b, "%s\n", faintStyle.Render(snap.Status.StageMessage))
		}
		if snap.Status.State == models.StateFailed && snap.Status.ErrorMessage != "" {
			fmt.Fprintf(&b, "Failed in %s: %s\n", models.StageLabel(snap.Status.FailedStage), snap.Status.ErrorMessage)
		}
	} else {
		b.WriteString(faintStyle.Render("Waiting for first status...") + "\n")
	}

	s := snap.Summary
	fmt.Fprintf(&b, "Clips checked: %d  Potential incidents: %d  Ready for review: %d  Needs extra check: %d\n",
		s.ClipsChecked, s.PotentialIncidents, s.ReadyForReview, s.NeedsExtraCheck)

	if len(snap.Logs) > 0 {
		b.WriteString(titleStyle.Render("Recent activity") + "\n")
		for _, l := range snap.Logs {
			fmt.Fprintf(&b, "  %s %-20s %s\n", faintStyle.Render(l.TS), models.StageLabel(models.Stage(l.Stage)), l.Message)
		}
	}

	b.WriteString(renderError(snap.Err))
	return b.String()
}

func statusPill(status *models.RunStatus) string {
	if status == nil {
		d := models.DescribeState("")
		return pill(d.Label, d.Tone)
	}
	d := models.DescribeState(status.State)
	return pill(d.Label, d.Tone)
}

func renderReview(runID string, v reconcile.View, artifactURL func(runID, path string) string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s\n", titleStyle.Render("Review "+runID), statusPill(v.Status))

	switch {
	case v.Loading():
		b.WriteString(faintStyle.Render("Loading incidents...") + "\n")
		return b.String()
	case v.Provisional:
		b.WriteString(pill("Provisional", "orange") + faintStyle.Render(" results may still change") + "\n")
	}

	fmt.Fprintf(&b, "%d incidents, %d need a closer look\n", len(v.SortedEvents), v.UncertainCount())

	for _, e := range v.SortedEvents {
		p := models.PriorityFromRisk(e.RiskScore)
		fmt.Fprintf(&b, "\n%s %s  %s  %.1fs-%.1fs  %s\n",
			pill(p.Label, p.Tone), titleStyle.Render(models.EventTypeLabel(e.EventType)), e.EventID,
			e.StartTime, e.EndTime, faintStyle.Render(models.SourceLabel(e.SourceStage)))
		if e.ExplanationShort != "" {
			fmt.Fprintf(&b, "  %s\n", e.ExplanationShort)
		}
		if e.PlateText != nil {
			fmt.Fprintf(&b, "  Plate: %s\n", *e.PlateText)
		}
		if e.Uncertain {
			reason := "flagged uncertain"
			if e.UncertaintyReason != nil {
				reason = *e.UncertaintyReason
			}
			fmt.Fprintf(&b, "  %s %s\n", pill("Check", "orange"), reason)
		}
		if pkt, ok := v.TraceByPacketID[e.PacketID]; ok && artifactURL != nil {
			for _, path := range pkt.AnchorPaths() {
				fmt.Fprintf(&b, "  %s\n", faintStyle.Render(artifactURL(runID, path)))
			}
		}
	}

	if v.AwaitingFinalEvents() {
		b.WriteString("\n" + faintStyle.Render("No final incidents yet. Live detections:") + "\n")
	}
	if len(v.LivePackets) > 0 {
		b.WriteString("\n" + titleStyle.Render("Live detections") + "\n")
		for _, pkt := range v.LivePackets {
			score := "unscored"
			if pkt.Scored() {
				score = fmt.Sprintf("%.2f", pkt.Score())
			}
			outcome := "in progress"
			switch {
			case pkt.FinalEventID != nil:
				outcome = "-> " + *pkt.FinalEventID
			case pkt.DroppedReason != nil:
				outcome = "dropped: " + *pkt.DroppedReason
			}
			fmt.Fprintf(&b, "  %-8s %-9s %-20s %s\n", pkt.PacketID, score, models.EventTypeLabel(pkt.Local.ProposedEventType), outcome)
		}
	}

	if v.ExportAllowed() {
		b.WriteString("\n" + faintStyle.Render("Case pack export available.") + "\n")
	}
	b.WriteString(renderError(v.Err))
	return b.String()
}

func renderRuns(runs []models.Run) string {
	if len(runs) == 0 {
		return "No runs recorded yet\n"
	}
	var b strings.Builder
	for _, r := range runs {
		fmt.Fprintf(&b, "%-16s %-30s %s\n", r.ID, r.VideoName, faintStyle.Render(humanize.Time(r.CreatedAt)))
	}
	return b.String()
}

func renderDecision(d models.ReviewDecision) string {
	tone := "green"
	if d.Decision == models.DecisionReject {
		tone = "red"
	}
	line := fmt.Sprintf("%s %s", pill(string(d.Decision), tone), d.EventID)
	if d.IncludePlate {
		line += "  (plate included)"
	}
	if d.ReviewerNotes != "" {
		line += "\n  " + d.ReviewerNotes
	}
	return line + "\n"
}

func renderExport(path string, size int64) string {
	return fmt.Sprintf("Saved %s (%s)\n", path, humanize.Bytes(uint64(size)))
}
