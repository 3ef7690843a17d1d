package sim

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/kdimtricp/civiclens/internal/models"
)

type casePackSummary struct {
	RunID       string `json:"run_id"`
	EventCount  int    `json:"event_count"`
	Reviewed    int    `json:"reviewed"`
	GeneratedAt string `json:"generated_at"`
}

// buildCasePack zips the final events, the reviewer decisions, the log and
// a small HTML report. Must be called with the store lock held.
func buildCasePack(r *run, logs []models.LogLine, now time.Time) ([]byte, error) {
	events := finalEvents()
	reviews := r.reviewList()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	add := func(name string, data []byte) error {
		f, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
		_, err = f.Write(data)
		return err
	}
	addJSON := func(name string, v any) error {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", name, err)
		}
		return add(name, data)
	}

	type reviewEntry struct {
		EventID string `json:"event_id"`
		models.ReviewDecision
	}
	entries := make([]reviewEntry, 0, len(reviews))
	for _, d := range reviews {
		entries = append(entries, reviewEntry{EventID: d.EventID, ReviewDecision: d})
	}

	var logBuf bytes.Buffer
	enc := json.NewEncoder(&logBuf)
	for _, l := range logs {
		if err := enc.Encode(l); err != nil {
			return nil, fmt.Errorf("failed to encode log line: %w", err)
		}
	}

	steps := []func() error{
		func() error { return addJSON("events_final.json", models.EventsPage{Events: events}) },
		func() error { return addJSON("review.json", map[string]any{"decisions": entries}) },
		func() error { return add("pipeline.log.jsonl", logBuf.Bytes()) },
		func() error { return add("export/report.html", []byte(reportHTML(events, r.reviews, now))) },
		func() error {
			return addJSON("export/summary.json", casePackSummary{
				RunID:       r.id,
				EventCount:  len(events),
				Reviewed:    len(reviews),
				GeneratedAt: now.UTC().Format(time.RFC3339),
			})
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish case pack: %w", err)
	}
	return buf.Bytes(), nil
}

func reportHTML(events []models.Event, reviews map[string]models.ReviewDecision, now time.Time) string {
	var b strings.Builder
	b.WriteString("<html><body>\n<h1>Civic Lens Case Report</h1>\n")
	fmt.Fprintf(&b, "<p>Generated: %s</p>\n", now.UTC().Format(time.RFC3339))
	b.WriteString(`<table border="1" cellspacing="0" cellpadding="6">` + "\n")
	b.WriteString("<tr><th>ID</th><th>Type</th><th>Window(s)</th><th>Conf</th><th>Uncertain</th><th>Decision</th><th>Notes</th></tr>\n")
	for _, e := range events {
		decision, notes := "PENDING", ""
		if d, ok := reviews[e.EventID]; ok {
			decision, notes = string(d.Decision), d.ReviewerNotes
		}
		uncertain := "NO"
		if e.Uncertain {
			uncertain = "YES"
		}
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%.2f-%.2f</td><td>%.2f</td><td>%s</td><td>%s</td><td>%s</td></tr>\n",
			html.EscapeString(e.EventID), html.EscapeString(string(e.EventType)), e.StartTime, e.EndTime,
			e.Confidence, uncertain, decision, html.EscapeString(notes))
	}
	b.WriteString("</table>\n</body></html>\n")
	return b.String()
}
