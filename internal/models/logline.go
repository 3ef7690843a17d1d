package models

type LogLine struct {
	TS      string `json:"ts,omitempty"`
	Stage   string `json:"stage"`
	Level   string `json:"level,omitempty"`
	Event   string `json:"event"`
	Message string `json:"message"`
}

// LogsPage is the body of GET /api/runs/{id}/logs.
type LogsPage struct {
	Lines []LogLine `json:"lines"`
}
