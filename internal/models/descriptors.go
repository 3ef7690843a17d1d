package models

// Cadence classifies how often a run should be re-polled.
type Cadence int

const (
	// CadenceActive applies while the backend is still progressing the run.
	CadenceActive Cadence = iota
	// CadenceSettled applies once the run is reviewable or failed.
	CadenceSettled
)

// StateDescriptor is everything the client derives from a run state.
type StateDescriptor struct {
	Label       string
	HealthLabel string
	Tone        string
	Cadence     Cadence
	Known       bool
}

var stateDescriptors = map[RunState]StateDescriptor{
	StatePending:        {Label: "Queued", HealthLabel: "Waiting", Tone: "blue", Cadence: CadenceActive, Known: true},
	StateRunning:        {Label: "Processing", HealthLabel: "Processing", Tone: "cyan", Cadence: CadenceActive, Known: true},
	StateReadyForReview: {Label: "Ready to review", HealthLabel: "Ready", Tone: "green", Cadence: CadenceSettled, Known: true},
	StateExported:       {Label: "Downloaded", HealthLabel: "Complete", Tone: "blue", Cadence: CadenceSettled, Known: true},
	StateFailed:         {Label: "Needs attention", HealthLabel: "Issue found", Tone: "red", Cadence: CadenceSettled, Known: true},
}

// unknownState is returned for values the backend may add later. It keeps
// polling at the active cadence.
var unknownState = StateDescriptor{Label: "Unknown", HealthLabel: "Waiting", Tone: "gray", Cadence: CadenceActive}

func DescribeState(s RunState) StateDescriptor {
	if d, ok := stateDescriptors[s]; ok {
		return d
	}
	return unknownState
}

var stageLabels = map[Stage]string{
	StageIngest:         "Preparing video",
	StageLocalProposals: "Checking for incidents",
	StageGeminiFlash:    "AI review (first pass)",
	StageGeminiPro:      "AI review (deep check)",
	StagePostprocess:    "Finalizing incident list",
	StageReadyForReview: "Ready for your review",
	StageExport:         "Building report package",
}

func StageLabel(s Stage) string {
	if l, ok := stageLabels[s]; ok {
		return l
	}
	return "Processing"
}

var eventTypeLabels = map[EventType]string{
	EventNoHelmet:         "No Helmet",
	EventRedLightJump:     "Red Light Jump",
	EventWrongSideDriving: "Wrong-Side Driving",
	EventRecklessDriving:  "Reckless Driving",
}

func EventTypeLabel(t EventType) string {
	if l, ok := eventTypeLabels[t]; ok {
		return l
	}
	return "Potential incident"
}

var sourceLabels = map[string]string{
	"GEMINI_FLASH":  "AI first pass",
	"GEMINI_PRO":    "AI deep check",
	"POSTPROCESS":   "Final merge",
	"FLASH_LIVE":    "AI first pass",
	"PRO_LIVE":      "AI deep check",
	"LOCAL_PENDING": "Local detection",
}

func SourceLabel(src string) string {
	if l, ok := sourceLabels[src]; ok {
		return l
	}
	return "Pipeline"
}
