package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kdimtricp/civiclens/internal/models"
	"github.com/kdimtricp/civiclens/internal/monitoring"
)

const maxUploadSize = 512 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("[SIM] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail any) {
	writeJSON(w, status, map[string]any{"detail": detail})
}

type fieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) CreateRunHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, []fieldError{{
			Loc: []string{"body", "video"}, Msg: "Field required", Type: "missing",
		}})
		return
	}
	defer file.Close()

	var roi []byte
	if raw := r.FormValue("roi_config_json"); raw != "" {
		if !json.Valid([]byte(raw)) {
			writeError(w, http.StatusBadRequest, "roi_config_json is not valid JSON")
			return
		}
		roi = []byte(raw)
	}

	id := s.newID()
	videoName := filepath.Base(header.Filename)
	if videoName == "." || videoName == "/" {
		videoName = "upload.mp4"
	}

	stored := ""
	if s.opts.Uploads != nil {
		saved, err := s.opts.Uploads.Save(id+"_"+videoName, file)
		if err != nil {
			monitoring.Logf("[SIM] Failed to store upload for %s: %v", id, err)
			writeError(w, http.StatusInternalServerError, "failed to store video")
			return
		}
		stored = saved.Path
	}

	s.runs.add(&run{
		id:        id,
		videoName: videoName,
		videoFile: stored,
		roiConfig: roi,
		createdAt: s.opts.Now(),
		reviews:   make(map[string]models.ReviewDecision),
	})
	monitoring.Logf("[SIM] Created run %s for %s", id, videoName)

	writeJSON(w, http.StatusOK, map[string]string{"run_id": id})
}

func (s *Server) StartRunHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")

	result := "STARTED"
	found := s.runs.with(id, func(run *run) {
		if run.started {
			result = "ALREADY_RUNNING"
			return
		}
		run.started = true
		run.startedAt = s.opts.Now()
	})
	if !found {
		writeError(w, http.StatusNotFound, "run_id not found")
		return
	}

	monitoring.Logf("[SIM] Start %s: %s", id, result)
	writeJSON(w, http.StatusOK, map[string]string{"status": result})
}

func (s *Server) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	runs := []models.RunStatus{}
	s.runs.each(func(run *run) {
		st := s.statusOf(run)
		runs = append(runs, models.RunStatus{
			RunID:       st.RunID,
			State:       st.State,
			Stage:       st.Stage,
			ProgressPct: st.ProgressPct,
		})
	})
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	var status models.RunStatus
	if !s.runs.with(chi.URLParam(r, "runID"), func(run *run) { status = s.statusOf(run) }) {
		writeError(w, http.StatusNotFound, "run_id not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) EventsHandler(w http.ResponseWriter, r *http.Request) {
	var page models.EventsPage
	found := s.runs.with(chi.URLParam(r, "runID"), func(run *run) {
		if s.statusOf(run).State.Reviewable() {
			page = models.EventsPage{Events: finalEvents(), Provisional: false}
			return
		}
		page = models.EventsPage{Events: liveEvents(s.visiblePhase(run)), Provisional: true}
	})
	if !found {
		writeError(w, http.StatusNotFound, "run_id not found")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) TraceHandler(w http.ResponseWriter, r *http.Request) {
	var page models.TracePage
	found := s.runs.with(chi.URLParam(r, "runID"), func(run *run) {
		final := s.statusOf(run).State.Reviewable()
		p := s.visiblePhase(run)
		if final {
			p = phaseReady
		}
		pkts := packets(p)
		page = models.TracePage{
			Summary:     summarize(pkts),
			Packets:     pkts,
			Provisional: !final,
		}
		if !final {
			page.Message = "Live trace generated from packets and verification decisions."
		}
	})
	if !found {
		writeError(w, http.StatusNotFound, "run_id not found")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) LogsHandler(w http.ResponseWriter, r *http.Request) {
	tail := 50
	if raw := r.URL.Query().Get("tail"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, []fieldError{{
				Loc: []string{"query", "tail"}, Msg: "Input should be a valid integer", Type: "int_parsing",
			}})
			return
		}
		tail = n
	}
	tail = max(1, min(500, tail))

	var lines []models.LogLine
	found := s.runs.with(chi.URLParam(r, "runID"), func(run *run) {
		if !run.started {
			return
		}
		lines = logLines(s.visiblePhase(run))
		if status := s.statusOf(run); status.State == models.StateFailed {
			lines = append(lines, models.LogLine{
				Stage:   string(status.FailedStage),
				Level:   "ERROR",
				Event:   "stage_failed",
				Message: status.ErrorMessage,
			})
		}
	})
	if !found {
		writeError(w, http.StatusNotFound, "run_id not found")
		return
	}

	if len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	if lines == nil {
		lines = []models.LogLine{}
	}
	writeJSON(w, http.StatusOK, models.LogsPage{Lines: lines})
}

func (s *Server) ReviewHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	eventID := chi.URLParam(r, "eventID")

	var d models.ReviewDecision
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid review payload")
		return
	}
	if !d.Decision.Valid() {
		writeError(w, http.StatusUnprocessableEntity, []fieldError{{
			Loc: []string{"body", "decision"}, Msg: "Input should be 'ACCEPT' or 'REJECT'", Type: "enum",
		}})
		return
	}
	d.EventID = eventID

	if !s.runs.with(id, func(run *run) { run.putReview(d) }) {
		writeError(w, http.StatusNotFound, "run_id not found")
		return
	}

	monitoring.Logf("[SIM] Review %s/%s: %s", id, eventID, d.Decision)
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

var errNotReady = errors.New("run is not ready for export")

func (s *Server) ExportHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")

	var (
		data []byte
		err  error
	)
	found := s.runs.with(id, func(run *run) {
		if !s.statusOf(run).State.Reviewable() {
			err = errNotReady
			return
		}
		data, err = buildCasePack(run, logLines(phaseReady), s.opts.Now())
		if err == nil {
			run.exported = true
		}
	})
	if !found {
		writeError(w, http.StatusNotFound, "run_id not found")
		return
	}
	if errors.Is(err, errNotReady) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="case_pack.zip"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) ArtifactHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	requested := r.URL.Query().Get("path")

	clean := path.Clean("/" + requested)[1:]
	if requested == "" || strings.HasPrefix(requested, "/") || strings.Contains(requested, "..") {
		writeError(w, http.StatusBadRequest, "invalid artifact path")
		return
	}

	var visible bool
	found := s.runs.with(id, func(run *run) {
		for _, p := range packets(s.visiblePhase(run)) {
			for _, a := range p.AnchorFrames {
				if a.Path == clean {
					visible = true
				}
			}
		}
	})
	if !found {
		writeError(w, http.StatusNotFound, "run_id not found")
		return
	}
	if !visible {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	w.Write(placeholderFrame(clean))
}

// placeholderFrame returns a stand-in JPEG body unique to name.
func placeholderFrame(name string) []byte {
	return []byte(fmt.Sprintf("\xff\xd8\xff\xe0 frame %s \xff\xd9", name))
}
