package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/civiclens/internal/client"
	"github.com/kdimtricp/civiclens/internal/models"
	"github.com/kdimtricp/civiclens/internal/review"
	"github.com/kdimtricp/civiclens/internal/sim"
)

func init() {
	log.SetOutput(io.Discard)
}

type cli struct {
	t       *testing.T
	config  string
	packDir string
}

func newCLI(t *testing.T, opts sim.Options) *cli {
	t.Helper()
	for _, key := range []string{"CIVICLENS_CONFIG", "CIVICLENS_API_BASE", "CIVICLENS_DB_PATH", "CIVICLENS_EXPORT_DIR", "CIVICLENS_LOG_TAIL"} {
		t.Setenv(key, "")
	}

	srv := httptest.NewServer(sim.NewRouter(sim.NewServer(opts)))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	packDir := filepath.Join(dir, "packs")
	body := fmt.Sprintf(`
api:
  base_url: %s
  timeout: 5s
polling:
  status_active: 5ms
  status_settled: 10ms
  review_active: 5ms
  review_settled: 10ms
  logs: 5ms
storage:
  db_path: %s
  export_dir: %s
`, srv.URL, filepath.Join(dir, "state.db"), packDir)
	path := filepath.Join(dir, "civiclens.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	return &cli{t: t, config: path, packDir: packDir}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	err := run(ctx, append([]string{"--config", c.config}, args...), &out)
	return out.String(), err
}

func (c *cli) upload() string {
	c.t.Helper()
	video := filepath.Join(c.t.TempDir(), "junction.mp4")
	require.NoError(c.t, os.WriteFile(video, []byte("not really a video"), 0644))

	out, err := c.run("upload", video)
	require.NoError(c.t, err)
	return strings.TrimSpace(out)
}

func TestCLIReviewAndExport(t *testing.T) {
	c := newCLI(t, sim.Options{Step: 0})
	runID := c.upload()
	assert.True(t, strings.HasPrefix(runID, "run_"))

	out, err := c.run("runs")
	require.NoError(t, err)
	assert.Contains(t, out, runID)
	assert.Contains(t, out, "junction.mp4")

	out, err = c.run("watch", runID, "--until-settled", "--refresh", "10ms")
	require.NoError(t, err)
	assert.Contains(t, out, "evt_001")
	assert.Contains(t, out, "evt_002")

	out, err = c.run("events", runID)
	require.NoError(t, err)
	assert.Less(t, strings.Index(out, "evt_002"), strings.Index(out, "evt_001"), "incidents are listed by start time")

	out, err = c.run("decide", runID, "evt_001", "--decision", "REJECT", "--notes", "plate unreadable")
	require.NoError(t, err)
	assert.Contains(t, out, "REJECT")
	assert.Contains(t, out, "plate unreadable")

	out, err = c.run("submit", runID, "evt_001")
	require.NoError(t, err)
	assert.Contains(t, out, "Submitted")

	out, err = c.run("export", runID)
	require.NoError(t, err)
	assert.Contains(t, out, "case_pack_"+runID+".zip")
	_, err = os.Stat(filepath.Join(c.packDir, "case_pack_"+runID+".zip"))
	assert.NoError(t, err)

	out, err = c.run("runs", "--remote")
	require.NoError(t, err)
	assert.Contains(t, out, runID)
}

func TestCLIDecideRejectsUnknownDecision(t *testing.T) {
	c := newCLI(t, sim.Options{Step: 0})
	runID := c.upload()

	_, err := c.run("decide", runID, "evt_001", "--decision", "MAYBE")
	assert.ErrorIs(t, err, review.ErrInvalidDecision)
}

func TestCLIWatchReportsFailedRun(t *testing.T) {
	c := newCLI(t, sim.Options{Step: 0, FailAt: models.StageGeminiPro})
	runID := c.upload()

	_, err := c.run("watch", runID, "--until-settled", "--refresh", "10ms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_PRO")
}

func TestCLIWatchUnknownRun(t *testing.T) {
	c := newCLI(t, sim.Options{Step: time.Hour})

	start := time.Now()
	_, err := c.run("watch", "run_doesnotexist", "--refresh", "10ms")
	require.Error(t, err)
	assert.Contains(t, client.Message(err), "not found")

	var se *client.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Status)
	assert.Less(t, time.Since(start), 4*time.Second, "watch must return on a fatal error, not wait for cancellation")
}

func TestCLIUsageErrors(t *testing.T) {
	c := newCLI(t, sim.Options{})

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no command", nil, "no command given"},
		{"unknown command", []string{"frobnicate"}, `unknown command "frobnicate"`},
		{"missing run id", []string{"events"}, "usage: civiclens events"},
		{"extra args", []string{"submit", "run_1", "evt_1", "evt_2"}, "usage: civiclens submit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.run(tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestArtifactURL(t *testing.T) {
	c := newCLI(t, sim.Options{})

	out, err := c.run("artifact-url", "run_abc", "frames/pkt_001_0.jpg")
	require.NoError(t, err)
	assert.Contains(t, out, "/api/runs/run_abc/artifact?path=frames")
}
