package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/kdimtricp/civiclens/internal/database"
	"github.com/kdimtricp/civiclens/internal/export"
	"github.com/kdimtricp/civiclens/internal/logtail"
	"github.com/kdimtricp/civiclens/internal/models"
	"github.com/kdimtricp/civiclens/internal/reconcile"
	"github.com/kdimtricp/civiclens/internal/review"
	"github.com/kdimtricp/civiclens/internal/session"
	"github.com/kdimtricp/civiclens/internal/storage"
	"github.com/kdimtricp/civiclens/internal/tracker"
)

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false
	return fs
}

func parseArgs(fs *pflag.FlagSet, args []string, want int, usage string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != want {
		return nil, fmt.Errorf("usage: civiclens %s", usage)
	}
	return fs.Args(), nil
}

func (a *app) sessionConfig() session.Config {
	p := a.cfg.Polling
	return session.Config{
		Tracker: tracker.Config{
			ActiveInterval:   p.StatusActive,
			SettledInterval:  p.StatusSettled,
			FollowAfterReady: p.FollowAfterReady,
		},
		Reconcile: reconcile.Config{ActiveInterval: p.ReviewActive, SettledInterval: p.ReviewSettled},
		Logs:      logtail.Config{Interval: p.Logs, Tail: p.LogTail},
	}
}

func runUpload(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("upload")
	roiPath := fs.String("roi", "", "ROI configuration JSON file")
	rest, err := parseArgs(fs, args, 1, "upload <video> [--roi file]")
	if err != nil {
		return err
	}
	videoPath := rest[0]

	var roi []byte
	if *roiPath != "" {
		if roi, err = os.ReadFile(*roiPath); err != nil {
			return fmt.Errorf("failed to read ROI config: %w", err)
		}
	}

	video, err := os.Open(videoPath)
	if err != nil {
		return fmt.Errorf("failed to open video: %w", err)
	}
	defer video.Close()

	runID, err := a.api.CreateRun(ctx, filepath.Base(videoPath), video, roi)
	if err != nil {
		return err
	}
	if err := a.api.StartRun(ctx, runID); err != nil {
		return err
	}

	db, err := a.db(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.NewRunRepository(db).Insert(ctx, models.NewRun(runID, filepath.Base(videoPath), a.api.BaseURL())); err != nil {
		return err
	}

	fmt.Fprintln(a.out, runID)
	return nil
}

func runWatch(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("watch")
	untilSettled := fs.Bool("until-settled", false, "exit once review results are final")
	refresh := fs.Duration("refresh", time.Second, "redraw interval")
	rest, err := parseArgs(fs, args, 1, "watch <run_id> [--until-settled]")
	if err != nil {
		return err
	}

	db, err := a.db(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	packs, err := storage.NewLocalStorage(a.cfg.Storage.ExportDir)
	if err != nil {
		return err
	}

	s := session.New(a.api, rest[0], a.sessionConfig(), database.NewDraftRepo(db), packs)
	s.Start(ctx)
	defer s.Stop()

	ticker := time.NewTicker(*refresh)
	defer ticker.Stop()

	last := ""
	draw := func() session.Snapshot {
		snap := s.Snapshot()
		var out string
		if snap.Screen == session.ScreenReview {
			out = renderReview(snap.RunID, snap.Review, a.api.ArtifactURL)
		} else {
			out = renderStatus(snap)
		}
		if out != last {
			fmt.Fprintln(a.out, out)
			last = out
		}
		return snap
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-s.Updates():
			if !ok {
				return nil
			}
			if u.Type == session.UpdateFatal {
				draw()
				return s.Fatal()
			}
		case <-ticker.C:
			snap := draw()
			if snap.Fatal != nil {
				return snap.Fatal
			}
			if *untilSettled && snap.Screen == session.ScreenReview && snap.Review.Settled() && !snap.Review.Provisional {
				return nil
			}
		}
	}
}

func runEvents(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("events")
	rest, err := parseArgs(fs, args, 1, "events <run_id>")
	if err != nil {
		return err
	}

	r := reconcile.New(a.api, rest[0], reconcile.Config{}, nil)
	r.Tick(ctx)
	v := r.View()
	if v.Err != nil && v.Status == nil {
		return v.Err
	}

	fmt.Fprint(a.out, renderReview(rest[0], v, a.api.ArtifactURL))
	return nil
}

func (a *app) submitter(ctx context.Context, runID string) (*review.Submitter, func(), error) {
	db, err := a.db(ctx)
	if err != nil {
		return nil, nil, err
	}
	return review.New(a.api, runID, database.NewDraftRepo(db)), func() { db.Close() }, nil
}

func runDecide(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("decide")
	decision := fs.String("decision", string(models.DecisionAccept), "ACCEPT or REJECT")
	notes := fs.String("notes", "", "reviewer notes")
	includePlate := fs.Bool("include-plate", false, "include the plate number in the case pack")
	rest, err := parseArgs(fs, args, 2, "decide <run_id> <event_id> [--decision ACCEPT|REJECT] [--notes text] [--include-plate]")
	if err != nil {
		return err
	}

	var partial models.PartialDecision
	if fs.Changed("decision") {
		d := models.Decision(*decision)
		partial.Decision = &d
	}
	if fs.Changed("notes") {
		partial.ReviewerNotes = notes
	}
	if fs.Changed("include-plate") {
		partial.IncludePlate = includePlate
	}

	sub, closeDB, err := a.submitter(ctx, rest[0])
	if err != nil {
		return err
	}
	defer closeDB()

	d, err := sub.Stage(ctx, rest[1], partial)
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, renderDecision(d))
	return nil
}

func runSubmit(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("submit")
	rest, err := parseArgs(fs, args, 2, "submit <run_id> <event_id>")
	if err != nil {
		return err
	}

	sub, closeDB, err := a.submitter(ctx, rest[0])
	if err != nil {
		return err
	}
	defer closeDB()

	d, err := sub.Submit(ctx, rest[1])
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, "Submitted "+renderDecision(d))
	return nil
}

func runExport(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("export")
	outDir := fs.String("out", a.cfg.Storage.ExportDir, "directory to save the case pack in")
	rest, err := parseArgs(fs, args, 1, "export <run_id> [--out dir]")
	if err != nil {
		return err
	}
	runID := rest[0]

	status, err := a.api.Status(ctx, runID)
	if err != nil {
		return err
	}
	if !status.State.Reviewable() {
		return fmt.Errorf("run %s is %s: %w", runID, models.DescribeState(status.State).Label, session.ErrExportNotAllowed)
	}

	packs, err := storage.NewLocalStorage(*outDir)
	if err != nil {
		return err
	}

	result, err := export.NewCoordinator(a.api, packs).ExportCasePack(ctx, runID)
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, renderExport(result.Path, result.Size))
	return nil
}

func runRuns(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("runs")
	remote := fs.Bool("remote", false, "list runs known to the backend instead")
	if _, err := parseArgs(fs, args, 0, "runs [--remote]"); err != nil {
		return err
	}

	if *remote {
		runs, err := a.api.ListRuns(ctx)
		if err != nil {
			return err
		}
		for _, r := range runs {
			fmt.Fprintf(a.out, "%-16s %s %3d%%  %s\n", r.RunID, statusPill(&r), r.ProgressPct, models.StageLabel(r.Stage))
		}
		return nil
	}

	db, err := a.db(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := database.NewRunRepository(db).List(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, renderRuns(runs))
	return nil
}

func runArtifactURL(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("artifact-url")
	rest, err := parseArgs(fs, args, 2, "artifact-url <run_id> <path>")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, a.api.ArtifactURL(rest[0], rest[1]))
	return nil
}
