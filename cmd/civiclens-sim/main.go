// civiclens-sim serves a scripted analysis backend for local use and demos.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/kdimtricp/civiclens/internal/models"
	"github.com/kdimtricp/civiclens/internal/sim"
	"github.com/kdimtricp/civiclens/internal/storage"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	addr := pflag.String("addr", ":"+getEnv("PORT", "8000"), "listen address")
	step := pflag.Duration("step", sim.DefaultStep, "time spent in each pipeline stage")
	failAt := pflag.String("fail-at", "", "fail runs on reaching this stage (e.g. GEMINI_PRO)")
	uploadDir := pflag.String("upload-dir", getEnv("UPLOAD_DIR", ""), "keep uploaded videos in this directory")
	pflag.Parse()

	opts := sim.Options{Step: *step, FailAt: models.Stage(*failAt)}
	if *uploadDir != "" {
		uploads, err := storage.NewLocalStorage(*uploadDir)
		if err != nil {
			log.Fatal("Failed to initialize storage:", err)
		}
		opts.Uploads = uploads
		log.Printf("Upload directory: %s", *uploadDir)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           sim.NewRouter(sim.NewServer(opts)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Simulator starting on %s (step %s)", *addr, *step)
		if *failAt != "" {
			log.Printf("Runs will fail at stage %s", *failAt)
		}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown failed: %v", err)
	}
}
