// civiclens uploads traffic videos to the analysis backend, follows runs
// while they are processed and lets a reviewer decide on the incidents
// found.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/kdimtricp/civiclens/internal/client"
	"github.com/kdimtricp/civiclens/internal/config"
	"github.com/kdimtricp/civiclens/internal/database"
	"github.com/kdimtricp/civiclens/internal/monitoring"
)

const usage = `Usage: civiclens [global flags] <command> [args]

Commands:
  upload <video> [--roi file]          create and start a run
  watch <run_id> [--until-settled]     follow a run, then review it
  events <run_id>                      print incidents and live detections
  decide <run_id> <event_id> [flags]   stage a review decision
  submit <run_id> <event_id>           submit the staged decision
  export <run_id> [--out dir]          save the case pack
  runs                                 list runs created here
  artifact-url <run_id> <path>         print an evidence frame URL

Global flags:
`

type app struct {
	cfg    *config.Config
	api    *client.Client
	out    io.Writer
	dbPath string
}

// db opens the local state database. Commands that need it close it.
func (a *app) db(ctx context.Context) (*database.DB, error) {
	return database.NewDB(ctx, a.dbPath)
}

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"upload":       runUpload,
	"watch":        runWatch,
	"events":       runEvents,
	"decide":       runDecide,
	"submit":       runSubmit,
	"export":       runExport,
	"runs":         runRuns,
	"artifact-url": runArtifactURL,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", client.Message(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, argv []string, out io.Writer) error {
	var (
		configPath string
		apiBase    string
		verbose    bool
	)

	flagSet := pflag.NewFlagSet("civiclens", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a YAML config file (default: $"+config.EnvConfigPath+")")
	flagSet.StringVar(&apiBase, "api", "", "backend base URL (overrides config)")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log polling activity to stderr")
	flagSet.SetInterspersed(false)
	flagSet.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if !verbose {
		monitoring.SetLogger(nil)
	} else {
		monitoring.SetLogger(log.New(os.Stderr, "", log.LstdFlags).Printf)
	}

	args := flagSet.Args()
	if len(args) == 0 {
		flagSet.Usage()
		return errors.New("no command given")
	}

	cmd, ok := commands[args[0]]
	if !ok {
		flagSet.Usage()
		return fmt.Errorf("unknown command %q", args[0])
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if apiBase != "" {
		cfg.API.BaseURL = apiBase
	}

	a := &app{
		cfg:    cfg,
		api:    client.New(cfg.API.BaseURL, cfg.API.Timeout),
		out:    out,
		dbPath: cfg.Storage.DBPath,
	}
	return cmd(ctx, a, args[1:])
}
