// Command sweep runs one reminder sweep against the configured database and
// exits. It is the cron-friendly alternative to POST /v1/cron/reminders.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/zlog"

	"github.com/Patrick-Flanagan-13/parent-invite-app/cmd/buildCFG"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/service"
)

// errFailedSends makes the process exit non-zero so cron reports the run.
var errFailedSends = errors.New("some reminders could not be sent")

type options struct {
	configPath string
	envPath    string
	now        string
	dryRun     bool
}

func main() {
	var opts options
	pflag.StringVar(&opts.configPath, "config", "config.yaml", "path to the YAML config file")
	pflag.StringVar(&opts.envPath, "env", "", "optional .env file")
	pflag.StringVar(&opts.now, "now", "", "run as if the current time were this RFC3339 instant")
	pflag.BoolVar(&opts.dryRun, "dry-run", false, "list the signups that would be reminded without sending")
	pflag.Parse()

	zlog.Init()
	log := zlog.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, opts, os.Stdout, &log)
	stop()
	if err != nil {
		log.Fatal().Err(err).Msg("reminder sweep failed")
	}
}

func run(ctx context.Context, opts options, out io.Writer, log *zerolog.Logger) error {
	now := time.Now()
	if opts.now != "" {
		t, err := time.Parse(time.RFC3339, opts.now)
		if err != nil {
			return fmt.Errorf("invalid --now: %w", err)
		}
		now = t
	}

	cfg := config.New()
	if err := cfg.Load(opts.configPath, opts.envPath, ""); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if driver := buildCFG.BuildStorageConfig(cfg).Driver; driver != "postgres" {
		return fmt.Errorf("storage.driver is %q, the sweep command needs postgres", driver)
	}

	repository, closeDB, err := buildCFG.OpenRepository(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeDB()

	serverCfg := buildCFG.BuildServerConfig(cfg, log)
	reminderCfg := buildCFG.BuildReminderConfig(cfg, log)
	reminders := service.NewReminderService(repository, buildCFG.DirectDispatcher(cfg, serverCfg, log), log, service.Config{
		ReminderLead:     reminderCfg.Lead,
		ReminderWindow:   reminderCfg.Window,
		SweepConcurrency: reminderCfg.Concurrency,
	})

	if opts.dryRun {
		from, to := reminders.Window(now)
		candidates, err := repository.ListReminderCandidates(ctx, from, to)
		if err != nil {
			return fmt.Errorf("list reminder candidates: %w", err)
		}
		for _, c := range candidates {
			fmt.Fprintf(out, "%s\t%s\t%s\n", c.Slot.StartTime.In(serverCfg.Location).Format(time.RFC3339), c.Signup.Email, c.OwnerName)
		}
		fmt.Fprintf(out, "%d signup(s) in [%s, %s)\n", len(candidates), from.Format(time.RFC3339), to.Format(time.RFC3339))
		return nil
	}

	res, err := reminders.RunSweep(ctx, now)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "processed=%d sent=%d failed=%d skipped=%d\n", res.Processed, res.Sent, res.Failed, res.Skipped)
	if res.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", errFailedSends, res.Failed, res.Processed)
	}
	return nil
}
