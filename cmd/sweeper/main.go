// Command sweeper releases expired reservation holds once and exits.  It
// is meant for cron or a Kubernetes CronJob when the API runs with
// BOOKING_SWEEP_INTERVAL=0.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/iliyamo/event-ticketing/internal/clock"
	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/service"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	envFile string
	batch   int
	timeout time.Duration
	migrate bool
}

func newFlagSet(o *options) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("sweeper", pflag.ContinueOnError)
	flagSet.StringVar(&o.envFile, "env-file", ".env", "dotenv file to load before reading DB_* variables (missing file is ignored)")
	flagSet.IntVar(&o.batch, "batch", 0, "page size when listing expired bookings; the sweep keeps paging until none remain (default BOOKING_SWEEP_BATCH)")
	flagSet.DurationVar(&o.timeout, "timeout", time.Minute, "abort the sweep after this long")
	flagSet.BoolVar(&o.migrate, "migrate", false, "apply the schema before sweeping")
	return flagSet
}

func parseArgs(args []string) (options, error) {
	var o options
	flagSet := newFlagSet(&o)
	if err := flagSet.Parse(args); err != nil {
		return o, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return o, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return o, nil
}

func run(args []string) error {
	o, err := parseArgs(args)
	if err != nil {
		return err
	}
	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", o.envFile, err)
	}
	if o.batch <= 0 {
		o.batch = config.LoadBookingConfig().SweepBatch
	}

	dbCfg := config.LoadDBConfig()
	db, err := database.Open(dbCfg.User, dbCfg.Pass, dbCfg.Host, dbCfg.Port, dbCfg.Name)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	if o.migrate {
		if err := database.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	n, err := service.NewReclaimer(repository.NewMySQLStore(db), clock.Real(), o.batch).SweepNow(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	log.Printf("sweeper: released %d expired reservations", n)
	return nil
}
