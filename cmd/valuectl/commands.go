package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"

	"github.com/ndewijer/portfolio-valuation/internal/app"
	"github.com/ndewijer/portfolio-valuation/internal/config"
	"github.com/ndewijer/portfolio-valuation/internal/database"
	"github.com/ndewijer/portfolio-valuation/internal/logger"
	"github.com/ndewijer/portfolio-valuation/internal/service"
)

var commands = []subcommands.Command{
	&migrateCmd{},
	&pricesCmd{},
	&positionsCmd{},
	&snapshotCmd{},
	&benchmarksCmd{},
	&encryptCmd{},
}

var stdout io.Writer = os.Stdout

// session is an opened database with the services wired over it.
type session struct {
	app   *app.App
	close func()
}

func openSession() (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.NewWithWriter(logger.Config{Level: cfg.Log.Level, Pretty: true}, os.Stderr)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	a, err := app.New(cfg, db, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &session{app: a, close: func() {
		a.Close()
		db.Close()
	}}, nil
}

func printJSON(v any) subcommands.ExitStatus {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply pending database migrations" }
func (*migrateCmd) Usage() string {
	return `valuectl migrate

  Applies the embedded schema migrations to DB_PATH and prints the version.
`
}
func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	v, err := database.SchemaVersion(db)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "schema at version %d\n", v)
	return subcommands.ExitSuccess
}

type pricesCmd struct {
	maxAge time.Duration
	fresh  bool
}

func (*pricesCmd) Name() string     { return "prices" }
func (*pricesCmd) Synopsis() string { return "resolve current prices for instruments" }
func (*pricesCmd) Usage() string {
	return `valuectl prices [-max-age <duration>] [-fresh] <instrument-id>...

  Resolves each instrument through the cache, snapshot and provider tiers
  and prints prices, per-instrument errors and batch metrics as JSON.
`
}

func (c *pricesCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.maxAge, "max-age", 0, "Maximum acceptable cache age (defaults to the cache TTL).")
	f.BoolVar(&c.fresh, "fresh", false, "Bypass the cache and snapshot tiers.")
}

func (c *pricesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "at least one instrument id is required")
		return subcommands.ExitUsageError
	}
	s, err := openSession()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer s.close()

	res, err := s.app.Quotes.ResolvePrices(ctx, f.Args(), service.ResolveOptions{MaxAge: c.maxAge, ForceFresh: c.fresh})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return printJSON(res)
}

type positionsCmd struct {
	all   bool
	fresh bool
}

func (*positionsCmd) Name() string     { return "positions" }
func (*positionsCmd) Synopsis() string { return "print the positions of a portfolio" }
func (*positionsCmd) Usage() string {
	return `valuectl positions [-all] [-fresh] <portfolio-id>

  Replays the portfolio ledger and values each position at current prices.
`
}

func (c *positionsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.all, "all", false, "Include closed positions.")
	f.BoolVar(&c.fresh, "fresh", false, "Bypass the cache and snapshot tiers.")
}

func (c *positionsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "exactly one portfolio id is required")
		return subcommands.ExitUsageError
	}
	s, err := openSession()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer s.close()

	positions, err := s.app.Positions.ComputePositions(ctx, f.Arg(0), service.PositionOptions{
		IncludeClosed: c.all,
		ForceFresh:    c.fresh,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return printJSON(positions)
}

type snapshotCmd struct{}

func (*snapshotCmd) Name() string     { return "snapshot" }
func (*snapshotCmd) Synopsis() string { return "run the price snapshot job once" }
func (*snapshotCmd) Usage() string {
	return `valuectl snapshot

  Runs the snapshot job over the current working set and prints its report.
  Exits non-zero when any instrument failed or the deadline was hit.
`
}
func (*snapshotCmd) SetFlags(*flag.FlagSet) {}

func (*snapshotCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := openSession()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer s.close()

	m, err := s.app.Snapshot.Run(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if status := printJSON(m); status != subcommands.ExitSuccess || !m.Success {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type benchmarksCmd struct{}

func (*benchmarksCmd) Name() string     { return "benchmarks" }
func (*benchmarksCmd) Synopsis() string { return "print the named market indices" }
func (*benchmarksCmd) Usage() string {
	return `valuectl benchmarks
`
}
func (*benchmarksCmd) SetFlags(*flag.FlagSet) {}

func (*benchmarksCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := openSession()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer s.close()
	return printJSON(s.app.Benchmarks.Benchmarks(ctx))
}

type encryptCmd struct{}

func (*encryptCmd) Name() string     { return "encrypt" }
func (*encryptCmd) Synopsis() string { return "encrypt a secret for use in the environment" }
func (*encryptCmd) Usage() string {
	return `valuectl encrypt <plaintext>

  Prints a "fernet:<token>" value encrypted with CONFIG_ENCRYPTION_KEY,
  suitable for ALPHAVANTAGE_API_KEY or BINANCE_API_KEY.
`
}
func (*encryptCmd) SetFlags(*flag.FlagSet) {}

func (*encryptCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "exactly one plaintext value is required")
		return subcommands.ExitUsageError
	}
	key := strings.TrimSpace(os.Getenv("CONFIG_ENCRYPTION_KEY"))
	if key == "" {
		fmt.Fprintln(os.Stderr, config.ErrMissingEncryptionKey)
		return subcommands.ExitFailure
	}
	out, err := config.EncryptSecret(f.Arg(0), key)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Fprintln(stdout, out)
	return subcommands.ExitSuccess
}
