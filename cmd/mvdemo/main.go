// Package main runs every isolation scenario against a fresh store and then times the join and cte query plans over
// a generated dataset.
package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/elliotcourant/mvstore"
	"github.com/elliotcourant/mvstore/options"
	"github.com/elliotcourant/mvstore/scenario"
	"github.com/elliotcourant/mvstore/workload"
	"github.com/elliotcourant/timber"
)

type (
	config struct {
		shards       int
		isolation    string
		scenarios    bool
		workload     bool
		verbose      bool
		dataset      workload.Config
		amounts      workload.AmountRange
		level        options.IsolationLevel
		minAmount    uint64
		maxAmount    uint64
		eventLogging bool
	}
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the demo and returns an exit code. This is separated from main() to facilitate testing.
func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := parseConfig(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	opts := mvstore.DefaultOptions().
		WithNumShards(cfg.shards).
		WithDefaultIsolation(cfg.level).
		WithEventLogging(cfg.eventLogging).
		WithVerboseLogging(cfg.verbose)

	open := func() (*mvstore.Store, error) {
		return mvstore.Open(opts)
	}

	if cfg.scenarios {
		if err := runScenarios(stdout, open); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	if cfg.workload {
		if err := runWorkload(stdout, open, cfg); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	return 0
}

func parseConfig(args []string, stderr io.Writer) (config, error) {
	cfg := config{
		dataset: workload.DefaultConfig(),
	}

	fs := flag.NewFlagSet("mvdemo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVar(&cfg.shards, "shards", envInt("MVSTORE_SHARDS", mvstore.DefaultOptions().NumShards), "number of version log shards")
	fs.StringVar(&cfg.isolation, "isolation", envString("MVSTORE_ISOLATION", mvstore.DefaultOptions().DefaultIsolation.String()), "isolation level of the dataset load transactions and of BeginDefault")
	fs.BoolVar(&cfg.scenarios, "scenarios", envBool("MVSTORE_SCENARIOS", true), "run the isolation scenarios")
	fs.BoolVar(&cfg.workload, "workload", envBool("MVSTORE_WORKLOAD", true), "load the dataset and compare the query plans")
	fs.BoolVar(&cfg.verbose, "verbose", envBool("MVSTORE_VERBOSE", false), "log every transaction begin and commit")
	fs.BoolVar(&cfg.eventLogging, "trace", envBool("MVSTORE_TRACE", false), "record store events with x/net/trace")
	fs.IntVar(&cfg.dataset.Customers, "customers", envInt("MVSTORE_CUSTOMERS", cfg.dataset.Customers), "customers to generate")
	fs.IntVar(&cfg.dataset.Orders, "orders", envInt("MVSTORE_ORDERS", cfg.dataset.Orders), "orders to generate")
	fs.IntVar(&cfg.dataset.Items, "items", envInt("MVSTORE_ITEMS", cfg.dataset.Items), "order items to generate")
	fs.Int64Var(&cfg.dataset.Seed, "seed", int64(envInt("MVSTORE_SEED", int(cfg.dataset.Seed))), "dataset generator seed")
	fs.IntVar(&cfg.dataset.BatchSize, "batch", envInt("MVSTORE_BATCH", cfg.dataset.BatchSize), "rows per load transaction")
	fs.IntVar(&cfg.dataset.Workers, "workers", envInt("MVSTORE_WORKERS", cfg.dataset.Workers), "concurrent load sessions")
	fs.Uint64Var(&cfg.minAmount, "min-amount", uint64(envInt("MVSTORE_MIN_AMOUNT", int(workload.DefaultRange.Min))), "lowest order amount selected")
	fs.Uint64Var(&cfg.maxAmount, "max-amount", uint64(envInt("MVSTORE_MAX_AMOUNT", int(workload.DefaultRange.Max))), "highest order amount selected")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	level, ok := options.ParseIsolationLevel(cfg.isolation)
	if !ok {
		return cfg, fmt.Errorf("unknown isolation level %q", cfg.isolation)
	}
	cfg.level = level
	cfg.dataset.Isolation = level

	for name, amount := range map[string]uint64{"min-amount": cfg.minAmount, "max-amount": cfg.maxAmount} {
		if amount > math.MaxUint32 {
			return cfg, fmt.Errorf("%s %d is larger than the largest order amount %d", name, amount, uint64(math.MaxUint32))
		}
	}

	cfg.amounts = workload.AmountRange{Min: uint32(cfg.minAmount), Max: uint32(cfg.maxAmount)}
	return cfg, nil
}

func runScenarios(w io.Writer, open func() (*mvstore.Store, error)) error {
	results, err := scenario.RunAll(open, scenario.All())
	for _, result := range results {
		fmt.Fprintf(w, "== %s (%s)\n", result.Scenario, result.Elapsed)
		for _, observation := range result.Observations {
			line := fmt.Sprintf("  %s  %-28s", observation.At.Format("15:04:05.000000"), observation.Step)
			switch {
			case observation.Err != nil:
				line += " error: " + observation.Err.Error()
			case observation.Step.Kind == scenario.StepRead || observation.Step.Kind == scenario.StepCheck:
				line += " -> " + observation.Value
			}
			fmt.Fprintln(w, line)
		}
	}

	return err
}

func runWorkload(w io.Writer, open func() (*mvstore.Store, error), cfg config) error {
	store, err := open()
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := workload.Load(store, cfg.dataset)
	if err != nil {
		return err
	}
	fmt.Fprintf(
		w, "== workload: %d customers, %d orders, %d items loaded in %s\n",
		stats.Customers, stats.Orders, stats.Items, stats.Elapsed,
	)

	reader, err := workload.NewReader(store, cfg.dataset)
	if err != nil {
		return err
	}
	defer reader.Close()

	report, err := reader.Compare(cfg.amounts)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "  amount between %d and %d: %d rows\n", report.Range.Min, report.Range.Max, report.Rows)
	fmt.Fprintf(w, "  join: %s\n", report.Join)
	fmt.Fprintf(w, "  cte:  %s\n", report.CTE)

	vacuumed := store.Vacuum()
	timber.Debugf("post workload vacuum removed %d versions", vacuumed.Aborted+vacuumed.Superseded)

	return nil
}

func envString(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}

	return fallback
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		timber.Warningf("ignoring %s=%q, not an integer", name, v)
	}

	return fallback
}

func envBool(name string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(name)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
