package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ArionMiles/foodspend/internal/ingest"
	"github.com/ArionMiles/foodspend/pkg/analytics"
	"github.com/ArionMiles/foodspend/pkg/export"
	"github.com/ArionMiles/foodspend/pkg/reader/mbox"
	"github.com/ArionMiles/foodspend/pkg/report"
	"github.com/ArionMiles/foodspend/pkg/sample"
	"github.com/ArionMiles/foodspend/pkg/store"
)

func runIngest(ctx context.Context, e *env, args []string) error {
	fs, g := newFlagSet(e, "ingest")
	verbose := fs.Bool("v", false, "print one line per receipt")
	since := fs.Bool("since-last-run", false, "skip emails not newer than the last ingest")
	args, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := exactArgs(args, 1, "archive path"); err != nil {
		return err
	}

	// Checked before the database is touched.
	archive, err := mbox.Open(args[0], nil)
	if err != nil {
		return err
	}

	a, err := setup(ctx, e, g)
	if err != nil {
		return err
	}
	defer a.close()

	chain, err := a.registry.CreateChain(a.cfg.Services, a.loc, a.logger)
	if err != nil {
		return fmt.Errorf("building extractors: %w", err)
	}

	fmt.Fprintf(e.stdout, "Ingesting MBOX file: %s\n", archive.Path())

	runner := ingest.New(chain, a.store, e.stdout, a.logger)
	run, err := runner.Ingest(ctx, archive, ingest.Options{
		Archive:      archive.Path(),
		Verbose:      *verbose,
		SinceLastRun: *since,
	})
	if run != nil {
		fmt.Fprintln(e.stdout, "Results:")
		fmt.Fprintf(e.stdout, "  Inserted: %d\n", run.Inserted)
		fmt.Fprintf(e.stdout, "  Updated: %d\n", run.Updated)
		fmt.Fprintf(e.stdout, "  Skipped: %d\n", run.Skipped)
		if run.Failed > 0 {
			fmt.Fprintf(e.stdout, "  Failed: %d\n", run.Failed)
		}
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(e.stdout, "Interrupted; stored orders are kept. The -since-last-run cutoff was not moved, so the next ingest rereads what this one missed.")
	}
	return err
}

func runStats(ctx context.Context, e *env, args []string) error {
	fs, g := newFlagSet(e, "stats")
	args, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := exactArgs(args, 0, ""); err != nil {
		return err
	}

	a, err := setup(ctx, e, g)
	if err != nil {
		return err
	}
	defer a.close()

	svc := a.analytics()
	summary, err := svc.Summary(ctx)
	if err != nil {
		return err
	}
	if err := a.render.Summary(summary); err != nil {
		return err
	}
	if summary.Orders == 0 {
		return nil
	}

	split, err := svc.Weekdays(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout)
	return a.render.Split(split)
}

func runYearWise(ctx context.Context, e *env, args []string) error {
	fs, g := newFlagSet(e, "year-wise")
	args, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := exactArgs(args, 0, ""); err != nil {
		return err
	}

	a, err := setup(ctx, e, g)
	if err != nil {
		return err
	}
	defer a.close()

	years, err := a.analytics().Years(ctx)
	if err != nil {
		return err
	}
	return a.render.Buckets("Year", years)
}

func runMonthWise(ctx context.Context, e *env, args []string) error {
	fs, g := newFlagSet(e, "month-wise")
	month := fs.Int("month", 0, "list the orders of one month (1-12) instead")
	args, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := exactArgs(args, 1, "year"); err != nil {
		return err
	}
	year, err := strconv.Atoi(args[0])
	if err != nil || year < 1 || year > 9999 {
		return usagef("invalid year %q", args[0])
	}
	if *month < 0 || *month > 12 {
		return usagef("invalid month %d", *month)
	}

	a, err := setup(ctx, e, g)
	if err != nil {
		return err
	}
	defer a.close()

	if *month != 0 {
		orders, err := a.analytics().MonthOrders(ctx, year, time.Month(*month))
		if err != nil {
			return err
		}
		return a.render.Orders(orders)
	}

	months, err := a.analytics().Months(ctx, year)
	if err != nil {
		return err
	}
	return a.render.Buckets("Month", months)
}

func runRestaurants(ctx context.Context, e *env, args []string) error {
	fs, g := newFlagSet(e, "restaurants")
	limit := fs.Int("n", 10, "number of restaurants to show (0 for all)")
	by := fs.String("by", "spend", "rank by spend or count")
	name := fs.String("name", "", "list the orders of one restaurant instead")
	args, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := exactArgs(args, 0, ""); err != nil {
		return err
	}
	if *limit < 0 {
		return usagef("-n must not be negative")
	}
	rank, err := analytics.ParseRank(*by)
	if err != nil {
		return usagef("%v", err)
	}

	a, err := setup(ctx, e, g)
	if err != nil {
		return err
	}
	defer a.close()

	if *name != "" {
		orders, err := a.analytics().RestaurantOrders(ctx, *name)
		if err != nil {
			return err
		}
		return a.render.Orders(orders)
	}

	stats, err := a.analytics().Restaurants(ctx, *limit, rank)
	if err != nil {
		return err
	}
	return a.render.Restaurants(stats)
}

func runExport(ctx context.Context, e *env, args []string) error {
	fs, g := newFlagSet(e, "export")
	format := fs.String("format", "", "json, csv or xlsx (default from the file extension)")
	args, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := exactArgs(args, 1, "output path"); err != nil {
		return err
	}
	path := args[0]

	a, err := setup(ctx, e, g)
	if err != nil {
		return err
	}
	defer a.close()

	plugin, err := a.registry.ExporterFor(path, *format)
	if err != nil {
		return usagef("%v", err)
	}
	exp, err := a.registry.CreateExporter(plugin.Name(), a.logger.With("component", "exporter", "plugin", plugin.Name()))
	if err != nil {
		return fmt.Errorf("creating %s exporter: %w", plugin.Name(), err)
	}

	orders, err := a.analytics().Orders(ctx)
	if err != nil {
		return err
	}
	doc := export.Build(orders, a.loc, time.Now().In(a.loc))
	if err := export.WriteFile(path, exp, doc, a.logger); err != nil {
		return err
	}

	fmt.Fprintf(e.stdout, "Exported %d orders to %s (%s)\n", len(doc.Orders), path, exp.Name())
	return nil
}

func runQuery(ctx context.Context, e *env, args []string) error {
	fs, g := newFlagSet(e, "query")
	list := fs.Bool("list", false, "list available queries")
	args, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if *list {
		if err := exactArgs(args, 0, ""); err != nil {
			return err
		}
		a, err := setup(ctx, e, g)
		if err != nil {
			return err
		}
		defer a.close()
		return a.render.Queries(store.Queries)
	}
	if err := exactArgs(args, 1, "query name"); err != nil {
		return err
	}

	a, err := setup(ctx, e, g)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.store.RunQuery(ctx, args[0])
	if errors.Is(err, store.ErrUnknownQuery) {
		return usagef("%v (see 'foodspend query -list')", err)
	}
	if err != nil {
		return err
	}
	return a.render.Query(res)
}

func runSample(_ context.Context, e *env, args []string) error {
	fs, _ := newFlagSet(e, "sample")
	args, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := exactArgs(args, 1, "output path"); err != nil {
		return err
	}

	emails := sample.Default()
	if err := sample.WriteFile(args[0], emails); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "Wrote %d sample emails to %s\n", len(emails), args[0])
	fmt.Fprintf(e.stdout, "Try: foodspend ingest %s -v\n", args[0])
	return nil
}

func runStatus(ctx context.Context, e *env, args []string) error {
	fs, g := newFlagSet(e, "status")
	args, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := exactArgs(args, 0, ""); err != nil {
		return err
	}

	a, err := setup(ctx, e, g)
	if err != nil {
		return err
	}
	defer a.close()

	version, err := a.store.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	count, err := a.store.Count(ctx)
	if err != nil {
		return err
	}
	last, err := lastRun(ctx, a.store)
	if err != nil {
		return err
	}

	return a.render.Status(report.Status{
		Database:      a.database(),
		SchemaVersion: version,
		Orders:        count,
		LastRun:       last,
	})
}
