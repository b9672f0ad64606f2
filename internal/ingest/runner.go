// Package ingest drives an archive through the extractor chain into the store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ArionMiles/foodspend/pkg/api"
	"github.com/ArionMiles/foodspend/pkg/extractor"
	"github.com/ArionMiles/foodspend/pkg/reader/mbox"
	"github.com/ArionMiles/foodspend/pkg/store"
)

// Options controls a single ingest.
type Options struct {
	// Archive is recorded on the run row. Usually the archive path.
	Archive string
	// Verbose prints one line per relevant message.
	Verbose bool
	// SinceLastRun skips messages whose transport date is not newer than the
	// newest message of the last completed run. Undated messages are always
	// read. Aborted runs never move the cutoff.
	SinceLastRun bool
}

// Runner sequences reader, extractors and store.
type Runner struct {
	chain  extractor.Chain
	store  store.Store
	out    io.Writer
	logger *slog.Logger
}

// New creates a new ingest runner. Verbose lines are written to out.
func New(chain extractor.Chain, st store.Store, out io.Writer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = io.Discard
	}

	return &Runner{
		chain:  chain,
		store:  st,
		out:    out,
		logger: logger.With("component", "ingest"),
	}
}

// Ingest reads every message of src and upserts the orders it finds. The
// returned run carries the counts even when an error ends the ingest early.
// A canceled context stops reading; orders already stored stay in place.
func (r *Runner) Ingest(ctx context.Context, src api.Source, opts Options) (*store.Run, error) {
	var since time.Time
	if opts.SinceLastRun {
		last, err := r.store.LastCompletedRun(ctx)
		switch {
		case err == nil:
			since = last.NewestMessage
		case errors.Is(err, store.ErrNotFound):
		default:
			return nil, fmt.Errorf("loading last run: %w", err)
		}
	}

	run, err := r.store.StartRun(ctx, opts.Archive)
	if err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}

	// Everything up to since was handled by the completed run it came from.
	run.NewestMessage = since

	r.logger.Info("starting ingest",
		"archive", opts.Archive,
		"extractors", r.chain.Names(),
		"since", since,
	)

	ingestErr := r.consume(ctx, src, run, since, opts.Verbose)
	run.Completed = ingestErr == nil && run.Failed == 0

	// The run row is closed even when ctx is already canceled.
	if err := r.store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		if ingestErr == nil {
			return run, fmt.Errorf("finishing run: %w", err)
		}
		r.logger.Warn("failed to finish run", "run", run.ID, "error", err)
	}

	r.logger.Info("ingest finished",
		"inserted", run.Inserted,
		"updated", run.Updated,
		"skipped", run.Skipped,
		"failed", run.Failed,
		"completed", run.Completed,
	)
	return run, ingestErr
}

func (r *Runner) consume(ctx context.Context, src api.Source, run *store.Run, since time.Time, verbose bool) error {
	for msg, err := range src.Messages() {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err != nil {
			var msgErr *mbox.MessageError
			if !errors.As(err, &msgErr) {
				return err
			}
			run.Skipped++
			if verbose {
				r.printf("[-] %v", msgErr)
			}
			continue
		}

		if !since.IsZero() && !msg.Date.IsZero() && !msg.Date.After(since) {
			run.Skipped++
			continue
		}

		order, err := r.chain.ClassifyAndExtract(msg)
		if err != nil {
			run.Skipped++
			advance(run, msg)
			if errors.Is(err, extractor.ErrNotRelevant) {
				r.logger.Debug("not a receipt", "subject", msg.Subject)
				continue
			}
			r.logger.Debug("extraction failed", "subject", msg.Subject, "error", err)
			if verbose {
				r.printf("[-] Failed to parse: %s (%v)", msg.Subject, err)
			}
			continue
		}

		outcome, err := r.store.Upsert(ctx, order)
		if err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				return fmt.Errorf("storing order %s: %w", order.OrderID, err)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			run.Failed++
			r.logger.Warn("failed to store order", "order_id", order.OrderID, "error", err)
			if verbose {
				r.printf("[!] %s: %v", order.OrderID, err)
			}
			continue
		}

		advance(run, msg)
		switch outcome {
		case store.Inserted:
			run.Inserted++
			if verbose {
				r.printf("[+] %s: %s - %s", order.OrderID, order.RestaurantName, order.TotalAmount.StringFixed(2))
			}
		case store.Updated:
			run.Updated++
			if verbose {
				r.printf("[~] %s: %s - %s (updated)", order.OrderID, order.RestaurantName, order.TotalAmount.StringFixed(2))
			}
		}
	}
	return nil
}

// advance moves the run's watermark past a message that needs no retry.
func advance(run *store.Run, msg *api.Message) {
	if msg.Date.After(run.NewestMessage) {
		run.NewestMessage = msg.Date
	}
}

func (r *Runner) printf(format string, args ...any) {
	fmt.Fprintf(r.out, "  "+format+"\n", args...)
}
