// Command maildump writes receipts the extractors recognise but cannot parse
// to files, so that new patterns can be written against real samples.
package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"syscall"
	_ "time/tzdata"
	"unicode/utf8"

	"github.com/ArionMiles/foodspend/internal/plugins"
	"github.com/ArionMiles/foodspend/pkg/api"
	"github.com/ArionMiles/foodspend/pkg/config"
	"github.com/ArionMiles/foodspend/pkg/extractor"
	"github.com/ArionMiles/foodspend/pkg/logging"
	"github.com/ArionMiles/foodspend/pkg/reader/mbox"
)

const defaultDumpDir = "testdata/dump"

func main() {
	logger := logging.Setup(logging.DefaultConfig())

	fs := flag.NewFlagSet("maildump", flag.ExitOnError)
	dir := fs.String("out", defaultDumpDir, "directory to write samples to")
	limit := fs.Int("max", 50, "stop after this many samples (0 for no limit)")
	configPath := fs.String("config", "", "JSON config file")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: maildump [-out dir] [-max N] [-config file] <archive>")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, fs.Arg(0), *configPath, options{dir: *dir, limit: *limit}, os.Stdout, logger); err != nil {
		logger.Error("maildump failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, archivePath, configPath string, opts options, out io.Writer, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var ruleSet []extractor.Rule
	if cfg.RulesFile != "" {
		ruleSet, err = extractor.LoadRules(cfg.RulesFile)
	} else {
		ruleSet, err = extractor.DefaultRules()
	}
	if err != nil {
		return err
	}

	registry, err := plugins.NewDefault(ruleSet)
	if err != nil {
		return fmt.Errorf("registering plugins: %w", err)
	}
	chain, err := registry.CreateChain(cfg.Services, cfg.Location(), logger)
	if err != nil {
		return fmt.Errorf("building extractors: %w", err)
	}

	archive, err := mbox.Open(archivePath, logger)
	if err != nil {
		return err
	}

	res, err := dump(ctx, archive, chain, opts, logger)
	if err != nil {
		return err
	}
	res.print(out, opts.dir)
	return nil
}

type options struct {
	dir   string
	limit int
}

type result struct {
	total     int
	relevant  int
	unparsed  int
	dumped    int
	malformed int
	subjects  map[string]int
}

// dump writes every message that an extractor classifies but none can
// extract to opts.dir as <n>_<service>_<date>_<subject>.txt.
func dump(ctx context.Context, src api.Source, chain extractor.Chain, opts options, logger *slog.Logger) (*result, error) {
	if err := os.MkdirAll(opts.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating dump directory: %w", err)
	}

	res := &result{subjects: make(map[string]int)}
	for msg, err := range src.Messages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err != nil {
			var msgErr *mbox.MessageError
			if !errors.As(err, &msgErr) {
				return nil, err
			}
			res.malformed++
			continue
		}
		res.total++

		service := classifiedBy(chain, msg)
		if service == "" {
			continue
		}
		res.relevant++

		_, extractErr := chain.ClassifyAndExtract(msg)
		if extractErr == nil {
			continue
		}
		res.unparsed++

		subject := msg.Subject
		if subject == "" {
			subject = "(no subject)"
		}
		res.subjects[subject]++

		if opts.limit > 0 && res.dumped >= opts.limit {
			continue
		}
		if err := writeSample(opts.dir, res.dumped+1, service, msg, extractErr); err != nil {
			logger.Warn("failed to dump message", "subject", msg.Subject, "error", err)
			continue
		}
		res.dumped++
	}
	return res, nil
}

func classifiedBy(chain extractor.Chain, msg *api.Message) string {
	for _, ex := range chain {
		if ex.Classify(msg) {
			return ex.Name()
		}
	}
	return ""
}

func writeSample(dir string, n int, service string, msg *api.Message, extractErr error) error {
	date := "undated"
	if !msg.Date.IsZero() {
		date = msg.Date.Format("2006-01-02_150405")
	}
	name := sanitizeFilename(fmt.Sprintf("%03d_%s_%s_%s", n, service, date, msg.Subject)) + ".txt"

	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\nFrom: %s\n", msg.Subject, msg.From)
	if !msg.Date.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", msg.Date.Format("Mon, 02 Jan 2006 15:04:05 -0700"))
	}
	fmt.Fprintf(&b, "Error: %v\n\n", extractErr)
	b.WriteString(msg.Body)

	if err := os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

func (r *result) print(w io.Writer, dir string) {
	fmt.Fprintf(w, "Messages read: %d (%d malformed)\n", r.total, r.malformed)
	fmt.Fprintf(w, "Recognised receipts: %d\n", r.relevant)
	fmt.Fprintf(w, "Recognised but unparsed: %d\n", r.unparsed)
	fmt.Fprintf(w, "Samples written to %s: %d\n", dir, r.dumped)
	if len(r.subjects) == 0 {
		return
	}

	type entry struct {
		subject string
		count   int
	}
	entries := make([]entry, 0, len(r.subjects))
	for s, c := range r.subjects {
		entries = append(entries, entry{s, c})
	}
	slices.SortFunc(entries, func(a, b entry) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return strings.Compare(a.subject, b.subject)
	})

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Subjects (grouped):")
	for _, e := range entries {
		fmt.Fprintf(w, "  %3d - %s\n", e.count, e.subject)
	}
}

var (
	unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f\s]`)
	underscores = regexp.MustCompile(`_+`)
)

// maxNameBytes keeps dump file names under common filesystem limits.
const maxNameBytes = 200

func sanitizeFilename(name string) string {
	name = unsafeChars.ReplaceAllString(name, "_")
	name = underscores.ReplaceAllString(name, "_")

	name = strings.Trim(name, "_")
	if len(name) > maxNameBytes {
		cut := maxNameBytes
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}

	return name
}
