// Package pipeline runs batches of raw inputs through the parser registry
// and into the store. Parsing is CPU-bound and fans out across a bounded
// worker group; everything that touches the database stays sequential and
// keeps the caller's input order, so reports are deterministic.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/stevelea/ev-charging-extractor/internal/parse"
	"github.com/stevelea/ev-charging-extractor/internal/receipt"
)

// Storage is the slice of the store the pipeline needs.
type Storage interface {
	IsDuplicate(r receipt.Receipt, source receipt.SourceType) bool
	Save(r receipt.Receipt, source receipt.SourceType, minimumCost float64) bool
	IsEmailProcessed(hash string) bool
	MarkEmailProcessed(hash, subject string) error
	IsSessionProcessed(hash string) bool
	MarkSessionProcessed(hash, sessionData string) error
	IsPDFProcessed(hash string) bool
	MarkPDFProcessed(hash, filename string) error
}

// Pipeline wires the parser registry to the store.
type Pipeline struct {
	registry    *parse.Registry
	store       Storage
	log         *slog.Logger
	minimumCost float64
	workers     int
}

// Config holds pipeline construction parameters.
type Config struct {
	MinimumCost float64
	Workers     int // parse concurrency; <1 means serial
}

// New builds a pipeline around an already-open store.
func New(registry *parse.Registry, store Storage, cfg Config, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Pipeline{
		registry:    registry,
		store:       store,
		log:         log,
		minimumCost: cfg.MinimumCost,
		workers:     cfg.Workers,
	}
}

// BatchReport summarizes one ProcessBatch run.
type BatchReport struct {
	RunID            string
	Inputs           int
	Saved            int
	Duplicates       int
	ParseFailures    int
	SkippedProcessed int
	Unrecognized     int
	ByProvider       map[string]int
	Errors           []string
}

// parsed is the per-input outcome of the fan-out stage.
type parsed struct {
	receipts []receipt.Receipt
	err      error
}

// ProcessBatch runs a full extraction pass: skip already-processed inputs,
// parse the rest concurrently, then persist and mark sequentially in input
// order. Inputs that fail to parse are still marked processed so a broken
// email is not retried on every run.
func (p *Pipeline) ProcessBatch(ctx context.Context, inputs []parse.Input) BatchReport {
	report := BatchReport{
		RunID:      uuid.NewString(),
		Inputs:     len(inputs),
		ByProvider: map[string]int{},
	}
	log := p.log.With("run_id", report.RunID)
	log.Info("processing batch", "inputs", len(inputs))

	type job struct {
		index int
		input parse.Input
		hash  string
	}
	var jobs []job
	for i, in := range inputs {
		hash := InputHash(in)
		if p.alreadyProcessed(in.Source, hash) {
			report.SkippedProcessed++
			log.Debug("skipping processed input", "subject", in.Subject, "hash", hash)
			continue
		}
		jobs = append(jobs, job{index: i, input: in, hash: hash})
	}

	results := make([]parsed, len(inputs))
	group, _ := errgroup.WithContext(ctx)
	group.SetLimit(p.workers)
	for _, j := range jobs {
		j := j
		group.Go(func() error {
			results[j.index] = p.parseOne(j.input)
			return nil
		})
	}
	group.Wait()

	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, err.Error())
			break
		}
		res := results[j.index]
		if res.err != nil {
			report.ParseFailures++
			report.Errors = append(report.Errors, res.err.Error())
			log.Warn("parse failed", "subject", j.input.Subject, "error", res.err)
		} else if res.receipts == nil {
			report.Unrecognized++
			log.Debug("unrecognized input", "sender", j.input.Sender, "subject", j.input.Subject)
		}

		for _, r := range res.receipts {
			switch {
			case p.store.IsDuplicate(r, j.input.Source):
				report.Duplicates++
				log.Debug("duplicate receipt", "receipt", r.String())
			case !r.Valid(p.minimumCost):
				report.ParseFailures++
				report.Errors = append(report.Errors,
					fmt.Sprintf("%s: extracted receipt failed validation: %s", r.Provider, r.String()))
			case p.store.Save(r, j.input.Source, p.minimumCost):
				report.Saved++
				report.ByProvider[r.Provider]++
			default:
				// Save only refuses a valid, non-duplicate receipt on a
				// storage fault; the store has already logged the cause.
				report.ParseFailures++
				report.Errors = append(report.Errors,
					fmt.Sprintf("%s: receipt not persisted, storage error: %s", r.Provider, r.String()))
			}
		}

		if err := p.markProcessed(j.input, j.hash); err != nil {
			report.Errors = append(report.Errors, err.Error())
		}
	}

	log.Info("batch complete",
		"saved", report.Saved,
		"duplicates", report.Duplicates,
		"parse_failures", report.ParseFailures,
		"skipped_processed", report.SkippedProcessed,
		"unrecognized", report.Unrecognized,
	)
	return report
}

// Dispatch parses a single input without touching the store. Unrecognized
// or unparseable inputs yield an empty slice; failures are logged, not
// returned, so callers can chain it in display paths.
func (p *Pipeline) Dispatch(in parse.Input) []receipt.Receipt {
	res := p.parseOne(in)
	if res.err != nil {
		p.log.Warn("parse failed", "subject", in.Subject, "error", res.err)
	}
	return res.receipts
}

// Inspection is the dry-run view of one input.
type Inspection struct {
	Hash      string
	Processed bool
	Provider  string
	Receipts  []receipt.Receipt
	Err       error
}

// Inspect runs the full recognition and extraction path for one input but
// persists nothing; used by the debug mode to explain why an input did or
// did not produce receipts.
func (p *Pipeline) Inspect(in parse.Input) Inspection {
	ins := Inspection{Hash: InputHash(in)}
	ins.Processed = p.alreadyProcessed(in.Source, ins.Hash)
	parser := p.registry.Find(in)
	if parser == nil {
		ins.Provider = parse.IdentifyProvider(in.Sender)
		return ins
	}
	ins.Provider = parser.Provider()
	ins.Receipts, ins.Err = parser.Parse(in)
	return ins
}

func (p *Pipeline) parseOne(in parse.Input) parsed {
	parser := p.registry.Find(in)
	if parser == nil {
		return parsed{}
	}
	receipts, err := parser.Parse(in)
	return parsed{receipts: receipts, err: err}
}

func (p *Pipeline) alreadyProcessed(source receipt.SourceType, hash string) bool {
	switch source {
	case receipt.SourceEVCC:
		return p.store.IsSessionProcessed(hash)
	case receipt.SourceTeslaPDF:
		return p.store.IsPDFProcessed(hash)
	default:
		return p.store.IsEmailProcessed(hash)
	}
}

func (p *Pipeline) markProcessed(in parse.Input, hash string) error {
	switch in.Source {
	case receipt.SourceEVCC:
		return p.store.MarkSessionProcessed(hash, string(in.SessionJSON))
	case receipt.SourceTeslaPDF:
		name := in.Subject
		if len(in.Attachments) > 0 {
			name = in.Attachments[0].Filename
		}
		return p.store.MarkPDFProcessed(hash, name)
	default:
		return p.store.MarkEmailProcessed(hash, in.Subject)
	}
}

// InputHash derives the stable identity of a raw input, used for the
// processed-input markers. It covers every field that can affect parsing, so
// an edited or re-fetched input is seen as new.
func InputHash(in parse.Input) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|", in.Source, in.Sender, in.Subject, in.Text)
	for _, a := range in.Attachments {
		fmt.Fprintf(h, "%s:%d|", a.Filename, len(a.Data))
		h.Write(a.Data)
	}
	h.Write(in.SessionJSON)
	return hex.EncodeToString(h.Sum(nil))
}
