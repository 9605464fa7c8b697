package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/stevelea/ev-charging-extractor/internal/config"
	"github.com/stevelea/ev-charging-extractor/internal/dates"
	"github.com/stevelea/ev-charging-extractor/internal/evcc"
	"github.com/stevelea/ev-charging-extractor/internal/mail"
	"github.com/stevelea/ev-charging-extractor/internal/parse"
	"github.com/stevelea/ev-charging-extractor/internal/pdftext"
	"github.com/stevelea/ev-charging-extractor/internal/pipeline"
	"github.com/stevelea/ev-charging-extractor/internal/receipt"
	"github.com/stevelea/ev-charging-extractor/internal/store"
)

func main() {
	fs := ff.NewFlagSet("ev-extractor")
	var (
		configPath = fs.StringLong("config", "config.yaml", "Configuration file path")
		dbPath     = fs.StringLong("db", "", "Database file path (overrides config)")
		emailDir   = fs.StringLong("email-dir", "", "Directory of saved .eml files (overrides config)")
		pdfDir     = fs.StringLong("tesla-pdf-dir", "", "Directory of Tesla PDF invoices (overrides config)")
		evccURL    = fs.StringLong("evcc-url", "", "EVCC API base URL (overrides config)")
		clear      = fs.BoolLong("clear", "Delete all stored receipts and processed markers, then exit")
		stats      = fs.BoolLong("stats", "Print aggregate statistics, then exit")
		exportCSV  = fs.BoolLong("export-csv", "Export all receipts to CSV, then exit")
		repair     = fs.BoolLong("repair-dates", "Re-extract dates from stored raw text and rewrite corrected rows, then exit")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("EV_EXTRACTOR"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *emailDir != "" {
		cfg.EmailDir = *emailDir
	}
	if *pdfDir != "" {
		cfg.TeslaPDFDir = *pdfDir
	}
	if *evccURL != "" {
		cfg.EVCCURL = *evccURL
		cfg.EVCCEnabled = true
	}

	db, err := store.Open(cfg.DBPath, log)
	if err != nil {
		log.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	switch {
	case *clear:
		result, err := db.ClearAll()
		if err != nil {
			log.Error("Failed to clear data", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Cleared %d receipts, %d emails, %d sessions, %d PDFs\n",
			result.Receipts, result.Emails, result.Sessions, result.PDFs)
		return
	case *stats:
		printStats(db.Statistics())
		return
	case *exportCSV:
		if err := writeCSV(db, cfg.CSVPath); err != nil {
			log.Error("Failed to export CSV", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Exported receipts to %s\n", cfg.CSVPath)
		return
	case *repair:
		repaired, err := db.RepairDates(func(raw string) (time.Time, bool) {
			t, err := dates.Parse(raw)
			return t, err == nil
		})
		if err != nil {
			log.Error("Failed to repair dates", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Repaired %d receipt dates\n", repaired)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := parse.NewRegistry(parse.Options{
		Currency:   cfg.DefaultCurrency,
		HomeRate:   cfg.HomeElectricityRate,
		ExtractPDF: pdftext.Extract,
	})
	pipe := pipeline.New(registry, db, pipeline.Config{
		MinimumCost: cfg.MinimumCost,
		Workers:     cfg.Workers,
	}, log)

	inputs := gatherInputs(ctx, cfg, log)
	report := pipe.ProcessBatch(ctx, inputs)

	fmt.Printf("Run %s: %d inputs, %d saved, %d duplicates, %d failures, %d already processed\n",
		report.RunID, report.Inputs, report.Saved, report.Duplicates,
		report.ParseFailures, report.SkippedProcessed)
	for provider, n := range report.ByProvider {
		fmt.Printf("  %s: %d\n", provider, n)
	}
	for _, msg := range report.Errors {
		fmt.Printf("  error: %s\n", msg)
	}
	printStats(db.Statistics())
}

// gatherInputs collects every raw input the configuration enables: saved
// emails within the lookback window, Tesla PDF invoices on disk, and EVCC
// sessions from the controller. Collection failures are logged, not fatal;
// a down EVCC instance must not block email processing.
func gatherInputs(ctx context.Context, cfg config.Config, log *slog.Logger) []parse.Input {
	var inputs []parse.Input

	if cfg.EmailDir != "" {
		cutoff := time.Now().AddDate(0, 0, -cfg.EmailSearchDays)
		emails, err := readEmails(cfg.EmailDir, cutoff)
		if err != nil {
			log.Error("Failed to read email directory", "dir", cfg.EmailDir, "error", err)
		} else {
			log.Info("Collected emails", "dir", cfg.EmailDir, "count", len(emails))
			inputs = append(inputs, emails...)
		}
	}

	if cfg.TeslaPDFDir != "" {
		pdfs, err := readTeslaPDFs(cfg.TeslaPDFDir)
		if err != nil {
			log.Error("Failed to read Tesla PDF directory", "dir", cfg.TeslaPDFDir, "error", err)
		} else {
			log.Info("Collected Tesla PDFs", "dir", cfg.TeslaPDFDir, "count", len(pdfs))
			inputs = append(inputs, pdfs...)
		}
	}

	if cfg.EVCCEnabled {
		client := evcc.New(cfg.EVCCURL)
		sessions, err := client.Sessions(ctx)
		if err != nil {
			log.Error("Failed to fetch EVCC sessions", "url", cfg.EVCCURL, "error", err)
		} else {
			log.Info("Collected EVCC sessions", "url", cfg.EVCCURL, "count", len(sessions))
			for _, session := range sessions {
				inputs = append(inputs, parse.Input{
					Source:      receipt.SourceEVCC,
					SessionJSON: session,
				})
			}
		}
	}

	return inputs
}

func readEmails(dir string, cutoff time.Time) ([]parse.Input, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var inputs []parse.Input
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".eml") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().Before(cutoff) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			slog.Warn("Skipping unreadable email", "file", entry.Name(), "error", err)
			continue
		}
		in, err := mail.Parse(raw)
		if err != nil {
			slog.Warn("Skipping undecodable email", "file", entry.Name(), "error", err)
			continue
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func readTeslaPDFs(dir string) ([]parse.Input, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var inputs []parse.Input
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".pdf") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			slog.Warn("Skipping unreadable PDF", "file", entry.Name(), "error", err)
			continue
		}
		inputs = append(inputs, parse.Input{
			Source:  receipt.SourceTeslaPDF,
			Subject: entry.Name(),
			Attachments: []parse.Attachment{
				{Filename: entry.Name(), Data: data},
			},
		})
	}
	return inputs, nil
}

func printStats(s store.Statistics) {
	fmt.Printf("Total: %d sessions, $%.2f, %.1f kWh\n", s.TotalSessions, s.TotalCost, s.TotalEnergy)
	fmt.Printf("Last 30 days: %d sessions, $%.2f, %.1f kWh\n", s.MonthlySessions, s.MonthlyCost, s.MonthlyEnergy)
	fmt.Printf("  Home: %d sessions, $%.2f, %.1f kWh\n", s.HomeMonthlySessions, s.HomeMonthlyCost, s.HomeMonthlyEnergy)
	fmt.Printf("  Public: %d sessions, $%.2f, %.1f kWh\n", s.PublicMonthlySessions, s.PublicMonthlyCost, s.PublicMonthlyEnergy)
	if s.AverageCostPerKWh > 0 {
		fmt.Printf("Average cost: $%.2f/kWh\n", s.AverageCostPerKWh)
	}
	if s.TopProvider != "" {
		fmt.Printf("Top provider: %s\n", s.TopProvider)
	}
	if !s.LastSessionDate.IsZero() {
		fmt.Printf("Last session: %s, $%.2f, %.1f kWh on %s\n",
			s.LastSessionProvider, s.LastSessionCost, s.LastSessionEnergy,
			s.LastSessionDate.Format("2006-01-02 15:04"))
	}
}

func writeCSV(db *store.Store, path string) error {
	records, err := db.ExportAll()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating CSV file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"date", "provider", "location", "cost", "currency", "energy_kwh", "duration", "source", "session_id"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, rec := range records {
		energy := ""
		if rec.EnergyKWh > 0 {
			energy = fmt.Sprintf("%.2f", rec.EnergyKWh)
		}
		row := []string{
			rec.Date.Format("2006-01-02 15:04"),
			rec.Provider,
			rec.Location,
			fmt.Sprintf("%.2f", rec.Cost),
			rec.Currency,
			energy,
			rec.SessionDuration,
			string(rec.SourceType),
			rec.SessionID,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
