// Package store owns the persistent state: saved receipts plus the
// processed-input markers for emails, EVCC sessions and Tesla PDFs. It is
// the deduplication gate — validate, dedup-check and insert happen inside a
// single update transaction, so no invalid or duplicate receipt is ever
// persisted.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/stevelea/ev-charging-extractor/internal/receipt"
)

const (
	receiptsBucket = "charging_receipts"
	emailsBucket   = "processed_emails"
	sessionsBucket = "processed_evcc_sessions"
	pdfsBucket     = "processed_tesla_pdfs"
	metaBucket     = "meta"

	schemaVersion = 1
)

var buckets = []string{receiptsBucket, emailsBucket, sessionsBucket, pdfsBucket}

// Store is the bbolt-backed database manager.
type Store struct {
	db  *bbolt.DB
	log *slog.Logger
}

// Record is a persisted receipt row.
type Record struct {
	ID uint64 `json:"id"`
	receipt.Receipt
	SourceType receipt.SourceType `json:"source_type"`
	HashID     string             `json:"hash_id"`
	CreatedAt  time.Time          `json:"created_at"`
}

// marker is a processed-input row, shared by the three marker buckets.
type marker struct {
	ID          uint64    `json:"id"`
	Hash        string    `json:"hash"`
	Metadata    string    `json:"metadata,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Open opens (or creates) the store and runs the migration step: all
// buckets are created once and the schema version recorded.
func Open(path string, log *slog.Logger) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		meta, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		if err != nil {
			return err
		}
		return meta.Put([]byte("schema_version"), []byte{schemaVersion})
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// IsDuplicate reports whether a receipt with the same fingerprint is
// already stored. Pure read.
func (s *Store) IsDuplicate(r receipt.Receipt, source receipt.SourceType) bool {
	hash := r.Fingerprint(source)
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket([]byte(receiptsBucket)).Get([]byte(hash)) != nil
		return nil
	})
	if err != nil {
		s.log.Error("duplicate check failed", "hash", hash, "error", err)
		return false
	}
	return found
}

// Save persists a receipt unless it fails validation, falls below
// minimumCost, or is a duplicate. The checks and the insert share one
// transaction. Storage faults are logged here and reported as a false
// result; they never reach parsing logic.
func (s *Store) Save(r receipt.Receipt, source receipt.SourceType, minimumCost float64) bool {
	if !r.Valid(minimumCost) {
		s.log.Debug("skipping invalid receipt", "receipt", r.String())
		return false
	}

	hash := r.Fingerprint(source)
	saved := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptsBucket))
		if bucket.Get([]byte(hash)) != nil {
			s.log.Debug("skipping duplicate receipt", "receipt", r.String())
			return nil
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		rec := Record{
			ID:         seq,
			Receipt:    r,
			SourceType: source,
			HashID:     hash,
			CreatedAt:  time.Now(),
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling receipt: %w", err)
		}
		if err := bucket.Put([]byte(hash), data); err != nil {
			return err
		}
		saved = true
		return nil
	})
	if err != nil {
		s.log.Error("saving receipt failed", "receipt", r.String(), "error", err)
		return false
	}
	if saved {
		s.log.Info("saved receipt", "receipt", r.String(), "source", string(source))
	}
	return saved
}

// Statistics is the aggregate snapshot, derived on read so it is always
// consistent with the stored set. Monthly figures cover the trailing 30
// days; the home bucket is EVCC sessions, public is everything else.
type Statistics struct {
	TotalSessions int
	TotalCost     float64
	TotalEnergy   float64

	MonthlySessions int
	MonthlyCost     float64
	MonthlyEnergy   float64

	HomeMonthlySessions int
	HomeMonthlyCost     float64
	HomeMonthlyEnergy   float64

	PublicMonthlySessions int
	PublicMonthlyCost     float64
	PublicMonthlyEnergy   float64

	AverageCostPerKWh float64

	LastSessionProvider string
	LastSessionCost     float64
	LastSessionEnergy   float64
	LastSessionDate     time.Time

	TopProvider string
}

// Statistics computes the aggregate snapshot.
func (s *Store) Statistics() Statistics {
	var stats Statistics
	cutoff := time.Now().AddDate(0, 0, -30)
	providerCounts := map[string]int{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(receiptsBucket)).ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshaling receipt: %w", err)
			}

			stats.TotalSessions++
			stats.TotalCost += rec.Cost
			stats.TotalEnergy += rec.EnergyKWh
			providerCounts[rec.Provider]++

			if !rec.Date.Before(cutoff) {
				stats.MonthlySessions++
				stats.MonthlyCost += rec.Cost
				stats.MonthlyEnergy += rec.EnergyKWh
				if rec.SourceType.Home() {
					stats.HomeMonthlySessions++
					stats.HomeMonthlyCost += rec.Cost
					stats.HomeMonthlyEnergy += rec.EnergyKWh
				} else {
					stats.PublicMonthlySessions++
					stats.PublicMonthlyCost += rec.Cost
					stats.PublicMonthlyEnergy += rec.EnergyKWh
				}
			}

			if rec.Date.After(stats.LastSessionDate) {
				stats.LastSessionDate = rec.Date
				stats.LastSessionProvider = rec.Provider
				stats.LastSessionCost = rec.Cost
				stats.LastSessionEnergy = rec.EnergyKWh
			}
			return nil
		})
	})
	if err != nil {
		s.log.Error("computing statistics failed", "error", err)
		return Statistics{}
	}

	// default-on-empty: average is 0 when no energy has been recorded
	if stats.TotalEnergy > 0 {
		stats.AverageCostPerKWh = stats.TotalCost / stats.TotalEnergy
	}

	top, best := "", 0
	for provider, n := range providerCounts {
		if n > best || (n == best && provider < top) {
			top, best = provider, n
		}
	}
	stats.TopProvider = top

	return stats
}

// ClearResult reports how many rows each table lost in a ClearAll.
type ClearResult struct {
	Receipts int
	Emails   int
	Sessions int
	PDFs     int
}

// ClearAll wipes all four tables and resets their sequences; used for full
// reprocessing runs.
func (s *Store) ClearAll() (ClearResult, error) {
	var result ClearResult
	counts := map[string]*int{
		receiptsBucket: &result.Receipts,
		emailsBucket:   &result.Emails,
		sessionsBucket: &result.Sessions,
		pdfsBucket:     &result.PDFs,
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			*counts[name] = tx.Bucket([]byte(name)).Stats().KeyN
			if err := tx.DeleteBucket([]byte(name)); err != nil {
				return err
			}
			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ClearResult{}, fmt.Errorf("clearing data: %w", err)
	}

	s.log.Info("cleared all data",
		"receipts", result.Receipts,
		"emails", result.Emails,
		"sessions", result.Sessions,
		"pdfs", result.PDFs,
	)
	return result, nil
}

// ExportAll returns every stored receipt, most recent first. Read-only.
func (s *Store) ExportAll() ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(receiptsBucket)).ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshaling receipt: %w", err)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Date.After(records[j].Date)
	})
	return records, nil
}

// RepairDates re-derives each stored receipt's date from its retained raw
// text and rewrites the rows whose date changes. The fingerprint covers the
// date, so corrected rows are re-keyed under their new hash; a correction
// that collides with an already-stored receipt collapses into it instead of
// keeping both rows. Returns the number of rows rewritten or collapsed.
func (s *Store) RepairDates(extract func(raw string) (time.Time, bool)) (int, error) {
	repaired := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptsBucket))

		var records []Record
		if err := bucket.ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshaling receipt: %w", err)
			}
			records = append(records, rec)
			return nil
		}); err != nil {
			return err
		}

		for _, rec := range records {
			if rec.RawData == "" {
				continue
			}
			corrected, ok := extract(rec.RawData)
			if !ok || corrected.Equal(rec.Date) {
				continue
			}

			if err := bucket.Delete([]byte(rec.HashID)); err != nil {
				return err
			}
			rec.Date = corrected
			rec.HashID = rec.Receipt.Fingerprint(rec.SourceType)
			repaired++

			if bucket.Get([]byte(rec.HashID)) != nil {
				s.log.Info("repaired receipt collapsed into existing row",
					"receipt", rec.Receipt.String(), "hash", rec.HashID)
				continue
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshaling receipt: %w", err)
			}
			if err := bucket.Put([]byte(rec.HashID), data); err != nil {
				return err
			}
			s.log.Info("repaired receipt date",
				"receipt", rec.Receipt.String(), "hash", rec.HashID)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("repairing dates: %w", err)
	}
	return repaired, nil
}

// MarkEmailProcessed records an email content hash so the mail fetcher can
// skip it on later runs, whatever its extraction produced.
func (s *Store) MarkEmailProcessed(hash, subject string) error {
	return s.mark(emailsBucket, hash, subject)
}

// IsEmailProcessed reports whether the email hash has already been seen.
func (s *Store) IsEmailProcessed(hash string) bool {
	return s.seen(emailsBucket, hash)
}

// MarkSessionProcessed records an EVCC session hash with its payload.
func (s *Store) MarkSessionProcessed(hash, sessionData string) error {
	return s.mark(sessionsBucket, hash, sessionData)
}

// IsSessionProcessed reports whether the EVCC session hash has been seen.
func (s *Store) IsSessionProcessed(hash string) bool {
	return s.seen(sessionsBucket, hash)
}

// MarkPDFProcessed records a Tesla PDF content hash with its filename.
func (s *Store) MarkPDFProcessed(hash, filename string) error {
	return s.mark(pdfsBucket, hash, filename)
}

// IsPDFProcessed reports whether the Tesla PDF hash has been seen.
func (s *Store) IsPDFProcessed(hash string) bool {
	return s.seen(pdfsBucket, hash)
}

// mark inserts a processed marker. Insert-once: an existing marker is left
// untouched.
func (s *Store) mark(bucket, hash, metadata string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b.Get([]byte(hash)) != nil {
			return nil
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(marker{
			ID:          seq,
			Hash:        hash,
			Metadata:    metadata,
			ProcessedAt: time.Now(),
		})
		if err != nil {
			return err
		}
		return b.Put([]byte(hash), data)
	})
	if err != nil {
		s.log.Error("marking input processed failed", "bucket", bucket, "hash", hash, "error", err)
		return fmt.Errorf("marking processed: %w", err)
	}
	return nil
}

func (s *Store) seen(bucket, hash string) bool {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket([]byte(bucket)).Get([]byte(hash)) != nil
		return nil
	})
	if err != nil {
		s.log.Error("processed check failed", "bucket", bucket, "hash", hash, "error", err)
		return false
	}
	return found
}
