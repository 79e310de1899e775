package stats

import (
	"context"
	"errors"

	"github.com/zjrosen/kai/internal/log"
)

// Store writes stats files into one instance's stats directory and, when a
// ledger is attached, mirrors each record into it.
type Store struct {
	dir    string
	ledger *Ledger
}

var _ Recorder = (*Store)(nil)

// NewStore returns a Store for dir. ledger may be nil.
func NewStore(dir string, ledger *Ledger) *Store {
	return &Store{dir: dir, ledger: ledger}
}

// Dir returns the stats directory.
func (s *Store) Dir() string { return s.dir }

// Record implements Recorder. A ledger failure does not prevent the files
// from being written.
func (s *Store) Record(ctx context.Context, rec ItemRecord) error {
	var errs []error
	if err := WriteFiles(s.dir, rec); err != nil {
		errs = append(errs, err)
	}
	if s.ledger != nil {
		if err := s.ledger.Insert(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.ErrorErr(log.CatStats, "Recording stats failed", err, "agent", rec.Agent, "item", rec.Item)
		return err
	}
	log.Debug(log.CatStats, "Recorded stats", "agent", rec.Agent, "item", rec.Item, "status", rec.Status, "rounds", len(rec.Rounds))
	return nil
}

// Close closes the ledger, if any.
func (s *Store) Close() error {
	if s.ledger == nil {
		return nil
	}
	return s.ledger.Close()
}
