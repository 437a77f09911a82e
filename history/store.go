// Package history persists per-case outcomes across runs so a later run can
// select the cases that failed last time.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

const (
	casePrefix     = "case/"
	lastRunKey     = "meta/last-run"
	defaultEntries = 1024
)

// Record is the last known outcome of a test case.
type Record struct {
	CaseID      string           `json:"caseId"`
	DisplayName string           `json:"displayName"`
	Status      types.TestStatus `json:"status"`
	RunID       string           `json:"runId"`
	FinishedAt  time.Time        `json:"finishedAt"`
	Duration    time.Duration    `json:"duration"`
	Runs        int              `json:"runs"`
	// ConsecutiveFailures counts the failed runs since the case last passed.
	ConsecutiveFailures int `json:"consecutiveFailures"`
}

// Failed reports whether the case failed in the run that produced the record.
func (r Record) Failed() bool {
	return r.Status == types.TestStatusFail || r.Status == types.TestStatusError
}

// Store keeps records in LevelDB, with a read cache in front.
type Store struct {
	db    *leveldb.DB
	cache *lru.Cache[string, Record]
	log   log.Logger
}

// Config contains store configuration
type Config struct {
	Log log.Logger
	// Path is the LevelDB directory. An empty path keeps the store in memory.
	Path string
	// CacheEntries bounds the read cache. Zero uses a default size.
	CacheEntries int
}

// Open opens or creates the store.
func Open(cfg Config) (*Store, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.CacheEntries <= 0 {
		cfg.CacheEntries = defaultEntries
	}

	var (
		db  *leveldb.DB
		err error
	)
	if cfg.Path == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(cfg.Path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("opening history store %q: %w", cfg.Path, err)
	}

	cache, err := lru.New[string, Record](cfg.CacheEntries)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating history cache: %w", err)
	}

	cfg.Log.Debug("History store opened", "path", cfg.Path)
	return &Store{db: db, cache: cache, log: cfg.Log}, nil
}

// Get returns the record for a case. The boolean is false when the case has
// never been recorded.
func (s *Store) Get(caseID string) (Record, bool, error) {
	if rec, ok := s.cache.Get(caseID); ok {
		return rec, true, nil
	}
	data, err := s.db.Get([]byte(casePrefix+caseID), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("reading case %s: %w", caseID, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("decoding case %s: %w", caseID, err)
	}
	s.cache.Add(caseID, rec)
	return rec, true, nil
}

// PutAll writes records and the run ID atomically.
func (s *Store) PutAll(runID string, records []Record) error {
	batch := new(leveldb.Batch)
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding case %s: %w", rec.CaseID, err)
		}
		batch.Put([]byte(casePrefix+rec.CaseID), data)
	}
	batch.Put([]byte(lastRunKey), []byte(runID))
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}
	for _, rec := range records {
		s.cache.Add(rec.CaseID, rec)
	}
	s.log.Debug("History updated", "runID", runID, "cases", len(records))
	return nil
}

// LastRunID returns the ID of the last run recorded, or "" if none was.
func (s *Store) LastRunID() (string, error) {
	data, err := s.db.Get([]byte(lastRunKey), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Records returns every stored record.
func (s *Store) Records() ([]Record, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(casePrefix)), nil)
	defer iter.Release()

	var out []Record
	for iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", iter.Key(), err)
		}
		out = append(out, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return out, nil
}

// FailedCaseIDs returns the IDs of the cases whose last recorded run failed.
func (s *Store) FailedCaseIDs() (map[string]bool, error) {
	records, err := s.Records()
	if err != nil {
		return nil, err
	}
	failed := make(map[string]bool)
	for _, rec := range records {
		if rec.Failed() {
			failed[rec.CaseID] = true
		}
	}
	return failed, nil
}

// Close releases the database.
func (s *Store) Close() error {
	s.cache.Purge()
	return s.db.Close()
}
