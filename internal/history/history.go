package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mingmou/internal/dao"
	"mingmou/internal/metrics"
	"mingmou/pkg/log"
)

const (
	DefaultLimit = 20

	timestampLayout = "2006-01-02T15:04:05.000Z"
)

var ErrNotFound = errors.New("history entry not found")

// Fetcher loads a stored result by id.
type Fetcher interface {
	Result(ctx context.Context, id string) (*dao.DetectionResponse, error)
}

// Store is the most-recent-first list of past detections, never longer than
// its limit. Results recorded without a server id are kept locally so they
// can still be selected.
type Store struct {
	mu      sync.Mutex
	limit   int
	entries []dao.HistoryEntry
	local   map[string]*dao.DetectionResponse

	db     *SnapshotDB
	logger *logrus.Entry
}

// NewStore returns an empty store, or one restored from db when db is set.
func NewStore(limit int, db *SnapshotDB) (*Store, error) {
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	s := &Store{
		limit:  limit,
		local:  make(map[string]*dao.DetectionResponse),
		db:     db,
		logger: log.Component("history"),
	}
	if db != nil {
		entries, err := db.GetEntries()
		if err != nil {
			return nil, fmt.Errorf("load history snapshot: %w", err)
		}
		local, err := db.GetResults()
		if err != nil {
			return nil, fmt.Errorf("load history results: %w", err)
		}
		s.entries = entries
		s.local = local
		s.truncate()
	}
	metrics.HistoryEntries.Set(float64(len(s.entries)))
	return s, nil
}

// truncate drops entries beyond the limit and the local results they held.
func (s *Store) truncate() []string {
	var dropped []string
	if len(s.entries) > s.limit {
		for _, e := range s.entries[s.limit:] {
			if _, ok := s.local[e.Id]; ok {
				delete(s.local, e.Id)
				dropped = append(dropped, e.Id)
			}
		}
		s.entries = s.entries[:s.limit]
	}
	return dropped
}

func (s *Store) persist(put map[string]*dao.DetectionResponse, drop []string) {
	metrics.HistoryEntries.Set(float64(len(s.entries)))
	if s.db == nil {
		return
	}
	if err := s.db.Save(s.entries, put, drop); err != nil {
		s.logger.WithError(err).Error("save history snapshot failed")
	}
}

// Record prepends an entry derived from resp and returns it.
func (s *Store) Record(resp *dao.DetectionResponse, filename string, now time.Time) dao.HistoryEntry {
	entry := dao.HistoryEntry{
		Id:        resp.ResultId,
		Timestamp: now.UTC().Format(timestampLayout),
		Filename:  filename,
	}
	if d := resp.Detection; d != nil {
		entry.DiseaseType = d.DiseaseType
		entry.Confidence = dao.Percent(dao.ConfidencePercent(d.Confidence))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var put map[string]*dao.DetectionResponse
	if entry.Id == "" {
		entry.Id = uuid.NewString()
		c := resp.Clone()
		c.ResultId = entry.Id
		s.local[entry.Id] = c
		put = map[string]*dao.DetectionResponse{entry.Id: c}
	}

	s.entries = append([]dao.HistoryEntry{entry}, s.entries...)
	s.persist(put, s.truncate())
	return entry
}

// List returns a copy of the entries, most recent first.
func (s *Store) List() []dao.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dao.HistoryEntry{}, s.entries...)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Replace swaps in a list fetched from the history service. Local results
// whose entries are gone are dropped.
func (s *Store) Replace(entries []dao.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append([]dao.HistoryEntry{}, entries...)
	if len(s.entries) > s.limit {
		s.entries = s.entries[:s.limit]
	}

	keep := make(map[string]bool, len(s.entries))
	for _, e := range s.entries {
		keep[e.Id] = true
	}
	var drop []string
	for id := range s.local {
		if !keep[id] {
			delete(s.local, id)
			drop = append(drop, id)
		}
	}
	s.persist(nil, drop)
}

// Select returns the full result for id, from the local copy when there is one
// and from f otherwise.
func (s *Store) Select(ctx context.Context, id string, f Fetcher) (*dao.DetectionResponse, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	s.mu.Lock()
	local := s.local[id]
	s.mu.Unlock()
	if local != nil {
		return local.Clone(), nil
	}
	if f == nil {
		return nil, ErrNotFound
	}

	resp, err := f.Result(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch result %s: %w", id, err)
	}
	if resp == nil || resp.Detection == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return resp, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
