package history

import (
	"encoding/json"
	"errors"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"mingmou/internal/dao"
)

const (
	entriesKey      = "history:entries"
	resultKeyPrefix = "history:result:"
)

// SnapshotDB persists the history list and locally recorded results.
type SnapshotDB struct {
	db     *badger.DB
	logger *logrus.Entry
}

func OpenSnapshotDB(dir string, logger *logrus.Entry) (*SnapshotDB, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, err
	}
	return &SnapshotDB{
		db:     db,
		logger: logger,
	}, nil
}

func (m *SnapshotDB) Close() error {
	return m.db.Close()
}

func (m *SnapshotDB) Get(key []byte) ([]byte, error) {
	var val []byte
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (m *SnapshotDB) GetEntries() ([]dao.HistoryEntry, error) {
	val, err := m.Get([]byte(entriesKey))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var entries []dao.HistoryEntry
	if err := json.Unmarshal(val, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (m *SnapshotDB) GetResults() (map[string]*dao.DetectionResponse, error) {
	prefix := []byte(resultKeyPrefix)
	results := make(map[string]*dao.DetectionResponse)
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 10
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			resp := &dao.DetectionResponse{}
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, resp)
			})
			if err != nil {
				m.logger.WithError(err).Errorf("unmarshal result %s", item.Key())
				continue
			}
			results[string(item.Key()[len(prefix):])] = resp
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Save writes the entry list, stores put and removes drop in one transaction.
func (m *SnapshotDB) Save(entries []dao.HistoryEntry, put map[string]*dao.DetectionResponse, drop []string) error {
	val, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(entriesKey), val); err != nil {
			return err
		}
		for id, resp := range put {
			data, err := json.Marshal(resp)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(resultKeyPrefix+id), data); err != nil {
				return err
			}
		}
		for _, id := range drop {
			if err := txn.Delete([]byte(resultKeyPrefix + id)); err != nil {
				return err
			}
		}
		return nil
	})
}
