package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ritzau/build-intel/pkg/model"
	bolt "go.etcd.io/bbolt"
)

const entriesBucket = "entries"

// CacheEntry is the persisted metadata for one cached build output set.
// The artifacts it references live in a per-entry directory under the cache
// root; an entry whose artifacts are missing or corrupt is invalid.
type CacheEntry struct {
	Key          string           `json:"key"`
	ID           string           `json:"id"` // uuid, names the entry directory
	Target       string           `json:"target"`
	Project      string           `json:"project"`
	Fingerprint  string           `json:"fingerprint"`
	Artifacts    []model.Artifact `json:"artifacts"`
	TotalSize    int64            `json:"totalSize"`
	CreatedAt    time.Time        `json:"createdAt"`
	LastAccessed time.Time        `json:"lastAccessed"`
}

// metaStore persists cache entries in a bbolt database so the cache index
// survives process restarts
type metaStore struct {
	db *bolt.DB
}

// openMetaStore opens (or creates) the metadata database at path
func openMetaStore(path string) (*metaStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening cache metadata store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(entriesBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing cache metadata store: %w", err)
	}

	return &metaStore{db: db}, nil
}

// get loads an entry by cache key; returns (nil, nil) if absent
func (s *metaStore) get(key string) (*CacheEntry, error) {
	var entry *CacheEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(entriesBucket)).Get([]byte(key))
		if data == nil {
			return nil
		}
		entry = &CacheEntry{}
		return json.Unmarshal(data, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("loading cache entry %s: %w", key, err)
	}
	return entry, nil
}

// put writes or overwrites an entry
func (s *metaStore) put(entry *CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", entry.Key, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(entriesBucket)).Put([]byte(entry.Key), data)
	})
}

// delete removes an entry's metadata
func (s *metaStore) delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(entriesBucket)).Delete([]byte(key))
	})
}

// all returns every persisted entry
func (s *metaStore) all() ([]*CacheEntry, error) {
	var entries []*CacheEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(entriesBucket)).ForEach(func(_, v []byte) error {
			var entry CacheEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing cache entries: %w", err)
	}
	return entries, nil
}

// close closes the underlying database
func (s *metaStore) close() error {
	return s.db.Close()
}
