// Package index journals cache entry sizes and access times in badger.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	entryPrefix      = "entry/"
	defaultGCRatio   = 0.5
	defaultGCEvery   = 10 * time.Minute
	touchGranularity = time.Second
)

// Config selects where the index lives.
type Config struct {
	// Path is the badger directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps the index in memory only.
	InMemory bool
	// GCInterval is how often the value log is compacted. Zero selects the
	// default and a negative interval disables compaction.
	GCInterval time.Duration
	// Logger receives badger's warnings and errors. Nil silences badger.
	Logger ports.Logger
}

// Index implements ports.EntryIndex on top of badger.
type Index struct {
	db     *badger.DB
	stopCh chan struct{}
	doneCh chan struct{}
	logger ports.Logger
}

var _ ports.EntryIndex = (*Index)(nil)

// Open opens (or creates) the index described by cfg.
func Open(cfg Config) (*Index, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, zerr.With(domain.ErrIndexOpenFailed, "reason", "empty path")
		}
		if err := os.MkdirAll(cfg.Path, domain.DirPerm); err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrIndexOpenFailed.Error()), "path", cfg.Path)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrIndexOpenFailed.Error()), "path", cfg.Path)
	}

	idx := &Index{db: db, logger: cfg.Logger}
	if !cfg.InMemory {
		interval := cfg.GCInterval
		if interval == 0 {
			interval = defaultGCEvery
		}
		if interval > 0 {
			idx.stopCh = make(chan struct{})
			idx.doneCh = make(chan struct{})
			go idx.runGC(interval)
		}
	}
	return idx, nil
}

// OpenInMemory returns an index that is discarded on Close.
func OpenInMemory() (*Index, error) {
	return Open(Config{InMemory: true})
}

func entryKey(hash string) []byte {
	return []byte(entryPrefix + hash)
}

// Put stores rec, replacing any previous record for the same hash.
func (i *Index) Put(rec domain.EntryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return zerr.Wrap(err, domain.ErrIndexWriteFailed.Error())
	}
	err = i.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(rec.Hash), data)
	})
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrIndexWriteFailed.Error()), "hash", rec.Hash)
	}
	return nil
}

// Get returns the record for hash and whether it exists.
func (i *Index) Get(hash string) (domain.EntryRecord, bool, error) {
	var rec domain.EntryRecord
	err := i.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(hash))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.EntryRecord{}, false, nil
	}
	if err != nil {
		return domain.EntryRecord{}, false, zerr.With(zerr.Wrap(err, domain.ErrIndexReadFailed.Error()), "hash", hash)
	}
	return rec, true, nil
}

// Touch records an access at time at. Unknown hashes are ignored, and
// accesses within the same second as the journaled one are not rewritten.
func (i *Index) Touch(hash string, at time.Time) error {
	err := i.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(hash))
		if err != nil {
			return err
		}
		var rec domain.EntryRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return err
		}
		if at.Sub(rec.LastAccess) < touchGranularity {
			return nil
		}
		rec.LastAccess = at
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(entryKey(hash), data)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrIndexWriteFailed.Error()), "hash", hash)
	}
	return nil
}

// Delete removes the record for hash. Deleting an absent record is not an error.
func (i *Index) Delete(hash string) error {
	err := i.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entryKey(hash))
	})
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrIndexWriteFailed.Error()), "hash", hash)
	}
	return nil
}

// List returns every record in key order.
func (i *Index) List() ([]domain.EntryRecord, error) {
	var out []domain.EntryRecord
	err := i.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec domain.EntryRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return zerr.With(err, "key", string(it.Item().Key()))
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrIndexReadFailed.Error())
	}
	return out, nil
}

// Close stops value log collection and closes the database.
func (i *Index) Close() error {
	if i.stopCh != nil {
		close(i.stopCh)
		<-i.doneCh
		i.stopCh = nil
	}
	return i.db.Close()
}

func (i *Index) runGC(interval time.Duration) {
	defer close(i.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-i.stopCh:
			return
		case <-ticker.C:
			err := i.db.RunValueLogGC(defaultGCRatio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && i.logger != nil {
				i.logger.Warn("index value log collection failed", "error", err.Error())
			}
		}
	}
}

// badgerLogger forwards badger's warnings and errors to a ports.Logger.
type badgerLogger struct {
	logger ports.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(zerr.New(strings.TrimSpace(fmt.Sprintf(format, args...))))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(string, ...any) {}

func (l *badgerLogger) Debugf(string, ...any) {}
