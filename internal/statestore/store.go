// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

// Package statestore provides the durable key-value State Store backing the
// ingestion pipeline: watermarks, processed markers, dedup markers,
// performance samples, and sync run records. Backed by BadgerDB so the
// pipeline survives restarts without an external service.
package statestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key prefixes. All pipeline state shares one Badger instance, namespaced
// by prefix.
const (
	WatermarkPrefix  = "watermark:"
	ProcessedPrefix  = "processed:"
	MemDedupPrefix   = "memdedup:"
	TaskDonePrefix   = "taskdone:"
	PerfSamplePrefix = "perf:"
	SyncRunPrefix    = "syncrun:"
	CounterPrefix    = "counter:"
)

// ErrKeyNotFound is returned by Get when the key does not exist or its TTL
// has expired.
var ErrKeyNotFound = errors.New("statestore: key not found")

// Store is a BadgerDB-backed key-value store. Safe for concurrent use.
type Store struct {
	db *badger.DB
}

// Options configures a Store.
type Options struct {
	// Dir is the on-disk location. Ignored when InMemory is set.
	Dir string

	// InMemory runs Badger without persistence. Used by tests.
	InMemory bool
}

// Open opens or creates the store.
func Open(opts Options) (*Store, error) {
	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(opts.Dir)
	}
	// Badger's default logger writes raw lines to stderr; keep it quiet and
	// let callers observe errors through returned values.
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", opts.Dir, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value for key, or ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		if err != nil {
			return fmt.Errorf("get %q: %w", key, err)
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores value under key with no expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// SetWithTTL stores value under key, expiring after ttl.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
}

// SetNX atomically stores value under key only if the key does not already
// exist. Returns true if the value was stored. The check and the write
// happen in one Badger transaction, closing the check-then-set race window
// of a naive Exists+Set sequence.
func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	set := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return nil // already present
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check %q: %w", key, err)
		}
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		if err := txn.SetEntry(entry); err != nil {
			return fmt.Errorf("set %q: %w", key, err)
		}
		set = true
		return nil
	})
	return set, err
}

// Exists reports whether key is present and unexpired.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	exists := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// ScanPrefix returns all key/value pairs whose key starts with prefix.
// Keys are returned in Badger's lexicographic iteration order.
func (s *Store) ScanPrefix(ctx context.Context, prefix string) (map[string][]byte, error) {
	result := make(map[string][]byte)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(val []byte) error {
				cp := make([]byte, len(val))
				copy(cp, val)
				result[key] = cp
				return nil
			})
			if err != nil {
				return fmt.Errorf("read %q: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan prefix %q: %w", prefix, err)
	}
	return result, nil
}

// Increment atomically adds delta to the integer counter at key and returns
// the new value. A missing key counts as zero.
func (s *Store) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	var result int64
	err := s.db.Update(func(txn *badger.Txn) error {
		current := int64(0)
		item, err := txn.Get([]byte(key))
		if err == nil {
			err = item.Value(func(val []byte) error {
				parsed, parseErr := strconv.ParseInt(string(val), 10, 64)
				if parseErr != nil {
					return fmt.Errorf("counter %q holds non-integer value: %w", key, parseErr)
				}
				current = parsed
				return nil
			})
			if err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("get counter %q: %w", key, err)
		}

		result = current + delta
		return txn.Set([]byte(key), []byte(strconv.FormatInt(result, 10)))
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

// GetJSON unmarshals the JSON value at key into out.
func (s *Store) GetJSON(ctx context.Context, key string, out any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %q: %w", key, err)
	}
	return nil
}

// SetJSON marshals v and stores it under key, with optional TTL.
func (s *Store) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", key, err)
	}
	if ttl > 0 {
		return s.SetWithTTL(ctx, key, data, ttl)
	}
	return s.Set(ctx, key, data)
}
