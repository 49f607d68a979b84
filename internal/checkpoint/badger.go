// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/trackersync/internal/logging"
	"github.com/tomtom215/trackersync/internal/models"
)

// Key prefixes for BadgerDB storage
const (
	checkpointKeyPrefix = "checkpoint:"
	runIndexKeyPrefix   = "checkpoint_run:"
)

// maxConflictRetries bounds optimistic transaction retries.
const maxConflictRetries = 5

// BadgerStore implements Store on BadgerDB. Updates run in read-write
// transactions and are retried when Badger reports a conflicting commit.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a BadgerDB at dir. An empty dir or inMemory
// keeps everything in memory.
func OpenBadger(dir string, inMemory bool) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	if inMemory || dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	logging.Info().Str("path", dir).Bool("in_memory", opts.InMemory).Msg("Checkpoint store opened")
	return &BadgerStore{db: db}, nil
}

func checkpointKey(id string) []byte { return []byte(checkpointKeyPrefix + id) }

func runIndexKey(runID, id string) []byte {
	return []byte(runIndexKeyPrefix + runID + ":" + id)
}

// Create stores a new checkpoint and its run index entry.
func (s *BadgerStore) Create(_ context.Context, cp *models.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := checkpointKey(cp.ID)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("checkpoint %s already exists", cp.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("get checkpoint: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("set checkpoint: %w", err)
		}
		if err := txn.Set(runIndexKey(cp.RunID, cp.ID), []byte(cp.ID)); err != nil {
			return fmt.Errorf("set run index: %w", err)
		}
		return nil
	})
}

// Update applies fn inside a read-write transaction.
func (s *BadgerStore) Update(ctx context.Context, id string, fn UpdateFunc) (*models.Checkpoint, error) {
	var result *models.Checkpoint
	var err error

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			cp, err := readCheckpoint(txn, id)
			if err != nil {
				return err
			}
			if err := fn(cp); err != nil {
				return err
			}
			data, err := json.Marshal(cp)
			if err != nil {
				return fmt.Errorf("marshal checkpoint: %w", err)
			}
			if err := txn.Set(checkpointKey(id), data); err != nil {
				return fmt.Errorf("set checkpoint: %w", err)
			}
			result = cp
			return nil
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		logging.Debug().Str("checkpoint_id", id).Int("attempt", attempt+1).Msg("Checkpoint update conflicted, retrying")
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Get retrieves a checkpoint by ID.
func (s *BadgerStore) Get(_ context.Context, id string) (*models.Checkpoint, error) {
	var cp *models.Checkpoint
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		cp, err = readCheckpoint(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cp, nil
}

// ListByRun returns a run's checkpoints ordered by creation time.
func (s *BadgerStore) ListByRun(_ context.Context, runID string) ([]*models.Checkpoint, error) {
	var out []*models.Checkpoint
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		var ids []string
		prefix := []byte(runIndexKeyPrefix + runID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			})
			if err != nil {
				return err
			}
		}

		for _, id := range ids {
			cp, err := readCheckpoint(txn, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, cp)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list run checkpoints: %w", err)
	}
	sortByCreated(out)
	return out, nil
}

// List returns every stored checkpoint.
func (s *BadgerStore) List(_ context.Context) ([]*models.Checkpoint, error) {
	var out []*models.Checkpoint
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(checkpointKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var cp models.Checkpoint
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &cp)
			}); err != nil {
				return err
			}
			out = append(out, &cp)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	sortByCreated(out)
	return out, nil
}

// Delete removes a checkpoint and its index entry.
func (s *BadgerStore) Delete(_ context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		cp, err := readCheckpoint(txn, id)
		if errors.Is(err, ErrNotFound) {
			return nil // Already deleted
		}
		if err != nil {
			return err
		}
		if err := txn.Delete(checkpointKey(id)); err != nil {
			return fmt.Errorf("delete checkpoint: %w", err)
		}
		if err := txn.Delete(runIndexKey(cp.RunID, id)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete run index: %w", err)
		}
		return nil
	})
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func readCheckpoint(txn *badger.Txn, id string) (*models.Checkpoint, error) {
	item, err := txn.Get(checkpointKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	var cp models.Checkpoint
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &cp)
	}); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &cp, nil
}

var _ Store = (*BadgerStore)(nil)
