package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"sitemirror/pkg/log"
	"sitemirror/pkg/models"
	"sitemirror/pkg/utils"
)

const (
	objectKeyPrefix = "obj:"      // Body of a mirrored object
	metaKeyPrefix   = "meta:"     // JSON-encoded tag map of the same object
	mirrorDBDir     = "mirror_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements ObjectStore on a local BadgerDB
type BadgerStore struct {
	db  *badger.DB
	log *logrus.Entry
}

var _ ObjectStore = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) the object database for host under stateDir
func NewBadgerStore(stateDir, host string, logger *logrus.Entry) (*BadgerStore, error) {
	dbPath := filepath.Join(stateDir, utils.StateDirName(host)+"_"+mirrorDBDir)
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrDatabase, dbPath, err)
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogrusAdapter(logger)).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}
	logger.Infof("Object database opened at %s", dbPath)
	return &BadgerStore{db: db, log: logger}, nil
}

const maxConflictRetries = 10

// dbUpdate retries db.Update on transaction conflicts, which resolve almost immediately
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// Head implements ObjectStore
func (s *BadgerStore) Head(_ context.Context, key string) (models.ObjectMeta, bool, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaKeyPrefix + key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.ObjectMeta{}, false, nil
	}
	if err != nil {
		return models.ObjectMeta{}, false, fmt.Errorf("%w: reading metadata of '%s': %w", utils.ErrDatabase, key, err)
	}

	var tags map[string]string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return models.ObjectMeta{}, false, fmt.Errorf("%w: metadata of '%s': %w", utils.ErrParsing, key, err)
	}
	meta, err := models.MetaFromTags(tags)
	if err != nil {
		return models.ObjectMeta{}, false, fmt.Errorf("%w: metadata of '%s': %w", utils.ErrParsing, key, err)
	}
	return meta, true, nil
}

// Get implements ObjectStore
func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, error) {
	var body []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(objectKeyPrefix + key))
		if err != nil {
			return err
		}
		body, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", utils.ErrStoreMiss, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading object '%s': %w", utils.ErrDatabase, key, err)
	}
	return body, nil
}

// Put implements ObjectStore. Body and metadata share one transaction.
func (s *BadgerStore) Put(_ context.Context, obj models.StoredObject) error {
	tags, err := json.Marshal(obj.Meta.Tags())
	if err != nil {
		return fmt.Errorf("%w: encoding metadata of '%s': %w", utils.ErrParsing, obj.Key, err)
	}
	err = s.dbUpdate(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(objectKeyPrefix+obj.Key), obj.Body); err != nil {
			return err
		}
		return txn.Set([]byte(metaKeyPrefix+obj.Key), tags)
	})
	if err != nil {
		s.log.WithField("key", obj.Key).Errorf("DB Update error in Put: %v", err)
		return fmt.Errorf("%w: writing object '%s': %w", utils.ErrDatabase, obj.Key, err)
	}
	return nil
}

// RunGC runs value log garbage collection every interval until ctx is done.
// Should be run in a goroutine.
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.db.IsClosed() {
				return
			}
			var err error
			for err == nil {
				err = s.db.RunValueLogGC(0.5)
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}
		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB GC: %v", ctx.Err())
			return
		}
	}
}

// Close implements ObjectStore
func (s *BadgerStore) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		s.log.Errorf("Error closing object DB: %v", err)
		return err
	}
	s.log.Info("Object DB closed.")
	return nil
}
