// Package store is the persistence collaborator: a badger-backed key/row store
// holding one record per persistence scope. Every field of a record lives under its
// own key, modelkeep/<scope>/<field>, so consumers can subscribe to exactly the
// fields they render.
package store

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/glorpus-work/modelkeep/pkg/errutils"
	"github.com/glorpus-work/modelkeep/pkg/fsutil"
)

// Config holds configuration for the store's badger instance.
type Config struct {
	// Path is the directory for badger files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Useful for testing.
	InMemory bool

	// SyncWrites makes every commit durable before returning.
	SyncWrites bool

	// Logger receives badger's internal logging. Nil disables it.
	Logger *slog.Logger
}

// DefaultConfig returns a durable configuration rooted at path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns configuration optimized for testing.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// DB is an open store.
type DB struct {
	bdb *badger.DB
}

// Open opens the store described by cfg, creating its directory when needed.
func Open(cfg Config) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("store path is required for persistent database: %w", errutils.ErrInvalidPath)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, fsutil.DirModeSecure); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &DB{bdb: bdb}, nil
}

// Close releases the underlying database.
func (db *DB) Close() error {
	if db == nil || db.bdb == nil {
		return nil
	}
	return db.bdb.Close()
}

// Scope returns the handle for one persistence scope.
func (db *DB) Scope(name string) (*Scope, error) {
	if err := ValidateScope(name); err != nil {
		return nil, err
	}
	if db.bdb.IsClosed() {
		return nil, errutils.ErrStoreClosed
	}
	return &Scope{db: db.bdb, name: name}, nil
}

// ListScopes returns every scope that has at least one persisted field.
func (db *DB) ListScopes() ([]string, error) {
	seen := make(map[string]bool)
	var scopes []string
	err := db.bdb.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyRoot)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			scope, _, ok := splitKey(string(it.Item().Key()))
			if !ok || seen[scope] {
				continue
			}
			seen[scope] = true
			scopes = append(scopes, scope)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	return scopes, nil
}
