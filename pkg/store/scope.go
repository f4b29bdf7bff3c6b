package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
	"github.com/glorpus-work/modelkeep/pkg/errutils"
	"github.com/glorpus-work/modelkeep/pkg/model"
)

// Field names one persisted value of a scope.
type Field string

// Persisted fields.
const (
	FieldDescriptor     Field = "descriptor"
	FieldCatalogID      Field = "catalog_id"
	FieldCatalogVersion Field = "catalog_version"
	FieldCompletedAt    Field = "completed_at"
	FieldFilename       Field = "filename"
	FieldPath           Field = "path"
	FieldProgressGB     Field = "progress_gb"
	FieldTotalGB        Field = "total_gb"
	FieldError          Field = "error"
	FieldResumeToken    Field = "resume_token"
	FieldPaused         Field = "paused"
	FieldFileRemoved    Field = "file_removed"
)

const (
	keyRoot = "modelkeep/"

	// GlobalScope is the single app-wide slot.
	GlobalScope = "global"

	providerPrefix = "provider/"
)

var providerIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateScope accepts "global" and "provider/<id>".
func ValidateScope(name string) error {
	if name == GlobalScope {
		return nil
	}
	if id, ok := strings.CutPrefix(name, providerPrefix); ok && providerIDPattern.MatchString(id) {
		return nil
	}
	return errutils.ErrScopeInvalidWithName(name)
}

// ProviderScope returns the scope name for a provider id.
func ProviderScope(id string) string {
	return providerPrefix + id
}

func fieldKey(scope string, f Field) []byte {
	return []byte(keyRoot + scope + "/" + string(f))
}

func scopePrefix(scope string) []byte {
	return []byte(keyRoot + scope + "/")
}

// splitKey turns modelkeep/<scope>/<field> back into its parts. Scope names may
// themselves contain one slash, so the field is everything after the last slash.
func splitKey(key string) (string, Field, bool) {
	rest, ok := strings.CutPrefix(key, keyRoot)
	if !ok {
		return "", "", false
	}
	i := strings.LastIndex(rest, "/")
	if i <= 0 {
		return "", "", false
	}
	return rest[:i], Field(rest[i+1:]), true
}

// Scope reads and writes the record of one persistence scope.
type Scope struct {
	db   *badger.DB
	name string
}

// Name returns the scope name.
func (s *Scope) Name() string {
	return s.name
}

// Record loads every persisted field of the scope. Malformed values degrade to
// their zero value.
func (s *Scope) Record() (model.Record, error) {
	fields := make(map[Field][]byte)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = scopePrefix(s.name)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			_, field, ok := splitKey(string(item.Key()))
			if !ok {
				continue
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			fields[field] = val
		}
		return nil
	})
	if err != nil {
		return model.Record{}, fmt.Errorf("load scope %s: %w", s.name, err)
	}
	return decodeRecord(fields), nil
}

// Update applies every write staged by fn in a single transaction.
func (s *Scope) Update(fn func(tx *Tx)) error {
	tx := &Tx{writes: make(map[Field][]byte)}
	fn(tx)
	if tx.err != nil {
		return fmt.Errorf("update scope %s: %w", s.name, tx.err)
	}
	if len(tx.writes) == 0 {
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for f, v := range tx.writes {
			key := fieldKey(s.name, f)
			if v == nil {
				if err := txn.Delete(key); err != nil {
					return err
				}
				continue
			}
			if err := txn.Set(key, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update scope %s: %w", s.name, err)
	}
	return nil
}

// Watch calls fn with the fresh record after every committed write to the scope,
// until ctx is done. It blocks; run it on its own goroutine.
func (s *Scope) Watch(ctx context.Context, fn func(model.Record)) error {
	err := s.db.Subscribe(ctx, func(_ *badger.KVList) error {
		rec, err := s.Record()
		if err != nil {
			return err
		}
		fn(rec)
		return nil
	}, []pb.Match{{Prefix: scopePrefix(s.name)}})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Tx stages field writes for Scope.Update. A nil value deletes the field.
type Tx struct {
	writes map[Field][]byte
	err    error
}

// SetString stores a string field; the empty string clears it.
func (tx *Tx) SetString(f Field, v string) {
	if v == "" {
		tx.Clear(f)
		return
	}
	tx.writes[f] = []byte(v)
}

// SetFloat stores a float field.
func (tx *Tx) SetFloat(f Field, v float64) {
	tx.writes[f] = []byte(strconv.FormatFloat(v, 'f', -1, 64))
}

// SetBool stores a bool field.
func (tx *Tx) SetBool(f Field, v bool) {
	tx.writes[f] = []byte(strconv.FormatBool(v))
}

// SetTime stores a timestamp field.
func (tx *Tx) SetTime(f Field, v time.Time) {
	tx.writes[f] = []byte(v.UTC().Format(time.RFC3339Nano))
}

// SetBytes stores a raw field; empty clears it.
func (tx *Tx) SetBytes(f Field, v []byte) {
	if len(v) == 0 {
		tx.Clear(f)
		return
	}
	tx.writes[f] = append([]byte(nil), v...)
}

// SetDescriptor stores the descriptor as JSON; nil clears it.
func (tx *Tx) SetDescriptor(d *model.Descriptor) {
	if d == nil {
		tx.Clear(FieldDescriptor)
		return
	}
	data, err := json.Marshal(d)
	if err != nil {
		tx.err = fmt.Errorf("encode descriptor: %w", err)
		return
	}
	tx.writes[FieldDescriptor] = data
}

// Clear deletes a field.
func (tx *Tx) Clear(f Field) {
	tx.writes[f] = nil
}

func decodeRecord(fields map[Field][]byte) model.Record {
	rec := model.Record{
		Descriptor:     model.DecodeDescriptor(fields[FieldDescriptor]),
		CatalogID:      string(fields[FieldCatalogID]),
		CatalogVersion: string(fields[FieldCatalogVersion]),
	}
	dl := &rec.Download
	dl.Filename = string(fields[FieldFilename])
	dl.Path = string(fields[FieldPath])
	dl.ProgressGB = parseFloat(fields[FieldProgressGB])
	dl.TotalGB = parseFloat(fields[FieldTotalGB])
	dl.Paused = parseBool(fields[FieldPaused])
	dl.Error = string(fields[FieldError])
	dl.FileRemoved = parseBool(fields[FieldFileRemoved])
	dl.CompletedAt = parseTime(fields[FieldCompletedAt])
	if tok := fields[FieldResumeToken]; len(tok) > 0 && json.Valid(tok) {
		dl.ResumeToken = tok
	}
	return rec
}

func parseFloat(b []byte) float64 {
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseBool(b []byte) bool {
	v, err := strconv.ParseBool(string(b))
	return err == nil && v
}

func parseTime(b []byte) *time.Time {
	if len(b) == 0 {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, string(b))
	if err != nil {
		return nil
	}
	return &t
}
