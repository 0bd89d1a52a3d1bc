package docstore

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glowhub/portal/internal/clock"
	"github.com/glowhub/portal/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Store is the document store the portal persists through. It mirrors the
// read/subscribe/write surface of the hosted document database, plus a
// conditional-create primitive used for idempotency keys.
type Store interface {
	GetDocument(ctx context.Context, collection, id string) (Record, error)
	SetDocument(ctx context.Context, collection, id string, rec Record) error
	UpdateDocument(ctx context.Context, collection, id string, fields Record) error
	AddDocument(ctx context.Context, collection string, rec Record) (string, error)
	DeleteDocument(ctx context.Context, collection, id string) error
	// CreateIfAbsent inserts the record only when no document in the
	// collection carries the same unique key. It reports whether the
	// insert happened.
	CreateIfAbsent(ctx context.Context, collection, uniqueKey string, rec Record) (bool, string, error)
	Query(ctx context.Context, collection string, filters ...Filter) ([]Record, error)
	Subscribe(collection string, filters ...Filter) (*Subscription, error)
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type store struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	hub   *changeHub
}

// New builds the gorm-backed document store.
func New(p Params) (Store, error) {
	if err := p.DB.AutoMigrate(&Document{}); err != nil {
		return nil, err
	}
	return &store{
		db:    p.DB,
		log:   p.Log.Named("docstore"),
		genID: p.GenID,
		clock: p.Clock,
		hub:   newChangeHub(),
	}, nil
}

// Module wires the document store.
var Module = fx.Module("docstore",
	fx.Provide(New),
)

func (s *store) GetDocument(ctx context.Context, collection, id string) (Record, error) {
	collection, id, err := normalizeKey(collection, id)
	if err != nil {
		return nil, err
	}

	var doc Document
	err = s.db.WithContext(ctx).Raw(
		`SELECT id, collection, doc_id, unique_key, data, created_at, updated_at
		 FROM documents WHERE collection = ? AND doc_id = ?`,
		collection,
		id,
	).Scan(&doc).Error
	if err != nil {
		return nil, err
	}
	if doc.ID == 0 {
		return nil, ErrNotFound
	}
	return recordOf(doc), nil
}

func (s *store) SetDocument(ctx context.Context, collection, id string, rec Record) error {
	collection, id, err := normalizeKey(collection, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrInvalidRecord
	}

	data := s.resolve(rec)
	data["id"] = id
	now := s.clock.Now()

	result := s.db.WithContext(ctx).Exec(
		`INSERT INTO documents (id, collection, doc_id, unique_key, data, created_at, updated_at)
		 VALUES (?, ?, ?, NULL, ?, ?, ?)
		 ON CONFLICT (collection, doc_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		s.genID.Generate(),
		collection,
		id,
		datatypes.JSONMap(data),
		now,
		now,
	)
	if result.Error != nil {
		return result.Error
	}

	s.notify(collection, data, nil)
	return nil
}

func (s *store) UpdateDocument(ctx context.Context, collection, id string, fields Record) error {
	collection, id, err := normalizeKey(collection, id)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return ErrInvalidRecord
	}

	resolved := s.resolve(fields)
	var merged Record
	var previous Record

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc Document
		if err := tx.Raw(
			`SELECT id, collection, doc_id, unique_key, data, created_at, updated_at
			 FROM documents WHERE collection = ? AND doc_id = ?`,
			collection,
			id,
		).Scan(&doc).Error; err != nil {
			return err
		}
		if doc.ID == 0 {
			return ErrNotFound
		}

		previous = recordOf(doc)
		merged = cloneRecord(previous)
		for field, value := range resolved {
			merged[field] = value
		}
		merged["id"] = id

		return tx.Exec(
			`UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND doc_id = ?`,
			datatypes.JSONMap(merged),
			s.clock.Now(),
			collection,
			id,
		).Error
	})
	if err != nil {
		return err
	}

	s.notify(collection, merged, previous)
	return nil
}

func (s *store) AddDocument(ctx context.Context, collection string, rec Record) (string, error) {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return "", ErrInvalidCollection
	}
	if rec == nil {
		return "", ErrInvalidRecord
	}

	id := s.genID.Generate().String()
	data := s.resolve(rec)
	data["id"] = id
	now := s.clock.Now()

	err := s.db.WithContext(ctx).Exec(
		`INSERT INTO documents (id, collection, doc_id, unique_key, data, created_at, updated_at)
		 VALUES (?, ?, ?, NULL, ?, ?, ?)`,
		s.genID.Generate(),
		collection,
		id,
		datatypes.JSONMap(data),
		now,
		now,
	).Error
	if err != nil {
		return "", err
	}

	s.notify(collection, data, nil)
	return id, nil
}

func (s *store) DeleteDocument(ctx context.Context, collection, id string) error {
	collection, id, err := normalizeKey(collection, id)
	if err != nil {
		return err
	}

	var doc Document
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id, collection, doc_id, unique_key, data, created_at, updated_at
		 FROM documents WHERE collection = ? AND doc_id = ?`,
		collection,
		id,
	).Scan(&doc).Error; err != nil {
		return err
	}
	if doc.ID == 0 {
		// Deleting a missing document is a no-op.
		return nil
	}

	result := s.db.WithContext(ctx).Exec(
		`DELETE FROM documents WHERE collection = ? AND doc_id = ?`,
		collection,
		id,
	)
	if result.Error != nil {
		return result.Error
	}

	s.notify(collection, nil, recordOf(doc))
	return nil
}

func (s *store) CreateIfAbsent(ctx context.Context, collection, uniqueKey string, rec Record) (bool, string, error) {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return false, "", ErrInvalidCollection
	}
	uniqueKey = strings.TrimSpace(uniqueKey)
	if uniqueKey == "" {
		return false, "", ErrInvalidDocumentID
	}
	if rec == nil {
		return false, "", ErrInvalidRecord
	}

	id := s.genID.Generate().String()
	data := s.resolve(rec)
	data["id"] = id
	now := s.clock.Now()

	result := s.db.WithContext(ctx).Exec(
		`INSERT INTO documents (id, collection, doc_id, unique_key, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (collection, unique_key) DO NOTHING`,
		s.genID.Generate(),
		collection,
		id,
		uniqueKey,
		datatypes.JSONMap(data),
		now,
		now,
	)
	if result.Error != nil {
		// Some drivers report the conflict instead of swallowing it.
		if db.IsDuplicateKeyErr(result.Error) {
			return false, "", nil
		}
		return false, "", result.Error
	}
	if result.RowsAffected == 0 {
		return false, "", nil
	}

	s.notify(collection, data, nil)
	return true, id, nil
}

func (s *store) Query(ctx context.Context, collection string, filters ...Filter) ([]Record, error) {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, ErrInvalidCollection
	}

	stmt := s.db.WithContext(ctx).
		Model(&Document{}).
		Where("collection = ?", collection)
	for _, f := range filters {
		stmt = stmt.Where(datatypes.JSONQuery("data").Equals(f.Value, f.Field))
	}

	var docs []Document
	if err := stmt.Order("created_at asc, id asc").Find(&docs).Error; err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, recordOf(doc))
	}
	return records, nil
}

func (s *store) Subscribe(collection string, filters ...Filter) (*Subscription, error) {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, ErrInvalidCollection
	}
	return s.hub.subscribe(collection, filters), nil
}

// notify republishes the matching set to every subscriber affected by a
// change. Snapshots are built after commit, so subscribers always observe
// persisted state.
func (s *store) notify(collection string, newRec, oldRec Record) {
	subs := s.hub.subscribers(collection, newRec, oldRec)
	if len(subs) == 0 {
		return
	}

	for _, sub := range subs {
		records, err := s.Query(context.Background(), collection, sub.filters...)
		if err != nil {
			s.log.Warn("snapshot query failed",
				zap.String("collection", collection),
				zap.Error(err),
			)
			continue
		}
		sub.deliver(Snapshot{Collection: collection, Records: records})
	}
}

// resolve deep-copies a record and replaces server timestamp markers with
// the commit time.
func (s *store) resolve(rec Record) Record {
	now := s.clock.Now().UTC().Format(time.RFC3339Nano)
	return resolveValue(rec, now).(Record)
}

func resolveValue(v any, now string) any {
	switch value := v.(type) {
	case serverTimestamp:
		return now
	case Record:
		out := make(Record, len(value))
		for k, item := range value {
			out[k] = resolveValue(item, now)
		}
		return out
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = resolveValue(item, now)
		}
		return out
	default:
		return v
	}
}

func cloneRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func recordOf(doc Document) Record {
	rec := cloneRecord(Record(doc.Data))
	rec["id"] = doc.DocID
	return rec
}

func normalizeKey(collection, id string) (string, string, error) {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return "", "", ErrInvalidCollection
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", "", ErrInvalidDocumentID
	}
	return collection, id, nil
}
