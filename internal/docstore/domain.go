package docstore

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Record is a schemaless document payload.
type Record = map[string]any

// Filter is a field equality predicate applied to queries and subscriptions.
type Filter struct {
	Field string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Snapshot is the full set of records matching a subscription's filters
// at the time of a change.
type Snapshot struct {
	Collection string
	Records    []Record
}

var (
	ErrNotFound          = errors.New("not_found")
	ErrInvalidCollection = errors.New("invalid_collection")
	ErrInvalidDocumentID = errors.New("invalid_document_id")
	ErrInvalidRecord     = errors.New("invalid_record")
	ErrStoreClosed       = errors.New("store_closed")
)

type serverTimestamp struct{}

// ServerTimestamp is an opaque marker resolved to the commit time by the
// store. Writers place it in a Record field instead of a concrete time.
var ServerTimestamp = serverTimestamp{}

// Document is the persisted row backing one record.
type Document struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	Collection string            `gorm:"not null;index;uniqueIndex:ux_documents_collection_doc,priority:1;uniqueIndex:ux_documents_collection_key,priority:1"`
	DocID      string            `gorm:"column:doc_id;not null;uniqueIndex:ux_documents_collection_doc,priority:2"`
	UniqueKey  *string           `gorm:"uniqueIndex:ux_documents_collection_key,priority:2"`
	Data       datatypes.JSONMap `gorm:"not null"`
	CreatedAt  time.Time         `gorm:"not null"`
	UpdatedAt  time.Time         `gorm:"not null"`
}

// TableName sets the database table name.
func (Document) TableName() string { return "documents" }

// Decode maps a record onto a typed value via JSON round-trip.
func Decode(rec Record, out any) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// Encode maps a typed value into a record via JSON round-trip.
func Encode(in any) (Record, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// normalizeValue reduces a value to its JSON shape so that filter
// comparisons behave the same for stored and in-memory values.
func normalizeValue(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func matchValue(a, b any) bool {
	na := normalizeValue(a)
	nb := normalizeValue(b)
	return equalJSON(na, nb)
}

func equalJSON(a, b any) bool {
	ra, errA := json.Marshal(a)
	rb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ra) == string(rb)
}

func matchesFilters(rec Record, filters []Filter) bool {
	if rec == nil {
		return false
	}
	for _, f := range filters {
		value, ok := rec[f.Field]
		if !ok {
			return false
		}
		if !matchValue(value, f.Value) {
			return false
		}
	}
	return true
}
