package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// JSON keys fixed by the wire format. Upstream producers emit upper-snake keys.
const (
	FieldDataSource = "DATA_SOURCE"
	FieldEntityType = "ENTITY_TYPE"
	FieldRecordID   = "RECORD_ID"
)

var (
	ErrEmptyLine         = errors.New("empty line")
	ErrInvalidJSON       = errors.New("line is not a valid JSON object")
	ErrMissingRecordID   = errors.New("record has no RECORD_ID")
	ErrMissingDataSource = errors.New("record has no DATA_SOURCE")
)

// Record is a single JSON-lines entity record headed for the record store.
type Record struct {
	fields map[string]interface{}
}

// Parse builds a Record from one line of input. Surrounding whitespace is
// ignored; an all-whitespace line yields ErrEmptyLine.
func Parse(line string) (*Record, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, ErrEmptyLine
	}
	fields := make(map[string]interface{})
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return &Record{fields: fields}, nil
}

func (r *Record) stringField(key string) string {
	value, ok := r.fields[key]
	if !ok {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (r *Record) DataSource() string {
	return r.stringField(FieldDataSource)
}

func (r *Record) EntityType() string {
	return r.stringField(FieldEntityType)
}

func (r *Record) RecordID() string {
	return r.stringField(FieldRecordID)
}

// EnsureDataSource sets DATA_SOURCE when the record carries none. A value
// already present always wins over the configured default.
func (r *Record) EnsureDataSource(dataSource string) {
	if dataSource == "" {
		return
	}
	if _, ok := r.fields[FieldDataSource]; !ok {
		r.fields[FieldDataSource] = dataSource
	}
}

// EnsureEntityType sets ENTITY_TYPE when the record carries none.
func (r *Record) EnsureEntityType(entityType string) {
	if entityType == "" {
		return
	}
	if _, ok := r.fields[FieldEntityType]; !ok {
		r.fields[FieldEntityType] = entityType
	}
}

// Validate checks the keys the record store insert requires.
func (r *Record) Validate() error {
	if r.RecordID() == "" {
		return ErrMissingRecordID
	}
	if r.DataSource() == "" {
		return ErrMissingDataSource
	}
	return nil
}

// Canonical renders the record as deterministic JSON. Map marshalling sorts
// keys, so equal records always serialise identically.
func (r *Record) Canonical() (string, error) {
	out, err := json.Marshal(r.fields)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
