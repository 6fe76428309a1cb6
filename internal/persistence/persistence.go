// Package persistence stores JSON documents in named collections and
// implements the versioned save used to detect concurrent writers.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrConflictingVersions means another writer advanced the stored
	// version since the document was loaded. Reload and retry.
	ErrConflictingVersions = errors.New("conflicting versions")
	// ErrMissingID is returned before any I/O for documents without id.
	ErrMissingID = errors.New("given object has no valid id")
)

// Document is anything stored under an id.
type Document interface {
	DocumentID() string
}

// Versioned documents carry the counter checked by SaveWithVersion.
type Versioned interface {
	Document
	Version() int
	SetVersion(int)
}

// Record is a stored document in its raw form.
type Record struct {
	ID      string
	Version int
	Data    []byte
}

// Op is a comparison used in queries on top-level document fields.
type Op string

const (
	Eq  Op = "="
	Gt  Op = ">"
	Gte Op = ">="
	Lt  Op = "<"
	Lte Op = "<="
	In  Op = "in"
)

// Cond compares a top-level JSON field with a value. For In the value must be
// a []string.
type Cond struct {
	Field string
	Op    Op
	Value any
}

// Query is a conjunction of conditions.
type Query []Cond

// Where is shorthand for a single equality condition.
func Where(field string, value any) Query {
	return Query{{Field: field, Op: Eq, Value: value}}
}

// And appends an equality condition.
func (q Query) And(field string, value any) Query {
	return append(q, Cond{Field: field, Op: Eq, Value: value})
}

// Sort orders by a top-level field. Without sort, insertion order is used.
type Sort struct {
	Field string
	Desc  bool
}

// Store is the persistence contract consumed by the domain stores. Lookups
// report absence with found=false rather than an error.
type Store interface {
	GetByID(ctx context.Context, collection, id string) (rec Record, found bool, err error)
	GetByField(ctx context.Context, collection string, q Query) (rec Record, found bool, err error)
	ListByField(ctx context.Context, collection string, q Query, sort ...Sort) ([]Record, error)
	// Save upserts doc unconditionally.
	Save(ctx context.Context, collection string, doc Document) error
	// SaveWithVersion increments the version of doc and stores it only if
	// the stored version still equals the previous one. On conflict the
	// version of doc is restored and ErrConflictingVersions returned.
	SaveWithVersion(ctx context.Context, collection string, doc Versioned) error
	Close() error
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateField(field string) error {
	if !fieldPattern.MatchString(field) {
		return fmt.Errorf("invalid field name %q", field)
	}
	return nil
}

func versionOf(doc Document) int {
	if v, ok := doc.(Versioned); ok {
		return v.Version()
	}
	return 0
}
