package nodestore

import (
	"context"
	"errors"
	"regexp"
)

var (
	// ErrNotFound is returned by ObjectStore.Get for a missing key.
	ErrNotFound = errors.New("object not found")

	// ErrRecordExists is returned when a document id is already taken in a collection.
	ErrRecordExists = errors.New("record already exists")

	// ErrSchemaExists is returned when registering a collection id twice.
	ErrSchemaExists = errors.New("schema already exists")

	// ErrSchemaNotFound is returned for operations on an unknown collection.
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrQueryExists is returned when registering a query id twice.
	ErrQueryExists = errors.New("query already exists")

	// ErrQueryNotFound is returned when executing an unknown query.
	ErrQueryNotFound = errors.New("query not found")

	// ErrInvalidID is returned for ids that cannot be used as an object key segment.
	ErrInvalidID = errors.New("invalid id")
)

// ObjectStore is a flat key-value blob store.
type ObjectStore interface {
	// Get returns the object stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores data under key, replacing any previous object.
	Put(ctx context.Context, key string, data []byte) error

	// List returns the keys stored directly below prefix, which must end in "/".
	List(ctx context.Context, prefix string) ([]string, error)

	// Available reports whether the store can currently be reached.
	Available(ctx context.Context) bool

	// Name returns a short identifier for logs.
	Name() string

	// LocationURI returns the URI the store was created from, with credentials masked.
	LocationURI() string
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)

// ValidID reports whether id can be used as a key segment.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}
