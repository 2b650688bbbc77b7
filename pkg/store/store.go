// Package store is the key-value record store behind users and ERP audit rows.
//
// Every entity has a single string primary key. A Table offers only
// single-key operations; there are no multi-key transactions.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when no entity has the key.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned by PutIfAbsent when the key is taken.
	ErrAlreadyExists = errors.New("record already exists")
)

// Entity is anything stored under a string key.
type Entity interface {
	Key() string
}

// Table stores entities of one type.
type Table[T Entity] interface {
	// Get returns the entity stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (T, error)
	// Scan returns every entity in the table.
	Scan(ctx context.Context) ([]T, error)
	// Put stores the entity, replacing any entity with the same key.
	Put(ctx context.Context, entity T) error
	// PutIfAbsent stores the entity only if its key is unused.
	PutIfAbsent(ctx context.Context, entity T) error
}

// Table names.
const (
	UsersTable          = "users"
	ProcessedUsersTable = "erp_processed_users"
)
