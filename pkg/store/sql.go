package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLTable is a document table: each entity is stored as JSON under its key.
// The statements run unchanged on PostgreSQL and SQLite.
type SQLTable[T Entity] struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// NewSQLTable returns a table backed by the named SQL table. The table must
// already exist (see database.RunMigrations).
func NewSQLTable[T Entity](db *sql.DB, table string) *SQLTable[T] {
	return &SQLTable[T]{db: db, table: table, now: time.Now}
}

func (s *SQLTable[T]) Get(ctx context.Context, key string) (T, error) {
	var zero T
	var doc []byte
	err := s.db.QueryRowContext(ctx, "SELECT doc FROM "+s.table+" WHERE id = $1", key).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("get %s/%s: %w", s.table, key, err)
	}

	var entity T
	if err := json.Unmarshal(doc, &entity); err != nil {
		return zero, fmt.Errorf("decode %s/%s: %w", s.table, key, err)
	}
	return entity, nil
}

func (s *SQLTable[T]) Scan(ctx context.Context) ([]T, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT doc FROM "+s.table+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.table, err)
	}
	defer rows.Close()

	entities := []T{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table, err)
		}
		var entity T
		if err := json.Unmarshal(doc, &entity); err != nil {
			return nil, fmt.Errorf("decode %s row: %w", s.table, err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.table, err)
	}
	return entities, nil
}

func (s *SQLTable[T]) Put(ctx context.Context, entity T) error {
	doc, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", s.table, entity.Key(), err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+s.table+` (id, doc, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		entity.Key(), string(doc), s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", s.table, entity.Key(), err)
	}
	return nil
}

func (s *SQLTable[T]) PutIfAbsent(ctx context.Context, entity T) error {
	doc, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", s.table, entity.Key(), err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO `+s.table+` (id, doc, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`,
		entity.Key(), string(doc), s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", s.table, entity.Key(), err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", s.table, entity.Key(), err)
	}
	if n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

var _ Table[Entity] = (*SQLTable[Entity])(nil)
