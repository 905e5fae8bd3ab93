package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// dialect captures the differences between the SQL engines that share
// SQLStore.
type dialect struct {
	name string
	// schema statements run once on open.
	schema []string
	// order is the column that preserves first-insert order.
	order string
	// positional rewrites ? placeholders when the driver needs numbered ones.
	positional bool
	// classify maps driver errors onto ErrFull where possible.
	classify func(error) error
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore stores all collections in a single SQL database.
//
// Tables:
//
//	collections(name)                 PRIMARY KEY (name)
//	documents(collection, key, data)  PRIMARY KEY (collection, key)
type SQLStore struct {
	mu sync.RWMutex
	db *sql.DB
	d  dialect
}

func openSQL(db *sql.DB, d dialect) (*SQLStore, error) {
	for _, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s schema: %w", d.name, err)
		}
	}
	return &SQLStore{db: db, d: d}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders into $1, $2, ... for dialects that need it.
func (s *SQLStore) rebind(query string) string {
	if !s.d.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) fail(err error) error {
	if err == nil {
		return nil
	}
	if s.d.classify != nil {
		return s.d.classify(err)
	}
	return err
}

func (s *SQLStore) requireCollection(ctx context.Context, q querier, collection string) error {
	var one int
	err := q.QueryRowContext(ctx, s.rebind("SELECT 1 FROM collections WHERE name = ?"), collection).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoCollection
	}
	return err
}

func (s *SQLStore) CreateCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		s.rebind("INSERT INTO collections (name) VALUES (?) ON CONFLICT(name) DO NOTHING"),
		collection,
	)
	return s.fail(err)
}

func (s *SQLStore) GetAll(ctx context.Context, collection string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireCollection(ctx, s.db, collection); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT key, data FROM documents WHERE collection = ? ORDER BY "+s.d.order),
		collection,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Entry{}
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, key, err)
		}
		result = append(result, Entry{Key: key, Data: doc})
	}
	return result, rows.Err()
}

func (s *SQLStore) Get(ctx context.Context, collection, key string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireCollection(ctx, s.db, collection); err != nil {
		return nil, err
	}
	var raw string
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT data FROM documents WHERE collection = ? AND key = ?"),
		collection, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *SQLStore) Put(ctx context.Context, collection, key string, data map[string]any) error {
	return s.PutAll(ctx, collection, []Entry{{Key: key, Data: data}})
}

func (s *SQLStore) PutAll(ctx context.Context, collection string, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail(err)
	}
	defer tx.Rollback()

	if err := s.requireCollection(ctx, tx, collection); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, s.rebind(
		`INSERT INTO documents (collection, key, data) VALUES (?, ?, ?)
		 ON CONFLICT(collection, key) DO UPDATE SET data = excluded.data`,
	))
	if err != nil {
		return s.fail(err)
	}
	defer stmt.Close()
	for _, e := range entries {
		b, err := json.Marshal(e.Data)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, collection, e.Key, string(b)); err != nil {
			return s.fail(err)
		}
	}
	return s.fail(tx.Commit())
}

func (s *SQLStore) Delete(ctx context.Context, collection, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireCollection(ctx, s.db, collection); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		s.rebind("DELETE FROM documents WHERE collection = ? AND key = ?"),
		collection, key,
	)
	if err != nil {
		return false, s.fail(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLStore) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireCollection(ctx, s.db, collection); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT COUNT(*) FROM documents WHERE collection = ?"),
		collection,
	).Scan(&n)
	return n, err
}
