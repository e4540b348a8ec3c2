package storage

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"geoindex/pkg/common"
)

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// a single connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec(`
			PRAGMA journal_mode = WAL;
			PRAGMA synchronous = NORMAL;
		`); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "set sqlite pragmas")
		}
	}
	return db, nil
}

// SQLiteIndex stores one property index as a table of (id, key) rows with a
// secondary index on key.
type SQLiteIndex[K Key] struct {
	db      *sql.DB
	mu      *sync.Mutex
	table   string
	keyType string
	created bool
}

func newSQLiteIndex[K Key](db *sql.DB, mu *sync.Mutex, name string) *SQLiteIndex[K] {
	keyType := "INTEGER"
	if isStringKey[K]() {
		keyType = "TEXT"
	}
	return &SQLiteIndex[K]{db: db, mu: mu, table: sanitizeName(name), keyType: keyType}
}

// ensureLocked creates the table on first use and after Drop.
func (s *SQLiteIndex[K]) ensureLocked() error {
	if s.created {
		return nil
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id INTEGER PRIMARY KEY,
			key %[2]s NOT NULL
		);
		CREATE INDEX IF NOT EXISTS %[1]s_key ON %[1]s (key, id);`, s.table, s.keyType)
	if _, err := s.db.Exec(ddl); err != nil {
		return errors.Wrapf(err, "create table %s", s.table)
	}
	s.created = true
	return nil
}

func (s *SQLiteIndex[K]) Add(id int64, key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLocked(); err != nil {
		return err
	}
	_, err := s.db.Exec(fmt.Sprintf("INSERT OR REPLACE INTO %s (id, key) VALUES (?, ?)", s.table), id, key)
	return errors.Wrapf(err, "insert into %s", s.table)
}

func (s *SQLiteIndex[K]) AddBatch(entries []Entry[K]) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLocked(); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin batch")
	}

	stmt, err := tx.Prepare(fmt.Sprintf("INSERT OR REPLACE INTO %s (id, key) VALUES (?, ?)", s.table))
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "prepare batch")
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(e.ID, e.Key); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "batch insert id %d", e.ID)
		}
	}

	return errors.Wrap(tx.Commit(), "commit batch")
}

func (s *SQLiteIndex[K]) Remove(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLocked(); err != nil {
		return false, err
	}
	res, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.table), id)
	if err != nil {
		return false, errors.Wrapf(err, "delete from %s", s.table)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteIndex[K]) Lookup(id int64) (K, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var key K
	if err := s.ensureLocked(); err != nil {
		return key, false, err
	}
	err := s.db.QueryRow(fmt.Sprintf("SELECT key FROM %s WHERE id = ?", s.table), id).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return key, false, nil
	}
	if err != nil {
		return key, false, errors.Wrapf(err, "lookup id %d", id)
	}
	return key, true, nil
}

func (s *SQLiteIndex[K]) QueryRange(r common.CurveRange[K]) ([]int64, error) {
	return s.queryIDs(fmt.Sprintf("SELECT id FROM %s WHERE key BETWEEN ? AND ? ORDER BY key, id", s.table), r.Min, r.Max)
}

func (s *SQLiteIndex[K]) QueryAll() ([]int64, error) {
	return s.queryIDs(fmt.Sprintf("SELECT id FROM %s ORDER BY key, id", s.table))
}

func (s *SQLiteIndex[K]) queryIDs(query string, args ...any) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLocked(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", s.table)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteIndex[K]) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLocked(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)).Scan(&n)
	return n, errors.Wrapf(err, "count %s", s.table)
}

func (s *SQLiteIndex[K]) Drop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", s.table)); err != nil {
		return errors.Wrapf(err, "drop %s", s.table)
	}
	s.created = false
	return nil
}
