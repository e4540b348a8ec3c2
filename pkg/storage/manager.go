package storage

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
	BackendBadger Backend = "badger"
)

const memoryDegree = 32

var ErrUnknownBackend = errors.New("unknown storage backend")

func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "", BackendMemory:
		return BackendMemory, nil
	case BackendSQLite, BackendBadger:
		return b, nil
	}
	return "", errors.Wrapf(ErrUnknownBackend, "%q", s)
}

// Manager owns the database handle every property index of a process shares.
// The handle is opened on first use. An empty path keeps sqlite and badger
// in memory.
type Manager struct {
	backend Backend
	path    string
	logger  *zap.Logger

	mu       sync.Mutex
	closed   bool
	memory   map[string]any
	sqlDB    *sql.DB
	sqlMu    sync.Mutex
	badgerDB *badger.DB
}

func NewManager(backend Backend, path string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{backend: backend, path: path, logger: logger, memory: make(map[string]any)}
}

func (m *Manager) Backend() Backend {
	return m.backend
}

// Open returns the property index called name, creating it if needed.
func Open[K Key](m *Manager, name string) (PropertyIndex[K], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	switch m.backend {
	case BackendMemory:
		if existing, ok := m.memory[name]; ok {
			idx, ok := existing.(*MemoryIndex[K])
			if !ok {
				return nil, errors.Newf("index %q was opened with another key type", name)
			}
			return idx, nil
		}
		idx := NewMemoryIndex[K](memoryDegree)
		m.memory[name] = idx
		return idx, nil
	case BackendSQLite:
		if m.sqlDB == nil {
			path := ":memory:"
			if m.path != "" {
				if err := os.MkdirAll(m.path, 0o755); err != nil {
					return nil, errors.Wrap(err, "create storage directory")
				}
				path = filepath.Join(m.path, "index.db")
			}
			db, err := openSQLite(path)
			if err != nil {
				return nil, err
			}
			m.logger.Info("[Storage] opened sqlite", zap.String("path", path))
			m.sqlDB = db
		}
		return newSQLiteIndex[K](m.sqlDB, &m.sqlMu, name), nil
	case BackendBadger:
		if m.badgerDB == nil {
			path := m.path
			if path != "" {
				path = filepath.Join(path, "badger")
			}
			db, err := openBadger(path, m.logger)
			if err != nil {
				return nil, err
			}
			m.logger.Info("[Storage] opened badger", zap.String("path", path))
			m.badgerDB = db
		}
		return newBadgerIndex[K](m.badgerDB, name), nil
	}
	return nil, errors.Wrapf(ErrUnknownBackend, "%q", m.backend)
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.memory = nil

	var errs error
	if m.sqlDB != nil {
		errs = errors.CombineErrors(errs, m.sqlDB.Close())
	}
	if m.badgerDB != nil {
		errs = errors.CombineErrors(errs, m.badgerDB.Close())
	}
	return errs
}
