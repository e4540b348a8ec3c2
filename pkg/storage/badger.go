package storage

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"geoindex/pkg/common"
)

// badgerLogger adapts zap to badger's Logger interface.
type badgerLogger struct {
	logger *zap.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// openBadger opens a database under path, or in memory when path is empty.
func openBadger(path string, logger *zap.Logger) (*badger.DB, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0750); err != nil {
			return nil, errors.Wrapf(err, "create badger directory %s", path)
		}
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(&badgerLogger{logger: logger.Named("badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger database")
	}
	return db, nil
}

// BadgerIndex lays one property index out under its own key prefix:
//
//	<name>/k/<encoded key><id>  forward entries, iterated for ranges
//	<name>/i/<id>               -> encoded key, for removal and lookup
type BadgerIndex[K Key] struct {
	db      *badger.DB
	forward []byte
	reverse []byte
}

func newBadgerIndex[K Key](db *badger.DB, name string) *BadgerIndex[K] {
	prefix := sanitizeName(name)
	return &BadgerIndex[K]{
		db:      db,
		forward: []byte(prefix + "/k/"),
		reverse: []byte(prefix + "/i/"),
	}
}

func (b *BadgerIndex[K]) forwardKey(encKey []byte, id int64) []byte {
	k := make([]byte, 0, len(b.forward)+len(encKey)+8)
	k = append(k, b.forward...)
	k = append(k, encKey...)
	return append(k, encodeInt64(id)...)
}

func (b *BadgerIndex[K]) reverseKey(id int64) []byte {
	k := make([]byte, 0, len(b.reverse)+8)
	k = append(k, b.reverse...)
	return append(k, encodeInt64(id)...)
}

func (b *BadgerIndex[K]) putTxn(txn *badger.Txn, id int64, key K) error {
	if _, err := b.removeTxn(txn, id); err != nil {
		return err
	}
	enc := encodeKey(key)
	if err := txn.Set(b.forwardKey(enc, id), nil); err != nil {
		return err
	}
	return txn.Set(b.reverseKey(id), enc)
}

func (b *BadgerIndex[K]) removeTxn(txn *badger.Txn, id int64) (bool, error) {
	item, err := txn.Get(b.reverseKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	enc, err := item.ValueCopy(nil)
	if err != nil {
		return false, err
	}
	if err := txn.Delete(b.forwardKey(enc, id)); err != nil {
		return false, err
	}
	return true, txn.Delete(b.reverseKey(id))
}

func (b *BadgerIndex[K]) Add(id int64, key K) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return b.putTxn(txn, id, key)
	})
	return errors.Wrapf(err, "badger add id %d", id)
}

// AddBatch splits the batch over as many transactions as badger needs.
func (b *BadgerIndex[K]) AddBatch(entries []Entry[K]) error {
	txn := b.db.NewTransaction(true)
	defer func() { txn.Discard() }()

	for _, e := range entries {
		err := b.putTxn(txn, e.ID, e.Key)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := txn.Commit(); err != nil {
				return errors.Wrap(err, "badger commit batch")
			}
			txn = b.db.NewTransaction(true)
			err = b.putTxn(txn, e.ID, e.Key)
		}
		if err != nil {
			return errors.Wrapf(err, "badger batch add id %d", e.ID)
		}
	}
	return errors.Wrap(txn.Commit(), "badger commit batch")
}

func (b *BadgerIndex[K]) Remove(id int64) (bool, error) {
	var found bool
	err := b.db.Update(func(txn *badger.Txn) error {
		var err error
		found, err = b.removeTxn(txn, id)
		return err
	})
	return found, errors.Wrapf(err, "badger remove id %d", id)
}

func (b *BadgerIndex[K]) Lookup(id int64) (K, bool, error) {
	var key K
	var found bool
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.reverseKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			key = decodeKey[K](val)
			found = true
			return nil
		})
	})
	return key, found, errors.Wrapf(err, "badger lookup id %d", id)
}

func (b *BadgerIndex[K]) QueryRange(r common.CurveRange[K]) ([]int64, error) {
	var ids []int64
	start := append(append([]byte{}, b.forward...), encodeKey(r.Min)...)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = b.forward
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(start); it.ValidForPrefix(b.forward); it.Next() {
			k := it.Item().Key()
			body := k[len(b.forward):]
			key := decodeKey[K](body[:len(body)-8])
			if key > r.Max {
				break
			}
			ids = append(ids, decodeInt64(body[len(body)-8:]))
		}
		return nil
	})
	return ids, errors.Wrap(err, "badger range query")
}

func (b *BadgerIndex[K]) QueryAll() ([]int64, error) {
	var ids []int64
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = b.forward
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()
			ids = append(ids, decodeInt64(k[len(k)-8:]))
		}
		return nil
	})
	return ids, errors.Wrap(err, "badger scan")
}

func (b *BadgerIndex[K]) Count() (int, error) {
	n := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = b.reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, errors.Wrap(err, "badger count")
}

func (b *BadgerIndex[K]) Drop() error {
	var keys [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for _, prefix := range [][]byte{b.forward, b.reverse} {
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "badger drop scan")
	}

	wb := b.db.NewWriteBatch()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			wb.Cancel()
			return errors.Wrap(err, "badger drop")
		}
	}
	return errors.Wrap(wb.Flush(), "badger drop flush")
}
