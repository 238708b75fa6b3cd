package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	logger "github.com/PolarWolf314/tiaki/internal/logging"
)

const (
	devicePrefix  = "device/"
	pointerPrefix = "pointer/"
)

// BadgerStore keeps records in a badger database, JSON-encoded under
// device/<id>, with pointers under pointer/<key>.
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
}

// badgerLogger routes badger's chatty info output to debug level.
type badgerLogger struct {
	logger.Logger
}

func (l badgerLogger) Infof(msg string, args ...any) {
	l.Debugf(strings.TrimSuffix(msg, "\n"), args...)
}

func (l badgerLogger) Debugf(msg string, args ...any) {
	l.Logger.Debugf(strings.TrimSuffix(msg, "\n"), args...)
}

func (l badgerLogger) Errorf(msg string, args ...any) {
	l.Logger.Errorf(strings.TrimSuffix(msg, "\n"), args...)
}

// NewBadgerStore opens (or creates) a badger database at path.
func NewBadgerStore(path string, log logger.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(badgerLogger{log}).
		WithSyncWrites(true)
	return openBadger(opts)
}

// NewInMemoryBadgerStore opens a badger database that lives only in memory.
func NewInMemoryBadgerStore(log logger.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(badgerLogger{log})
	return openBadger(opts)
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerStore{db: db, now: time.Now}, nil
}

func deviceKey(id string) []byte   { return []byte(devicePrefix + id) }
func pointerKey(key string) []byte { return []byte(pointerPrefix + key) }

func (b *BadgerStore) check(ctx context.Context) error {
	if b.db.IsClosed() {
		return ErrClosed
	}
	return ctx.Err()
}

func getRecord(txn *badger.Txn, id string) (*DeviceRecord, error) {
	item, err := txn.Get(deviceKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var record DeviceRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode record for device %q: %w", id, err)
	}
	return &record, nil
}

func putRecord(txn *badger.Txn, record DeviceRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return txn.Set(deviceKey(record.DeviceID), data)
}

// deletePrefix removes every key under prefix inside txn.
func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (b *BadgerStore) GetDeviceKey(ctx context.Context, id string) (*DeviceRecord, error) {
	if err := b.check(ctx); err != nil {
		return nil, err
	}

	var found *DeviceRecord
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getRecord(txn, id)
		return err
	})
	return found, err
}

func (b *BadgerStore) SetDeviceKey(ctx context.Context, id string, record DeviceRecord) error {
	if err := b.check(ctx); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		existing, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		return putRecord(txn, stamp(record, existing, id, b.now()))
	})
}

func (b *BadgerStore) DeleteDeviceKey(ctx context.Context, id string) error {
	if err := b.check(ctx); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(deviceKey(id))
	})
}

func (b *BadgerStore) ListDeviceKeys(ctx context.Context) ([]DeviceRecord, error) {
	if err := b.check(ctx); err != nil {
		return nil, err
	}

	records := []DeviceRecord{}
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte(devicePrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var record DeviceRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				return fmt.Errorf("failed to decode %s: %w", it.Item().Key(), err)
			}
			records = append(records, record)
		}
		return nil
	})
	return records, err
}

func (b *BadgerStore) ClearDeviceKey(ctx context.Context) error {
	if err := b.check(ctx); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return deletePrefix(txn, []byte(devicePrefix))
	})
}

func (b *BadgerStore) GetDeviceID(ctx context.Context, key string) (string, error) {
	if err := b.check(ctx); err != nil {
		return "", err
	}

	var id string
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pointerKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		value, err := item.ValueCopy(nil)
		id = string(value)
		return err
	})
	return id, err
}

func (b *BadgerStore) SetDeviceID(ctx context.Context, key, id string) error {
	if err := b.check(ctx); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pointerKey(key), []byte(id))
	})
}

func (b *BadgerStore) ClearDeviceID(ctx context.Context) error {
	if err := b.check(ctx); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return deletePrefix(txn, []byte(pointerPrefix))
	})
}

func (b *BadgerStore) EnableEncryptionDBData(ctx context.Context, id string) error {
	if err := b.check(ctx); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		record, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		if record == nil {
			return ErrRecordNotFound
		}
		enable(record, b.now())
		return putRecord(txn, *record)
	})
}

func (b *BadgerStore) Close() error {
	if b.db.IsClosed() {
		return nil
	}
	return b.db.Close()
}
