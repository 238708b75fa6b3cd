package keystore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/PolarWolf314/tiaki/internal/configs"
)

// DevicesFileName is the document FileStore keeps in its directory.
const DevicesFileName = "devices.toml"

type devicesDocument struct {
	Pointers map[string]string       `toml:"pointers"`
	Devices  map[string]DeviceRecord `toml:"devices"`
}

// FileStore keeps every record in a single TOML document. Each call reads the
// document fresh, so separate tiaki processes see each other's writes.
type FileStore struct {
	mu     sync.Mutex
	path   string
	closed bool
	now    func() time.Time
}

// NewFileStore returns a store backed by dir/devices.toml. The file is
// created on first write.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create key store directory: %w", err)
	}
	return &FileStore{
		path: filepath.Join(dir, DevicesFileName),
		now:  time.Now,
	}, nil
}

// Path returns the location of the devices document.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) load() (*devicesDocument, error) {
	doc := &devicesDocument{}
	if _, err := os.Stat(f.path); os.IsNotExist(err) {
		doc.Pointers = make(map[string]string)
		doc.Devices = make(map[string]DeviceRecord)
		return doc, nil
	}

	if err := configs.LoadTOML(f.path, doc); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", DevicesFileName, err)
	}
	if doc.Pointers == nil {
		doc.Pointers = make(map[string]string)
	}
	if doc.Devices == nil {
		doc.Devices = make(map[string]DeviceRecord)
	}
	return doc, nil
}

func (f *FileStore) save(doc *devicesDocument) error {
	if err := configs.SaveTOML(f.path, doc); err != nil {
		return fmt.Errorf("failed to write %s: %w", DevicesFileName, err)
	}
	return nil
}

// view runs fn against a freshly loaded document.
func (f *FileStore) view(ctx context.Context, fn func(*devicesDocument) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	doc, err := f.load()
	if err != nil {
		return err
	}
	return fn(doc)
}

// update runs fn against a freshly loaded document and saves the result.
func (f *FileStore) update(ctx context.Context, fn func(*devicesDocument) error) error {
	return f.view(ctx, func(doc *devicesDocument) error {
		if err := fn(doc); err != nil {
			return err
		}
		return f.save(doc)
	})
}

func (f *FileStore) GetDeviceKey(ctx context.Context, id string) (*DeviceRecord, error) {
	var found *DeviceRecord
	err := f.view(ctx, func(doc *devicesDocument) error {
		if record, ok := doc.Devices[id]; ok {
			found = &record
		}
		return nil
	})
	return found, err
}

func (f *FileStore) SetDeviceKey(ctx context.Context, id string, record DeviceRecord) error {
	return f.update(ctx, func(doc *devicesDocument) error {
		var existing *DeviceRecord
		if prev, ok := doc.Devices[id]; ok {
			existing = &prev
		}
		doc.Devices[id] = stamp(record, existing, id, f.now())
		return nil
	})
}

func (f *FileStore) DeleteDeviceKey(ctx context.Context, id string) error {
	return f.update(ctx, func(doc *devicesDocument) error {
		delete(doc.Devices, id)
		return nil
	})
}

func (f *FileStore) ListDeviceKeys(ctx context.Context) ([]DeviceRecord, error) {
	var records []DeviceRecord
	err := f.view(ctx, func(doc *devicesDocument) error {
		records = make([]DeviceRecord, 0, len(doc.Devices))
		for _, record := range doc.Devices {
			records = append(records, record)
		}
		sort.Slice(records, func(i, j int) bool { return records[i].DeviceID < records[j].DeviceID })
		return nil
	})
	return records, err
}

func (f *FileStore) ClearDeviceKey(ctx context.Context) error {
	return f.update(ctx, func(doc *devicesDocument) error {
		doc.Devices = make(map[string]DeviceRecord)
		return nil
	})
}

func (f *FileStore) GetDeviceID(ctx context.Context, key string) (string, error) {
	var id string
	err := f.view(ctx, func(doc *devicesDocument) error {
		id = doc.Pointers[key]
		return nil
	})
	return id, err
}

func (f *FileStore) SetDeviceID(ctx context.Context, key, id string) error {
	return f.update(ctx, func(doc *devicesDocument) error {
		doc.Pointers[key] = id
		return nil
	})
}

func (f *FileStore) ClearDeviceID(ctx context.Context) error {
	return f.update(ctx, func(doc *devicesDocument) error {
		doc.Pointers = make(map[string]string)
		return nil
	})
}

func (f *FileStore) EnableEncryptionDBData(ctx context.Context, id string) error {
	return f.update(ctx, func(doc *devicesDocument) error {
		record, ok := doc.Devices[id]
		if !ok {
			return ErrRecordNotFound
		}
		enable(&record, f.now())
		doc.Devices[id] = record
		return nil
	})
}

func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
