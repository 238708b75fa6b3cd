package keystore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. Useful for tests and for
// short-lived sessions configured with backend = "memory".
type MemoryStore struct {
	mu       sync.RWMutex
	devices  map[string]DeviceRecord
	pointers map[string]string
	closed   bool
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices:  make(map[string]DeviceRecord),
		pointers: make(map[string]string),
		now:      time.Now,
	}
}

func (m *MemoryStore) check(ctx context.Context) error {
	if m.closed {
		return ErrClosed
	}
	return ctx.Err()
}

func (m *MemoryStore) GetDeviceKey(ctx context.Context, id string) (*DeviceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	record, ok := m.devices[id]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (m *MemoryStore) SetDeviceKey(ctx context.Context, id string, record DeviceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}

	var existing *DeviceRecord
	if prev, ok := m.devices[id]; ok {
		existing = &prev
	}
	m.devices[id] = stamp(record, existing, id, m.now())
	return nil
}

func (m *MemoryStore) DeleteDeviceKey(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}

	delete(m.devices, id)
	return nil
}

func (m *MemoryStore) ListDeviceKeys(ctx context.Context) ([]DeviceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	records := make([]DeviceRecord, 0, len(m.devices))
	for _, record := range m.devices {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].DeviceID < records[j].DeviceID })
	return records, nil
}

func (m *MemoryStore) ClearDeviceKey(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}

	m.devices = make(map[string]DeviceRecord)
	return nil
}

func (m *MemoryStore) GetDeviceID(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return "", err
	}

	return m.pointers[key], nil
}

func (m *MemoryStore) SetDeviceID(ctx context.Context, key, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}

	m.pointers[key] = id
	return nil
}

func (m *MemoryStore) ClearDeviceID(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}

	m.pointers = make(map[string]string)
	return nil
}

func (m *MemoryStore) EnableEncryptionDBData(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}

	record, ok := m.devices[id]
	if !ok {
		return ErrRecordNotFound
	}
	enable(&record, m.now())
	m.devices[id] = record
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
