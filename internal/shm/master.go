package shm

import (
	"os"
	"sync"

	"github.com/pkg/errors"
)

// Master owns the slot table. It is the only party that allocates and
// frees slots; slaves only resolve them.
type Master struct {
	mu sync.Mutex

	tableName string
	table     []byte
	capacity  int
}

// NewMaster creates the shared slot table as its own named region.
// capacity <= 0 selects DefaultCapacity.
func NewMaster(capacity int) (*Master, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	tableSize := tableHeaderSize + capacity*slotRecordSize

	name, err := createObject(tableSize)
	if err != nil {
		return nil, err
	}
	table, err := mapObject(name, tableSize, true)
	if err != nil {
		removeObject(name)
		return nil, err
	}

	m := &Master{tableName: name, table: table, capacity: capacity}
	writeCapacity(table, uint64(capacity))
	return m, nil
}

// TableName returns the name a Slave needs to attach.
func (m *Master) TableName() string { return m.tableName }

// Capacity reports the slot-table bound chosen at construction.
func (m *Master) Capacity() int { return m.capacity }

// Allocate finds the first inactive slot, creates a fresh named region
// of the given size, and returns the slot's handle.
func (m *Master) Allocate(size int) (Handle, error) {
	if size <= 0 {
		return 0, errors.New("shm: allocation size must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; i < m.capacity; i++ {
		r := readSlotRecord(m.table, i)
		if r.active() {
			continue
		}

		name, err := createObject(size)
		if err != nil {
			return 0, err
		}
		copy(r.name[:], name)
		r.size = uint64(size)
		r.version++
		writeSlotRecord(m.table, i, r)
		writeVersionMaster(m.table, readVersionMaster(m.table)+1)
		return Handle(i), nil
	}
	return 0, errors.Errorf("shm: all %d slots active", m.capacity)
}

// Free unlinks the slot's region and marks the slot inactive.
func (m *Master) Free(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(h) < 0 || int(h) >= m.capacity {
		return errors.Errorf("shm: handle %d out of range", h)
	}
	r := readSlotRecord(m.table, int(h))
	if !r.active() {
		return errors.Errorf("shm: handle %d not active", h)
	}

	removeObject(objectName(r.name))
	r.name = [nameLen]byte{}
	r.size = 0
	r.version++
	writeSlotRecord(m.table, int(h), r)
	writeVersionMaster(m.table, readVersionMaster(m.table)+1)
	return nil
}

// Resolve maps the slot for the master's own use.
func (m *Master) Resolve(h Handle) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(h) < 0 || int(h) >= m.capacity {
		return nil, errors.Errorf("shm: handle %d out of range", h)
	}
	r := readSlotRecord(m.table, int(h))
	if !r.active() {
		return nil, errors.Errorf("shm: handle %d not active", h)
	}
	return mapObject(objectName(r.name), int(r.size), true)
}

// VersionMaster exposes the collection-wide version counter.
func (m *Master) VersionMaster() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return readVersionMaster(m.table)
}

// Close frees every active slot and the table itself.
func (m *Master) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; i < m.capacity; i++ {
		r := readSlotRecord(m.table, i)
		if r.active() {
			removeObject(objectName(r.name))
		}
	}
	unmapQuietly(m.table)
	m.table = nil
	removeObject(m.tableName)
	return nil
}

// createObject picks a random unused name, creates the backing object
// exclusively, and sizes it.
func createObject(size int) (string, error) {
	for {
		name, err := randomName()
		if err != nil {
			return "", err
		}
		f, err := os.OpenFile(objectPath(name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			if os.IsExist(err) {
				continue // name collision; pick another
			}
			return "", errors.Wrapf(err, "shm: create %s", name)
		}
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			removeObject(name)
			return "", errors.Wrapf(err, "shm: size %s to %d", name, size)
		}
		f.Close()
		return name, nil
	}
}

func removeObject(name string) {
	_ = os.Remove(objectPath(name))
}
