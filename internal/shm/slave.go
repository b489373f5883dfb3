package shm

import (
	"sync"

	"github.com/pkg/errors"
)

type slaveMapping struct {
	data    []byte
	size    uint64
	version uint64
}

// Slave attaches to a master's slot table and resolves handles to
// mapped regions, remapping lazily whenever the master's version
// counters say a slot changed. A slave never allocates or frees.
type Slave struct {
	mu sync.Mutex

	table    []byte
	capacity int

	mappings []slaveMapping
	// versionMaster is the last collection-wide version this slave
	// refreshed against.
	versionMaster uint64
}

// NewSlave attaches to the named slot table.
func NewSlave(tableName string) (*Slave, error) {
	// Map the header first to learn the capacity, then the full table.
	header, err := mapObject(tableName, tableHeaderSize, false)
	if err != nil {
		return nil, err
	}
	capacity := int(readCapacity(header))
	unmapQuietly(header)
	if capacity <= 0 {
		return nil, errors.Errorf("shm: table %s has capacity %d", tableName, capacity)
	}

	table, err := mapObject(tableName, tableHeaderSize+capacity*slotRecordSize, false)
	if err != nil {
		return nil, err
	}
	return &Slave{
		table:    table,
		capacity: capacity,
		mappings: make([]slaveMapping, capacity),
	}, nil
}

// refresh walks the table and remaps every slot whose version moved
// since this slave last looked. Caller holds mu.
func (s *Slave) refresh() error {
	current := readVersionMaster(s.table)
	if current == s.versionMaster {
		return nil
	}

	for i := 0; i < s.capacity; i++ {
		r := readSlotRecord(s.table, i)
		m := &s.mappings[i]
		if r.version == m.version {
			continue
		}

		unmapQuietly(m.data)
		m.data = nil
		m.size = 0

		if r.active() {
			data, err := mapObject(objectName(r.name), int(r.size), true)
			if err != nil {
				return err
			}
			m.data = data
			m.size = r.size
		}
		m.version = r.version
	}

	s.versionMaster = current
	return nil
}

// Resolve returns the mapped region for h, refreshing stale mappings
// first.
func (s *Slave) Resolve(h Handle) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refresh(); err != nil {
		return nil, err
	}
	if int(h) < 0 || int(h) >= s.capacity {
		return nil, errors.Errorf("shm: handle %d out of range", h)
	}
	m := s.mappings[h]
	if m.data == nil {
		return nil, errors.Errorf("shm: handle %d not active", h)
	}
	return m.data, nil
}

// Access runs cb against the mapped region for h under the slave's
// lock, so the mapping cannot be refreshed out from under cb.
func (s *Slave) Access(h Handle, cb func(data []byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refresh(); err != nil {
		return err
	}
	if int(h) < 0 || int(h) >= s.capacity {
		return errors.Errorf("shm: handle %d out of range", h)
	}
	m := s.mappings[h]
	if m.data == nil {
		return errors.Errorf("shm: handle %d not active", h)
	}
	return cb(m.data)
}

// ResolveReverse finds the handle whose mapped base is exactly ptr.
// Interior pointers do not resolve.
func (s *Slave) ResolveReverse(ptr []byte) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refresh(); err != nil {
		return 0, err
	}
	for i := range s.mappings {
		m := &s.mappings[i]
		if m.data != nil && len(ptr) > 0 && &m.data[0] == &ptr[0] {
			return Handle(i), nil
		}
	}
	return 0, errors.New("shm: pointer does not match any mapped base")
}

// VersionMaster exposes the last-seen collection version, for
// bookkeeping comparisons.
func (s *Slave) VersionMaster() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versionMaster
}

// Close unmaps everything this slave mapped. The regions themselves are
// the master's to free.
func (s *Slave) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.mappings {
		unmapQuietly(s.mappings[i].data)
		s.mappings[i] = slaveMapping{}
	}
	unmapQuietly(s.table)
	s.table = nil
	return nil
}
