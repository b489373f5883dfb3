// Package shm implements the cross-process shared-memory arena: a
// master-owned slot table mapping opaque handles to named POSIX
// shared-memory regions, with slave-side lazy remapping driven by
// version counters.
package shm

import (
	"crypto/rand"
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// DefaultCapacity is the historical slot-table bound. It is a default,
// not a guarantee: NewMaster accepts any capacity.
const DefaultCapacity = 192

// shmDir is where the platform exposes POSIX shared memory objects.
const shmDir = "/dev/shm"

// nameLen is the fixed on-disk name width: '/' plus seven random
// characters.
const nameLen = 8

const (
	// table header: version_master u64 + capacity u64
	tableHeaderSize = 16
	// slot record: name [8]byte + size u64 + version u64
	slotRecordSize = nameLen + 8 + 8
)

// Handle identifies one allocated slot.
type Handle int

type slotRecord struct {
	name    [nameLen]byte
	size    uint64
	version uint64
}

func (r *slotRecord) active() bool { return r.name[0] != 0 }

func readSlotRecord(table []byte, i int) slotRecord {
	off := tableHeaderSize + i*slotRecordSize
	var r slotRecord
	copy(r.name[:], table[off:off+nameLen])
	r.size = binary.LittleEndian.Uint64(table[off+nameLen:])
	r.version = binary.LittleEndian.Uint64(table[off+nameLen+8:])
	return r
}

func writeSlotRecord(table []byte, i int, r slotRecord) {
	off := tableHeaderSize + i*slotRecordSize
	copy(table[off:off+nameLen], r.name[:])
	binary.LittleEndian.PutUint64(table[off+nameLen:], r.size)
	binary.LittleEndian.PutUint64(table[off+nameLen+8:], r.version)
}

func readVersionMaster(table []byte) uint64 {
	return binary.LittleEndian.Uint64(table[0:8])
}

func writeVersionMaster(table []byte, v uint64) {
	binary.LittleEndian.PutUint64(table[0:8], v)
}

// randomName generates an 8-character object name starting with '/'.
func randomName() (string, error) {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	var raw [nameLen - 1]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", errors.Wrap(err, "shm: random name")
	}
	out := make([]byte, nameLen)
	out[0] = '/'
	for i, b := range raw {
		out[i+1] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}

func writeCapacity(table []byte, capacity uint64) {
	binary.LittleEndian.PutUint64(table[8:16], capacity)
}

func readCapacity(table []byte) uint64 {
	return binary.LittleEndian.Uint64(table[8:16])
}

// objectName turns a fixed-width record name back into a string.
func objectName(name [nameLen]byte) string {
	return string(name[:])
}

func unmapQuietly(data []byte) {
	if data != nil {
		_ = unix.Munmap(data)
	}
}

// objectPath maps a POSIX shm name ("/xxxxxxx") to its filesystem path.
func objectPath(name string) string {
	return filepath.Join(shmDir, name[1:])
}

func mapObject(name string, size int, writable bool) ([]byte, error) {
	flags := os.O_RDWR
	prot := unix.PROT_READ | unix.PROT_WRITE
	if !writable {
		flags = os.O_RDONLY
		prot = unix.PROT_READ
	}
	f, err := os.OpenFile(objectPath(name), flags, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "shm: open %s", name)
	}
	defer f.Close()
	data, err := unix.Mmap(int(f.Fd()), 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "shm: mmap %s", name)
	}
	return data, nil
}
