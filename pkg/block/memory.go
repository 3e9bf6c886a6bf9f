package block

import (
	"fmt"
	"sync"
)

// Memory is a Device backed by a plain byte buffer. It exists so tests
// of pkg/label, pkg/redolog, pkg/vg, and pkg/session don't need real
// files, and so a crash-recovery test can simulate a "device" whose
// bytes outlive a session value without touching disk: construct one
// Memory, hand it to two sessions in turn, and the second sees
// whatever the first wrote.
type Memory struct {
	mu   sync.Mutex
	data []byte
}

// NewMemory allocates a zeroed Memory device of the given size.
func NewMemory(size int64) *Memory {
	return &Memory{data: make([]byte, size)}
}

func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || off > int64(len(m.data)) {
		return 0, fmt.Errorf("block: memory: read offset %d out of range [0,%d]", off, len(m.data))
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, fmt.Errorf("block: memory: short read at offset %d", off)
	}
	return n, nil
}

func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, fmt.Errorf("block: memory: write [%d,%d) out of range [0,%d)", off, off+int64(len(p)), len(m.data))
	}
	n := copy(m.data[off:], p)
	return n, nil
}

func (m *Memory) SizeBytes() int64 {
	return int64(len(m.data))
}

func (m *Memory) Sync() error { return nil }

func (m *Memory) Close() error { return nil }
