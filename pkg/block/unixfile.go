package block

import (
	"fmt"
	"os"
)

// UnixFile is a Device backed by a real file or block special device,
// using pread/pwrite semantics via os.File.ReadAt/WriteAt so concurrent
// callers never race on a shared file offset.
type UnixFile struct {
	f    *os.File
	size int64
}

// OpenUnixFile opens path for a Device of the given size. If the file
// doesn't exist it is created and truncated to size; if it does exist
// and is shorter than size, it is extended.
func OpenUnixFile(path string, size int64) (*UnixFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("block: open %s: %w", path, err)
	}
	if size > 0 {
		st, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("block: stat %s: %w", path, err)
		}
		if st.Size() >= size {
			return &UnixFile{f: f, size: size}, nil
		}
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("block: truncate %s to %d: %w", path, size, err)
		}
	}
	return &UnixFile{f: f, size: size}, nil
}

// OpenExistingUnixFile opens path for an already-formatted device,
// sizing the Device to the file's current length.
func OpenExistingUnixFile(path string) (*UnixFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("block: open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("block: stat %s: %w", path, err)
	}
	return &UnixFile{f: f, size: st.Size()}, nil
}

func (u *UnixFile) ReadAt(p []byte, off int64) (int, error) {
	return u.f.ReadAt(p, off)
}

func (u *UnixFile) WriteAt(p []byte, off int64) (int, error) {
	return u.f.WriteAt(p, off)
}

func (u *UnixFile) SizeBytes() int64 {
	return u.size
}

func (u *UnixFile) Sync() error {
	return u.f.Sync()
}

func (u *UnixFile) Close() error {
	return u.f.Close()
}
