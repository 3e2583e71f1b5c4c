//go:build unix

package mmap

import "golang.org/x/sys/unix"

// New maps length bytes of fd starting at offset 0, read-only.
func New(fd int, length int) (*Region, error) {
	if length <= 0 {
		return nil, ErrInvalidSize
	}

	data, err := unix.Mmap(fd, 0, length, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, &Error{Op: "mmap", Err: err}
	}

	return &Region{data: data, fd: fd, size: int64(length)}, nil
}

// Close unmaps the region. Calling it again after the region is unmapped,
// or on a nil receiver, is a no-op.
func (r *Region) Close() error {
	if r == nil || r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	r.size = 0
	return err
}

// AdviseSequential hints the kernel that the mapping will be scanned in
// order, as a range cursor does.
func (r *Region) AdviseSequential() error {
	if r.data == nil {
		return ErrNotMapped
	}
	return unix.Madvise(r.data, unix.MADV_SEQUENTIAL)
}
