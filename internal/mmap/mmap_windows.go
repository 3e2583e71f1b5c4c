//go:build windows

package mmap

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// New maps length bytes of fd starting at offset 0, read-only.
func New(fd int, length int) (*Region, error) {
	if length <= 0 {
		return nil, ErrInvalidSize
	}

	handle := windows.Handle(fd)
	maxSizeHigh := uint32(uint64(length) >> 32)
	maxSizeLow := uint32(length)

	mapping, err := windows.CreateFileMapping(handle, nil, windows.PAGE_READONLY, maxSizeHigh, maxSizeLow, nil)
	if err != nil {
		return nil, &Error{Op: "CreateFileMapping", Err: err}
	}

	addr, err := windows.MapViewOfFile(mapping, windows.FILE_MAP_READ, 0, 0, uintptr(length))
	if err != nil {
		windows.CloseHandle(mapping)
		return nil, &Error{Op: "MapViewOfFile", Err: err}
	}

	var data []byte
	sh := (*struct {
		Data uintptr
		Len  int
		Cap  int
	})(unsafe.Pointer(&data))
	sh.Data = addr
	sh.Len = length
	sh.Cap = length

	return &Region{
		data:    data,
		fd:      fd,
		size:    int64(length),
		handle:  uintptr(handle),
		mapping: uintptr(mapping),
	}, nil
}

// Close unmaps the region. Calling it again after the region is unmapped,
// or on a nil receiver, is a no-op.
func (r *Region) Close() error {
	if r == nil || r.data == nil {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&r.data[0]))
	err := windows.UnmapViewOfFile(addr)
	windows.CloseHandle(windows.Handle(r.mapping))
	r.data = nil
	r.size = 0
	return err
}

// AdviseSequential is a no-op on Windows; there is no portable equivalent
// of madvise(MADV_SEQUENTIAL) exposed by golang.org/x/sys/windows.
func (r *Region) AdviseSequential() error {
	if r.data == nil {
		return ErrNotMapped
	}
	return nil
}
