package ckernel

/*
#include <stdlib.h>
*/
import "C"

import (
	"unsafe"

	"github.com/pkg/errors"
)

// Buffer is zeroed memory outside the Go heap. Generated code may keep pointers to it
// across calls and pointer arrays may refer to it, which cgo forbids for Go memory.
type Buffer struct {
	ptr  unsafe.Pointer
	size int
}

// NewBuffer allocates size zeroed bytes. A zero size yields a valid, non-nil buffer.
func NewBuffer(size int) (*Buffer, error) {
	if size < 0 {
		return nil, errors.Errorf("negative buffer size %d", size)
	}
	n := size
	if n == 0 {
		n = 1
	}
	ptr := C.calloc(1, C.size_t(n))
	if ptr == nil {
		return nil, errors.Errorf("allocating %d bytes", size)
	}
	return &Buffer{ptr: ptr, size: size}, nil
}

func (b *Buffer) Pointer() unsafe.Pointer { return b.ptr }

func (b *Buffer) Len() int { return b.size }

// At returns the address off bytes into the buffer.
func (b *Buffer) At(off int) unsafe.Pointer {
	return unsafe.Add(b.ptr, off)
}

func (b *Buffer) Bytes() []byte {
	return unsafe.Slice((*byte)(b.ptr), b.size)
}

func (b *Buffer) Float64s() []float64 {
	return unsafe.Slice((*float64)(b.ptr), b.size/8)
}

func (b *Buffer) Float32s() []float32 {
	return unsafe.Slice((*float32)(b.ptr), b.size/4)
}

func (b *Buffer) Int64s() []int64 {
	return unsafe.Slice((*int64)(b.ptr), b.size/8)
}

func (b *Buffer) Int32s() []int32 {
	return unsafe.Slice((*int32)(b.ptr), b.size/4)
}

// Free releases the memory. It is safe to call more than once.
func (b *Buffer) Free() {
	if b == nil || b.ptr == nil {
		return
	}
	C.free(b.ptr)
	b.ptr = nil
	b.size = 0
}
