package compiler

import (
	"tinygo.org/x/go-llvm"

	"github.com/thiremani/ckernel/kernel"
)

// KernelDataType is the native mirror of l:
//
//	{ {ptr, ptr, ptr}, [len0 x intp], [len1 x intp], ... }
//
// Field 0 is the header, field i+1 is l.Fields[i].
func KernelDataType(ctx llvm.Context, l *kernel.Layout) llvm.Type {
	ptr := llvm.PointerType(ctx.Int8Type(), 0)
	intp := ctx.IntType(kernel.SlotSize * 8)
	header := make([]llvm.Type, kernel.HeaderSlots)
	for i := range header {
		header[i] = ptr
	}
	fields := []llvm.Type{ctx.StructType(header, false)}
	for _, f := range l.Fields {
		fields = append(fields, llvm.ArrayType(intp, f.Len))
	}
	return ctx.StructType(fields, false)
}

// ArrayViewType is the record an Array argument is passed as: { ptr data, [rank x intp] }.
func ArrayViewType(ctx llvm.Context, rank int) llvm.Type {
	ptr := llvm.PointerType(ctx.Int8Type(), 0)
	intp := ctx.IntType(kernel.SlotSize * 8)
	return ctx.StructType([]llvm.Type{ptr, llvm.ArrayType(intp, rank)}, false)
}
