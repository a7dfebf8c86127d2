package compiler

import (
	"fmt"

	"tinygo.org/x/go-llvm"
)

// stridedType is void(ptr dst, intp dst_stride, ptr src_ptrs, ptr src_strides, intp count, ptr extra).
func (c *Compiler) stridedType() llvm.Type {
	ptr, intp := c.ptrType(), c.intpType()
	return llvm.FunctionType(c.Context.VoidType(), []llvm.Type{ptr, intp, ptr, ptr, intp, ptr}, false)
}

// EmitStrided builds the entry point applying the kernel count times:
//
//	void @<name>_strided_ckernel(ptr dst_ptr, intp dst_stride, ptr src_ptrs,
//	                             ptr src_strides, intp count, ptr extra_ptr)
//
// Strides are byte offsets. The first iteration uses the pointers as passed; every
// pointer is advanced by its stride after the kernel call.
func (c *Compiler) EmitStrided() llvm.Value {
	fn := llvm.AddFunction(c.Module, StridedName(c.Desc.Name), c.stridedType())
	dst, dstStride := fn.Param(0), fn.Param(1)
	srcs, srcStrides := fn.Param(2), fn.Param(3)
	count, extra := fn.Param(4), fn.Param(5)
	dst.SetName("dst_ptr")
	dstStride.SetName("dst_stride")
	srcs.SetName("src_ptrs")
	srcStrides.SetName("src_strides")
	count.SetName("count")
	extra.SetName("extra_ptr")

	entry := c.Context.AddBasicBlock(fn, "entry")
	c.builder.SetInsertPointAtEnd(entry)
	c.extra = c.builder.CreateBitCast(extra, llvm.PointerType(c.kdType, 0), "extra_struct")

	ptr, intp, i8 := c.ptrType(), c.intpType(), c.Context.Int8Type()
	arity := c.Desc.Arity()

	// Local copy of the source pointers, advanced in place by the loop.
	var cursors llvm.Value
	strides := make([]llvm.Value, arity)
	if arity > 0 {
		cursors = c.createEntryBlockAlloca(llvm.ArrayType(ptr, arity), "src_ptr_arr")
	}
	for i := 0; i < arity; i++ {
		idx := []llvm.Value{c.constIntp(i)}
		src := c.builder.CreateLoad(ptr, c.builder.CreateInBoundsGEP(ptr, srcs, idx, ""), "")
		c.builder.CreateStore(src, c.builder.CreateInBoundsGEP(ptr, cursors, idx, ""))
		strides[i] = c.builder.CreateLoad(intp, c.builder.CreateInBoundsGEP(intp, srcStrides, idx, ""),
			fmt.Sprintf("src_stride%d", i))
	}

	c.countdownLoop(count, []llvm.Value{dst}, func(cur []llvm.Value) []llvm.Value {
		dstCur := cur[0]
		var args []llvm.Value
		if arity > 0 {
			args = c.marshalSources(cursors)
		}
		c.callKernel(dstCur, args)

		for i := 0; i < arity; i++ {
			slot := c.builder.CreateInBoundsGEP(ptr, cursors, []llvm.Value{c.constIntp(i)}, "")
			p := c.builder.CreateLoad(ptr, slot, "")
			c.builder.CreateStore(c.builder.CreateGEP(i8, p, []llvm.Value{strides[i]}, ""), slot)
		}
		return []llvm.Value{c.builder.CreateGEP(i8, dstCur, []llvm.Value{dstStride}, "dst_ptr.next")}
	})
	c.builder.CreateRetVoid()
	return fn
}
