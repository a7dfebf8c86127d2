package compiler

import (
	"tinygo.org/x/go-llvm"

	"github.com/thiremani/ckernel/kernel"
)

// singleType is void(ptr dst, ptr src_ptrs, ptr extra).
func (c *Compiler) singleType() llvm.Type {
	ptr := c.ptrType()
	return llvm.FunctionType(c.Context.VoidType(), []llvm.Type{ptr, ptr, ptr}, false)
}

// EmitSingle builds the entry point applying the kernel once:
//
//	void @<name>_single_ckernel(ptr dst_ptr, ptr src_ptrs, ptr extra_ptr)
func (c *Compiler) EmitSingle() llvm.Value {
	fn := llvm.AddFunction(c.Module, SingleName(c.Desc.Name), c.singleType())
	dst, srcs, extra := fn.Param(0), fn.Param(1), fn.Param(2)
	dst.SetName("dst_ptr")
	srcs.SetName("src_ptrs")
	extra.SetName("extra_ptr")

	entry := c.Context.AddBasicBlock(fn, "entry")
	c.builder.SetInsertPointAtEnd(entry)
	c.extra = c.builder.CreateBitCast(extra, llvm.PointerType(c.kdType, 0), "extra_struct")

	args := c.marshalSources(srcs)
	c.callKernel(dst, args)
	c.builder.CreateRetVoid()
	return fn
}

// callKernel calls the native kernel on args. A Scalar result is stored through dst;
// any other result kind marshals dst like an argument and passes it last, so the
// kernel writes the result itself.
func (c *Compiler) callKernel(dst llvm.Value, args []llvm.Value) {
	ret := c.Desc.Arity()
	if _, ok := c.Desc.Kinds[ret].(kernel.Scalar); ok {
		typ := c.Desc.TypeOf(ret)
		result := c.builder.CreateCall(c.nativeType, c.native, args, "result")
		p := c.builder.CreateBitCast(dst, llvm.PointerType(c.mapToLLVMType(typ), 0), "")
		c.createStore(result, p, typ)
		return
	}
	out := c.marshalArg(ret, dst)
	c.builder.CreateCall(c.nativeType, c.native, append(args, out), "")
}
