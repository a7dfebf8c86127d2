package compiler

import (
	"github.com/gomlx/exceptions"
	"tinygo.org/x/go-llvm"
)

// Loop is a countable loop tested before its body:
//
//	pretest: phis for the counter and the carried values; br body if count != 0 else exit
//	body:    count - 1, the caller's body, br pretest
//	exit:    continues after the loop
type Loop struct {
	Pretest llvm.BasicBlock
	Body    llvm.BasicBlock
	Exit    llvm.BasicBlock
}

// countdownLoop emits a loop running exactly count times at the insertion point and
// leaves the builder at the end of the exit block. Each value in carried is threaded
// through a phi: body receives the current values and returns the next ones, which are
// only seen by the following iteration.
func (c *Compiler) countdownLoop(count llvm.Value, carried []llvm.Value, body func(cur []llvm.Value) []llvm.Value) Loop {
	entry := c.builder.GetInsertBlock()
	fn := entry.Parent()

	loop := Loop{
		Pretest: c.Context.AddBasicBlock(fn, "pretest"),
		Body:    c.Context.AddBasicBlock(fn, "body"),
		Exit:    c.Context.AddBasicBlock(fn, "exit"),
	}
	c.builder.CreateBr(loop.Pretest)

	c.builder.SetInsertPointAtEnd(loop.Pretest)
	countType := count.Type()
	counter := c.builder.CreatePHI(countType, "count.cur")
	cur := make([]llvm.Value, len(carried))
	for i, v := range carried {
		cur[i] = c.builder.CreatePHI(v.Type(), v.Name()+".cur")
	}
	more := c.builder.CreateICmp(llvm.IntNE, counter, llvm.ConstInt(countType, 0, false), "more")
	c.builder.CreateCondBr(more, loop.Body, loop.Exit)

	c.builder.SetInsertPointAtEnd(loop.Body)
	counterNext := c.builder.CreateSub(counter, llvm.ConstInt(countType, 1, false), "count.next")
	next := body(cur)
	if len(next) != len(carried) {
		exceptions.Panicf("countdownLoop: body returned %d carried values, want %d", len(next), len(carried))
	}
	// The body may have moved the insertion point; the back edge leaves from there.
	latch := c.builder.GetInsertBlock()
	c.builder.CreateBr(loop.Pretest)

	counter.AddIncoming([]llvm.Value{count, counterNext}, []llvm.BasicBlock{entry, latch})
	for i := range cur {
		cur[i].AddIncoming([]llvm.Value{carried[i], next[i]}, []llvm.BasicBlock{entry, latch})
	}

	c.builder.SetInsertPointAtEnd(loop.Exit)
	return loop
}
