// Package frame defines the activation-record abstraction and its one
// concrete target, x86-64 SysV. The frame decides where each formal and
// local lives, builds the view shift that moves incoming registers to
// those homes, and owns the per-function call-site list used to emit the
// GC pointer map.
package frame

import (
	"github.com/raymyers/tiger-go/pkg/asm"
	"github.com/raymyers/tiger-go/pkg/ir"
	"github.com/raymyers/tiger-go/pkg/temp"
)

// WordSize is the target word size in bytes
const WordSize = 8

// DataLayoutWords is the number of header words preceding every heap
// object (and every static string): the type descriptor and a word the
// collector uses for marking and forwarding.
const DataLayoutWords = 2

// DataLayoutSize is the header size in bytes
const DataLayoutSize = DataLayoutWords * WordSize

// Builtin type-descriptor tags. Record and class objects carry a pointer
// to a layout string instead; the runtime tells the cases apart by value
// range.
const (
	StringTypeDescriptor  int64 = 1
	ArrayTypeDescriptor   int64 = 2 // elements are not pointers
	ArrayPtrTypeDescriptor int64 = 3 // elements are pointers
)

// Access is the decided home of a formal or local: a temporary or a
// frame slot at a fixed offset from the frame pointer.
type Access interface {
	implAccess()
}

// InReg places the value in a temporary
type InReg struct {
	Temp temp.Temp
}

// InFrame places the value at Offset bytes from the frame pointer
type InFrame struct {
	Offset int64
}

func (InReg) implAccess()   {}
func (InFrame) implAccess() {}

// Exp builds the IR that reads an access. framePtr must evaluate to the
// frame pointer of the frame the access belongs to; for InReg accesses it
// is ignored.
func Exp(access Access, framePtr ir.Exp) ir.Exp {
	switch a := access.(type) {
	case InReg:
		return ir.Temp{Temp: a.Temp}
	case InFrame:
		return &ir.Mem{
			Addr: &ir.BinOp{
				Op:    ir.Plus,
				Left:  framePtr,
				Right: ir.Const{Value: a.Offset},
			},
		}
	}
	panic("frame: unknown access")
}

// Frame is one function's activation record under construction. The only
// concrete implementation is the x86-64 SysV frame; the interface is the
// seam a second target would plug into at build time.
type Frame interface {
	// Name is the function's entry label
	Name() temp.Label
	// Formals are the accesses of the formal parameters, static link first
	Formals() []Access
	// AllocLocal picks a home for a new local
	AllocLocal(escapes bool) Access
	// AllocSpillSlot reserves a fresh frame slot for a spilled temp
	AllocSpillSlot() int64
	// RecordCallSite registers the label preceding a call instruction
	RecordCallSite(label temp.Label)
	// CallSites lists the registered call-site labels in emission order
	CallSites() []temp.Label
	// ProcEntryExit1 wraps the body with the view shift and callee-save
	// save/restore moves
	ProcEntryExit1(body ir.Stm) ir.Stm
	// ProcEntryExit2 appends the sink instruction keeping callee-saves
	// and the return value live to the end
	ProcEntryExit2(instrs []asm.Instr) []asm.Instr
	// ProcEntryExit3 computes the final frame size and builds the
	// prologue and epilogue
	ProcEntryExit3(instrs []asm.Instr) Subroutine
}

// Subroutine is a finished function: prologue, allocated body, epilogue
type Subroutine struct {
	Prolog string
	Body   []asm.Instr
	Epilog string
}

// --- Fragments ---

// Fragment is a self-contained unit handed from translation to the
// back end.
type Fragment interface {
	implFragment()
}

// FunctionFrag is a function body awaiting canonicalisation, selection
// and allocation. PointerTemps records which temps hold heap pointers;
// the allocator intersects it with liveness at each call site.
type FunctionFrag struct {
	Body         ir.Stm
	Frame        Frame
	PointerTemps map[temp.Temp]bool
	// PointerFrameOffsets are the frame slots of escaping pointer-typed
	// locals; they are live roots at every call site in the function.
	PointerFrameOffsets []int64
}

// StrFrag is a string literal to place in the data section
type StrFrag struct {
	Label temp.Label
	Value string
}

// VTableFrag is a class's virtual-method table, one label per slot in
// inheritance-respecting order
type VTableFrag struct {
	Label   temp.Label
	Methods []temp.Label
}

func (*FunctionFrag) implFragment() {}
func (*StrFrag) implFragment()      {}
func (*VTableFrag) implFragment()   {}

// CallSiteRoots is one pointer-map entry: the temps (already encoded as
// register numbers or frame offsets) holding live pointers at one call
// site.
type CallSiteRoots struct {
	Site  temp.Label
	Roots []int64
}

// PointerMap is one function's pointer-map entries in body order.
type PointerMap []CallSiteRoots
