package translate

import (
	"github.com/raymyers/tiger-go/pkg/frame"
	"github.com/raymyers/tiger-go/pkg/ir"
	"github.com/raymyers/tiger-go/pkg/temp"
)

// Translator accumulates fragments as semantic analysis lowers the
// program. It also records which temps hold heap pointers; temps are
// globally unique, so one map serves every function and the allocator
// narrows it with per-site liveness.
type Translator struct {
	fragments    []frame.Fragment
	stringLabels map[string]temp.Label
	pointerTemps map[temp.Temp]bool
}

// NewTranslator creates an empty translator.
func NewTranslator() *Translator {
	return &Translator{
		stringLabels: make(map[string]temp.Label),
		pointerTemps: make(map[temp.Temp]bool),
	}
}

// Fragments returns everything translated so far.
func (t *Translator) Fragments() []frame.Fragment {
	return t.fragments
}

// newPointerTemp allocates a temp known to hold a heap pointer.
func (t *Translator) newPointerTemp() temp.Temp {
	tmp := temp.NewTemp()
	t.pointerTemps[tmp] = true
	return tmp
}

// MarkPointer records that an existing access holds a heap pointer.
func (t *Translator) MarkPointer(access Access) {
	if reg, ok := access.Access.(frame.InReg); ok {
		t.pointerTemps[reg.Temp] = true
	}
}

// Unit is the value of expressions with no value.
func Unit() Expr {
	return Ex{Exp: ir.Const{Value: 0}}
}

// IntLit translates an integer literal.
func IntLit(value int64) Expr {
	return Ex{Exp: ir.Const{Value: value}}
}

// NilLit translates the nil literal.
func NilLit() Expr {
	return Ex{Exp: ir.Const{Value: 0}}
}

// StringLit translates a string literal, hash-consing identical literals
// into one data fragment.
func (t *Translator) StringLit(value string) Expr {
	label, ok := t.stringLabels[value]
	if !ok {
		label = temp.NewLabel()
		t.stringLabels[value] = label
		t.fragments = append(t.fragments, &frame.StrFrag{Label: label, Value: value})
	}
	return Ex{Exp: ir.Name{Label: label}}
}

// LayoutLit interns a GC layout string, reusing the string pool so equal
// layouts share one fragment.
func (t *Translator) LayoutLit(layout string) ir.Exp {
	return UnEx(t.StringLit(layout))
}

// framePointer builds the IR that computes the frame pointer of
// targetLevel as seen from useLevel, following static links.
func framePointer(useLevel, targetLevel *Level) ir.Exp {
	var fp ir.Exp = ir.Temp{Temp: frame.FP}
	level := useLevel
	for level != targetLevel {
		fp = frame.Exp(level.staticLink(), fp)
		level = level.Parent
	}
	return fp
}

// SimpleVar reads a variable, following static links when it belongs to
// an enclosing level.
func SimpleVar(access Access, useLevel *Level) Expr {
	return Ex{Exp: frame.Exp(access.Access, framePointer(useLevel, access.Level))}
}

// FieldVar reads a record or class field at a fixed byte offset.
func FieldVar(base Expr, offset int64) Expr {
	return Ex{Exp: &ir.Mem{
		Addr: &ir.BinOp{
			Op:    ir.Plus,
			Left:  UnEx(base),
			Right: ir.Const{Value: offset},
		},
	}}
}

// SubscriptVar reads an array element. The element area begins after the
// object header and the length word.
func SubscriptVar(base, index Expr) Expr {
	return Ex{Exp: &ir.Mem{
		Addr: &ir.BinOp{
			Op:   ir.Plus,
			Left: UnEx(base),
			Right: &ir.BinOp{
				Op:   ir.Plus,
				Left: ir.Const{Value: frame.DataLayoutSize + frame.WordSize},
				Right: &ir.BinOp{
					Op:    ir.Mul,
					Left:  UnEx(index),
					Right: ir.Const{Value: frame.WordSize},
				},
			},
		},
	}}
}

// BinOp translates an arithmetic operation.
func BinOp(op ir.BinOpKind, left, right Expr) Expr {
	return Ex{Exp: &ir.BinOp{Op: op, Left: UnEx(left), Right: UnEx(right)}}
}

// RelOp translates a comparison into a conditional.
func RelOp(op ir.RelOp, left, right Expr) Expr {
	l := UnEx(left)
	r := UnEx(right)
	return Cx{Build: func(t, f temp.Label) ir.Stm {
		return &ir.CJump{Op: op, Left: l, Right: r, True: t, False: f}
	}}
}

// StringEq translates string equality through the runtime.
func (t *Translator) StringEq(negated bool, left, right Expr) Expr {
	call := frame.ExternalCall("stringEqual", []ir.Exp{UnEx(left), UnEx(right)})
	op := ir.Ne
	if negated {
		op = ir.Eq
	}
	return Cx{Build: func(tl, fl temp.Label) ir.Stm {
		return &ir.CJump{Op: op, Left: call, Right: ir.Const{Value: 0}, True: tl, False: fl}
	}}
}

// StringOrd translates string ordering through the runtime's three-way
// compare.
func (t *Translator) StringOrd(op ir.RelOp, left, right Expr) Expr {
	call := frame.ExternalCall("stringCompare", []ir.Exp{UnEx(left), UnEx(right)})
	return Cx{Build: func(tl, fl temp.Label) ir.Stm {
		return &ir.CJump{Op: op, Left: call, Right: ir.Const{Value: 0}, True: tl, False: fl}
	}}
}

// IfExp translates a conditional expression. For the else-less form pass
// nil; the result is unit.
func IfExp(cond, then Expr, els Expr) Expr {
	test := UnCx(cond)
	t := temp.NewLabel()
	f := temp.NewLabel()
	done := temp.NewLabel()

	if els == nil {
		return Nx{Stm: ir.SeqAll(
			test(t, f),
			ir.Label{Label: t},
			UnNx(then),
			ir.Label{Label: f},
		)}
	}

	r := temp.NewTemp()
	return Ex{Exp: &ir.ESeq{
		Stm: ir.SeqAll(
			test(t, f),
			ir.Label{Label: t},
			&ir.Move{Dst: ir.Temp{Temp: r}, Src: UnEx(then)},
			ir.JumpTo(done),
			ir.Label{Label: f},
			&ir.Move{Dst: ir.Temp{Temp: r}, Src: UnEx(els)},
			ir.Label{Label: done},
		),
		Exp: ir.Temp{Temp: r},
	}}
}

// WhileExp translates a while loop; breakLabel is the loop's exit.
func WhileExp(cond, body Expr, breakLabel temp.Label) Expr {
	test := temp.NewLabel()
	start := temp.NewLabel()
	return Nx{Stm: ir.SeqAll(
		ir.Label{Label: test},
		UnCx(cond)(start, breakLabel),
		ir.Label{Label: start},
		UnNx(body),
		ir.JumpTo(test),
		ir.Label{Label: breakLabel},
	)}
}

// ForExp translates a bounded loop. The limit is evaluated once into a
// fresh temp, and the increment is guarded so a limit at the top of the
// integer range cannot wrap.
func ForExp(varAccess Access, useLevel *Level, lo, hi, body Expr, breakLabel temp.Label) Expr {
	loopVar := frame.Exp(varAccess.Access, framePointer(useLevel, varAccess.Level))
	limit := temp.NewTemp()
	bodyLabel := temp.NewLabel()
	incrLabel := temp.NewLabel()
	return Nx{Stm: ir.SeqAll(
		&ir.Move{Dst: loopVar, Src: UnEx(lo)},
		&ir.Move{Dst: ir.Temp{Temp: limit}, Src: UnEx(hi)},
		&ir.CJump{Op: ir.Le, Left: loopVar, Right: ir.Temp{Temp: limit}, True: bodyLabel, False: breakLabel},
		ir.Label{Label: bodyLabel},
		UnNx(body),
		&ir.CJump{Op: ir.Lt, Left: loopVar, Right: ir.Temp{Temp: limit}, True: incrLabel, False: breakLabel},
		ir.Label{Label: incrLabel},
		&ir.Move{Dst: loopVar, Src: &ir.BinOp{Op: ir.Plus, Left: loopVar, Right: ir.Const{Value: 1}}},
		ir.JumpTo(bodyLabel),
		ir.Label{Label: breakLabel},
	)}
}

// Break translates a break to the innermost loop's exit label.
func Break(breakLabel temp.Label) Expr {
	return Nx{Stm: ir.JumpTo(breakLabel)}
}

// Assign translates a store into an lvalue.
func Assign(dst, src Expr) Expr {
	return Nx{Stm: &ir.Move{Dst: UnEx(dst), Src: UnEx(src)}}
}

// SeqExp chains expressions, keeping the last one's value.
func SeqExp(exps []Expr, valued bool) Expr {
	if len(exps) == 0 {
		return Unit()
	}
	if len(exps) == 1 {
		return exps[0]
	}
	var stms []ir.Stm
	for _, e := range exps[:len(exps)-1] {
		stms = append(stms, UnNx(e))
	}
	last := exps[len(exps)-1]
	if !valued {
		stms = append(stms, UnNx(last))
		return Nx{Stm: ir.SeqAll(stms...)}
	}
	return Ex{Exp: &ir.ESeq{Stm: ir.SeqAll(stms...), Exp: UnEx(last)}}
}

// Call translates a function call. calleeParent is the level the callee
// was declared in; the static link passed is that level's frame pointer
// as seen from the caller.
func (t *Translator) Call(fn temp.Label, calleeParent, useLevel *Level, args []Expr, resultIsPointer, isProcedure bool) Expr {
	irArgs := []ir.Exp{framePointer(useLevel, calleeParent)}
	for _, arg := range args {
		irArgs = append(irArgs, UnEx(arg))
	}
	call := &ir.Call{Fn: ir.Name{Label: fn}, Args: irArgs}
	return t.finishCall(call, resultIsPointer, isProcedure)
}

// ExternalCall translates a call to a runtime function: C convention, no
// static link.
func (t *Translator) ExternalCall(name string, args []Expr, resultIsPointer, isProcedure bool) Expr {
	irArgs := make([]ir.Exp, len(args))
	for i, arg := range args {
		irArgs[i] = UnEx(arg)
	}
	return t.finishCall(frame.ExternalCall(name, irArgs).(*ir.Call), resultIsPointer, isProcedure)
}

// MethodCall translates a virtual dispatch: load the vtable from the
// object header, load the method pointer at its fixed slot, and call
// through it with the receiver following the static link.
func (t *Translator) MethodCall(receiver Expr, index int, calleeParent, useLevel *Level, args []Expr, resultIsPointer, isProcedure bool) Expr {
	self := t.newPointerTemp()
	saveSelf := &ir.Move{Dst: ir.Temp{Temp: self}, Src: UnEx(receiver)}
	vtable := &ir.Mem{Addr: &ir.BinOp{
		Op:    ir.Plus,
		Left:  ir.Temp{Temp: self},
		Right: ir.Const{Value: frame.DataLayoutSize},
	}}
	method := &ir.Mem{Addr: &ir.BinOp{
		Op:    ir.Plus,
		Left:  vtable,
		Right: ir.Const{Value: int64(index) * frame.WordSize},
	}}
	irArgs := []ir.Exp{
		framePointer(useLevel, calleeParent),
		ir.Temp{Temp: self},
	}
	for _, arg := range args {
		irArgs = append(irArgs, UnEx(arg))
	}
	call := &ir.Call{Fn: method, Args: irArgs}
	expr := t.finishCall(call, resultIsPointer, isProcedure)
	switch e := expr.(type) {
	case Ex:
		return Ex{Exp: &ir.ESeq{Stm: saveSelf, Exp: e.Exp}}
	case Nx:
		return Nx{Stm: &ir.Seq{First: saveSelf, Second: e.Stm}}
	}
	return expr
}

// finishCall materialises pointer-valued call results into tracked temps
// so the pointer map can cover them.
func (t *Translator) finishCall(call *ir.Call, resultIsPointer, isProcedure bool) Expr {
	if isProcedure {
		return Nx{Stm: &ir.ExpStm{Exp: call}}
	}
	if resultIsPointer {
		r := t.newPointerTemp()
		return Ex{Exp: &ir.ESeq{
			Stm: &ir.Move{Dst: ir.Temp{Temp: r}, Src: call},
			Exp: ir.Temp{Temp: r},
		}}
	}
	return Ex{Exp: call}
}

// RecordExp translates record creation: allocate, then initialise each
// field in declaration order.
func (t *Translator) RecordExp(layout ir.Exp, size int64, offsets []int64, inits []Expr) Expr {
	r := t.newPointerTemp()
	stms := []ir.Stm{
		&ir.Move{
			Dst: ir.Temp{Temp: r},
			Src: frame.ExternalCall("allocRecord", []ir.Exp{layout, ir.Const{Value: size}}),
		},
	}
	for i, init := range inits {
		stms = append(stms, &ir.Move{
			Dst: &ir.Mem{Addr: &ir.BinOp{
				Op:    ir.Plus,
				Left:  ir.Temp{Temp: r},
				Right: ir.Const{Value: offsets[i]},
			}},
			Src: UnEx(init),
		})
	}
	return Ex{Exp: &ir.ESeq{Stm: ir.SeqAll(stms...), Exp: ir.Temp{Temp: r}}}
}

// ArrayExp translates array creation. For value elements the runtime
// fills the array from a single evaluation of the initialiser; for
// reference elements the initialiser is re-evaluated per element so each
// slot gets a distinct object.
func (t *Translator) ArrayExp(descriptor ir.Exp, size, init Expr, elementIsReference bool) Expr {
	a := t.newPointerTemp()
	length := temp.NewTemp()
	alloc := []ir.Stm{
		&ir.Move{Dst: ir.Temp{Temp: length}, Src: UnEx(size)},
		&ir.Move{
			Dst: ir.Temp{Temp: a},
			Src: frame.ExternalCall("allocArray", []ir.Exp{descriptor, ir.Temp{Temp: length}}),
		},
	}

	if !elementIsReference {
		alloc = append(alloc, &ir.ExpStm{
			Exp: frame.ExternalCall("initArray", []ir.Exp{
				ir.Temp{Temp: a},
				ir.Temp{Temp: length},
				UnEx(init),
			}),
		})
		return Ex{Exp: &ir.ESeq{Stm: ir.SeqAll(alloc...), Exp: ir.Temp{Temp: a}}}
	}

	// Element-by-element initialisation; the loop body re-evaluates the
	// initialiser, allocating a distinct object per slot.
	i := temp.NewTemp()
	test := temp.NewLabel()
	body := temp.NewLabel()
	done := temp.NewLabel()
	loop := []ir.Stm{
		&ir.Move{Dst: ir.Temp{Temp: i}, Src: ir.Const{Value: 0}},
		ir.Label{Label: test},
		&ir.CJump{Op: ir.Lt, Left: ir.Temp{Temp: i}, Right: ir.Temp{Temp: length}, True: body, False: done},
		ir.Label{Label: body},
		&ir.Move{
			Dst: &ir.Mem{Addr: &ir.BinOp{
				Op:   ir.Plus,
				Left: ir.Temp{Temp: a},
				Right: &ir.BinOp{
					Op:   ir.Plus,
					Left: ir.Const{Value: frame.DataLayoutSize + frame.WordSize},
					Right: &ir.BinOp{
						Op:    ir.Mul,
						Left:  ir.Temp{Temp: i},
						Right: ir.Const{Value: frame.WordSize},
					},
				},
			}},
			Src: UnEx(init),
		},
		&ir.Move{
			Dst: ir.Temp{Temp: i},
			Src: &ir.BinOp{Op: ir.Plus, Left: ir.Temp{Temp: i}, Right: ir.Const{Value: 1}},
		},
		ir.JumpTo(test),
		ir.Label{Label: done},
	}
	return Ex{Exp: &ir.ESeq{
		Stm: ir.SeqAll(append(alloc, loop...)...),
		Exp: ir.Temp{Temp: a},
	}}
}

// NewExp translates class instantiation: allocate, store the vtable
// pointer, then run the class constructor, which initialises the fields
// in its declaration environment.
func (t *Translator) NewExp(layout ir.Exp, size int64, vtable temp.Label, init temp.Label, declLevel, useLevel *Level) Expr {
	obj := t.newPointerTemp()
	stms := []ir.Stm{
		&ir.Move{
			Dst: ir.Temp{Temp: obj},
			Src: frame.ExternalCall("allocRecord", []ir.Exp{layout, ir.Const{Value: size}}),
		},
		&ir.Move{
			Dst: &ir.Mem{Addr: &ir.BinOp{
				Op:    ir.Plus,
				Left:  ir.Temp{Temp: obj},
				Right: ir.Const{Value: frame.DataLayoutSize},
			}},
			Src: ir.Name{Label: vtable},
		},
	}
	if init != "" {
		stms = append(stms, &ir.ExpStm{Exp: &ir.Call{
			Fn:   ir.Name{Label: init},
			Args: []ir.Exp{framePointer(useLevel, declLevel), ir.Temp{Temp: obj}},
		}})
	}
	return Ex{Exp: &ir.ESeq{Stm: ir.SeqAll(stms...), Exp: ir.Temp{Temp: obj}}}
}

// And translates logical conjunction as a short-circuit conditional.
func And(left, right Expr) Expr {
	l := UnCx(left)
	r := UnCx(right)
	return Cx{Build: func(t, f temp.Label) ir.Stm {
		mid := temp.NewLabel()
		return ir.SeqAll(l(mid, f), ir.Label{Label: mid}, r(t, f))
	}}
}

// Or translates logical disjunction as a short-circuit conditional.
func Or(left, right Expr) Expr {
	l := UnCx(left)
	r := UnCx(right)
	return Cx{Build: func(t, f temp.Label) ir.Stm {
		mid := temp.NewLabel()
		return ir.SeqAll(l(t, mid), ir.Label{Label: mid}, r(t, f))
	}}
}

// VTable emits a class's virtual-table fragment.
func (t *Translator) VTable(label temp.Label, methods []temp.Label) {
	t.fragments = append(t.fragments, &frame.VTableFrag{Label: label, Methods: methods})
}

// Function finishes a function: the body value is moved into the return
// register, the frame wraps the result with its view shift, and a
// fragment is emitted. Escaping pointer-typed locals are reported so the
// collector can scan their frame slots.
func (t *Translator) Function(level *Level, body Expr, isProcedure bool, pointerFrameOffsets []int64) {
	var stm ir.Stm
	if isProcedure {
		stm = UnNx(body)
	} else {
		stm = &ir.Move{Dst: ir.Temp{Temp: frame.RV}, Src: UnEx(body)}
	}
	stm = level.Frame.ProcEntryExit1(stm)
	t.fragments = append(t.fragments, &frame.FunctionFrag{
		Body:                stm,
		Frame:               level.Frame,
		PointerTemps:        t.pointerTemps,
		PointerFrameOffsets: pointerFrameOffsets,
	})
}
