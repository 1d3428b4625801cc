package translate

import (
	"github.com/raymyers/tiger-go/pkg/ir"
	"github.com/raymyers/tiger-go/pkg/temp"
)

// Expr is a translated expression in one of three views: a value (Ex), a
// statement with no value (Nx), or a conditional that jumps to one of
// two labels (Cx). Conversions between the views materialise the usual
// idioms lazily, so a comparison used as a condition never builds the
// 0/1 value.
type Expr interface {
	implExpr()
}

// Ex wraps a value expression
type Ex struct {
	Exp ir.Exp
}

// Nx wraps a statement
type Nx struct {
	Stm ir.Stm
}

// Cx wraps a conditional: Build emits the branch to the given true and
// false labels
type Cx struct {
	Build func(t, f temp.Label) ir.Stm
}

func (Ex) implExpr() {}
func (Nx) implExpr() {}
func (Cx) implExpr() {}

// UnEx converts any view to a value expression
func UnEx(e Expr) ir.Exp {
	switch ex := e.(type) {
	case Ex:
		return ex.Exp
	case Nx:
		return &ir.ESeq{Stm: ex.Stm, Exp: ir.Const{Value: 0}}
	case Cx:
		r := temp.NewTemp()
		t := temp.NewLabel()
		f := temp.NewLabel()
		return &ir.ESeq{
			Stm: ir.SeqAll(
				&ir.Move{Dst: ir.Temp{Temp: r}, Src: ir.Const{Value: 1}},
				ex.Build(t, f),
				ir.Label{Label: f},
				&ir.Move{Dst: ir.Temp{Temp: r}, Src: ir.Const{Value: 0}},
				ir.Label{Label: t},
			),
			Exp: ir.Temp{Temp: r},
		}
	}
	panic("translate: unknown expression view")
}

// UnNx converts any view to a statement
func UnNx(e Expr) ir.Stm {
	switch ex := e.(type) {
	case Ex:
		return &ir.ExpStm{Exp: ex.Exp}
	case Nx:
		return ex.Stm
	case Cx:
		done := temp.NewLabel()
		return ir.SeqAll(
			ex.Build(done, done),
			ir.Label{Label: done},
		)
	}
	panic("translate: unknown expression view")
}

// UnCx converts any view to a conditional builder
func UnCx(e Expr) func(t, f temp.Label) ir.Stm {
	switch ex := e.(type) {
	case Ex:
		if c, ok := ex.Exp.(ir.Const); ok {
			if c.Value == 0 {
				return func(t, f temp.Label) ir.Stm {
					return ir.JumpTo(f)
				}
			}
			return func(t, f temp.Label) ir.Stm {
				return ir.JumpTo(t)
			}
		}
		return func(t, f temp.Label) ir.Stm {
			return &ir.CJump{
				Op:    ir.Ne,
				Left:  ex.Exp,
				Right: ir.Const{Value: 0},
				True:  t,
				False: f,
			}
		}
	case Cx:
		return ex.Build
	case Nx:
		panic("translate: statement used as condition")
	}
	panic("translate: unknown expression view")
}
