// Package translate builds tree IR during semantic analysis. It owns the
// nesting-level structure that makes static links work, the Ex/Nx/Cx
// expression views, and the fragment list handed to the back end.
package translate

import (
	"github.com/raymyers/tiger-go/pkg/frame"
	"github.com/raymyers/tiger-go/pkg/temp"
)

// Level is one function-nesting level. Every level except the outermost
// has a frame whose first formal is the static link.
type Level struct {
	Parent *Level
	Frame  frame.Frame
}

// Access is a variable's home together with the level that owns it.
type Access struct {
	Level  *Level
	Access frame.Access
}

// Outermost creates the level representing the runtime's view of the
// program: the level at which main and the external functions live.
func Outermost() *Level {
	return &Level{}
}

// NewLevel creates a nested level with a fresh frame. A static link slot
// is prepended to the user formals; it always escapes because nested
// functions address it from their own static-link chains.
func NewLevel(parent *Level, name temp.Label, formalEscapes []bool) *Level {
	escapes := append([]bool{true}, formalEscapes...)
	return &Level{
		Parent: parent,
		Frame:  frame.NewX8664(name, escapes),
	}
}

// Formals returns the accesses of the user formals, without the static
// link.
func (l *Level) Formals() []Access {
	formals := l.Frame.Formals()
	result := make([]Access, 0, len(formals)-1)
	for _, access := range formals[1:] {
		result = append(result, Access{Level: l, Access: access})
	}
	return result
}

// AllocLocal picks a home for a local at this level.
func (l *Level) AllocLocal(escapes bool) Access {
	return Access{Level: l, Access: l.Frame.AllocLocal(escapes)}
}

// staticLink returns the access of this level's static link.
func (l *Level) staticLink() frame.Access {
	return l.Frame.Formals()[0]
}
