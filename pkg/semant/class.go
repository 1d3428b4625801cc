package semant

import (
	"github.com/raymyers/tiger-go/pkg/ast"
	"github.com/raymyers/tiger-go/pkg/diag"
	"github.com/raymyers/tiger-go/pkg/frame"
	"github.com/raymyers/tiger-go/pkg/symbol"
	"github.com/raymyers/tiger-go/pkg/temp"
	"github.com/raymyers/tiger-go/pkg/translate"
	"github.com/raymyers/tiger-go/pkg/types"
)

// transClassDec analyses one class declaration. The class type carries
// the full field layout and vtable of its ancestors; a constructor
// function is synthesized so field initialisers run in the declaration
// environment, and each method body becomes an ordinary function whose
// hidden formals are the static link and self.
func (s *Semant) transClassDec(d *ast.ClassDec, level *translate.Level) error {
	parentSym := s.objectSym
	if d.HasParent {
		parentSym = d.Parent
	}
	parentTy, ok := s.env.tenv.Look(parentSym)
	if !ok {
		return diag.UndefinedError(d.Pos, "class", s.name(parentSym))
	}
	parent, ok := types.Actual(parentTy).(*types.Class)
	if !ok {
		return diag.Errorf(diag.Semantic, d.Pos, "%q is not a class", s.name(parentSym))
	}

	className := s.name(d.Name)
	cls := &types.Class{
		Name:        d.Name,
		Parent:      parent,
		Fields:      append([]types.Field{}, parent.Fields...),
		Methods:     append([]types.Method{}, parent.Methods...),
		VtableLabel: temp.NamedLabel("__vtable_" + className),
		Unique:      types.NewUnique(),
	}
	s.env.tenv.Enter(d.Name, cls)

	initLabel := temp.NamedLabel("__init_" + className)
	s.classes[cls.Unique] = &classMeta{declLevel: level, initLabel: initLabel}

	if err := s.translateConstructor(d, cls, parent, level, initLabel); err != nil {
		return err
	}
	return s.translateMethods(d, cls, className, level)
}

// translateConstructor builds __init_<Class>: it chains to the parent's
// constructor, then initialises the class's own fields in declaration
// order. Field types may be declared or inferred from the initialiser.
func (s *Semant) translateConstructor(d *ast.ClassDec, cls, parent *types.Class, level *translate.Level, initLabel temp.Label) error {
	initLevel := translate.NewLevel(level, initLabel, []bool{true})
	selfAccess := initLevel.Formals()[0]

	savedRoots := s.frameRoots
	savedClass := s.currentClass
	s.frameRoots = nil
	s.currentClass = cls
	s.env.BeginScope()
	defer func() {
		s.env.EndScope()
		s.currentClass = savedClass
		s.frameRoots = savedRoots
	}()

	s.trackVar(selfAccess, cls)
	s.env.venv.Enter(s.selfSym, &VarEntry{Access: selfAccess, Ty: cls, Assignable: false})
	selfExpr := func() translate.Expr {
		return translate.SimpleVar(selfAccess, initLevel)
	}

	var stms []translate.Expr
	if parentMeta := s.classes[parent.Unique]; parentMeta != nil {
		stms = append(stms, s.translator.Call(
			parentMeta.initLabel, parentMeta.declLevel, initLevel,
			[]translate.Expr{selfExpr()}, false, true))
	}

	fieldNames := make(map[symbol.Symbol]bool)
	for _, field := range cls.Fields {
		fieldNames[field.Name] = true
	}
	for _, fieldDec := range d.Fields {
		if fieldNames[fieldDec.Name] {
			return diag.DuplicateError(fieldDec.Pos, s.name(fieldDec.Name))
		}
		fieldNames[fieldDec.Name] = true

		init, err := s.transExp(fieldDec.Init, initLevel, "")
		if err != nil {
			return err
		}
		var ty types.Type
		if fieldDec.HasType {
			declared, ok := s.env.tenv.Look(fieldDec.Type)
			if !ok {
				return diag.UndefinedError(fieldDec.Pos, "type", s.name(fieldDec.Type))
			}
			if err := s.checkCompatible(declared, init.ty, fieldDec.Init.ExpPos()); err != nil {
				return err
			}
			ty = declared
		} else {
			switch types.Actual(init.ty).(type) {
			case types.Nil:
				return diag.Errorf(diag.Semantic, fieldDec.Pos, "initialising with nil requires an explicit type")
			case types.Unit:
				return diag.Errorf(diag.Semantic, fieldDec.Pos, "cannot initialise a field with no value")
			}
			ty = init.ty
		}

		offset := int64(frame.DataLayoutSize) + frame.WordSize + int64(len(cls.Fields))*frame.WordSize
		cls.Fields = append(cls.Fields, types.Field{Name: fieldDec.Name, Type: ty, Offset: offset})
		stms = append(stms, translate.Assign(translate.FieldVar(selfExpr(), offset), init.expr))
	}

	body := translate.SeqExp(stms, false)
	s.translator.Function(initLevel, body, true, s.frameRoots)
	return nil
}

// translateMethods enters every method header into the vtable layout,
// then translates the bodies, and finally emits the vtable fragment.
func (s *Semant) translateMethods(d *ast.ClassDec, cls *types.Class, className string, level *translate.Level) error {
	seen := make(map[symbol.Symbol]bool)
	levels := make([]*translate.Level, len(d.Methods))
	methods := make([]*types.Method, len(d.Methods))

	for i, m := range d.Methods {
		if seen[m.Name] {
			return diag.DuplicateError(m.Pos, s.name(m.Name))
		}
		seen[m.Name] = true

		formals, result, err := s.resolveSignature(m)
		if err != nil {
			return err
		}
		label := temp.NamedLabel("__" + className + "_" + s.name(m.Name))

		slot := -1
		for j := range cls.Methods {
			if cls.Methods[j].Name == m.Name {
				slot = j
				break
			}
		}
		if slot >= 0 {
			// Override: the signature must match the inherited slot
			inherited := &cls.Methods[slot]
			if len(formals) != len(inherited.Formals) {
				return diag.ArityError(m.Pos, s.name(m.Name), len(inherited.Formals), len(formals))
			}
			for j := range formals {
				if !types.Equal(inherited.Formals[j], formals[j]) || !types.Equal(formals[j], inherited.Formals[j]) {
					return diag.TypeMismatchError(m.Pos,
						s.describe(inherited.Formals[j]), s.describe(formals[j]))
				}
			}
			if !types.Equal(inherited.Result, result) || !types.Equal(result, inherited.Result) {
				return diag.TypeMismatchError(m.Pos, s.describe(inherited.Result), s.describe(result))
			}
			cls.Methods[slot].Label = label
		} else {
			slot = len(cls.Methods)
			cls.Methods = append(cls.Methods, types.Method{
				Name:    m.Name,
				Label:   label,
				Index:   slot,
				Formals: formals,
				Result:  result,
			})
		}
		methods[i] = &cls.Methods[slot]

		escapes := []bool{true} // self
		for _, param := range m.Params {
			escapes = append(escapes, param.Escape)
		}
		levels[i] = translate.NewLevel(level, label, escapes)
	}

	for i, m := range d.Methods {
		if err := s.transMethodBody(m, cls, methods[i], levels[i]); err != nil {
			return err
		}
	}

	vtable := make([]temp.Label, len(cls.Methods))
	for i, m := range cls.Methods {
		vtable[i] = m.Label
	}
	s.translator.VTable(cls.VtableLabel, vtable)
	return nil
}

func (s *Semant) transMethodBody(m *ast.FunDec, cls *types.Class, method *types.Method, level *translate.Level) error {
	savedRoots := s.frameRoots
	savedClass := s.currentClass
	s.frameRoots = nil
	s.currentClass = cls
	s.env.BeginScope()
	defer func() {
		s.env.EndScope()
		s.currentClass = savedClass
		s.frameRoots = savedRoots
	}()

	accesses := level.Formals()
	s.trackVar(accesses[0], cls)
	s.env.venv.Enter(s.selfSym, &VarEntry{Access: accesses[0], Ty: cls, Assignable: false})
	for i, param := range m.Params {
		s.trackVar(accesses[i+1], method.Formals[i])
		s.env.venv.Enter(param.Name, &VarEntry{
			Access:     accesses[i+1],
			Ty:         method.Formals[i],
			Assignable: true,
		})
	}

	body, err := s.transExp(m.Body, level, "")
	if err != nil {
		return err
	}
	if err := s.checkCompatible(method.Result, body.ty, m.Body.ExpPos()); err != nil {
		return err
	}
	isProcedure := types.Equal(types.Unit{}, method.Result)
	s.translator.Function(level, body.expr, isProcedure, s.frameRoots)
	return nil
}
