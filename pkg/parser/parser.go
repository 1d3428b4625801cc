// Package parser builds a Tiger AST from a token stream. It is a
// recursive-descent parser with precedence climbing for operators.
// Adjacent function declarations and adjacent type declarations are
// grouped so that semantic analysis can handle mutual recursion.
package parser

import (
	"strconv"

	"github.com/raymyers/tiger-go/pkg/ast"
	"github.com/raymyers/tiger-go/pkg/diag"
	"github.com/raymyers/tiger-go/pkg/lexer"
	"github.com/raymyers/tiger-go/pkg/symbol"
)

// Parser parses Tiger source into an AST
type Parser struct {
	l       *lexer.Lexer
	strings *symbol.Strings

	curToken  lexer.Token
	peekToken lexer.Token

	errors []*diag.Error
}

// New creates a Parser reading from l, interning identifiers into strings
func New(l *lexer.Lexer, strings *symbol.Strings) *Parser {
	p := &Parser{l: l, strings: strings}
	// Read two tokens so curToken and peekToken are both set
	p.nextToken()
	p.nextToken()
	return p
}

// Errors returns the diagnostics accumulated while parsing
func (p *Parser) Errors() []*diag.Error {
	return p.errors
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
	if p.curToken.Type == lexer.TokenIllegal {
		p.errorf("illegal token %q", p.curToken.Literal)
	}
}

func (p *Parser) errorf(format string, args ...interface{}) {
	p.errors = append(p.errors, diag.Errorf(diag.Syntactic, p.curToken.Pos, format, args...))
}

func (p *Parser) expect(t lexer.TokenType) bool {
	if p.curToken.Type != t {
		p.errorf("expected %s, found %s", t, p.curToken.Type)
		return false
	}
	p.nextToken()
	return true
}

func (p *Parser) symbol() symbol.Symbol {
	return p.strings.Symbol(p.curToken.Literal)
}

// ParseProgram parses a whole source file: a single expression
func (p *Parser) ParseProgram() ast.Exp {
	exp := p.parseExp()
	if p.curToken.Type != lexer.TokenEOF {
		p.errorf("expected end of file, found %s", p.curToken.Type)
	}
	return exp
}

// parseExp parses an expression, including control forms
func (p *Parser) parseExp() ast.Exp {
	switch p.curToken.Type {
	case lexer.TokenIf:
		return p.parseIf()
	case lexer.TokenWhile:
		return p.parseWhile()
	case lexer.TokenFor:
		return p.parseFor()
	case lexer.TokenLet:
		return p.parseLet()
	case lexer.TokenBreak:
		pos := p.curToken.Pos
		p.nextToken()
		return &ast.BreakExp{Pos: pos}
	default:
		return p.parseOr()
	}
}

func (p *Parser) parseIf() ast.Exp {
	pos := p.curToken.Pos
	p.nextToken() // if
	cond := p.parseExp()
	p.expect(lexer.TokenThen)
	then := p.parseExp()
	var els ast.Exp
	if p.curToken.Type == lexer.TokenElse {
		p.nextToken()
		els = p.parseExp()
	}
	return &ast.IfExp{Cond: cond, Then: then, Else: els, Pos: pos}
}

func (p *Parser) parseWhile() ast.Exp {
	pos := p.curToken.Pos
	p.nextToken() // while
	cond := p.parseExp()
	p.expect(lexer.TokenDo)
	body := p.parseExp()
	return &ast.WhileExp{Cond: cond, Body: body, Pos: pos}
}

func (p *Parser) parseFor() ast.Exp {
	pos := p.curToken.Pos
	p.nextToken() // for
	if p.curToken.Type != lexer.TokenIdent {
		p.errorf("expected identifier after for, found %s", p.curToken.Type)
		return &ast.IntExp{Pos: pos}
	}
	sym := p.symbol()
	p.nextToken()
	p.expect(lexer.TokenAssign)
	lo := p.parseExp()
	p.expect(lexer.TokenTo)
	hi := p.parseExp()
	p.expect(lexer.TokenDo)
	body := p.parseExp()
	return &ast.ForExp{Var: sym, Lo: lo, Hi: hi, Body: body, Pos: pos}
}

func (p *Parser) parseLet() ast.Exp {
	pos := p.curToken.Pos
	p.nextToken() // let
	var decs []ast.Dec
loop:
	for {
		switch p.curToken.Type {
		case lexer.TokenFunction:
			decs = append(decs, p.parseFunctionDecs())
		case lexer.TokenVar:
			decs = append(decs, p.parseVarDec())
		case lexer.TokenType_:
			decs = append(decs, p.parseTypeDecs())
		case lexer.TokenClass:
			decs = append(decs, p.parseClassDec())
		default:
			break loop
		}
	}
	p.expect(lexer.TokenIn)
	body := p.parseExpSeq(pos)
	p.expect(lexer.TokenEnd)
	return &ast.LetExp{Decs: decs, Body: body, Pos: pos}
}

// parseExpSeq parses `exp ; exp ; ...` up to the enclosing terminator.
// An empty sequence is the unit value.
func (p *Parser) parseExpSeq(pos diag.Pos) ast.Exp {
	if p.curToken.Type == lexer.TokenEnd || p.curToken.Type == lexer.TokenRParen {
		return &ast.SeqExp{Pos: pos}
	}
	first := p.parseExp()
	if p.curToken.Type != lexer.TokenSemicolon {
		return first
	}
	exps := []ast.Exp{first}
	for p.curToken.Type == lexer.TokenSemicolon {
		p.nextToken()
		exps = append(exps, p.parseExp())
	}
	return &ast.SeqExp{Exps: exps, Pos: pos}
}

// parseFunctionDecs groups adjacent function declarations
func (p *Parser) parseFunctionDecs() ast.Dec {
	var fns []*ast.FunDec
	for p.curToken.Type == lexer.TokenFunction {
		p.nextToken() // function
		fns = append(fns, p.parseFunDec())
	}
	return &ast.FunctionDec{Functions: fns}
}

// parseFunDec parses the part after the function/method keyword
func (p *Parser) parseFunDec() *ast.FunDec {
	pos := p.curToken.Pos
	name := p.symbol()
	p.expect(lexer.TokenIdent)
	p.expect(lexer.TokenLParen)
	params := p.parseFields(lexer.TokenRParen)
	p.expect(lexer.TokenRParen)
	fn := &ast.FunDec{Name: name, Params: params, Pos: pos}
	if p.curToken.Type == lexer.TokenColon {
		p.nextToken()
		fn.Result = p.symbol()
		fn.HasResult = true
		p.expect(lexer.TokenIdent)
	}
	p.expect(lexer.TokenEq)
	fn.Body = p.parseExp()
	return fn
}

// parseFields parses `name : type, ...` lists for parameters and record
// type declarations
func (p *Parser) parseFields(terminator lexer.TokenType) []*ast.Field {
	var fields []*ast.Field
	for p.curToken.Type != terminator && p.curToken.Type != lexer.TokenEOF {
		if len(fields) > 0 {
			if !p.expect(lexer.TokenComma) {
				break
			}
		}
		field := &ast.Field{Name: p.symbol(), Pos: p.curToken.Pos}
		if !p.expect(lexer.TokenIdent) {
			break
		}
		if !p.expect(lexer.TokenColon) {
			break
		}
		field.Type = p.symbol()
		if !p.expect(lexer.TokenIdent) {
			break
		}
		fields = append(fields, field)
	}
	return fields
}

func (p *Parser) parseVarDec() ast.Dec {
	pos := p.curToken.Pos
	p.nextToken() // var
	dec := &ast.VarDec{Name: p.symbol(), Pos: pos}
	p.expect(lexer.TokenIdent)
	if p.curToken.Type == lexer.TokenColon {
		p.nextToken()
		dec.Type = p.symbol()
		dec.HasType = true
		p.expect(lexer.TokenIdent)
	}
	p.expect(lexer.TokenAssign)
	dec.Init = p.parseExp()
	return dec
}

// parseTypeDecs groups adjacent type declarations
func (p *Parser) parseTypeDecs() ast.Dec {
	var items []*ast.TypeDecItem
	for p.curToken.Type == lexer.TokenType_ {
		p.nextToken() // type
		item := &ast.TypeDecItem{Name: p.symbol(), Pos: p.curToken.Pos}
		p.expect(lexer.TokenIdent)
		p.expect(lexer.TokenEq)
		item.Ty = p.parseTy()
		items = append(items, item)
	}
	return &ast.TypeDec{Types: items}
}

func (p *Parser) parseTy() ast.Ty {
	pos := p.curToken.Pos
	switch p.curToken.Type {
	case lexer.TokenLBrace:
		p.nextToken()
		fields := p.parseFields(lexer.TokenRBrace)
		p.expect(lexer.TokenRBrace)
		return &ast.RecordTy{Fields: fields, Pos: pos}
	case lexer.TokenArray:
		p.nextToken()
		p.expect(lexer.TokenOf)
		ty := &ast.ArrayTy{Sym: p.symbol(), Pos: pos}
		p.expect(lexer.TokenIdent)
		return ty
	case lexer.TokenIdent:
		ty := &ast.NameTy{Sym: p.symbol(), Pos: pos}
		p.nextToken()
		return ty
	default:
		p.errorf("expected a type, found %s", p.curToken.Type)
		p.nextToken()
		return &ast.NameTy{Pos: pos}
	}
}

func (p *Parser) parseClassDec() ast.Dec {
	pos := p.curToken.Pos
	p.nextToken() // class
	dec := &ast.ClassDec{Name: p.symbol(), Pos: pos}
	p.expect(lexer.TokenIdent)
	if p.curToken.Type == lexer.TokenExtends {
		p.nextToken()
		dec.Parent = p.symbol()
		dec.HasParent = true
		p.expect(lexer.TokenIdent)
	}
	p.expect(lexer.TokenLBrace)
	for p.curToken.Type != lexer.TokenRBrace && p.curToken.Type != lexer.TokenEOF {
		switch p.curToken.Type {
		case lexer.TokenVar:
			dec.Fields = append(dec.Fields, p.parseVarDec().(*ast.VarDec))
		case lexer.TokenMethod:
			p.nextToken() // method
			dec.Methods = append(dec.Methods, p.parseFunDec())
		default:
			p.errorf("expected var or method in class body, found %s", p.curToken.Type)
			p.nextToken()
		}
	}
	p.expect(lexer.TokenRBrace)
	return dec
}

// --- Operator expressions ---

func (p *Parser) parseOr() ast.Exp {
	left := p.parseAnd()
	for p.curToken.Type == lexer.TokenPipe {
		pos := p.curToken.Pos
		p.nextToken()
		right := p.parseAnd()
		left = &ast.OpExp{Op: ast.OrOp, Left: left, Right: right, Pos: pos}
	}
	return left
}

func (p *Parser) parseAnd() ast.Exp {
	left := p.parseComparison()
	for p.curToken.Type == lexer.TokenAmpersand {
		pos := p.curToken.Pos
		p.nextToken()
		right := p.parseComparison()
		left = &ast.OpExp{Op: ast.AndOp, Left: left, Right: right, Pos: pos}
	}
	return left
}

var comparisonOps = map[lexer.TokenType]ast.Oper{
	lexer.TokenEq: ast.EqOp,
	lexer.TokenNe: ast.NeqOp,
	lexer.TokenLt: ast.LtOp,
	lexer.TokenLe: ast.LeOp,
	lexer.TokenGt: ast.GtOp,
	lexer.TokenGe: ast.GeOp,
}

// parseComparison parses the non-associative comparison level
func (p *Parser) parseComparison() ast.Exp {
	left := p.parseAdditive()
	if op, ok := comparisonOps[p.curToken.Type]; ok {
		pos := p.curToken.Pos
		p.nextToken()
		right := p.parseAdditive()
		return &ast.OpExp{Op: op, Left: left, Right: right, Pos: pos}
	}
	return left
}

func (p *Parser) parseAdditive() ast.Exp {
	left := p.parseMultiplicative()
	for p.curToken.Type == lexer.TokenPlus || p.curToken.Type == lexer.TokenMinus {
		op := ast.PlusOp
		if p.curToken.Type == lexer.TokenMinus {
			op = ast.MinusOp
		}
		pos := p.curToken.Pos
		p.nextToken()
		right := p.parseMultiplicative()
		left = &ast.OpExp{Op: op, Left: left, Right: right, Pos: pos}
	}
	return left
}

func (p *Parser) parseMultiplicative() ast.Exp {
	left := p.parseUnary()
	for p.curToken.Type == lexer.TokenStar || p.curToken.Type == lexer.TokenSlash {
		op := ast.TimesOp
		if p.curToken.Type == lexer.TokenSlash {
			op = ast.DivideOp
		}
		pos := p.curToken.Pos
		p.nextToken()
		right := p.parseUnary()
		left = &ast.OpExp{Op: op, Left: left, Right: right, Pos: pos}
	}
	return left
}

// parseUnary parses unary negation as 0 - operand
func (p *Parser) parseUnary() ast.Exp {
	if p.curToken.Type == lexer.TokenMinus {
		pos := p.curToken.Pos
		p.nextToken()
		operand := p.parseUnary()
		return &ast.OpExp{
			Op:    ast.MinusOp,
			Left:  &ast.IntExp{Value: 0, Pos: pos},
			Right: operand,
			Pos:   pos,
		}
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() ast.Exp {
	pos := p.curToken.Pos
	switch p.curToken.Type {
	case lexer.TokenNil:
		p.nextToken()
		return &ast.NilExp{Pos: pos}
	case lexer.TokenInt:
		value, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
		if err != nil {
			p.errorf("integer literal %s out of range", p.curToken.Literal)
		}
		p.nextToken()
		return &ast.IntExp{Value: value, Pos: pos}
	case lexer.TokenString:
		value := p.curToken.Literal
		p.nextToken()
		return &ast.StringExp{Value: value, Pos: pos}
	case lexer.TokenNew:
		p.nextToken()
		exp := &ast.NewExp{Class: p.symbol(), Pos: pos}
		p.expect(lexer.TokenIdent)
		return exp
	case lexer.TokenLParen:
		p.nextToken()
		seq := p.parseExpSeq(pos)
		p.expect(lexer.TokenRParen)
		return seq
	case lexer.TokenIdent:
		return p.parseIdentExp()
	default:
		p.errorf("expected an expression, found %s", p.curToken.Type)
		p.nextToken()
		return &ast.IntExp{Pos: pos}
	}
}

// parseIdentExp parses everything that begins with an identifier: calls,
// record and array creation, lvalues, assignments, and method calls.
func (p *Parser) parseIdentExp() ast.Exp {
	pos := p.curToken.Pos
	sym := p.symbol()
	p.nextToken()

	switch p.curToken.Type {
	case lexer.TokenLParen:
		p.nextToken()
		args := p.parseArgs()
		p.expect(lexer.TokenRParen)
		return &ast.CallExp{Func: sym, Args: args, Pos: pos}
	case lexer.TokenLBrace:
		p.nextToken()
		var fields []ast.FieldInit
		for p.curToken.Type != lexer.TokenRBrace && p.curToken.Type != lexer.TokenEOF {
			if len(fields) > 0 {
				if !p.expect(lexer.TokenComma) {
					break
				}
			}
			init := ast.FieldInit{Name: p.symbol(), Pos: p.curToken.Pos}
			if !p.expect(lexer.TokenIdent) {
				break
			}
			if !p.expect(lexer.TokenEq) {
				break
			}
			init.Init = p.parseExp()
			fields = append(fields, init)
		}
		p.expect(lexer.TokenRBrace)
		return &ast.RecordExp{Type: sym, Fields: fields, Pos: pos}
	case lexer.TokenLBracket:
		// Either `ty[size] of init` (array creation) or a subscript lvalue
		p.nextToken()
		index := p.parseExp()
		p.expect(lexer.TokenRBracket)
		if p.curToken.Type == lexer.TokenOf {
			p.nextToken()
			init := p.parseExp()
			return &ast.ArrayExp{Type: sym, Size: index, Init: init, Pos: pos}
		}
		var v ast.Var = &ast.SubscriptVar{
			Var:   &ast.SimpleVar{Sym: sym, Pos: pos},
			Index: index,
			Pos:   pos,
		}
		return p.parseVarSuffix(v)
	default:
		return p.parseVarSuffix(&ast.SimpleVar{Sym: sym, Pos: pos})
	}
}

// parseVarSuffix extends an lvalue with .field and [index] selectors, then
// handles a trailing assignment or method call.
func (p *Parser) parseVarSuffix(v ast.Var) ast.Exp {
	for {
		switch p.curToken.Type {
		case lexer.TokenDot:
			pos := p.curToken.Pos
			p.nextToken()
			field := p.symbol()
			fieldPos := p.curToken.Pos
			if !p.expect(lexer.TokenIdent) {
				return &ast.VarExp{Var: v}
			}
			if p.curToken.Type == lexer.TokenLParen {
				p.nextToken()
				args := p.parseArgs()
				p.expect(lexer.TokenRParen)
				call := &ast.MethodCallExp{Receiver: v, Method: field, Args: args, Pos: fieldPos}
				return p.parseCallSuffix(call)
			}
			v = &ast.FieldVar{Var: v, Field: field, Pos: pos}
		case lexer.TokenLBracket:
			pos := p.curToken.Pos
			p.nextToken()
			index := p.parseExp()
			p.expect(lexer.TokenRBracket)
			v = &ast.SubscriptVar{Var: v, Index: index, Pos: pos}
		case lexer.TokenAssign:
			pos := p.curToken.Pos
			p.nextToken()
			value := p.parseExp()
			return &ast.AssignExp{Var: v, Exp: value, Pos: pos}
		default:
			return &ast.VarExp{Var: v}
		}
	}
}

// parseCallSuffix allows chaining selectors after a method call result is
// not supported in Tiger; a method call is an expression, so only return it.
func (p *Parser) parseCallSuffix(call ast.Exp) ast.Exp {
	return call
}

func (p *Parser) parseArgs() []ast.Exp {
	var args []ast.Exp
	for p.curToken.Type != lexer.TokenRParen && p.curToken.Type != lexer.TokenEOF {
		if len(args) > 0 {
			if !p.expect(lexer.TokenComma) {
				break
			}
		}
		args = append(args, p.parseExp())
	}
	return args
}
