package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/raymyers/tiger-go/pkg/temp"
)

// Reader parses the Printer's s-expression form back into IR trees. It
// exists so the canonicaliser's output can be round-tripped in tests.
type Reader struct {
	tokens []string
	pos    int
}

// NewReader tokenizes input for parsing
func NewReader(input string) *Reader {
	replaced := strings.NewReplacer("(", " ( ", ")", " ) ").Replace(input)
	return &Reader{tokens: strings.Fields(replaced)}
}

// ReadStms parses statements until the input is exhausted
func (r *Reader) ReadStms() ([]Stm, error) {
	var stms []Stm
	for r.pos < len(r.tokens) {
		s, err := r.readStm()
		if err != nil {
			return nil, err
		}
		stms = append(stms, s)
	}
	return stms, nil
}

func (r *Reader) next() (string, error) {
	if r.pos >= len(r.tokens) {
		return "", fmt.Errorf("ir: unexpected end of input")
	}
	tok := r.tokens[r.pos]
	r.pos++
	return tok, nil
}

func (r *Reader) peek() string {
	if r.pos >= len(r.tokens) {
		return ""
	}
	return r.tokens[r.pos]
}

func (r *Reader) expect(tok string) error {
	got, err := r.next()
	if err != nil {
		return err
	}
	if got != tok {
		return fmt.Errorf("ir: expected %q, found %q", tok, got)
	}
	return nil
}

var binOpsByName = map[string]BinOpKind{
	"PLUS": Plus, "MINUS": Minus, "MUL": Mul, "DIV": Div,
	"AND": And, "OR": Or, "XOR": Xor,
	"LSHIFT": LShift, "RSHIFT": RShift, "ARSHIFT": ARShift,
}

var relOpsByName = map[string]RelOp{
	"EQ": Eq, "NE": Ne, "LT": Lt, "GT": Gt, "LE": Le, "GE": Ge,
	"ULT": Ult, "ULE": Ule, "UGT": Ugt, "UGE": Uge,
}

func (r *Reader) readStm() (Stm, error) {
	if err := r.expect("("); err != nil {
		return nil, err
	}
	head, err := r.next()
	if err != nil {
		return nil, err
	}
	switch head {
	case "MOVE":
		dst, err := r.readExp()
		if err != nil {
			return nil, err
		}
		src, err := r.readExp()
		if err != nil {
			return nil, err
		}
		return &Move{Dst: dst, Src: src}, r.expect(")")
	case "EXP":
		e, err := r.readExp()
		if err != nil {
			return nil, err
		}
		return &ExpStm{Exp: e}, r.expect(")")
	case "JUMP":
		e, err := r.readExp()
		if err != nil {
			return nil, err
		}
		var labels []temp.Label
		for r.peek() != ")" && r.peek() != "" {
			tok, _ := r.next()
			labels = append(labels, temp.Label(tok))
		}
		return &Jump{Exp: e, Labels: labels}, r.expect(")")
	case "CJUMP":
		opName, err := r.next()
		if err != nil {
			return nil, err
		}
		op, ok := relOpsByName[opName]
		if !ok {
			return nil, fmt.Errorf("ir: unknown relop %q", opName)
		}
		left, err := r.readExp()
		if err != nil {
			return nil, err
		}
		right, err := r.readExp()
		if err != nil {
			return nil, err
		}
		trueLabel, err := r.next()
		if err != nil {
			return nil, err
		}
		falseLabel, err := r.next()
		if err != nil {
			return nil, err
		}
		cj := &CJump{
			Op: op, Left: left, Right: right,
			True: temp.Label(trueLabel), False: temp.Label(falseLabel),
		}
		return cj, r.expect(")")
	case "SEQ":
		first, err := r.readStm()
		if err != nil {
			return nil, err
		}
		second, err := r.readStm()
		if err != nil {
			return nil, err
		}
		return &Seq{First: first, Second: second}, r.expect(")")
	case "LABEL":
		name, err := r.next()
		if err != nil {
			return nil, err
		}
		return Label{Label: temp.Label(name)}, r.expect(")")
	}
	return nil, fmt.Errorf("ir: unknown statement head %q", head)
}

func (r *Reader) readExp() (Exp, error) {
	if err := r.expect("("); err != nil {
		return nil, err
	}
	head, err := r.next()
	if err != nil {
		return nil, err
	}
	switch head {
	case "CONST":
		tok, err := r.next()
		if err != nil {
			return nil, err
		}
		value, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ir: bad constant %q", tok)
		}
		return Const{Value: value}, r.expect(")")
	case "NAME":
		name, err := r.next()
		if err != nil {
			return nil, err
		}
		return Name{Label: temp.Label(name)}, r.expect(")")
	case "TEMP":
		tok, err := r.next()
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(tok, "t") {
			return nil, fmt.Errorf("ir: bad temp %q", tok)
		}
		n, err := strconv.Atoi(tok[1:])
		if err != nil {
			return nil, fmt.Errorf("ir: bad temp %q", tok)
		}
		return Temp{Temp: temp.Temp(n)}, r.expect(")")
	case "BINOP":
		opName, err := r.next()
		if err != nil {
			return nil, err
		}
		op, ok := binOpsByName[opName]
		if !ok {
			return nil, fmt.Errorf("ir: unknown binop %q", opName)
		}
		left, err := r.readExp()
		if err != nil {
			return nil, err
		}
		right, err := r.readExp()
		if err != nil {
			return nil, err
		}
		return &BinOp{Op: op, Left: left, Right: right}, r.expect(")")
	case "MEM":
		addr, err := r.readExp()
		if err != nil {
			return nil, err
		}
		return &Mem{Addr: addr}, r.expect(")")
	case "CALL":
		fn, err := r.readExp()
		if err != nil {
			return nil, err
		}
		var args []Exp
		for r.peek() == "(" {
			arg, err := r.readExp()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}
		return &Call{Fn: fn, Args: args}, r.expect(")")
	case "ESEQ":
		s, err := r.readStm()
		if err != nil {
			return nil, err
		}
		e, err := r.readExp()
		if err != nil {
			return nil, err
		}
		return &ESeq{Stm: s, Exp: e}, r.expect(")")
	}
	return nil, fmt.Errorf("ir: unknown expression head %q", head)
}
