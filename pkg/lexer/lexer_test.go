package lexer

import "testing"

func TestNextToken(t *testing.T) {
	input := `let var a := 1 + 2 in if a <> 3 then print("no") end`

	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
	}{
		{TokenLet, "let"},
		{TokenVar, "var"},
		{TokenIdent, "a"},
		{TokenAssign, ":="},
		{TokenInt, "1"},
		{TokenPlus, "+"},
		{TokenInt, "2"},
		{TokenIn, "in"},
		{TokenIf, "if"},
		{TokenIdent, "a"},
		{TokenNe, "<>"},
		{TokenInt, "3"},
		{TokenThen, "then"},
		{TokenIdent, "print"},
		{TokenLParen, "("},
		{TokenString, "no"},
		{TokenRParen, ")"},
		{TokenEnd, "end"},
		{TokenEOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - wrong type. expected %v, got %v (literal %q)",
				i, tt.expectedType, tok.Type, tok.Literal)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - wrong literal. expected %q, got %q",
				i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestOperators(t *testing.T) {
	input := `< <= > >= = <> & | . : ; , [ ] { }`
	expected := []TokenType{
		TokenLt, TokenLe, TokenGt, TokenGe, TokenEq, TokenNe,
		TokenAmpersand, TokenPipe, TokenDot, TokenColon, TokenSemicolon,
		TokenComma, TokenLBracket, TokenRBracket, TokenLBrace, TokenRBrace,
		TokenEOF,
	}
	l := New(input)
	for i, want := range expected {
		tok := l.NextToken()
		if tok.Type != want {
			t.Fatalf("token %d: expected %v, got %v", i, want, tok.Type)
		}
	}
}

func TestStringEscapes(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`"hello"`, "hello"},
		{`"a\nb"`, "a\nb"},
		{`"a\tb"`, "a\tb"},
		{`"say \"hi\""`, `say "hi"`},
		{`"back\\slash"`, `back\slash`},
		{`"\104\105"`, "hi"},
		{`"\^I"`, "\t"},
		{`"split\   \string"`, "splitstring"},
	}
	for _, tt := range tests {
		l := New(tt.input)
		tok := l.NextToken()
		if tok.Type != TokenString {
			t.Errorf("%s: expected string token, got %v (%q)", tt.input, tok.Type, tok.Literal)
			continue
		}
		if tok.Literal != tt.expected {
			t.Errorf("%s: expected %q, got %q", tt.input, tt.expected, tok.Literal)
		}
	}
}

func TestNestedComments(t *testing.T) {
	input := `1 /* outer /* inner */ still outer */ 2`
	l := New(input)
	first := l.NextToken()
	second := l.NextToken()
	if first.Type != TokenInt || first.Literal != "1" {
		t.Errorf("expected 1, got %q", first.Literal)
	}
	if second.Type != TokenInt || second.Literal != "2" {
		t.Errorf("expected 2 after nested comment, got %q", second.Literal)
	}
}

func TestUnterminatedString(t *testing.T) {
	l := New(`"never closed`)
	tok := l.NextToken()
	if tok.Type != TokenIllegal {
		t.Errorf("expected illegal token for unterminated string, got %v", tok.Type)
	}
}

func TestPositions(t *testing.T) {
	l := New("a\n  bc")
	a := l.NextToken()
	bc := l.NextToken()
	if a.Pos.Line != 1 || a.Pos.Column != 1 {
		t.Errorf("a at %d:%d, want 1:1", a.Pos.Line, a.Pos.Column)
	}
	if bc.Pos.Line != 2 || bc.Pos.Column != 3 {
		t.Errorf("bc at %d:%d, want 2:3", bc.Pos.Line, bc.Pos.Column)
	}
	if bc.Pos.Length != 2 {
		t.Errorf("bc length %d, want 2", bc.Pos.Length)
	}
}
