package symbol

import "testing"

func TestInterning(t *testing.T) {
	strings := NewStrings()
	a := strings.Symbol("foo")
	b := strings.Symbol("bar")
	c := strings.Symbol("foo")

	if a == b {
		t.Errorf("distinct names interned to the same symbol %d", a)
	}
	if a != c {
		t.Errorf("same name interned twice: %d vs %d", a, c)
	}
	if strings.Name(a) != "foo" {
		t.Errorf("Name(%d) = %q, want %q", a, strings.Name(a), "foo")
	}
	if strings.Name(b) != "bar" {
		t.Errorf("Name(%d) = %q, want %q", b, strings.Name(b), "bar")
	}
}

func TestTableScoping(t *testing.T) {
	strings := NewStrings()
	x := strings.Symbol("x")
	y := strings.Symbol("y")

	table := NewTable[int]()
	table.Enter(x, 1)
	table.BeginScope()
	table.Enter(x, 2)
	table.Enter(y, 3)

	if v, _ := table.Look(x); v != 2 {
		t.Errorf("inner x = %d, want 2", v)
	}
	if v, _ := table.Look(y); v != 3 {
		t.Errorf("inner y = %d, want 3", v)
	}

	table.EndScope()
	if v, _ := table.Look(x); v != 1 {
		t.Errorf("outer x = %d, want 1 after EndScope", v)
	}
	if _, ok := table.Look(y); ok {
		t.Error("y still bound after its scope ended")
	}
}

func TestTableReplace(t *testing.T) {
	strings := NewStrings()
	x := strings.Symbol("x")

	table := NewTable[string]()
	table.Enter(x, "forward")
	table.Replace(x, "resolved")
	if v, _ := table.Look(x); v != "resolved" {
		t.Errorf("x = %q after Replace, want %q", v, "resolved")
	}
}

func TestNestedScopes(t *testing.T) {
	strings := NewStrings()
	x := strings.Symbol("x")

	table := NewTable[int]()
	table.BeginScope()
	table.Enter(x, 1)
	table.BeginScope()
	table.Enter(x, 2)
	table.BeginScope()
	// Empty scope
	table.EndScope()
	if v, _ := table.Look(x); v != 2 {
		t.Errorf("x = %d, want 2", v)
	}
	table.EndScope()
	if v, _ := table.Look(x); v != 1 {
		t.Errorf("x = %d, want 1", v)
	}
	table.EndScope()
	if _, ok := table.Look(x); ok {
		t.Error("x still bound after all scopes ended")
	}
}
