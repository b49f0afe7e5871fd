package value

import "testing"

func TestScalarConversionsAreTotal(t *testing.T) {
	v := NewString("42")
	i, err := v.AsInt()
	if err != nil || i != 42 {
		t.Fatalf("AsInt() = %d, %v; want 42, nil", i, err)
	}

	raw := NewString("not-a-number")
	i, err = raw.AsInt()
	if err != nil || i != 0 {
		t.Fatalf("AsInt() on non-numeric string = %d, %v; want 0, nil (total conversion)", i, err)
	}
	s, err := raw.AsString()
	if err != nil || s != "not-a-number" {
		t.Fatalf("AsString() on raw string = %q, %v; want original literal unchanged", s, err)
	}
}

func TestListScalarCoercion(t *testing.T) {
	list := NewList(NewInt(7), NewInt(8))
	i, err := list.AsInt()
	if err != nil || i != 7 {
		t.Fatalf("AsInt() on list = %d, %v; want first element 7", i, err)
	}
	empty := NewList()
	i, err = empty.AsInt()
	if err != nil || i != 0 {
		t.Fatalf("AsInt() on empty list = %d, %v; want zero value", i, err)
	}
}

func TestEqualityIsStructural(t *testing.T) {
	a := NewTuple([]Value{NewInt(1), NewString("x")}, []string{"a", "b"})
	b := NewTuple([]Value{NewInt(1), NewString("x")}, []string{"a", "b"})
	if !a.Equal(b) {
		t.Fatalf("expected structurally identical tuples to be equal")
	}
	c := NewTuple([]Value{NewInt(1), NewString("x")}, []string{"a", "c"})
	if a.Equal(c) {
		t.Fatalf("expected tuples with different leaf names to differ")
	}
}

func TestEqualityIgnoresAttachedName(t *testing.T) {
	a := NewInt(5).WithName("alpha")
	b := NewInt(5).WithName("beta")
	if !a.Equal(b) {
		t.Fatalf("expected Equal to ignore the attached leaf name")
	}
}

func TestSize(t *testing.T) {
	if NewInt(1).Size() != 1 {
		t.Fatalf("scalar size should be 1")
	}
	if NewList(NewInt(1), NewInt(2), NewInt(3)).Size() != 3 {
		t.Fatalf("list size should be element count")
	}
}

func TestCodecRoundTrip(t *testing.T) {
	cases := []Value{
		NewBool(true).WithName("flag"),
		NewInt(-123456789).WithName("count"),
		NewReal(3.1415926535).WithName("pi"),
		NewString("hello, splash").WithName("greeting"),
		NewList(NewInt(1), NewString("two"), NewReal(3.0)).WithName("mixed"),
		NewTuple([]Value{NewInt(1), NewString("two")}, []string{"a", "b"}).WithName("named"),
	}
	for _, want := range cases {
		encoded := want.Encode()
		got, rest, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(%v): %v", want, err)
		}
		if len(rest) != 0 {
			t.Fatalf("Decode(%v) left %d unconsumed bytes", want, len(rest))
		}
		if !got.Equal(want) {
			t.Fatalf("round trip mismatch: got %v, want %v", got, want)
		}
		if got.Name() != want.Name() {
			t.Fatalf("round trip lost name: got %q, want %q", got.Name(), want.Name())
		}
	}
}

func TestCodecNestedLists(t *testing.T) {
	want := NewList(
		NewList(NewInt(1), NewInt(2)),
		NewList(NewString("a"), NewString("b")),
	)
	got, rest, err := Decode(want.Encode())
	if err != nil || len(rest) != 0 {
		t.Fatalf("Decode nested list: %v, leftover=%d", err, len(rest))
	}
	if !got.Equal(want) {
		t.Fatalf("nested list round trip mismatch: got %v, want %v", got, want)
	}
}
