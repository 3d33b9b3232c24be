package expression

import (
	"errors"
	"testing"
)

func TestParse_AndOrNot(t *testing.T) {
	e, err := Parse(`{"rule":{"and":[{"var":0},{"or":[{"var":1},{"not":{"var":0}}]}]},"data":["read","write"]}`)
	if err != nil {
		t.Fatal(err)
	}
	got := e.DataScopes()
	if len(got) != 2 || got[0] != "read" || got[1] != "write" {
		t.Fatalf("unexpected data scopes: %v", got)
	}
}

func TestParse_Malformed(t *testing.T) {
	cases := []string{
		``,
		`{}`,
		`{"rule":{"var":0},"data":[]}`,                        // empty data
		`{"rule":{"and":[]},"data":["a"]}`,                    // empty and
		`{"rule":{"or":[]},"data":["a"]}`,                     // empty or
		`{"rule":{},"data":["a"]}`,                            // no operator
		`{"rule":{"and":[{"var":0}],"or":[{"var":0}]},"data":["a"]}`, // two operators
	}
	for _, c := range cases {
		if _, err := Parse(c); !errors.Is(err, ErrMalformed) {
			t.Fatalf("expected ErrMalformed for %q, got %v", c, err)
		}
	}
}

func TestParse_VarOutOfRange(t *testing.T) {
	if _, err := Parse(`{"rule":{"var":2},"data":["a","b"]}`); !errors.Is(err, ErrBadVar) {
		t.Fatalf("expected ErrBadVar, got %v", err)
	}
	if _, err := Parse(`{"rule":{"var":-1},"data":["a"]}`); !errors.Is(err, ErrBadVar) {
		t.Fatalf("expected ErrBadVar, got %v", err)
	}
}

func TestEvaluate_And(t *testing.T) {
	e, err := Parse(`{"rule":{"and":[{"var":0},{"var":1}]},"data":["a","b"]}`)
	if err != nil {
		t.Fatal(err)
	}
	for _, tc := range []struct {
		values []bool
		want   bool
	}{
		{[]bool{true, true}, true},
		{[]bool{true, false}, false},
		{[]bool{false, true}, false},
		{[]bool{false, false}, false},
	} {
		got, err := e.Evaluate(tc.values)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Fatalf("and%v = %v, want %v", tc.values, got, tc.want)
		}
	}
}

func TestEvaluate_OrNot(t *testing.T) {
	e, err := Parse(`{"rule":{"or":[{"var":0},{"not":{"var":1}}]},"data":["a","b"]}`)
	if err != nil {
		t.Fatal(err)
	}
	got, err := e.Evaluate([]bool{false, false})
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Fatal("or(false, not(false)) should be true")
	}
	got, err = e.Evaluate([]bool{false, true})
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Fatal("or(false, not(true)) should be false")
	}
}

func TestEvaluate_LengthMismatch(t *testing.T) {
	e, err := Parse(`{"rule":{"var":0},"data":["a","b"]}`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Evaluate([]bool{true}); !errors.Is(err, ErrBadVar) {
		t.Fatalf("expected ErrBadVar, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(`{"rule":{"var":0},"data":["a"]}`); err != nil {
		t.Fatal(err)
	}
	if err := Validate(`not json`); err == nil {
		t.Fatal("expected error")
	}
}
