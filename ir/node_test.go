package ir

import (
	"testing"
)

func TestFromAnySortsFields(t *testing.T) {
	a := MustAny(map[string]any{"b": 1, "a": "x", "c": []any{true, nil}})
	b := MustJSON(`{"c":[true,null],"a":"x","b":1}`)
	if !Equal(a, b) {
		t.Errorf("expected equal, got %s vs %s", a.JSONString(), b.JSONString())
	}
	if got := a.JSONString(); got != `{"a":"x","b":1,"c":[true,null]}` {
		t.Errorf("unexpected json %s", got)
	}
}

func TestFromAnyStruct(t *testing.T) {
	type port struct {
		ID   string `json:"id"`
		Kind string `json:"kind,omitempty"`
	}
	n, err := FromAny(struct {
		Name  string `json:"name"`
		Ports []port `json:"ports"`
	}{Name: "n1", Ports: []port{{ID: "p0"}}})
	if err != nil {
		t.Fatal(err)
	}
	v, ok := n.Get(MustPath("/ports/0/id"))
	if !ok {
		t.Fatal("expected /ports/0/id")
	}
	if v.String != "p0" {
		t.Errorf("expected p0, got %q", v.String)
	}
	if _, ok := n.Get(MustPath("/ports/0/kind")); ok {
		t.Error("omitempty field should be absent")
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		a, b string
		eq   bool
	}{
		{`1`, `1.0`, true},
		{`1`, `2`, false},
		{`"a"`, `"a"`, true},
		{`null`, `false`, false},
		{`[1,2]`, `[1,2]`, true},
		{`[1,2]`, `[2,1]`, false},
		{`{"a":1}`, `{"a":1,"b":2}`, false},
		{`{"a":{"b":[1]}}`, `{"a":{"b":[1]}}`, true},
	}
	for _, tc := range tests {
		if got := Equal(MustJSON(tc.a), MustJSON(tc.b)); got != tc.eq {
			t.Errorf("Equal(%s, %s) = %v, want %v", tc.a, tc.b, got, tc.eq)
		}
	}
}

func TestToAnyRoundTrip(t *testing.T) {
	src := `{"a":[1,2.5,"s",false,null],"b":{"c":{}}}`
	n := MustJSON(src)
	back := MustAny(n.ToAny())
	if !Equal(n, back) {
		t.Errorf("round trip changed value: %s", back.JSONString())
	}
}

func TestDocEqual(t *testing.T) {
	d1 := NewDoc("workflow", MustJSON(`{"a":1}`))
	d2 := NewDoc("workflow", MustJSON(`{"a":1}`))
	d3 := NewDoc("metanode", MustJSON(`{"a":1}`))
	if !d1.Equal(d2) {
		t.Error("expected equal docs")
	}
	if d1.Equal(d3) {
		t.Error("docs with different type ids must differ")
	}
	if !NewDoc("x", nil).Root.Type.IsLeaf() {
		t.Error("nil root should become null")
	}
}
