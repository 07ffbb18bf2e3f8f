package track

import (
	"testing"
)

func TestCategoryString(t *testing.T) {
	tests := []struct {
		c    Category
		want string
	}{
		{None, "none"},
		{State, "state"},
		{State | Topology, "state|topology"},
		{All, "state|topology|uiinfo|annotation|metadata"},
	}
	for _, tc := range tests {
		if got := tc.c.String(); got != tc.want {
			t.Errorf("%d: got %q, want %q", tc.c, got, tc.want)
		}
		back, err := ParseCategory(tc.want)
		if tc.c == None {
			continue
		}
		if err != nil || back != tc.c {
			t.Errorf("parse %q: got %v %v", tc.want, back, err)
		}
	}
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("State, uiinfo")
	if err != nil || c != State|UIInfo {
		t.Errorf("got %v %v", c, err)
	}
	if c, _ := ParseCategory("all"); c != All {
		t.Errorf("all: got %v", c)
	}
	if _, err := ParseCategory("state,bogus"); err == nil {
		t.Error("expected error")
	}
}

func TestInvokeCheckAndReset(t *testing.T) {
	var h Hub
	tr := New(&h)
	defer tr.Close()

	h.Emit(State)
	h.Emit(UIInfo)
	got := Invoke(tr, func(r *Record) Category {
		return r.Reset(State | Topology)
	})
	if got != State {
		t.Errorf("reset returned %v, want state", got)
	}
	rest := Invoke(tr, func(r *Record) Category { return r.Flags() })
	if rest != UIInfo {
		t.Errorf("remaining flags %v, want uiinfo", rest)
	}
}

func TestTrackersIndependent(t *testing.T) {
	var h Hub
	a := New(&h)
	b := New(&h)
	defer a.Close()
	defer b.Close()

	h.Emit(Topology)
	Invoke(a, func(r *Record) Category { return r.Reset(All) })
	if !Invoke(b, func(r *Record) bool { return r.Changed(Topology) }) {
		t.Error("reset of one tracker hid the change from another")
	}
}

func TestMaskAndNotify(t *testing.T) {
	var h Hub
	var notified []Category
	tr := New(&h, WithMask(State|Annotation), WithNotify(func(c Category) {
		notified = append(notified, c)
	}))
	defer tr.Close()

	h.Emit(UIInfo)
	h.Emit(State | UIInfo)
	h.Emit(Annotation)
	if len(notified) != 2 || notified[0] != State || notified[1] != Annotation {
		t.Errorf("notified %v", notified)
	}
	seen := Invoke(tr, func(r *Record) uint64 { return r.Seen() })
	if seen != 2 {
		t.Errorf("seen %d, want 2", seen)
	}
}

func TestCloseUnregisters(t *testing.T) {
	var h Hub
	tr := New(&h)
	if h.Len() != 1 {
		t.Fatalf("listeners %d, want 1", h.Len())
	}
	tr.Close()
	tr.Close()
	if h.Len() != 0 {
		t.Errorf("listeners %d after close, want 0", h.Len())
	}
	if !tr.Closed() {
		t.Error("not closed")
	}
	h.Emit(State)
	if Invoke(tr, func(r *Record) bool { return r.Changed(All) }) {
		t.Error("closed tracker recorded a change")
	}
}

func TestConcurrentRecord(t *testing.T) {
	var h Hub
	tr := New(&h)
	defer tr.Close()

	const n = 1000
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range n {
			h.Emit(State)
		}
	}()
	resets := 0
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		if Invoke(tr, func(r *Record) bool { return r.Reset(State) != None }) {
			resets++
		}
	}
	if resets == 0 {
		t.Error("no change observed")
	}
	if got := Invoke(tr, func(r *Record) uint64 { return r.Seen() }); got != n {
		t.Errorf("seen %d, want %d", got, n)
	}
	if Invoke(tr, func(r *Record) bool { return r.Changed(State) }) {
		t.Error("change left after final reset")
	}
}
