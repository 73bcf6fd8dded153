package ringlog

import "testing"

func TestRingPushWithinCapacity(t *testing.T) {
	r := New[int](3)
	r.Push(1)
	r.Push(2)
	got := r.Snapshot()
	want := []int{1, 2}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRingEvictsOldest(t *testing.T) {
	r := New[int](2)
	r.Push(1)
	r.Push(2)
	r.Push(3)
	got := r.Snapshot()
	want := []int{2, 3}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
	if r.Dropped() != 1 {
		t.Fatalf("expected 1 dropped, got %d", r.Dropped())
	}
}

func TestRingLen(t *testing.T) {
	r := New[string](5)
	if r.Len() != 0 {
		t.Fatalf("expected empty ring")
	}
	r.Push("a")
	r.Push("b")
	if r.Len() != 2 {
		t.Fatalf("expected len 2, got %d", r.Len())
	}
}
