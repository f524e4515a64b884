package buffer

import "testing"

func TestRingOverwritesOldest(t *testing.T) {
	ring := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		ring.Add(i)
	}

	got := ring.List()
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if !ring.Full() {
		t.Fatal("expected ring to be full")
	}
}

func TestRingPopFrontKeepsOrder(t *testing.T) {
	ring := NewRing[string](2)
	ring.Add("a")
	ring.Add("b")
	ring.Add("c")

	first, ok := ring.PopFront()
	if !ok || first != "b" {
		t.Fatalf("expected b, got %q (ok=%v)", first, ok)
	}
	ring.Add("d")
	if got := ring.List(); len(got) != 2 || got[0] != "c" || got[1] != "d" {
		t.Fatalf("unexpected contents: %v", got)
	}
}

func TestRingDropWhile(t *testing.T) {
	ring := NewRing[int](5)
	for _, value := range []int{1, 2, 7, 3} {
		ring.Add(value)
	}

	removed := ring.DropWhile(func(value int) bool { return value < 5 })
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	front, ok := ring.Front()
	if !ok || front != 7 {
		t.Fatalf("expected front 7, got %d", front)
	}
	if ring.Len() != 2 {
		t.Fatalf("expected len 2, got %d", ring.Len())
	}
}

func TestRingEmptyAndReset(t *testing.T) {
	var nilRing *Ring[int]
	if _, ok := nilRing.PopFront(); ok {
		t.Fatal("expected nil ring pop to fail")
	}

	ring := NewRing[int](0)
	if ring.Cap() != 1 {
		t.Fatalf("expected minimum capacity 1, got %d", ring.Cap())
	}
	ring.Add(9)
	ring.Reset()
	if ring.Len() != 0 || ring.List() != nil {
		t.Fatal("expected empty ring after reset")
	}
}
