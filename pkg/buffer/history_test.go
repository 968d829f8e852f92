package buffer

import (
	"sync"
	"testing"
)

func TestHistory_AppendAndRecent(t *testing.T) {
	h := NewHistory[int](5)

	for i := 1; i <= 3; i++ {
		h.Append(i)
	}

	if h.Len() != 3 {
		t.Errorf("expected len 3, got %d", h.Len())
	}

	recent := h.Recent(10)
	expected := []int{3, 2, 1}
	if len(recent) != len(expected) {
		t.Fatalf("expected %d items, got %d", len(expected), len(recent))
	}
	for i, v := range expected {
		if recent[i] != v {
			t.Errorf("recent[%d]: expected %d, got %d", i, v, recent[i])
		}
	}
}

func TestHistory_EvictsOldest(t *testing.T) {
	h := NewHistory[int](3)

	for i := 1; i <= 5; i++ {
		h.Append(i)
	}

	if h.Len() != 3 {
		t.Errorf("expected len capped at 3, got %d", h.Len())
	}

	recent := h.Recent(-1)
	expected := []int{5, 4, 3}
	for i, v := range expected {
		if recent[i] != v {
			t.Errorf("recent[%d]: expected %d, got %d", i, v, recent[i])
		}
	}

	appended, evicted := h.Stats()
	if appended != 5 {
		t.Errorf("expected 5 appends, got %d", appended)
	}
	if evicted != 2 {
		t.Errorf("expected 2 evictions, got %d", evicted)
	}
}

func TestHistory_RecentLimit(t *testing.T) {
	h := NewHistory[string](10)
	h.Append("a")
	h.Append("b")
	h.Append("c")

	recent := h.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 items, got %d", len(recent))
	}
	if recent[0] != "c" || recent[1] != "b" {
		t.Errorf("expected [c b], got %v", recent)
	}

	if got := h.Recent(0); len(got) != 0 {
		t.Errorf("limit 0 should return empty, got %v", got)
	}
}

func TestHistory_MinimumCapacity(t *testing.T) {
	h := NewHistory[int](0)
	if h.Capacity() != 1 {
		t.Errorf("expected minimum capacity 1, got %d", h.Capacity())
	}

	h.Append(1)
	h.Append(2)
	recent := h.Recent(-1)
	if len(recent) != 1 || recent[0] != 2 {
		t.Errorf("expected [2], got %v", recent)
	}
}

func TestHistory_Clear(t *testing.T) {
	h := NewHistory[int](3)
	h.Append(1)
	h.Append(2)
	h.Clear()

	if h.Len() != 0 {
		t.Errorf("expected empty after clear, got %d", h.Len())
	}
	if got := h.Recent(-1); len(got) != 0 {
		t.Errorf("expected no items after clear, got %v", got)
	}
}

func TestHistory_ConcurrentAppend(t *testing.T) {
	h := NewHistory[int](100)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				h.Append(base*50 + i)
			}
		}(g)
	}
	wg.Wait()

	if h.Len() != 100 {
		t.Errorf("expected buffer full at 100, got %d", h.Len())
	}
	appended, evicted := h.Stats()
	if appended != 500 {
		t.Errorf("expected 500 appends, got %d", appended)
	}
	if evicted != 400 {
		t.Errorf("expected 400 evictions, got %d", evicted)
	}
}
