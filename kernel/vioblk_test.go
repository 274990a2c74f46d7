package main

import "testing"

func TestAllocDescChainMarksUsed(t *testing.T) {
	d := &vioblkDevice{freeDesc: []bool{true, true, true, true}}

	chain, rc := d.allocDescChain(3)
	if rc != 0 {
		t.Fatalf("unexpected error %d", rc)
	}
	if len(chain) != 3 {
		t.Fatalf("got %d descriptors, want 3", len(chain))
	}
	for _, idx := range chain {
		if d.freeDesc[idx] {
			t.Errorf("descriptor %d should be marked used", idx)
		}
	}
	if !d.freeDesc[3] {
		t.Errorf("descriptor 3 should remain free")
	}
}

func TestAllocDescChainFailsWhenExhausted(t *testing.T) {
	d := &vioblkDevice{freeDesc: []bool{true, false, false, true}}
	_, rc := d.allocDescChain(3)
	if rc != -EBUSY {
		t.Fatalf("got rc=%d, want -EBUSY", rc)
	}
	// A failed allocation must not touch any descriptor's free state.
	if !d.freeDesc[0] || d.freeDesc[1] || d.freeDesc[2] || !d.freeDesc[3] {
		t.Errorf("failed allocation mutated free state: %v", d.freeDesc)
	}
}

func TestAllocDescChainSkipsUsedSlots(t *testing.T) {
	d := &vioblkDevice{freeDesc: []bool{false, true, false, true, true}}
	chain, rc := d.allocDescChain(2)
	if rc != 0 {
		t.Fatalf("unexpected error %d", rc)
	}
	want := []int{1, 3}
	if len(chain) != 2 || chain[0] != want[0] || chain[1] != want[1] {
		t.Fatalf("got %v, want %v", chain, want)
	}
}
