package main

import "testing"

func TestEvictionCandidateSkipsHeldEntries(t *testing.T) {
	var c blockCache
	// evictionCandidate only runs once every slot holds a block, so start
	// from a full cache whose other entries were all released later.
	for i := range c.entries {
		c.entries[i].valid = true
		c.entries[i].releaseTS = uint64(100 + i)
	}
	c.entries[0].valid = true
	c.entries[0].releaseTS = 5

	c.entries[1].valid = true
	c.entries[1].releaseTS = 1
	c.entries[1].lk.owner = &thrtab[0] // held: must not be picked

	c.entries[2].valid = true
	c.entries[2].releaseTS = 3

	best := c.evictionCandidate()
	if best == nil {
		t.Fatal("expected a candidate")
	}
	if best != &c.entries[2] {
		t.Errorf("expected the held-free entry with the smallest timestamp (idx 2), got releaseTS=%d", best.releaseTS)
	}
}

func TestEvictionCandidateAllHeld(t *testing.T) {
	var c blockCache
	for i := range c.entries {
		c.entries[i].valid = true
		c.entries[i].lk.owner = &thrtab[0]
	}
	if best := c.evictionCandidate(); best != nil {
		t.Errorf("expected no candidate when every entry is held, got one with releaseTS=%d", best.releaseTS)
	}
}
