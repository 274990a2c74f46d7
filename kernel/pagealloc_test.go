package main

import "testing"

func chunk(firstPPN, pagecnt uintptr, next *pageChunk) *pageChunk {
	return &pageChunk{firstPPN: firstPPN, pagecnt: pagecnt, next: next}
}

func TestBestFitSearchPicksSmallestSufficientChunk(t *testing.T) {
	// Three chunks: 10 pages, 3 pages, 5 pages. Asking for 4 should pick
	// the 5-page chunk, not the first-fit 10-page one.
	head := chunk(0, 10, chunk(100, 3, chunk(200, 5, nil)))

	prevNext, best := bestFitSearch(head, 4)
	if best == nil {
		t.Fatalf("expected a match")
	}
	if best.firstPPN != 200 || best.pagecnt != 5 {
		t.Fatalf("expected the 5-page chunk at ppn 200, got ppn=%d cnt=%d", best.firstPPN, best.pagecnt)
	}
	if *prevNext != head.next.next {
		t.Fatalf("prevNext should point at the middle chunk's next field")
	}
}

func TestBestFitSearchExactMatch(t *testing.T) {
	head := chunk(0, 10, chunk(100, 4, nil))
	_, best := bestFitSearch(head, 4)
	if best == nil || best.firstPPN != 100 {
		t.Fatalf("expected exact-size chunk to win over the larger one")
	}
}

func TestBestFitSearchNoneLargeEnough(t *testing.T) {
	head := chunk(0, 2, chunk(100, 3, nil))
	_, best := bestFitSearch(head, 10)
	if best != nil {
		t.Fatalf("expected no match, got ppn=%d", best.firstPPN)
	}
}

func TestBestFitSearchZeroNeed(t *testing.T) {
	head := chunk(0, 2, nil)
	_, best := bestFitSearch(head, 0)
	if best != nil {
		t.Fatalf("zero-page request should never match")
	}
}

func TestBestFitSearchEmptyList(t *testing.T) {
	_, best := bestFitSearch(nil, 1)
	if best != nil {
		t.Fatalf("empty list should never match")
	}
}
