package tcp

import (
	"bytes"
	"testing"
)

func bytesOf(n int, fill byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = fill
	}
	return b
}

// TestReassemblyFullCoalesce inserts four out-of-order 10-byte chunks that
// together cover [0,40) and checks they fully merge into one element
// (TestReassemblyInsertOrderCommutes covers a second arrival order).
func TestReassemblyFullCoalesce(t *testing.T) {
	var q reassemblyQueue
	q.insert(0, false, bytesOf(10, 'a'))
	q.insert(30, false, bytesOf(10, 'd'))
	q.insert(20, false, bytesOf(10, 'c'))
	q.insert(10, false, bytesOf(10, 'b'))

	if len(q.elems) != 1 {
		t.Fatalf("got %d elements, want 1 fully coalesced element", len(q.elems))
	}
	if q.elems[0].seq != 0 || len(q.elems[0].bytes) != 40 {
		t.Fatalf("got seq=%d len=%d, want seq=0 len=40", q.elems[0].seq, len(q.elems[0].bytes))
	}

	data, fin, ok := q.maybeTake(0)
	if !ok || fin {
		t.Fatalf("maybeTake(0): ok=%v fin=%v, want ok=true fin=false", ok, fin)
	}
	if len(data) != 40 {
		t.Fatalf("got %d bytes, want 40", len(data))
	}
	want := append(append(append(bytesOf(10, 'a'), bytesOf(10, 'b')...), bytesOf(10, 'c')...), bytesOf(10, 'd')...)
	if !bytes.Equal(data, want) {
		t.Fatal("reassembled bytes do not match expected order")
	}
	if len(q.elems) != 0 {
		t.Fatalf("queue should be empty after taking everything, got %d elements", len(q.elems))
	}
}

// TestReassemblyPartialTake leaves a gap between the first two chunks and
// the third, so maybeTake can only return the contiguous prefix and must
// leave the remaining, still-disjoint chunk in the queue.
func TestReassemblyPartialTake(t *testing.T) {
	var q reassemblyQueue
	q.insert(0, false, bytesOf(10, 'a'))
	q.insert(10, false, bytesOf(10, 'b'))
	q.insert(30, false, bytesOf(10, 'd'))

	if len(q.elems) != 2 {
		t.Fatalf("got %d elements, want 2 (one merged [0,20), one standalone [30,40))", len(q.elems))
	}

	data, fin, ok := q.maybeTake(5)
	if !ok || fin {
		t.Fatalf("maybeTake(5): ok=%v fin=%v, want ok=true fin=false", ok, fin)
	}
	if len(data) != 15 {
		t.Fatalf("got %d bytes, want 15", len(data))
	}

	if len(q.elems) != 1 {
		t.Fatalf("got %d elements remaining, want 1", len(q.elems))
	}
	if q.elems[0].seq != 30 || len(q.elems[0].bytes) != 10 {
		t.Fatalf("remaining element seq=%d len=%d, want seq=30 len=10", q.elems[0].seq, len(q.elems[0].bytes))
	}
}

// TestReassemblyGapBlocksDelivery ensures maybeTake reports not-ok while a
// gap still precedes the wanted sequence number.
func TestReassemblyGapBlocksDelivery(t *testing.T) {
	var q reassemblyQueue
	q.insert(10, false, bytesOf(10, 'x'))

	if _, _, ok := q.maybeTake(0); ok {
		t.Fatal("maybeTake(0) should fail: byte 0 lies in a gap before the only buffered element")
	}
	if _, _, ok := q.maybeTake(10); !ok {
		t.Fatal("maybeTake(10) should succeed: exactly matches the buffered element's start")
	}
}

// TestReassemblyOldestBytesWin checks that on overlap the previously
// buffered bytes are preserved and the newcomer's overlapping span is
// discarded, per the §4.3 tiebreak.
func TestReassemblyOldestBytesWin(t *testing.T) {
	var q reassemblyQueue
	q.insert(0, false, bytesOf(10, 'a'))
	q.insert(5, false, bytesOf(10, 'z')) // overlaps [5,10) with the first insert.

	data, _, ok := q.maybeTake(0)
	if !ok {
		t.Fatal("maybeTake(0) should succeed")
	}
	if len(data) != 15 {
		t.Fatalf("got %d bytes, want 15 ([0,15))", len(data))
	}
	for i := 0; i < 10; i++ {
		if data[i] != 'a' {
			t.Fatalf("byte %d = %q, want 'a' (original bytes must win on overlap)", i, data[i])
		}
	}
	for i := 10; i < 15; i++ {
		if data[i] != 'z' {
			t.Fatalf("byte %d = %q, want 'z' (newcomer's non-overlapping suffix)", i, data[i])
		}
	}
}

// TestReassemblyInsertOrderCommutes checks that the same four chunks
// inserted in a different order than TestReassemblyFullCoalesce still
// converge to the identical coalesced result.
func TestReassemblyInsertOrderCommutes(t *testing.T) {
	var q reassemblyQueue
	q.insert(20, false, bytesOf(10, 'c'))
	q.insert(0, false, bytesOf(10, 'a'))
	q.insert(10, false, bytesOf(10, 'b'))
	q.insert(30, false, bytesOf(10, 'd'))

	if len(q.elems) != 1 {
		t.Fatalf("got %d elements, want 1 fully coalesced element", len(q.elems))
	}
	data, _, ok := q.maybeTake(0)
	if !ok || len(data) != 40 {
		t.Fatalf("maybeTake(0): ok=%v len=%d, want ok=true len=40", ok, len(data))
	}
	want := append(append(append(bytesOf(10, 'a'), bytesOf(10, 'b')...), bytesOf(10, 'c')...), bytesOf(10, 'd')...)
	if !bytes.Equal(data, want) {
		t.Fatal("reassembled bytes do not match expected order regardless of insert order")
	}
}

func TestReassemblyFinFlagPropagates(t *testing.T) {
	var q reassemblyQueue
	q.insert(0, false, bytesOf(5, 'a'))
	q.insert(5, true, nil)

	_, fin, ok := q.maybeTake(0)
	if !ok {
		t.Fatal("maybeTake(0) should succeed")
	}
	if !fin {
		t.Fatal("fin flag from the touching zero-length FIN insert should propagate to the coalesced element")
	}
}
