package tcp

// reassemblyQueue holds out-of-order segments awaiting their turn to be
// delivered in sequence. It is the one component with no direct analog in
// the teacher: the teacher's ControlBlock is deliberately restricted to
// sequential segments ("this implementation is limited to receiving only
// sequential segments... buffer management is left up entirely to the
// user", tcp.ControlBlock doc comment) and rejects anything else with
// errRequireSequential. This queue is what a full implementation needs to
// fill that gap, built in the same slice-of-intervals style as the
// teacher's txqueue.go ringTx/sentlist. Unlike that queue it copies: each
// element owns its bytes rather than referencing the caller's payload.
//
// Invariant: elements are sorted strictly by seq and their byte intervals
// are pairwise disjoint after every insert (coalescing enforces this).
type reassemblyQueue struct {
	elems []reassemblyElem
}

type reassemblyElem struct {
	seq   Value
	fin   bool
	bytes []byte // copied from the inserted payload; merges append into it, so extraction returns one contiguous slice.
}

func (e *reassemblyElem) end() Value { return Add(e.seq, Size(len(e.bytes))) }

// reset empties the queue, releasing references to backing byte slices.
func (q *reassemblyQueue) reset() {
	q.elems = nil
}

// totalBytes returns the total number of payload bytes currently buffered.
func (q *reassemblyQueue) totalBytes() int {
	n := 0
	for i := range q.elems {
		n += len(q.elems[i].bytes)
	}
	return n
}

// insert admits a new segment's data into the queue, merging with any
// overlapping or touching neighbours. Per the oldest-bytes-win tiebreak
// (§4.3), wherever old and new data overlap the existing bytes are kept
// and the newcomer's overlapping prefix/suffix is dropped.
func (q *reassemblyQueue) insert(seq Value, fin bool, data []byte) {
	if len(data) == 0 && !fin {
		return
	}
	newSeq := seq
	newEnd := Add(seq, Size(len(data)))

	i := 0
	for ; i < len(q.elems); i++ {
		elt := &q.elems[i]
		if LessThan(newEnd, elt.seq) {
			// New interval lies strictly before elt: insert fresh record here.
			break
		}
		if !LessThan(elt.end(), newSeq) {
			// Overlap or touch: merge, oldest bytes win.
			if LessThan(newSeq, elt.seq) {
				// Newcomer extends before elt: keep the non-overlapping prefix of new data.
				prefixLen := Sizeof(newSeq, elt.seq)
				merged := make([]byte, 0, int(prefixLen)+len(elt.bytes))
				merged = append(merged, data[:prefixLen]...)
				merged = append(merged, elt.bytes...)
				elt.seq = newSeq
				elt.bytes = merged
			}
			if GreaterThan(newEnd, elt.end()) {
				// Newcomer extends past elt: keep elt's bytes, append new suffix.
				dropLen := Sizeof(elt.seq, elt.end())
				newDataOffset := Sub(elt.end(), newSeq)
				if newDataOffset < 0 {
					newDataOffset = 0
				}
				_ = dropLen
				suffix := data[newDataOffset:]
				elt.bytes = append(elt.bytes, suffix...)
			}
			elt.fin = elt.fin || fin
			q.coalesceFrom(i)
			return
		}
		// new interval is strictly after elt; keep scanning.
	}

	// No overlap found: splice a fresh element at position i.
	fresh := reassemblyElem{seq: newSeq, fin: fin, bytes: append([]byte(nil), data...)}
	q.elems = append(q.elems, reassemblyElem{})
	copy(q.elems[i+1:], q.elems[i:])
	q.elems[i] = fresh
	q.coalesceFrom(i)
}

// coalesceFrom merges elems[i] with any immediately-following elements it
// now touches or overlaps, iterating until no further merge applies.
func (q *reassemblyQueue) coalesceFrom(i int) {
	for i+1 < len(q.elems) {
		cur := &q.elems[i]
		next := &q.elems[i+1]
		if LessThan(cur.end(), next.seq) {
			break // gap remains, nothing to coalesce.
		}
		if GreaterThan(next.end(), cur.end()) {
			newDataOffset := Sub(cur.end(), next.seq)
			if newDataOffset < 0 {
				newDataOffset = 0
			}
			cur.bytes = append(cur.bytes, next.bytes[newDataOffset:]...)
		}
		cur.fin = cur.fin || next.fin
		q.elems = append(q.elems[:i+1], q.elems[i+2:]...)
	}
}

// maybeTake extracts the contiguous prefix of data starting at wantedSeq,
// if the queue's first element covers it. Returns ok=false if wantedSeq is
// not yet available (lies before or within a gap).
func (q *reassemblyQueue) maybeTake(wantedSeq Value) (data []byte, fin bool, ok bool) {
	if len(q.elems) == 0 {
		return nil, false, false
	}
	first := &q.elems[0]
	switch {
	case first.seq == wantedSeq:
		data, fin = first.bytes, first.fin
		q.elems = q.elems[1:]
		return data, fin, true
	case LessThan(first.seq, wantedSeq) && LessThan(wantedSeq, first.end()):
		offset := Sub(wantedSeq, first.seq)
		data, fin = first.bytes[offset:], first.fin
		q.elems = q.elems[1:]
		return data, fin, true
	default:
		// wantedSeq is before first.seq, or first.seq is itself after a gap
		// relative to wantedSeq: nothing deliverable yet.
		return nil, false, false
	}
}
