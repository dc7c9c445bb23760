package worddiff

import "slices"

type chunk struct {
	op  Op
	ids []int
}

// cleanup splits the raw diff at marker tokens and applies semantic cleanup
// to each stretch on its own, so no edit is merged across a run boundary.
func cleanup(chunks []chunk, enc *encoder) []chunk {
	var out, segment []chunk
	flush := func() {
		for _, c := range merge(eliminate(segment, enc)) {
			out = appendChunk(out, c.op, c.ids)
		}
		segment = segment[:0]
	}
	for _, c := range chunks {
		start := 0
		for i, id := range c.ids {
			if id != enc.marker {
				continue
			}
			if i > start {
				segment = append(segment, chunk{op: c.op, ids: c.ids[start:i]})
			}
			flush()
			out = appendChunk(out, c.op, c.ids[i:i+1])
			start = i + 1
		}
		if start < len(c.ids) {
			segment = append(segment, chunk{op: c.op, ids: c.ids[start:]})
		}
	}
	flush()
	return out
}

// eliminate removes equalities that are no wider than the edits on both of
// their sides, turning them into a deletion plus an insertion.
func eliminate(cs []chunk, enc *encoder) []chunk {
	cs = slices.Clone(cs)
	var equalities []int
	var lastEq []int
	var ins1, del1, ins2, del2 int
	for p := 0; p < len(cs); p++ {
		if cs[p].op == Equal {
			equalities = append(equalities, p)
			ins1, del1 = ins2, del2
			ins2, del2 = 0, 0
			lastEq = cs[p].ids
			continue
		}
		if cs[p].op == Inserted {
			ins2 += enc.width(cs[p].ids)
		} else {
			del2 += enc.width(cs[p].ids)
		}
		w := enc.width(lastEq)
		if w == 0 || w > max(ins1, del1) || w > max(ins2, del2) {
			continue
		}
		at := equalities[len(equalities)-1]
		cs = slices.Insert(cs, at, chunk{op: Deleted, ids: lastEq})
		cs[at+1].op = Inserted
		equalities = equalities[:len(equalities)-1]
		if len(equalities) > 0 {
			equalities = equalities[:len(equalities)-1]
		}
		p = -1
		if len(equalities) > 0 {
			p = equalities[len(equalities)-1]
		}
		ins1, del1, ins2, del2 = 0, 0, 0, 0
		lastEq = nil
	}
	return cs
}

// merge gathers the edits between two equalities into one deletion followed
// by one insertion and moves shared leading or trailing words out as equal.
func merge(cs []chunk) []chunk {
	var out []chunk
	var del, ins []int
	flush := func() {
		if len(del) > 0 && len(ins) > 0 {
			if n := commonPrefix(del, ins); n > 0 {
				out = appendChunk(out, Equal, del[:n])
				del, ins = del[n:], ins[n:]
			}
			var tail []int
			if n := commonSuffix(del, ins); n > 0 {
				tail = del[len(del)-n:]
				del, ins = del[:len(del)-n], ins[:len(ins)-n]
			}
			out = appendChunk(out, Deleted, del)
			out = appendChunk(out, Inserted, ins)
			out = appendChunk(out, Equal, tail)
		} else {
			out = appendChunk(out, Deleted, del)
			out = appendChunk(out, Inserted, ins)
		}
		del, ins = nil, nil
	}
	for _, c := range cs {
		switch c.op {
		case Deleted:
			del = append(del, c.ids...)
		case Inserted:
			ins = append(ins, c.ids...)
		default:
			flush()
			out = appendChunk(out, Equal, c.ids)
		}
	}
	flush()
	return out
}

func appendChunk(out []chunk, op Op, ids []int) []chunk {
	if len(ids) == 0 {
		return out
	}
	if n := len(out); n > 0 && out[n-1].op == op {
		out[n-1].ids = append(out[n-1].ids, ids...)
		return out
	}
	return append(out, chunk{op: op, ids: slices.Clone(ids)})
}

func commonPrefix(a, b []int) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

func commonSuffix(a, b []int) int {
	n := 0
	for n < len(a) && n < len(b) && a[len(a)-1-n] == b[len(b)-1-n] {
		n++
	}
	return n
}
