package stream

import (
	"regexp/syntax"
	"unicode/utf8"
)

const endOfText rune = -1

// The machine is a Pike VM over a compiled syntax.Prog with leftmost-first
// semantics, identical to the standard library's NFA matcher, extended to
// report when the outcome depends on text that has not been read yet.

type thread struct {
	inst *syntax.Inst
	cap  []int
}

type entry struct {
	pc uint32
	t  *thread
}

// queue is a sparse set of instructions in priority order.
type queue struct {
	sparse []uint32
	dense  []entry
}

func newQueue(n int) queue {
	return queue{sparse: make([]uint32, n), dense: make([]entry, 0, n)}
}

func (q *queue) contains(pc uint32) bool {
	j := q.sparse[pc]
	return j < uint32(len(q.dense)) && q.dense[j].pc == pc
}

// cond holds the empty-width flags at one position. Flags in unknown depend
// on the rune after the window and cannot be decided yet.
type cond struct {
	known   syntax.EmptyOp
	unknown syntax.EmptyOp
}

const lookahead = syntax.EmptyEndLine | syntax.EmptyEndText | syntax.EmptyWordBoundary | syntax.EmptyNoWordBoundary

func contextAt(before, at rune, open bool) cond {
	if !open {
		return cond{known: syntax.EmptyOpContext(before, at)}
	}
	return cond{
		known:   syntax.EmptyOpContext(before, endOfText) &^ lookahead,
		unknown: lookahead,
	}
}

// test reports whether op holds. blocked is set when the answer needs the
// next rune.
func (c cond) test(op syntax.EmptyOp) (ok, blocked bool) {
	if op&^(c.known|c.unknown) != 0 {
		return false, false
	}
	if op&c.unknown != 0 {
		return false, true
	}
	return true, false
}

type machine struct {
	prog     *syntax.Prog
	q0, q1   queue
	pool     []*thread
	ncap     int
	matched  bool
	matchcap []int
}

func newMachine(prog *syntax.Prog) *machine {
	n := len(prog.Inst)
	ncap := prog.NumCap
	if ncap < 2 {
		ncap = 2
	}
	return &machine{
		prog:     prog,
		q0:       newQueue(n),
		q1:       newQueue(n),
		ncap:     ncap,
		matchcap: make([]int, ncap),
	}
}

func (m *machine) alloc(i *syntax.Inst) *thread {
	var t *thread
	if n := len(m.pool); n > 0 {
		t = m.pool[n-1]
		m.pool = m.pool[:n-1]
	} else {
		t = &thread{cap: make([]int, m.ncap)}
	}
	t.inst = i
	return t
}

func (m *machine) clear(q *queue) {
	for _, d := range q.dense {
		if d.t != nil {
			m.pool = append(m.pool, d.t)
		}
	}
	q.dense = q.dense[:0]
}

// match searches text for the leftmost-first match starting at or after pos.
// prev is the rune preceding text, or endOfText at the start of the stream.
// more reports that text may be continued by input not yet read.
//
// It returns the capture offsets of the match, or nil. When more is set and
// the result could change once more input arrives, it instead returns the
// smallest start offset of any match still in progress as partial; a partial
// of len(text) means only a match beginning at the end of text is possible.
func (m *machine) match(text string, pos int, prev rune, more bool) (capture []int, partial int) {
	m.matched = false
	for i := range m.matchcap {
		m.matchcap[i] = -1
	}
	runq, nextq := &m.q0, &m.q1
	defer func() {
		m.clear(runq)
		m.clear(nextq)
	}()

	before := prev
	if pos > 0 {
		before, _ = utf8.DecodeLastRuneInString(text[:pos])
	}
	for {
		if len(runq.dense) == 0 && m.matched {
			break
		}
		r, w := endOfText, 0
		if pos < len(text) {
			r, w = utf8.DecodeRuneInString(text[pos:])
		}
		open := more && pos == len(text)
		c := contextAt(before, r, open)
		if !m.matched {
			m.matchcap[0] = pos
			m.add(runq, uint32(m.prog.Start), pos, m.matchcap, c, nil)
		}
		if open {
			if p := m.settle(runq, pos); p >= 0 {
				return nil, p
			}
			break
		}
		var next cond
		if pos+w < len(text) || !more {
			r1 := endOfText
			if pos+w < len(text) {
				r1, _ = utf8.DecodeRuneInString(text[pos+w:])
			}
			next = contextAt(r, r1, false)
		} else {
			next = contextAt(r, endOfText, true)
		}
		m.step(runq, nextq, pos, pos+w, r, next)
		if w == 0 {
			break
		}
		pos += w
		before = r
		runq, nextq = nextq, runq
	}
	if !m.matched {
		return nil, -1
	}
	return append([]int(nil), m.matchcap...), -1
}

// settle inspects the threads waiting at the end of an open window. A match
// there is final only if no thread of higher priority is still running.
func (m *machine) settle(runq *queue, pos int) int {
	partial := -1
	for _, d := range runq.dense {
		t := d.t
		if t == nil {
			continue
		}
		if t.inst.Op == syntax.InstMatch {
			if partial < 0 {
				copy(m.matchcap, t.cap)
				m.matchcap[1] = pos
				m.matched = true
			}
			break
		}
		if partial < 0 || t.cap[0] < partial {
			partial = t.cap[0]
		}
	}
	return partial
}

// step advances every thread in runq over r, the rune at pos, filling nextq
// with the threads at nextPos.
func (m *machine) step(runq, nextq *queue, pos, nextPos int, r rune, next cond) {
	for j := 0; j < len(runq.dense); j++ {
		d := &runq.dense[j]
		t := d.t
		if t == nil {
			continue
		}
		i := t.inst
		add := false
		switch i.Op {
		case syntax.InstMatch:
			t.cap[1] = pos
			copy(m.matchcap, t.cap)
			m.matched = true
			for _, d := range runq.dense[j+1:] {
				if d.t != nil {
					m.pool = append(m.pool, d.t)
				}
			}
			runq.dense = runq.dense[:0]
		case syntax.InstRune:
			add = r != endOfText && i.MatchRune(r)
		case syntax.InstRune1:
			add = r == i.Rune[0]
		case syntax.InstRuneAny:
			add = r != endOfText
		case syntax.InstRuneAnyNotNL:
			add = r != '\n' && r != endOfText
		}
		if add {
			t = m.add(nextq, i.Out, nextPos, t.cap, next, t)
		}
		if t != nil {
			m.pool = append(m.pool, t)
		}
	}
	runq.dense = runq.dense[:0]
}

// add follows empty transitions from pc, appending the reachable threads to
// q. t is reused for the first thread stored, if non-nil.
func (m *machine) add(q *queue, pc uint32, pos int, cap []int, c cond, t *thread) *thread {
	if pc == 0 || q.contains(pc) {
		return t
	}
	j := len(q.dense)
	q.dense = q.dense[:j+1]
	d := &q.dense[j]
	d.t = nil
	d.pc = pc
	q.sparse[pc] = uint32(j)

	i := &m.prog.Inst[pc]
	switch i.Op {
	case syntax.InstFail:
	case syntax.InstAlt, syntax.InstAltMatch:
		t = m.add(q, i.Out, pos, cap, c, t)
		t = m.add(q, i.Arg, pos, cap, c, t)
	case syntax.InstEmptyWidth:
		ok, blocked := c.test(syntax.EmptyOp(i.Arg))
		switch {
		case ok:
			t = m.add(q, i.Out, pos, cap, c, t)
		case blocked:
			t = m.hold(d, i, cap, t)
		}
	case syntax.InstNop:
		t = m.add(q, i.Out, pos, cap, c, t)
	case syntax.InstCapture:
		if int(i.Arg) < len(cap) {
			opos := cap[i.Arg]
			cap[i.Arg] = pos
			m.add(q, i.Out, pos, cap, c, nil)
			cap[i.Arg] = opos
		} else {
			t = m.add(q, i.Out, pos, cap, c, t)
		}
	case syntax.InstMatch, syntax.InstRune, syntax.InstRune1, syntax.InstRuneAny, syntax.InstRuneAnyNotNL:
		t = m.hold(d, i, cap, t)
	}
	return t
}

func (m *machine) hold(d *entry, i *syntax.Inst, cap []int, t *thread) *thread {
	if t == nil {
		t = m.alloc(i)
	} else {
		t.inst = i
	}
	if &t.cap[0] != &cap[0] {
		copy(t.cap, cap)
	}
	d.t = t
	return nil
}
