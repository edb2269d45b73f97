package exec

import (
	"context"

	"github.com/kvquery/eql/internal/eqlkv/codec"
	"github.com/kvquery/eql/internal/op"
	"github.com/kvquery/eql/internal/record"
)

// --- HashJoin ---

// hashJoinIterator fully materializes the build side into an in-memory
// map keyed by the canonical codec encoding of the extracted build key
// (resolving O4: stringifying the extracted value would conflate the
// number 1 with the string "1"; canonical bytes do not), then streams
// the probe side.
type hashJoinIterator struct {
	probe     record.Iterator
	probeKey  op.RecordExtract
	combine   op.Combine
	built     map[string]record.Record

	rec record.Record
	err error
}

func (e *Executor) execHashJoin(ctx context.Context, o *op.Operator) (record.Iterator, error) {
	buildIt, err := e.Execute(ctx, o.HJBuild)
	if err != nil {
		return nil, err
	}
	buildRecs, err := record.Collect(buildIt)
	if err != nil {
		return nil, err
	}
	built := make(map[string]record.Record, len(buildRecs))
	for _, r := range buildRecs {
		k, ok, err := o.HJBuildKey.Apply(r)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		built[string(codec.Encode(k))] = r // last writer wins (O5, kept as specified)
	}

	probe, err := e.Execute(ctx, o.HJProbe)
	if err != nil {
		return nil, err
	}
	return &hashJoinIterator{probe: probe, probeKey: o.HJProbeKey, combine: o.HJCombine, built: built}, nil
}

func (h *hashJoinIterator) Next() bool {
	if h.err != nil {
		return false
	}
	for h.probe.Next() {
		pr := h.probe.Record()
		k, ok, err := h.probeKey.Apply(pr)
		if err != nil {
			h.err = err
			return false
		}
		if !ok {
			// Records for which the probe extract returns absent are dropped.
			continue
		}
		var buildMatch *record.Record
		if br, found := h.built[string(codec.Encode(k))]; found {
			buildMatch = &br
		}
		out, ok, err := h.combine.Apply(buildMatch, &pr)
		if err != nil {
			h.err = err
			return false
		}
		if !ok {
			continue
		}
		h.rec = out
		return true
	}
	h.err = h.probe.Err()
	return false
}

func (h *hashJoinIterator) Record() record.Record { return h.rec }
func (h *hashJoinIterator) Err() error             { return h.err }
func (h *hashJoinIterator) Close() error           { return h.probe.Close() }

// --- MergeJoin ---

// mergeJoinIterator walks both (pre-sorted, caller's obligation) inputs
// in lockstep, comparing current keys by the canonical codec encoding.
// On equality it advances only the right side (O2: one-to-many fan-out
// left-to-right), kept as specified.
type mergeJoinIterator struct {
	left, right         record.Iterator
	leftKey, rightKey    op.RecordExtract
	combine              op.Combine

	leftOK, rightOK bool
	leftRec, rightRec record.Record

	rec record.Record
	err error
	done bool
}

func (e *Executor) execMergeJoin(ctx context.Context, o *op.Operator) (record.Iterator, error) {
	left, err := e.Execute(ctx, o.MJLeft)
	if err != nil {
		return nil, err
	}
	right, err := e.Execute(ctx, o.MJRight)
	if err != nil {
		left.Close()
		return nil, err
	}
	m := &mergeJoinIterator{left: left, right: right, leftKey: o.MJLeftKey, rightKey: o.MJRightKey, combine: o.MJCombine}
	m.leftOK = left.Next()
	if !m.leftOK {
		m.err = left.Err()
	} else {
		m.leftRec = left.Record()
	}
	m.rightOK = right.Next()
	if !m.rightOK && m.err == nil {
		m.err = right.Err()
	} else if m.rightOK {
		m.rightRec = right.Record()
	}
	return m, nil
}

func (m *mergeJoinIterator) keyOf(x op.RecordExtract, r record.Record) (any, error) {
	v, _, err := x.Apply(r)
	return v, err
}

func (m *mergeJoinIterator) advanceLeft() {
	m.leftOK = m.left.Next()
	if m.leftOK {
		m.leftRec = m.left.Record()
	} else if err := m.left.Err(); err != nil {
		m.err = err
	}
}

func (m *mergeJoinIterator) advanceRight() {
	m.rightOK = m.right.Next()
	if m.rightOK {
		m.rightRec = m.right.Record()
	} else if err := m.right.Err(); err != nil {
		m.err = err
	}
}

func (m *mergeJoinIterator) Next() bool {
	if m.err != nil || m.done {
		return false
	}
	for {
		switch {
		case m.leftOK && m.rightOK:
			lk, err := m.keyOf(m.leftKey, m.leftRec)
			if err != nil {
				m.err = err
				return false
			}
			rk, err := m.keyOf(m.rightKey, m.rightRec)
			if err != nil {
				m.err = err
				return false
			}
			cmp := codec.Compare(lk, rk)
			switch {
			case cmp < 0:
				l := m.leftRec
				out, ok, err := m.combine.Apply(&l, nil)
				m.advanceLeft()
				if err != nil {
					m.err = err
					return false
				}
				if ok {
					m.rec = out
					return true
				}
			case cmp > 0:
				r := m.rightRec
				out, ok, err := m.combine.Apply(nil, &r)
				m.advanceRight()
				if err != nil {
					m.err = err
					return false
				}
				if ok {
					m.rec = out
					return true
				}
			default:
				l, r := m.leftRec, m.rightRec
				out, ok, err := m.combine.Apply(&l, &r)
				m.advanceRight()
				if err != nil {
					m.err = err
					return false
				}
				if ok {
					m.rec = out
					return true
				}
			}
		case m.leftOK:
			l := m.leftRec
			out, ok, err := m.combine.Apply(&l, nil)
			m.advanceLeft()
			if err != nil {
				m.err = err
				return false
			}
			if ok {
				m.rec = out
				return true
			}
		case m.rightOK:
			r := m.rightRec
			out, ok, err := m.combine.Apply(nil, &r)
			m.advanceRight()
			if err != nil {
				m.err = err
				return false
			}
			if ok {
				m.rec = out
				return true
			}
		default:
			m.done = true
			return false
		}
		if m.err != nil {
			return false
		}
	}
}

func (m *mergeJoinIterator) Record() record.Record { return m.rec }
func (m *mergeJoinIterator) Err() error             { return m.err }

func (m *mergeJoinIterator) Close() error {
	var firstErr error
	if err := m.left.Close(); err != nil {
		firstErr = err
	}
	if err := m.right.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
