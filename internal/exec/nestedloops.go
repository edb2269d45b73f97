package exec

import (
	"context"

	"github.com/kvquery/eql/internal/op"
	"github.com/kvquery/eql/internal/record"
)

// nestedLoopsIterator concatenates, for each outer record, the stream
// produced by executing build_inner(r) (spec.md C6 NestedLoops).
// Ordering: outer-major, inner in its own natural order.
type nestedLoopsIterator struct {
	ctx   context.Context
	ex    *Executor
	outer record.Iterator
	build op.BuildInner

	inner record.Iterator
	rec   record.Record
	err   error
}

func (e *Executor) execNestedLoops(ctx context.Context, o *op.Operator) (record.Iterator, error) {
	outer, err := e.Execute(ctx, o.NLOuter)
	if err != nil {
		return nil, err
	}
	return &nestedLoopsIterator{ctx: ctx, ex: e, outer: outer, build: o.NLBuildInner}, nil
}

func (n *nestedLoopsIterator) Next() bool {
	if n.err != nil {
		return false
	}
	for {
		if n.inner != nil {
			if n.inner.Next() {
				n.rec = n.inner.Record()
				return true
			}
			if err := n.inner.Err(); err != nil {
				n.err = err
				n.inner.Close()
				n.inner = nil
				return false
			}
			if err := n.inner.Close(); err != nil {
				n.err = err
				n.inner = nil
				return false
			}
			n.inner = nil
		}
		if !n.outer.Next() {
			n.err = n.outer.Err()
			return false
		}
		subtree, err := n.build.Build(n.outer.Record())
		if err != nil {
			n.err = err
			return false
		}
		inner, err := n.ex.Execute(n.ctx, subtree)
		if err != nil {
			n.err = err
			return false
		}
		n.inner = inner
	}
}

func (n *nestedLoopsIterator) Record() record.Record { return n.rec }
func (n *nestedLoopsIterator) Err() error            { return n.err }

// Close releases the outer iterator and, if mid-flight, the currently
// open inner iterator too -- every iterator this operator ever spawned
// is released regardless of whether the caller drained the stream
// (spec.md C7's resource-release contract).
func (n *nestedLoopsIterator) Close() error {
	var firstErr error
	if n.inner != nil {
		if err := n.inner.Close(); err != nil {
			firstErr = err
		}
		n.inner = nil
	}
	if err := n.outer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
