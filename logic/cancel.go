package logic

import "sync"

// canceller tracks in-flight executions per unit and fires their
// cancellation signals on cancel-predicate matches, take-latest
// supersession, and teardown. Admission is sequence-ordered: newest
// holds the highest take-latest sequence admitted per unit and barrier
// the highest cancel sequence, so an older context registering late is
// dead on arrival instead of superseding or surviving its successor.
type canceller struct {
	mu       sync.Mutex
	inflight map[*Unit]map[string]*execution
	newest   map[*Unit]uint64
	barrier  map[*Unit]uint64
}

// newCanceller creates an empty canceller.
func newCanceller() *canceller {
	return &canceller{
		inflight: make(map[*Unit]map[string]*execution),
		newest:   make(map[*Unit]uint64),
		barrier:  make(map[*Unit]uint64),
	}
}

// admit registers the execution and resolves it against the unit's
// sequence marks in one step. It returns the contexts the new arrival
// supersedes (cancelled by the caller outside the lock, since
// cancelNow re-enters unregister) and whether the arrival itself is
// still live.
func (c *canceller) admit(ex *execution, latest bool) (stale []*execution, live bool) {
	c.mu.Lock()
	u := ex.unit
	live = ex.seq > c.barrier[u]
	if live && latest {
		if ex.seq < c.newest[u] {
			live = false
		} else {
			c.newest[u] = ex.seq
			for _, old := range c.inflight[u] {
				stale = append(stale, old)
			}
		}
	}
	m := c.inflight[u]
	if m == nil {
		m = make(map[string]*execution)
		c.inflight[u] = m
	}
	m[ex.id] = ex
	c.mu.Unlock()
	return stale, live
}

// unregister forgets a terminal execution.
func (c *canceller) unregister(ex *execution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.inflight[ex.unit]
	if m == nil {
		return
	}
	delete(m, ex.id)
	if len(m) == 0 {
		delete(c.inflight, ex.unit)
	}
}

// snapshotUnit returns the unit's in-flight executions. Cancellation
// happens outside the lock because cancelNow re-enters unregister.
func (c *canceller) snapshotUnit(u *Unit) []*execution {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.inflight[u]
	if len(m) == 0 {
		return nil
	}
	out := make([]*execution, 0, len(m))
	for _, ex := range m {
		out = append(out, ex)
	}
	return out
}

// cancelUnit fires the cancellation signal for all of the unit's
// in-flight executions.
func (c *canceller) cancelUnit(u *Unit) {
	for _, ex := range c.snapshotUnit(u) {
		ex.cancelNow()
	}
}

// cancelUnitBefore fires the cancellation signal for the unit's
// executions sequenced before seq and raises the unit's barrier so a
// matching context that has not registered yet dies on admission.
func (c *canceller) cancelUnitBefore(u *Unit, seq uint64) {
	c.mu.Lock()
	if seq > c.barrier[u] {
		c.barrier[u] = seq
	}
	var out []*execution
	for _, ex := range c.inflight[u] {
		if ex.seq < seq {
			out = append(out, ex)
		}
	}
	c.mu.Unlock()
	for _, ex := range out {
		ex.cancelNow()
	}
}

// unitsWithWork returns every unit that still has in-flight executions,
// including units replaced out of the registry.
func (c *canceller) unitsWithWork() []*Unit {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Unit, 0, len(c.inflight))
	for u := range c.inflight {
		out = append(out, u)
	}
	return out
}

// cancelAll fires every in-flight execution's signal (teardown).
func (c *canceller) cancelAll() {
	for _, u := range c.unitsWithWork() {
		c.cancelUnit(u)
	}
}

// count returns the number of in-flight executions.
func (c *canceller) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.inflight {
		n += len(m)
	}
	return n
}
