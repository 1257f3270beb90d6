package sectorstore

// deferredQueue holds ids whose erase collided with an active pin. Entries
// are deduplicated: queuing the same id twice enqueues it at most once. An
// id normally leaves the queue when process_pending actually frees its
// sector, but a fresh Acquire reviving the same id first cancels it via
// remove so process_pending never erases the newly-live sector out from
// under the caller.
type deferredQueue struct {
	pending  []EntityID
	enqueued map[EntityID]struct{}
}

func newDeferredQueue() *deferredQueue {
	return &deferredQueue{enqueued: make(map[EntityID]struct{})}
}

func (q *deferredQueue) enqueue(id EntityID) {
	if _, ok := q.enqueued[id]; ok {
		return
	}

	q.enqueued[id] = struct{}{}
	q.pending = append(q.pending, id)
}

// remove cancels a queued erase for id, if any. No-op if id isn't queued.
func (q *deferredQueue) remove(id EntityID) {
	if _, ok := q.enqueued[id]; !ok {
		return
	}

	delete(q.enqueued, id)

	for i, pending := range q.pending {
		if pending == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
}

func (q *deferredQueue) len() int { return len(q.pending) }

// drain removes every currently queued id and returns it. Ids the caller
// fails to erase must be re-enqueued by the caller via enqueue.
func (q *deferredQueue) drain() []EntityID {
	ids := q.pending
	q.pending = nil
	q.enqueued = make(map[EntityID]struct{})

	return ids
}
