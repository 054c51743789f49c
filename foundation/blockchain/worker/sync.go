package worker

import "context"

// Sync brings this node up to date with its peers by resolving conflicts
// once before any background work starts.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	replaced, err := w.state.ResolveConflicts(context.Background())
	if err != nil {
		w.evHandler("worker: sync: ERROR: %s", err)
		return
	}

	w.evHandler("worker: sync: replaced[%t]", replaced)
}
