package transcript

// Reconciler guards the consumer side. It accepts, per utterance, any number
// of PREVIEWs in increasing Seq order followed by one FINAL.
type Reconciler struct {
	last  map[uint64]uint64 // latest accepted Seq per utterance
	final map[uint64]bool
	top   uint64
}

func NewReconciler() *Reconciler {
	return &Reconciler{last: make(map[uint64]uint64), final: make(map[uint64]bool)}
}

// retain is how many utterance ids below the newest one are remembered.
const retain = 64

// Accept reports whether ev should be shown. It rejects a PREVIEW after the
// FINAL, a PREVIEW older than one already accepted and a duplicate FINAL.
func (r *Reconciler) Accept(ev Event) bool {
	id := ev.UtteranceID
	if r.final[id] {
		return false
	}
	if ev.Seq <= r.last[id] {
		return false
	}
	r.last[id] = ev.Seq
	if ev.Kind == Final {
		r.final[id] = true
	}
	if id > r.top {
		r.top = id
		r.prune()
	}
	return true
}

func (r *Reconciler) prune() {
	if r.top <= retain {
		return
	}
	floor := r.top - retain
	for id := range r.last {
		if id < floor {
			delete(r.last, id)
			delete(r.final, id)
		}
	}
}
