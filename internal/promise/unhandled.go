package promise

import "sync"

// Tracker records every promise passed to Track (the runtime Context tracks
// each promise made by NewPromise; promises derived via Then are not
// tracked) so that,
// once the queue has fully drained, promises that settled Rejected but
// never had a reaction scheduled can be reported to the host's unhandled-
// rejection hook. No debug creation-stack capture is kept, since the
// interpreter that would produce one is out of scope here.
type Tracker struct {
	mu    sync.Mutex
	pending map[*Promise]struct{}
	cfg   Config
}

// NewTracker constructs an empty Tracker using cfg's unhandled-rejection
// hook.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{pending: make(map[*Promise]struct{}), cfg: cfg}
}

// Track registers p for unhandled-rejection bookkeeping. Called once, when
// p is constructed.
func (t *Tracker) Track(p *Promise) {
	t.mu.Lock()
	t.pending[p] = struct{}{}
	t.mu.Unlock()
}

// Sweep runs at microtask-drain end: every tracked promise that is
// Rejected and was never handled is reported via the configured hook, then
// untracked. Promises still Pending remain tracked for the next drain.
func (t *Tracker) Sweep() {
	t.mu.Lock()
	var toReport []*Promise
	for p := range t.pending {
		switch p.State() {
		case Rejected:
			if !p.IsHandled() {
				toReport = append(toReport, p)
			}
			delete(t.pending, p)
		case Fulfilled:
			delete(t.pending, p)
		}
	}
	hook := t.cfg.onUnhandledRejection
	t.mu.Unlock()

	for _, p := range toReport {
		hook(p, p.Result())
	}
}
