package progress

import (
	"sync"
	"time"
)

// Delta represents an incremental counter change emitted by the orchestrator.
// The fields are signed and therefore can be either positive (increment) or
// negative (decrement).
type Delta struct {
	Submitted     int
	Running       int
	AwaitingVoice int
	Settling      int
	Completed     int
	Rejected      int
	Failed        int
}

// Progress keeps aggregated pipeline counters. It is safe for concurrent use.
type Progress struct {
	StartedAt time.Time

	Submitted     int
	Running       int
	AwaitingVoice int
	Settling      int
	Completed     int
	Rejected      int
	Failed        int

	sync.Mutex
	onChange func(Progress)
}

// New creates a tracker
func New() *Progress {
	return &Progress{StartedAt: time.Now()}
}

// Update applies the supplied delta. If an onChange callback has been
// registered it is invoked with a copy of the counters outside the critical
// section.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}

	p.Lock()

	p.Submitted += d.Submitted
	p.Running += d.Running
	p.AwaitingVoice += d.AwaitingVoice
	p.Settling += d.Settling
	p.Completed += d.Completed
	p.Rejected += d.Rejected
	p.Failed += d.Failed

	snapshot := p.copy()
	cb := p.onChange

	p.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy of the tracker suitable for read-only inspection.
func (p *Progress) Snapshot() Progress {
	if p == nil {
		return Progress{}
	}
	p.Lock()
	defer p.Unlock()
	return p.copy()
}

// InFlight returns the number of transactions not yet terminal.
func (p Progress) InFlight() int {
	return p.Running + p.AwaitingVoice + p.Settling
}

// OnChange registers a callback invoked after every Update. Passing nil
// disables the callback.
func (p *Progress) OnChange(cb func(Progress)) {
	if p == nil {
		return
	}
	p.Lock()
	p.onChange = cb
	p.Unlock()
}

func (p *Progress) copy() Progress {
	return Progress{
		StartedAt:     p.StartedAt,
		Submitted:     p.Submitted,
		Running:       p.Running,
		AwaitingVoice: p.AwaitingVoice,
		Settling:      p.Settling,
		Completed:     p.Completed,
		Rejected:      p.Rejected,
		Failed:        p.Failed,
	}
}
