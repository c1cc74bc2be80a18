package coordinator

import (
	"sync"
	"time"

	"github.com/squadracorsepolito/acmeview/view"
)

type inbound struct {
	data     []byte
	received time.Time
}

// inbox holds the accepted frames of a view that are not applied yet.
// Frames and user edits of a view are applied with applyMux held,
// and an edit first applies the frames accepted before it,
// so every effect lands in the order the coordinator accepted it.
type inbox struct {
	view *view.FrameView

	mux       sync.Mutex
	pending   []*inbound
	limit     int
	scheduled bool

	applyMux sync.Mutex
}

func newInbox(fv *view.FrameView, limit int) *inbox {
	return &inbox{
		view:  fv,
		limit: limit,
	}
}

// push appends a frame. It reports false if the inbox is full,
// and schedule is true when the inbox must be queued to its shard.
func (ib *inbox) push(in *inbound) (schedule, ok bool) {
	ib.mux.Lock()
	defer ib.mux.Unlock()

	if len(ib.pending) >= ib.limit {
		return false, false
	}

	ib.pending = append(ib.pending, in)

	if ib.scheduled {
		return false, true
	}
	ib.scheduled = true

	return true, true
}

// take removes and returns the pending frames.
// The shard passes unschedule, so the next push queues the inbox again.
func (ib *inbox) take(unschedule bool) []*inbound {
	ib.mux.Lock()
	defer ib.mux.Unlock()

	if unschedule {
		ib.scheduled = false
	}

	pending := ib.pending
	ib.pending = nil

	return pending
}
