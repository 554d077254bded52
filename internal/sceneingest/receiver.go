package sceneingest

import (
	"github.com/san-kum/dynrenderer/internal/objectmodel"
	"github.com/san-kum/dynrenderer/internal/pml"
)

// sceneUpdate is the payload a network-receiver goroutine hands to the
// real-time thread: a fresh object vector, a fresh listener pose, or
// both, whichever the wire message carried.
type sceneUpdate struct {
	objects     objectmodel.Vector
	hasObjects  bool
	listener    pml.ListenerParameter
	hasListener bool
}

// Receiver decouples a network-receiving goroutine from the audio
// callback: PushObjects/PushListener are called from the network thread,
// Drain is called once per block from the real-time thread. Capacity
// bounds how many updates may be in flight; on overflow the newest
// update is dropped (Ring.Push returns false and the caller should
// report it via diagnostics).
type Receiver struct {
	ring *Ring[sceneUpdate]
}

// NewReceiver constructs a Receiver whose ring holds up to capacity
// pending updates.
func NewReceiver(capacity int) *Receiver {
	return &Receiver{ring: NewRing[sceneUpdate](capacity)}
}

// PushObjects enqueues a new scene-object vector from the network
// thread. Returns false if the queue was full and the update was
// dropped.
func (r *Receiver) PushObjects(v objectmodel.Vector) bool {
	return r.ring.Push(sceneUpdate{objects: v, hasObjects: true})
}

// PushListener enqueues a new listener pose from the network thread.
func (r *Receiver) PushListener(p pml.ListenerParameter) bool {
	return r.ring.Push(sceneUpdate{listener: p, hasListener: true})
}

// Drain applies every update enqueued since the last call to the given
// renderer-like sink, in arrival order, discarding nothing: it is meant
// to be called once per block from the real-time thread, immediately
// before the renderer's own parameter fan-out would otherwise run
// stale, so every update enqueued before the call takes effect this
// block.
func (r *Receiver) Drain(sink Sink) {
	for {
		u, ok := r.ring.Pop()
		if !ok {
			return
		}
		if u.hasObjects {
			sink.PushObjects(u.objects)
		}
		if u.hasListener {
			sink.PushListener(u.listener)
		}
	}
}

// Sink is the subset of signalflows.CoreRenderer's API Drain needs;
// declared locally so sceneingest does not import signalflows (the
// dependency runs the other way: cmd/dynrenderer wires a Receiver in
// front of a CoreRenderer, not the reverse).
type Sink interface {
	PushObjects(objectmodel.Vector)
	PushListener(pml.ListenerParameter)
}
