// Package reverbobject implements the reverb-object rendering atoms:
// ReverbParameterCalculator, which allocates PointSourceWithReverb
// objects onto persistent rendering slots and derives their early- and
// late-reverb parameters, and LateReverbFilterCalculator, which
// synthesises per-slot late-tail impulse responses from subband
// envelopes.
package reverbobject

import "fmt"

// SlotAllocator assigns scene-object IDs to a fixed pool of integer slots
// in [0, maxSlots), keeping an object on the same slot across blocks for
// as long as it stays alive, releasing the slot once the object
// disappears, and rejecting assignment once the pool is exhausted.
type SlotAllocator struct {
	maxSlots int
	slotOf   map[string]int
	idOf     []string // slot -> object ID, "" if free
}

// NewSlotAllocator constructs an allocator with maxSlots slots, all free.
func NewSlotAllocator(maxSlots int) (*SlotAllocator, error) {
	if maxSlots <= 0 {
		return nil, fmt.Errorf("reverbobject: SlotAllocator: maxSlots must be positive")
	}
	return &SlotAllocator{
		maxSlots: maxSlots,
		slotOf:   make(map[string]int),
		idOf:     make([]string, maxSlots),
	}, nil
}

// MaxSlots reports the pool size.
func (a *SlotAllocator) MaxSlots() int { return a.maxSlots }

// Update reconciles the allocator against this block's live object IDs (in
// first-seen order, which breaks ties for new assignments when more than
// one new ID would otherwise contend for the same free slot). It returns
// the slot assigned to every live ID that got one, the slots freed because
// their previous holder disappeared, and any live IDs that could not be
// assigned because the pool was full.
func (a *SlotAllocator) Update(liveIDs []string) (assigned map[string]int, cleared []int, overflow []string) {
	live := make(map[string]bool, len(liveIDs))
	for _, id := range liveIDs {
		live[id] = true
	}

	for slot, id := range a.idOf {
		if id != "" && !live[id] {
			delete(a.slotOf, id)
			a.idOf[slot] = ""
			cleared = append(cleared, slot)
		}
	}

	assigned = make(map[string]int, len(liveIDs))
	for _, id := range liveIDs {
		if slot, ok := a.slotOf[id]; ok {
			assigned[id] = slot
			continue
		}
		slot := a.firstFree()
		if slot < 0 {
			overflow = append(overflow, id)
			continue
		}
		a.slotOf[id] = slot
		a.idOf[slot] = id
		assigned[id] = slot
	}
	return assigned, cleared, overflow
}

func (a *SlotAllocator) firstFree() int {
	for slot, id := range a.idOf {
		if id == "" {
			return slot
		}
	}
	return -1
}
