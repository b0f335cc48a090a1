package v720

// Tracker accumulates received package identifiers and decides what each
// end-of-frame confirmation should carry. The camera retransmits whatever
// the confirmations never mention, so contents and timing here must match
// the device's expectations exactly. Not safe for concurrent use, the
// owning session serializes access.
type Tracker struct {
	ids   []uint32
	seen  map[uint32]struct{}
	ended bool
}

func NewTracker() *Tracker {
	return &Tracker{seen: map[uint32]struct{}{}}
}

// Add records one received package identifier. Duplicates within one
// flush interval are ignored.
func (t *Tracker) Add(id uint32) {
	if _, ok := t.seen[id]; ok {
		return
	}
	t.seen[id] = struct{}{}
	t.ids = append(t.ids, id)
}

// FlushEnd is called on every end-of-frame. The first end ever seen on a
// session answers with an empty identifier list, the cold-start handshake
// the camera expects. Every later end returns the identifiers accumulated
// since the previous flush. The bucket is cleared either way.
func (t *Tracker) FlushEnd() []uint32 {
	ids := t.ids
	t.ids = nil
	clear(t.seen)

	if !t.ended {
		t.ended = true
		return nil
	}
	return ids
}

// Pending reports how many identifiers wait for the next flush.
func (t *Tracker) Pending() int {
	return len(t.ids)
}

// Reset returns the tracker to its cold-start state.
func (t *Tracker) Reset() {
	t.ids = nil
	clear(t.seen)
	t.ended = false
}
