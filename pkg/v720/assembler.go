package v720

import "time"

// Frame is one complete media unit handed to the sink.
type Frame struct {
	Kind uint16 // CmdVideo or CmdAudio
	Data []byte
	Time time.Time
}

type fragment struct {
	chunks  [][]byte
	size    int
	started time.Time
}

// Assembler rebuilds media frames from fragmented datagrams for one
// session. The transport is lossy by design: orphan fragments are counted
// and dropped, never treated as a session failure. Not safe for concurrent
// use, the owning session serializes access.
type Assembler struct {
	buffers map[uint16]*fragment // in-progress frame per media kind

	// Dropped counts continuation/end fragments whose start was lost.
	Dropped uint64
	// Stale counts in-progress buffers discarded by Sweep.
	Stale uint64
}

func NewAssembler() *Assembler {
	return &Assembler{buffers: map[uint16]*fragment{}}
}

// Push feeds one fragment. It returns a non-nil Frame when the fragment
// completes a frame, nil when the fragment was buffered or dropped.
// The payload bytes are copied, callers may reuse their receive buffer.
func (a *Assembler) Push(h *Header, payload []byte) *Frame {
	now := time.Now()
	payload = append([]byte(nil), payload...)

	switch h.Cmd {
	case CmdAudio:
		// single-datagram frame, no reassembly
		return &Frame{Kind: CmdAudio, Data: payload, Time: now}

	case CmdVideo:
	default:
		return nil
	}

	switch h.Flag {
	case FlagStart:
		// a new start always wins, stale frames are discarded, not merged
		a.buffers[h.Cmd] = &fragment{chunks: [][]byte{payload}, size: len(payload), started: now}

	case FlagContinue:
		f := a.buffers[h.Cmd]
		if f == nil {
			a.Dropped++
			return nil
		}
		f.chunks = append(f.chunks, payload)
		f.size += len(payload)

	case FlagEnd:
		f := a.buffers[h.Cmd]
		if f == nil {
			a.Dropped++
			return nil
		}
		delete(a.buffers, h.Cmd)

		data := make([]byte, 0, f.size+len(payload))
		for _, chunk := range f.chunks {
			data = append(data, chunk...)
		}
		data = append(data, payload...)
		return &Frame{Kind: CmdVideo, Data: data, Time: now}
	}

	return nil
}

// Sweep discards in-progress buffers older than window, bounding memory
// against devices that stall mid-frame. Returns the number discarded.
func (a *Assembler) Sweep(now time.Time, window time.Duration) int {
	var n int
	for kind, f := range a.buffers {
		if now.Sub(f.started) > window {
			delete(a.buffers, kind)
			a.Stale++
			n++
		}
	}
	return n
}

// Reset drops all in-progress buffers, used when a session closes.
func (a *Assembler) Reset() {
	clear(a.buffers)
}
