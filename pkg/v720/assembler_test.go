package v720

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func push(a *Assembler, cmd uint16, flag byte, pkg uint32, payload string) *Frame {
	h := &Header{Cmd: cmd, Flag: flag, PkgID: pkg}
	return a.Push(h, []byte(payload))
}

func TestAssembleInArrivalOrder(t *testing.T) {
	a := NewAssembler()

	require.Nil(t, push(a, CmdVideo, FlagStart, 1, "AA"))
	require.Nil(t, push(a, CmdVideo, FlagContinue, 2, "BB"))
	require.Nil(t, push(a, CmdVideo, FlagContinue, 3, "CC"))

	frame := push(a, CmdVideo, FlagEnd, 4, "DD")
	require.NotNil(t, frame)
	require.Equal(t, CmdVideo, frame.Kind)
	require.Equal(t, []byte("AABBCCDD"), frame.Data)
	require.Zero(t, a.Dropped)
}

func TestStartReplacesInProgressFrame(t *testing.T) {
	a := NewAssembler()

	require.Nil(t, push(a, CmdVideo, FlagStart, 1, "old"))
	require.Nil(t, push(a, CmdVideo, FlagContinue, 2, "old"))

	// new start wins unconditionally, no merge with the stale frame
	require.Nil(t, push(a, CmdVideo, FlagStart, 3, "X"))
	frame := push(a, CmdVideo, FlagEnd, 4, "Y")
	require.NotNil(t, frame)
	require.Equal(t, []byte("XY"), frame.Data)
}

func TestOrphanFragmentsDropped(t *testing.T) {
	a := NewAssembler()

	require.Nil(t, push(a, CmdVideo, FlagContinue, 1, "no start"))
	require.Nil(t, push(a, CmdVideo, FlagEnd, 2, "no start"))
	require.EqualValues(t, 2, a.Dropped)

	// the assembler stays usable afterwards
	require.Nil(t, push(a, CmdVideo, FlagStart, 3, "A"))
	require.NotNil(t, push(a, CmdVideo, FlagEnd, 4, "B"))
}

func TestAudioSelfContained(t *testing.T) {
	a := NewAssembler()

	frame := push(a, CmdAudio, FlagNone, 5, "pcm")
	require.NotNil(t, frame)
	require.Equal(t, CmdAudio, frame.Kind)
	require.Equal(t, []byte("pcm"), frame.Data)

	// audio never touches the video buffer
	require.Nil(t, push(a, CmdVideo, FlagStart, 6, "A"))
	require.NotNil(t, push(a, CmdAudio, FlagNone, 7, "pcm"))
	require.NotNil(t, push(a, CmdVideo, FlagEnd, 8, "B"))
}

func TestPushCopiesPayload(t *testing.T) {
	a := NewAssembler()

	buf := []byte("AA")
	a.Push(&Header{Cmd: CmdVideo, Flag: FlagStart}, buf)
	copy(buf, "ZZ") // caller reuses its receive buffer

	frame := push(a, CmdVideo, FlagEnd, 1, "BB")
	require.NotNil(t, frame)
	require.Equal(t, []byte("AABB"), frame.Data)
}

func TestSweepDiscardsStaleBuffer(t *testing.T) {
	a := NewAssembler()

	require.Nil(t, push(a, CmdVideo, FlagStart, 1, "A"))

	require.Zero(t, a.Sweep(time.Now(), time.Second))
	require.Equal(t, 1, a.Sweep(time.Now().Add(2*time.Second), time.Second))
	require.EqualValues(t, 1, a.Stale)

	// the end that belonged to the discarded start is now an orphan
	require.Nil(t, push(a, CmdVideo, FlagEnd, 2, "B"))
	require.EqualValues(t, 1, a.Dropped)
}

func TestUnknownKindIgnored(t *testing.T) {
	a := NewAssembler()
	require.Nil(t, push(a, 7, FlagStart, 1, "avi"))
	require.Zero(t, a.Dropped)
}
