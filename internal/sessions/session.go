package sessions

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/naxcloud/naxcloud/internal/metrics"
	"github.com/naxcloud/naxcloud/pkg/v720"
)

// protocol states, one FSM per device
const (
	StateConnected    = "connected"
	StateRegistered   = "registered"
	StateNatPending   = "nat_pending"
	StateNatComplete  = "nat_complete"
	StateProbe        = "probe_exchange"
	StateStreaming    = "streaming"
	StateDisconnected = "disconnected"
)

const (
	EventRegister    = "register"
	EventNatRequest  = "nat_request"
	EventNatComplete = "nat_complete"
	EventProbe       = "probe"
	EventStream      = "stream"
	EventClose       = "close"
)

// ProbeRounds is how many 50/51 exchanges confirm reachability before
// streaming is permitted.
const ProbeRounds = 3

func newFSM() *fsm.FSM {
	active := []string{
		StateConnected, StateRegistered, StateNatPending,
		StateNatComplete, StateProbe, StateStreaming,
	}
	return fsm.NewFSM(StateConnected, fsm.Events{
		// a re-registration is legal from any non-terminal state
		{Name: EventRegister, Src: active, Dst: StateRegistered},
		{Name: EventNatRequest, Src: []string{StateRegistered}, Dst: StateNatPending},
		{Name: EventNatComplete, Src: []string{StateNatPending}, Dst: StateNatComplete},
		{Name: EventProbe, Src: []string{StateNatComplete}, Dst: StateProbe},
		{Name: EventStream, Src: []string{StateProbe}, Dst: StateStreaming},
		{Name: EventClose, Src: active, Dst: StateDisconnected},
	}, nil)
}

// Session is the authoritative state for one physical camera. All fields
// are guarded by mu; the registry lock is never held while mu is taken.
type Session struct {
	mu sync.Mutex

	deviceID string
	token    string
	conn     io.WriteCloser // control transport, nil after close
	addr     net.Addr       // control source address

	machine  *fsm.FSM
	lastSeen time.Time
	closedAt time.Time // zero while the session is active

	probeRounds int

	// datagram delivery, learned during NAT traversal
	udpAddr    *net.UDPAddr
	devAddr    string // camera's own address:port, reported in code 12
	devNatAddr string // camera's NAT-observed address:port
	forwardID  [8]byte

	assembler *v720.Assembler
	tracker   *v720.Tracker

	latest []byte // last complete video frame, for snapshots
}

func newSession(deviceID string, conn io.WriteCloser, addr net.Addr) *Session {
	metrics.SessionsActive.Inc()
	return &Session{
		deviceID:  deviceID,
		conn:      conn,
		addr:      addr,
		machine:   newFSM(),
		lastSeen:  time.Now(),
		forwardID: v720.DefaultForwardID,
		assembler: v720.NewAssembler(),
		tracker:   v720.NewTracker(),
	}
}

func (s *Session) DeviceID() string {
	return s.deviceID
}

func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Current()
}

// Event drives one protocol transition. Out-of-order events are not an
// error to the caller: the protocol must tolerate legacy and repeated
// codes, so an invalid transition leaves the state untouched and reports
// false.
func (s *Session) Event(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Event(context.Background(), name) == nil
}

// Touch updates the liveness clock.
func (s *Session) Touch() {
	s.mu.Lock()
	if s.closedAt.IsZero() {
		s.lastSeen = time.Now()
	}
	s.mu.Unlock()
}

func (s *Session) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// SetUDPAddr records where confirmation datagrams should be sent. The
// camera's source port changes across NAT, so the last seen one wins.
func (s *Session) SetUDPAddr(addr *net.UDPAddr) {
	s.mu.Lock()
	if s.closedAt.IsZero() {
		s.udpAddr = addr
	}
	s.mu.Unlock()
}

func (s *Session) UDPAddr() *net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.udpAddr
}

// SetNatPair stores the address pairing from the code 12 completion.
func (s *Session) SetNatPair(devAddr, devNatAddr string) {
	s.mu.Lock()
	s.devAddr = devAddr
	s.devNatAddr = devNatAddr
	s.mu.Unlock()
}

// ProbeRound counts one 50/51 exchange and reports whether the probe
// phase is complete.
func (s *Session) ProbeRound() (round int, done bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.probeRounds < ProbeRounds {
		s.probeRounds++
	}
	return s.probeRounds, s.probeRounds >= ProbeRounds
}

// Write sends one encoded message over the control transport as a single
// write, so fixed-size responses are never interleaved.
func (s *Session) Write(b []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return net.ErrClosed
	}
	_, err := conn.Write(b)
	return err
}

// Fragment feeds one media datagram through the assembler and the
// retransmission tracker. It returns the completed frame, if any, and the
// confirmation datagram that must go out now, if any.
func (s *Session) Fragment(h *v720.Header, payload []byte) (frame *v720.Frame, confirm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// late datagrams for a closed session are ignored, not processed
	if !s.closedAt.IsZero() {
		return nil, nil
	}

	s.lastSeen = time.Now()
	s.tracker.Add(h.PkgID)

	dropped := s.assembler.Dropped
	frame = s.assembler.Push(h, payload)
	if s.assembler.Dropped > dropped {
		metrics.FragmentsOrphaned.Inc()
	}

	if frame != nil && frame.Kind == v720.CmdVideo {
		s.latest = frame.Data
	}

	if h.Cmd == v720.CmdVideo && h.Flag == v720.FlagEnd {
		confirm = v720.MarshalConfirm(s.forwardID, s.tracker.FlushEnd())
	}
	return
}

// LatestFrame returns the most recent complete video frame.
func (s *Session) LatestFrame() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// sweep discards stale in-progress buffers and reports whether the
// session passed the silence timeout.
func (s *Session) sweep(now time.Time, stale, timeout time.Duration) (silent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.assembler.Sweep(now, stale); n > 0 {
		metrics.BuffersStale.Add(float64(n))
	}
	return now.Sub(s.lastSeen) > timeout
}

// Close transitions the session to Disconnected, closes its transport and
// releases the reassembly buffers and the package bucket. Safe to call
// more than once; late datagrams for a closed session are cheaply ignored.
func (s *Session) Close() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	if s.closedAt.IsZero() {
		s.closedAt = time.Now()
		metrics.SessionsActive.Dec()
		_ = s.machine.Event(context.Background(), EventClose)
	}
	s.assembler.Reset()
	s.tracker.Reset()
	s.latest = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// closedSince reports when the session was closed, zero while active.
func (s *Session) closedSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closedAt
}

// Snapshot is the read-only view handed to the dashboard.
type Snapshot struct {
	DeviceID  string    `json:"device_id"`
	Addr      string    `json:"addr"`
	State     string    `json:"state"`
	LastSeen  time.Time `json:"last_seen"`
	Streaming bool      `json:"streaming"`
	NatAddr   string    `json:"nat_addr,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var addr string
	if s.addr != nil {
		addr = s.addr.String()
	}
	state := s.machine.Current()
	return Snapshot{
		DeviceID:  s.deviceID,
		Addr:      addr,
		State:     state,
		LastSeen:  s.lastSeen,
		Streaming: state == StateStreaming,
		NatAddr:   s.devNatAddr,
	}
}
