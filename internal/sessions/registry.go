package sessions

import (
	"io"
	"net"
	"sort"
	"sync"

	"github.com/naxcloud/naxcloud/internal/metrics"
)

// Registry is the shared table of active camera sessions. Its mutex only
// guards the table structure and is always released before any per-session
// lock is taken; two session locks are never held from one code path. That
// ordering is what keeps independent connection goroutines deadlock-free.
type Registry struct {
	mu    sync.Mutex
	byID  map[string]*Session
	byIP  map[string]*Session // datagram demux has no device id, only a source address
}

func NewRegistry() *Registry {
	return &Registry{
		byID: map[string]*Session{},
		byIP: map[string]*Session{},
	}
}

// Upsert installs a fresh session for deviceID and returns it. An existing
// active session for the same device is retired first: its transport is
// closed and its buffers dropped, so re-registrations never leave ghost
// sessions behind.
func (r *Registry) Upsert(deviceID string, conn io.WriteCloser, addr net.Addr) *Session {
	s := newSession(deviceID, conn, addr)

	r.mu.Lock()
	prev := r.byID[deviceID]
	r.byID[deviceID] = s
	if host := addrHost(addr); host != "" {
		r.byIP[host] = s
	}
	r.mu.Unlock()

	// prev is retired outside the registry lock (lock ordering)
	if prev != nil {
		metrics.SessionsSuperseded.Inc()
		prev.Close()
	}
	return s
}

// Release closes s and removes it from the table, but only if it is still
// the installed session for its device. An I/O-failure handler of a
// superseded session must never tear down its successor.
func (r *Registry) Release(s *Session) {
	r.mu.Lock()
	if r.byID[s.deviceID] == s {
		delete(r.byID, s.deviceID)
	}
	for ip, v := range r.byIP {
		if v == s {
			delete(r.byIP, ip)
		}
	}
	r.mu.Unlock()

	s.Close()
}

func (r *Registry) Get(deviceID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[deviceID]
}

// GetByAddr resolves the session for a datagram source address.
func (r *Registry) GetByAddr(addr net.Addr) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byIP[addrHost(addr)]
}

// Remove drops the session from the table and releases its resources.
func (r *Registry) Remove(deviceID string) {
	r.mu.Lock()
	s := r.byID[deviceID]
	delete(r.byID, deviceID)
	if s != nil {
		for ip, v := range r.byIP {
			if v == s {
				delete(r.byIP, ip)
			}
		}
	}
	r.mu.Unlock()

	if s != nil {
		s.Close()
	}
}

// List returns point-in-time snapshots of every session, ordered by device
// identifier. Readers never see live session references.
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		all = append(all, s)
	}
	r.mu.Unlock()

	list := make([]Snapshot, 0, len(all))
	for _, s := range all {
		list = append(list, s.Snapshot())
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].DeviceID < list[j].DeviceID
	})
	return list
}

func addrHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr.String()); err == nil {
		return host
	}
	return addr.String()
}
