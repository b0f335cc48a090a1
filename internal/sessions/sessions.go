package sessions

import (
	"time"

	"github.com/naxcloud/naxcloud/internal/api"
	"github.com/naxcloud/naxcloud/internal/app"
	"github.com/rs/zerolog"
)

// Default is the process-wide registry, created by Init. Code under test
// builds its own Registry instead.
var Default *Registry

var log zerolog.Logger

var cfg struct {
	Mod struct {
		Timeout time.Duration `yaml:"timeout"` // silence before disconnect
		Stale   time.Duration `yaml:"stale"`   // in-progress frame staleness window
		Retain  time.Duration `yaml:"retain"`  // keep disconnected sessions visible
	} `yaml:"sessions"`
}

func Init() {
	cfg.Mod.Timeout = 30 * time.Second
	cfg.Mod.Stale = 5 * time.Second
	cfg.Mod.Retain = time.Minute

	app.LoadConfig(&cfg)

	log = app.GetLogger("sessions")

	Default = NewRegistry()
	go janitor(Default)

	api.HandleFunc("api/sessions", apiSessions)
	api.HandleFunc("api/frame.jpeg", apiFrame)
}

// janitor enforces the silence timeout, sweeps stale reassembly buffers
// and finally evicts long-disconnected sessions from the table.
func janitor(r *Registry) {
	for range time.Tick(time.Second) {
		vacuum(r, time.Now())
	}
}

// vacuum is one janitor pass. Disconnected sessions stay listed for the
// retain window so the dashboard can show what dropped off, then go.
func vacuum(r *Registry, now time.Time) {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		all = append(all, s)
	}
	r.mu.Unlock()

	for _, s := range all {
		if closed := s.closedSince(); !closed.IsZero() {
			if now.Sub(closed) > cfg.Mod.Retain {
				r.Release(s)
			}
			continue
		}
		if s.sweep(now, cfg.Mod.Stale, cfg.Mod.Timeout) {
			log.Info().Str("device", s.DeviceID()).Msg("[sessions] silence timeout")
			s.Close()
		}
	}
}
