// Package netmon watches backend reachability and drives the sync engine.
//
// Connectivity is defined operationally: the backend health endpoint
// answered, or it did not. OS-level interface state is irrelevant for a
// clinic behind an unreliable uplink. On each offline-to-online transition
// the monitor runs the initial load (if still needed) and a sync pass; a
// second ticker schedules periodic passes while online.
package netmon

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/clinicaid/clinisync/internal/event"
	"github.com/clinicaid/clinisync/internal/syncer"
)

const (
	// DefaultProbeInterval is how often the health endpoint is polled.
	DefaultProbeInterval = 10 * time.Second
	// DefaultSyncInterval is how often a periodic pass runs while online.
	DefaultSyncInterval = 2 * time.Minute
)

// Prober answers whether the backend is reachable right now.
type Prober interface {
	Health(ctx context.Context) error
}

// Monitor polls the backend and reports transitions to the engine and bus.
type Monitor struct {
	prober        Prober
	engine        *syncer.Engine
	bus           *event.Bus
	logger        *log.Logger
	probeInterval time.Duration
	syncInterval  time.Duration

	online bool
}

// New wires a monitor. Zero intervals fall back to the defaults; a nil
// logger falls back to stderr.
func New(prober Prober, engine *syncer.Engine, bus *event.Bus, probeInterval, syncInterval time.Duration, logger *log.Logger) *Monitor {
	if probeInterval <= 0 {
		probeInterval = DefaultProbeInterval
	}
	if syncInterval <= 0 {
		syncInterval = DefaultSyncInterval
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[netmon] ", log.LstdFlags)
	}
	return &Monitor{
		prober:        prober,
		engine:        engine,
		bus:           bus,
		logger:        logger,
		probeInterval: probeInterval,
		syncInterval:  syncInterval,
	}
}

// Online reports the last probe result.
func (m *Monitor) Online() bool { return m.online }

// Run probes until ctx is cancelled. The first probe fires immediately so
// startup does not wait a full interval to learn connectivity.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Printf("Monitoring backend every %s, periodic sync every %s",
		m.probeInterval, m.syncInterval)

	m.Probe(ctx)

	probeTicker := time.NewTicker(m.probeInterval)
	defer probeTicker.Stop()
	syncTicker := time.NewTicker(m.syncInterval)
	defer syncTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Printf("Monitor stopped")
			return
		case <-probeTicker.C:
			m.Probe(ctx)
		case <-syncTicker.C:
			if m.online {
				if err := m.engine.SyncPass(ctx); err != nil {
					m.logger.Printf("WARNING: periodic sync pass failed: %v", err)
				}
			}
		}
	}
}

// Probe performs one health check and handles any state transition.
func (m *Monitor) Probe(ctx context.Context) {
	err := m.prober.Health(ctx)
	nowOnline := err == nil

	if nowOnline == m.online {
		m.engine.SetOnline(nowOnline)
		return
	}
	m.online = nowOnline
	m.engine.SetOnline(nowOnline)

	if !nowOnline {
		m.logger.Printf("Backend unreachable: %v", err)
		m.bus.Emit(event.Event{Type: event.TypeOffline})
		return
	}

	m.logger.Printf("Backend reachable")

	// Catch up before announcing the transition, so subscribers reading
	// local state on "online" already see the reconciled store.
	if err := m.engine.InitialLoadIfNeeded(ctx); err != nil {
		m.logger.Printf("WARNING: initial load failed: %v", err)
	}
	if err := m.engine.SyncPass(ctx); err != nil {
		m.logger.Printf("WARNING: reconnect sync pass failed: %v", err)
	}
	m.bus.Emit(event.Event{Type: event.TypeOnline})
}
