package netmon

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/clinicaid/clinisync/internal/event"
	"github.com/clinicaid/clinisync/internal/remote"
	"github.com/clinicaid/clinisync/internal/store"
	"github.com/clinicaid/clinisync/internal/syncer"
)

// fakeProber flips reachability without a real backend.
type fakeProber struct {
	err error
}

func (p *fakeProber) Health(ctx context.Context) error { return p.err }

func newTestMonitor(t *testing.T, prober Prober) (*Monitor, *syncer.Engine, *event.Bus) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "documents.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	quiet := log.New(io.Discard, "", 0)
	client := remote.New("http://127.0.0.1:1", time.Second, quiet)
	bus := event.NewBus(quiet)
	engine := syncer.NewEngine(st, client, bus, quiet)

	// Put something in the store so the initial load path is a no-op and
	// never reaches the unreachable client.
	doc := &store.Document{
		LocalID:    store.GenerateID(store.EntityPatient),
		EntityType: store.EntityPatient,
		SyncStatus: store.StatusSynced,
		BackendID:  1,
		Fields:     map[string]any{"nom": "Diallo"},
	}
	if err := st.Put(doc); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	return New(prober, engine, bus, time.Minute, time.Minute, quiet), engine, bus
}

func TestProbeOnlineTransition(t *testing.T) {
	prober := &fakeProber{err: errors.New("connection refused")}
	monitor, engine, bus := newTestMonitor(t, prober)
	ctx := context.Background()

	var types []event.Type
	bus.Subscribe(func(ev event.Event) {
		if ev.Type == event.TypeOnline || ev.Type == event.TypeOffline {
			types = append(types, ev.Type)
		}
	})

	monitor.Probe(ctx)
	if monitor.Online() || engine.Online() {
		t.Error("Expected offline after failing probe")
	}
	if len(types) != 0 {
		t.Errorf("Initial offline state must not emit a transition, got %v", types)
	}

	prober.err = nil
	monitor.Probe(ctx)
	if !monitor.Online() || !engine.Online() {
		t.Error("Expected online after successful probe")
	}
	if len(types) != 1 || types[0] != event.TypeOnline {
		t.Errorf("Expected a single online event, got %v", types)
	}

	// Steady state: no repeat events.
	monitor.Probe(ctx)
	if len(types) != 1 {
		t.Errorf("Repeated online probes must not re-emit, got %v", types)
	}
}

func TestOnlineEmittedAfterReconnectPass(t *testing.T) {
	prober := &fakeProber{err: errors.New("connection refused")}
	monitor, _, bus := newTestMonitor(t, prober)
	ctx := context.Background()

	var types []event.Type
	bus.Subscribe(func(ev event.Event) {
		types = append(types, ev.Type)
	})

	monitor.Probe(ctx)
	prober.err = nil
	monitor.Probe(ctx)

	// Subscribers reading local state on "online" must already see the
	// reconnect pass's result, so the pass events come first.
	onlineAt, completeAt := -1, -1
	for i, typ := range types {
		switch typ {
		case event.TypeOnline:
			onlineAt = i
		case event.TypeSyncComplete:
			completeAt = i
		}
	}
	if completeAt == -1 {
		t.Fatalf("Expected a sync_complete from the reconnect pass, got %v", types)
	}
	if onlineAt == -1 {
		t.Fatalf("Expected an online event, got %v", types)
	}
	if onlineAt < completeAt {
		t.Errorf("Online must be emitted after the reconnect pass, got %v", types)
	}
}

func TestProbeOfflineTransition(t *testing.T) {
	prober := &fakeProber{}
	monitor, engine, bus := newTestMonitor(t, prober)
	ctx := context.Background()

	var offline bool
	bus.Subscribe(func(ev event.Event) {
		if ev.Type == event.TypeOffline {
			offline = true
		}
	})

	monitor.Probe(ctx)
	if !monitor.Online() {
		t.Fatal("Expected online after successful probe")
	}

	prober.err = errors.New("timeout")
	monitor.Probe(ctx)
	if monitor.Online() || engine.Online() {
		t.Error("Expected offline after failed probe")
	}
	if !offline {
		t.Error("Expected an offline event on the transition")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	prober := &fakeProber{err: errors.New("down")}
	monitor, _, _ := newTestMonitor(t, prober)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		monitor.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}
