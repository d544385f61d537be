package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/clinicaid/clinisync/internal/event"
	"github.com/clinicaid/clinisync/internal/store"
)

func TestUpdateDocumentMarksPending(t *testing.T) {
	b := newFakeBackend(t)
	engine, st, _ := newTestEngine(t, b)
	ctx := context.Background()

	doc := pendingPatient("Diallo", "PAT-0001")
	if err := engine.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	engine.SetOnline(false)
	doc.Fields["telephone"] = "770000000"
	if err := engine.UpdateDocument(ctx, doc); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := st.Get(doc.LocalID)
	if got.SyncStatus != store.StatusPending {
		t.Errorf("Expected pending status after offline edit, got %s", got.SyncStatus)
	}
	if !got.HasBackendID() {
		t.Error("Backend id must survive the edit")
	}
}

func TestUpdateDocumentOnlinePushes(t *testing.T) {
	b := newFakeBackend(t)
	engine, st, _ := newTestEngine(t, b)
	ctx := context.Background()

	doc := pendingPatient("Diallo", "PAT-0001")
	if err := engine.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	doc.Fields["telephone"] = "770000000"
	if err := engine.UpdateDocument(ctx, doc); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := st.Get(doc.LocalID)
	if got.SyncStatus != store.StatusSynced {
		t.Errorf("Expected synced status after online edit, got %s", got.SyncStatus)
	}
	row := b.patients[got.BackendID]
	if row == nil || row["telephone"] != "770000000" {
		t.Errorf("Expected the edit on the backend, got %v", row)
	}
}

func TestUpdateStaleRevisionRejected(t *testing.T) {
	b := newFakeBackend(t)
	engine, st, _ := newTestEngine(t, b)
	ctx := context.Background()

	doc := pendingPatient("Diallo", "PAT-0001")
	if err := engine.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	stale, _ := st.Get(doc.LocalID)
	fresh, _ := st.Get(doc.LocalID)
	fresh.Fields["telephone"] = "770000001"
	if err := engine.UpdateDocument(ctx, fresh); err != nil {
		t.Fatalf("First update failed: %v", err)
	}

	stale.Fields["telephone"] = "770000002"
	if err := engine.UpdateDocument(ctx, stale); !errors.Is(err, store.ErrConflict) {
		t.Errorf("Expected ErrConflict for stale update, got %v", err)
	}
}

func TestDeleteDocumentRemovesRemoteRow(t *testing.T) {
	b := newFakeBackend(t)
	engine, st, _ := newTestEngine(t, b)
	ctx := context.Background()

	doc := pendingPatient("Diallo", "PAT-0001")
	if err := engine.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	got, _ := st.Get(doc.LocalID)

	if err := engine.DeleteDocument(ctx, got.LocalID, got.Revision); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := st.Get(doc.LocalID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected local removal, got %v", err)
	}
	if len(b.patients) != 0 {
		t.Errorf("Expected remote row removed, got %d", len(b.patients))
	}
}

func TestDeleteDocumentOfflineIsLocalOnly(t *testing.T) {
	b := newFakeBackend(t)
	engine, st, _ := newTestEngine(t, b)
	ctx := context.Background()

	doc := pendingPatient("Diallo", "PAT-0001")
	if err := engine.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	got, _ := st.Get(doc.LocalID)

	engine.SetOnline(false)
	if err := engine.DeleteDocument(ctx, got.LocalID, got.Revision); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(b.patients) != 1 {
		t.Errorf("Remote row must survive an offline delete, got %d", len(b.patients))
	}
}

func TestCreateEmitsLifecycleEvent(t *testing.T) {
	b := newFakeBackend(t)
	engine, _, bus := newTestEngine(t, b)
	ctx := context.Background()

	var got event.Event
	bus.Subscribe(func(ev event.Event) {
		if ev.Type == event.DocumentType(store.EntityPatient, "created") {
			got = ev
		}
	})

	doc := pendingPatient("Diallo", "PAT-0001")
	if err := engine.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if got.LocalID != doc.LocalID {
		t.Errorf("Expected patient_created for %s, got %+v", doc.LocalID, got)
	}
}

func TestSearchPatients(t *testing.T) {
	b := newFakeBackend(t)
	engine, _, _ := newTestEngine(t, b)
	ctx := context.Background()
	engine.SetOnline(false)

	patients := []*store.Document{
		pendingPatient("Diallo", "PAT-0001"),
		pendingPatient("Traore", "PAT-0002"),
	}
	patients[1].Fields["telephone"] = "771234567"
	for _, p := range patients {
		if err := engine.CreateDocument(ctx, p); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	byName, err := engine.SearchPatients(ctx, "dial")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(byName) != 1 || byName[0].Field("nom") != "Diallo" {
		t.Errorf("Expected Diallo by name, got %d results", len(byName))
	}

	byPhone, err := engine.SearchPatients(ctx, "771234")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(byPhone) != 1 || byPhone[0].Field("nom") != "Traore" {
		t.Errorf("Expected Traore by phone, got %d results", len(byPhone))
	}

	all, err := engine.SearchPatients(ctx, "")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected all patients for empty query, got %d", len(all))
	}
}

func TestSearchPatientsOrderedByName(t *testing.T) {
	b := newFakeBackend(t)
	engine, _, _ := newTestEngine(t, b)
	ctx := context.Background()
	engine.SetOnline(false)

	for _, p := range []*store.Document{
		pendingPatient("Traore", "PAT-0001"),
		pendingPatient("diallo", "PAT-0002"),
		pendingPatient("Kone", "PAT-0003"),
	} {
		if err := engine.CreateDocument(ctx, p); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	docs, err := engine.SearchPatients(ctx, "")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	want := []string{"diallo", "Kone", "Traore"}
	if len(docs) != len(want) {
		t.Fatalf("Expected %d patients, got %d", len(want), len(docs))
	}
	for i, nom := range want {
		if docs[i].Field("nom") != nom {
			t.Errorf("Expected %q at position %d, got %q", nom, i, docs[i].Field("nom"))
		}
	}
}

func TestDisplayStatus(t *testing.T) {
	b := newFakeBackend(t)
	engine, _, _ := newTestEngine(t, b)

	doc := &store.Document{SyncStatus: store.StatusSynced}
	if got := engine.DisplayStatus(doc); got != "synced" {
		t.Errorf("Expected synced while online, got %q", got)
	}

	engine.SetOnline(false)
	if got := engine.DisplayStatus(doc); got != "offline" {
		t.Errorf("Expected offline while disconnected, got %q", got)
	}
}
