package event

import (
	"io"
	"log"
	"testing"

	"github.com/clinicaid/clinisync/internal/store"
)

func newTestBus() *Bus {
	return NewBus(log.New(io.Discard, "", 0))
}

func TestEmitDeliversInRegistrationOrder(t *testing.T) {
	bus := newTestBus()

	var order []int
	bus.Subscribe(func(Event) { order = append(order, 1) })
	bus.Subscribe(func(Event) { order = append(order, 2) })
	bus.Subscribe(func(Event) { order = append(order, 3) })

	bus.Emit(Event{Type: TypeOnline})

	if len(order) != 3 {
		t.Fatalf("Expected 3 deliveries, got %d", len(order))
	}
	for i, got := range order {
		if got != i+1 {
			t.Errorf("Expected delivery order 1,2,3, got %v", order)
			break
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := newTestBus()

	var first, second int
	unsubscribe := bus.Subscribe(func(Event) { first++ })
	bus.Subscribe(func(Event) { second++ })

	bus.Emit(Event{Type: TypeSyncComplete})
	unsubscribe()
	bus.Emit(Event{Type: TypeSyncComplete})

	if first != 1 {
		t.Errorf("Expected 1 delivery to unsubscribed handler, got %d", first)
	}
	if second != 2 {
		t.Errorf("Expected 2 deliveries to remaining handler, got %d", second)
	}
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	bus := newTestBus()

	var delivered bool
	bus.Subscribe(func(Event) { panic("handler bug") })
	bus.Subscribe(func(Event) { delivered = true })

	bus.Emit(Event{Type: TypeOffline})

	if !delivered {
		t.Error("Expected delivery to continue past a panicking subscriber")
	}
}

func TestDocumentType(t *testing.T) {
	if got := DocumentType(store.EntityPatient, "created"); got != Type("patient_created") {
		t.Errorf("Expected patient_created, got %s", got)
	}
	if got := DocumentType(store.EntityVaccination, "deleted"); got != Type("vaccination_deleted") {
		t.Errorf("Expected vaccination_deleted, got %s", got)
	}
}

func TestDocumentEventPayload(t *testing.T) {
	bus := newTestBus()

	var got Event
	bus.Subscribe(func(ev Event) { got = ev })

	doc := &store.Document{LocalID: "patient_1_abc", EntityType: store.EntityPatient}
	bus.Emit(Event{
		Type:     DocumentType(store.EntityPatient, "created"),
		Entity:   store.EntityPatient,
		Document: doc,
		LocalID:  doc.LocalID,
	})

	if got.Document != doc {
		t.Error("Expected the emitted document pointer to be delivered")
	}
	if got.LocalID != "patient_1_abc" {
		t.Errorf("Expected local id payload, got %q", got.LocalID)
	}
}
