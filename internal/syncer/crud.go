package syncer

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/clinicaid/clinisync/internal/event"
	"github.com/clinicaid/clinisync/internal/store"
)

// CRUD façade. Every mutation lands in the local store first; the remote
// side is strictly opportunistic. A failed eager push leaves the document
// pending for the next pass, never an error for the caller.

// CreateDocument persists a new document locally and, when online,
// immediately attempts to push it.
func (e *Engine) CreateDocument(ctx context.Context, doc *store.Document) error {
	if doc.LocalID == "" {
		doc.LocalID = store.GenerateID(doc.EntityType)
	}
	doc.SyncStatus = store.StatusPending
	doc.Revision = 0

	if err := e.store.PutContext(ctx, doc); err != nil {
		return err
	}
	e.bus.Emit(event.Event{
		Type:     event.DocumentType(doc.EntityType, "created"),
		Entity:   doc.EntityType,
		Document: doc,
		LocalID:  doc.LocalID,
	})

	e.eagerPush(ctx, doc)
	return nil
}

// UpdateDocument persists an edit locally and, when online, immediately
// attempts to push it. The document must carry the revision it was read at.
func (e *Engine) UpdateDocument(ctx context.Context, doc *store.Document) error {
	doc.SyncStatus = store.StatusPending
	doc.UpdatedAt = time.Now().UTC()

	if err := e.store.PutContext(ctx, doc); err != nil {
		return err
	}
	e.bus.Emit(event.Event{
		Type:     event.DocumentType(doc.EntityType, "updated"),
		Entity:   doc.EntityType,
		Document: doc,
		LocalID:  doc.LocalID,
	})

	e.eagerPush(ctx, doc)
	return nil
}

// DeleteDocument removes the document locally and, for entity types with a
// remote delete endpoint, best-effort deletes the backend row as well. A
// failed remote delete is logged only; the local removal stands.
func (e *Engine) DeleteDocument(ctx context.Context, localID string, revision int64) error {
	doc, err := e.store.GetContext(ctx, localID)
	if err != nil {
		return err
	}
	if err := e.store.RemoveContext(ctx, localID, revision); err != nil {
		return err
	}
	e.bus.Emit(event.Event{
		Type:    event.DocumentType(doc.EntityType, "deleted"),
		Entity:  doc.EntityType,
		LocalID: localID,
	})

	if e.Online() && doc.HasBackendID() {
		var remoteErr error
		switch doc.EntityType {
		case store.EntityPatient:
			remoteErr = e.client.DeletePatient(ctx, doc.BackendID)
		case store.EntityConsultation:
			remoteErr = e.client.DeleteConsultation(ctx, doc.BackendID)
		}
		if remoteErr != nil {
			e.logger.Printf("WARNING: remote delete of %s (backend id %d) failed: %v",
				localID, doc.BackendID, remoteErr)
		}
	}
	return nil
}

// GetDocument fetches a single document by local id.
func (e *Engine) GetDocument(ctx context.Context, localID string) (*store.Document, error) {
	return e.store.GetContext(ctx, localID)
}

// ListDocuments queries the local store. Listing never touches the network.
func (e *Engine) ListDocuments(ctx context.Context, sel store.Selector) ([]*store.Document, error) {
	return e.store.FindContext(ctx, sel)
}

// SearchPatients filters local patients by a case-insensitive substring
// match over name, phone and patient number. Results come back ordered by
// family name.
func (e *Engine) SearchPatients(ctx context.Context, query string) ([]*store.Document, error) {
	docs, err := e.store.FindContext(ctx, store.Selector{
		EntityType: store.EntityPatient,
	})
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))

	matched := docs
	if query != "" {
		matched = nil
		for _, doc := range docs {
			for _, field := range []string{"nom", "prenom", "telephone", "numeroPatient"} {
				if strings.Contains(strings.ToLower(doc.Field(field)), query) {
					matched = append(matched, doc)
					break
				}
			}
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return strings.ToLower(matched[i].Field("nom")) < strings.ToLower(matched[j].Field("nom"))
	})
	return matched, nil
}

// DisplayStatus derives the status shown next to a document. The stored
// status never says "offline"; that state exists only relative to current
// connectivity.
func (e *Engine) DisplayStatus(doc *store.Document) string {
	if !e.Online() {
		return "offline"
	}
	return string(doc.SyncStatus)
}

// eagerPush tries to sync one freshly written document right away. Failure
// is routine (the document simply stays pending) and is logged at most.
func (e *Engine) eagerPush(ctx context.Context, doc *store.Document) {
	if !e.Online() {
		return
	}
	if err := e.pushOne(ctx, doc); err != nil {
		e.logger.Printf("Eager push of %s deferred to next pass: %v", doc.LocalID, err)
	}
}
