// Package store provides the local document store for clinic records.
//
// All domain records (patients, consultations, antecedents, vaccinations,
// notes, users) share one envelope and live in a single SQLite database,
// discriminated by entity type. The store is the source of truth while the
// application is offline; the sync engine reconciles it against the clinic
// backend whenever connectivity allows.
//
// Documents are keyed by a locally generated string id and carry a
// store-managed integer revision. Every mutation must present the revision it
// read; a stale revision fails with ErrConflict.
package store

import (
	"fmt"
	"time"
)

// EntityType discriminates the kind of record held in a document envelope.
type EntityType string

const (
	EntityPatient      EntityType = "patient"
	EntityConsultation EntityType = "consultation"
	EntityAntecedent   EntityType = "antecedent"
	EntityVaccination  EntityType = "vaccination"
	EntityNote         EntityType = "note"
	EntityUser         EntityType = "user"
)

// SyncOrder is the fixed order entity types are reconciled in. Child entities
// reference a patient's backend id, so patients must be resolved first.
var SyncOrder = []EntityType{
	EntityPatient,
	EntityConsultation,
	EntityAntecedent,
	EntityVaccination,
	EntityNote,
	EntityUser,
}

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	switch t {
	case EntityPatient, EntityConsultation, EntityAntecedent,
		EntityVaccination, EntityNote, EntityUser:
		return true
	}
	return false
}

// HasParent reports whether documents of this type reference a patient.
func (t EntityType) HasParent() bool {
	switch t {
	case EntityConsultation, EntityAntecedent, EntityVaccination, EntityNote:
		return true
	}
	return false
}

// SyncStatus is the stored synchronization state of a document.
//
// "offline" is deliberately not a stored status: it is derived at display
// time from current connectivity (see syncer.DisplayStatus).
type SyncStatus string

const (
	// StatusPending means the local copy has changes not yet confirmed by
	// the backend. Pending documents are retried on every sync pass.
	StatusPending SyncStatus = "pending"
	// StatusSynced means the last known local state matches, or was derived
	// from, the backend state.
	StatusSynced SyncStatus = "synced"
)

// Document is the common envelope shared by all local records.
//
// Entity-specific fields (nom, diagnostic, vaccin, lot, ...) live in Fields
// and are persisted as JSON; the envelope columns are what the store indexes
// and what the sync engine keys on.
type Document struct {
	// LocalID is the immutable local primary key,
	// format {entityType}_{epochMillis}_{9-char base36}.
	LocalID string `json:"localId"`

	// EntityType discriminates the record kind.
	EntityType EntityType `json:"entityType"`

	// BackendID is the relational row id assigned by the backend, zero until
	// the record has been accepted remotely. Once set it never changes.
	BackendID int64 `json:"backendId,omitempty"`

	// PatientID references the parent patient's LocalID for child entities.
	// Relationships are always expressed in local identity space.
	PatientID string `json:"patientId,omitempty"`

	SyncStatus SyncStatus `json:"syncStatus"`

	// Revision is managed by the store. Updates and removes must present the
	// revision they read; zero means "not yet persisted".
	Revision int64 `json:"revision"`

	// Fields holds the entity-specific payload.
	Fields map[string]any `json:"fields"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasBackendID reports whether the document has been assigned a backend row id.
func (d *Document) HasBackendID() bool { return d.BackendID != 0 }

// Field returns the string value of an entity-specific field, or "" when the
// field is absent or not a string.
func (d *Document) Field(name string) string {
	if d.Fields == nil {
		return ""
	}
	s, _ := d.Fields[name].(string)
	return s
}

// FieldTime parses an entity-specific field as an RFC 3339 timestamp.
// The zero time is returned for absent or malformed values so callers can use
// it directly as a sort key.
func (d *Document) FieldTime(name string) time.Time {
	t, err := time.Parse(time.RFC3339, d.Field(name))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Validate checks the envelope invariants before persisting.
func (d *Document) Validate() error {
	if d.LocalID == "" {
		return fmt.Errorf("localId is required")
	}
	if !d.EntityType.Valid() {
		return fmt.Errorf("unknown entity type %q", d.EntityType)
	}
	if d.SyncStatus != StatusPending && d.SyncStatus != StatusSynced {
		return fmt.Errorf("invalid sync status %q", d.SyncStatus)
	}
	if d.EntityType.HasParent() && d.PatientID == "" {
		return fmt.Errorf("%s requires a patientId", d.EntityType)
	}
	return nil
}
