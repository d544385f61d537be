package syncer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/clinicaid/clinisync/internal/remote"
	"github.com/clinicaid/clinisync/internal/store"
)

// Mapping between the local document envelope and the backend wire types.
// Push builds the whitelisted request set from a document's fields; pull
// wraps a backend row in a new synced envelope. Only whitelisted fields
// cross the wire; local bookkeeping never leaks to the backend.

func fieldInt64(doc *store.Document, name string) int64 {
	switch v := doc.Fields[name].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

func patientRequest(doc *store.Document) remote.PatientRequest {
	return remote.PatientRequest{
		Nom:                   doc.Field("nom"),
		Prenom:                doc.Field("prenom"),
		DateNaissance:         doc.Field("dateNaissance"),
		Sexe:                  doc.Field("sexe"),
		Telephone:             doc.Field("telephone"),
		Adresse:               doc.Field("adresse"),
		Profession:            doc.Field("profession"),
		SituationMatrimoniale: doc.Field("situationMatrimoniale"),
		ContactUrgence:        doc.Field("contactUrgence"),
		NumeroPatient:         doc.Field("numeroPatient"),
	}
}

func patientDocument(rec remote.PatientRecord) *store.Document {
	return &store.Document{
		LocalID:    store.GenerateID(store.EntityPatient),
		EntityType: store.EntityPatient,
		BackendID:  rec.ID,
		SyncStatus: store.StatusSynced,
		Fields: map[string]any{
			"nom":                   rec.Nom,
			"prenom":                rec.Prenom,
			"dateNaissance":         rec.DateNaissance,
			"sexe":                  rec.Sexe,
			"telephone":             rec.Telephone,
			"adresse":               rec.Adresse,
			"profession":            rec.Profession,
			"situationMatrimoniale": rec.SituationMatrimoniale,
			"contactUrgence":        rec.ContactUrgence,
			"numeroPatient":         rec.NumeroPatient,
			"dateEnregistrement":    rec.DateEnregistrement,
			"lastVisit":             rec.LastVisit,
		},
		CreatedAt: parseTimestamp(rec.CreatedAt),
		UpdatedAt: parseTimestamp(rec.UpdatedAt),
	}
}

func consultationRequest(doc *store.Document, patientBackendID int64) remote.ConsultationRequest {
	return remote.ConsultationRequest{
		PatientID:             patientBackendID,
		Date:                  doc.Field("dateConsultation"),
		Motif:                 doc.Field("motif"),
		Symptomes:             doc.Field("symptomes"),
		Diagnostic:            doc.Field("diagnostic"),
		Traitement:            doc.Field("traitement"),
		Observations:          doc.Field("observations"),
		Duree:                 fieldInt64(doc, "duree"),
		ProchainRdv:           doc.Field("prochainRdv"),
		Medecin:               doc.Field("medecin"),
		Status:                doc.Field("status"),
		Poids:                 doc.Field("poids"),
		Taille:                doc.Field("taille"),
		Tension:               doc.Field("tension"),
		Temperature:           doc.Field("temperature"),
		Pouls:                 doc.Field("pouls"),
		FrequenceRespiratoire: doc.Field("frequenceRespiratoire"),
	}
}

func consultationDocument(rec remote.ConsultationRecord, patientLocalID string) *store.Document {
	return &store.Document{
		LocalID:    store.GenerateID(store.EntityConsultation),
		EntityType: store.EntityConsultation,
		BackendID:  rec.ID,
		PatientID:  patientLocalID,
		SyncStatus: store.StatusSynced,
		Fields: map[string]any{
			"dateConsultation":      rec.Date,
			"motif":                 rec.Motif,
			"symptomes":             rec.Symptomes,
			"diagnostic":            rec.Diagnostic,
			"traitement":            rec.Traitement,
			"observations":          rec.Observations,
			"duree":                 rec.Duree,
			"prochainRdv":           rec.ProchainRdv,
			"medecin":               rec.Medecin,
			"status":                rec.Status,
			"poids":                 rec.Poids,
			"taille":                rec.Taille,
			"tension":               rec.Tension,
			"temperature":           rec.Temperature,
			"pouls":                 rec.Pouls,
			"frequenceRespiratoire": rec.FrequenceRespiratoire,
		},
		CreatedAt: parseTimestamp(rec.CreatedAt),
		UpdatedAt: parseTimestamp(rec.UpdatedAt),
	}
}

func antecedentRequest(doc *store.Document) remote.AntecedentRequest {
	return remote.AntecedentRequest{
		Type:        doc.Field("type"),
		Description: doc.Field("description"),
		Date:        doc.Field("date"),
	}
}

func antecedentDocument(rec remote.AntecedentRecord, patientLocalID string) *store.Document {
	return &store.Document{
		LocalID:    store.GenerateID(store.EntityAntecedent),
		EntityType: store.EntityAntecedent,
		BackendID:  rec.ID,
		PatientID:  patientLocalID,
		SyncStatus: store.StatusSynced,
		Fields: map[string]any{
			"type":        rec.Type,
			"description": rec.Description,
			"date":        rec.Date,
		},
		CreatedAt: parseTimestamp(rec.CreatedAt),
		UpdatedAt: parseTimestamp(rec.UpdatedAt),
	}
}

func vaccinationRequest(doc *store.Document) remote.VaccinationRequest {
	return remote.VaccinationRequest{
		Vaccin:             doc.Field("vaccin"),
		Lot:                doc.Field("lot"),
		DateAdministration: doc.Field("dateAdministration"),
		ProchainRappel:     doc.Field("prochainRappel"),
		AdministrePar:      doc.Field("administrePar"),
		Reactions:          doc.Field("reactions"),
	}
}

func vaccinationDocument(rec remote.VaccinationRecord, patientLocalID string) *store.Document {
	return &store.Document{
		LocalID:    store.GenerateID(store.EntityVaccination),
		EntityType: store.EntityVaccination,
		BackendID:  rec.ID,
		PatientID:  patientLocalID,
		SyncStatus: store.StatusSynced,
		Fields: map[string]any{
			"vaccin":             rec.Vaccin,
			"lot":                rec.Lot,
			"dateAdministration": rec.DateAdministration,
			"prochainRappel":     rec.ProchainRappel,
			"administrePar":      rec.AdministrePar,
			"reactions":          rec.Reactions,
			"status":             rec.Status,
		},
		CreatedAt: parseTimestamp(rec.CreatedAt),
		UpdatedAt: parseTimestamp(rec.UpdatedAt),
	}
}

func noteRequest(doc *store.Document) remote.NoteRequest {
	return remote.NoteRequest{
		Date:    doc.Field("date"),
		Auteur:  doc.Field("auteur"),
		Contenu: doc.Field("contenu"),
	}
}

func noteDocument(rec remote.NoteRecord, patientLocalID string) *store.Document {
	return &store.Document{
		LocalID:    store.GenerateID(store.EntityNote),
		EntityType: store.EntityNote,
		BackendID:  rec.ID,
		PatientID:  patientLocalID,
		SyncStatus: store.StatusSynced,
		Fields: map[string]any{
			"date":    rec.Date,
			"auteur":  rec.Auteur,
			"contenu": rec.Contenu,
		},
		CreatedAt: parseTimestamp(rec.CreatedAt),
		UpdatedAt: parseTimestamp(rec.UpdatedAt),
	}
}

func userDocument(rec remote.UserRecord) *store.Document {
	return &store.Document{
		LocalID:    store.GenerateID(store.EntityUser),
		EntityType: store.EntityUser,
		BackendID:  rec.ID,
		SyncStatus: store.StatusSynced,
		Fields: map[string]any{
			"email":    rec.Email,
			"username": rec.Username,
			"role":     rec.Role,
			"nom":      rec.Nom,
			"prenom":   rec.Prenom,
		},
		CreatedAt: parseTimestamp(rec.CreatedAt),
		UpdatedAt: parseTimestamp(rec.UpdatedAt),
	}
}

// pushCreate issues the remote create call for doc and returns the
// server-assigned row id.
func (e *Engine) pushCreate(ctx context.Context, doc *store.Document, parentBackendID int64) (int64, error) {
	switch doc.EntityType {
	case store.EntityPatient:
		return e.client.CreatePatient(ctx, patientRequest(doc))
	case store.EntityConsultation:
		return e.client.CreateConsultation(ctx, consultationRequest(doc, parentBackendID))
	case store.EntityAntecedent:
		return e.client.CreateAntecedent(ctx, parentBackendID, antecedentRequest(doc))
	case store.EntityVaccination:
		return e.client.CreateVaccination(ctx, parentBackendID, vaccinationRequest(doc))
	case store.EntityNote:
		return e.client.CreateNote(ctx, parentBackendID, noteRequest(doc))
	}
	return 0, fmt.Errorf("entity %s cannot be created remotely", doc.EntityType)
}

// pushUpdate issues the remote update call for an already-mapped document.
// Only patients and consultations have update endpoints; pending children
// that already carry a backend id have nothing further to send (their
// creation was acknowledged), so they are reported as up to date.
func (e *Engine) pushUpdate(ctx context.Context, doc *store.Document, parentBackendID int64) error {
	switch doc.EntityType {
	case store.EntityPatient:
		return e.client.UpdatePatient(ctx, doc.BackendID, patientRequest(doc))
	case store.EntityConsultation:
		return e.client.UpdateConsultation(ctx, doc.BackendID, consultationRequest(doc, parentBackendID))
	case store.EntityAntecedent, store.EntityVaccination, store.EntityNote:
		return nil
	}
	return fmt.Errorf("entity %s cannot be updated remotely", doc.EntityType)
}
