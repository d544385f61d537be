// Package syncer reconciles the local document store with the clinic
// backend.
//
// A sync pass pushes pending local documents, pulls backend rows that have
// no local counterpart, and emits sync phase events. Entity types are
// processed in a fixed dependency order (patients first) so that child
// records can resolve their parent's backend id before being pushed.
// Individual document failures are logged and skipped; they never abort the
// surrounding pass.
//
// The package also provides the CRUD façade the UI calls (see crud.go):
// local durability first, then an eager push attempt through the same
// routine the pass uses.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/clinicaid/clinisync/internal/event"
	"github.com/clinicaid/clinisync/internal/remote"
	"github.com/clinicaid/clinisync/internal/store"
	"github.com/clinicaid/clinisync/pkg/metrics"
)

// errParentPending marks a child document whose patient has no backend id
// yet. The document is skipped for this pass and retried on the next one.
var errParentPending = errors.New("parent patient not yet synced")

// ErrSyncInProgress is returned by ForceFullSync when a pass is already
// active. (A plain SyncPass request in that situation is silently dropped.)
var ErrSyncInProgress = errors.New("sync pass already in progress")

// Engine orchestrates bidirectional reconciliation.
type Engine struct {
	store  *store.Store
	client *remote.Client
	bus    *event.Bus
	logger *log.Logger

	mu     sync.Mutex
	active bool

	online          atomic.Bool
	initialLoadDone atomic.Bool
}

// NewEngine wires a sync engine. If logger is nil, a default logger writing
// to stderr is used.
func NewEngine(st *store.Store, client *remote.Client, bus *event.Bus, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Engine{store: st, client: client, bus: bus, logger: logger}
}

// SetOnline records current connectivity. The network monitor is the only
// expected caller.
func (e *Engine) SetOnline(online bool) {
	e.online.Store(online)
	if online {
		metrics.Online.Set(1)
	} else {
		metrics.Online.Set(0)
	}
}

// Online reports the last observed connectivity.
func (e *Engine) Online() bool { return e.online.Load() }

// InitialLoadDone reports whether the one-time bulk load has completed.
func (e *Engine) InitialLoadDone() bool { return e.initialLoadDone.Load() }

// tryActivate attempts to claim the single Active slot.
func (e *Engine) tryActivate() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		return false
	}
	e.active = true
	return true
}

func (e *Engine) deactivate() {
	e.mu.Lock()
	e.active = false
	e.mu.Unlock()
}

// SyncPass runs one full reconciliation pass.
//
// A pass requested while another is active is a no-op; callers that care
// should await the in-flight pass's completion via the event bus. A pass
// requested while offline is also a no-op. Per-document failures leave the
// document pending and the pass still completes; only a store-level failure
// ends the pass with a sync_error event.
func (e *Engine) SyncPass(ctx context.Context) error {
	if !e.Online() {
		e.logger.Printf("Offline - sync pass skipped")
		return nil
	}
	if !e.tryActivate() {
		e.logger.Printf("Sync pass already active - request dropped")
		return nil
	}
	defer e.deactivate()
	return e.runPass(ctx)
}

// runPass executes the pass body. The caller must hold the active slot.
func (e *Engine) runPass(ctx context.Context) error {
	passID := uuid.NewString()
	start := time.Now()

	e.logger.Printf("Starting sync pass %s", passID)
	e.bus.Emit(event.Event{Type: event.TypeSyncActive, PassID: passID})

	err := e.syncAllEntities(ctx, passID)

	metrics.PassDuration.Observe(time.Since(start).Seconds())
	e.updateBacklogGauge(ctx)

	if err != nil {
		metrics.SyncPasses.WithLabelValues("error").Inc()
		e.logger.Printf("Sync pass %s failed: %v", passID, err)
		e.bus.Emit(event.Event{Type: event.TypeSyncError, PassID: passID, Err: err})
		return err
	}

	metrics.SyncPasses.WithLabelValues("complete").Inc()
	e.logger.Printf("Sync pass %s complete in %s", passID, time.Since(start).Round(time.Millisecond))
	e.bus.Emit(event.Event{Type: event.TypeSyncComplete, PassID: passID})
	return nil
}

func (e *Engine) syncAllEntities(ctx context.Context, passID string) error {
	for _, entityType := range store.SyncOrder {
		if err := e.pushPhase(ctx, entityType); err != nil {
			return fmt.Errorf("push phase for %s: %w", entityType, err)
		}
		if err := e.pullPhase(ctx, entityType); err != nil {
			return fmt.Errorf("pull phase for %s: %w", entityType, err)
		}
	}
	return nil
}

// pushPhase retries every pending document of one entity type. Failures
// inside a single document's push step (remote rejection, missing parent,
// persist conflict) are logged per document and never returned; only the
// pending query itself can fail the phase.
func (e *Engine) pushPhase(ctx context.Context, entityType store.EntityType) error {
	if entityType == store.EntityUser {
		// Users are pull-only: accounts are created through the auth
		// register endpoint, never by sync.
		return nil
	}

	pending, err := e.store.FindContext(ctx, store.Selector{
		EntityType: entityType,
		SyncStatus: store.StatusPending,
	})
	if err != nil {
		return err
	}

	for _, doc := range pending {
		err := e.pushOne(ctx, doc)
		switch {
		case err == nil:
			metrics.DocumentsPushed.WithLabelValues(string(entityType), "synced").Inc()
		case errors.Is(err, errParentPending):
			metrics.DocumentsPushed.WithLabelValues(string(entityType), "skipped").Inc()
			e.logger.Printf("Skipping %s: %v", doc.LocalID, err)
		case errors.Is(err, store.ErrNotFound):
			// Orphaned child: its patient was deleted locally after the
			// child was written. It can never be pushed; leave it pending
			// and keep the pass moving.
			metrics.DocumentsPushed.WithLabelValues(string(entityType), "failed").Inc()
			e.logger.Printf("WARNING: %s is orphaned, skipping: %v", doc.LocalID, err)
		default:
			metrics.DocumentsPushed.WithLabelValues(string(entityType), "failed").Inc()
			e.logger.Printf("WARNING: failed to push %s: %v", doc.LocalID, err)
		}
	}
	return nil
}

// pushOne sends a single document to the backend and persists the result.
// It is shared between the pass's push phase and the CRUD façade's eager
// push so both paths behave identically.
func (e *Engine) pushOne(ctx context.Context, doc *store.Document) error {
	var parentBackendID int64
	if doc.EntityType.HasParent() {
		parent, err := e.store.GetContext(ctx, doc.PatientID)
		if err != nil {
			return fmt.Errorf("parent of %s: %w", doc.LocalID, err)
		}
		if !parent.HasBackendID() {
			return fmt.Errorf("%s waits for patient %s: %w", doc.LocalID, doc.PatientID, errParentPending)
		}
		parentBackendID = parent.BackendID
	}

	if doc.HasBackendID() {
		if err := e.pushUpdate(ctx, doc, parentBackendID); err != nil {
			return err
		}
		doc.SyncStatus = store.StatusSynced
		doc.UpdatedAt = time.Now().UTC()
		return e.persistPushResult(ctx, doc)
	}

	backendID, err := e.pushCreate(ctx, doc, parentBackendID)
	if err != nil {
		return err
	}
	doc.BackendID = backendID
	doc.SyncStatus = store.StatusSynced
	doc.UpdatedAt = time.Now().UTC()
	return e.persistPushResult(ctx, doc)
}

// persistPushResult writes the push outcome back to the store. When a UI
// edit raced the push (revision conflict), the newer edit wins: only the
// backend id is grafted onto the fresh document and its pending status is
// preserved so the edit is pushed on the next pass.
func (e *Engine) persistPushResult(ctx context.Context, doc *store.Document) error {
	err := e.store.PutContext(ctx, doc)
	if !errors.Is(err, store.ErrConflict) {
		return err
	}

	fresh, getErr := e.store.GetContext(ctx, doc.LocalID)
	if getErr != nil {
		return getErr
	}
	if fresh.HasBackendID() {
		return nil
	}
	fresh.BackendID = doc.BackendID
	return e.store.PutContext(ctx, fresh)
}

// pullPhase inserts backend rows that have no local counterpart.
// Remote failures are logged and skipped; the pull stays idempotent because
// existence is checked by backend id (and, for patients, patient number).
func (e *Engine) pullPhase(ctx context.Context, entityType store.EntityType) error {
	switch entityType {
	case store.EntityPatient:
		return e.pullPatients(ctx)
	case store.EntityConsultation:
		return e.pullConsultations(ctx)
	case store.EntityAntecedent, store.EntityVaccination, store.EntityNote:
		return e.pullChildren(ctx, entityType)
	case store.EntityUser:
		return e.pullUsers(ctx)
	}
	return nil
}

func (e *Engine) pullPatients(ctx context.Context) error {
	records, err := e.client.ListPatients(ctx)
	if err != nil {
		e.logger.Printf("WARNING: patient pull skipped: %v", err)
		return nil
	}

	local, err := e.store.FindContext(ctx, store.Selector{EntityType: store.EntityPatient})
	if err != nil {
		return err
	}
	byBackendID := make(map[int64]*store.Document)
	byNumero := make(map[string]*store.Document)
	for _, doc := range local {
		if doc.HasBackendID() {
			byBackendID[doc.BackendID] = doc
		}
		if n := doc.Field("numeroPatient"); n != "" {
			byNumero[n] = doc
		}
	}

	for _, rec := range records {
		if _, ok := byBackendID[rec.ID]; ok {
			continue
		}
		// Natural-key reconciliation: a patient created locally before the
		// backend knew it may already exist under its patient number. Adopt
		// the backend id instead of inserting a duplicate.
		if existing, ok := byNumero[rec.NumeroPatient]; ok && rec.NumeroPatient != "" {
			if !existing.HasBackendID() {
				existing.BackendID = rec.ID
				if err := e.store.PutContext(ctx, existing); err != nil {
					return err
				}
			}
			continue
		}
		if err := e.insertPulled(ctx, patientDocument(rec)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) pullConsultations(ctx context.Context) error {
	records, err := e.client.ListConsultations(ctx)
	if err != nil {
		e.logger.Printf("WARNING: consultation pull skipped: %v", err)
		return nil
	}
	for _, rec := range records {
		parent, err := e.patientByBackendID(ctx, rec.PatientID)
		if err != nil {
			return err
		}
		if parent == nil {
			e.logger.Printf("WARNING: no local patient for consultation %d (patient %d)", rec.ID, rec.PatientID)
			continue
		}
		exists, err := e.existsByBackendID(ctx, store.EntityConsultation, rec.ID)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := e.insertPulled(ctx, consultationDocument(rec, parent.LocalID)); err != nil {
			return err
		}
	}
	return nil
}

// pullChildren fetches patient sub-resources for every locally known
// patient that has a backend id.
func (e *Engine) pullChildren(ctx context.Context, entityType store.EntityType) error {
	hasID := true
	parents, err := e.store.FindContext(ctx, store.Selector{
		EntityType:   store.EntityPatient,
		HasBackendID: &hasID,
	})
	if err != nil {
		return err
	}

	for _, parent := range parents {
		if err := e.pullChildrenOf(ctx, entityType, parent); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) pullChildrenOf(ctx context.Context, entityType store.EntityType, parent *store.Document) error {
	type pulled struct {
		backendID int64
		doc       *store.Document
	}
	var records []pulled

	switch entityType {
	case store.EntityAntecedent:
		recs, err := e.client.ListAntecedents(ctx, parent.BackendID)
		if err != nil {
			e.logger.Printf("WARNING: antecedent pull skipped for patient %d: %v", parent.BackendID, err)
			return nil
		}
		for _, rec := range recs {
			records = append(records, pulled{rec.ID, antecedentDocument(rec, parent.LocalID)})
		}
	case store.EntityVaccination:
		recs, err := e.client.ListVaccinations(ctx, parent.BackendID)
		if err != nil {
			e.logger.Printf("WARNING: vaccination pull skipped for patient %d: %v", parent.BackendID, err)
			return nil
		}
		for _, rec := range recs {
			records = append(records, pulled{rec.ID, vaccinationDocument(rec, parent.LocalID)})
		}
	case store.EntityNote:
		recs, err := e.client.ListNotes(ctx, parent.BackendID)
		if err != nil {
			e.logger.Printf("WARNING: note pull skipped for patient %d: %v", parent.BackendID, err)
			return nil
		}
		for _, rec := range recs {
			records = append(records, pulled{rec.ID, noteDocument(rec, parent.LocalID)})
		}
	}

	for _, p := range records {
		exists, err := e.existsByBackendID(ctx, entityType, p.backendID)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := e.insertPulled(ctx, p.doc); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) pullUsers(ctx context.Context) error {
	records, err := e.client.ListUsers(ctx)
	if err != nil {
		e.logger.Printf("WARNING: user pull skipped: %v", err)
		return nil
	}

	local, err := e.store.FindContext(ctx, store.Selector{EntityType: store.EntityUser})
	if err != nil {
		return err
	}
	byEmail := make(map[string]bool)
	for _, doc := range local {
		byEmail[doc.Field("email")] = true
	}

	for _, rec := range records {
		if rec.Email == "" || byEmail[rec.Email] {
			continue
		}
		if err := e.insertPulled(ctx, userDocument(rec)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) insertPulled(ctx context.Context, doc *store.Document) error {
	if err := e.store.PutContext(ctx, doc); err != nil {
		return err
	}
	metrics.DocumentsPulled.WithLabelValues(string(doc.EntityType)).Inc()
	return nil
}

func (e *Engine) patientByBackendID(ctx context.Context, backendID int64) (*store.Document, error) {
	docs, err := e.store.FindContext(ctx, store.Selector{
		EntityType: store.EntityPatient,
		BackendID:  backendID,
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

func (e *Engine) existsByBackendID(ctx context.Context, entityType store.EntityType, backendID int64) (bool, error) {
	docs, err := e.store.FindContext(ctx, store.Selector{
		EntityType: entityType,
		BackendID:  backendID,
	})
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

// InitialLoadIfNeeded performs the one-time bulk load on first startup.
//
// The load runs only when the store holds no patients and no consultations
// and the backend is reachable; otherwise it is skipped and retried on the
// next online transition.
func (e *Engine) InitialLoadIfNeeded(ctx context.Context) error {
	if e.initialLoadDone.Load() {
		return nil
	}

	stats, err := e.store.GetStats(ctx)
	if err != nil {
		return err
	}
	if stats.TotalPatients > 0 || stats.TotalConsultations > 0 {
		e.initialLoadDone.Store(true)
		e.logger.Printf("Local store holds %d patients and %d consultations - initial load not needed",
			stats.TotalPatients, stats.TotalConsultations)
		return nil
	}
	if !e.Online() {
		e.logger.Printf("Offline - initial load deferred")
		return nil
	}

	e.logger.Printf("Empty local store - loading initial data from backend")
	if err := e.bulkLoad(ctx); err != nil {
		return err
	}
	e.initialLoadDone.Store(true)
	e.bus.Emit(event.Event{Type: event.TypeInitialLoadComplete})
	return nil
}

// bulkLoad mirrors the backend into the local store: patients first, then
// consultations resolved against the freshly inserted patients.
func (e *Engine) bulkLoad(ctx context.Context) error {
	if err := e.pullPatients(ctx); err != nil {
		return err
	}
	return e.pullConsultations(ctx)
}

// ForceFullSync destroys the local store, reloads it from the backend and
// runs a normal pass.
//
// Any pending local documents are unrecoverably lost; callers must obtain
// explicit user confirmation before invoking this. Unlike SyncPass, a
// concurrent pass makes this fail loudly rather than silently dropping the
// request.
func (e *Engine) ForceFullSync(ctx context.Context) error {
	if !e.Online() {
		return fmt.Errorf("full resync requires the backend to be reachable")
	}
	if !e.tryActivate() {
		return ErrSyncInProgress
	}
	defer e.deactivate()

	e.logger.Printf("Force full sync: destroying local store")
	if err := e.store.Destroy(ctx); err != nil {
		return err
	}
	if err := e.bulkLoad(ctx); err != nil {
		return err
	}
	e.initialLoadDone.Store(true)
	e.bus.Emit(event.Event{Type: event.TypeInitialLoadComplete})

	return e.runPass(ctx)
}

// Status summarizes the engine and store state for displays.
type Status struct {
	store.Stats
	IsOnline        bool `json:"isOnline"`
	InitialLoadDone bool `json:"initialLoadDone"`
}

// GetStatus returns store stats plus connectivity and load state.
func (e *Engine) GetStatus(ctx context.Context) (Status, error) {
	stats, err := e.store.GetStats(ctx)
	if err != nil {
		return Status{}, err
	}
	metrics.PendingBacklog.Set(float64(stats.PendingSync))
	return Status{
		Stats:           stats,
		IsOnline:        e.Online(),
		InitialLoadDone: e.InitialLoadDone(),
	}, nil
}

func (e *Engine) updateBacklogGauge(ctx context.Context) {
	if stats, err := e.store.GetStats(ctx); err == nil {
		metrics.PendingBacklog.Set(float64(stats.PendingSync))
	}
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
