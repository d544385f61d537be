package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/clinicaid/clinisync/internal/remote"
	"github.com/clinicaid/clinisync/internal/store"
)

type testEnv struct {
	svc    *Service
	creds  *CredentialStore
	docs   *store.Store
	online bool
	logins int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{}

	dir := t.TempDir()
	creds, err := OpenCredentials(filepath.Join(dir, "credentials.db"))
	if err != nil {
		t.Fatalf("Failed to open credential store: %v", err)
	}
	t.Cleanup(func() { _ = creds.Close() })

	docs, err := store.Open(filepath.Join(dir, "documents.db"))
	if err != nil {
		t.Fatalf("Failed to open document store: %v", err)
	}
	t.Cleanup(func() { _ = docs.Close() })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/api/auth/login" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		env.logins++
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "doc@clinic.test" || body["password"] != "secret123" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Identifiants invalides"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token": "jwt",
			"user": map[string]any{
				"id": 7, "email": "doc@clinic.test", "role": "medecin",
				"nom": "Keita", "prenom": "Fatou",
			},
		})
	}))
	t.Cleanup(srv.Close)

	quiet := log.New(io.Discard, "", 0)
	client := remote.New(srv.URL, 5*time.Second, quiet)
	env.creds = creds
	env.docs = docs
	env.svc = NewService(creds, docs, client, func() bool { return env.online }, quiet)
	return env
}

func (env *testEnv) addUserRecord(t *testing.T, email string) {
	t.Helper()
	doc := &store.Document{
		LocalID:    store.GenerateID(store.EntityUser),
		EntityType: store.EntityUser,
		BackendID:  7,
		SyncStatus: store.StatusSynced,
		Fields:     map[string]any{"email": email, "role": "medecin"},
	}
	if err := env.docs.Put(doc); err != nil {
		t.Fatalf("Failed to insert user record: %v", err)
	}
}

func TestOfflineLoginWithCachedCredentials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := User{ID: 7, Email: "doc@clinic.test", Role: "medecin", Nom: "Keita", Prenom: "Fatou"}
	if err := env.svc.StoreCredentials(ctx, user, "secret123"); err != nil {
		t.Fatalf("StoreCredentials failed: %v", err)
	}

	got, err := env.svc.AuthenticateLocally(ctx, "doc@clinic.test", "secret123")
	if err != nil {
		t.Fatalf("Offline login failed: %v", err)
	}
	if got.ID != 7 || got.Role != "medecin" {
		t.Errorf("Unexpected user: %+v", got)
	}
	if env.logins != 0 {
		t.Errorf("Cached credential login must not hit the backend, got %d calls", env.logins)
	}
}

func TestOfflineLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := User{ID: 7, Email: "doc@clinic.test", Role: "medecin"}
	if err := env.svc.StoreCredentials(ctx, user, "secret123"); err != nil {
		t.Fatalf("StoreCredentials failed: %v", err)
	}

	if _, err := env.svc.AuthenticateLocally(ctx, "doc@clinic.test", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.AuthenticateLocally(context.Background(), "nobody@clinic.test", "x")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

func TestSyncedUserWithoutHashNeedsBackend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUserRecord(t, "doc@clinic.test")

	_, err := env.svc.AuthenticateLocally(ctx, "doc@clinic.test", "secret123")
	if !errors.Is(err, ErrOfflineAuthUnavailable) {
		t.Errorf("Expected ErrOfflineAuthUnavailable while offline, got %v", err)
	}
}

func TestOnlineLoginCachesCredential(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUserRecord(t, "doc@clinic.test")
	env.online = true

	user, err := env.svc.AuthenticateLocally(ctx, "doc@clinic.test", "secret123")
	if err != nil {
		t.Fatalf("Online login failed: %v", err)
	}
	if user.Nom != "Keita" {
		t.Errorf("Expected backend user payload, got %+v", user)
	}
	if env.logins != 1 {
		t.Errorf("Expected 1 backend login, got %d", env.logins)
	}

	// The credential is now cached: the same login works offline.
	env.online = false
	if _, err := env.svc.AuthenticateLocally(ctx, "doc@clinic.test", "secret123"); err != nil {
		t.Errorf("Expected offline login after online success, got %v", err)
	}
	if env.logins != 1 {
		t.Errorf("Offline login must not call the backend again, got %d", env.logins)
	}
}

func TestOnlineLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUserRecord(t, "doc@clinic.test")
	env.online = true

	_, err := env.svc.AuthenticateLocally(ctx, "doc@clinic.test", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials from backend 401, got %v", err)
	}
}

func TestHasAndClearCredentials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	has, err := env.svc.HasCredentials(ctx, "doc@clinic.test")
	if err != nil || has {
		t.Errorf("Expected no credentials initially, got has=%v err=%v", has, err)
	}

	user := User{ID: 7, Email: "doc@clinic.test", Role: "medecin"}
	if err := env.svc.StoreCredentials(ctx, user, "secret123"); err != nil {
		t.Fatalf("StoreCredentials failed: %v", err)
	}
	has, _ = env.svc.HasCredentials(ctx, "doc@clinic.test")
	if !has {
		t.Error("Expected credentials after store")
	}

	if err := env.svc.ClearCredentials(ctx); err != nil {
		t.Fatalf("ClearCredentials failed: %v", err)
	}
	has, _ = env.svc.HasCredentials(ctx, "doc@clinic.test")
	if has {
		t.Error("Expected no credentials after clear")
	}
}

func TestPlaintextNeverPersisted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := User{ID: 7, Email: "doc@clinic.test", Role: "medecin"}
	if err := env.svc.StoreCredentials(ctx, user, "secret123"); err != nil {
		t.Fatalf("StoreCredentials failed: %v", err)
	}

	cred, err := env.creds.GetByEmail(ctx, "doc@clinic.test")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if cred.PasswordHash == "secret123" {
		t.Error("Password must be stored as a hash")
	}
	if len(cred.PasswordHash) < 30 {
		t.Errorf("Expected a bcrypt hash, got %q", cred.PasswordHash)
	}
}
