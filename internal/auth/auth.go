// Package auth implements login with an offline fallback.
//
// On a successful online login (when the caller elects to be remembered) a
// bcrypt hash of the password is cached in a dedicated credential database.
// When the backend is unreachable, authentication verifies against that
// cached hash instead. A user known only from a synced user record (no
// cached hash) can only authenticate online; the first success through that
// path caches a credential opportunistically for future offline use.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/clinicaid/clinisync/internal/remote"
	"github.com/clinicaid/clinisync/internal/store"
)

// bcryptCost matches the backend's hashing cost.
const bcryptCost = 10

var (
	// ErrUserNotFound means no cached credential and no synced user record
	// exist for the email.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrInvalidCredentials means the password did not match.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrOfflineAuthUnavailable means the user is known only from a synced
	// user record and the backend is unreachable, so there is nothing to
	// verify the password against.
	ErrOfflineAuthUnavailable = errors.New("auth: offline authentication unavailable for this user")
)

// User is the authenticated identity returned to the caller.
type User struct {
	ID     int64  `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Nom    string `json:"nom"`
	Prenom string `json:"prenom"`
}

// Service resolves logins against the credential cache, the synced user
// records and, when reachable, the backend.
type Service struct {
	creds  *CredentialStore
	docs   *store.Store
	client *remote.Client
	online func() bool
	logger *log.Logger
}

// NewService wires the auth service. online reports current connectivity as
// observed by the network monitor. If logger is nil, a default logger
// writing to stderr is used.
func NewService(creds *CredentialStore, docs *store.Store, client *remote.Client, online func() bool, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stderr, "[auth] ", log.LstdFlags)
	}
	return &Service{creds: creds, docs: docs, client: client, online: online, logger: logger}
}

// StoreCredentials hashes password with bcrypt and caches it for user,
// overwriting any prior entry for the same email. The plaintext never
// reaches disk.
func (s *Service) StoreCredentials(ctx context.Context, user User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	cred := &Credential{
		UserID:       user.ID,
		Email:        user.Email,
		PasswordHash: string(hash),
		Role:         user.Role,
		Nom:          user.Nom,
		Prenom:       user.Prenom,
	}
	if err := s.creds.Save(ctx, cred); err != nil {
		return err
	}
	s.logger.Printf("Cached credentials for %s", user.Email)
	return nil
}

// AuthenticateLocally verifies email/password without assuming backend
// reachability.
//
// Resolution order: cached credential (hash comparison), then synced user
// record (requires an online round trip, which re-caches the credential on
// success). Errors: ErrUserNotFound, ErrInvalidCredentials,
// ErrOfflineAuthUnavailable.
func (s *Service) AuthenticateLocally(ctx context.Context, email, password string) (*User, error) {
	cred, err := s.creds.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
			return nil, ErrInvalidCredentials
		}
		return &User{
			ID:     cred.UserID,
			Email:  cred.Email,
			Role:   cred.Role,
			Nom:    cred.Nom,
			Prenom: cred.Prenom,
		}, nil
	case !errors.Is(err, ErrNoCredential):
		return nil, err
	}

	// No cached hash. A synced user record proves the account exists but
	// holds no verifiable secret, so this path needs the backend.
	userDoc, err := s.findUserRecord(ctx, email)
	if err != nil {
		return nil, err
	}
	if userDoc == nil {
		return nil, ErrUserNotFound
	}
	if !s.online() {
		return nil, ErrOfflineAuthUnavailable
	}

	resp, err := s.client.Login(ctx, email, password)
	if err != nil {
		var apiErr *remote.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 401 {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("online authentication failed: %w", err)
	}

	user := User{
		ID:     resp.User.ID,
		Email:  resp.User.Email,
		Role:   resp.User.Role,
		Nom:    resp.User.Nom,
		Prenom: resp.User.Prenom,
	}

	// Cache for future offline logins. Failure here is not a login failure.
	if err := s.StoreCredentials(ctx, user, password); err != nil {
		s.logger.Printf("WARNING: failed to cache credentials for %s: %v", email, err)
	}
	return &user, nil
}

// HasCredentials reports whether an offline login is possible for email.
func (s *Service) HasCredentials(ctx context.Context, email string) (bool, error) {
	return s.creds.Has(ctx, email)
}

// ClearCredentials removes every cached credential.
func (s *Service) ClearCredentials(ctx context.Context) error {
	if err := s.creds.Clear(ctx); err != nil {
		return err
	}
	s.logger.Printf("Local credentials cleared")
	return nil
}

func (s *Service) findUserRecord(ctx context.Context, email string) (*store.Document, error) {
	docs, err := s.docs.FindContext(ctx, store.Selector{EntityType: store.EntityUser})
	if err != nil {
		return nil, fmt.Errorf("failed to query user records: %w", err)
	}
	for _, doc := range docs {
		if doc.Field("email") == email {
			return doc, nil
		}
	}
	return nil, nil
}
