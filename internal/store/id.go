package store

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateID returns a new local document identifier of the form
// {entityType}_{epochMillis}_{9-char base36}.
//
// The timestamp plus 9 random base36 characters make collisions negligible
// within a process lifetime; no existence re-check is performed before insert.
func GenerateID(entityType EntityType) string {
	var b strings.Builder
	for i := 0; i < 9; i++ {
		b.WriteByte(base36[rand.Intn(len(base36))])
	}
	return fmt.Sprintf("%s_%d_%s", entityType, time.Now().UnixMilli(), b.String())
}

// ResolveBackendID reads the document and returns its backend row id.
// It returns 0 with a nil error when the document exists but has not been
// accepted by the backend yet; callers must treat 0 as "not yet safe to
// reference remotely". A missing document returns ErrNotFound.
func (s *Store) ResolveBackendID(localID string) (int64, error) {
	doc, err := s.Get(localID)
	if err != nil {
		return 0, err
	}
	return doc.BackendID, nil
}
