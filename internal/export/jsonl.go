// Package export moves the local document store to and from JSONL files.
//
// The format is one document envelope per line, in sync order, which makes
// exports diffable and lets a clinic carry its records to another machine
// on removable media. Import is additive: existing local ids are skipped,
// never overwritten.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/clinicaid/clinisync/internal/store"
)

// Result reports what an export or import actually did.
type Result struct {
	Documents     int
	Skipped       int
	BackupCreated string
}

// Options configures an import.
type Options struct {
	// DryRun parses and counts without writing to the store.
	DryRun bool
	// Backup copies the input file aside before importing.
	Backup bool
}

// Export writes every document to path as JSONL, entity types in sync order
// so an import replays parents before children. The file is written
// atomically via a temp file.
func Export(ctx context.Context, st *store.Store, path string) (*Result, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}

	result := &Result{}
	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)

	for _, entityType := range store.SyncOrder {
		docs, err := st.FindContext(ctx, store.Selector{EntityType: entityType})
		if err != nil {
			_ = file.Close()
			_ = os.Remove(tmpPath)
			return nil, err
		}
		for _, doc := range docs {
			if err := enc.Encode(doc); err != nil {
				_ = file.Close()
				_ = os.Remove(tmpPath)
				return nil, fmt.Errorf("failed to encode %s: %w", doc.LocalID, err)
			}
			result.Documents++
		}
	}

	if err := w.Flush(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to flush export: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to close export: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename export: %w", err)
	}
	return result, nil
}

// ReadJSONL parses a JSONL file into document envelopes.
func ReadJSONL(path string) ([]*store.Document, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	var docs []*store.Document
	dec := json.NewDecoder(file)
	line := 0
	for {
		var doc store.Document
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d: %w", line+1, err)
		}
		line++
		docs = append(docs, &doc)
	}
	return docs, nil
}

// Import replays a JSONL export into the store. Documents whose local id
// already exists are counted as skipped. Imported documents keep their sync
// status; a pending record stays pending and is pushed on the next pass.
func Import(ctx context.Context, st *store.Store, path string, opts Options) (*Result, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("input file does not exist: %w", err)
	}

	result := &Result{}
	if opts.Backup && !opts.DryRun {
		backupPath := path + ".backup." + time.Now().Format("20060102-150405")
		input, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read input for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0o600); err != nil {
			return nil, fmt.Errorf("failed to create backup: %w", err)
		}
		result.BackupCreated = backupPath
	}

	docs, err := ReadJSONL(path)
	if err != nil {
		return nil, err
	}

	for _, doc := range docs {
		if err := doc.Validate(); err != nil {
			return nil, fmt.Errorf("document %s: %w", doc.LocalID, err)
		}
		_, err := st.GetContext(ctx, doc.LocalID)
		switch {
		case err == nil:
			result.Skipped++
			continue
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
		if opts.DryRun {
			result.Documents++
			continue
		}
		doc.Revision = 0
		if err := st.PutContext(ctx, doc); err != nil {
			return nil, fmt.Errorf("failed to import %s: %w", doc.LocalID, err)
		}
		result.Documents++
	}
	return result, nil
}
