package store

import (
	"context"

	"github.com/avolkov/maildigest/internal/model"
)

// Store defines the persistence interface for cursor state, service
// settings, and run history. The digest pipeline is its only writer.
type Store interface {
	// === Cursor state ===

	// GetCursor returns the cursor for a folder (zero cursor if absent).
	GetCursor(ctx context.Context, folder string) (model.Cursor, error)

	// Reconcile adopts the observed UIDVALIDITY, resetting the cursor
	// to 0 on a mismatch, and returns the UID floor for this run.
	Reconcile(ctx context.Context, folder, observedUIDValidity string) (uint32, error)

	// AdvanceCursor moves the cursor forward; non-increasing values
	// are silent no-ops.
	AdvanceCursor(ctx context.Context, folder string, newLastUID uint32) error

	// === Settings ===

	GetPaused(ctx context.Context) (bool, error)
	SetPaused(ctx context.Context, paused bool) error

	// === Run history ===

	RecordRun(ctx context.Context, r model.RunRecord) error
	LastRun(ctx context.Context, folder string) (*model.RunRecord, error)
}
