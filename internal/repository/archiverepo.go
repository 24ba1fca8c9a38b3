// Package repository defines persistence ports for archive records.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/arc-keeper/internal/model"
)

// ArchiveRepository is the durable store of archive records.
//
// Records are value snapshots: mutations happen on a copy and become durable
// only through Save. Save detects no-change writes and skips them.
type ArchiveRepository interface {
	// List returns all records sorted by creation time, newest first.
	List(ctx context.Context) ([]*model.Archive, error)

	// Get returns one record by id; errs.ErrRecordNotFound if absent.
	Get(ctx context.Context, id uuid.UUID) (*model.Archive, error)

	// Save inserts or replaces a record. Saving an unchanged record is a no-op.
	Save(ctx context.Context, a *model.Archive) error

	// SaveAll persists a batch of records in one pass.
	SaveAll(ctx context.Context, archives []*model.Archive) error

	// Delete removes a record by id; errs.ErrRecordNotFound if absent.
	Delete(ctx context.Context, id uuid.UUID) error
}
