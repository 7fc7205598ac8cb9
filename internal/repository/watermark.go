// Package repository defines storage interfaces implemented by concrete backends.
package repository

import "context"

// WatermarkRepository persists the highest journal rowId already delivered
// for a consumer so restarts do not re-emit old entries.
type WatermarkRepository interface {
	// Load returns the stored rowId, or 0 when none is stored.
	Load(ctx context.Context) (int64, error)
	// Save stores rowID if it is greater than the stored value.
	Save(ctx context.Context, rowID int64) error
}
