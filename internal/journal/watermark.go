package journal

import (
	"context"
	"sync"
)

// MemoryWatermark keeps the watermark for the life of the process.
type MemoryWatermark struct {
	mu  sync.Mutex
	row int64
}

// Load returns the stored rowId.
func (w *MemoryWatermark) Load(context.Context) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.row, nil
}

// Save keeps rowID if it advances the watermark.
func (w *MemoryWatermark) Save(_ context.Context, rowID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rowID > w.row {
		w.row = rowID
	}
	return nil
}
