package out

import (
	"context"

	"inbox_worker/core/domain"
)

// SheetStore is the outbound port for the external tabular store.
// Reads and writes operate on the whole data range; the sync engine owns
// deduplication and change detection.
type SheetStore interface {
	ReadRows(ctx context.Context) ([]domain.SheetRow, error)
	WriteRows(ctx context.Context, rows []domain.SheetRow) error
}
