package download

import "context"

// HistoryRepository persists terminal download records. Append keeps at most
// limit records; List returns them most recent first.
type HistoryRepository interface {
	Append(ctx context.Context, rec Record, limit int) error
	List(ctx context.Context, limit int) ([]Record, error)
}
