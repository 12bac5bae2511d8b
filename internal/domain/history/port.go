package history

import "context"

// Repository port (interface for persistence)
type Repository interface {
	Save(ctx context.Context, rec *Record) error
	Latest(ctx context.Context, limit int) ([]*Record, error)
}
