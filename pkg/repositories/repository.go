package repositories

import (
	"context"
	"unicode/utf8"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/poppy/pkg/database"
)

// Repository provides common database operations
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new base repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// DB returns the database instance
func (r *Repository) DB() database.DB {
	return r.db
}

// conn returns the transaction carried by ctx, or the pool.
func (r *Repository) conn(ctx context.Context) database.Querier {
	return r.db.Conn(ctx)
}

// truncate cuts s to at most max characters without splitting a rune.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
