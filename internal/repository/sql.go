package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"
)

// SQLRepository holds what every database/sql backed repository shares.
// Queries use $n placeholders, which postgres and sqlite3 both accept.
type SQLRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSQLRepository(db *sql.DB, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{
		db:     db,
		logger: logger,
	}
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return r.db.PingContext(ctx)
}

func (r *SQLRepository) Close() error {
	return r.db.Close()
}
