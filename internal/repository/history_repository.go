package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/speech-sdk/internal/models"
	"github.com/RubachokBoss/speech-sdk/pkg/events"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type HistoryRepository interface {
	// Record folds one lifecycle event into the session's row.
	Record(ctx context.Context, event events.TaskEvent) error
	SetAudioKey(ctx context.Context, token, key string) error
	GetBySession(ctx context.Context, token string) (*models.SessionRecord, error)
	List(ctx context.Context, filter models.HistoryFilter) (*models.HistoryPage, error)
	Ping(ctx context.Context) error
	Close() error
}

type historyRepository struct {
	*SQLRepository
}

func NewHistoryRepository(db *sql.DB, logger zerolog.Logger) HistoryRepository {
	return &historyRepository{
		SQLRepository: NewSQLRepository(db, logger),
	}
}

func (r *historyRepository) Record(ctx context.Context, event events.TaskEvent) error {
	var result any
	if event.Stage == events.StageCompleted && event.Result != nil {
		data, err := json.Marshal(event.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal session result: %w", err)
		}
		result = string(data)
	}

	var finished any
	if event.Stage == events.StageCompleted || event.Stage == events.StageFailed {
		finished = event.Timestamp.UTC()
	}

	query := `
		INSERT INTO session_history (
			token, kind, challenge_id, remote_id, stage, step, error, result,
			audio_format, started_at, updated_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (token) DO UPDATE SET
			remote_id = CASE WHEN excluded.remote_id <> '' THEN excluded.remote_id ELSE session_history.remote_id END,
			stage = excluded.stage,
			step = CASE WHEN excluded.step <> '' THEN excluded.step ELSE session_history.step END,
			error = excluded.error,
			result = COALESCE(excluded.result, session_history.result),
			audio_format = CASE WHEN excluded.audio_format <> '' THEN excluded.audio_format ELSE session_history.audio_format END,
			updated_at = excluded.updated_at,
			finished_at = COALESCE(excluded.finished_at, session_history.finished_at)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.Session,
		event.Kind,
		event.ChallengeID,
		event.RemoteID,
		string(event.Stage),
		event.Step,
		event.Error,
		result,
		event.AudioFormat,
		event.Timestamp.UTC(),
		event.Timestamp.UTC(),
		finished,
	)
	if err != nil {
		return fmt.Errorf("failed to record session event: %w", err)
	}

	r.logger.Debug().
		Str("session", event.Session).
		Str("stage", string(event.Stage)).
		Msg("Session event recorded")

	return nil
}

func (r *historyRepository) SetAudioKey(ctx context.Context, token, key string) error {
	query := `UPDATE session_history SET audio_key = $1 WHERE token = $2`

	res, err := r.db.ExecContext(ctx, query, key, token)
	if err != nil {
		return fmt.Errorf("failed to store audio key: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s not found", token)
	}
	return nil
}

const historyColumns = `
	token, kind, challenge_id, remote_id, stage, step, error, result,
	audio_key, audio_format, started_at, updated_at, finished_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.SessionRecord, error) {
	var (
		rec      models.SessionRecord
		result   sql.NullString
		finished sql.NullTime
	)
	err := row.Scan(
		&rec.Token,
		&rec.Kind,
		&rec.ChallengeID,
		&rec.RemoteID,
		&rec.Stage,
		&rec.Step,
		&rec.Error,
		&result,
		&rec.AudioKey,
		&rec.AudioFormat,
		&rec.StartedAt,
		&rec.UpdatedAt,
		&finished,
	)
	if err != nil {
		return nil, err
	}
	if result.Valid {
		rec.Result = json.RawMessage(result.String)
	}
	if finished.Valid {
		t := finished.Time
		rec.FinishedAt = &t
	}
	return &rec, nil
}

func (r *historyRepository) GetBySession(ctx context.Context, token string) (*models.SessionRecord, error) {
	query := `SELECT ` + historyColumns + ` FROM session_history WHERE token = $1`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, token))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return rec, nil
}

func (r *historyRepository) List(ctx context.Context, filter models.HistoryFilter) (*models.HistoryPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultHistoryLimit
	}
	if filter.Limit > maxHistoryLimit {
		filter.Limit = maxHistoryLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var (
		conditions []string
		args       []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("kind", filter.Kind)
	add("challenge_id", filter.ChallengeID)
	add("stage", filter.Stage)

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_history`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM session_history%s ORDER BY started_at DESC LIMIT $%d OFFSET $%d`,
		historyColumns, where, len(args)+1, len(args)+2,
	)
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	items := []models.SessionRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		items = append(items, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.HistoryPage{
		Items:  items,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}
