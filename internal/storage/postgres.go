package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/photoshot-be/internal/domain"
	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var schema string

// statusRankSQL mirrors domain.Status.Rank for the stored row
const statusRankSQL = `CASE predictions.status
		WHEN 'processing' THEN 1
		WHEN 'succeeded' THEN 2
		WHEN 'failed' THEN 2
		ELSE 0
	END`

// PostgresStore implements the record store on PostgreSQL
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore instance
func NewPostgresStore(db *sqlx.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// Migrate creates the tables when they do not exist yet
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	s.logger.Info("Database schema is up to date")
	return nil
}

// GetUser loads the account row of userID
func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*domain.UserAccount, error) {
	query := `
		SELECT
			id, paid, in_training, trained,
			COALESCE(replicate_version_id, '') AS replicate_version_id,
			COALESCE(instance_class, '') AS instance_class,
			counter
		FROM user_info
		WHERE id = $1
	`

	var user domain.UserAccount
	if err := s.db.GetContext(ctx, &user, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// GetPrediction loads one prediction record
func (s *PostgresStore) GetPrediction(ctx context.Context, id string) (*domain.Prediction, error) {
	query := `
		SELECT id, user_id, status, output_url, created_at, updated_at
		FROM predictions
		WHERE id = $1
	`

	var prediction domain.Prediction
	if err := s.db.GetContext(ctx, &prediction, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}

	return &prediction, nil
}

// UpsertPrediction inserts the record or advances its status. A row whose
// status is terminal or ahead of p.Status is left untouched and the returned
// transition is not applied. The owner of an existing row never changes.
func (s *PostgresStore) UpsertPrediction(ctx context.Context, p domain.Prediction) (domain.Transition, error) {
	query := `
		WITH previous AS (
			SELECT status FROM predictions WHERE id = $1
		)
		INSERT INTO predictions (id, user_id, status, output_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
			output_url = COALESCE(NULLIF(EXCLUDED.output_url, ''), predictions.output_url),
			updated_at = NOW()
		WHERE predictions.status NOT IN ('succeeded', 'failed')
		  AND $5 >= ` + statusRankSQL + `
		RETURNING (SELECT status FROM previous)
	`

	var previous sql.NullString
	err := s.db.QueryRowxContext(ctx, query, p.ID, p.OwnerID, string(p.Status), p.OutputURL, p.Status.Rank()).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		stored, getErr := s.GetPrediction(ctx, p.ID)
		if getErr != nil {
			return domain.Transition{}, getErr
		}
		s.logger.Debug("Prediction status not advanced",
			slog.String("prediction_id", p.ID),
			slog.String("stored_status", string(stored.Status)),
			slog.String("observed_status", string(p.Status)),
		)
		return domain.Transition{Applied: false, Previous: stored.Status, Current: stored.Status}, nil
	}
	if err != nil {
		return domain.Transition{}, fmt.Errorf("failed to upsert prediction: %w", err)
	}

	transition := domain.Transition{Applied: true, Current: p.Status}
	if previous.Valid {
		transition.Previous = domain.Status(previous.String)
	}
	return transition, nil
}

// IncrementUsage adds delta to the user's counter in a single statement and
// returns the new value
func (s *PostgresStore) IncrementUsage(ctx context.Context, userID string, delta int) (int, error) {
	query := `
		UPDATE user_info
		SET counter = counter + $2
		WHERE id = $1
		RETURNING counter
	`

	var counter int
	if err := s.db.QueryRowxContext(ctx, query, userID, delta).Scan(&counter); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}

	return counter, nil
}

// ListPredictions returns up to PageSize+1 rows so callers can detect a next page
func (s *PostgresStore) ListPredictions(ctx context.Context, filter PredictionFilter) ([]domain.Prediction, error) {
	query := `
		SELECT id, user_id, status, output_url, created_at, updated_at
		FROM predictions
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.OwnerID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.OwnerID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.ID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var predictions []domain.Prediction
	if err := s.db.SelectContext(ctx, &predictions, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}

	return predictions, nil
}
