package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"parley/etc"
)

//go:embed schema.sql
var schema string

// PostgresStore is the durable Store implementation. The schema is applied
// on open, so a fresh database needs no separate migration step.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func OpenPostgres(ctx context.Context, databaseURL string, logger *log.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("database ready")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) CreateInterview(ctx context.Context) (Interview, error) {
	interview := Interview{
		ID:        etc.NewFreshID(),
		Status:    StatusActive,
		StartedAt: time.Now(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO interviews (id, status, started_at) VALUES ($1, $2, $3)`,
		interview.ID, interview.Status, interview.StartedAt,
	)
	if err != nil {
		return Interview{}, fmt.Errorf("create interview: %w", err)
	}
	return interview, nil
}

func (s *PostgresStore) GetInterview(ctx context.Context, id string) (Interview, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, started_at, ended_at, duration_seconds, full_transcript, summary
		 FROM interviews WHERE id = $1`,
		id,
	)
	var interview Interview
	err := row.Scan(
		&interview.ID,
		&interview.Status,
		&interview.StartedAt,
		&interview.EndedAt,
		&interview.DurationSeconds,
		&interview.FullTranscript,
		&interview.Summary,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Interview{}, ErrNotFound
	}
	if err != nil {
		return Interview{}, fmt.Errorf("get interview: %w", err)
	}
	return interview, nil
}

func (s *PostgresStore) ListInterviews(ctx context.Context) ([]Interview, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, started_at, ended_at, duration_seconds, full_transcript, summary
		 FROM interviews ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list interviews: %w", err)
	}
	defer rows.Close()

	var interviews []Interview
	for rows.Next() {
		var interview Interview
		err := rows.Scan(
			&interview.ID,
			&interview.Status,
			&interview.StartedAt,
			&interview.EndedAt,
			&interview.DurationSeconds,
			&interview.FullTranscript,
			&interview.Summary,
		)
		if err != nil {
			return nil, fmt.Errorf("scan interview: %w", err)
		}
		interviews = append(interviews, interview)
	}
	return interviews, rows.Err()
}

func (s *PostgresStore) AppendUtterance(ctx context.Context, params AppendUtteranceParams) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO live_transcripts (id, interview, speaker, text, sequence_number)
		 VALUES ($1, $2, $3, $4, $5)`,
		etc.NewFreshID(), params.InterviewID, params.Speaker, params.Text, params.Sequence,
	)
	if err != nil {
		return fmt.Errorf("append utterance: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListUtterances(ctx context.Context, interviewID string) ([]Utterance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, interview, speaker, text, sequence_number, created_at
		 FROM live_transcripts WHERE interview = $1 ORDER BY sequence_number ASC`,
		interviewID,
	)
	if err != nil {
		return nil, fmt.Errorf("list utterances: %w", err)
	}
	defer rows.Close()

	var utterances []Utterance
	for rows.Next() {
		var u Utterance
		err := rows.Scan(&u.ID, &u.InterviewID, &u.Speaker, &u.Text, &u.Sequence, &u.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan utterance: %w", err)
		}
		utterances = append(utterances, u)
	}
	return utterances, rows.Err()
}

func (s *PostgresStore) FinishInterview(ctx context.Context, params FinishInterviewParams) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE interviews
		 SET status = $2, ended_at = $3, duration_seconds = $4, full_transcript = $5, summary = $6
		 WHERE id = $1 AND status = 'active'`,
		params.ID, params.Status, params.EndedAt,
		params.DurationSeconds, params.FullTranscript, params.Summary,
	)
	if err != nil {
		return fmt.Errorf("finish interview: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Debug("finish skipped, interview not active", "interview", params.ID)
	}
	return nil
}
