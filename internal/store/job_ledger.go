package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/vantra-labs/matchcore/internal/domain"
)

// JobLedger is the Match Job Ledger (C2): an append-only, sqlx-backed
// record of every matching cycle run, deliberately on a different
// persistence technology from the gorm Order Store (spec §4.2: "a
// concrete store per entity, not one shared ORM session across
// components"), grounded on internal/db/repositories/user_repository.go's
// raw-SQL-via-sqlx idiom.
type JobLedger struct {
	db *sqlx.DB
}

// NewJobLedger wires a JobLedger over an already-connected sqlx handle.
func NewJobLedger(db *sqlx.DB) *JobLedger {
	return &JobLedger{db: db}
}

// jobRow is the sqlx row shape for a match job.
type jobRow struct {
	ID               string         `db:"id"`
	Symbol           string         `db:"symbol"`
	StartedAt        time.Time      `db:"started_at"`
	CompletedAt      sql.NullTime   `db:"completed_at"`
	Status           string         `db:"status"`
	OrdersProcessed  int            `db:"orders_processed"`
	TradesGenerated  int            `db:"trades_generated"`
	ProcessingTimeMs int64          `db:"processing_time_ms"`
	TotalVolume      string         `db:"total_volume"`
	TradeIDs         sql.NullString `db:"trade_ids"`
	ErrorMessage      sql.NullString `db:"error_message"`
}

// Migrate creates the match_jobs table if it does not already exist.
func (l *JobLedger) Migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS match_jobs (
			id varchar(32) PRIMARY KEY,
			symbol varchar(32) NOT NULL,
			started_at timestamptz NOT NULL,
			completed_at timestamptz,
			status varchar(16) NOT NULL,
			orders_processed integer NOT NULL DEFAULT 0,
			trades_generated integer NOT NULL DEFAULT 0,
			processing_time_ms bigint NOT NULL DEFAULT 0,
			total_volume numeric(36,18) NOT NULL DEFAULT 0,
			trade_ids text,
			error_message text
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate match_jobs: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_match_jobs_symbol ON match_jobs (symbol, started_at DESC)`); err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_match_jobs_started_at ON match_jobs (started_at DESC)`)
	return err
}

// Create inserts a new, running match job (spec §4.2: one row per cycle,
// written at cycle start so a crash mid-cycle still leaves a ledger entry).
func (l *JobLedger) Create(ctx context.Context, job *domain.MatchJob) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO match_jobs (id, symbol, started_at, status, total_volume)
		VALUES ($1, $2, $3, $4, $5)
	`, job.ID, job.Symbol, job.StartedAt, string(job.Status), job.TotalVolume.String())
	if err != nil {
		return fmt.Errorf("create match job: %w", err)
	}
	return nil
}

// Update persists the terminal state (completed/failed) of a match job.
func (l *JobLedger) Update(ctx context.Context, job *domain.MatchJob) error {
	tradeIDs := strings.Join(job.TradeIDs, ",")
	_, err := l.db.ExecContext(ctx, `
		UPDATE match_jobs
		SET completed_at = $1, status = $2, orders_processed = $3,
		    trades_generated = $4, processing_time_ms = $5, total_volume = $6,
		    trade_ids = $7, error_message = $8
		WHERE id = $9
	`, job.CompletedAt, string(job.Status), job.OrdersProcessed, job.TradesGenerated,
		job.ProcessingTimeMs, job.TotalVolume.String(), tradeIDs, job.ErrorMessage, job.ID)
	if err != nil {
		return fmt.Errorf("update match job: %w", err)
	}
	return nil
}

// RecentBySymbol returns the most recent match jobs for a symbol, most
// recent first, bounded by limit.
func (l *JobLedger) RecentBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.MatchJob, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []jobRow
	err := l.db.SelectContext(ctx, &rows, `
		SELECT * FROM match_jobs WHERE symbol = $1 ORDER BY started_at DESC LIMIT $2
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("recent match jobs: %w", err)
	}

	jobs := make([]*domain.MatchJob, len(rows))
	for i := range rows {
		jobs[i] = rows[i].toDomain()
	}
	return jobs, nil
}

// Latest returns the most recently started match jobs across every symbol,
// most recent first, bounded by limit. Unlike RecentBySymbol this is a
// global, cross-symbol query, backed by its own (started_at desc) index
// rather than the per-symbol (symbol, started_at desc) one — it exists for
// crash forensics, where the operator does not yet know which symbol's
// cycle stalled (spec §4.2).
func (l *JobLedger) Latest(ctx context.Context, limit int) ([]*domain.MatchJob, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []jobRow
	err := l.db.SelectContext(ctx, &rows, `
		SELECT * FROM match_jobs ORDER BY started_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("latest match jobs: %w", err)
	}

	jobs := make([]*domain.MatchJob, len(rows))
	for i := range rows {
		jobs[i] = rows[i].toDomain()
	}
	return jobs, nil
}

func (r *jobRow) toDomain() *domain.MatchJob {
	job := &domain.MatchJob{
		ID:               r.ID,
		Symbol:           r.Symbol,
		StartedAt:        r.StartedAt,
		Status:           domain.JobStatus(r.Status),
		OrdersProcessed:  r.OrdersProcessed,
		TradesGenerated:  r.TradesGenerated,
		ProcessingTimeMs: r.ProcessingTimeMs,
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		job.CompletedAt = &t
	}
	if vol, err := decimal.NewFromString(r.TotalVolume); err == nil {
		job.TotalVolume = vol
	}
	if r.TradeIDs.Valid && r.TradeIDs.String != "" {
		job.TradeIDs = strings.Split(r.TradeIDs.String, ",")
	}
	if r.ErrorMessage.Valid {
		job.ErrorMessage = r.ErrorMessage.String
	}
	return job
}
