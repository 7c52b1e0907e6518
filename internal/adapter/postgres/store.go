// Package postgres persists weekly reports to PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/geoaggregate/internal/domain"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

const schema = `
CREATE TABLE IF NOT EXISTS weekly_counts (
	label           TEXT        NOT NULL,
	species         TEXT        NOT NULL DEFAULT '',
	week_start      DATE        NOT NULL,
	alignment       TEXT        NOT NULL,
	join_mode       TEXT        NOT NULL,
	total_count     INTEGER     NOT NULL,
	category_counts JSONB       NOT NULL,
	run_id          TEXT        NOT NULL,
	generated_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (label, species, week_start, alignment, join_mode)
)`

const upsertQuery = `
	INSERT INTO weekly_counts (
		label, species, week_start, alignment, join_mode,
		total_count, category_counts, run_id, generated_at
	) VALUES (
		:label, :species, :week_start, :alignment, :join_mode,
		:total_count, :category_counts, :run_id, :generated_at
	)
	ON CONFLICT (label, species, week_start, alignment, join_mode) DO UPDATE SET
		total_count     = EXCLUDED.total_count,
		category_counts = EXCLUDED.category_counts,
		run_id          = EXCLUDED.run_id,
		generated_at    = EXCLUDED.generated_at`

// weeklyCountRow is one row of weekly_counts.
type weeklyCountRow struct {
	Label          string    `db:"label"`
	Species        string    `db:"species"`
	WeekStart      time.Time `db:"week_start"`
	Alignment      string    `db:"alignment"`
	JoinMode       string    `db:"join_mode"`
	TotalCount     int       `db:"total_count"`
	CategoryCounts []byte    `db:"category_counts"`
	RunID          string    `db:"run_id"`
	GeneratedAt    time.Time `db:"generated_at"`
}

// Store upserts weekly cells into the weekly_counts table.
// It implements pipeline.ReportLoader.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewStore(db, logger), nil
}

// NewStore wraps an open database handle.
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// EnsureSchema creates the weekly_counts table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create weekly_counts: %w", err)
	}
	return nil
}

// Load upserts every cell of the report in one transaction. Re-running the
// same input replaces the earlier rows instead of duplicating them; runs with
// a different alignment or join mode keep separate rows.
func (s *Store) Load(ctx context.Context, report domain.WeeklyReport) (err error) {
	rows, err := rowsFromReport(report)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Warn("rollback failed", "error", rbErr)
			}
		}
	}()

	stmt, err := tx.PrepareNamedContext(ctx, upsertQuery)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := range rows {
		if _, err = stmt.ExecContext(ctx, rows[i]); err != nil {
			return fmt.Errorf("upsert %s %s %s: %w", rows[i].Label, rows[i].Species, rows[i].WeekStart.Format(time.DateOnly), err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("stored weekly cells", "count", len(rows), "run_id", report.RunID)
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func rowsFromReport(report domain.WeeklyReport) ([]weeklyCountRow, error) {
	rows := make([]weeklyCountRow, 0, len(report.Cells))
	for _, c := range report.Cells {
		cats := make(map[string]int, len(report.Categories))
		for i, name := range report.Categories {
			cats[name] = c.Counts.ByCategory[i]
		}
		data, err := json.Marshal(cats)
		if err != nil {
			return nil, fmt.Errorf("encode category counts: %w", err)
		}
		rows = append(rows, weeklyCountRow{
			Label:          c.Zone,
			Species:        c.Species,
			WeekStart:      c.PeriodStart.Time(),
			Alignment:      report.Alignment.String(),
			JoinMode:       report.JoinMode.String(),
			TotalCount:     c.Counts.Total,
			CategoryCounts: data,
			RunID:          report.RunID,
			GeneratedAt:    report.GeneratedAt,
		})
	}
	return rows, nil
}
