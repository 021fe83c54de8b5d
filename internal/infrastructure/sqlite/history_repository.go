package sqlite

import (
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/zjrosen/fancyterm/internal/history"
)

// historyModel is a row of the history table.
type historyModel struct {
	ID        int64
	Scope     string
	Line      string
	CreatedAt int64 // unix seconds
}

// historyRepository implements history.Store using SQLite.
type historyRepository struct {
	db         *sql.DB
	maxEntries int
}

var _ history.Store = (*historyRepository)(nil)

func newHistoryRepository(db *sql.DB, maxEntries int) *historyRepository {
	return &historyRepository{db: db, maxEntries: maxEntries}
}

// Append stores line under scope and prunes the oldest rows beyond maxEntries.
func (r *historyRepository) Append(scope, line string) error {
	model := historyModel{Scope: scope, Line: line, CreatedAt: time.Now().Unix()}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin history transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		`INSERT INTO history (scope, line, created_at) VALUES (?, ?, ?)`,
		model.Scope, model.Line, model.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert history line: %w", err)
	}

	if r.maxEntries > 0 {
		if _, err := tx.Exec(
			`DELETE FROM history WHERE scope = ? AND id NOT IN (
				SELECT id FROM history WHERE scope = ? ORDER BY id DESC LIMIT ?
			)`,
			scope, scope, r.maxEntries,
		); err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history line: %w", err)
	}
	return nil
}

// Recent returns up to limit lines for scope, oldest first.
func (r *historyRepository) Recent(scope string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := r.db.Query(
		`SELECT id, scope, line, created_at FROM history WHERE scope = ? ORDER BY id DESC LIMIT ?`,
		scope, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lines []string
	for rows.Next() {
		var m historyModel
		if err := rows.Scan(&m.ID, &m.Scope, &m.Line, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		lines = append(lines, m.Line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}

	slices.Reverse(lines)
	return lines, nil
}
