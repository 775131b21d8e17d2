package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"planeview/internal/model"
)

func migrateSQLiteState(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS view_filters (
			workspace TEXT NOT NULL,
			project TEXT NOT NULL,
			view_id TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at_unixms INTEGER NOT NULL,
			PRIMARY KEY (workspace, project, view_id)
		);`,
		`CREATE TABLE IF NOT EXISTS view_snapshots (
			workspace TEXT NOT NULL,
			project TEXT NOT NULL,
			view_id TEXT NOT NULL,
			fetched_at_unixms INTEGER NOT NULL,
			PRIMARY KEY (workspace, project, view_id)
		);`,
		`CREATE TABLE IF NOT EXISTS view_issues (
			workspace TEXT NOT NULL,
			project TEXT NOT NULL,
			view_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			issue_id TEXT NOT NULL,
			json TEXT NOT NULL,
			PRIMARY KEY (workspace, project, view_id, position)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

type viewKey struct {
	workspace string
	project   string
	viewID    string
}

func newViewKey(workspace, project, viewID string) (viewKey, error) {
	k := viewKey{
		workspace: strings.TrimSpace(workspace),
		project:   strings.TrimSpace(project),
		viewID:    strings.TrimSpace(viewID),
	}
	if k.workspace == "" || k.project == "" || k.viewID == "" {
		return viewKey{}, errors.New("workspace, project and view id are required")
	}
	return k, nil
}

func (s Store) SaveViewFilters(ctx context.Context, workspace, project, viewID string, f model.ViewFilters) error {
	k, err := newViewKey(workspace, project, viewID)
	if err != nil {
		return err
	}
	db, err := s.openSQLite(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	f.Display = f.Display.Normalized()
	js, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT OR REPLACE INTO view_filters(workspace, project, view_id, json, updated_at_unixms) VALUES(?, ?, ?, ?, ?)`,
		k.workspace, k.project, k.viewID, string(js), time.Now().UnixMilli())
	return err
}

// LoadViewFilters returns the saved filters of a view; ok is false when none
// were saved.
func (s Store) LoadViewFilters(ctx context.Context, workspace, project, viewID string) (f model.ViewFilters, ok bool, err error) {
	k, err := newViewKey(workspace, project, viewID)
	if err != nil {
		return model.ViewFilters{}, false, err
	}
	db, err := s.openSQLite(ctx)
	if err != nil {
		return model.ViewFilters{}, false, err
	}
	defer db.Close()

	xs, err := readJSONRows[model.ViewFilters](ctx, db,
		`SELECT json FROM view_filters WHERE workspace = ? AND project = ? AND view_id = ?`,
		k.workspace, k.project, k.viewID)
	if err != nil || len(xs) == 0 {
		return model.ViewFilters{}, false, err
	}
	return xs[0], true, nil
}

// SaveViewSnapshot replaces the stored issues of a view, keeping their order.
func (s Store) SaveViewSnapshot(ctx context.Context, workspace, project, viewID string, issues []model.Issue) error {
	k, err := newViewKey(workspace, project, viewID)
	if err != nil {
		return err
	}
	db, err := s.openSQLite(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM view_issues WHERE workspace = ? AND project = ? AND view_id = ?`,
		k.workspace, k.project, k.viewID); err != nil {
		return err
	}
	for i, is := range issues {
		js, err := json.Marshal(is)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO view_issues(workspace, project, view_id, position, issue_id, json) VALUES(?, ?, ?, ?, ?, ?)`,
			k.workspace, k.project, k.viewID, i, is.ID, string(js)); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO view_snapshots(workspace, project, view_id, fetched_at_unixms) VALUES(?, ?, ?, ?)`,
		k.workspace, k.project, k.viewID, time.Now().UnixMilli()); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadViewSnapshot returns the stored issues of a view in saved order and when
// they were fetched. ok is false when the view was never saved.
func (s Store) LoadViewSnapshot(ctx context.Context, workspace, project, viewID string) (issues []model.Issue, fetchedAt time.Time, ok bool, err error) {
	k, err := newViewKey(workspace, project, viewID)
	if err != nil {
		return nil, time.Time{}, false, err
	}
	db, err := s.openSQLite(ctx)
	if err != nil {
		return nil, time.Time{}, false, err
	}
	defer db.Close()

	var ms int64
	err = db.QueryRowContext(ctx,
		`SELECT fetched_at_unixms FROM view_snapshots WHERE workspace = ? AND project = ? AND view_id = ?`,
		k.workspace, k.project, k.viewID).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}

	issues, err = readJSONRows[model.Issue](ctx, db,
		`SELECT json FROM view_issues WHERE workspace = ? AND project = ? AND view_id = ? ORDER BY position`,
		k.workspace, k.project, k.viewID)
	if err != nil {
		return nil, time.Time{}, false, err
	}
	if issues == nil {
		issues = []model.Issue{}
	}
	return issues, time.UnixMilli(ms).UTC(), true, nil
}

func readJSONRows[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var js string
		if err := rows.Scan(&js); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(js), &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
