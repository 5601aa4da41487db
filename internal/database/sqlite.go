package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"livecard/internal/model"
)

// SQLiteRepository implements Store on a local SQLite file, for single-node
// demo runs that should survive a restart of the store but need no server.
type SQLiteRepository struct {
	db *sql.DB
}

var _ Store = (*SQLiteRepository)(nil)

// NewSQLiteRepository opens the database at path, enables WAL mode and
// foreign keys, and applies the embedded schema.
func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps PRAGMAs and transactions on the same handle.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	r := &SQLiteRepository{db: db}
	if err := r.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}
	return r, nil
}

// Close closes the underlying database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) migrate(ctx context.Context) error {
	migrations, err := loadMigrations(sqliteMigrations, "migrations/sqlite")
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if _, err := r.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) InsertEvent(ctx context.Context, e *model.Event) error {
	if err := validateEvent(e); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.Date.UTC(), utcPtr(e.MainStartTime), e.HasStarted, e.IsComplete, methodString(e.CompletionMethod))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) InsertFight(ctx context.Context, f *model.Fight) error {
	if err := validateFight(f); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO fights (`+fightColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.EventID, f.OrderOnCard, f.Fighter1ID, f.Fighter2ID, f.IsTitle, f.ScheduledRounds,
		f.HasStarted, f.IsComplete, f.CurrentRound, f.CompletedRounds, f.Winner, f.Method, f.WinningRound, f.WinningTime)
	if err != nil {
		return fmt.Errorf("insert fight: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) InsertUserRecord(ctx context.Context, rec *model.UserRecord) error {
	if err := validateUserRecord(rec); err != nil {
		return err
	}
	id := rec.ID
	if id == "" {
		id = newRecordID()
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, fight_id, user_id, value, created_at) VALUES (?, ?, ?, ?, ?)`,
		userDataTables[rec.Kind])
	if _, err := r.db.ExecContext(ctx, query, id, rec.FightID, rec.UserID, rec.Value, createdAt.UTC()); err != nil {
		return fmt.Errorf("insert %s: %w", rec.Kind, err)
	}
	return nil
}

func (r *SQLiteRepository) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, eventID)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) ListFights(ctx context.Context, eventID string) ([]model.Fight, error) {
	if _, err := r.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return r.queryFights(ctx, eventID)
}

func (r *SQLiteRepository) queryFights(ctx context.Context, eventID string) ([]model.Fight, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+fightColumns+` FROM fights WHERE event_id = ? ORDER BY order_on_card ASC, id ASC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list fights: %w", err)
	}
	defer rows.Close()

	var fights []model.Fight
	for rows.Next() {
		f, err := scanFight(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fight: %w", err)
		}
		fights = append(fights, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fights: %w", err)
	}
	return fights, nil
}

func (r *SQLiteRepository) queryEvents(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func (r *SQLiteRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) MarkEventStarted(ctx context.Context, eventID string) error {
	return r.execOne(ctx, "mark event started", `UPDATE events SET has_started = 1 WHERE id = ?`, eventID)
}

func (r *SQLiteRepository) CompleteEvent(ctx context.Context, eventID string, method model.CompletionMethod) error {
	if !method.Valid() {
		return ErrInvalidInput
	}
	return r.execOne(ctx, "complete event",
		`UPDATE events SET is_complete = 1, completion_method = ? WHERE id = ?`, string(method), eventID)
}

func (r *SQLiteRepository) StartFight(ctx context.Context, fightID string) error {
	return r.execOne(ctx, "start fight",
		`UPDATE fights SET has_started = 1, completed_rounds = 0 WHERE id = ?`, fightID)
}

func (r *SQLiteRepository) StartRound(ctx context.Context, fightID string, round int) error {
	return r.execOne(ctx, "start round", `UPDATE fights SET current_round = ? WHERE id = ?`, round, fightID)
}

func (r *SQLiteRepository) EndRound(ctx context.Context, fightID string, completedRounds int) error {
	return r.execOne(ctx, "end round",
		`UPDATE fights SET current_round = NULL, completed_rounds = ? WHERE id = ?`, completedRounds, fightID)
}

func (r *SQLiteRepository) CompleteFight(ctx context.Context, fightID string, result model.FightResult) error {
	return r.execOne(ctx, "complete fight", `
		UPDATE fights SET
			is_complete = 1, current_round = NULL, completed_rounds = ?,
			winner = ?, method = ?, winning_round = ?, winning_time = ?
		WHERE id = ?`,
		result.CompletedRounds, result.Winner, result.Method, result.WinningRound, result.WinningTime, fightID)
}

func (r *SQLiteRepository) ForceCompleteEvent(ctx context.Context, eventID string, method model.CompletionMethod) (int, error) {
	if !method.Valid() {
		return 0, ErrInvalidInput
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin force complete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE events SET is_complete = 1, completion_method = ? WHERE id = ?`, string(method), eventID)
	if err != nil {
		return 0, fmt.Errorf("complete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE fights SET is_complete = 1, current_round = NULL WHERE event_id = ? AND is_complete = 0`, eventID)
	if err != nil {
		return 0, fmt.Errorf("close fights: %w", err)
	}
	closed, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit force complete: %w", err)
	}
	return int(closed), nil
}

func (r *SQLiteRepository) ListLiveEvents(ctx context.Context) ([]model.EventCard, error) {
	events, err := r.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events WHERE has_started = 1 AND is_complete = 0 ORDER BY date ASC, id ASC`)
	if err != nil {
		return nil, err
	}

	cards := make([]model.EventCard, 0, len(events))
	for _, e := range events {
		fights, err := r.queryFights(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		cards = append(cards, model.EventCard{Event: e, Fights: fights})
	}
	return cards, nil
}

// ListStaleEvents filters on the date in Go: SQLite compares DATETIME values as
// text, which is unreliable across the driver's timestamp layouts.
func (r *SQLiteRepository) ListStaleEvents(ctx context.Context, scheduledBefore time.Time) ([]model.Event, error) {
	events, err := r.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events WHERE has_started = 0 AND is_complete = 0 ORDER BY date ASC, id ASC`)
	if err != nil {
		return nil, err
	}

	var stale []model.Event
	for _, e := range events {
		if e.Date.Before(scheduledBefore) {
			stale = append(stale, e)
		}
	}
	return stale, nil
}

func (r *SQLiteRepository) ResetEvent(ctx context.Context, eventID string, opts model.ResetOptions) (model.ResetSummary, error) {
	summary := model.ResetSummary{Deleted: make(map[model.UserDataKind]int)}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return summary, fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE events SET has_started = 0, is_complete = 0, completion_method = NULL WHERE id = ?`, eventID)
	if err != nil {
		return summary, fmt.Errorf("reset event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return summary, ErrNotFound
	}

	for _, kind := range opts.Kinds() {
		query := fmt.Sprintf(`DELETE FROM %s WHERE fight_id IN (SELECT id FROM fights WHERE event_id = ?)`,
			userDataTables[kind])
		res, err := tx.ExecContext(ctx, query, eventID)
		if err != nil {
			return summary, fmt.Errorf("delete %s: %w", kind, err)
		}
		n, _ := res.RowsAffected()
		summary.Deleted[kind] = int(n)
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE fights SET
			has_started = 0, is_complete = 0, current_round = NULL, completed_rounds = NULL,
			winner = NULL, method = NULL, winning_round = NULL, winning_time = NULL
		WHERE event_id = ?`, eventID)
	if err != nil {
		return summary, fmt.Errorf("reset fights: %w", err)
	}
	n, _ := res.RowsAffected()
	summary.FightsReset = int(n)

	if err := tx.Commit(); err != nil {
		return summary, fmt.Errorf("commit reset: %w", err)
	}
	return summary, nil
}

func (r *SQLiteRepository) CountUserData(ctx context.Context, eventID string) (map[model.UserDataKind]int, error) {
	if _, err := r.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	counts := make(map[model.UserDataKind]int)
	for _, kind := range model.UserDataKinds {
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE fight_id IN (SELECT id FROM fights WHERE event_id = ?)`,
			userDataTables[kind])
		var n int
		if err := r.db.QueryRowContext(ctx, query, eventID).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", kind, err)
		}
		counts[kind] = n
	}
	return counts, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
