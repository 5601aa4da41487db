package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"livecard/internal/model"
)

// PostgresRepository implements Store on a pgx connection pool.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

var _ Store = (*PostgresRepository)(nil)

// NewPostgresRepository connects to dsn and verifies the connection.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresRepository{Pool: pool}, nil
}

// Close closes the connection pool.
func (r *PostgresRepository) Close() error {
	r.Pool.Close()
	return nil
}

// Migrate applies the embedded schema. Migrations are idempotent.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	migrations, err := loadMigrations(postgresMigrations, "migrations/postgres")
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if _, err := r.Pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
	}
	return nil
}

const eventColumns = `id, name, date, main_start_time, has_started, is_complete, completion_method`

const fightColumns = `id, event_id, order_on_card, fighter1_id, fighter2_id, is_title, scheduled_rounds,
	has_started, is_complete, current_round, completed_rounds, winner, method, winning_round, winning_time`

func (r *PostgresRepository) InsertEvent(ctx context.Context, e *model.Event) error {
	if err := validateEvent(e); err != nil {
		return err
	}
	query := `INSERT INTO events (` + eventColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.Pool.Exec(ctx, query,
		e.ID, e.Name, e.Date, e.MainStartTime, e.HasStarted, e.IsComplete, methodString(e.CompletionMethod))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertFight(ctx context.Context, f *model.Fight) error {
	if err := validateFight(f); err != nil {
		return err
	}
	query := `INSERT INTO fights (` + fightColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.Pool.Exec(ctx, query,
		f.ID, f.EventID, f.OrderOnCard, f.Fighter1ID, f.Fighter2ID, f.IsTitle, f.ScheduledRounds,
		f.HasStarted, f.IsComplete, f.CurrentRound, f.CompletedRounds, f.Winner, f.Method, f.WinningRound, f.WinningTime)
	if err != nil {
		return fmt.Errorf("insert fight: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertUserRecord(ctx context.Context, rec *model.UserRecord) error {
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
	query := fmt.Sprintf(`INSERT INTO %s (id, fight_id, user_id, value, created_at) VALUES ($1, $2, $3, $4, $5)`,
		userDataTables[rec.Kind])
	if _, err := r.Pool.Exec(ctx, query, id, rec.FightID, rec.UserID, rec.Value, createdAt); err != nil {
		return fmt.Errorf("insert %s: %w", rec.Kind, err)
	}
	return nil
}

func (r *PostgresRepository) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	row := r.Pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, eventID)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) ListFights(ctx context.Context, eventID string) ([]model.Fight, error) {
	if _, err := r.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	rows, err := r.Pool.Query(ctx,
		`SELECT `+fightColumns+` FROM fights WHERE event_id = $1 ORDER BY order_on_card ASC, id ASC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list fights: %w", err)
	}
	defer rows.Close()
	return scanFights(rows)
}

// execOne runs a single-row update and maps zero affected rows to ErrNotFound.
func (r *PostgresRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.Pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) MarkEventStarted(ctx context.Context, eventID string) error {
	return r.execOne(ctx, "mark event started",
		`UPDATE events SET has_started = TRUE WHERE id = $1`, eventID)
}

func (r *PostgresRepository) CompleteEvent(ctx context.Context, eventID string, method model.CompletionMethod) error {
	if !method.Valid() {
		return ErrInvalidInput
	}
	return r.execOne(ctx, "complete event",
		`UPDATE events SET is_complete = TRUE, completion_method = $2 WHERE id = $1`, eventID, string(method))
}

func (r *PostgresRepository) StartFight(ctx context.Context, fightID string) error {
	return r.execOne(ctx, "start fight",
		`UPDATE fights SET has_started = TRUE, completed_rounds = 0 WHERE id = $1`, fightID)
}

func (r *PostgresRepository) StartRound(ctx context.Context, fightID string, round int) error {
	return r.execOne(ctx, "start round",
		`UPDATE fights SET current_round = $2 WHERE id = $1`, fightID, round)
}

func (r *PostgresRepository) EndRound(ctx context.Context, fightID string, completedRounds int) error {
	return r.execOne(ctx, "end round",
		`UPDATE fights SET current_round = NULL, completed_rounds = $2 WHERE id = $1`, fightID, completedRounds)
}

func (r *PostgresRepository) CompleteFight(ctx context.Context, fightID string, result model.FightResult) error {
	return r.execOne(ctx, "complete fight", `
		UPDATE fights SET
			is_complete = TRUE, current_round = NULL, completed_rounds = $2,
			winner = $3, method = $4, winning_round = $5, winning_time = $6
		WHERE id = $1`,
		fightID, result.CompletedRounds, result.Winner, result.Method, result.WinningRound, result.WinningTime)
}

func (r *PostgresRepository) ForceCompleteEvent(ctx context.Context, eventID string, method model.CompletionMethod) (int, error) {
	if !method.Valid() {
		return 0, ErrInvalidInput
	}
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin force complete: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE events SET is_complete = TRUE, completion_method = $2 WHERE id = $1`, eventID, string(method))
	if err != nil {
		return 0, fmt.Errorf("complete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrNotFound
	}

	tag, err = tx.Exec(ctx,
		`UPDATE fights SET is_complete = TRUE, current_round = NULL WHERE event_id = $1 AND is_complete = FALSE`, eventID)
	if err != nil {
		return 0, fmt.Errorf("close fights: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit force complete: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) ListLiveEvents(ctx context.Context) ([]model.EventCard, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE has_started = TRUE AND is_complete = FALSE ORDER BY date ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list live events: %w", err)
	}
	events, err := scanEvents(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	fightRows, err := r.Pool.Query(ctx,
		`SELECT `+fightColumns+` FROM fights WHERE event_id = ANY($1) ORDER BY order_on_card ASC, id ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("list live fights: %w", err)
	}
	defer fightRows.Close()
	fights, err := scanFights(fightRows)
	if err != nil {
		return nil, err
	}

	return groupCards(events, fights), nil
}

func (r *PostgresRepository) ListStaleEvents(ctx context.Context, scheduledBefore time.Time) ([]model.Event, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE has_started = FALSE AND is_complete = FALSE AND date < $1
		ORDER BY date ASC, id ASC`, scheduledBefore)
	if err != nil {
		return nil, fmt.Errorf("list stale events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (r *PostgresRepository) ResetEvent(ctx context.Context, eventID string, opts model.ResetOptions) (model.ResetSummary, error) {
	summary := model.ResetSummary{Deleted: make(map[model.UserDataKind]int)}

	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return summary, fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE events SET has_started = FALSE, is_complete = FALSE, completion_method = NULL
		WHERE id = $1`, eventID)
	if err != nil {
		return summary, fmt.Errorf("reset event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return summary, ErrNotFound
	}

	for _, kind := range opts.Kinds() {
		query := fmt.Sprintf(`DELETE FROM %s WHERE fight_id IN (SELECT id FROM fights WHERE event_id = $1)`,
			userDataTables[kind])
		tag, err := tx.Exec(ctx, query, eventID)
		if err != nil {
			return summary, fmt.Errorf("delete %s: %w", kind, err)
		}
		summary.Deleted[kind] = int(tag.RowsAffected())
	}

	tag, err = tx.Exec(ctx, `
		UPDATE fights SET
			has_started = FALSE, is_complete = FALSE, current_round = NULL, completed_rounds = NULL,
			winner = NULL, method = NULL, winning_round = NULL, winning_time = NULL
		WHERE event_id = $1`, eventID)
	if err != nil {
		return summary, fmt.Errorf("reset fights: %w", err)
	}
	summary.FightsReset = int(tag.RowsAffected())

	if err := tx.Commit(ctx); err != nil {
		return summary, fmt.Errorf("commit reset: %w", err)
	}
	return summary, nil
}

func (r *PostgresRepository) CountUserData(ctx context.Context, eventID string) (map[model.UserDataKind]int, error) {
	if _, err := r.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	counts := make(map[model.UserDataKind]int)
	for _, kind := range model.UserDataKinds {
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE fight_id IN (SELECT id FROM fights WHERE event_id = $1)`,
			userDataTables[kind])
		var n int
		if err := r.Pool.QueryRow(ctx, query, eventID).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", kind, err)
		}
		counts[kind] = n
	}
	return counts, nil
}

// rowScanner is satisfied by pgx.Row, pgx.Rows and *sql.Row(s).
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var e model.Event
	var method *string
	if err := row.Scan(&e.ID, &e.Name, &e.Date, &e.MainStartTime, &e.HasStarted, &e.IsComplete, &method); err != nil {
		return nil, err
	}
	if method != nil {
		m := model.CompletionMethod(*method)
		e.CompletionMethod = &m
	}
	return &e, nil
}

func scanFight(row rowScanner) (*model.Fight, error) {
	var f model.Fight
	err := row.Scan(
		&f.ID, &f.EventID, &f.OrderOnCard, &f.Fighter1ID, &f.Fighter2ID, &f.IsTitle, &f.ScheduledRounds,
		&f.HasStarted, &f.IsComplete, &f.CurrentRound, &f.CompletedRounds,
		&f.Winner, &f.Method, &f.WinningRound, &f.WinningTime,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func scanEvents(rows pgx.Rows) ([]model.Event, error) {
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

func scanFights(rows pgx.Rows) ([]model.Fight, error) {
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

// groupCards attaches fights to their events, preserving both orderings.
func groupCards(events []model.Event, fights []model.Fight) []model.EventCard {
	byEvent := make(map[string][]model.Fight, len(events))
	for _, f := range fights {
		byEvent[f.EventID] = append(byEvent[f.EventID], f)
	}
	cards := make([]model.EventCard, len(events))
	for i, e := range events {
		cards[i] = model.EventCard{Event: e, Fights: byEvent[e.ID]}
	}
	return cards
}

func methodString(m *model.CompletionMethod) *string {
	if m == nil {
		return nil
	}
	s := string(*m)
	return &s
}
