package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"routined/internal/routine"
	logx "routined/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const routineColumns = `id, title, description, kind, date, days, split, interval_days, anchor, policy, reminder`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (routine.Record, error) {
	var rec routine.Record
	var desc, date, days, split, anchor, policy, reminder sql.NullString
	err := row.Scan(&rec.ID, &rec.Title, &desc, &rec.Kind, &date, &days, &split, &rec.Interval, &anchor, &policy, &reminder)
	if err != nil {
		return routine.Record{}, err
	}
	rec.Description = desc.String
	rec.Date = date.String
	rec.Days = days.String
	rec.Split = split.String
	rec.Anchor = anchor.String
	rec.Policy = policy.String
	rec.Reminder = reminder.String
	return rec, nil
}

func (s *sqliteStore) AllRoutines(ctx context.Context) ([]routine.Routine, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+routineColumns+` FROM routines ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []routine.Routine
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		r, err := routine.FromRecord(rec)
		if err != nil {
			s.log.Warn("skipping invalid routine", logx.String("id", rec.ID), logx.Err(err))
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetRoutine(ctx context.Context, id string) (routine.Routine, bool, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, `SELECT `+routineColumns+` FROM routines WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return routine.Routine{}, false, nil
	}
	if err != nil {
		return routine.Routine{}, false, err
	}
	r, err := routine.FromRecord(rec)
	if err != nil {
		return routine.Routine{}, false, err
	}
	return r, true, nil
}

func (s *sqliteStore) InsertRoutine(ctx context.Context, r routine.Routine) (routine.Routine, error) {
	r, err := prepareInsert(r)
	if err != nil {
		return routine.Routine{}, err
	}
	rec := routine.ToRecord(r)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO routines(`+routineColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   title=excluded.title, description=excluded.description, kind=excluded.kind,
		   date=excluded.date, days=excluded.days, split=excluded.split, interval_days=excluded.interval_days,
		   anchor=excluded.anchor, policy=excluded.policy, reminder=excluded.reminder`,
		rec.ID, rec.Title, nullStr(rec.Description), rec.Kind, nullStr(rec.Date), nullStr(rec.Days),
		nullStr(rec.Split), rec.Interval, nullStr(rec.Anchor), nullStr(rec.Policy), nullStr(rec.Reminder),
	)
	if err != nil {
		return routine.Routine{}, err
	}
	return r, nil
}

func (s *sqliteStore) DeleteRoutine(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM routines WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM checks WHERE routine_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) SetChecked(ctx context.Context, routineID string, d routine.Date, done bool) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM routines WHERE id = ?`, routineID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checks(routine_id, date, done) VALUES(?,?,?)
		 ON CONFLICT(routine_id, date) DO UPDATE SET done=excluded.done`,
		routineID, d.String(), boolInt(done),
	)
	return err
}

func (s *sqliteStore) ChecksForDate(ctx context.Context, d routine.Date) ([]routine.CompletionMark, error) {
	return s.ChecksForPeriod(ctx, d, d)
}

func (s *sqliteStore) ChecksForPeriod(ctx context.Context, start, end routine.Date) ([]routine.CompletionMark, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT routine_id, date, done FROM checks WHERE date >= ? AND date <= ? ORDER BY date, routine_id`,
		start.String(), end.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []routine.CompletionMark
	for rows.Next() {
		var (
			m    routine.CompletionMark
			date string
			done int
		)
		if err := rows.Scan(&m.RoutineID, &date, &done); err != nil {
			return nil, err
		}
		if m.Date, err = routine.ParseDate(date); err != nil {
			return nil, err
		}
		m.Done = done != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqliteStore) MonthHolidays(ctx context.Context, year int, month time.Month) ([]routine.HolidayRecord, error) {
	first, last := routine.MonthBounds(year, month)
	rows, err := s.db.QueryContext(ctx,
		`SELECT locdate, name, is_holiday FROM holidays WHERE locdate >= ? AND locdate <= ? ORDER BY locdate`,
		first.YYYYMMDD(), last.YYYYMMDD(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []routine.HolidayRecord
	for rows.Next() {
		var (
			locdate, flag int
			name          sql.NullString
		)
		if err := rows.Scan(&locdate, &name, &flag); err != nil {
			return nil, err
		}
		d, err := routine.FromYYYYMMDD(locdate)
		if err != nil {
			return nil, err
		}
		out = append(out, routine.HolidayRecord{Date: d, Name: name.String, IsHoliday: flag != 0})
	}
	return out, rows.Err()
}

func (s *sqliteStore) CacheEntry(ctx context.Context, year int, month time.Month) (routine.HolidayCacheEntry, bool, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT fetched_at FROM holiday_cache WHERE year = ? AND month = ?`, year, int(month),
	).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return routine.HolidayCacheEntry{}, false, nil
	}
	if err != nil {
		return routine.HolidayCacheEntry{}, false, err
	}
	return routine.HolidayCacheEntry{Year: year, Month: month, LastFetchedAt: time.UnixMilli(ms)}, true, nil
}

func (s *sqliteStore) ReplaceMonth(ctx context.Context, year int, month time.Month, recs []routine.HolidayRecord, fetchedAt time.Time) error {
	first, last := routine.MonthBounds(year, month)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM holidays WHERE locdate >= ? AND locdate <= ?`, first.YYYYMMDD(), last.YYYYMMDD(),
	); err != nil {
		return err
	}
	for _, rec := range recs {
		if !within(rec.Date, first, last) {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO holidays(locdate, name, is_holiday) VALUES(?,?,?)
			 ON CONFLICT(locdate) DO UPDATE SET name=excluded.name, is_holiday=excluded.is_holiday`,
			rec.Date.YYYYMMDD(), nullStr(rec.Name), boolInt(rec.IsHoliday),
		); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO holiday_cache(year, month, fetched_at) VALUES(?,?,?)
		 ON CONFLICT(year, month) DO UPDATE SET fetched_at=excluded.fetched_at`,
		year, int(month), fetchedAt.UnixMilli(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
