// Package store is the durable schedule store: interval and crontab
// definitions, periodic tasks, run results, and the change marker the
// scheduler loop watches to detect admin mutations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"cronbeat/internal/domain"
)

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS interval_schedules (
  id TEXT PRIMARY KEY,
  every INTEGER NOT NULL,
  period TEXT NOT NULL CHECK(period IN ('seconds','minutes','hours','days')),
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS crontab_schedules (
  id TEXT PRIMARY KEY,
  minute TEXT NOT NULL DEFAULT '*',
  hour TEXT NOT NULL DEFAULT '*',
  day_of_week TEXT NOT NULL DEFAULT '*',
  day_of_month TEXT NOT NULL DEFAULT '*',
  month_of_year TEXT NOT NULL DEFAULT '*',
  timezone TEXT NOT NULL DEFAULT 'UTC',
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS periodic_tasks (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  task TEXT NOT NULL,
  interval_id TEXT REFERENCES interval_schedules(id),
  crontab_id TEXT REFERENCES crontab_schedules(id),
  args TEXT NOT NULL DEFAULT '[]',
  kwargs TEXT NOT NULL DEFAULT '{}',
  queue TEXT,
  priority INTEGER,
  expires DATETIME,
  one_off INTEGER NOT NULL DEFAULT 0,
  start_time DATETIME,
  enabled INTEGER NOT NULL DEFAULT 1,
  last_run_at DATETIME,
  total_run_count INTEGER NOT NULL DEFAULT 0,
  description TEXT NOT NULL DEFAULT '',
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_periodic_tasks_enabled ON periodic_tasks(enabled);
CREATE TABLE IF NOT EXISTS task_results (
  id TEXT PRIMARY KEY,
  task_name TEXT NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('pending','started','success','failure','retry')) DEFAULT 'pending',
  result TEXT,
  args TEXT NOT NULL DEFAULT '[]',
  kwargs TEXT NOT NULL DEFAULT '{}',
  date_created DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  date_done DATETIME,
  traceback TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_task_results_name ON task_results(task_name, date_created);
CREATE TABLE IF NOT EXISTS schedule_changed (
  id INTEGER PRIMARY KEY CHECK(id=1),
  last_update DATETIME NOT NULL
);
INSERT OR IGNORE INTO schedule_changed(id, last_update) VALUES (1, CURRENT_TIMESTAMP);
`
	_, err := db.Exec(schema)
	return err
}

// TaskFilter narrows ListTasks.
type TaskFilter struct {
	Enabled *bool
	Limit   int
	Offset  int
}

// ResultFilter narrows ListResults.
type ResultFilter struct {
	TaskName string
	Status   string
	Limit    int
	Offset   int
}

// LoadedTask is a periodic task joined with the schedule row it references,
// as read by the scheduler loop when rebuilding its cache.
type LoadedTask struct {
	Task     domain.PeriodicTask
	Interval *domain.IntervalSchedule
	Crontab  *domain.CrontabSchedule
}

type Repository interface {
	CreateInterval(ctx context.Context, s domain.IntervalSchedule) (string, error)
	GetInterval(ctx context.Context, id string) (domain.IntervalSchedule, error)
	ListIntervals(ctx context.Context) ([]domain.IntervalSchedule, error)
	DeleteInterval(ctx context.Context, id string) error

	CreateCrontab(ctx context.Context, s domain.CrontabSchedule) (string, error)
	GetCrontab(ctx context.Context, id string) (domain.CrontabSchedule, error)
	ListCrontabs(ctx context.Context) ([]domain.CrontabSchedule, error)
	DeleteCrontab(ctx context.Context, id string) error

	CreateTask(ctx context.Context, t domain.PeriodicTask) (string, error)
	GetTask(ctx context.Context, id string) (domain.PeriodicTask, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]domain.PeriodicTask, int, error)
	UpdateTask(ctx context.Context, t domain.PeriodicTask) error
	DeleteTask(ctx context.Context, id string) error
	SetTaskEnabled(ctx context.Context, id string, enabled bool) error

	// ListEnabled returns every enabled task with its schedule row resolved.
	ListEnabled(ctx context.Context) ([]LoadedTask, error)
	// UpdateRunInfo persists loop bookkeeping. It deliberately does not bump
	// the change marker: the loop already holds the authoritative state and
	// must not trigger its own reload.
	UpdateRunInfo(ctx context.Context, id string, lastRun time.Time, totalRuns int64, enabled bool) error
	LastChanged(ctx context.Context) (time.Time, error)

	InsertResult(ctx context.Context, r domain.TaskResult) (string, error)
	GetResult(ctx context.Context, id string) (domain.TaskResult, error)
	ListResults(ctx context.Context, f ResultFilter) ([]domain.TaskResult, int, error)
	DeleteResultsBefore(ctx context.Context, cutoff time.Time) (int, error)

	Statistics(ctx context.Context) (domain.Statistics, error)
}

type sqliteRepo struct{ db *sql.DB }

func NewSQLiteRepo(db *sql.DB) Repository { return &sqliteRepo{db: db} }

// inTx runs fn and a change-marker bump in one transaction, so admin
// mutations and their marker update land atomically.
func (r *sqliteRepo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE schedule_changed SET last_update=? WHERE id=1`, time.Now().UTC()); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *sqliteRepo) CreateInterval(ctx context.Context, s domain.IntervalSchedule) (string, error) {
	id := s.ID
	if id == "" {
		id = "int_" + uuid.NewString()
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO interval_schedules (id,every,period) VALUES (?,?,?)`, id, s.Every, s.Period)
		return err
	})
	return id, err
}

func (r *sqliteRepo) GetInterval(ctx context.Context, id string) (domain.IntervalSchedule, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id,every,period FROM interval_schedules WHERE id=?`, id)
	var s domain.IntervalSchedule
	if err := row.Scan(&s.ID, &s.Every, &s.Period); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.IntervalSchedule{}, domain.ErrNotFound
		}
		return domain.IntervalSchedule{}, err
	}
	return s, nil
}

func (r *sqliteRepo) ListIntervals(ctx context.Context) ([]domain.IntervalSchedule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id,every,period FROM interval_schedules ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.IntervalSchedule
	for rows.Next() {
		var s domain.IntervalSchedule
		if err := rows.Scan(&s.ID, &s.Every, &s.Period); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *sqliteRepo) DeleteInterval(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		var refs int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM periodic_tasks WHERE interval_id=?`, id).Scan(&refs); err != nil {
			return err
		}
		if refs > 0 {
			return domain.ErrScheduleInUse
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM interval_schedules WHERE id=?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *sqliteRepo) CreateCrontab(ctx context.Context, s domain.CrontabSchedule) (string, error) {
	id := s.ID
	if id == "" {
		id = "crn_" + uuid.NewString()
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO crontab_schedules (id,minute,hour,day_of_week,day_of_month,month_of_year,timezone)
VALUES (?,?,?,?,?,?,?)`, id, s.Minute, s.Hour, s.DayOfWeek, s.DayOfMonth, s.MonthOfYear, s.Timezone)
		return err
	})
	return id, err
}

func (r *sqliteRepo) GetCrontab(ctx context.Context, id string) (domain.CrontabSchedule, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id,minute,hour,day_of_week,day_of_month,month_of_year,timezone
FROM crontab_schedules WHERE id=?`, id)
	var s domain.CrontabSchedule
	if err := row.Scan(&s.ID, &s.Minute, &s.Hour, &s.DayOfWeek, &s.DayOfMonth, &s.MonthOfYear, &s.Timezone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CrontabSchedule{}, domain.ErrNotFound
		}
		return domain.CrontabSchedule{}, err
	}
	return s, nil
}

func (r *sqliteRepo) ListCrontabs(ctx context.Context) ([]domain.CrontabSchedule, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id,minute,hour,day_of_week,day_of_month,month_of_year,timezone
FROM crontab_schedules ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CrontabSchedule
	for rows.Next() {
		var s domain.CrontabSchedule
		if err := rows.Scan(&s.ID, &s.Minute, &s.Hour, &s.DayOfWeek, &s.DayOfMonth, &s.MonthOfYear, &s.Timezone); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *sqliteRepo) DeleteCrontab(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		var refs int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM periodic_tasks WHERE crontab_id=?`, id).Scan(&refs); err != nil {
			return err
		}
		if refs > 0 {
			return domain.ErrScheduleInUse
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM crontab_schedules WHERE id=?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

const taskColumns = `id,name,task,interval_id,crontab_id,args,kwargs,queue,priority,expires,
one_off,start_time,enabled,last_run_at,total_run_count,description,created_at,updated_at`

func scanTask(row interface{ Scan(...any) error }) (domain.PeriodicTask, error) {
	var (
		t         domain.PeriodicTask
		interval  sql.NullString
		crontab   sql.NullString
		queue     sql.NullString
		priority  sql.NullInt64
		expires   sql.NullTime
		startTime sql.NullTime
		lastRun   sql.NullTime
		args      string
		kwargs    string
	)
	err := row.Scan(&t.ID, &t.Name, &t.Task, &interval, &crontab, &args, &kwargs,
		&queue, &priority, &expires, &t.OneOff, &startTime, &t.Enabled,
		&lastRun, &t.TotalRuns, &t.Description, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.PeriodicTask{}, err
	}
	t.Args = []byte(args)
	t.Kwargs = []byte(kwargs)
	if interval.Valid {
		t.IntervalID = &interval.String
	}
	if crontab.Valid {
		t.CrontabID = &crontab.String
	}
	if queue.Valid {
		t.Queue = queue.String
	}
	if priority.Valid {
		p := int(priority.Int64)
		t.Priority = &p
	}
	if expires.Valid {
		t.Expires = &expires.Time
	}
	if startTime.Valid {
		t.StartTime = &startTime.Time
	}
	if lastRun.Valid {
		t.LastRunAt = &lastRun.Time
	}
	return t, nil
}

func (r *sqliteRepo) CreateTask(ctx context.Context, t domain.PeriodicTask) (string, error) {
	id := t.ID
	if id == "" {
		id = "pt_" + uuid.NewString()
	}
	if len(t.Args) == 0 {
		t.Args = []byte("[]")
	}
	if len(t.Kwargs) == 0 {
		t.Kwargs = []byte("{}")
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM periodic_tasks WHERE name=?`, t.Name).Scan(&exists); err != nil {
			return err
		}
		if exists > 0 {
			return domain.ErrNameTaken
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO periodic_tasks (id,name,task,interval_id,crontab_id,args,kwargs,queue,priority,expires,
one_off,start_time,enabled,description,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)`,
			id, t.Name, t.Task, t.IntervalID, t.CrontabID, string(t.Args), string(t.Kwargs),
			nullString(t.Queue), t.Priority, t.Expires, t.OneOff, t.StartTime, t.Enabled, t.Description)
		return err
	})
	return id, err
}

func (r *sqliteRepo) GetTask(ctx context.Context, id string) (domain.PeriodicTask, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM periodic_tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PeriodicTask{}, domain.ErrNotFound
	}
	return t, err
}

func (r *sqliteRepo) ListTasks(ctx context.Context, f TaskFilter) ([]domain.PeriodicTask, int, error) {
	where, params := "", []any{}
	if f.Enabled != nil {
		where = " WHERE enabled=?"
		params = append(params, *f.Enabled)
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM periodic_tasks`+where, params...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	params = append(params, f.Limit, f.Offset)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM periodic_tasks`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`, params...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []domain.PeriodicTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (r *sqliteRepo) UpdateTask(ctx context.Context, t domain.PeriodicTask) error {
	if len(t.Args) == 0 {
		t.Args = []byte("[]")
	}
	if len(t.Kwargs) == 0 {
		t.Kwargs = []byte("{}")
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		var taken int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM periodic_tasks WHERE name=? AND id<>?`, t.Name, t.ID).Scan(&taken); err != nil {
			return err
		}
		if taken > 0 {
			return domain.ErrNameTaken
		}
		res, err := tx.ExecContext(ctx, `
UPDATE periodic_tasks
SET name=?,task=?,interval_id=?,crontab_id=?,args=?,kwargs=?,queue=?,priority=?,expires=?,
    one_off=?,start_time=?,enabled=?,description=?,updated_at=CURRENT_TIMESTAMP
WHERE id=?`,
			t.Name, t.Task, t.IntervalID, t.CrontabID, string(t.Args), string(t.Kwargs),
			nullString(t.Queue), t.Priority, t.Expires, t.OneOff, t.StartTime, t.Enabled,
			t.Description, t.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *sqliteRepo) DeleteTask(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM periodic_tasks WHERE id=?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *sqliteRepo) SetTaskEnabled(ctx context.Context, id string, enabled bool) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE periodic_tasks SET enabled=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`, enabled, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *sqliteRepo) ListEnabled(ctx context.Context) ([]LoadedTask, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT t.id,t.name,t.task,t.interval_id,t.crontab_id,t.args,t.kwargs,t.queue,t.priority,t.expires,
       t.one_off,t.start_time,t.enabled,t.last_run_at,t.total_run_count,t.description,t.created_at,t.updated_at,
       i.every,i.period,
       c.minute,c.hour,c.day_of_week,c.day_of_month,c.month_of_year,c.timezone
FROM periodic_tasks t
LEFT JOIN interval_schedules i ON i.id = t.interval_id
LEFT JOIN crontab_schedules c ON c.id = t.crontab_id
WHERE t.enabled=1
ORDER BY t.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LoadedTask
	for rows.Next() {
		var (
			t         domain.PeriodicTask
			interval  sql.NullString
			crontab   sql.NullString
			queue     sql.NullString
			priority  sql.NullInt64
			expires   sql.NullTime
			startTime sql.NullTime
			lastRun   sql.NullTime
			args      string
			kwargs    string

			every  sql.NullInt64
			period sql.NullString

			minute, hour, dow, dom, moy, tz sql.NullString
		)
		err := rows.Scan(&t.ID, &t.Name, &t.Task, &interval, &crontab, &args, &kwargs,
			&queue, &priority, &expires, &t.OneOff, &startTime, &t.Enabled,
			&lastRun, &t.TotalRuns, &t.Description, &t.CreatedAt, &t.UpdatedAt,
			&every, &period,
			&minute, &hour, &dow, &dom, &moy, &tz)
		if err != nil {
			return nil, err
		}
		t.Args = []byte(args)
		t.Kwargs = []byte(kwargs)
		if queue.Valid {
			t.Queue = queue.String
		}
		if priority.Valid {
			p := int(priority.Int64)
			t.Priority = &p
		}
		if expires.Valid {
			t.Expires = &expires.Time
		}
		if startTime.Valid {
			t.StartTime = &startTime.Time
		}
		if lastRun.Valid {
			t.LastRunAt = &lastRun.Time
		}

		lt := LoadedTask{Task: t}
		if interval.Valid && every.Valid {
			lt.Task.IntervalID = &interval.String
			lt.Interval = &domain.IntervalSchedule{
				ID:     interval.String,
				Every:  int(every.Int64),
				Period: domain.Period(period.String),
			}
		}
		if crontab.Valid && minute.Valid {
			lt.Task.CrontabID = &crontab.String
			lt.Crontab = &domain.CrontabSchedule{
				ID:          crontab.String,
				Minute:      minute.String,
				Hour:        hour.String,
				DayOfWeek:   dow.String,
				DayOfMonth:  dom.String,
				MonthOfYear: moy.String,
				Timezone:    tz.String,
			}
		}
		out = append(out, lt)
	}
	return out, rows.Err()
}

func (r *sqliteRepo) UpdateRunInfo(ctx context.Context, id string, lastRun time.Time, totalRuns int64, enabled bool) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE periodic_tasks
SET last_run_at=?, total_run_count=?, enabled=?, updated_at=CURRENT_TIMESTAMP
WHERE id=?`, lastRun, totalRuns, enabled, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *sqliteRepo) LastChanged(ctx context.Context) (time.Time, error) {
	var ts time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT last_update FROM schedule_changed WHERE id=1`).Scan(&ts)
	return ts, err
}

func (r *sqliteRepo) InsertResult(ctx context.Context, res domain.TaskResult) (string, error) {
	id := res.ID
	if id == "" {
		id = "res_" + uuid.NewString()
	}
	if len(res.Args) == 0 {
		res.Args = []byte("[]")
	}
	if len(res.Kwargs) == 0 {
		res.Kwargs = []byte("{}")
	}
	if res.Status == "" {
		res.Status = domain.StatusPending
	}
	created := res.DateCreated
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO task_results (id,task_name,status,result,args,kwargs,date_created,date_done,traceback)
VALUES (?,?,?,?,?,?,?,?,?)`,
		id, res.TaskName, res.Status, nullBytes(res.Result), string(res.Args), string(res.Kwargs),
		created, res.DateDone, res.Traceback)
	return id, err
}

func (r *sqliteRepo) GetResult(ctx context.Context, id string) (domain.TaskResult, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id,task_name,status,result,args,kwargs,date_created,date_done,traceback
FROM task_results WHERE id=?`, id)
	res, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TaskResult{}, domain.ErrNotFound
	}
	return res, err
}

func scanResult(row interface{ Scan(...any) error }) (domain.TaskResult, error) {
	var (
		res      domain.TaskResult
		result   sql.NullString
		dateDone sql.NullTime
		args     string
		kwargs   string
	)
	err := row.Scan(&res.ID, &res.TaskName, &res.Status, &result, &args, &kwargs,
		&res.DateCreated, &dateDone, &res.Traceback)
	if err != nil {
		return domain.TaskResult{}, err
	}
	res.Args = []byte(args)
	res.Kwargs = []byte(kwargs)
	if result.Valid {
		res.Result = []byte(result.String)
	}
	if dateDone.Valid {
		res.DateDone = &dateDone.Time
	}
	return res, nil
}

func (r *sqliteRepo) ListResults(ctx context.Context, f ResultFilter) ([]domain.TaskResult, int, error) {
	where, params := "", []any{}
	add := func(cond string, v any) {
		if where == "" {
			where = " WHERE " + cond
		} else {
			where += " AND " + cond
		}
		params = append(params, v)
	}
	if f.TaskName != "" {
		add("task_name=?", f.TaskName)
	}
	if f.Status != "" {
		add("status=?", f.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task_results`+where, params...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	params = append(params, f.Limit, f.Offset)
	rows, err := r.db.QueryContext(ctx, `
SELECT id,task_name,status,result,args,kwargs,date_created,date_done,traceback
FROM task_results`+where+` ORDER BY date_created DESC LIMIT ? OFFSET ?`, params...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []domain.TaskResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, res)
	}
	return out, total, rows.Err()
}

func (r *sqliteRepo) DeleteResultsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM task_results WHERE date_created < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *sqliteRepo) Statistics(ctx context.Context) (domain.Statistics, error) {
	stats := domain.Statistics{ResultsByStatus: map[string]int64{}}

	row := r.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(enabled),0) FROM periodic_tasks`)
	var enabled int
	if err := row.Scan(&stats.TotalTasks, &enabled); err != nil {
		return domain.Statistics{}, err
	}
	stats.EnabledTasks = enabled
	stats.DisabledTasks = stats.TotalTasks - enabled

	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM task_results GROUP BY status`)
	if err != nil {
		return domain.Statistics{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return domain.Statistics{}, err
		}
		stats.ResultsByStatus[status] = n
	}
	return stats, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
