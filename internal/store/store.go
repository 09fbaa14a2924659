package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagercall/backend/internal/models"
)

// ErrNotFound is returned for unknown schedule, shift, policy or run ids.
var ErrNotFound = errors.New("not found")

// ErrOverrideAttached is returned when attaching an override shift that is
// already referenced by a different schedule. Overrides are
// schedule-exclusive.
var ErrOverrideAttached = errors.New("override shift already attached to another schedule")

// Repository is the persistence surface the rest of the system consumes.
// Postgres implements it for production; Memory implements it for dev mode
// and tests.
type Repository interface {
	Ping(ctx context.Context) error
	Close()

	CreateShift(ctx context.Context, shift models.ShiftDefinition) error
	GetShift(ctx context.Context, id string) (models.ShiftDefinition, error)
	UpdateShift(ctx context.Context, shift models.ShiftDefinition) error
	DeleteShift(ctx context.Context, id string) error

	CreateSchedule(ctx context.Context, sched models.Schedule) error
	AttachShift(ctx context.Context, scheduleID, shiftID string) error
	GetSchedule(ctx context.Context, id string) (models.Schedule, error)
	GetShiftsForSchedule(ctx context.Context, scheduleID string) ([]models.ShiftDefinition, error)

	CreateEscalationPolicy(ctx context.Context, policy models.EscalationPolicy) error
	BindIncident(ctx context.Context, incidentID, policyID string) error
	GetEscalationPolicy(ctx context.Context, incidentID string) (models.EscalationPolicy, error)

	SaveEscalationRun(ctx context.Context, run models.EscalationRun) error
	LoadEscalationRun(ctx context.Context, incidentID string) (models.EscalationRun, error)
}

// Postgres is the pgx-backed repository.
type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Postgres{Pool: pool}, nil
}

func (s *Postgres) Close() {
	s.Pool.Close()
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Postgres) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const shiftColumns = `id, org_id, team_id, name, kind, start_at, duration_seconds, frequency, recur_interval, by_day, by_month, by_monthday, until_at, week_start, time_zone, users, level, created_at`

func (s *Postgres) CreateShift(ctx context.Context, shift models.ShiftDefinition) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO shifts (`+shiftColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, shiftArgs(shift)...)
	return err
}

func (s *Postgres) GetShift(ctx context.Context, id string) (models.ShiftDefinition, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = $1`, id)
	shift, err := scanShift(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ShiftDefinition{}, ErrNotFound
	}
	return shift, err
}

func (s *Postgres) UpdateShift(ctx context.Context, shift models.ShiftDefinition) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE shifts SET
			team_id = $2, name = $3, kind = $4, start_at = $5, duration_seconds = $6,
			frequency = $7, recur_interval = $8, by_day = $9, by_month = $10, by_monthday = $11,
			until_at = $12, week_start = $13, time_zone = $14, users = $15, level = $16
		WHERE id = $1
	`, shift.ID, nullable(shift.TeamID), shift.Name, string(shift.Kind), shift.Start,
		int64(shift.Duration/time.Second), string(shift.Frequency), shift.Interval,
		shift.ByDay, shift.ByMonth, shift.ByMonthday, shift.Until, nullable(shift.WeekStart),
		nullable(shift.TimeZone), shift.Users, shift.Level)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteShift removes the shift and detaches it from every schedule that
// references it, in one transaction.
func (s *Postgres) DeleteShift(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM schedule_shifts WHERE shift_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM shifts WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *Postgres) CreateSchedule(ctx context.Context, sched models.Schedule) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO schedules (id, org_id, name, time_zone) VALUES ($1,$2,$3,$4)`,
			sched.ID, sched.OrgID, sched.Name, sched.TimeZone); err != nil {
			return err
		}
		for _, shiftID := range sched.ShiftIDs {
			if err := ensureOverrideFree(ctx, tx, sched.ID, shiftID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schedule_shifts (schedule_id, shift_id) VALUES ($1,$2)`, sched.ID, shiftID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Postgres) AttachShift(ctx context.Context, scheduleID, shiftID string) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if err := ensureOverrideFree(ctx, tx, scheduleID, shiftID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO schedule_shifts (schedule_id, shift_id) VALUES ($1,$2)
			ON CONFLICT DO NOTHING
		`, scheduleID, shiftID)
		return err
	})
}

// ensureOverrideFree rejects attaching an override shift that another schedule
// already references.
func ensureOverrideFree(ctx context.Context, tx pgx.Tx, scheduleID, shiftID string) error {
	var kind string
	err := tx.QueryRow(ctx, `SELECT kind FROM shifts WHERE id = $1`, shiftID).Scan(&kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if models.ShiftKind(kind) != models.KindOverride {
		return nil
	}
	var taken bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM schedule_shifts WHERE shift_id = $1 AND schedule_id <> $2)
	`, shiftID, scheduleID).Scan(&taken)
	if err != nil {
		return err
	}
	if taken {
		return ErrOverrideAttached
	}
	return nil
}

func (s *Postgres) GetSchedule(ctx context.Context, id string) (models.Schedule, error) {
	var sched models.Schedule
	err := s.Pool.QueryRow(ctx, `SELECT id, org_id, name, time_zone FROM schedules WHERE id = $1`, id).
		Scan(&sched.ID, &sched.OrgID, &sched.Name, &sched.TimeZone)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Schedule{}, ErrNotFound
	}
	if err != nil {
		return models.Schedule{}, err
	}

	rows, err := s.Pool.Query(ctx, `SELECT shift_id FROM schedule_shifts WHERE schedule_id = $1 ORDER BY shift_id`, id)
	if err != nil {
		return models.Schedule{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var shiftID string
		if err := rows.Scan(&shiftID); err != nil {
			return models.Schedule{}, err
		}
		sched.ShiftIDs = append(sched.ShiftIDs, shiftID)
	}
	return sched, rows.Err()
}

func (s *Postgres) GetShiftsForSchedule(ctx context.Context, scheduleID string) ([]models.ShiftDefinition, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+prefixed("sh.", shiftColumns)+`
		FROM shifts sh
		JOIN schedule_shifts ss ON ss.shift_id = sh.id
		WHERE ss.schedule_id = $1
		ORDER BY sh.created_at ASC, sh.id ASC
	`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ShiftDefinition
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, shift)
	}
	return out, rows.Err()
}

func (s *Postgres) CreateEscalationPolicy(ctx context.Context, policy models.EscalationPolicy) error {
	steps, err := json.Marshal(policy.Steps)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `INSERT INTO escalation_policies (id, org_id, name, steps) VALUES ($1,$2,$3,$4)`,
		policy.ID, policy.OrgID, policy.Name, steps)
	return err
}

func (s *Postgres) BindIncident(ctx context.Context, incidentID, policyID string) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO incidents (id, policy_id) VALUES ($1,$2)
		ON CONFLICT (id) DO UPDATE SET policy_id = EXCLUDED.policy_id
	`, incidentID, policyID)
	return err
}

func (s *Postgres) GetEscalationPolicy(ctx context.Context, incidentID string) (models.EscalationPolicy, error) {
	var policy models.EscalationPolicy
	var steps []byte
	err := s.Pool.QueryRow(ctx, `
		SELECT p.id, p.org_id, p.name, p.steps
		FROM escalation_policies p
		JOIN incidents i ON i.policy_id = p.id
		WHERE i.id = $1
	`, incidentID).Scan(&policy.ID, &policy.OrgID, &policy.Name, &steps)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.EscalationPolicy{}, ErrNotFound
	}
	if err != nil {
		return models.EscalationPolicy{}, err
	}
	if err := json.Unmarshal(steps, &policy.Steps); err != nil {
		return models.EscalationPolicy{}, err
	}
	return policy, nil
}

func (s *Postgres) SaveEscalationRun(ctx context.Context, run models.EscalationRun) error {
	attempts, err := json.Marshal(run.Attempts)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO escalation_runs (incident_id, policy_id, step_index, repeats, status, started_at, updated_at, attempts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (incident_id) DO UPDATE SET
			policy_id = EXCLUDED.policy_id,
			step_index = EXCLUDED.step_index,
			repeats = EXCLUDED.repeats,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			attempts = EXCLUDED.attempts
	`, run.IncidentID, run.PolicyID, run.StepIndex, run.Repeats, string(run.Status), run.StartedAt, run.UpdatedAt, attempts)
	return err
}

func (s *Postgres) LoadEscalationRun(ctx context.Context, incidentID string) (models.EscalationRun, error) {
	var run models.EscalationRun
	var status string
	var attempts []byte
	err := s.Pool.QueryRow(ctx, `
		SELECT incident_id, policy_id, step_index, repeats, status, started_at, updated_at, attempts
		FROM escalation_runs WHERE incident_id = $1
	`, incidentID).Scan(&run.IncidentID, &run.PolicyID, &run.StepIndex, &run.Repeats, &status, &run.StartedAt, &run.UpdatedAt, &attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.EscalationRun{}, ErrNotFound
	}
	if err != nil {
		return models.EscalationRun{}, err
	}
	run.Status = models.RunStatus(status)
	if len(attempts) > 0 {
		if err := json.Unmarshal(attempts, &run.Attempts); err != nil {
			return models.EscalationRun{}, err
		}
	}
	return run, nil
}

func shiftArgs(shift models.ShiftDefinition) []any {
	return []any{
		shift.ID, shift.OrgID, nullable(shift.TeamID), shift.Name, string(shift.Kind),
		shift.Start, int64(shift.Duration / time.Second), string(shift.Frequency), shift.Interval,
		shift.ByDay, shift.ByMonth, shift.ByMonthday, shift.Until, nullable(shift.WeekStart),
		nullable(shift.TimeZone), shift.Users, shift.Level, shift.CreatedAt,
	}
}

func scanShift(row pgx.Row) (models.ShiftDefinition, error) {
	var (
		shift           models.ShiftDefinition
		teamID          *string
		kind, frequency string
		durationSeconds int64
		weekStart       *string
		timeZone        *string
	)
	err := row.Scan(
		&shift.ID, &shift.OrgID, &teamID, &shift.Name, &kind, &shift.Start, &durationSeconds,
		&frequency, &shift.Interval, &shift.ByDay, &shift.ByMonth, &shift.ByMonthday,
		&shift.Until, &weekStart, &timeZone, &shift.Users, &shift.Level, &shift.CreatedAt,
	)
	if err != nil {
		return models.ShiftDefinition{}, err
	}
	shift.Kind = models.ShiftKind(kind)
	shift.Frequency = models.Frequency(frequency)
	shift.Duration = time.Duration(durationSeconds) * time.Second
	shift.TeamID = deref(teamID)
	shift.WeekStart = deref(weekStart)
	shift.TimeZone = deref(timeZone)
	return shift, nil
}

func prefixed(prefix, columns string) string {
	cols := strings.Split(columns, ", ")
	for i, col := range cols {
		cols[i] = prefix + col
	}
	return strings.Join(cols, ", ")
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
