package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/dojo-schedule/internal/model"
)

// OutboxRepo is the durable task queue behind the relay worker.  Leases are
// taken with SELECT ... FOR UPDATE SKIP LOCKED so several relays can share
// the table.
type OutboxRepo struct {
	db *sql.DB
}

// NewOutboxRepo returns an OutboxRepo bound to db.
func NewOutboxRepo(db *sql.DB) *OutboxRepo { return &OutboxRepo{db: db} }

const outboxColumns = `id, kind, student_id, tenant_id, dedupe_key, status, attempts, next_attempt_at,
	lease_owner, lease_expires_at, last_error, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (model.OutboxTask, error) {
	var (
		t       model.OutboxTask
		status  string
		owner   sql.NullString
		expires sql.NullTime
		lastErr sql.NullString
	)
	err := row.Scan(&t.ID, &t.Kind, &t.StudentID, &t.TenantID, &t.DedupeKey, &status, &t.Attempts,
		&t.NextAttemptAt, &owner, &expires, &lastErr, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return model.OutboxTask{}, err
	}
	t.Status = model.OutboxStatus(status)
	t.LeaseOwner = owner.String
	t.LastError = lastErr.String
	if expires.Valid {
		e := expires.Time
		t.LeaseExpiresAt = &e
	}
	return t, nil
}

// EnqueueTask stores task unless a pending task already carries its dedupe
// key.
func (r *OutboxRepo) EnqueueTask(ctx context.Context, task model.OutboxTask) error {
	if task.Status == "" {
		task.Status = model.OutboxPending
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if task.DedupeKey != "" {
			var id string
			err := tx.QueryRowContext(ctx, `SELECT id FROM outbox_tasks WHERE dedupe_key = ? AND status = ? LIMIT 1 FOR UPDATE`,
				task.DedupeKey, string(model.OutboxPending)).Scan(&id)
			if err == nil {
				return nil
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO outbox_tasks
			(id, kind, student_id, tenant_id, dedupe_key, status, attempts, next_attempt_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			task.ID, task.Kind, task.StudentID, task.TenantID, task.DedupeKey, string(task.Status), task.Attempts,
			task.NextAttemptAt.UTC(), task.CreatedAt.UTC(), task.UpdatedAt.UTC())
		return err
	})
}

// LeaseTasks claims up to limit due tasks for owner.  Pending tasks whose
// next attempt is due and leased tasks whose lease expired both qualify.
func (r *OutboxRepo) LeaseTasks(ctx context.Context, owner string, limit int, now time.Time, ttl time.Duration) ([]model.OutboxTask, error) {
	var out []model.OutboxTask
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT `+outboxColumns+` FROM outbox_tasks
			WHERE (status = ? AND next_attempt_at <= ?) OR (status = ? AND lease_expires_at <= ?)
			ORDER BY created_at, id LIMIT ? FOR UPDATE SKIP LOCKED`,
			string(model.OutboxPending), now.UTC(), string(model.OutboxLeased), now.UTC(), limit)
		if err != nil {
			return err
		}
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				rows.Close()
				return err
			}
			out = append(out, t)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		exp := now.Add(ttl).UTC()
		for i := range out {
			if _, err := tx.ExecContext(ctx, `UPDATE outbox_tasks
				SET status = ?, lease_owner = ?, lease_expires_at = ?, attempts = attempts + 1, updated_at = ?
				WHERE id = ?`, string(model.OutboxLeased), owner, exp, now.UTC(), out[i].ID); err != nil {
				return err
			}
			out[i].Status = model.OutboxLeased
			out[i].LeaseOwner = owner
			out[i].LeaseExpiresAt = &exp
			out[i].Attempts++
			out[i].UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CompleteTask marks a task owned by owner as succeeded.
func (r *OutboxRepo) CompleteTask(ctx context.Context, id, owner string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE outbox_tasks
		SET status = ?, lease_owner = NULL, lease_expires_at = NULL, last_error = NULL, updated_at = ?
		WHERE id = ? AND status = ? AND lease_owner = ?`,
		string(model.OutboxSucceeded), now.UTC(), id, string(model.OutboxLeased), owner)
	return r.owned(ctx, id, res, err)
}

// RetryTask hands a task owned by owner back to the queue, or buries it
// when dead is set.
func (r *OutboxRepo) RetryTask(ctx context.Context, id, owner, lastErr string, next time.Time, dead bool) error {
	status := model.OutboxPending
	if dead {
		status = model.OutboxDead
	}
	res, err := r.db.ExecContext(ctx, `UPDATE outbox_tasks
		SET status = ?, lease_owner = NULL, lease_expires_at = NULL, last_error = ?, next_attempt_at = ?, updated_at = UTC_TIMESTAMP()
		WHERE id = ? AND status = ? AND lease_owner = ?`,
		string(status), lastErr, next.UTC(), id, string(model.OutboxLeased), owner)
	return r.owned(ctx, id, res, err)
}

// owned turns a zero-row update into ErrNotFound or ErrStaleState.
func (r *OutboxRepo) owned(ctx context.Context, id string, res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	var one int
	if err := r.db.QueryRowContext(ctx, `SELECT 1 FROM outbox_tasks WHERE id = ?`, id).Scan(&one); err != nil {
		return notFound(err)
	}
	return ErrStaleState
}
