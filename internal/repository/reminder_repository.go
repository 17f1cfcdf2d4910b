package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/remindmail/remindmail/internal/database"
	"github.com/remindmail/remindmail/internal/model"
)

const remindersTable = "reminders"

var reminderColumns = []string{"id", "email", "message", "scheduled_time", "sent", "created_at"}

// ReminderRepository handles reminder persistence in PostgreSQL
type ReminderRepository struct {
	db  *database.Postgres
	sq  squirrel.StatementBuilderType
	now func() time.Time
}

// NewReminderRepository creates a new ReminderRepository
func NewReminderRepository(db *database.Postgres) *ReminderRepository {
	return &ReminderRepository{
		db:  db,
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now: time.Now,
	}
}

// Insert assigns ID and CreatedAt and stores the reminder
func (r *ReminderRepository) Insert(ctx context.Context, reminder *model.Reminder) error {
	reminder.ID = uuid.New().String()
	reminder.CreatedAt = r.now().UTC()

	query, args, err := r.sq.
		Insert(remindersTable).
		Columns(reminderColumns...).
		Values(
			reminder.ID,
			reminder.Email,
			reminder.Message,
			reminder.ScheduledTime.UTC(),
			reminder.Sent,
			reminder.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	return nil
}

// List returns every reminder ordered by scheduled time
func (r *ReminderRepository) List(ctx context.Context) ([]model.Reminder, error) {
	return r.query(ctx, r.listQuery(), "list reminders")
}

// FindDue returns unsent reminders scheduled at or before now
func (r *ReminderRepository) FindDue(ctx context.Context, now time.Time) ([]model.Reminder, error) {
	return r.query(ctx, r.dueQuery(now), "find due reminders")
}

// MarkSent flags the reminder as delivered
func (r *ReminderRepository) MarkSent(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	query, args, err := r.sq.
		Update(remindersTable).
		Set("sent", true).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark reminder %s sent: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ReminderRepository) listQuery() squirrel.SelectBuilder {
	return r.sq.
		Select(reminderColumns...).
		From(remindersTable).
		OrderBy("scheduled_time ASC", "created_at ASC")
}

func (r *ReminderRepository) dueQuery(now time.Time) squirrel.SelectBuilder {
	return r.sq.
		Select(reminderColumns...).
		From(remindersTable).
		Where(squirrel.Eq{"sent": false}).
		Where(squirrel.LtOrEq{"scheduled_time": now.UTC()}).
		OrderBy("scheduled_time ASC", "created_at ASC")
}

func (r *ReminderRepository) query(ctx context.Context, builder squirrel.SelectBuilder, op string) ([]model.Reminder, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	reminders := make([]model.Reminder, 0)
	for rows.Next() {
		var rem model.Reminder
		if err := rows.Scan(
			&rem.ID,
			&rem.Email,
			&rem.Message,
			&rem.ScheduledTime,
			&rem.Sent,
			&rem.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		reminders = append(reminders, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return reminders, nil
}
